// Package handlers exposes the HTTP surface: token acquisition, customer
// ID resolution, batched driver profiles, and health.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"racing-gateway/internal/common/errors"
	"racing-gateway/internal/common/logging"
	"racing-gateway/internal/profile"
	"racing-gateway/internal/resolver"
	"racing-gateway/internal/token"
)

// TokenProvider supplies and force-renews access tokens.
type TokenProvider interface {
	EnsureToken(ctx context.Context) (*token.Envelope, error)
	Refresh(ctx context.Context) (*token.Envelope, error)
}

// NameResolver maps a driver name to a customer ID.
type NameResolver interface {
	Resolve(ctx context.Context, name string) (*resolver.Result, error)
}

// ProfileFetcher produces profiles for a batch of names.
type ProfileFetcher interface {
	GetProfiles(ctx context.Context, names []string) (map[string]profile.Result, error)
}

// HealthChecker reports backing store health.
type HealthChecker interface {
	Health() error
}

type Handlers struct {
	tokens   TokenProvider
	resolver NameResolver
	profiles ProfileFetcher
	health   HealthChecker
	logger   logging.Logger
}

func New(tokens TokenProvider, nameResolver NameResolver, profiles ProfileFetcher, health HealthChecker, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		tokens:   tokens,
		resolver: nameResolver,
		profiles: profiles,
		health:   health,
		logger:   logger,
	}
}

// Router builds the route table.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/auth/token", h.GetToken).Methods(http.MethodGet)
	r.HandleFunc("/custid", h.GetCustID).Methods(http.MethodGet)
	r.HandleFunc("/drivers", h.GetDrivers).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	return r
}

// tokenMessages distinguish how the returned token was obtained.
var tokenMessages = map[token.Source]string{
	token.SourceCached:    "Using cached token",
	token.SourceRefreshed: "Token refreshed",
	token.SourceFresh:     "New authentication performed",
}

// GetToken returns a valid access token envelope, authenticating upstream
// only when the stored token is unusable.
func (h *Handlers) GetToken(w http.ResponseWriter, r *http.Request) {
	envelope, err := h.tokens.EnsureToken(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      tokenMessages[envelope.Source],
		"access_token": envelope.AccessToken,
		"token_type":   envelope.TokenType,
		"expires_in":   envelope.ExpiresIn(),
		"scope":        envelope.Scope,
	})
}

// GetCustID resolves the search query parameter to a customer ID. On an
// upstream authentication failure the token is renewed once and the
// resolution retried once.
func (h *Handlers) GetCustID(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	if search == "" {
		h.writeError(w, errors.ValidationError("query parameter \"search\" is required"))
		return
	}

	result, err := h.resolver.Resolve(r.Context(), search)
	if err != nil && errors.IsType(err, errors.ErrTypeAuth) {
		h.logger.Info("Resolution rejected upstream, re-authenticating",
			logging.Field{Key: "search", Value: search},
		)
		if _, refreshErr := h.tokens.Refresh(r.Context()); refreshErr != nil {
			h.writeError(w, refreshErr)
			return
		}
		result, err = h.resolver.Resolve(r.Context(), search)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"custid": result.CustID,
		"name":   result.Name,
		"origin": result.Origin,
	})
}

// GetDrivers serves profiles for a comma-separated list of names. The
// endpoint is called from browsers, so it carries CORS headers on every
// response including errors.
func (h *Handlers) GetDrivers(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	names := splitNames(r.URL.Query().Get("names"))
	if len(names) == 0 {
		h.writeError(w, errors.ValidationError("query parameter \"names\" is required"))
		return
	}

	results, err := h.profiles.GetProfiles(r.Context(), names)
	if err != nil {
		h.writeError(w, err)
		return
	}

	body := make(map[string]interface{}, len(results))
	for name, result := range results {
		if result.Err != nil {
			body[name] = map[string]string{"error": result.Err.Error()}
			continue
		}
		body[name] = json.RawMessage(result.Profile)
	}
	h.writeJSON(w, http.StatusOK, body)
}

// Health reports service and store health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"service": "healthy",
		"redis":   "healthy",
	}
	code := http.StatusOK

	if err := h.health.Health(); err != nil {
		h.logger.Error("Health check failed", err)
		status["redis"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, status)
}

func splitNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
