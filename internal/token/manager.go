// Package token owns the OAuth token lifecycle for the single configured
// identity: credential masking, the password and refresh grants, expiry
// classification on two clocks, and persistence to the shared token store.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"racing-gateway/internal/circuitbreaker"
	"racing-gateway/internal/common/errors"
	commonhttp "racing-gateway/internal/common/http"
	"racing-gateway/internal/common/logging"
	"racing-gateway/internal/common/utils"
	"racing-gateway/internal/secrets"
	"racing-gateway/internal/store"
)

// Source reports where an access token came from.
type Source string

const (
	// SourceCached means the stored access token was still valid.
	SourceCached Source = "cached"
	// SourceRefreshed means the refresh grant produced a new token pair.
	SourceRefreshed Source = "refreshed"
	// SourceFresh means a full password authentication was performed.
	SourceFresh Source = "fresh"
)

// tokenState classifies a stored record against the two expiry clocks.
type tokenState int

const (
	// stateValid: the access token is unexpired and usable as-is.
	stateValid tokenState = iota
	// stateRefreshable: the access token expired but a live refresh token
	// remains, so the refresh grant can be attempted.
	stateRefreshable
	// stateUnusable: nothing stored is usable, a full authentication is
	// required.
	stateUnusable
)

// Envelope is the result of a token acquisition, returned to callers
// together with the path that produced it.
type Envelope struct {
	AccessToken string
	TokenType   string
	Scope       string
	Expiry      time.Time
	Source      Source
}

// ExpiresIn returns the remaining access token lifetime in whole seconds.
func (e *Envelope) ExpiresIn() int {
	remaining := time.Until(e.Expiry)
	if remaining < 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// tokenResponse maps the authorization server's token endpoint response.
type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int    `json:"expires_in"`
	RefreshToken          string `json:"refresh_token,omitempty"`
	RefreshTokenExpiresIn int    `json:"refresh_token_expires_in,omitempty"`
	Scope                 string `json:"scope,omitempty"`
}

const (
	grantPassword = "password_limited"
	grantRefresh  = "refresh_token"
)

// Config contains configuration for the token manager
type Config struct {
	// TokenURL is the authorization server's token endpoint
	TokenURL string
	// Scope requested on the password grant
	Scope string
	// UserAgent identifies this service to the authorization server
	UserAgent string
	// Timeout for each token request, defaults to 30s
	Timeout time.Duration
	// AccessTokenLifetime is assumed when the server omits expires_in,
	// defaults to 10 minutes
	AccessTokenLifetime time.Duration
	// RefreshTokenLifetime is assumed when the server omits
	// refresh_token_expires_in, defaults to 7 days
	RefreshTokenLifetime time.Duration
	// Retry overrides the default retry policy, used by tests
	Retry *utils.RetryConfig
}

// Manager produces valid access tokens for the configured identity,
// refreshing or re-authenticating as needed. It is stateless apart from
// its collaborators and safe for concurrent use; two callers that both
// observe an expired token may both authenticate, and the last store
// write wins. Either resulting token is independently usable.
type Manager struct {
	config  *Config
	secrets secrets.Store
	tokens  store.TokenStore
	client  *http.Client
	breaker *circuitbreaker.GoBreakerAdapter
	retry   utils.RetryConfig
	logger  logging.Logger
}

// NewManager creates a token manager
func NewManager(config *Config, credentialStore secrets.Store, tokenStore store.TokenStore, logger logging.Logger) (*Manager, error) {
	if config == nil || config.TokenURL == "" {
		return nil, errors.ValidationError("token endpoint URL is required")
	}
	if credentialStore == nil {
		return nil, errors.ValidationError("credential store is required")
	}
	if tokenStore == nil {
		return nil, errors.ValidationError("token store is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.AccessTokenLifetime == 0 {
		config.AccessTokenLifetime = 10 * time.Minute
	}
	if config.RefreshTokenLifetime == 0 {
		config.RefreshTokenLifetime = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	retry := utils.DefaultRetryConfig()
	if config.Retry != nil {
		retry = *config.Retry
	}
	retry.Classify = classifyExchangeError

	return &Manager{
		config:  config,
		secrets: credentialStore,
		tokens:  tokenStore,
		client:  commonhttp.NewHTTPClientWithTimeout(config.Timeout),
		breaker: circuitbreaker.NewGoBreaker("oauth-token-endpoint", circuitbreaker.OAuthConfig, logger),
		retry:   retry,
		logger:  logger,
	}, nil
}

// classifyExchangeError decides whether a failed token exchange should be
// repeated. Rejected credentials stay rejected; validation errors are
// caller bugs. Everything else, including rate limiting and malformed
// responses, is transient.
func classifyExchangeError(err error) utils.Decision {
	switch errors.GetType(err) {
	case errors.ErrTypeAuth, errors.ErrTypeValidation:
		return utils.DecisionFatal
	}
	return utils.DecisionRetry
}

// EnsureToken returns a usable access token, preferring the stored one.
// A stored record is classified against both expiry clocks at read time:
// a valid access token is returned as-is, an expired one with a live
// refresh token triggers the refresh grant (falling back to a password
// authentication when the grant fails), and anything else triggers a
// password authentication directly.
func (m *Manager) EnsureToken(ctx context.Context) (*Envelope, error) {
	cred, err := m.secrets.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	record := m.loadRecord(ctx, cred.Username)
	now := time.Now()

	switch classify(record, now) {
	case stateValid:
		return newEnvelope(record, SourceCached), nil

	case stateRefreshable:
		refreshed, err := m.exchange(ctx, cred, grantRefresh, record.RefreshToken)
		if err == nil {
			m.persist(ctx, cred.Username, refreshed)
			return newEnvelope(refreshed, SourceRefreshed), nil
		}
		m.logger.Warn("Refresh grant failed, falling back to password authentication",
			logging.Field{Key: "username", Value: cred.Username},
			logging.Field{Key: "error", Value: err.Error()},
		)
	}

	fresh, err := m.exchange(ctx, cred, grantPassword, "")
	if err != nil {
		return nil, err
	}
	m.persist(ctx, cred.Username, fresh)
	return newEnvelope(fresh, SourceFresh), nil
}

// Refresh forces a new token pair, skipping the valid-token fast path.
// Downstream services call this after an upstream 401: the stored access
// token looked fine locally but was rejected, so returning it again would
// loop. The refresh grant is attempted when a live refresh token exists,
// else a full password authentication is performed.
func (m *Manager) Refresh(ctx context.Context) (*Envelope, error) {
	cred, err := m.secrets.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	record := m.loadRecord(ctx, cred.Username)
	if record != nil && record.RefreshValid(time.Now()) {
		refreshed, err := m.exchange(ctx, cred, grantRefresh, record.RefreshToken)
		if err == nil {
			m.persist(ctx, cred.Username, refreshed)
			return newEnvelope(refreshed, SourceRefreshed), nil
		}
		m.logger.Warn("Refresh grant failed, falling back to password authentication",
			logging.Field{Key: "username", Value: cred.Username},
			logging.Field{Key: "error", Value: err.Error()},
		)
	}

	fresh, err := m.exchange(ctx, cred, grantPassword, "")
	if err != nil {
		return nil, err
	}
	m.persist(ctx, cred.Username, fresh)
	return newEnvelope(fresh, SourceFresh), nil
}

// loadRecord reads the stored token pair. Read failures are logged and
// treated as a miss; the store is a cache, not the source of truth, and a
// fresh authentication recovers.
func (m *Manager) loadRecord(ctx context.Context, username string) *store.TokenRecord {
	record, err := m.tokens.Load(ctx, username)
	if err != nil {
		m.logger.Warn("Failed to load stored token, re-authenticating",
			logging.Field{Key: "username", Value: username},
			logging.Field{Key: "error", Value: err.Error()},
		)
		return nil
	}
	return record
}

// persist writes the new token pair through to the shared store. Write
// failures are logged and swallowed; the token in hand is still valid.
func (m *Manager) persist(ctx context.Context, username string, record *store.TokenRecord) {
	if err := m.tokens.Save(ctx, username, record); err != nil {
		m.logger.Error("Failed to persist token", err,
			logging.Field{Key: "username", Value: username},
		)
	}
}

func classify(record *store.TokenRecord, now time.Time) tokenState {
	if record == nil {
		return stateUnusable
	}
	if record.AccessValid(now) {
		return stateValid
	}
	if record.RefreshValid(now) {
		return stateRefreshable
	}
	return stateUnusable
}

func newEnvelope(record *store.TokenRecord, source Source) *Envelope {
	return &Envelope{
		AccessToken: record.AccessToken,
		TokenType:   record.TokenType,
		Scope:       record.Scope,
		Expiry:      record.AccessExpiry,
		Source:      source,
	}
}

// exchange performs one token grant against the authorization server,
// retried with exponential backoff up to the configured ceiling.
func (m *Manager) exchange(ctx context.Context, cred *secrets.Credential, grant string, refreshToken string) (*store.TokenRecord, error) {
	form, err := m.grantForm(cred, grant, refreshToken)
	if err != nil {
		return nil, err
	}

	var record *store.TokenRecord
	err = utils.RetryWithBackoff(ctx, m.retry, func() error {
		var attemptErr error
		record, attemptErr = m.exchangeOnce(ctx, form)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (m *Manager) grantForm(cred *secrets.Credential, grant string, refreshToken string) (url.Values, error) {
	form := url.Values{}
	form.Set("grant_type", grant)
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", Mask(cred.ClientSecret, cred.ClientID))

	switch grant {
	case grantPassword:
		form.Set("username", cred.Username)
		form.Set("password", Mask(cred.Password, cred.Username))
		if m.config.Scope != "" {
			form.Set("scope", m.config.Scope)
		}
	case grantRefresh:
		if refreshToken == "" {
			return nil, errors.ValidationError("refresh grant requires a refresh token")
		}
		form.Set("refresh_token", refreshToken)
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unsupported grant type: %s", grant))
	}
	return form, nil
}

func (m *Manager) exchangeOnce(ctx context.Context, form url.Values) (*store.TokenRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.UpstreamError("failed to create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if m.config.UserAgent != "" {
		req.Header.Set("User-Agent", m.config.UserAgent)
	}

	var resp *http.Response
	err = m.breaker.Execute(ctx, func() error {
		var httpErr error
		resp, httpErr = m.client.Do(req)
		return httpErr
	})
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			return nil, appErr
		}
		return nil, errors.UpstreamError("token request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parsing
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.AuthError(fmt.Sprintf("authentication failed with status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		rateErr := errors.RateLimitError("oauth token endpoint")
		if hint, ok := commonhttp.RetryAfter(resp.Header); ok {
			rateErr = rateErr.WithRetryAfter(hint)
		}
		return nil, rateErr
	default:
		return nil, errors.UpstreamError(fmt.Sprintf("token endpoint returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.UpstreamError("failed to read token response", err)
	}
	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.UpstreamError("failed to decode token response", err)
	}
	if parsed.AccessToken == "" {
		return nil, errors.UpstreamError("token response carried no access token", nil)
	}

	return m.newRecord(&parsed, time.Now()), nil
}

// newRecord converts a token endpoint response into a stored record with
// absolute expiries. The access and refresh lifetimes run on independent
// clocks; the refresh expiry is only set when a refresh token was issued.
func (m *Manager) newRecord(resp *tokenResponse, now time.Time) *store.TokenRecord {
	accessLifetime := m.config.AccessTokenLifetime
	if resp.ExpiresIn > 0 {
		accessLifetime = time.Duration(resp.ExpiresIn) * time.Second
	}

	record := &store.TokenRecord{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		AccessExpiry: now.Add(accessLifetime),
	}

	if resp.RefreshToken != "" {
		refreshLifetime := m.config.RefreshTokenLifetime
		if resp.RefreshTokenExpiresIn > 0 {
			refreshLifetime = time.Duration(resp.RefreshTokenExpiresIn) * time.Second
		}
		record.RefreshToken = resp.RefreshToken
		record.RefreshExpiry = now.Add(refreshLifetime)
	}
	return record
}
