// Package profile serves driver profile documents for batches of names,
// layering a TTL-bounded profile cache over the resolution service and
// the data API.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"racing-gateway/internal/common/errors"
	"racing-gateway/internal/common/logging"
	"racing-gateway/internal/resolver"
	"racing-gateway/internal/store"
	"racing-gateway/internal/token"
	"racing-gateway/internal/upstream"
)

// Resolver maps a name to a customer ID.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*resolver.Result, error)
}

// TokenProvider supplies and force-renews access tokens.
type TokenProvider interface {
	EnsureToken(ctx context.Context) (*token.Envelope, error)
	Refresh(ctx context.Context) (*token.Envelope, error)
}

// Result is the per-name outcome of a batch lookup: a profile document or
// an error, never both.
type Result struct {
	Profile json.RawMessage
	Err     error
}

// Config contains configuration for the profile service
type Config struct {
	// CacheTTL bounds how long a fetched profile is served from cache,
	// defaults to one hour
	CacheTTL time.Duration
}

// Service fetches profile documents with two cache tiers in front of the
// data API: the profile cache here and the identifier cache inside the
// resolution service.
type Service struct {
	config   *Config
	profiles store.ProfileStore
	resolver Resolver
	tokens   TokenProvider
	api      *upstream.Client
	logger   logging.Logger
}

// NewService creates a profile service
func NewService(config *Config, profiles store.ProfileStore, nameResolver Resolver, tokens TokenProvider, api *upstream.Client, logger logging.Logger) (*Service, error) {
	if profiles == nil {
		return nil, errors.ValidationError("profile store is required")
	}
	if nameResolver == nil {
		return nil, errors.ValidationError("resolver is required")
	}
	if tokens == nil {
		return nil, errors.ValidationError("token provider is required")
	}
	if api == nil {
		return nil, errors.ValidationError("upstream client is required")
	}
	if config == nil {
		config = &Config{}
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Hour
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Service{
		config:   config,
		profiles: profiles,
		resolver: nameResolver,
		tokens:   tokens,
		api:      api,
		logger:   logger,
	}, nil
}

// GetProfiles produces a profile or an error for every requested name.
// Names are processed sequentially and independently; one name's failure
// never aborts the rest. The access token is acquired once for the whole
// batch, and each name gets at most one re-authentication retry. A token
// refreshed for one name replaces the shared token for the names after it.
//
// An error return means the batch could not start at all; per-name
// failures live in the result map.
func (s *Service) GetProfiles(ctx context.Context, names []string) (map[string]Result, error) {
	if len(names) == 0 {
		return nil, errors.ValidationError("at least one name is required")
	}

	envelope, err := s.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}
	accessToken := envelope.AccessToken

	results := make(map[string]Result, len(names))
	for _, name := range names {
		results[name] = s.getProfile(ctx, name, &accessToken)
	}
	return results, nil
}

// getProfile handles one name: profile cache, then resolution, then the
// authenticated fetch with its single re-authentication retry.
func (s *Service) getProfile(ctx context.Context, name string, accessToken *string) Result {
	cached, found, err := s.profiles.Get(ctx, name)
	if err != nil {
		s.logger.Warn("Profile cache read failed, falling through to fetch",
			logging.Field{Key: "name", Value: name},
			logging.Field{Key: "error", Value: err.Error()},
		)
	} else if found {
		return Result{Profile: cached}
	}

	resolved, err := s.resolver.Resolve(ctx, name)
	if err != nil {
		return Result{Err: err}
	}
	if resolved.NotFound() || resolved.CustID <= 0 {
		return Result{Err: errors.NotFoundError(fmt.Sprintf("driver %q", name))}
	}

	doc, err := s.fetchProfile(ctx, resolved.CustID, *accessToken)
	if err != nil && errors.IsType(err, errors.ErrTypeAuth) {
		// The shared token was rejected upstream. Renew it once and
		// retry; a second rejection is this name's final answer.
		s.logger.Info("Profile fetch rejected, re-authenticating",
			logging.Field{Key: "name", Value: name},
		)
		refreshed, refreshErr := s.tokens.Refresh(ctx)
		if refreshErr != nil {
			return Result{Err: refreshErr}
		}
		*accessToken = refreshed.AccessToken
		doc, err = s.fetchProfile(ctx, resolved.CustID, *accessToken)
	}
	if err != nil {
		return Result{Err: err}
	}

	if err := s.profiles.Put(ctx, name, doc, s.config.CacheTTL); err != nil {
		s.logger.Warn("Profile cache write failed",
			logging.Field{Key: "name", Value: name},
			logging.Field{Key: "error", Value: err.Error()},
		)
	}
	return Result{Profile: doc}
}

func (s *Service) fetchProfile(ctx context.Context, custID int64, accessToken string) (json.RawMessage, error) {
	path := "/data/member/profile?cust_id=" + strconv.FormatInt(custID, 10)

	var doc json.RawMessage
	if err := s.api.FetchJSON(ctx, path, accessToken, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
