// Package resolver maps free-text driver names to stable customer IDs,
// consulting the identifier cache before the data API.
package resolver

import (
	"context"
	"fmt"
	"net/url"

	"racing-gateway/internal/common/errors"
	"racing-gateway/internal/common/logging"
	"racing-gateway/internal/store"
	"racing-gateway/internal/token"
	"racing-gateway/internal/upstream"
)

// Origin reports which tier served a resolution.
type Origin string

const (
	// OriginCache means the identifier store had the name.
	OriginCache Origin = "cache"
	// OriginUpstream means a live lookup was performed.
	OriginUpstream Origin = "upstream"
)

// SentinelNotFound is the identifier returned when the data API knows no
// driver by the queried name. It is a valid outcome for the caller, but
// it is never written to the identifier store.
const SentinelNotFound int64 = 0

// Result is the outcome of one resolution.
type Result struct {
	CustID int64
	Name   string
	Origin Origin
}

// NotFound reports whether the result is the not-found sentinel.
func (r *Result) NotFound() bool {
	return r.CustID == SentinelNotFound
}

// candidate is one entry of the data API's driver lookup response.
type candidate struct {
	CustID      int64  `json:"cust_id"`
	DisplayName string `json:"display_name"`
}

// TokenProvider supplies access tokens for authenticated lookups.
type TokenProvider interface {
	EnsureToken(ctx context.Context) (*token.Envelope, error)
}

// Service resolves names against the identifier cache and the data API.
type Service struct {
	identifiers store.IdentifierStore
	tokens      TokenProvider
	api         *upstream.Client
	logger      logging.Logger
}

// NewService creates a resolution service
func NewService(identifiers store.IdentifierStore, tokens TokenProvider, api *upstream.Client, logger logging.Logger) (*Service, error) {
	if identifiers == nil {
		return nil, errors.ValidationError("identifier store is required")
	}
	if tokens == nil {
		return nil, errors.ValidationError("token provider is required")
	}
	if api == nil {
		return nil, errors.ValidationError("upstream client is required")
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Service{identifiers: identifiers, tokens: tokens, api: api, logger: logger}, nil
}

// Resolve maps name to a customer ID. Cache hits return immediately and
// cost no token acquisition; on a miss an access token is ensured and the
// data API's driver lookup is queried, and the chosen candidate is
// written through to the cache.
//
// An empty candidate list resolves to the not-found sentinel, which is
// returned but not cached. Authentication failures propagate unchanged;
// the single re-authentication retry belongs to the caller.
func (s *Service) Resolve(ctx context.Context, name string) (*Result, error) {
	if name == "" {
		return nil, errors.ValidationError("name is required")
	}

	custID, found, err := s.identifiers.Get(ctx, name)
	if err != nil {
		s.logger.Warn("Identifier cache read failed, falling through to lookup",
			logging.Field{Key: "name", Value: name},
			logging.Field{Key: "error", Value: err.Error()},
		)
	} else if found {
		return &Result{CustID: custID, Name: name, Origin: OriginCache}, nil
	}

	envelope, err := s.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}

	chosen, err := s.lookup(ctx, name, envelope.AccessToken)
	if err != nil {
		return nil, err
	}

	if chosen == nil {
		s.logger.Info("No driver matched lookup",
			logging.Field{Key: "name", Value: name},
		)
		return &Result{
			CustID: SentinelNotFound,
			Name:   fmt.Sprintf("Not found: %s", name),
			Origin: OriginUpstream,
		}, nil
	}

	// The sentinel is reserved; a candidate carrying it would poison the
	// cache.
	if chosen.CustID > SentinelNotFound {
		if err := s.identifiers.Put(ctx, name, chosen.CustID); err != nil {
			s.logger.Warn("Identifier cache write failed",
				logging.Field{Key: "name", Value: name},
				logging.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	return &Result{CustID: chosen.CustID, Name: chosen.DisplayName, Origin: OriginUpstream}, nil
}

// lookup queries the driver search endpoint and applies the
// disambiguation policy: an exact display-name match wins, otherwise the
// first candidate. The first exact match wins when several match exactly.
func (s *Service) lookup(ctx context.Context, name string, accessToken string) (*candidate, error) {
	path := "/data/lookup/drivers?search_term=" + url.QueryEscape(name)

	var candidates []candidate
	if err := s.api.FetchJSON(ctx, path, accessToken, &candidates); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	for i := range candidates {
		if candidates[i].DisplayName == name {
			return &candidates[i], nil
		}
	}
	return &candidates[0], nil
}
