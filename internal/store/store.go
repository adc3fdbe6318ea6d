// Package store implements the shared-cache protocol on top of the
// key-value engine: token records keyed by username, identifier records
// keyed by display name, and TTL-bounded profile documents.
//
// Expiry is enforced by comparison against the current time at read
// time. The engine may also auto-evict expired items, but readers never
// rely on that for correctness.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// TokenRecord is the persisted OAuth token pair for one identity.
// The access and refresh expiries run on independent clocks: a record
// may hold a live refresh token after its access token has expired.
type TokenRecord struct {
	AccessToken   string    `json:"access_token"`
	TokenType     string    `json:"token_type"`
	Scope         string    `json:"scope,omitempty"`
	AccessExpiry  time.Time `json:"access_expiry"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	RefreshExpiry time.Time `json:"refresh_expiry,omitempty"`
}

// AccessValid reports whether the access token is usable at the given time.
func (r *TokenRecord) AccessValid(now time.Time) bool {
	return r.AccessToken != "" && now.Before(r.AccessExpiry)
}

// RefreshValid reports whether the refresh token is usable at the given time.
func (r *TokenRecord) RefreshValid(now time.Time) bool {
	return r.RefreshToken != "" && now.Before(r.RefreshExpiry)
}

// TokenStore persists token records keyed by username.
type TokenStore interface {
	// Load returns the stored record, or nil when absent.
	Load(ctx context.Context, username string) (*TokenRecord, error)
	// Save overwrites the record for username.
	Save(ctx context.Context, username string, record *TokenRecord) error
}

// IdentifierStore persists resolved customer IDs keyed by display name.
// An identifier, once resolved, is a permanent fact: records carry no expiry.
type IdentifierStore interface {
	// Get returns the identifier for name and whether one is cached.
	Get(ctx context.Context, name string) (int64, bool, error)
	// Put writes through the resolved identifier for name.
	Put(ctx context.Context, name string, custID int64) error
}

// ProfileStore persists profile documents with an absolute expiry.
type ProfileStore interface {
	// Get returns the cached document for name, treating past-expiry
	// records as absent.
	Get(ctx context.Context, name string) (json.RawMessage, bool, error)
	// Put caches the document for name with a fresh TTL.
	Put(ctx context.Context, name string, profile json.RawMessage, ttl time.Duration) error
}

// profileRecord is the wire shape of a cached profile document.
type profileRecord struct {
	Profile json.RawMessage `json:"profile"`
	Expiry  time.Time       `json:"expiry"`
}
