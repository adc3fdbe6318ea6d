// Package secrets retrieves the OAuth credential blob from the external
// credential store. The blob is fetched once per invocation and never
// persisted beyond process lifetime.
package secrets

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"racing-gateway/internal/common/errors"
)

// Credential is the structured credential blob for the single identity
// this gateway authenticates as.
type Credential struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
	Username     string `json:"username" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

// Store retrieves the credential blob by name from an external secret store.
type Store interface {
	Fetch(ctx context.Context) (*Credential, error)
}

var validate = validator.New()

// parseCredential decodes and validates a raw secret payload.
func parseCredential(raw []byte) (*Credential, error) {
	var credential Credential
	if err := json.Unmarshal(raw, &credential); err != nil {
		return nil, errors.CredentialError("secret payload is not valid JSON", err)
	}

	if err := validate.Struct(&credential); err != nil {
		return nil, errors.CredentialError("secret is missing required fields", err)
	}

	return &credential, nil
}

// StaticStore serves a fixed credential. Used for local development and tests.
type StaticStore struct {
	credential Credential
}

func NewStaticStore(credential Credential) *StaticStore {
	return &StaticStore{credential: credential}
}

func (s *StaticStore) Fetch(ctx context.Context) (*Credential, error) {
	if err := validate.Struct(&s.credential); err != nil {
		return nil, errors.CredentialError("static credential is missing required fields", err)
	}
	credential := s.credential
	return &credential, nil
}
