package token

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Mask derives the wire form of a secret from the secret and a context
// string. The authorization server never sees the raw secret; it expects
// base64(sha256(secret + normalized context)). The context is lowercased
// and trimmed first so that repeated attempts with differently cased or
// padded input always derive the same value.
//
// The client secret is masked with the client ID as context, the password
// with the username.
func Mask(secret, context string) string {
	normalized := strings.ToLower(strings.TrimSpace(context))
	sum := sha256.Sum256([]byte(secret + normalized))
	return base64.StdEncoding.EncodeToString(sum[:])
}
