package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
)

// ReadOnlySuffix marks a configured key as read-only, e.g. "s3cr3t:read".
const ReadOnlySuffix = ":read"

type apiKey struct {
	principal string
	readOnly  bool
}

// APIKeyAuthenticator implements authentication using static API keys. It also authorizes: read-only
// keys may only read.
type APIKeyAuthenticator struct {
	validKeys map[[sha256.Size]byte]apiKey
}

// NewAPIKeyAuthenticator creates a new API key authenticator
func NewAPIKeyAuthenticator(keys []string) *APIKeyAuthenticator {
	validKeys := make(map[[sha256.Size]byte]apiKey)
	for i, key := range keys {
		readOnly := strings.HasSuffix(key, ReadOnlySuffix)
		key = strings.TrimSuffix(key, ReadOnlySuffix)
		if key == "" {
			continue
		}
		validKeys[sha256.Sum256([]byte(key))] = apiKey{
			principal: fmt.Sprintf("key-%d", i),
			readOnly:  readOnly,
		}
	}

	return &APIKeyAuthenticator{
		validKeys: validKeys,
	}
}

// Authenticate validates a token and returns the principal of the matching key
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	// Remove "Bearer " prefix if present
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", ErrAuthenticationFailed
	}

	sum := sha256.Sum256([]byte(token))
	for candidate, key := range a.validKeys {
		if subtle.ConstantTimeCompare(candidate[:], sum[:]) == 1 {
			return key.principal, nil
		}
	}
	return "", ErrAuthenticationFailed
}

// Authorize lets full keys do anything and read-only keys only read
func (a *APIKeyAuthenticator) Authorize(ctx context.Context, principal string, resource string, perm PermissionType) error {
	for _, key := range a.validKeys {
		if key.principal != principal {
			continue
		}
		if key.readOnly && perm != ReadPerm {
			return fmt.Errorf("%w: %s is read-only, cannot %s %s", ErrPermissionDenied, principal, perm, resource)
		}
		return nil
	}
	return ErrPermissionDenied
}

var (
	_ Authenticator = (*APIKeyAuthenticator)(nil)
	_ Authorizer    = (*APIKeyAuthenticator)(nil)
)
