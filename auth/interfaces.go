// Package auth provides authentication and authorization for the admin API. API keys are the only
// credential; a key may be limited to read-only access.
package auth

import (
	"context"
	"errors"
)

// PermissionType represents different permission types for authorization
type PermissionType int

const (
	ReadPerm PermissionType = iota
	WritePerm
	DeletePerm
)

func (p PermissionType) String() string {
	switch p {
	case ReadPerm:
		return "read"
	case WritePerm:
		return "write"
	case DeletePerm:
		return "delete"
	default:
		return "unknown"
	}
}

// Common authentication/authorization errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidToken         = errors.New("invalid token")
)

// Authenticator defines the interface for caller authentication
type Authenticator interface {
	// Authenticate validates a token and returns the associated principal
	Authenticate(ctx context.Context, token string) (principal string, err error)
}

// Authorizer defines the interface for authorization checks
type Authorizer interface {
	// Authorize checks if principal may perform perm on the named resource
	Authorize(ctx context.Context, principal string, resource string, perm PermissionType) error
}
