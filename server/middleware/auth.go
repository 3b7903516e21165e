package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/auth"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	RequestIDKey contextKey = "request_id"
)

// V1AuthMiddleware creates middleware for API key authentication
func V1AuthMiddleware(authenticator auth.Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing Authorization header")
				sendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), authHeader)
			if err != nil {
				logger.Debug("Authentication failed", zap.Error(err))
				sendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			logger.Debug("Caller authenticated", zap.String("principal", principal))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// V1RequirePermission rejects callers the authorizer does not allow perm. GET and HEAD requests
// need read permission, DELETE needs delete, everything else write.
func V1RequirePermission(authorizer auth.Authorizer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				sendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
				return
			}

			if err := authorizer.Authorize(r.Context(), principal, r.URL.Path, permissionFor(r.Method)); err != nil {
				logger.Debug("Permission denied",
					zap.String("principal", principal),
					zap.String("method", r.Method),
					zap.Error(err))
				sendErrorResponse(w, logger, auth.ErrPermissionDenied, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func permissionFor(method string) auth.PermissionType {
	switch method {
	case http.MethodGet, http.MethodHead:
		return auth.ReadPerm
	case http.MethodDelete:
		return auth.DeletePerm
	default:
		return auth.WritePerm
	}
}

// V1RequestIDMiddleware adds a unique request ID to each request context
func V1RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			w.Header().Set("X-Request-ID", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the authenticated principal from request context
func GetPrincipal(ctx context.Context) (string, bool) {
	principal, ok := ctx.Value(principalKey).(string)
	return principal, ok
}

// GetRequestID extracts the request id from request context
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// sendErrorResponse sends a JSON error response
func sendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, statusCode int) {
	errorCode := "INTERNAL_ERROR"
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed):
		errorCode = "AUTHENTICATION_FAILED"
	case errors.Is(err, auth.ErrPermissionDenied):
		errorCode = "PERMISSION_DENIED"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"code":    errorCode,
		"message": err.Error(),
	}); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
