package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/auth"
	"github.com/ebogdum/archivefs/core"
	"github.com/ebogdum/archivefs/metadata"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errBadRequest marks malformed requests
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{errBadRequest, http.StatusBadRequest, "BAD_REQUEST"},
	{core.ErrInvalidHandle, http.StatusNotFound, "INVALID_HANDLE"},
	{core.ErrArchiveNotRegistered, http.StatusNotFound, "ARCHIVE_NOT_REGISTERED"},
	{core.ErrDuplicateRegistration, http.StatusConflict, "DUPLICATE_REGISTRATION"},
	{metadata.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{metadata.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
	{metadata.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{metadata.ErrReadOnly, http.StatusForbidden, "READ_ONLY"},
	{metadata.ErrNotFormatted, http.StatusConflict, "NOT_FORMATTED"},
	{metadata.ErrUnsupported, http.StatusNotImplemented, "UNSUPPORTED"},
	{metadata.ErrInvalidPath, http.StatusBadRequest, "INVALID_PATH"},
	{metadata.ErrInvalidMode, http.StatusBadRequest, "INVALID_MODE"},
	{metadata.ErrNotEnoughSpace, http.StatusInsufficientStorage, "NOT_ENOUGH_SPACE"},
	{metadata.ErrNotAFile, http.StatusConflict, "NOT_A_FILE"},
	{metadata.ErrNotADirectory, http.StatusConflict, "NOT_A_DIRECTORY"},
	{metadata.ErrDirectoryNotEmpty, http.StatusConflict, "DIRECTORY_NOT_EMPTY"},
	{auth.ErrAuthenticationFailed, http.StatusUnauthorized, "AUTHENTICATION_FAILED"},
	{auth.ErrPermissionDenied, http.StatusForbidden, "PERMISSION_DENIED"},
}

// SendErrorResponse sends a standardized JSON error response. Known errors pick their own status;
// anything else is sent with defaultStatusCode.
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, defaultStatusCode int) {
	statusCode := defaultStatusCode
	errorCode := "INTERNAL_ERROR"
	for _, candidate := range errorStatus {
		if errors.Is(err, candidate.err) {
			statusCode, errorCode = candidate.status, candidate.code
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Code:    errorCode,
		Message: err.Error(),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
	}

	logger.Debug("Error response sent",
		zap.String("error_code", errorCode),
		zap.Int("status_code", statusCode),
		zap.Error(err))
}

// SendJSONResponse sends a JSON response with any data structure
func SendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Fprintf(w, `{"error":"Failed to encode response"}`)
	}
}
