package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/core"
	"github.com/ebogdum/archivefs/core/log"
)

// operationTimeout bounds every manager call made for one request
const operationTimeout = 30 * time.Second

func operationContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), operationTimeout)
}

// OpenArchiveRequest is the body of POST /v1/archives
type OpenArchiveRequest struct {
	IDCode string      `json:"id_code"` // type name or number, e.g. "SDMC" or "0x9"
	Path   PathRequest `json:"path"`
}

// OpenArchiveResponse carries the handle of a newly opened archive
type OpenArchiveResponse struct {
	Handle core.ArchiveHandle `json:"handle"`
	Type   string             `json:"type"`
}

// FreeBytesResponse is the body of GET /v1/archives/{handle}/free
type FreeBytesResponse struct {
	Handle    core.ArchiveHandle `json:"handle"`
	FreeBytes uint64             `json:"free_bytes"`
}

// V1OpenArchive handles POST /v1/archives
func V1OpenArchive(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenArchiveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		idCode, err := idCodeParam(req.IDCode)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		path, err := req.Path.ToPath()
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		handle, err := manager.OpenArchive(ctx, idCode, path)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		logger.Info("Archive opened via API",
			zap.Stringer("id_code", idCode),
			zap.Uint64("handle", uint64(handle)),
			log.Path("path", path))

		SendJSONResponse(w, http.StatusCreated, OpenArchiveResponse{Handle: handle, Type: idCode.String()})
	}
}

// V1ListArchives handles GET /v1/archives
func V1ListArchives(manager *core.ArchiveManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SendJSONResponse(w, http.StatusOK, manager.OpenHandles())
	}
}

// V1CloseArchive handles DELETE /v1/archives/{handle}
func V1CloseArchive(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, err := handleParam(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		if err := manager.CloseArchive(ctx, handle); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// V1FreeBytes handles GET /v1/archives/{handle}/free
func V1FreeBytes(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, err := handleParam(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		free, err := manager.GetFreeBytesInArchive(ctx, handle)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		SendJSONResponse(w, http.StatusOK, FreeBytesResponse{Handle: handle, FreeBytes: free})
	}
}
