package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/core"
	"github.com/ebogdum/archivefs/core/log"
)

const (
	defaultListLimit = 1000
	maxListLimit     = 10000
	listChunk        = 128
)

// DirectoryListingResponse represents the response for directory listing operations
type DirectoryListingResponse struct {
	Handle    core.ArchiveHandle `json:"handle"`
	Path      string             `json:"path"`
	Count     int                `json:"count"`
	Truncated bool               `json:"truncated"`
	Items     []backends.Entry   `json:"items"`
}

// V1ListDirectory handles GET /v1/archives/{handle}/directories/*?limit=N
func V1ListDirectory(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, path, err := fileTarget(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		limit := defaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				SendErrorResponse(w, logger, badRequest("limit must be a positive integer"), http.StatusBadRequest)
				return
			}
			limit = min(parsed, maxListLimit)
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		dir, err := manager.OpenDirectoryFromArchive(ctx, handle, path)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		defer dir.Close()

		items := make([]backends.Entry, 0)
		truncated := false
		for {
			chunk, err := dir.Read(min(listChunk, limit-len(items)+1))
			if err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
			if len(chunk) == 0 {
				break
			}
			items = append(items, chunk...)
			if len(items) > limit {
				items, truncated = items[:limit], true
				break
			}
		}

		text, _ := path.AsString()
		SendJSONResponse(w, http.StatusOK, DirectoryListingResponse{
			Handle:    handle,
			Path:      text,
			Count:     len(items),
			Truncated: truncated,
			Items:     items,
		})

		logger.Debug("Directory listed via API",
			zap.Uint64("handle", uint64(handle)),
			log.Path("path", path),
			zap.Int("items_count", len(items)))
	}
}

// V1CreateDirectory handles POST /v1/archives/{handle}/directories/*
func V1CreateDirectory(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, path, err := fileTarget(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		if err := manager.CreateDirectoryFromArchive(ctx, handle, path); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// V1DeleteDirectory handles DELETE /v1/archives/{handle}/directories/*?recursive=true
func V1DeleteDirectory(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, path, err := fileTarget(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		if r.URL.Query().Get("recursive") == "true" {
			err = manager.DeleteDirectoryRecursivelyFromArchive(ctx, handle, path)
		} else {
			err = manager.DeleteDirectoryFromArchive(ctx, handle, path)
		}
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
