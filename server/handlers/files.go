package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/core"
	"github.com/ebogdum/archivefs/core/log"
)

// maxWriteBytes caps the body of a single file write
const maxWriteBytes = 64 << 20

// WriteResponse is the body returned after writing into a file
type WriteResponse struct {
	Offset  int64 `json:"offset"`
	Written int64 `json:"written"`
}

// V1GetFile handles GET /v1/archives/{handle}/files/*. Range requests are honoured.
func V1GetFile(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, path, err := fileTarget(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		file, err := manager.OpenFileFromArchive(ctx, handle, path, backends.ModeRead)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		defer file.Close()

		size, err := file.Size()
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, "", time.Time{}, io.NewSectionReader(file, 0, size))

		logger.Debug("File served via API",
			zap.Uint64("handle", uint64(handle)),
			log.Path("path", path),
			zap.Int64("size", log.SanitizeSize(size)))
	}
}

// V1PutFile handles PUT /v1/archives/{handle}/files/*?size=N, creating a zero-filled file
func V1PutFile(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, path, err := fileTarget(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		size, err := strconv.ParseInt(r.URL.Query().Get("size"), 10, 64)
		if err != nil || size < 0 {
			SendErrorResponse(w, logger, badRequest("size must be a non-negative integer"), http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		if err := manager.CreateFileInArchive(ctx, handle, path, size); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// V1PostFile handles POST /v1/archives/{handle}/files/*?offset=N, writing the body into an
// existing file
func V1PostFile(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, path, err := fileTarget(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		var offset int64
		if v := r.URL.Query().Get("offset"); v != "" {
			offset, err = strconv.ParseInt(v, 10, 64)
			if err != nil || offset < 0 {
				SendErrorResponse(w, logger, badRequest("offset must be a non-negative integer"), http.StatusBadRequest)
				return
			}
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		file, err := manager.OpenFileFromArchive(ctx, handle, path, backends.ModeWrite)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		written, err := io.Copy(io.NewOffsetWriter(file, offset), http.MaxBytesReader(w, r.Body, maxWriteBytes))
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusOK, WriteResponse{Offset: offset, Written: written})
	}
}

// V1DeleteFile handles DELETE /v1/archives/{handle}/files/*
func V1DeleteFile(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, path, err := fileTarget(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		if err := manager.DeleteFileFromArchive(ctx, handle, path); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func fileTarget(r *http.Request) (core.ArchiveHandle, backends.Path, error) {
	handle, err := handleParam(r)
	if err != nil {
		return 0, backends.Path{}, err
	}
	path, err := wildcardPath(r)
	if err != nil {
		return 0, backends.Path{}, err
	}
	return handle, path, nil
}
