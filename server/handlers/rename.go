package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/core"
)

// RenameRequest is the body of POST /v1/rename. The two handles may name the same archive.
type RenameRequest struct {
	Kind      string             `json:"kind"` // file or directory
	SrcHandle core.ArchiveHandle `json:"src_handle"`
	SrcPath   PathRequest        `json:"src_path"`
	DstHandle core.ArchiveHandle `json:"dst_handle"`
	DstPath   PathRequest        `json:"dst_path"`
}

// V1Rename handles POST /v1/rename
func V1Rename(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		srcPath, err := req.SrcPath.ToPath()
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		dstPath, err := req.DstPath.ToPath()
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		switch req.Kind {
		case "file":
			err = manager.RenameFileBetweenArchives(ctx, req.SrcHandle, srcPath, req.DstHandle, dstPath)
		case "directory":
			err = manager.RenameDirectoryBetweenArchives(ctx, req.SrcHandle, srcPath, req.DstHandle, dstPath)
		default:
			err = badRequest("kind must be file or directory")
		}
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
