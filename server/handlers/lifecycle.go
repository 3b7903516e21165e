package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/archives"
	"github.com/ebogdum/archivefs/core"
	"github.com/ebogdum/archivefs/metadata"
)

// FormatRequest is the body of POST /v1/format
type FormatRequest struct {
	IDCode     string              `json:"id_code"`
	Path       PathRequest         `json:"path"`
	FormatInfo metadata.FormatInfo `json:"format_info"`
}

// ExtSaveDataRequest is the body of POST /v1/extdata
type ExtSaveDataRequest struct {
	Media      string              `json:"media"` // nand, sdmc or gamecard
	High       uint32              `json:"high"`
	Low        uint32              `json:"low"`
	Icon       []byte              `json:"icon"`
	FormatInfo metadata.FormatInfo `json:"format_info"`
}

// SystemSaveDataRequest is the body of POST /v1/sysdata
type SystemSaveDataRequest struct {
	High uint32 `json:"high"`
	Low  uint32 `json:"low"`
}

// V1Format handles POST /v1/format
func V1Format(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FormatRequest
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

		if err := manager.FormatArchive(ctx, idCode, req.FormatInfo, path); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// V1FormatInfo handles GET /v1/formatinfo?id_code=..&path_type=..&path=..
func V1FormatInfo(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idCode, err := idCodeParam(r.URL.Query().Get("id_code"))
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		path, err := queryPath(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		info, err := manager.GetArchiveFormatInfo(ctx, idCode, path)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		SendJSONResponse(w, http.StatusOK, info)
	}
}

// V1CreateExtSaveData handles POST /v1/extdata
func V1CreateExtSaveData(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExtSaveDataRequest
		if err := decodeJSON(w, r, &req); err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		media, err := archives.ParseMediaType(req.Media)
		if err != nil {
			SendErrorResponse(w, logger, badRequest("%v", err), http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		if err := manager.CreateExtSaveData(ctx, media, req.High, req.Low, req.Icon, req.FormatInfo); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// V1DeleteExtSaveData handles DELETE /v1/extdata?media=..&high=..&low=..
func V1DeleteExtSaveData(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		media, err := archives.ParseMediaType(r.URL.Query().Get("media"))
		if err != nil {
			SendErrorResponse(w, logger, badRequest("%v", err), http.StatusBadRequest)
			return
		}
		high, low, err := idPair(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		if err := manager.DeleteExtSaveData(ctx, media, high, low); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// V1CreateSystemSaveData handles POST /v1/sysdata
func V1CreateSystemSaveData(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SystemSaveDataRequest
		if err := decodeJSON(w, r, &req); err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		if err := manager.CreateSystemSaveData(ctx, req.High, req.Low); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// V1DeleteSystemSaveData handles DELETE /v1/sysdata?high=..&low=..
func V1DeleteSystemSaveData(manager *core.ArchiveManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		high, low, err := idPair(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := operationContext(r)
		defer cancel()

		if err := manager.DeleteSystemSaveData(ctx, high, low); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func idPair(r *http.Request) (high, low uint32, err error) {
	if high, err = uint32Param(r, "high"); err != nil {
		return 0, 0, err
	}
	if low, err = uint32Param(r, "low"); err != nil {
		return 0, 0, err
	}
	return high, low, nil
}
