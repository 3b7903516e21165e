package handlers

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/core"
	"github.com/ebogdum/archivefs/internal/pathutil"
)

// PathRequest is the JSON form of an archive path. Binary data is base64 in JSON.
type PathRequest struct {
	Type string `json:"type"` // empty, binary, char or wchar
	Text string `json:"text,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// ToPath converts the request into an archive path
func (p PathRequest) ToPath() (backends.Path, error) {
	switch strings.ToLower(p.Type) {
	case "", "empty":
		return backends.EmptyPath(), nil
	case "binary":
		return backends.BinaryPath(p.Data), nil
	case "char":
		return backends.CharPath(p.Text), nil
	case "wchar":
		return backends.WcharPath(p.Text), nil
	default:
		return backends.Path{}, badRequest("unknown path type %q", p.Type)
	}
}

// queryPath reads an archive path from the path_type and path query parameters. Binary paths are hex.
func queryPath(r *http.Request) (backends.Path, error) {
	query := r.URL.Query()
	req := PathRequest{Type: query.Get("path_type")}
	if strings.EqualFold(req.Type, "binary") {
		data, err := hex.DecodeString(query.Get("path"))
		if err != nil {
			return backends.Path{}, badRequest("binary path must be hex: %v", err)
		}
		req.Data = data
	} else {
		req.Text = query.Get("path")
	}
	return req.ToPath()
}

// wildcardPath maps the URL remainder onto a text path inside an archive. ?encoding=wchar selects
// a UTF-16 path.
func wildcardPath(r *http.Request) (backends.Path, error) {
	cleaned, err := pathutil.Clean("/" + chi.URLParam(r, "*"))
	if err != nil {
		return backends.Path{}, badRequest("invalid path: %v", err)
	}
	if r.URL.Query().Get("encoding") == "wchar" {
		return backends.WcharPath(cleaned), nil
	}
	return backends.CharPath(cleaned), nil
}

func handleParam(r *http.Request) (core.ArchiveHandle, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, "handle"), 10, 64)
	if err != nil {
		return 0, badRequest("invalid handle %q", chi.URLParam(r, "handle"))
	}
	return core.ArchiveHandle(v), nil
}

func idCodeParam(s string) (core.ArchiveIDCode, error) {
	id, err := core.ParseArchiveIDCode(s)
	if err != nil {
		return 0, badRequest("%v", err)
	}
	return id, nil
}

func uint32Param(r *http.Request, name string) (uint32, error) {
	v, err := strconv.ParseUint(r.URL.Query().Get(name), 0, 32)
	if err != nil {
		return 0, badRequest("invalid %s %q", name, r.URL.Query().Get(name))
	}
	return uint32(v), nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}
