// Package pathutil provides archive path validation and host path containment.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/ebogdum/archivefs/metadata"
)

// invalidChars are rejected because the host filesystem may not represent them.
const invalidChars = `<>\|:"*?`

// Clean validates and normalizes an archive path.
// It performs the following checks:
// 1. The path must be rooted ("/" prefix)
// 2. Host-invalid and control characters are rejected
// 3. ".." components may not climb above the archive root
// The result is a slash-separated path starting with "/", or "/" for the root.
func Clean(path string) (string, error) {
	if path == "" || path[0] != '/' {
		return "", metadata.ErrInvalidPath
	}

	if strings.ContainsAny(path, invalidChars) {
		return "", metadata.ErrInvalidPath
	}
	for _, char := range path {
		if char < 32 {
			return "", metadata.ErrInvalidPath
		}
	}

	var parts []string
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return "", metadata.ErrInvalidPath
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, part)
		}
	}

	return "/" + strings.Join(parts, "/"), nil
}

// IsRoot reports whether a cleaned path names the archive root.
func IsRoot(cleaned string) bool {
	return cleaned == "/"
}

// SafeJoin safely joins a root path with an archive path, ensuring
// the result stays within the root directory boundary.
// Returns an error if the path would escape the root.
func SafeJoin(root, rel string) (string, error) {
	cleanRoot := filepath.Clean(root)

	cleanRel, err := Clean(rel)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(cleanRoot, filepath.FromSlash(strings.TrimPrefix(cleanRel, "/")))

	// The root itself may be reached through a symlink
	resolvedRoot, err := filepath.EvalSymlinks(cleanRoot)
	if err != nil {
		resolvedRoot = cleanRoot
	}

	// Resolve symlinks so a link inside the archive cannot point outside of it
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// The leaf might not exist yet; check the parent instead
		dir := filepath.Dir(joined)
		if dir != cleanRoot {
			if resolvedDir, dirErr := filepath.EvalSymlinks(dir); dirErr == nil {
				if !within(resolvedRoot, resolvedDir) {
					return "", metadata.ErrForbidden
				}
			}
		}
		if !within(cleanRoot, joined) {
			return "", metadata.ErrForbidden
		}
		return joined, nil
	}

	if !within(resolvedRoot, resolved) {
		return "", metadata.ErrForbidden
	}

	return joined, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
