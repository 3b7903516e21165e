package log

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
)

// SanitizationMode controls how guest-supplied paths are rendered in logs
type SanitizationMode int

const (
	// ProductionMode hashes paths
	ProductionMode SanitizationMode = iota
	// DevelopmentMode shows truncated paths
	DevelopmentMode
	// DebugMode shows full paths
	DebugMode
)

var currentMode = ProductionMode

func init() {
	// Check environment variable to set mode
	if mode := os.Getenv("ARCHIVEFS_LOG_MODE"); mode != "" {
		currentMode = ParseMode(mode)
	}
}

// ParseMode maps a mode name onto a SanitizationMode, defaulting to production
func ParseMode(mode string) SanitizationMode {
	switch strings.ToLower(mode) {
	case "development":
		return DevelopmentMode
	case "debug":
		return DebugMode
	default:
		return ProductionMode
	}
}

// SetMode overrides the mode picked from the environment
func SetMode(mode SanitizationMode) {
	currentMode = mode
}

// SanitizePath sanitizes file paths for logging based on the current mode
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}

	switch currentMode {
	case DevelopmentMode:
		// Show truncated path for debugging
		if len(path) <= 20 {
			return path
		}
		return path[:10] + "..." + path[len(path)-7:]
	case DebugMode:
		return path
	default:
		// Hash the path to prevent leaking guest file names
		hash := sha256.Sum256([]byte(path))
		return fmt.Sprintf("hash:%x", hash[:8])
	}
}

// SanitizeArchivePath renders an archive path. Binary paths carry save data ids, not names, and
// are shown as hex outside production.
func SanitizeArchivePath(path backends.Path) string {
	switch path.Type() {
	case backends.PathEmpty:
		return "[Empty]"
	case backends.PathBinary:
		if currentMode == ProductionMode {
			return SanitizePath(hex.EncodeToString(path.AsBinary()))
		}
		return path.String()
	case backends.PathChar, backends.PathWchar:
		text, _ := path.AsString()
		return SanitizePath(text)
	default:
		return "[Invalid]"
	}
}

// Path returns a zap field holding a sanitized archive path
func Path(key string, path backends.Path) zap.Field {
	return zap.String(key, SanitizeArchivePath(path))
}

// SanitizeSize sanitizes file size information
func SanitizeSize(size int64) int64 {
	if currentMode == ProductionMode {
		// Round to nearest KB to obscure exact sizes
		return (size + 512) / 1024 * 1024
	}
	return size
}
