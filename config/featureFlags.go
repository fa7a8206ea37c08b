package config

import (
	"os"
	"strings"
)

// ThumbnailsEnabled controls 200px previews for uploaded images.
//
// Set via env:
// - UPLOAD_THUMBNAILS=false to disable (enabled by default)
func ThumbnailsEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("UPLOAD_THUMBNAILS")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// HardDeleteFor lists entity kinds whose Delete skips the soft-delete state even when
// the schema declares deleted_at.
//
// Set via env:
// - HARD_DELETE_ENTITIES="session,draft"
//
// Kinds are case-insensitive.
func HardDeleteFor(kind string) bool {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return false
	}
	raw := os.Getenv("HARD_DELETE_ENTITIES")
	if strings.TrimSpace(raw) == "" {
		return false
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToLower(strings.TrimSpace(part)) == kind {
			return true
		}
	}
	return false
}
