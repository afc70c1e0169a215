// Package storage provides object storage backends for re-hosted thumbnails.
//
// Two backends are available:
//   - SupabaseStore: uploads to a Supabase Storage bucket over its REST API
//   - DiskStore: writes to a local directory served by the app itself
//
// Both satisfy Uploader, the only contract the metadata resolver depends on.
package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidPath is returned when an object path is empty or escapes its root.
	ErrInvalidPath = errors.New("invalid object path")

	// ErrEmptyData is returned when asked to store zero bytes.
	ErrEmptyData = errors.New("object data cannot be empty")

	// ErrMissingContentType is returned when no content type is supplied.
	ErrMissingContentType = errors.New("content type cannot be empty")

	// ErrUploadRejected is returned when the backend refuses the object.
	ErrUploadRejected = errors.New("storage backend rejected upload")

	// ErrMisconfigured is returned when a backend is created without required settings.
	ErrMisconfigured = errors.New("storage backend misconfigured")
)

// Uploader stores an object and returns the public URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (publicURL string, err error)
}

// validateUpload checks the arguments shared by every backend.
func validateUpload(path string, data []byte, contentType string) error {
	if cleanObjectPath(path) == "" {
		return ErrInvalidPath
	}
	if len(data) == 0 {
		return ErrEmptyData
	}
	if contentType == "" {
		return ErrMissingContentType
	}
	return nil
}

// cleanObjectPath sanitizes a slash-separated object path so that it cannot
// traverse outside the storage root. Returns "" if nothing usable remains.
func cleanObjectPath(path string) string {
	parts := strings.Split(path, "/")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ReplaceAll(part, "\\", "")
		part = strings.ReplaceAll(part, "\x00", "")
		if part == "" || part == "." || part == ".." {
			continue
		}
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, "/")
}
