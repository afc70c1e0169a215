package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DiskStore keeps objects on the local filesystem under basePath and serves
// them from publicBaseURL. Intended for development and single-node deploys.
type DiskStore struct {
	basePath      string
	publicBaseURL string
	ttlDays       int
}

// NewDiskStore creates a DiskStore rooted at basePath.
// ttlDays of 0 disables expiry-based cleanup.
func NewDiskStore(basePath, publicBaseURL string, ttlDays int) (*DiskStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("%w: disk storage path is required", ErrMisconfigured)
	}
	if ttlDays < 0 {
		return nil, fmt.Errorf("%w: ttlDays cannot be negative", ErrMisconfigured)
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if ttlDays > 0 {
		slog.Warn("[STORAGE] disk objects expire, saved links will lose thumbnails older than the TTL",
			"ttl_days", ttlDays,
		)
	}
	return &DiskStore{
		basePath:      basePath,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		ttlDays:       ttlDays,
	}, nil
}

// BasePath returns the directory objects are written to.
func (d *DiskStore) BasePath() string {
	return d.basePath
}

// Upload writes data to path under the store root and returns its public URL.
// The write goes to a temp file first and is renamed into place, so readers
// never observe a partial object.
func (d *DiskStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := validateUpload(path, data, contentType); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	objectPath := cleanObjectPath(path)
	fullPath := filepath.Join(d.basePath, filepath.FromSlash(objectPath))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadRejected, err)
	}

	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadRejected, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", ErrUploadRejected, err)
	}

	return d.publicBaseURL + "/" + objectPath, nil
}

// CleanExpired removes objects older than the configured TTL.
// Returns the number of objects removed. A TTL of 0 is a no-op.
// Removed objects may still be referenced by saved links, which then lose
// their thumbnail.
func (d *DiskStore) CleanExpired() (int, error) {
	if d.ttlDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -d.ttlDays)
	removed := 0

	err := filepath.WalkDir(d.basePath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			slog.Warn("[STORAGE] failed to stat file during cleanup",
				"path", path,
				"error", err,
			)
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("[STORAGE] failed to remove expired object",
					"path", path,
					"error", err,
				)
			}
			return nil
		}
		removed++
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return removed, err
	}

	if removed > 0 {
		d.cleanEmptyDirs()
		slog.Info("[STORAGE] expired objects removed",
			"removed", removed,
			"ttl_days", d.ttlDays,
		)
	}

	return removed, nil
}

// cleanEmptyDirs removes directories left empty by cleanup, deepest first.
func (d *DiskStore) cleanEmptyDirs() {
	var dirs []string
	_ = filepath.WalkDir(d.basePath, func(path string, entry fs.DirEntry, err error) error {
		if err == nil && entry.IsDir() && path != d.basePath {
			dirs = append(dirs, path)
		}
		return nil
	})

	sort.Slice(dirs, func(i, j int) bool {
		return len(dirs[i]) > len(dirs[j])
	})

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			slog.Warn("[STORAGE] failed to remove empty directory",
				"path", dir,
				"error", err,
			)
		}
	}
}

// StartCleanupJob runs CleanExpired every interval until the returned cancel
// function is called. An interval of 0 or less starts nothing.
func (d *DiskStore) StartCleanupJob(interval time.Duration) context.CancelFunc {
	if interval <= 0 || d.ttlDays <= 0 {
		slog.Info("[STORAGE] disk cleanup job disabled",
			"interval", interval,
			"ttl_days", d.ttlDays,
		)
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("[STORAGE] CRITICAL: disk cleanup job panicked", "panic", r)
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("[STORAGE] disk cleanup job started",
			"interval", interval,
			"ttl_days", d.ttlDays,
		)

		for {
			select {
			case <-ctx.Done():
				slog.Info("[STORAGE] disk cleanup job stopped")
				return
			case <-ticker.C:
				if _, err := d.CleanExpired(); err != nil {
					slog.Error("[STORAGE] disk cleanup error", "error", err)
				}
			}
		}
	}()

	return cancel
}
