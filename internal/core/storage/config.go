package storage

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends
const (
	BackendSupabase = "supabase"
	BackendDisk     = "disk"
	BackendNone     = "none"
)

// Config selects and configures the thumbnail storage backend.
type Config struct {
	// Backend is "supabase", "disk" or "none".
	Backend string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	// DiskPath is the root directory of the disk backend.
	DiskPath string

	// PublicBaseURL is prepended to object paths by the disk backend.
	PublicBaseURL string

	// DiskTTLDays is the age after which disk objects are deleted. 0 keeps them forever.
	// Saved links keep pointing at their re-hosted thumbnail, so any positive
	// value breaks thumbnails of links older than the TTL. Only set it when the
	// disk backend is a scratch store.
	DiskTTLDays int

	// DiskCleanupInterval is how often expired disk objects are swept. 0 disables the sweep.
	DiskCleanupInterval time.Duration

	// UploadTimeout bounds a single upload request.
	UploadTimeout time.Duration
}

// DefaultConfig returns a Config that disables re-hosting.
func DefaultConfig() Config {
	return Config{
		Backend:             BackendNone,
		SupabaseBucket:      DefaultBucket,
		DiskPath:            "./data/storage",
		PublicBaseURL:       "http://localhost:8080",
		DiskTTLDays:         0,
		DiskCleanupInterval: time.Hour,
		UploadTimeout:       30 * time.Second,
	}
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendNone:
		return nil
	case BackendSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("%w: SUPABASE_URL is required for the supabase backend", ErrMisconfigured)
		}
		if c.SupabaseServiceKey == "" {
			return fmt.Errorf("%w: SUPABASE_SERVICE_ROLE_KEY is required for the supabase backend", ErrMisconfigured)
		}
	case BackendDisk:
		if c.DiskPath == "" {
			return fmt.Errorf("%w: STORAGE_DISK_PATH is required for the disk backend", ErrMisconfigured)
		}
		if c.DiskTTLDays < 0 {
			return fmt.Errorf("%w: STORAGE_DISK_TTL_DAYS cannot be negative", ErrMisconfigured)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrMisconfigured, c.Backend)
	}
	return nil
}

// ConfigFromEnv creates a Config from environment variables.
// When STORAGE_BACKEND is unset, supabase is chosen if SUPABASE_URL is present
// and re-hosting is disabled otherwise.
//
// Environment variables:
//   - STORAGE_BACKEND: "supabase", "disk" or "none"
//   - SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY: Supabase project and service-role key
//   - SUPABASE_STORAGE_BUCKET: bucket name (default: "thumbnails")
//   - STORAGE_DISK_PATH: disk backend root (default: "./data/storage")
//   - STORAGE_PUBLIC_BASE_URL: public origin for disk objects (default: "http://localhost:8080")
//   - STORAGE_DISK_TTL_DAYS: delete disk objects older than this, 0 to keep (default: 0).
//     Deleted objects are still referenced by saved links; see Config.DiskTTLDays.
//   - STORAGE_DISK_CLEANUP_INTERVAL_MINUTES: sweep interval, 0 to disable (default: 60)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.SupabaseURL = os.Getenv("SUPABASE_URL")
	cfg.SupabaseServiceKey = os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if v := os.Getenv("SUPABASE_STORAGE_BUCKET"); v != "" {
		cfg.SupabaseBucket = v
	}

	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_BACKEND"))); {
	case v != "":
		cfg.Backend = v
	case cfg.SupabaseURL != "":
		cfg.Backend = BackendSupabase
	}

	if v := os.Getenv("STORAGE_DISK_PATH"); v != "" {
		cfg.DiskPath = v
	}
	if v := os.Getenv("STORAGE_PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}

	if v := os.Getenv("STORAGE_DISK_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DiskTTLDays = n
		} else {
			slog.Warn("[STORAGE] invalid STORAGE_DISK_TTL_DAYS value, using default",
				"value", v,
				"default", cfg.DiskTTLDays,
				"error", err,
			)
		}
	}

	if v := os.Getenv("STORAGE_DISK_CLEANUP_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DiskCleanupInterval = time.Duration(n) * time.Minute
		} else {
			slog.Warn("[STORAGE] invalid STORAGE_DISK_CLEANUP_INTERVAL_MINUTES value, using default",
				"value", v,
				"default_minutes", int(cfg.DiskCleanupInterval.Minutes()),
				"error", err,
			)
		}
	}

	return cfg
}
