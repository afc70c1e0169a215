package ogmeta

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config validation errors
var (
	// ErrInvalidPageTimeout is returned when PageTimeout is not positive
	ErrInvalidPageTimeout = errors.New("PageTimeout must be positive")
	// ErrInvalidImageTimeout is returned when ImageTimeout is not positive
	ErrInvalidImageTimeout = errors.New("ImageTimeout must be positive")
	// ErrInvalidMaxThumbnailSize is returned when MaxThumbnailKB is not positive
	ErrInvalidMaxThumbnailSize = errors.New("MaxThumbnailKB must be positive")
	// ErrInvalidCacheTTL is returned when CacheTTL is negative
	ErrInvalidCacheTTL = errors.New("CacheTTL cannot be negative")
	// ErrInvalidCacheBackend is returned for an unknown CacheBackend
	ErrInvalidCacheBackend = errors.New("CacheBackend must be \"memory\" or \"postgres\"")
	// ErrInvalidMemoryCacheSize is returned when MemoryCacheSize is not positive
	ErrInvalidMemoryCacheSize = errors.New("MemoryCacheSize must be positive")
)

// Cache backends
const (
	CacheBackendMemory   = "memory"
	CacheBackendPostgres = "postgres"
)

// Config holds the tunables of the metadata resolver.
type Config struct {
	// PageTimeout bounds the single page fetch.
	PageTimeout time.Duration

	// ImageTimeout bounds the thumbnail download.
	ImageTimeout time.Duration

	// MaxThumbnailKB is the largest thumbnail that will be re-hosted.
	MaxThumbnailKB int

	// CacheTTL is how long resolved results are cached. 0 disables caching.
	CacheTTL time.Duration

	// CacheBackend selects the result cache: "memory" or "postgres".
	CacheBackend string

	// MemoryCacheSize is the entry cap of the in-memory cache.
	MemoryCacheSize int

	// ProxyEnabled turns thumbnail re-hosting on or off.
	ProxyEnabled bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PageTimeout:     8 * time.Second,
		ImageTimeout:    5 * time.Second,
		MaxThumbnailKB:  2048,
		CacheTTL:        0,
		CacheBackend:    CacheBackendMemory,
		MemoryCacheSize: 1000,
		ProxyEnabled:    true,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.PageTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidPageTimeout, c.PageTimeout)
	}
	if c.ImageTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidImageTimeout, c.ImageTimeout)
	}
	if c.MaxThumbnailKB <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxThumbnailSize, c.MaxThumbnailKB)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidCacheTTL, c.CacheTTL)
	}
	if c.CacheTTL > 0 {
		switch c.CacheBackend {
		case CacheBackendMemory:
			if c.MemoryCacheSize <= 0 {
				return fmt.Errorf("%w: got %d", ErrInvalidMemoryCacheSize, c.MemoryCacheSize)
			}
		case CacheBackendPostgres:
		default:
			return fmt.Errorf("%w: got %q", ErrInvalidCacheBackend, c.CacheBackend)
		}
	}
	return nil
}

// CacheEnabled reports whether results should be cached.
func (c Config) CacheEnabled() bool {
	return c.CacheTTL > 0
}

// MaxThumbnailBytes returns the thumbnail cap in bytes.
func (c Config) MaxThumbnailBytes() int64 {
	return int64(c.MaxThumbnailKB) * 1024
}

// ConfigFromEnv creates a Config from environment variables.
// Uses defaults for any missing or invalid environment variables.
//
// Environment variables:
//   - OG_META_PAGE_TIMEOUT_SECONDS: page fetch timeout (default: 8)
//   - OG_META_IMAGE_TIMEOUT_SECONDS: thumbnail fetch timeout (default: 5)
//   - OG_META_MAX_THUMBNAIL_KB: largest thumbnail to re-host (default: 2048)
//   - OG_META_CACHE_TTL_MINUTES: result cache TTL, 0 to disable (default: 0)
//   - OG_META_CACHE_BACKEND: "memory" or "postgres" (default: "memory")
//   - OG_META_MEMORY_CACHE_SIZE: in-memory cache entries (default: 1000)
//   - OG_META_PROXY_ENABLED: "true"/"1" to re-host thumbnails (default: true)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if n, ok := positiveIntEnv("OG_META_PAGE_TIMEOUT_SECONDS", int(cfg.PageTimeout.Seconds()), false); ok {
		cfg.PageTimeout = time.Duration(n) * time.Second
	}
	if n, ok := positiveIntEnv("OG_META_IMAGE_TIMEOUT_SECONDS", int(cfg.ImageTimeout.Seconds()), false); ok {
		cfg.ImageTimeout = time.Duration(n) * time.Second
	}
	if n, ok := positiveIntEnv("OG_META_MAX_THUMBNAIL_KB", cfg.MaxThumbnailKB, false); ok {
		cfg.MaxThumbnailKB = n
	}
	if n, ok := positiveIntEnv("OG_META_CACHE_TTL_MINUTES", int(cfg.CacheTTL.Minutes()), true); ok {
		cfg.CacheTTL = time.Duration(n) * time.Minute
	}
	if v := os.Getenv("OG_META_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if n, ok := positiveIntEnv("OG_META_MEMORY_CACHE_SIZE", cfg.MemoryCacheSize, false); ok {
		cfg.MemoryCacheSize = n
	}
	if v := os.Getenv("OG_META_PROXY_ENABLED"); v != "" {
		cfg.ProxyEnabled = v == "true" || v == "1"
	}

	return cfg
}

// positiveIntEnv parses an integer environment variable. Zero is accepted
// only when allowZero is set. Invalid values log a warning and report !ok.
func positiveIntEnv(key string, def int, allowZero bool) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err == nil && (n > 0 || (allowZero && n == 0)) {
		return n, true
	}
	slog.Warn("[OG-META] invalid "+key+" value, using default",
		"value", v,
		"default", def,
		"error", err,
	)
	return 0, false
}
