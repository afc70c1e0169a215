package ogmeta

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Repository defines the interface for resolved-metadata cache persistence
type Repository interface {
	// Get retrieves a cached result for the normalized URL.
	// Returns nil, nil if not found or expired (not an error condition).
	// Returns error only on storage failures.
	Get(ctx context.Context, url string) (*MetadataResult, error)

	// Set stores a result with the specified TTL, replacing any existing entry.
	Set(ctx context.Context, url string, result *MetadataResult, ttl time.Duration) error
}

// PostgresRepository caches results in the og_meta_cache table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a cache repository backed by the og_meta_cache table.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, url string) (*MetadataResult, error) {
	query := `
		SELECT metadata
		FROM og_meta_cache
		WHERE url = $1 AND expires_at > NOW()
	`

	var metadataJSON []byte
	err := r.db.QueryRowContext(ctx, query, url).Scan(&metadataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get og meta cache entry: %w", err)
	}

	var result MetadataResult
	if err := json.Unmarshal(metadataJSON, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &result, nil
}

func (r *PostgresRepository) Set(ctx context.Context, url string, result *MetadataResult, ttl time.Duration) error {
	metadataJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var thumbnailURL sql.NullString
	if result.ThumbnailURL != nil {
		thumbnailURL = sql.NullString{String: *result.ThumbnailURL, Valid: true}
	}

	query := `
		INSERT INTO og_meta_cache (url, source, metadata, thumbnail_url, expires_at)
		VALUES ($1, $2, $3, $4, NOW() + $5::interval)
		ON CONFLICT (url) DO UPDATE
		SET source = EXCLUDED.source,
		    metadata = EXCLUDED.metadata,
		    thumbnail_url = EXCLUDED.thumbnail_url,
		    expires_at = EXCLUDED.expires_at,
		    fetched_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query, url, string(result.Source), metadataJSON, thumbnailURL, formatInterval(ttl))
	if err != nil {
		return fmt.Errorf("failed to upsert og meta cache entry: %w", err)
	}
	return nil
}

// DeleteExpired removes expired rows and returns how many were deleted.
func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM og_meta_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired og meta cache entries: %w", err)
	}
	return res.RowsAffected()
}

// StartCleanupJob runs DeleteExpired every interval until the returned cancel
// function is called. Expired rows are already invisible to Get; this only
// reclaims space.
func (r *PostgresRepository) StartCleanupJob(interval time.Duration) context.CancelFunc {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := r.DeleteExpired(ctx)
				if err != nil {
					slog.Error("[OG-META] cache cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Info("[OG-META] expired cache entries removed", "count", removed)
				}
			}
		}
	}()

	return cancel
}

// formatInterval converts a Go duration to a PostgreSQL interval string.
func formatInterval(d time.Duration) string {
	seconds := int64(d.Seconds())
	switch {
	case seconds >= 86400 && seconds%86400 == 0:
		return fmt.Sprintf("%d days", seconds/86400)
	case seconds >= 3600 && seconds%3600 == 0:
		return fmt.Sprintf("%d hours", seconds/3600)
	case seconds >= 60 && seconds%60 == 0:
		return fmt.Sprintf("%d minutes", seconds/60)
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}

// MemoryRepository keeps results in a size-capped LRU whose entries expire
// after the TTL given at construction.
type MemoryRepository struct {
	cache *expirable.LRU[string, MetadataResult]
}

// NewMemoryRepository creates an in-process cache holding at most size entries.
// The per-call ttl passed to Set is ignored; every entry lives for ttl.
func NewMemoryRepository(size int, ttl time.Duration) *MemoryRepository {
	return &MemoryRepository{cache: expirable.NewLRU[string, MetadataResult](size, nil, ttl)}
}

func (r *MemoryRepository) Get(_ context.Context, url string) (*MetadataResult, error) {
	result, ok := r.cache.Get(url)
	if !ok {
		return nil, nil
	}
	return &result, nil
}

func (r *MemoryRepository) Set(_ context.Context, url string, result *MetadataResult, _ time.Duration) error {
	if result == nil {
		return nil
	}
	r.cache.Add(url, *result)
	return nil
}
