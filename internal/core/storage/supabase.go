package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBucket is the bucket thumbnails are uploaded to when none is configured.
const DefaultBucket = "thumbnails"

// SupabaseStore uploads objects through the Supabase Storage REST API.
type SupabaseStore struct {
	client     *http.Client
	baseURL    string
	serviceKey string
	bucket     string
}

// NewSupabaseStore creates a store for bucket on the project at baseURL.
// serviceKey must be a service-role key; uploads bypass row-level security.
func NewSupabaseStore(baseURL, serviceKey, bucket string, timeout time.Duration) (*SupabaseStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: supabase URL is required", ErrMisconfigured)
	}
	if serviceKey == "" {
		return nil, fmt.Errorf("%w: supabase service role key is required", ErrMisconfigured)
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &SupabaseStore{
		client:     &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
	}, nil
}

// Upload stores data at path inside the bucket and returns its public URL.
// Flow:
//  1. Validate inputs
//  2. POST to {baseURL}/storage/v1/object/{bucket}/{path}
//  3. Authenticate with the service-role key
//  4. Build the public object URL on success
func (s *SupabaseStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := validateUpload(path, data, contentType); err != nil {
		return "", err
	}
	objectPath := escapeObjectPath(cleanObjectPath(path))

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), objectPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create storage request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=31536000")
	req.Header.Set("x-upsert", "false")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("[STORAGE] failed to close upload response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "... (truncated)"
		}
		slog.Warn("[STORAGE] supabase upload rejected",
			"bucket", s.bucket,
			"path", objectPath,
			"status", resp.StatusCode,
			"body", bodyPreview,
		)
		return "", fmt.Errorf("%w: status %d", ErrUploadRejected, resp.StatusCode)
	}

	return s.PublicURL(path), nil
}

// PublicURL returns the public URL of an object in the bucket.
// The bucket must be configured as public in Supabase for the URL to resolve.
func (s *SupabaseStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		s.baseURL, url.PathEscape(s.bucket), escapeObjectPath(cleanObjectPath(path)))
}

// escapeObjectPath escapes each segment of a slash-separated object path.
func escapeObjectPath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
