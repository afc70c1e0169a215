package ogmeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Service resolves a user-supplied URL into display metadata for a saved link.
type Service interface {
	// Resolve runs the full pipeline for raw. The only error returned for
	// user input is one wrapping ErrInvalidURL; every upstream problem
	// degrades the result instead of failing it.
	Resolve(ctx context.Context, raw string) (*MetadataResult, error)

	// CircuitStats reports breaker state for hosts with recent failures.
	CircuitStats() map[string]CircuitStats
}

// ThumbnailProxier re-hosts a thumbnail and returns the URL to store.
// Implementations must return the input URL when re-hosting is skipped or fails.
type ThumbnailProxier interface {
	Proxy(ctx context.Context, imageURL string, source Source) string
}

type service struct {
	fetcher        PageFetcher
	proxy          ThumbnailProxier
	repo           Repository
	circuitBreaker *circuitBreaker
	cacheTTL       time.Duration
}

// ServiceOption configures the service
type ServiceOption func(*service)

// WithThumbnailProxy enables thumbnail re-hosting through proxy.
func WithThumbnailProxy(proxy ThumbnailProxier) ServiceOption {
	return func(s *service) {
		s.proxy = proxy
	}
}

// WithRepository enables result caching for ttl. A nil repo or a
// non-positive ttl leaves caching off.
func WithRepository(repo Repository, ttl time.Duration) ServiceOption {
	return func(s *service) {
		s.repo = repo
		s.cacheTTL = ttl
	}
}

// WithCircuitBreaker overrides the per-host breaker thresholds.
func WithCircuitBreaker(failureThreshold int, openDuration time.Duration) ServiceOption {
	return func(s *service) {
		s.circuitBreaker = newCircuitBreaker(failureThreshold, openDuration)
	}
}

// NewService creates the metadata resolver around fetcher.
func NewService(fetcher PageFetcher, opts ...ServiceOption) (Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: page fetcher", ErrNilDependency)
	}

	s := &service{
		fetcher:        fetcher,
		circuitBreaker: newCircuitBreaker(3, 5*time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) cacheEnabled() bool {
	return s.repo != nil && s.cacheTTL > 0
}

// Resolve runs Validate → Classify → Fetch → Extract → Decode → Resolve image
// → Proxy → Build.
func (s *service) Resolve(ctx context.Context, raw string) (*MetadataResult, error) {
	pageURL, err := NormalizeURL(raw)
	if err != nil {
		return nil, err
	}
	normalized := pageURL.String()
	hostname := pageURL.Hostname()

	if s.cacheEnabled() {
		cached, err := s.repo.Get(ctx, normalized)
		if err != nil {
			slog.Warn("[OG-META] cache lookup failed", "url", normalized, "error", err)
		} else if cached != nil {
			slog.Debug("[OG-META] cache hit", "url", normalized, "source", cached.Source)
			return cached, nil
		}
	}

	classification := Classify(hostname)
	meta, fetched := s.fetchMeta(ctx, normalized, hostname, classification.Source)

	result := &MetadataResult{
		Title:       buildTitle(meta.Title, classification.FallbackTitle, hostname),
		Source:      classification.Source,
		Description: meta.Description,
		URL:         normalized,
	}

	if image := ResolveImageURL(meta.Image, originOf(pageURL)); image != nil {
		thumbnail := *image
		if s.proxy != nil {
			thumbnail = s.proxy.Proxy(ctx, thumbnail, classification.Source)
		}
		result.ThumbnailURL = &thumbnail
	}

	// A fallback-only result would pin a transient outage for the whole TTL.
	if fetched && s.cacheEnabled() {
		if err := s.repo.Set(ctx, normalized, result, s.cacheTTL); err != nil {
			slog.Warn("[OG-META] failed to cache result", "url", normalized, "error", err)
		}
	}

	slog.Info("[OG-META] resolved",
		"url", normalized,
		"source", result.Source,
		"fetched", fetched,
		"has_thumbnail", result.ThumbnailURL != nil,
	)
	return result, nil
}

// fetchMeta fetches the page and extracts decoded metadata. The boolean
// reports whether a page body was actually obtained.
func (s *service) fetchMeta(ctx context.Context, pageURL, hostname string, source Source) (ExtractedMeta, bool) {
	if ok, err := s.circuitBreaker.canAttempt(hostname); !ok {
		slog.Info("[OG-META] skipping fetch", "url", pageURL, "error", err)
		return ExtractedMeta{}, false
	}

	page, err := s.fetcher.FetchHTML(ctx, pageURL, source)
	if err != nil {
		// The caller went away (disconnect, write deadline, shutdown). That
		// says nothing about the host.
		if ctx.Err() != nil {
			slog.Debug("[OG-META] page fetch abandoned by caller", "url", pageURL, "error", err)
			return ExtractedMeta{}, false
		}
		if isHostFailure(page, err) {
			s.circuitBreaker.recordFailure(hostname, err)
		}
		slog.Warn("[OG-META] page fetch failed, using fallbacks",
			"url", pageURL,
			"source", source,
			"status", page.StatusCode,
			"error", err,
		)
		return ExtractedMeta{}, false
	}
	s.circuitBreaker.recordSuccess(hostname)

	return ExtractMeta(page.HTML).Decode(), page.HasHTML()
}

func (s *service) CircuitStats() map[string]CircuitStats {
	return s.circuitBreaker.stats()
}

// isHostFailure reports whether a fetch error says something about the host
// as a whole. A 404 or a non-HTML page is specific to one URL.
func isHostFailure(page PageFetchResult, err error) bool {
	switch {
	case errors.Is(err, ErrFetchTimeout), errors.Is(err, ErrFetchFailed):
		return true
	case errors.Is(err, ErrUpstreamStatus):
		return page.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// buildTitle picks the extracted title, then the platform fallback, then the hostname.
func buildTitle(extracted *string, fallback, hostname string) string {
	if extracted != nil {
		if title := strings.TrimSpace(*extracted); title != "" {
			return title
		}
	}
	if fallback != "" {
		return fallback
	}
	return hostname
}
