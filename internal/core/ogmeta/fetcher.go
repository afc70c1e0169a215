package ogmeta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// maxPageBytes caps how much of a page body is read for extraction.
const maxPageBytes = 10 * 1024 * 1024

// maxRedirects matches net/http's default redirect budget.
const maxRedirects = 10

// PageFetcher retrieves the HTML of the page being saved.
type PageFetcher interface {
	// FetchHTML performs a single GET for pageURL. The returned result is always
	// safe to use; on any failure it is empty and err describes what went wrong.
	FetchHTML(ctx context.Context, pageURL string, source Source) (PageFetchResult, error)
}

// HTTPPageFetcher fetches pages over HTTP with per-source User-Agent selection.
type HTTPPageFetcher struct {
	client     *http.Client
	userAgents UserAgentTable
	timeout    time.Duration
}

// NewHTTPPageFetcher creates a fetcher that aborts each request after timeout.
// Pages on loopback, private or link-local addresses are refused.
func NewHTTPPageFetcher(timeout time.Duration, userAgents UserAgentTable, opts ...clientOption) *HTTPPageFetcher {
	return &HTTPPageFetcher{
		client:     newHTTPClient(opts...),
		userAgents: userAgents,
		timeout:    timeout,
	}
}

// FetchHTML fetches pageURL and returns its body when it is a successful HTML response.
func (f *HTTPPageFetcher) FetchHTML(ctx context.Context, pageURL string, source Source) (PageFetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return PageFetchResult{}, fmt.Errorf("%w: failed to create request: %v", ErrFetchFailed, err)
	}

	req.Header.Set("User-Agent", f.userAgents.For(source))
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", defaultAcceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrBlockedAddress) {
			return PageFetchResult{}, fmt.Errorf("%w: %v", ErrBlockedAddress, err)
		}
		if ctx.Err() != nil || isTimeoutError(err) {
			return PageFetchResult{}, fmt.Errorf("%w: %v", ErrFetchTimeout, err)
		}
		return PageFetchResult{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	result := PageFetchResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, fmt.Errorf("%w: status %d", ErrUpstreamStatus, resp.StatusCode)
	}
	if !isHTMLContentType(result.ContentType) {
		return result, fmt.Errorf("%w: content type %q", ErrNotHTML, result.ContentType)
	}

	// Transcode to UTF-8 using the declared charset, falling back to <meta charset>
	// sniffing. Many Korean and Japanese sites still serve EUC-KR or Shift_JIS.
	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), result.ContentType)
	if err != nil {
		return result, fmt.Errorf("%w: unsupported charset: %v", ErrFetchFailed, err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		if ctx.Err() != nil || isTimeoutError(err) {
			return result, fmt.Errorf("%w: reading body: %v", ErrFetchTimeout, err)
		}
		return result, fmt.Errorf("%w: reading body: %v", ErrFetchFailed, err)
	}

	result.HTML = string(data)
	return result, nil
}

func isHTMLContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// isTimeoutError checks if the error is a timeout-related error.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
