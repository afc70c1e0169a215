package ogmeta

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL turns free-text user input into an absolute http(s) URL.
// Input without a scheme gets https:// prepended. Anything that still fails to
// parse, or parses without a host, is rejected with ErrInvalidURL.
func NormalizeURL(raw string) (*url.URL, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	lower := strings.ToLower(candidate)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(candidate, "//"):
		candidate = "https:" + candidate
	case strings.Contains(candidate, "://"):
		return nil, fmt.Errorf("%w: unsupported scheme", ErrInvalidURL)
	default:
		candidate = "https://" + candidate
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return parsed, nil
}
