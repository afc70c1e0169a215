package ogmeta

import "errors"

var (
	// ErrInvalidURL is returned when the input cannot be parsed as an absolute URL,
	// even after prepending https://. This is the only error Resolve surfaces.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrFetchFailed is returned when the page request fails at the network level.
	ErrFetchFailed = errors.New("failed to fetch page")

	// ErrFetchTimeout is returned when a page or image request exceeds its deadline.
	ErrFetchTimeout = errors.New("request timed out")

	// ErrUpstreamStatus is returned when the upstream answers with a non-2xx status.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")

	// ErrNotHTML is returned when the page response is not an HTML document.
	ErrNotHTML = errors.New("response is not HTML")

	// ErrImageTooLarge is returned when a thumbnail exceeds the configured size cap,
	// either by its declared Content-Length or by its actual byte count.
	ErrImageTooLarge = errors.New("thumbnail exceeds size limit")

	// ErrUnsupportedImage is returned when the thumbnail response is not an image.
	ErrUnsupportedImage = errors.New("thumbnail is not an image")

	// ErrUploadFailed is returned when the storage backend rejects a thumbnail.
	ErrUploadFailed = errors.New("thumbnail upload failed")

	// ErrCircuitOpen is returned when a host has failed too often and is being skipped.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrBlockedAddress is returned when a URL resolves to a loopback, private or
	// link-local address.
	ErrBlockedAddress = errors.New("destination address not allowed")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)
