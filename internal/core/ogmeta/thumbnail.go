package ogmeta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"SaveBox/internal/core/storage"

	"github.com/google/uuid"
)

// DefaultMaxThumbnailBytes is the largest thumbnail that will be re-hosted.
const DefaultMaxThumbnailBytes int64 = 2 * 1024 * 1024

// thumbnailPrefix is the object path prefix for re-hosted thumbnails.
const thumbnailPrefix = "thumbnails"

// ThumbnailProxy downloads a page's thumbnail and re-uploads it to object
// storage so saved links do not depend on hotlink-protected or expiring CDN URLs.
type ThumbnailProxy struct {
	client       *http.Client
	uploader     storage.Uploader
	now          func() time.Time
	timeout      time.Duration
	maxSizeBytes int64
}

// NewThumbnailProxy creates a proxy that uploads through uploader.
// A nil uploader disables re-hosting; Proxy then returns its input unchanged.
// maxSizeBytes of 0 uses DefaultMaxThumbnailBytes. Images on non-public
// addresses are never downloaded.
func NewThumbnailProxy(uploader storage.Uploader, timeout time.Duration, maxSizeBytes int64, opts ...clientOption) *ThumbnailProxy {
	if maxSizeBytes <= 0 {
		maxSizeBytes = DefaultMaxThumbnailBytes
	}
	return &ThumbnailProxy{
		client:       newHTTPClient(opts...),
		uploader:     uploader,
		timeout:      timeout,
		maxSizeBytes: maxSizeBytes,
		now:          time.Now,
	}
}

// Proxy returns the public URL of the re-hosted copy of imageURL, or imageURL
// itself when re-hosting is skipped or fails. It never returns an error.
func (p *ThumbnailProxy) Proxy(ctx context.Context, imageURL string, source Source) string {
	if p == nil || p.uploader == nil || source.IsMetaFamily() {
		return imageURL
	}

	publicURL, err := p.proxy(ctx, imageURL)
	if err != nil {
		slog.Warn("[OG-META] thumbnail proxy failed, keeping original URL",
			"image_url", imageURL,
			"source", source,
			"error", err,
		)
		return imageURL
	}
	return publicURL
}

func (p *ThumbnailProxy) proxy(ctx context.Context, imageURL string) (string, error) {
	data, contentType, err := p.download(ctx, imageURL)
	if err != nil {
		return "", err
	}

	ext, ok := thumbnailExtension(contentType)
	if !ok {
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedImage, contentType)
	}

	path := p.objectPath(ext)
	publicURL, err := p.uploader.Upload(ctx, path, data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	slog.Debug("[OG-META] thumbnail re-hosted",
		"image_url", imageURL,
		"path", path,
		"size", len(data),
	)
	return publicURL, nil
}

// download fetches imageURL within the proxy's timeout and size cap.
func (p *ThumbnailProxy) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to create request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", defaultAcceptLanguage)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrBlockedAddress) {
			return nil, "", fmt.Errorf("%w: %v", ErrBlockedAddress, err)
		}
		if ctx.Err() != nil || isTimeoutError(err) {
			return nil, "", fmt.Errorf("%w: %v", ErrFetchTimeout, err)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: status %d", ErrUpstreamStatus, resp.StatusCode)
	}

	if resp.ContentLength > p.maxSizeBytes {
		return nil, "", fmt.Errorf("%w: content length %d exceeds maximum %d bytes",
			ErrImageTooLarge, resp.ContentLength, p.maxSizeBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if _, ok := thumbnailExtension(contentType); !ok {
		return nil, "", fmt.Errorf("%w: content type %q", ErrUnsupportedImage, contentType)
	}

	// Read one byte past the cap so an oversized body without Content-Length
	// is still detected.
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxSizeBytes+1))
	if err != nil {
		if ctx.Err() != nil || isTimeoutError(err) {
			return nil, "", fmt.Errorf("%w: reading body: %v", ErrFetchTimeout, err)
		}
		return nil, "", fmt.Errorf("%w: reading body: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > p.maxSizeBytes {
		return nil, "", fmt.Errorf("%w: response body exceeds maximum %d bytes",
			ErrImageTooLarge, p.maxSizeBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty body", ErrUnsupportedImage)
	}

	return data, mediaType(contentType), nil
}

// objectPath builds thumbnails/<unix-millis>-<8 hex>.<ext>.
func (p *ThumbnailProxy) objectPath(ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s/%d-%s.%s", thumbnailPrefix, p.now().UnixMilli(), suffix, ext)
}

// thumbnailExtension maps an image content type to a file extension.
// Unknown image subtypes are stored as jpg; non-image types are rejected.
func thumbnailExtension(contentType string) (string, bool) {
	mt := mediaType(contentType)
	if !strings.HasPrefix(mt, "image/") {
		return "", false
	}
	switch strings.TrimPrefix(mt, "image/") {
	case "png":
		return "png", true
	case "webp":
		return "webp", true
	case "gif":
		return "gif", true
	default:
		return "jpg", true
	}
}

// mediaType returns the lower-cased media type without parameters.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mt)
}
