package ogmeta

import (
	"net/url"
	"strings"
)

// ResolveImageURL makes a relative image reference absolute against the page origin.
// Values that already start with "http" are returned unchanged. If the reference
// cannot be resolved the thumbnail is dropped (nil) rather than kept broken.
func ResolveImageURL(imageURL *string, pageOrigin string) *string {
	if imageURL == nil {
		return nil
	}
	if strings.HasPrefix(*imageURL, "http") {
		return imageURL
	}

	base, err := url.Parse(pageOrigin)
	if err != nil || !base.IsAbs() || base.Host == "" {
		return nil
	}
	ref, err := url.Parse(*imageURL)
	if err != nil {
		return nil
	}

	resolved := base.ResolveReference(ref)
	if resolved.Host == "" {
		return nil
	}
	abs := resolved.String()
	return &abs
}

// originOf returns scheme://host[:port] for u.
func originOf(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}
