package ogmeta

// MetadataResult is the response for a resolved URL and the shape handed to the
// content store when a link is saved.
type MetadataResult struct {
	Title        string  `json:"title"`
	Source       Source  `json:"source"`
	ThumbnailURL *string `json:"thumbnailUrl"` // nil when no usable thumbnail was found
	Description  *string `json:"description"`
	URL          string  `json:"url"` // Normalized absolute URL
}

// ExtractedMeta holds the fields pulled out of a page's HTML.
// Any field may be nil; absence is an expected outcome, not an error.
type ExtractedMeta struct {
	Title       *string
	Image       *string
	Description *string
}

// PageFetchResult is the outcome of fetching the target page.
// HTML is only populated for 2xx responses with an HTML content type.
type PageFetchResult struct {
	StatusCode  int
	ContentType string
	HTML        string
}

// HasHTML reports whether the fetch produced a body worth extracting from.
func (r PageFetchResult) HasHTML() bool {
	return r.HTML != ""
}
