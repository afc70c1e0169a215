package ogmeta

import "regexp"

// Source identifies the platform a saved link comes from.
type Source string

const (
	SourceInstagram Source = "Instagram"
	SourceYouTube   Source = "YouTube"
	SourceX         Source = "X"
	SourcePinterest Source = "Pinterest"
	SourceTikTok    Source = "TikTok"
	SourceThreads   Source = "Threads"
	SourceOther     Source = "Other"
)

// IsMetaFamily reports whether the source is served by Meta's infrastructure.
// These platforms only expose Open Graph tags to Meta's own crawler and reject
// anonymous server-side image downloads.
func (s Source) IsMetaFamily() bool {
	return s == SourceThreads || s == SourceInstagram
}

// Classification is the platform tag derived from a hostname plus the title to
// fall back on when the page yields none.
type Classification struct {
	Source        Source
	FallbackTitle string
}

type sourcePattern struct {
	pattern       *regexp.Regexp
	source        Source
	fallbackTitle string
}

// sourcePatterns is evaluated top to bottom and the first match wins.
// Keep the order stable: it is part of the classifier's contract.
var sourcePatterns = []sourcePattern{
	{regexp.MustCompile(`(?i)instagram\.com`), SourceInstagram, "Instagram 게시물"},
	{regexp.MustCompile(`(?i)youtube\.com|youtu\.be`), SourceYouTube, "YouTube 영상"},
	{regexp.MustCompile(`(?i)(^|\.)x\.com|twitter\.com`), SourceX, "X 게시물"},
	{regexp.MustCompile(`(?i)pinterest\.com|pin\.it`), SourcePinterest, "Pinterest 핀"},
	{regexp.MustCompile(`(?i)tiktok\.com`), SourceTikTok, "TikTok 영상"},
	{regexp.MustCompile(`(?i)threads\.net|threads\.com`), SourceThreads, "Threads 게시물"},
}

// Classify maps a hostname (not a full URL) to its platform.
// Unknown hosts classify as SourceOther with an empty fallback title.
func Classify(hostname string) Classification {
	for _, p := range sourcePatterns {
		if p.pattern.MatchString(hostname) {
			return Classification{Source: p.source, FallbackTitle: p.fallbackTitle}
		}
	}
	return Classification{Source: SourceOther}
}
