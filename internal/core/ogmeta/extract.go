package ogmeta

import (
	"regexp"
	"strings"
)

// metaTagPatterns matches one named meta tag in either attribute order:
//
//	<meta property="og:title" content="...">
//	<meta content="..." property="og:title">
//
// "name" is accepted in place of "property" since twitter:* and description
// tags use it.
type metaTagPatterns struct {
	nameFirst    *regexp.Regexp
	contentFirst *regexp.Regexp
}

const contentAttr = `[\s"']content\s*=\s*(?:"([^"]*)"|'([^']*)')`

func newMetaTagPatterns(name string) metaTagPatterns {
	key := `[\s"'](?:property|name)\s*=\s*["']` + regexp.QuoteMeta(name) + `["']`
	return metaTagPatterns{
		nameFirst:    regexp.MustCompile(`(?i)<meta\b[^>]*?` + key + `[^>]*?` + contentAttr),
		contentFirst: regexp.MustCompile(`(?i)<meta\b[^>]*?` + contentAttr + `[^>]*?` + key),
	}
}

var (
	ogTitle            = newMetaTagPatterns("og:title")
	twitterTitle       = newMetaTagPatterns("twitter:title")
	ogImage            = newMetaTagPatterns("og:image")
	twitterImage       = newMetaTagPatterns("twitter:image")
	ogDescription      = newMetaTagPatterns("og:description")
	genericDescription = newMetaTagPatterns("description")

	titleTagRe = regexp.MustCompile(`(?i)<title[^>]*>([^<]*)</title>`)
)

// find returns the first non-blank content value for the tag, or nil.
func (p metaTagPatterns) find(html string) *string {
	for _, re := range []*regexp.Regexp{p.nameFirst, p.contentFirst} {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		// Group 1 is a double-quoted value, group 2 a single-quoted one.
		if v := firstNonBlank(m[1], m[2]); v != nil {
			return v
		}
	}
	return nil
}

// ExtractMeta pulls title, image and description out of raw HTML.
//
// Preference order per field:
//   - title: og:title, twitter:title, <title>
//   - image: og:image, twitter:image
//   - description: og:description, description
//
// Values are returned as found in the markup (still entity-encoded); call
// Decode before using them. Malformed HTML simply yields fewer matches.
func ExtractMeta(html string) ExtractedMeta {
	if html == "" {
		return ExtractedMeta{}
	}

	return ExtractedMeta{
		Title:       firstOf(ogTitle.find(html), twitterTitle.find(html), findTitleTag(html)),
		Image:       firstOf(ogImage.find(html), twitterImage.find(html)),
		Description: firstOf(ogDescription.find(html), genericDescription.find(html)),
	}
}

// Decode returns a copy of m with HTML entities decoded in every field.
func (m ExtractedMeta) Decode() ExtractedMeta {
	return ExtractedMeta{
		Title:       DecodeOptional(m.Title),
		Image:       DecodeOptional(m.Image),
		Description: DecodeOptional(m.Description),
	}
}

func findTitleTag(html string) *string {
	m := titleTagRe.FindStringSubmatch(html)
	if m == nil {
		return nil
	}
	return firstNonBlank(m[1])
}

func firstNonBlank(values ...string) *string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

func firstOf(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
