package ogmeta

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	hexEntityRe     = regexp.MustCompile(`&#[xX]([0-9a-fA-F]+);`)
	decimalEntityRe = regexp.MustCompile(`&#(\d+);`)

	// &amp; gets its own pass ahead of the other named entities, so a
	// double-escaped "&amp;lt;" decodes all the way to "<".
	ampEntity     = strings.NewReplacer("&amp;", "&")
	namedEntities = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&nbsp;", " ",
	)
)

// DecodeEntities decodes the numeric character references and the small set of
// named entities that show up in Open Graph content attributes.
// References to invalid code points are left as-is.
func DecodeEntities(s string) string {
	if s == "" || !strings.Contains(s, "&") {
		return s
	}

	s = hexEntityRe.ReplaceAllStringFunc(s, func(m string) string {
		return decodeCodePoint(m, hexEntityRe.FindStringSubmatch(m)[1], 16)
	})
	s = decimalEntityRe.ReplaceAllStringFunc(s, func(m string) string {
		return decodeCodePoint(m, decimalEntityRe.FindStringSubmatch(m)[1], 10)
	})

	s = ampEntity.Replace(s)
	return namedEntities.Replace(s)
}

// DecodeOptional is DecodeEntities for optional fields; nil stays nil.
func DecodeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	decoded := DecodeEntities(*s)
	return &decoded
}

func decodeCodePoint(match, digits string, base int) string {
	n, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return match
	}
	r := rune(n)
	if !utf8.ValidRune(r) {
		return match
	}
	return string(r)
}
