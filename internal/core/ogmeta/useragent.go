package ogmeta

const (
	// BrowserUserAgent is a current desktop Chrome identity. Most platforms serve
	// complete Open Graph markup to it.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// MetaCrawlerUserAgent identifies as Meta's link-preview crawler. Threads and
	// Instagram return a JS shell to browsers and real og: tags only to this agent.
	MetaCrawlerUserAgent = "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)"

	defaultAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// UserAgentTable maps a source to the User-Agent used when fetching its pages.
// Sources missing from the table use the table's fallback.
type UserAgentTable struct {
	bySource map[Source]string
	fallback string
}

// DefaultUserAgents returns the table used in production: Meta-family sources
// get the crawler identity, everything else the browser identity.
func DefaultUserAgents() UserAgentTable {
	return UserAgentTable{
		bySource: map[Source]string{
			SourceInstagram: MetaCrawlerUserAgent,
			SourceThreads:   MetaCrawlerUserAgent,
		},
		fallback: BrowserUserAgent,
	}
}

// with returns a copy of the table with ua assigned to source.
func (t UserAgentTable) with(source Source, ua string) UserAgentTable {
	next := make(map[Source]string, len(t.bySource)+1)
	for k, v := range t.bySource {
		next[k] = v
	}
	next[source] = ua
	return UserAgentTable{bySource: next, fallback: t.fallback}
}

// For returns the User-Agent to send for source.
func (t UserAgentTable) For(source Source) string {
	if ua, ok := t.bySource[source]; ok {
		return ua
	}
	if t.fallback != "" {
		return t.fallback
	}
	return BrowserUserAgent
}
