package ogmeta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedRequest is what the upstream saw for one outbound request.
type recordedRequest struct {
	host      string
	path      string
	userAgent string
}

// upstream routes every outbound request, whatever its host, to a single
// httptest server and records the original host and headers.
type upstream struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests = append(u.requests, recordedRequest{
			host:      r.Header.Get("X-Original-Host"),
			path:      r.URL.Path,
			userAgent: r.Header.Get("User-Agent"),
		})
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) RoundTrip(req *http.Request) (*http.Response, error) {
	target, _ := url.Parse(u.server.URL)
	out := req.Clone(req.Context())
	out.Header.Set("X-Original-Host", req.URL.Host)
	out.URL.Scheme = target.Scheme
	out.URL.Host = target.Host
	out.Host = target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func (u *upstream) recorded() []recordedRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]recordedRequest(nil), u.requests...)
}

func (u *upstream) pageFetcher(timeout time.Duration) *HTTPPageFetcher {
	f := NewHTTPPageFetcher(timeout, DefaultUserAgents())
	f.client.Transport = u
	return f
}

func (u *upstream) thumbnailProxy(uploader *mockUploader) *ThumbnailProxy {
	p := NewThumbnailProxy(uploader, 5*time.Second, 0)
	p.client.Transport = u
	return p
}

// stubFetcher returns a fixed result and counts calls.
type stubFetcher struct {
	mu     sync.Mutex
	result PageFetchResult
	err    error
	calls  int
}

func (f *stubFetcher) FetchHTML(_ context.Context, _ string, _ Source) (PageFetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingRepo wraps a memory repository and counts writes.
type countingRepo struct {
	Repository
	mu   sync.Mutex
	sets int
	err  error
}

func (r *countingRepo) Get(ctx context.Context, url string) (*MetadataResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.Repository.Get(ctx, url)
}

func (r *countingRepo) Set(ctx context.Context, url string, result *MetadataResult, ttl time.Duration) error {
	r.mu.Lock()
	r.sets++
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.Repository.Set(ctx, url, result, ttl)
}

func htmlPage(body string) PageFetchResult {
	return PageFetchResult{StatusCode: http.StatusOK, ContentType: "text/html", HTML: body}
}

func TestNewService_RequiresFetcher(t *testing.T) {
	svc, err := NewService(nil)
	assert.Nil(t, svc)
	assert.True(t, errors.Is(err, ErrNilDependency))
}

func TestResolve_SchemelessYouTube(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<meta property="og:title" content="Cat &amp; Dog">`))
	})

	svc, err := NewService(up.pageFetcher(5 * time.Second))
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), "youtube.com/watch?v=abc")
	require.NoError(t, err)

	assert.Equal(t, SourceYouTube, result.Source)
	assert.True(t, strings.HasPrefix(result.URL, "https://"), "url %q", result.URL)
	assert.Equal(t, "https://youtube.com/watch?v=abc", result.URL)
	assert.Equal(t, "Cat & Dog", result.Title)
	assert.Nil(t, result.ThumbnailURL)
	assert.Nil(t, result.Description)

	reqs := up.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "youtube.com", reqs[0].host)
	assert.Equal(t, BrowserUserAgent, reqs[0].userAgent)
}

func TestResolve_ThreadsSkipsThumbnailProxy(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<meta property="og:title" content="A thread">
<meta property="og:image" content="https://scontent.cdninstagram.com/v/t51/pic.jpg?a=1&amp;b=2">`))
	})
	uploader := &mockUploader{}

	svc, err := NewService(up.pageFetcher(5*time.Second), WithThumbnailProxy(up.thumbnailProxy(uploader)))
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), "https://threads.net/@x/post/1")
	require.NoError(t, err)

	assert.Equal(t, SourceThreads, result.Source)
	assert.Equal(t, "A thread", result.Title)
	require.NotNil(t, result.ThumbnailURL)
	assert.Equal(t, "https://scontent.cdninstagram.com/v/t51/pic.jpg?a=1&b=2", *result.ThumbnailURL)

	reqs := up.recorded()
	require.Len(t, reqs, 1, "only the page may be fetched; the image must not be downloaded")
	assert.Equal(t, MetaCrawlerUserAgent, reqs[0].userAgent)
	assert.Equal(t, 0, uploader.count())
}

func TestResolve_UnreachableHostFallsBack(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	svc, err := NewService(up.pageFetcher(50 * time.Millisecond))
	require.NoError(t, err)

	t.Run("known platform uses its fallback title", func(t *testing.T) {
		result, err := svc.Resolve(context.Background(), "https://www.tiktok.com/@u/video/1")
		require.NoError(t, err)
		assert.Equal(t, "TikTok 영상", result.Title)
		assert.Equal(t, SourceTikTok, result.Source)
		assert.Nil(t, result.ThumbnailURL)
		assert.Nil(t, result.Description)
		assert.Equal(t, "https://www.tiktok.com/@u/video/1", result.URL)
	})

	t.Run("unknown host uses hostname", func(t *testing.T) {
		result, err := svc.Resolve(context.Background(), "https://unreachable.example.org/page")
		require.NoError(t, err)
		assert.Equal(t, "unreachable.example.org", result.Title)
		assert.Equal(t, SourceOther, result.Source)
		assert.Nil(t, result.ThumbnailURL)
	})
}

func TestResolve_InvalidInput(t *testing.T) {
	fetcher := &stubFetcher{}
	svc, err := NewService(fetcher)
	require.NoError(t, err)

	for _, raw := range []string{"", "   ", "ftp://example.com", "https://"} {
		result, err := svc.Resolve(context.Background(), raw)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, ErrInvalidURL), "input %q: got %v", raw, err)
	}
	assert.Equal(t, 0, fetcher.callCount())
}

func TestResolve_RelativeImageResolvedBeforeProxy(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/static/preview.jpg" {
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg bytes"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<title>Example</title><meta property="og:image" content="/static/preview.jpg">`))
	})
	uploader := &mockUploader{}

	svc, err := NewService(up.pageFetcher(5*time.Second), WithThumbnailProxy(up.thumbnailProxy(uploader)))
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), "https://example.com/article")
	require.NoError(t, err)

	reqs := up.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, "example.com", reqs[1].host)
	assert.Equal(t, "/static/preview.jpg", reqs[1].path)

	require.Equal(t, 1, uploader.count())
	require.NotNil(t, result.ThumbnailURL)
	assert.Equal(t, "https://storage.test/"+uploader.uploads[0].path, *result.ThumbnailURL)
	assert.Equal(t, "Example", result.Title)
}

func TestResolve_RelativeImageWithoutProxy(t *testing.T) {
	fetcher := &stubFetcher{result: htmlPage(`<meta property="og:image" content="/static/preview.jpg">`)}
	svc, err := NewService(fetcher)
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), "https://example.com/a/b")
	require.NoError(t, err)
	require.NotNil(t, result.ThumbnailURL)
	assert.Equal(t, "https://example.com/static/preview.jpg", *result.ThumbnailURL)
}

func TestResolve_DecodesAllFields(t *testing.T) {
	fetcher := &stubFetcher{result: htmlPage(`
<meta property="og:title" content="&#xD55C;&#xAE00; &amp; English">
<meta property="og:description" content="&quot;quoted&quot;&nbsp;text">`)}
	svc, err := NewService(fetcher)
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), "blog.example.com/post")
	require.NoError(t, err)
	assert.Equal(t, "한글 & English", result.Title)
	require.NotNil(t, result.Description)
	assert.Equal(t, `"quoted" text`, *result.Description)
}

func TestResolve_BlankDecodedTitleFallsBack(t *testing.T) {
	fetcher := &stubFetcher{result: htmlPage(`<meta property="og:title" content="&nbsp;">`)}
	svc, err := NewService(fetcher)
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), "https://pin.it/abc")
	require.NoError(t, err)
	assert.Equal(t, "Pinterest 핀", result.Title)
}

func TestResolve_CachesSuccessfulResults(t *testing.T) {
	fetcher := &stubFetcher{result: htmlPage(`<title>Cached</title>`)}
	repo := &countingRepo{Repository: NewMemoryRepository(10, time.Hour)}
	svc, err := NewService(fetcher, WithRepository(repo, time.Hour))
	require.NoError(t, err)

	first, err := svc.Resolve(context.Background(), "example.com/x")
	require.NoError(t, err)
	second, err := svc.Resolve(context.Background(), "https://example.com/x")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fetcher.callCount(), "second call must be served from cache")
	assert.Equal(t, 1, repo.sets)
}

func TestResolve_DoesNotCacheFallbackResults(t *testing.T) {
	fetcher := &stubFetcher{err: ErrFetchTimeout}
	repo := &countingRepo{Repository: NewMemoryRepository(10, time.Hour)}
	svc, err := NewService(fetcher, WithRepository(repo, time.Hour))
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), "https://example.com/slow")
	require.NoError(t, err)
	assert.Equal(t, 0, repo.sets)
}

func TestResolve_CacheErrorsAreIgnored(t *testing.T) {
	fetcher := &stubFetcher{result: htmlPage(`<title>Still works</title>`)}
	repo := &countingRepo{Repository: NewMemoryRepository(10, time.Hour), err: errors.New("db down")}
	svc, err := NewService(fetcher, WithRepository(repo, time.Hour))
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "Still works", result.Title)
}

func TestResolve_CircuitBreakerSkipsFailingHost(t *testing.T) {
	fetcher := &stubFetcher{err: ErrFetchFailed}
	svc, err := NewService(fetcher, WithCircuitBreaker(2, time.Minute))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		result, err := svc.Resolve(context.Background(), "https://www.instagram.com/p/abc")
		require.NoError(t, err)
		assert.Equal(t, "Instagram 게시물", result.Title)
	}

	assert.Equal(t, 2, fetcher.callCount(), "fetches stop once the circuit opens")
	stats := svc.CircuitStats()
	require.Contains(t, stats, "www.instagram.com")
	assert.Equal(t, "open", stats["www.instagram.com"].State)
}

func TestResolve_PageSpecificFailuresDoNotTripBreaker(t *testing.T) {
	fetcher := &stubFetcher{
		result: PageFetchResult{StatusCode: http.StatusNotFound},
		err:    ErrUpstreamStatus,
	}
	svc, err := NewService(fetcher, WithCircuitBreaker(1, time.Minute))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Resolve(context.Background(), "https://example.com/missing")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, fetcher.callCount())
	assert.Empty(t, svc.CircuitStats())
}

func TestIsHostFailure(t *testing.T) {
	assert.True(t, isHostFailure(PageFetchResult{}, ErrFetchTimeout))
	assert.True(t, isHostFailure(PageFetchResult{}, ErrFetchFailed))
	assert.True(t, isHostFailure(PageFetchResult{StatusCode: 503}, ErrUpstreamStatus))
	assert.False(t, isHostFailure(PageFetchResult{StatusCode: 404}, ErrUpstreamStatus))
	assert.False(t, isHostFailure(PageFetchResult{StatusCode: 200}, ErrNotHTML))
}

func TestResolve_RefusesLoopbackPage(t *testing.T) {
	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<title>INTERNAL ADMIN secret-token=abc123</title>`))
	}))
	defer internal.Close()

	svc, err := NewService(NewHTTPPageFetcher(5*time.Second, DefaultUserAgents()))
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), internal.URL+"/admin")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", result.Title)
	assert.Nil(t, result.Description)
	assert.Zero(t, hits.Load(), "no request may reach a loopback address")
	assert.Zero(t, svc.(*service).circuitBreaker.trackedHosts(), "blocked addresses are not host failures")
}

func TestResolve_RefusesLoopbackThumbnail(t *testing.T) {
	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("internal png"))
	}))
	defer internal.Close()

	imageURL := internal.URL + "/internal.png"
	fetcher := &stubFetcher{result: htmlPage(`<meta property="og:image" content="` + imageURL + `">`)}
	uploader := &mockUploader{}
	svc, err := NewService(fetcher, WithThumbnailProxy(NewThumbnailProxy(uploader, 5*time.Second, 0)))
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), "https://blog.example.com/post")
	require.NoError(t, err)

	require.NotNil(t, result.ThumbnailURL)
	assert.Equal(t, imageURL, *result.ThumbnailURL)
	assert.Zero(t, uploader.count())
	assert.Zero(t, hits.Load())
}

func TestResolve_CallerCancellationDoesNotTripBreaker(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<meta property="og:title" content="Healthy page">`))
	})

	svc, err := NewService(up.pageFetcher(5*time.Second), WithCircuitBreaker(3, 5*time.Minute))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := svc.Resolve(ctx, "https://www.youtube.com/watch?v=abc")
		cancel()
		require.NoError(t, err)
	}

	assert.Empty(t, svc.CircuitStats())
	assert.Zero(t, svc.(*service).circuitBreaker.trackedHosts())

	result, err := svc.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, "Healthy page", result.Title)
}
