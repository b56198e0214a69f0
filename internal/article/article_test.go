package article

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/resilience"
)

var paragraph = strings.Repeat("Concurrency in Go is built on goroutines and channels. ", 3)

func storyPage(title string) string {
	return `<html><head><title>Fallback Page Title | Medium</title><meta name="author" content="Meta Author"></head><body>
<nav>Home Sign in</nav>
<article><section>
<h1 data-testid="storyTitle">` + title + `</h1>
<p>` + paragraph + `</p>
<p>tiny</p>
<blockquote>` + paragraph + `</blockquote>
</section></article>
<footer>Follow</footer>
</body></html>`
}

type scriptedTransport struct {
	mu        sync.Mutex
	responses []digest.FetchResponse
	errs      []error
	requests  []digest.FetchRequest
}

func (s *scriptedTransport) Fetch(_ context.Context, req digest.FetchRequest) (digest.FetchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return digest.FetchResponse{}, s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) {
	p.mu.Lock()
	p.delays = append(p.delays, d)
	p.mu.Unlock()
}

type staticAuth struct {
	header http.Header
	err    error
}

func (a staticAuth) AuthHeaders(context.Context) (http.Header, error) {
	return a.header, a.err
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type alwaysPromote struct{}

func (alwaysPromote) ShouldPromote(digest.FetchResponse) bool { return true }

func ok(body string) digest.FetchResponse {
	return digest.FetchResponse{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
}

func status(code int) digest.FetchResponse {
	return digest.FetchResponse{StatusCode: code, Headers: http.Header{}}
}

func newTestFetcher(transport digest.Fetcher, pauser resilience.Pauser, opts ...Option) *Fetcher {
	ex := resilience.New("fetch", resilience.FetchPolicy, resilience.WithPauser(pauser))
	auth := staticAuth{header: http.Header{"Cookie": {"sid=abc; uid=1"}}}
	clock := fixedClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	return NewFetcher(transport, auth, ex, clock, zap.NewNop(), opts...)
}

var stub = digest.ArticleStub{
	URL:    "https://medium.com/@alice/go-concurrency-1a2b3c4d",
	Title:  "Digest Title",
	Author: "Alice Smith",
}

func TestFetchExtractsContent(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{responses: []digest.FetchResponse{ok(storyPage("Go Concurrency Patterns"))}}
	content, attempts, err := newTestFetcher(transport, &recordingPauser{}).Fetch(context.Background(), stub)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, "Go Concurrency Patterns", content.Title)
	require.Equal(t, "Alice Smith", content.Author)
	require.Equal(t, "Go Concurrency Patterns\n\n"+CleanText(paragraph)+"\n\n"+CleanText(paragraph), content.Body)
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), content.FetchedAt)

	sent := transport.requests[0].Headers
	require.Equal(t, ChromeUserAgent, sent.Get("User-Agent"))
	require.Equal(t, "en-US,en;q=0.5", sent.Get("Accept-Language"))
	require.Equal(t, "sid=abc; uid=1", sent.Get("Cookie"))
}

func TestFetchRetriesRateLimit(t *testing.T) {
	t.Parallel()

	limited := status(http.StatusTooManyRequests)
	limited.Headers.Set("Retry-After", "7")
	transport := &scriptedTransport{responses: []digest.FetchResponse{limited, limited, ok(storyPage("Go Concurrency Patterns"))}}
	pauser := &recordingPauser{}

	content, attempts, err := newTestFetcher(transport, pauser).Fetch(context.Background(), stub)
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, "Go Concurrency Patterns", content.Title)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, pauser.delays)
}

func TestFetchStatusClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code     int
		kind     digest.Kind
		attempts int
	}{
		{http.StatusUnauthorized, digest.KindAuthentication, 1},
		{http.StatusForbidden, digest.KindAuthentication, 1},
		{http.StatusBadGateway, digest.KindNetwork, 4},
		{http.StatusNotFound, digest.KindNetwork, 4},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			t.Parallel()
			transport := &scriptedTransport{responses: []digest.FetchResponse{status(tc.code)}}
			_, attempts, err := newTestFetcher(transport, &recordingPauser{}).Fetch(context.Background(), stub)
			require.Error(t, err)
			require.Equal(t, tc.kind, digest.KindOf(err))
			require.Equal(t, tc.attempts, attempts)
			require.Equal(t, tc.attempts, transport.calls())
		})
	}
}

func TestFetchTransportErrorIsNetwork(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	transport := &scriptedTransport{
		errs:      []error{boom},
		responses: []digest.FetchResponse{ok(storyPage("Recovered After Reset"))},
	}
	content, attempts, err := newTestFetcher(transport, &recordingPauser{}).Fetch(context.Background(), stub)
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, "Recovered After Reset", content.Title)
}

func TestFetchRejectsForeignHost(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{}
	_, attempts, err := newTestFetcher(transport, &recordingPauser{}).
		Fetch(context.Background(), digest.ArticleStub{URL: "https://evil.example/@a/post-1234abcd"})
	require.True(t, digest.IsKind(err, digest.KindValidation))
	require.Zero(t, attempts)
	require.Zero(t, transport.calls())
}

func TestFetchMissingBodyIsFatal(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{responses: []digest.FetchResponse{ok(`<html><body><h1>A Real Title Here</h1><p>short</p></body></html>`)}}
	_, attempts, err := newTestFetcher(transport, &recordingPauser{}).Fetch(context.Background(), stub)
	require.True(t, digest.IsKind(err, digest.KindContentExtraction))
	require.ErrorIs(t, err, digest.ErrNoContent)
	require.Equal(t, 1, attempts)
}

func TestFetchAuthProviderFailureIsFatal(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{responses: []digest.FetchResponse{ok(storyPage("Never Fetched"))}}
	ex := resilience.New("fetch", resilience.FetchPolicy, resilience.WithPauser(&recordingPauser{}))
	auth := staticAuth{err: digest.NewError(digest.KindAuthentication, "load cookies", errors.New("secret missing"))}
	f := NewFetcher(transport, auth, ex, nil, nil)

	_, attempts, err := f.Fetch(context.Background(), stub)
	require.True(t, digest.IsKind(err, digest.KindAuthentication))
	require.Equal(t, 1, attempts)
	require.Zero(t, transport.calls())
}

func TestFetchPromotesToHeadless(t *testing.T) {
	t.Parallel()

	static := &scriptedTransport{responses: []digest.FetchResponse{ok(`<html><body><div id="root"></div></body></html>`)}}
	rendered := ok(storyPage("Rendered By Chrome"))
	rendered.Headers = nil
	rendered.UsedHeadless = true
	headless := &scriptedTransport{responses: []digest.FetchResponse{rendered}}

	f := newTestFetcher(static, &recordingPauser{}, WithHeadless(headless, alwaysPromote{}))
	content, _, err := f.Fetch(context.Background(), stub)
	require.NoError(t, err)
	require.Equal(t, "Rendered By Chrome", content.Title)
	require.Equal(t, 1, headless.calls())
	require.Equal(t, "sid=abc; uid=1", headless.requests[0].Headers.Get("Cookie"))
}

func TestFetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	limiter := &countingWaiter{}
	transport := &scriptedTransport{responses: []digest.FetchResponse{ok(storyPage("Go Concurrency Patterns"))}}
	_, _, err := newTestFetcher(transport, &recordingPauser{}, WithRateLimiter(limiter)).Fetch(context.Background(), stub)
	require.NoError(t, err)
	require.Equal(t, []string{stub.URL}, limiter.urls)
}

type countingWaiter struct {
	urls []string
}

func (w *countingWaiter) Wait(_ context.Context, rawURL string) error {
	w.urls = append(w.urls, rawURL)
	return nil
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	require.Equal(t, 30*time.Second, parseRetryAfter("30"))
	require.Zero(t, parseRetryAfter(""))
	require.Zero(t, parseRetryAfter("soon"))
}
