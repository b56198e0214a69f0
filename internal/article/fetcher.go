package article

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/metrics"
	"github.com/JakeFAU/medium-digest/internal/resilience"
	"github.com/JakeFAU/medium-digest/internal/urlnorm"
)

// ChromeUserAgent is sent with every article request.
const ChromeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// BrowserHeaders returns the header set that makes a fetch look like a
// top-level browser navigation.
func BrowserHeaders() http.Header {
	return http.Header{
		"User-Agent":                {ChromeUserAgent},
		"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
		"Accept-Language":           {"en-US,en;q=0.5"},
		"Dnt":                       {"1"},
		"Upgrade-Insecure-Requests": {"1"},
		"Sec-Fetch-Dest":            {"document"},
		"Sec-Fetch-Mode":            {"navigate"},
		"Sec-Fetch-Site":            {"none"},
		"Cache-Control":             {"max-age=0"},
	}
}

// Waiter spaces out requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher retrieves and extracts article content.
type Fetcher struct {
	transport digest.Fetcher
	auth      digest.AuthProvider
	executor  *resilience.Executor
	extractor *Extractor
	hosts     *urlnorm.HostMatcher
	clock     digest.Clock
	logger    *zap.Logger

	limiter  Waiter
	headless digest.Fetcher
	detector digest.HeadlessDetector
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRateLimiter waits on limiter before every request.
func WithRateLimiter(limiter Waiter) Option {
	return func(f *Fetcher) { f.limiter = limiter }
}

// WithHeadless re-renders pages the detector flags as script-rendered.
func WithHeadless(headless digest.Fetcher, detector digest.HeadlessDetector) Option {
	return func(f *Fetcher) {
		f.headless = headless
		f.detector = detector
	}
}

// WithExtractor replaces the default strategy chains.
func WithExtractor(e *Extractor) Option {
	return func(f *Fetcher) {
		if e != nil {
			f.extractor = e
		}
	}
}

// WithHosts replaces the allowed article hosts.
func WithHosts(hosts *urlnorm.HostMatcher) Option {
	return func(f *Fetcher) {
		if hosts != nil {
			f.hosts = hosts
		}
	}
}

// NewFetcher wires an article Fetcher. auth may be nil for anonymous fetches.
func NewFetcher(
	transport digest.Fetcher,
	auth digest.AuthProvider,
	executor *resilience.Executor,
	clock digest.Clock,
	logger *zap.Logger,
	opts ...Option,
) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		transport: transport,
		auth:      auth,
		executor:  executor,
		extractor: NewExtractor(nil, nil),
		hosts:     urlnorm.NewHostMatcher(urlnorm.DefaultArticleHosts),
		clock:     clock,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves stub under the fetch retry policy. It returns the content,
// the number of attempts made and the final error.
func (f *Fetcher) Fetch(ctx context.Context, stub digest.ArticleStub) (digest.ArticleContent, int, error) {
	if !f.hosts.MatchURL(stub.URL) {
		return digest.ArticleContent{}, 0, digest.NewError(digest.KindValidation, "fetch article",
			fmt.Errorf("host not allowed: %s", stub.URL))
	}
	return resilience.Execute(ctx, f.executor, func(ctx context.Context) (digest.ArticleContent, error) {
		return f.fetchOnce(ctx, stub)
	})
}

func (f *Fetcher) fetchOnce(ctx context.Context, stub digest.ArticleStub) (digest.ArticleContent, error) {
	headers := BrowserHeaders()
	if f.auth != nil {
		authHeaders, err := f.auth.AuthHeaders(ctx)
		if err != nil {
			return digest.ArticleContent{}, err
		}
		for key, values := range authHeaders {
			headers[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
		}
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, stub.URL); err != nil {
			return digest.ArticleContent{}, err
		}
	}

	req := digest.FetchRequest{URL: stub.URL, Headers: headers}
	resp, err := f.transport.Fetch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return digest.ArticleContent{}, err
		}
		return digest.ArticleContent{}, digest.NewError(digest.KindNetwork, "fetch article", err)
	}
	f.logger.Debug("article response",
		zap.String("url", stub.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)
	if err := classifyStatus(resp); err != nil {
		return digest.ArticleContent{}, err
	}
	metrics.ObserveFetch(metrics.SanitizeSite(stub.URL), len(resp.Body))

	if f.headless != nil && f.detector != nil && f.detector.ShouldPromote(resp) {
		resp = f.promote(ctx, req, resp)
	}

	return f.extractor.Extract(stub, resp.Body, resp.Headers.Get("Content-Type"), f.now())
}

// promote re-renders the page headlessly, keeping the static response when
// rendering fails.
func (f *Fetcher) promote(ctx context.Context, req digest.FetchRequest, static digest.FetchResponse) digest.FetchResponse {
	f.logger.Info("promoting article fetch to headless", zap.String("url", req.URL))
	rendered, err := f.headless.Fetch(ctx, req)
	if err != nil {
		f.logger.Warn("headless render failed, using static html", zap.String("url", req.URL), zap.Error(err))
		return static
	}
	if classifyStatus(rendered) != nil {
		f.logger.Warn("headless render returned error status, using static html",
			zap.String("url", req.URL), zap.Int("status", rendered.StatusCode))
		return static
	}
	if rendered.Headers.Get("Content-Type") == "" {
		if rendered.Headers == nil {
			rendered.Headers = http.Header{}
		}
		rendered.Headers.Set("Content-Type", "text/html; charset=utf-8")
	}
	return rendered
}

func (f *Fetcher) now() time.Time {
	if f.clock == nil {
		return time.Now().UTC()
	}
	return f.clock.Now()
}

// classifyStatus maps a non-200 response to a classified error.
func classifyStatus(resp digest.FetchResponse) error {
	status := resp.StatusCode
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		err := digest.HTTPError(digest.KindRateLimit, "fetch article", status, errors.New("rate limited by medium"))
		err.RetryAfter = parseRetryAfter(resp.Headers.Get("Retry-After"))
		return err
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return digest.HTTPError(digest.KindAuthentication, "fetch article", status, errors.New("medium rejected credentials"))
	case status >= http.StatusInternalServerError:
		return digest.HTTPError(digest.KindNetwork, "fetch article", status, errors.New("medium server error"))
	default:
		return digest.HTTPError(digest.KindNetwork, "fetch article", status, fmt.Errorf("unexpected status from %s", hostOf(resp.URL)))
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "origin"
	}
	return u.Host
}
