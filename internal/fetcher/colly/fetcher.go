// Package collyfetcher implements digest.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 8 << 20
	articleAccept      = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5"
)

// Config controls collector behavior. MaxBodySize caps how much of an
// article page is read; zero selects 8MB.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher implements digest.Fetcher using the Colly collector. Non-2xx
// responses are returned with their status so callers can classify them.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	template  *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attempt holds what a single visit produced.
type attempt struct {
	start time.Time
	resp  digest.FetchResponse
	err   error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	return NewWithTransport(cfg, newHTTPTransport())
}

// NewWithTransport builds a Fetcher over a caller-supplied transport.
func NewWithTransport(cfg Config, transport http.RoundTripper) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(transport)
	return &Fetcher{cfg: cfg, transport: transport, template: c}
}

// Fetch retrieves one article page. Transport failures are returned as
// errors; HTTP error statuses are not.
func (f *Fetcher) Fetch(ctx context.Context, request digest.FetchRequest) (digest.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return digest.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", err)
	}
	a := &attempt{start: time.Now()}
	collector := f.buildCollector(ctx, request, a)
	if err := f.visit(ctx, collector, request.URL, a); err != nil {
		return digest.FetchResponse{}, err
	}
	return a.resp, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, request digest.FetchRequest, a *attempt) *colly.Collector {
	collector := f.template.Clone()
	// Bind the request to ctx so cancellation aborts the in-flight attempt
	// instead of leaving it to the request timeout.
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	// Article links come from a personal digest, so robots rules and
	// revisit tracking do not apply; retries must be able to refetch.
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = f.cfg.MaxBodySize
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)

	f.attachHooks(collector, request, a)
	return collector
}

func (f *Fetcher) attachHooks(hooks collectorHooks, request digest.FetchRequest, a *attempt) {
	hooks.OnRequest(func(r *colly.Request) {
		if r.Headers.Get("Accept") == "" {
			r.Headers.Set("Accept", articleAccept)
		}
		applyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		a.resp = digest.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(a.start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		a.err = err
	})
}

func (f *Fetcher) visit(ctx context.Context, collector *colly.Collector, target string, a *attempt) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		switch {
		case err != nil:
			return fmt.Errorf("colly visit %s: %w", target, err)
		case a.err != nil:
			return fmt.Errorf("colly response %s: %w", target, a.err)
		}
		return nil
	}
}

// applyHeaders replaces request headers with the caller's values, which
// carry the session cookie for member-only stories.
func applyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}
