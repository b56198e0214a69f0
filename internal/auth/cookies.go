package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

var errNoCookies = errors.New("no usable cookies in secret")

// Cookie is one name/value pair from the cookie secret.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseCookies accepts a JSON array of cookie objects, a JSON object of
// name/value pairs (optionally nested under "cookies" or "value"), or the
// legacy "k=v; k2=v2" header form.
func ParseCookies(raw string) ([]Cookie, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errNoCookies
	}

	var cookies []Cookie
	switch raw[0] {
	case '[':
		var list []Cookie
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("parse cookie array: %w", err)
		}
		cookies = list
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("parse cookie object: %w", err)
		}
		for _, key := range []string{"cookies", "value"} {
			if nested, ok := obj[key]; ok {
				return parseNested(nested)
			}
		}
		names := make([]string, 0, len(obj))
		for name := range obj {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			var value string
			if err := json.Unmarshal(obj[name], &value); err != nil {
				return nil, fmt.Errorf("cookie %q is not a string: %w", name, err)
			}
			cookies = append(cookies, Cookie{Name: name, Value: value})
		}
	default:
		for _, pair := range strings.Split(raw, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				continue
			}
			cookies = append(cookies, Cookie{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
		}
	}

	out := cookies[:0]
	for _, c := range cookies {
		if c.Name != "" && c.Value != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, errNoCookies
	}
	return out, nil
}

// parseNested handles {"cookies": [...]} and {"cookies": "k=v; ..."}.
func parseNested(nested json.RawMessage) ([]Cookie, error) {
	var asString string
	if err := json.Unmarshal(nested, &asString); err == nil {
		return ParseCookies(asString)
	}
	return ParseCookies(string(nested))
}

// Header renders cookies as a Cookie header value.
func Header(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// CookieProvider implements digest.AuthProvider from a cookie secret,
// re-reading the secret once the TTL expires.
type CookieProvider struct {
	source SecretSource
	ttl    time.Duration
	clock  digest.Clock
	logger *zap.Logger

	mu       sync.Mutex
	header   string
	loadedAt time.Time
}

var _ digest.AuthProvider = (*CookieProvider)(nil)

// NewCookieProvider builds a provider. A zero ttl caches for the process lifetime.
func NewCookieProvider(source SecretSource, ttl time.Duration, clock digest.Clock, logger *zap.Logger) *CookieProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CookieProvider{source: source, ttl: ttl, clock: clock, logger: logger}
}

// AuthHeaders implements digest.AuthProvider. Failures are authentication errors.
func (p *CookieProvider) AuthHeaders(ctx context.Context) (http.Header, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.header == "" || (p.ttl > 0 && now.Sub(p.loadedAt) >= p.ttl) {
		raw, err := p.source.Secret(ctx)
		if err != nil {
			return nil, digest.NewError(digest.KindAuthentication, "load cookies", err)
		}
		cookies, err := ParseCookies(raw)
		if err != nil {
			return nil, digest.NewError(digest.KindAuthentication, "parse cookies", err)
		}
		p.header = Header(cookies)
		p.loadedAt = now
		p.logger.Info("loaded medium cookies", zap.Int("count", len(cookies)))
	}
	return http.Header{"Cookie": {p.header}}, nil
}

func (p *CookieProvider) now() time.Time {
	if p.clock == nil {
		return time.Now()
	}
	return p.clock.Now()
}
