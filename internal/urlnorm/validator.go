// Package urlnorm validates, canonicalizes and deduplicates article URLs
// found in digest emails.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

// denyPatterns reject help, CDN, account, store and asset links even when an
// article pattern would also match.
var denyPatterns = compileAll(
	`help\.medium\.com`,
	`miro\.medium\.com`,
	`cdn-images-\d+\.medium\.com`,
	`medium\.com/plans`,
	`medium\.com/me/`,
	`medium\.com/jobs`,
	`policy\.medium\.com`,
	`medium\.com/\?source=`,
	`medium\.com/$`,
	`itunes\.apple\.com`,
	`play\.google\.com`,
	`\.css$`,
	`\.js$`,
	`\.png$|\.jpg$|\.jpeg$|\.gif$`,
)

// allowPatterns describe article-shaped URLs, most specific first. They are
// matched against host+path only, so a Medium URL carried in another
// site's query string does not qualify.
var allowPatterns = compileAll(
	`^(?:www\.)?medium\.com/@[\w\-.]+/[\w\-]+-[a-f0-9]+`,
	`^[\w\-]+\.medium\.com/[\w\-]+-[a-f0-9]+`,
	`^(?:www\.)?medium\.com/[\w\-]+/[\w\-]+-[a-f0-9]+`,
	`^(?:www\.)?medium\.com/@[\w\-.]+/[\w\-]+`,
	`^[\w\-]+\.medium\.com/[\w\-]+`,
	`^(?:www\.)?medium\.com/[\w\-]+/[\w\-]+`,
	`^(?:www\.)?(towardsdatascience\.com|hackernoon\.com|uxdesign\.cc|levelup\.gitconnected\.com)/(@[\w\-.]+/)?[\w\-]+-[a-f0-9]{6,}`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// Valid reports whether raw looks like a fetchable article URL. The scheme
// must be https, no deny pattern may match the full URL and the host and
// path must match an article pattern.
func Valid(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return false
	}
	for _, re := range denyPatterns {
		if re.MatchString(raw) {
			return false
		}
	}
	target := strings.ToLower(u.Hostname()) + u.EscapedPath()
	for _, re := range allowPatterns {
		if re.MatchString(target) {
			return true
		}
	}
	return false
}
