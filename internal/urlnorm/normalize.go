package urlnorm

import (
	"net/url"
	"strings"
)

var trackingParams = map[string]struct{}{
	"source":   {},
	"ref":      {},
	"referrer": {},
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}

// Normalize canonicalizes an article URL: it lowercases the scheme and host,
// removes default ports and fragments, drops tracking query parameters and
// sorts the rest. Unparseable input is returned unchanged.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawFragment = ""

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return raw
	}
	for key := range query {
		if isTrackingParam(key) {
			delete(query, key)
		}
	}
	u.RawQuery = query.Encode()
	u.ForceQuery = false

	return u.String()
}
