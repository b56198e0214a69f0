package urlnorm

import (
	"net/url"
	"strings"
)

// DefaultArticleHosts are the hosts article fetches are allowed to reach.
var DefaultArticleHosts = []string{
	"medium.com",
	"*.medium.com",
	"towardsdatascience.com",
	"hackernoon.com",
	"uxdesign.cc",
	"levelup.gitconnected.com",
}

// HostMatcher stores exact hosts and suffix wildcards derived from configuration.
type HostMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewHostMatcher builds a matcher from patterns such as "medium.com" or
// "*.medium.com". A nil matcher is returned when no usable pattern is given.
func NewHostMatcher(patterns []string) *HostMatcher {
	matcher := &HostMatcher{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (m *HostMatcher) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

// MatchHost reports whether host is covered. Wildcards match subdomains only.
func (m *HostMatcher) MatchHost(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := m.exact[host]; exact {
		return true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// MatchURL reports whether the URL's host is covered.
func (m *HostMatcher) MatchURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return m.MatchHost(u.Hostname())
}
