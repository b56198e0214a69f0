package extractor

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/medium-digest/internal/urlnorm"
)

const (
	minAnchorTitle  = 15
	minHeadingTitle = 10
	minAuthorLen    = 3
	maxAuthorLen    = 49
)

var (
	ctaPattern      = regexp.MustCompile(`(?i)^(read\s+more|continue\s+reading|view\s+story|medium\.com)$`)
	bylinePattern   = regexp.MustCompile(`(?i)^(by\s+|@|read\s+more)`)
	byAuthorPattern = regexp.MustCompile(`(?i)\bby\s+([^,\n|]+)`)
	inClausePattern = regexp.MustCompile(`(?i)\s+in\s+.*$`)
	handlePattern   = regexp.MustCompile(`@([\w\-.]+)`)
	profilePath     = regexp.MustCompile(`(?:^|/)@[\w\-.]+(?:/|$)`)
)

// titleFromAnchor accepts the anchor's own text when it is long enough and
// not a call to action.
func titleFromAnchor(a *goquery.Selection) string {
	text := collapse(a.Text())
	if runeLen(text) > minAnchorTitle && !ctaPattern.MatchString(text) {
		return text
	}
	return ""
}

// titleFromDigestLink tries the anchor text, then the anchor's sibling text
// lines, then the first heading inside scope.
func titleFromDigestLink(a, scope *goquery.Selection) string {
	if title := titleFromAnchor(a); title != "" {
		return title
	}
	anchorText := collapse(a.Text())
	for _, line := range strings.Split(textLines(a.Parent()), "\n") {
		line = collapse(line)
		if runeLen(line) > minAnchorTitle && line != anchorText && !bylinePattern.MatchString(line) {
			return line
		}
	}
	for _, tag := range []string{"h1", "h2", "h3"} {
		heading := scope.Find(tag).First()
		if heading.Length() == 0 {
			continue
		}
		if text := collapse(heading.Text()); runeLen(text) > minHeadingTitle {
			return text
		}
	}
	return ""
}

// authorFromBlock looks for a profile link, then a "by Name" byline, then an @handle.
func authorFromBlock(scope *goquery.Selection) string {
	author := ""
	scope.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		text := collapse(a.Text())
		if text != "" && isProfileLink(href) && !urlnorm.Valid(href) {
			author = text
			return false
		}
		return true
	})
	if author != "" {
		return author
	}

	text := textLines(scope)
	if name := bylineName(text, true); name != "" {
		return name
	}
	if m := handlePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// isProfileLink reports whether href is a web link with an /@handle segment.
// mailto: and other schemes never qualify.
func isProfileLink(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return profilePath.MatchString(u.Path)
}

// authorFromParent only reads a "by Name" byline from the anchor's parent.
func authorFromParent(a *goquery.Selection) string {
	return bylineName(textLines(a.Parent()), false)
}

func bylineName(text string, trimIn bool) string {
	m := byAuthorPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	if trimIn {
		name = strings.TrimSpace(inClausePattern.ReplaceAllString(name, ""))
	}
	if n := runeLen(name); n < minAuthorLen || n > maxAuthorLen {
		return ""
	}
	return name
}

// textLines joins the trimmed text nodes under sel with newlines so adjacent
// elements stay separate lines.
func textLines(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
