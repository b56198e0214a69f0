// Package extractor finds candidate article links in decoded digest HTML.
package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/urlnorm"
)

// Section pairs a digest heading pattern with the hint recorded on its links.
type Section struct {
	Hint    digest.SectionHint
	Pattern *regexp.Regexp
}

// DefaultSections are scanned in order before the general fallback.
var DefaultSections = []Section{
	{Hint: digest.SectionHighlights, Pattern: regexp.MustCompile(`(?i)today['’]?s\s+highlights?`)},
	{Hint: digest.SectionFollowing, Pattern: regexp.MustCompile(`(?i)from\s+your\s+following`)},
}

// minCandidateTitle is the shortest title a candidate may carry.
const minCandidateTitle = 10

var blockTags = map[string]struct{}{
	"div": {}, "section": {}, "article": {}, "table": {}, "td": {},
}

// Extractor scans digest HTML with section-scoped strategies and a general fallback.
type Extractor struct {
	sections []Section
	logger   *zap.Logger
}

// New builds an Extractor. With no sections given, DefaultSections are used.
func New(logger *zap.Logger, sections ...Section) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(sections) == 0 {
		sections = DefaultSections
	}
	return &Extractor{sections: sections, logger: logger}
}

// Extract returns candidate links in discovery order. It never fails; an
// unparseable document yields no candidates.
func (e *Extractor) Extract(markup string) []digest.CandidateLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		e.logger.Error("parse digest html failed", zap.Error(err))
		return nil
	}

	var out []digest.CandidateLink
	for _, section := range e.sections {
		found := e.extractSection(doc, section)
		e.logger.Info("section scan complete",
			zap.String("section", string(section.Hint)), zap.Int("candidates", len(found)))
		out = append(out, found...)
	}
	if len(out) > 0 {
		return out
	}

	e.logger.Warn("no section candidates, falling back to general link scan")
	out = e.extractGeneral(doc)
	e.logger.Info("general scan complete", zap.Int("candidates", len(out)))
	return out
}

func (e *Extractor) extractSection(doc *goquery.Document, section Section) []digest.CandidateLink {
	heading := findHeading(doc, section.Pattern)
	if heading == nil {
		e.logger.Debug("section heading not found", zap.String("section", string(section.Hint)))
		return nil
	}

	block := goquery.NewDocumentFromNode(heading).Selection
	for block.Length() > 0 && !isBlock(block) {
		block = block.Parent()
	}
	if block.Length() == 0 {
		e.logger.Warn("section heading has no block container", zap.String("section", string(section.Hint)))
		return nil
	}
	container := block.Parent()
	if container.Length() == 0 {
		container = block
	}

	var out []digest.CandidateLink
	container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !urlnorm.Valid(href) {
			return
		}
		scope := a.Closest("div, td, tr")
		if scope.Length() == 0 {
			scope = container
		}
		title := titleFromDigestLink(a, scope)
		if runeLen(title) <= minCandidateTitle {
			return
		}
		out = append(out, digest.CandidateLink{
			URL:        href,
			AnchorText: collapse(a.Text()),
			Title:      title,
			Author:     authorFromBlock(scope),
			Section:    section.Hint,
		})
	})
	return out
}

func (e *Extractor) extractGeneral(doc *goquery.Document) []digest.CandidateLink {
	var out []digest.CandidateLink
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !urlnorm.Valid(href) {
			return
		}
		title := titleFromAnchor(a)
		if runeLen(title) <= minCandidateTitle {
			return
		}
		out = append(out, digest.CandidateLink{
			URL:        href,
			AnchorText: collapse(a.Text()),
			Title:      title,
			Author:     authorFromParent(a),
			Section:    digest.SectionGeneral,
		})
	})
	return out
}

// findHeading returns the element owning the first text node matching pattern.
func findHeading(doc *goquery.Document, pattern *regexp.Regexp) *html.Node {
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode && n.Parent != nil && pattern.MatchString(n.Data) {
			found = n.Parent
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return found
}

func isBlock(sel *goquery.Selection) bool {
	if len(sel.Nodes) == 0 || sel.Nodes[0].Type != html.ElementNode {
		return false
	}
	_, ok := blockTags[goquery.NodeName(sel)]
	return ok
}
