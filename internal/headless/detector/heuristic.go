// Package detector decides when an article fetch should be re-rendered headlessly.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// Heuristic promotes pages whose static HTML carries too little readable
// text and looks script-rendered.
type Heuristic struct {
	// MinParagraphText is the amount of paragraph text a static page needs
	// to be considered already rendered.
	MinParagraphText int
}

// NewHeuristic creates a new detector.
func NewHeuristic(minParagraphText int) *Heuristic {
	if minParagraphText <= 0 {
		minParagraphText = 500
	}
	return &Heuristic{MinParagraphText: minParagraphText}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("window.__APOLLO_STATE__"),
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp digest.FetchResponse) bool {
	if resp.StatusCode != 200 || resp.UsedHeadless {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if paragraphText(body) >= h.MinParagraphText {
		return false
	}
	if scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func paragraphText(body []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}
	total := 0
	doc.Find("article p, p").Each(func(_ int, s *goquery.Selection) {
		total += len(strings.TrimSpace(s.Text()))
	})
	return total
}

// scriptDensityHigh reports whether script elements cover at least a quarter
// of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		end := strings.Index(lower[start:], closeTag)
		if end == -1 {
			covered += total - start
			break
		}
		next := start + end + len(closeTag)
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
