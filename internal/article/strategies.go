package article

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	minTitleLength      = 5
	minBlockLength      = 5
	minParagraphLength  = 20
	minBodyChainLength  = 100
	maxReadabilityInput = 5 << 20
)

// TitleStrategy recovers an article title from a parsed page.
type TitleStrategy interface {
	TryExtract(doc *goquery.Document) (string, bool)
}

// BodyStrategy recovers an article body from a parsed page.
type BodyStrategy interface {
	TryExtract(doc *goquery.Document) (string, bool)
}

// SelectorTitle takes the first element matching Selector.
type SelectorTitle struct {
	Selector string
}

// TryExtract implements TitleStrategy.
func (s SelectorTitle) TryExtract(doc *goquery.Document) (string, bool) {
	el := doc.Find(s.Selector).First()
	if el.Length() == 0 {
		return "", false
	}
	title := CleanText(el.Text())
	if len(title) <= minTitleLength {
		return "", false
	}
	return title, true
}

// DefaultTitleChain is tried in order until one strategy succeeds.
var DefaultTitleChain = []TitleStrategy{
	SelectorTitle{Selector: `h1[data-testid="storyTitle"]`},
	SelectorTitle{Selector: "h1.graf--title"},
	SelectorTitle{Selector: "h1.p-name"},
	SelectorTitle{Selector: "h1"},
	SelectorTitle{Selector: "title"},
	SelectorTitle{Selector: `[data-testid="storyTitle"]`},
	SelectorTitle{Selector: ".graf--h3.graf--leading"},
}

// ContainerBody collects text blocks from the first container matching one
// of Selectors that yields enough text.
type ContainerBody struct {
	Selectors []string
}

// TryExtract implements BodyStrategy.
func (s ContainerBody) TryExtract(doc *goquery.Document) (string, bool) {
	for _, selector := range s.Selectors {
		container := doc.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		var parts []string
		container.Find("p, h1, h2, h3, h4, h5, h6, blockquote, li").Each(func(_ int, el *goquery.Selection) {
			if text := CleanText(el.Text()); len(text) > minBlockLength {
				parts = append(parts, text)
			}
		})
		if body := strings.Join(parts, "\n\n"); len(body) > minBodyChainLength {
			return body, true
		}
	}
	return "", false
}

// ParagraphBody joins every sufficiently long paragraph in the document.
type ParagraphBody struct{}

// TryExtract implements BodyStrategy.
func (ParagraphBody) TryExtract(doc *goquery.Document) (string, bool) {
	var parts []string
	doc.Find("p").Each(func(_ int, el *goquery.Selection) {
		if text := CleanText(el.Text()); len(text) > minParagraphLength {
			parts = append(parts, text)
		}
	})
	body := strings.Join(parts, "\n\n")
	return body, len(body) > minBodyChainLength
}

// ReadabilityBody runs go-readability over the raw page as a last resort.
type ReadabilityBody struct{}

// TryExtract implements BodyStrategy.
func (ReadabilityBody) TryExtract(doc *goquery.Document) (string, bool) {
	if doc.Url == nil {
		return "", false
	}
	markup, err := goquery.OuterHtml(doc.Selection)
	if err != nil || len(markup) > maxReadabilityInput {
		return "", false
	}
	parsed, err := readability.FromReader(strings.NewReader(markup), doc.Url)
	if err != nil {
		return "", false
	}
	var parts []string
	for _, line := range strings.Split(parsed.TextContent, "\n") {
		if text := CleanText(line); text != "" {
			parts = append(parts, text)
		}
	}
	body := strings.Join(parts, "\n\n")
	return body, len(body) > minBodyChainLength
}

// DefaultBodyChain is tried in order until one strategy succeeds.
var DefaultBodyChain = []BodyStrategy{
	ContainerBody{Selectors: []string{
		"article section",
		`[data-testid="storyContent"]`,
		".postArticle-content",
		".e-content",
		"article",
		".section-content",
		".story-content",
	}},
	ParagraphBody{},
	ReadabilityBody{},
}

// noiseSelectors are removed before body strategies run.
const noiseSelectors = "script, style, nav, header, footer, aside"
