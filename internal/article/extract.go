package article

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// Extractor applies title and body strategy chains to article HTML.
type Extractor struct {
	titles []TitleStrategy
	bodies []BodyStrategy
}

// NewExtractor builds an Extractor. Nil chains fall back to the defaults.
func NewExtractor(titles []TitleStrategy, bodies []BodyStrategy) *Extractor {
	if len(titles) == 0 {
		titles = DefaultTitleChain
	}
	if len(bodies) == 0 {
		bodies = DefaultBodyChain
	}
	return &Extractor{titles: titles, bodies: bodies}
}

// Extract parses raw page bytes, decoding them per contentType, and returns
// the article content for stub. A missing title or body is a
// content_extraction error.
func (e *Extractor) Extract(stub digest.ArticleStub, body []byte, contentType string, fetchedAt time.Time) (digest.ArticleContent, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return digest.ArticleContent{}, digest.NewError(digest.KindContentExtraction, "decode article", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return digest.ArticleContent{}, digest.NewError(digest.KindContentExtraction, "parse article", err)
	}
	if u, err := url.Parse(stub.URL); err == nil {
		doc.Url = u
	}

	title, ok := e.title(doc)
	if !ok {
		return digest.ArticleContent{}, digest.NewError(digest.KindContentExtraction, "extract title",
			fmt.Errorf("%w: no title in %s", digest.ErrNoContent, stub.URL))
	}
	author := authorOf(doc, stub.Author)

	doc.Find(noiseSelectors).Remove()
	text, ok := e.body(doc)
	if !ok {
		return digest.ArticleContent{}, digest.NewError(digest.KindContentExtraction, "extract body",
			fmt.Errorf("%w: no body in %s", digest.ErrNoContent, stub.URL))
	}

	content := digest.ArticleContent{
		URL:       stub.URL,
		Title:     title,
		Author:    author,
		Body:      text,
		FetchedAt: fetchedAt,
	}
	if !content.Valid() {
		return digest.ArticleContent{}, digest.NewError(digest.KindContentExtraction, "extract body",
			fmt.Errorf("%w: body too short in %s", digest.ErrNoContent, stub.URL))
	}
	return content, nil
}

func (e *Extractor) title(doc *goquery.Document) (string, bool) {
	for _, strategy := range e.titles {
		if title, ok := strategy.TryExtract(doc); ok {
			return title, true
		}
	}
	return "", false
}

func (e *Extractor) body(doc *goquery.Document) (string, bool) {
	for _, strategy := range e.bodies {
		if text, ok := strategy.TryExtract(doc); ok {
			return text, true
		}
	}
	return "", false
}

// authorOf prefers the stub's author and falls back to the page's author meta tag.
func authorOf(doc *goquery.Document, stubAuthor string) string {
	if stubAuthor != "" && stubAuthor != digest.DefaultAuthor {
		return stubAuthor
	}
	if meta := strings.TrimSpace(doc.Find(`meta[name="author"]`).AttrOr("content", "")); meta != "" {
		return meta
	}
	if stubAuthor == "" {
		return digest.DefaultAuthor
	}
	return stubAuthor
}
