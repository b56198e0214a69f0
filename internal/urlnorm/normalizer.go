package urlnorm

import (
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// Normalizer turns candidate links into unique article stubs.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer builds a Normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Normalize validates and canonicalizes every candidate and keeps the first
// stub seen for each canonical URL. Output preserves first-seen order.
func (n *Normalizer) Normalize(candidates []digest.CandidateLink) []digest.ArticleStub {
	seen := make(map[string]struct{}, len(candidates))
	stubs := make([]digest.ArticleStub, 0, len(candidates))
	rejected, duplicates := 0, 0
	for _, c := range candidates {
		if !Valid(c.URL) {
			rejected++
			continue
		}
		canonical := Normalize(c.URL)
		if _, dup := seen[canonical]; dup {
			duplicates++
			continue
		}
		seen[canonical] = struct{}{}
		author := strings.TrimSpace(c.Author)
		if author == "" {
			author = digest.DefaultAuthor
		}
		stubs = append(stubs, digest.ArticleStub{
			URL:    canonical,
			Title:  strings.TrimSpace(c.Title),
			Author: author,
		})
	}
	n.logger.Info("normalized candidate links",
		zap.Int("candidates", len(candidates)),
		zap.Int("stubs", len(stubs)),
		zap.Int("rejected", rejected),
		zap.Int("duplicates", duplicates),
	)
	return stubs
}
