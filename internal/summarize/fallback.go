package summarize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// FallbackSummary is delivered when no summary could be produced.
func FallbackSummary(title string) string {
	return fmt.Sprintf("Summary unavailable for '%s'. The article content could not be processed at this time.", title)
}

type fallback struct {
	next   digest.Summarizer
	logger *zap.Logger
}

// WithFallback never fails: any error or empty output from next is logged
// and replaced with FallbackSummary. Context cancellation is still returned
// so run deadlines are honored.
func WithFallback(next digest.Summarizer, logger *zap.Logger) digest.Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallback{next: next, logger: logger}
}

func (f *fallback) Summarize(ctx context.Context, title, body string) (string, error) {
	summary, err := f.next.Summarize(ctx, title, body)
	if err != nil && ctx.Err() != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if err != nil || summary == "" {
		f.logger.Warn("summarizer failed, using fallback summary",
			zap.String("title", title),
			zap.String("kind", string(digest.KindOf(err))),
			zap.Error(err),
		)
		return FallbackSummary(title), nil
	}
	return summary, nil
}
