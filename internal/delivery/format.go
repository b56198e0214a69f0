// Package delivery formats article summaries and posts them to Slack.
package delivery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// Format renders the chat message for one article. Every field is trimmed
// and must be non-empty.
func Format(title, summary, url string) (string, error) {
	title, summary, url = strings.TrimSpace(title), strings.TrimSpace(summary), strings.TrimSpace(url)
	var missing []string
	if title == "" {
		missing = append(missing, "title")
	}
	if summary == "" {
		missing = append(missing, "summary")
	}
	if url == "" {
		missing = append(missing, "url")
	}
	if len(missing) > 0 {
		return "", digest.NewError(digest.KindValidation, "format message",
			fmt.Errorf("%w: %s", errMissingField, strings.Join(missing, ", ")))
	}
	return fmt.Sprintf("📌 *%s*\n\n📝 %s\n\n🔗 link：%s", title, summary, url), nil
}

var errMissingField = errors.New("required message field is empty")
