package summarize

import (
	"context"
	"strings"
	"unicode"
)

// Static summarizes by taking the leading sentences of the body. It needs no
// network access and suits local runs.
type Static struct {
	Sentences int
}

// Summarize implements digest.Summarizer.
func (s Static) Summarize(_ context.Context, _ string, body string) (string, error) {
	limit := s.Sentences
	if limit <= 0 {
		limit = 2
	}
	text := strings.Join(strings.Fields(body), " ")
	var out strings.Builder
	count := 0
	runes := []rune(text)
	for i, r := range runes {
		out.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		count++
		if count == limit {
			break
		}
	}
	return strings.TrimSpace(out.String()), nil
}
