// Package summarize condenses article bodies into short summaries.
package summarize

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxPromptBody is the number of body characters sent to the model.
const MaxPromptBody = 3000

// Prompt builds the summarization request for one article. Bodies longer than
// MaxPromptBody characters are cut and marked with "...".
func Prompt(title, body string) string {
	if utf8.RuneCountInString(body) > MaxPromptBody {
		body = string([]rune(body)[:MaxPromptBody]) + "..."
	}
	var b strings.Builder
	b.WriteString("Please provide a concise and informative summary of the following Medium article.\n\n")
	fmt.Fprintf(&b, "Title: %s\n\n", title)
	fmt.Fprintf(&b, "Article Content:\n%s\n\n", body)
	b.WriteString("Instructions:\n")
	b.WriteString("- Create a summary that captures the main points and key insights\n")
	b.WriteString("- Keep the summary between 2-4 sentences\n")
	b.WriteString("- Focus on the most important information and takeaways\n")
	b.WriteString("- Write in a clear, professional tone\n")
	b.WriteString("- Do not include promotional language or calls to action\n\n")
	b.WriteString("Summary:")
	return b.String()
}
