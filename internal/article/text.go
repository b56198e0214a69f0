package article

import (
	"regexp"
	"strings"
)

var (
	whitespace     = regexp.MustCompile(`\s+`)
	trailingChrome = regexp.MustCompile(`(?:\s*(?:Follow|Sign up|Sign in))+\s*$`)
)

// CleanText collapses whitespace and strips trailing Medium UI labels such as
// "Follow" or "Sign in".
func CleanText(text string) string {
	text = whitespace.ReplaceAllString(strings.TrimSpace(text), " ")
	text = trailingChrome.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
