// Package alert sends operator notifications about failing runs.
package alert

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// Severity ranks an alert.
type Severity string

// Severity levels.
const (
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
	SeverityWarning  Severity = "WARNING"
)

func (s Severity) color() string {
	switch s {
	case SeverityCritical:
		return "danger"
	case SeverityWarning:
		return "good"
	default:
		return "warning"
	}
}

func (s Severity) emoji() string {
	switch s {
	case SeverityCritical:
		return "🚨"
	case SeverityWarning:
		return "⚡"
	default:
		return "⚠️"
	}
}

// Alert is one operator notification.
type Alert struct {
	Severity Severity
	Title    string
	Err      error
	Fields   map[string]string
	At       time.Time
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

var suggestions = map[digest.Kind]string{
	digest.KindValidation:        "Check input data format and required fields",
	digest.KindAuthentication:    "Refresh the Medium session cookies and verify secret access",
	digest.KindRateLimit:         "Reduce request frequency or widen the retry backoff",
	digest.KindNetwork:           "Check network connectivity, DNS and upstream status",
	digest.KindContentExtraction: "Review article selectors against the current Medium markup",
}

// Details renders the body of an alert as Slack mrkdwn lines.
func Details(a Alert) string {
	lines := []string{
		"*Severity:* " + string(a.Severity),
		"*Message:* " + a.Title,
	}
	kind := digest.KindOf(a.Err)
	if a.Err != nil {
		lines = append(lines, "*Error Kind:* "+string(kind), "*Error Details:* "+a.Err.Error())
	}
	lines = append(lines, "*Timestamp:* "+a.At.UTC().Format(time.RFC3339))

	if len(a.Fields) > 0 {
		keys := make([]string, 0, len(a.Fields))
		for k := range a.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, 0, len(keys))
		for _, k := range keys {
			v := a.Fields[k]
			if len(v) > 100 {
				v = v[:97] + "..."
			}
			items = append(items, k+": "+v)
		}
		lines = append(lines, "*Context:* "+strings.Join(items, ", "))
	}
	if hint, ok := suggestions[kind]; ok {
		lines = append(lines, "*Suggested Actions:* "+hint)
	}
	return strings.Join(lines, "\n")
}
