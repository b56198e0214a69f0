package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JakeFAU/medium-digest/internal/delivery"
	"github.com/JakeFAU/medium-digest/internal/digest"
)

const footer = "Medium Digest Admin Notifications"

// SlackNotifier posts alerts as Slack attachments.
type SlackNotifier struct {
	url    string
	client *http.Client
	clock  digest.Clock
}

// NewSlackNotifier validates webhookURL. client may be nil.
func NewSlackNotifier(webhookURL string, client *http.Client, clock digest.Clock) (*SlackNotifier, error) {
	if err := delivery.CheckWebhook(webhookURL); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackNotifier{url: webhookURL, client: client, clock: clock}, nil
}

type attachmentField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type attachment struct {
	Color  string            `json:"color"`
	Fields []attachmentField `json:"fields"`
	Footer string            `json:"footer"`
	TS     int64             `json:"ts"`
}

type slackPayload struct {
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments"`
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, a Alert) error {
	if a.At.IsZero() {
		a.At = n.now()
	}
	if a.Severity == "" {
		a.Severity = SeverityError
	}
	body, err := json.Marshal(slackPayload{
		Text: fmt.Sprintf("%s %s Alert - Medium Digest", a.Severity.emoji(), a.Severity),
		Attachments: []attachment{{
			Color:  a.Severity.color(),
			Fields: []attachmentField{{Title: "Error Details", Value: Details(a)}},
			Footer: footer,
			TS:     a.At.Unix(),
		}},
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post alert: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (n *SlackNotifier) now() time.Time {
	if n.clock == nil {
		return time.Now().UTC()
	}
	return n.clock.Now()
}
