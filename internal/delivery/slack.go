package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// TrustedWebhookPrefix is the only webhook origin messages are posted to.
const TrustedWebhookPrefix = "https://hooks.slack.com/"

// DefaultPayloadKey is the JSON field carrying the message. Workflow webhooks
// expose it as a "summary" variable; classic incoming webhooks use "text".
const DefaultPayloadKey = "summary"

// SlackWebhook posts messages to a Slack webhook.
type SlackWebhook struct {
	url        string
	payloadKey string
	client     *http.Client
}

var _ digest.DeliverySink = (*SlackWebhook)(nil)

// SlackOption customizes a SlackWebhook.
type SlackOption func(*SlackWebhook)

// WithPayloadKey overrides DefaultPayloadKey.
func WithPayloadKey(key string) SlackOption {
	return func(s *SlackWebhook) {
		if key = strings.TrimSpace(key); key != "" {
			s.payloadKey = key
		}
	}
}

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) SlackOption {
	return func(s *SlackWebhook) {
		if c != nil {
			s.client = c
		}
	}
}

// NewSlackWebhook validates webhookURL against TrustedWebhookPrefix.
func NewSlackWebhook(webhookURL string, opts ...SlackOption) (*SlackWebhook, error) {
	if err := CheckWebhook(webhookURL); err != nil {
		return nil, err
	}
	s := &SlackWebhook{
		url:        strings.TrimSpace(webhookURL),
		payloadKey: DefaultPayloadKey,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckWebhook returns a fatal validation error for untrusted webhook URLs.
func CheckWebhook(webhookURL string) error {
	if !strings.HasPrefix(strings.TrimSpace(webhookURL), TrustedWebhookPrefix) {
		return digest.NewError(digest.KindValidation, "check webhook", digest.ErrUntrustedWebhook)
	}
	return nil
}

// Post sends message and returns the response status. Errors are returned
// only when no response was received.
func (s *SlackWebhook) Post(ctx context.Context, message string) (int, error) {
	body, err := json.Marshal(map[string]string{s.payloadKey: message})
	if err != nil {
		return 0, fmt.Errorf("marshal slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("new slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}
