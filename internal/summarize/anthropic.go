package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/resilience"
)

// Anthropic Messages API defaults.
const (
	DefaultEndpoint   = "https://api.anthropic.com/v1/messages"
	DefaultAPIVersion = "2023-06-01"
	DefaultMaxTokens  = 500
)

// errEmptySummary marks a model reply without usable text.
var errEmptySummary = errors.New("model returned an empty summary")

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	APIVersion string
	MaxTokens  int
	Timeout    time.Duration
}

// AnthropicSummarizer calls the Anthropic Messages API under the summarize
// retry policy.
type AnthropicSummarizer struct {
	cfg        AnthropicConfig
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *zap.Logger
}

var _ digest.Summarizer = (*AnthropicSummarizer)(nil)

// NewAnthropic builds a summarizer. executor may be nil to disable retries.
func NewAnthropic(cfg AnthropicConfig, executor *resilience.Executor, logger *zap.Logger) (*AnthropicSummarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("anthropic model is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if executor == nil {
		executor = resilience.New("summarize", resilience.Policy{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicSummarizer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   executor,
		logger:     logger,
	}, nil
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Summarize implements digest.Summarizer.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, title, body string) (string, error) {
	payload, err := json.Marshal(messagesRequest{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		Messages:  []message{{Role: "user", Content: Prompt(title, body)}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal messages request: %w", err)
	}
	summary, attempts, err := resilience.Execute(ctx, s.executor, func(ctx context.Context) (string, error) {
		return s.call(ctx, payload)
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("summary generated", zap.Int("attempts", attempts), zap.Int("chars", len(summary)))
	return summary, nil
}

func (s *AnthropicSummarizer) call(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", digest.NewError(digest.KindValidation, "summarize", fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.cfg.APIKey)
	req.Header.Set("anthropic-version", s.cfg.APIVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", digest.NewError(digest.KindNetwork, "summarize", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", statusError(resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", digest.NewError(digest.KindNetwork, "summarize", fmt.Errorf("decode response: %w", err))
	}
	var parts []string
	for _, block := range decoded.Content {
		if block.Type == "text" || block.Type == "" {
			if text := strings.TrimSpace(block.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return "", digest.NewError(digest.KindValidation, "summarize", errEmptySummary)
	}
	return strings.Join(parts, "\n"), nil
}

func statusError(status int, detail string) error {
	err := fmt.Errorf("model api returned %d: %s", status, detail)
	switch {
	case status == http.StatusTooManyRequests:
		return digest.HTTPError(digest.KindRateLimit, "summarize", status, err)
	case status >= http.StatusInternalServerError:
		return digest.HTTPError(digest.KindNetwork, "summarize", status, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return digest.HTTPError(digest.KindAuthentication, "summarize", status, err)
	default:
		return digest.HTTPError(digest.KindValidation, "summarize", status, err)
	}
}
