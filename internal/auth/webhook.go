package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// WebhookURL resolves a webhook secret. JSON secrets are searched for the
// keys webhook_url, url and value in that order; anything else is taken as
// the URL itself.
func WebhookURL(ctx context.Context, source SecretSource) (string, error) {
	raw, err := source.Secret(ctx)
	if err != nil {
		return "", fmt.Errorf("load webhook secret: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return "", fmt.Errorf("parse webhook secret: %w", err)
		}
		for _, key := range []string{"webhook_url", "url", "value"} {
			if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), nil
			}
		}
		return "", fmt.Errorf("%w: webhook url key", ErrSecretNotFound)
	}
	return raw, nil
}
