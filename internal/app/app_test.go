package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/config"
	"github.com/JakeFAU/medium-digest/internal/digest"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Secrets.WebhookEnv = ""
	cfg.Secrets.Webhook = "https://hooks.slack.com/services/T000/B000/XXXX"
	cfg.Summarizer.Provider = "static"
	return cfg
}

func TestBuildWithLocalStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "local"
	cfg.Storage.LocalDir = t.TempDir()

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRequiresDeliveryWebhook(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secrets.Webhook = ""

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "delivery webhook")
}

func TestBuildRejectsUntrustedWebhook(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secrets.Webhook = "https://example.com/hook"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.ErrorIs(t, err, digest.ErrUntrustedWebhook)
}

func TestBuildAnthropicNeedsKey(t *testing.T) {
	t.Setenv("DIGEST_TEST_MISSING_KEY", "")
	cfg := testConfig(t)
	cfg.Summarizer.Provider = "anthropic"
	cfg.Summarizer.APIKeyEnv = "DIGEST_TEST_MISSING_KEY"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "summarizer api key")
}

func TestRunOnceWithoutStories(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	report, err := app.RunOnce(context.Background(), digest.RawPayload{
		Data:        []byte("<html><body><p>No stories in today's digest.</p></body></html>"),
		ContentKind: digest.ContentHTML,
	})
	require.NoError(t, err)
	require.Zero(t, report.Candidates)
	require.Equal(t, digest.RunStatusSucceeded, report.Status())
}
