package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	require.Equal(t, 2, cap(fetcher.slots))
	require.Equal(t, "body", fetcher.cfg.WaitSelector)
	require.Equal(t, 45*time.Second, fetcher.navTimeout())
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	f := &Fetcher{slots: make(chan struct{}, 1)}
	require.NoError(t, f.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, f.acquire(ctx), context.Canceled)

	f.release()
	require.NoError(t, f.acquire(context.Background()))
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(http.Header{
		"Cookie":  {"sid=1"},
		"X-Multi": {"a", "b"},
		"X-Empty": {},
	})
	require.Equal(t, "sid=1", got["Cookie"])
	require.Equal(t, []string{"a", "b"}, got["X-Multi"])
	require.NotContains(t, got, "X-Empty")
}

func TestDocumentMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newDocumentMeta()
	meta.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn.example/app.js"},
	})
	meta.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  403,
			URL:     "https://medium.com/@a/post-1234abcd",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	meta.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://medium.com/frame"},
	})

	status, headers, url := meta.resolve("https://req", "")
	require.Equal(t, 403, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://medium.com/@a/post-1234abcd", url)
}

func TestDocumentMetaFallbacks(t *testing.T) {
	t.Parallel()

	status, headers, url := newDocumentMeta().resolve("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, headers)
	require.Equal(t, "https://final", url)

	_, _, url = newDocumentMeta().resolve("https://req", "")
	require.Equal(t, "https://req", url)
}
