package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/resilience"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	msg, err := Format("  Go Tips ", "Use contexts. ", " https://medium.com/@a/go-tips-1234abcd ")
	require.NoError(t, err)
	require.Equal(t, "📌 *Go Tips*\n\n📝 Use contexts.\n\n🔗 link：https://medium.com/@a/go-tips-1234abcd", msg)

	_, err = Format("Go Tips", "  ", "")
	require.True(t, digest.IsKind(err, digest.KindValidation))
	require.ErrorIs(t, err, errMissingField)
	require.Contains(t, err.Error(), "summary, url")
}

type scriptedSink struct {
	mu       sync.Mutex
	statuses []int
	errs     []error
	messages []string
}

func (s *scriptedSink) Post(_ context.Context, message string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.messages)
	s.messages = append(s.messages, message)
	if i < len(s.errs) && s.errs[i] != nil {
		return 0, s.errs[i]
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return s.statuses[i], nil
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

func executor() *resilience.Executor {
	return resilience.New("deliver", resilience.DeliveryPolicy, resilience.WithPauser(noPause{}))
}

const articleURL = "https://medium.com/@a/go-tips-1234abcd"

func TestDeliverStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		statuses  []int
		delivered bool
		attempts  int
		class     digest.Classification
	}{
		{"ok", []int{200}, true, 1, ""},
		{"no content", []int{204}, true, 1, ""},
		{"bad request is fatal", []int{400}, false, 1, digest.Fatal},
		{"not found is fatal", []int{404}, false, 1, digest.Fatal},
		{"rate limited then ok", []int{429, 429, 200}, true, 3, ""},
		{"server errors exhaust", []int{503}, false, 4, digest.Retryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sink := &scriptedSink{statuses: tc.statuses}
			outcome := Deliver(context.Background(), executor(), sink, articleURL, "Go Tips", "Use contexts.")
			require.Equal(t, tc.delivered, outcome.Delivered)
			require.Equal(t, tc.attempts, outcome.Attempts)
			require.Equal(t, tc.class, outcome.Classification)
			require.Equal(t, digest.StageDeliver, outcome.Stage)
			require.Len(t, sink.messages, tc.attempts)
			if !tc.delivered {
				require.NotEmpty(t, outcome.LastError)
			}
		})
	}
}

func TestDeliverTransportErrorRetries(t *testing.T) {
	t.Parallel()

	sink := &scriptedSink{errs: []error{errors.New("connection refused")}, statuses: []int{200}}
	outcome := Deliver(context.Background(), executor(), sink, articleURL, "Go Tips", "Use contexts.")
	require.True(t, outcome.Delivered)
	require.Equal(t, 2, outcome.Attempts)
}

func TestDeliverEmptyFieldsNeverPost(t *testing.T) {
	t.Parallel()

	sink := &scriptedSink{statuses: []int{200}}
	outcome := Deliver(context.Background(), executor(), sink, articleURL, "", "summary")
	require.False(t, outcome.Delivered)
	require.Zero(t, outcome.Attempts)
	require.Equal(t, digest.Fatal, outcome.Classification)
	require.Empty(t, sink.messages)
}

func TestSlackWebhookRejectsUntrustedURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"http://hooks.slack.com/services/x", "https://evil.example/hooks.slack.com/", ""} {
		_, err := NewSlackWebhook(raw)
		require.ErrorIs(t, err, digest.ErrUntrustedWebhook, raw)
		require.Equal(t, digest.Fatal, digest.ClassificationOf(err))
	}
}

// rewriteTransport sends every request to a local test server while keeping
// the trusted webhook URL on the request.
type rewriteTransport struct {
	target string
}

func (r rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = "http"
	clone.URL.Host = r.target
	return http.DefaultTransport.RoundTrip(clone)
}

func TestSlackWebhookPost(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		opts []SlackOption
		key  string
	}{
		{"default key", nil, "summary"},
		{"text key", []SlackOption{WithPayloadKey("text")}, "text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got map[string]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/services/T/B/X", r.URL.Path)
				require.Equal(t, "application/json", r.Header.Get("Content-Type"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(http.StatusOK)
			}))
			t.Cleanup(srv.Close)

			client := &http.Client{Transport: rewriteTransport{target: srv.Listener.Addr().String()}}
			opts := append([]SlackOption{WithHTTPClient(client)}, tc.opts...)
			sink, err := NewSlackWebhook("https://hooks.slack.com/services/T/B/X", opts...)
			require.NoError(t, err)

			status, err := sink.Post(context.Background(), "hello")
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, status)
			require.Equal(t, map[string]string{tc.key: "hello"}, got)
		})
	}
}
