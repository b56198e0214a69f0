package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://Medium.com/@a/post", "medium.com"},
		{"subdomain", "https://blog.medium.com/x", "blog.medium.com"},
		{"no scheme", "medium.com/path", "medium.com"},
		{"host with port", "medium.com:8443", "medium.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if retryAttemptsTotal == nil || articlesTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveAttemptAndArticle(t *testing.T) {
	ObserveAttempt("test-op", "success")
	ObserveAttempt("test-op", "success")
	if val := testutil.ToFloat64(retryAttemptsTotal.WithLabelValues("test-op", "success")); val != 2 {
		t.Errorf("expected 2 attempts, got %f", val)
	}

	ObserveArticle("test-stage", "delivered")
	if val := testutil.ToFloat64(articlesTotal.WithLabelValues("test-stage", "delivered")); val != 1 {
		t.Errorf("expected 1 article, got %f", val)
	}

	ObserveFetch("https://fetch-test.medium.com/a", 0)
	ObserveFetch("https://fetch-test.medium.com/a", 512)
	if val := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("fetch-test.medium.com")); val != 512 {
		t.Errorf("expected 512 bytes, got %f", val)
	}

	ObserveRun("test-status", 2*time.Second)
	if val := testutil.ToFloat64(runsTotal.WithLabelValues("test-status")); val != 1 {
		t.Errorf("expected 1 run, got %f", val)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != before+1 {
		t.Errorf("expected gauge %f, got %f", before+1, val)
	}
	DecActiveWorkers()
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"https://medium.com/@a/b", "https://towardsdatascience.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
