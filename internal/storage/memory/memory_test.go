package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	uri, err := store.PutObject(ctx, "payloads/run-1.eml", "message/rfc822", strings.NewReader("content"))
	require.NoError(t, err)
	require.Equal(t, "memory://payloads/run-1.eml", uri)

	got, err := store.GetObject(ctx, uri)
	require.NoError(t, err)
	require.Equal(t, "content", string(got))
	got[0] = 'C'
	again, err := store.GetObject(ctx, uri)
	require.NoError(t, err)
	require.Equal(t, "content", string(again), "returned slices must be copies")

	_, err = store.GetObject(ctx, "memory://missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetObject(ctx, "gs://bucket/x")
	require.Error(t, err)
	_, err = store.PutObject(ctx, " ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewRunStore(fixedClock{now: now})
	ctx := context.Background()
	run := digest.Run{ID: "run-1", Status: digest.RunStatusQueued, Submitted: now}

	require.NoError(t, store.CreateRun(ctx, run))
	require.Error(t, store.CreateRun(ctx, run))
	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, digest.RunStatusRunning, ""))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Started)
	require.Nil(t, got.Finished)

	report := digest.RunReport{RunID: run.ID, Outcomes: []digest.Outcome{{URL: "https://medium.com/@a/x-1a", Delivered: true}}}
	require.NoError(t, store.AttachReport(ctx, run.ID, report, "memory://reports/run-1.json"))
	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, digest.RunStatusPartial, "1 article failed"))

	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, digest.RunStatusPartial, got.Status)
	require.Equal(t, "1 article failed", got.ErrorText)
	require.Equal(t, now, *got.Finished)
	require.Equal(t, "memory://reports/run-1.json", got.ReportURI)
	require.Equal(t, 1, got.Report.Delivered())

	_, err = store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.UpdateRunStatus(ctx, "missing", digest.RunStatusFailed, ""), ErrNotFound)
}

func TestRunStoreOutcomes(t *testing.T) {
	t.Parallel()

	store := NewRunStore(nil)
	ctx := context.Background()
	require.NoError(t, store.StoreOutcome(ctx, digest.Outcome{RunID: "run-1", URL: "a"}))
	require.NoError(t, store.StoreOutcome(ctx, digest.Outcome{RunID: "run-1", URL: "b"}))
	require.NoError(t, store.StoreOutcome(ctx, digest.Outcome{RunID: "run-2", URL: "c"}))

	outcomes := store.Outcomes("run-1")
	require.Len(t, outcomes, 2)
	outcomes[0].URL = "changed"
	require.Equal(t, "a", store.Outcomes("run-1")[0].URL)
}

func TestLedger(t *testing.T) {
	t.Parallel()

	ledger := NewLedger()
	ctx := context.Background()
	url := "https://medium.com/@a/story-1a2b3c"

	seen, err := ledger.Seen(ctx, url)
	require.NoError(t, err)
	require.False(t, seen)

	first := time.Unix(100, 0)
	require.NoError(t, ledger.MarkDelivered(ctx, "run-1", url, first))
	require.NoError(t, ledger.MarkDelivered(ctx, "run-2", url, time.Unix(200, 0)))
	seen, err = ledger.Seen(ctx, url)
	require.NoError(t, err)
	require.True(t, seen)
	require.Equal(t, first, ledger.delivered[url])
}
