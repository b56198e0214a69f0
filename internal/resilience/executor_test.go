package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, delay)
}

func (p *recordingPauser) recorded() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

func newTestExecutor(policy Policy) (*Executor, *recordingPauser) {
	pauser := &recordingPauser{}
	return New("test", policy, WithPauser(pauser), WithLogger(zap.NewNop())), pauser
}

func TestPolicyDelaySequence(t *testing.T) {
	t.Parallel()

	p := Policy{MaxRetries: 3, BaseDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute}
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, p.Delays())
}

func TestPolicyDelayCappedAndMonotonic(t *testing.T) {
	t.Parallel()

	p := Policy{MaxRetries: 10, BaseDelay: 500 * time.Millisecond, BackoffFactor: 3, MaxDelay: 20 * time.Second}
	delays := p.Delays()
	for i, d := range delays {
		require.LessOrEqual(t, d, p.MaxDelay)
		if i > 0 {
			require.GreaterOrEqual(t, d, delays[i-1])
		}
	}
	require.Equal(t, 20*time.Second, delays[len(delays)-1])
}

func TestExecutorRetriesRetryableUntilSuccess(t *testing.T) {
	t.Parallel()

	ex, pauser := newTestExecutor(FetchPolicy)
	calls := 0
	attempts, err := ex.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return digest.HTTPError(digest.KindRateLimit, "fetch", 429, nil)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, pauser.recorded())
}

func TestExecutorFatalShortCircuits(t *testing.T) {
	t.Parallel()

	ex, pauser := newTestExecutor(DeliveryPolicy)
	calls := 0
	fatal := digest.HTTPError(digest.KindValidation, "deliver", 400, nil)
	attempts, err := ex.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
	require.Empty(t, pauser.recorded())
}

func TestExecutorUnknownRetriedOnlyOnce(t *testing.T) {
	t.Parallel()

	ex, pauser := newTestExecutor(FetchPolicy)
	calls := 0
	attempts, err := ex.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("mystery")
	})
	require.EqualError(t, err, "mystery")
	require.Equal(t, 2, attempts)
	require.Equal(t, 2, calls)
	require.Equal(t, []time.Duration{time.Second}, pauser.recorded())
}

func TestExecutorUnknownThenFatalStops(t *testing.T) {
	t.Parallel()

	ex, _ := newTestExecutor(FetchPolicy)
	calls := 0
	attempts, err := ex.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("first")
		}
		return digest.NewError(digest.KindAuthentication, "fetch", nil)
	})
	require.True(t, digest.IsKind(err, digest.KindAuthentication))
	require.Equal(t, 2, attempts)
}

func TestExecutorExhaustionReturnsLastError(t *testing.T) {
	t.Parallel()

	ex, pauser := newTestExecutor(Policy{MaxRetries: 3, BaseDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute})
	calls := 0
	var last error
	attempts, err := ex.Do(context.Background(), func(context.Context) error {
		calls++
		last = digest.HTTPError(digest.KindNetwork, "fetch", 500+calls, nil)
		return last
	})
	require.Same(t, last, err)
	require.Equal(t, 4, attempts)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, pauser.recorded())
}

func TestExecutorStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	ex, _ := newTestExecutor(FetchPolicy)
	attempts, err := ex.Do(ctx, func(context.Context) error {
		cancel()
		return digest.NewError(digest.KindNetwork, "fetch", errors.New("reset"))
	})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, digest.IsKind(err, digest.KindNetwork))
	require.Equal(t, 1, attempts)
}

func TestExecuteReturnsValue(t *testing.T) {
	t.Parallel()

	ex, _ := newTestExecutor(SummarizePolicy)
	got, attempts, err := Execute(context.Background(), ex, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 1, attempts)
}

func TestClassifyByKind(t *testing.T) {
	t.Parallel()

	require.Equal(t, VerdictRetry, ClassifyByKind(digest.NewError(digest.KindNetwork, "", nil)))
	require.Equal(t, VerdictFatal, ClassifyByKind(digest.NewError(digest.KindContentExtraction, "", nil)))
	require.Equal(t, VerdictUnknown, ClassifyByKind(errors.New("x")))
	require.Equal(t, VerdictFatal, ClassifyByKind(context.Canceled))
}
