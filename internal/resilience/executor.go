package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/metrics"
)

// Pauser sleeps between attempts.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Executor runs an operation under a Policy, classifying each failure.
type Executor struct {
	name     string
	policy   Policy
	classify Classifier
	pauser   Pauser
	logger   *zap.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithClassifier overrides the default ClassifyByKind classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classify = c
		}
	}
}

// WithPauser overrides the timer-based sleep.
func WithPauser(p Pauser) Option {
	return func(e *Executor) {
		if p != nil {
			e.pauser = p
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an Executor. name labels logs and metrics.
func New(name string, policy Policy, opts ...Option) *Executor {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	e := &Executor{
		name:     name,
		policy:   policy,
		classify: ClassifyByKind,
		pauser:   timerPauser{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's retry policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do runs op until it succeeds, fails fatally or exhausts its retries. It
// returns the number of attempts made together with the terminal error, which
// is the last observed error left unwrapped.
func (e *Executor) Do(ctx context.Context, op func(context.Context) error) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, e.aborted(err, lastErr)
		}
		err := op(ctx)
		if err == nil {
			metrics.ObserveAttempt(e.name, "success")
			if attempt > 0 {
				e.logger.Info("operation recovered after retry",
					zap.String("operation", e.name), zap.Int("attempts", attempt+1))
			}
			return attempt + 1, nil
		}
		lastErr = err

		verdict := e.classify(err)
		metrics.ObserveAttempt(e.name, verdict.String())
		if ctx.Err() != nil {
			return attempt + 1, e.aborted(ctx.Err(), lastErr)
		}

		switch verdict {
		case VerdictFatal:
			e.logger.Warn("fatal error, not retrying",
				zap.String("operation", e.name), zap.Int("attempt", attempt+1), zap.Error(err))
			return attempt + 1, err
		case VerdictUnknown:
			if attempt > 0 {
				e.logger.Warn("unclassified error on retry, giving up",
					zap.String("operation", e.name), zap.Int("attempt", attempt+1), zap.Error(err))
				return attempt + 1, err
			}
		}

		if attempt == e.policy.MaxRetries {
			break
		}
		delay := e.policy.Delay(attempt)
		fields := []zap.Field{
			zap.String("operation", e.name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", e.policy.MaxRetries+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		}
		var ce *digest.ClassifiedError
		if errors.As(err, &ce) && ce.RetryAfter > 0 {
			fields = append(fields, zap.Duration("retry_after", ce.RetryAfter))
		}
		e.logger.Warn("attempt failed, retrying", fields...)
		metrics.ObserveBackoff(e.name, delay)
		e.pauser.Pause(ctx, delay)
	}

	e.logger.Error("retries exhausted",
		zap.String("operation", e.name), zap.Int("attempts", e.policy.MaxRetries+1), zap.Error(lastErr))
	return e.policy.MaxRetries + 1, lastErr
}

func (e *Executor) aborted(ctxErr, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%s aborted: %w", e.name, ctxErr)
	}
	return fmt.Errorf("%s aborted: %w", e.name, errors.Join(ctxErr, lastErr))
}

// Execute is the value-returning form of Executor.Do.
func Execute[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, int, error) {
	var result T
	attempts, err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, attempts, err
}
