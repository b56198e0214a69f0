// Package resilience provides the bounded-retry executor wrapped around every
// network-facing call in the pipeline.
package resilience

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// Policy configures attempts and capped exponential backoff.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// Default policies per operation family.
var (
	FetchPolicy     = Policy{MaxRetries: 3, BaseDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute}
	SummarizePolicy = Policy{MaxRetries: 3, BaseDelay: 2 * time.Second, BackoffFactor: 2, MaxDelay: time.Minute}
	DeliveryPolicy  = Policy{MaxRetries: 3, BaseDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute}
)

// Delay returns the wait before retrying after the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Delays lists every backoff the policy can produce, in order.
func (p Policy) Delays() []time.Duration {
	out := make([]time.Duration, 0, p.MaxRetries)
	for i := 0; i < p.MaxRetries; i++ {
		out = append(out, p.Delay(i))
	}
	return out
}

// Verdict is the executor's reading of a failed attempt.
type Verdict int

// Verdict values.
const (
	VerdictRetry Verdict = iota
	VerdictFatal
	VerdictUnknown
)

func (v Verdict) String() string {
	switch v {
	case VerdictRetry:
		return "retry"
	case VerdictFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classifier maps an attempt error to a Verdict.
type Classifier func(err error) Verdict

// ClassifyByKind reads the digest error taxonomy. Unclassified context errors
// are fatal so a cancelled run is never retried.
func ClassifyByKind(err error) Verdict {
	kind := digest.KindOf(err)
	if kind == digest.KindUnknown {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return VerdictFatal
		}
		return VerdictUnknown
	}
	if kind.Classification() == digest.Fatal {
		return VerdictFatal
	}
	return VerdictRetry
}
