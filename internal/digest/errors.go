package digest

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the error taxonomy used to drive retry decisions.
type Kind string

// Error kinds.
const (
	KindValidation        Kind = "validation"
	KindAuthentication    Kind = "authentication"
	KindRateLimit         Kind = "rate_limit"
	KindNetwork           Kind = "network"
	KindContentExtraction Kind = "content_extraction"
	KindUnknown           Kind = "unknown"
)

// Classification maps a kind to its propagation policy. Unknown has no fixed
// classification and is reported as Retryable; the executor applies its own
// first-attempt-only rule to it.
func (k Kind) Classification() Classification {
	switch k {
	case KindValidation, KindAuthentication, KindContentExtraction:
		return Fatal
	default:
		return Retryable
	}
}

var (
	// ErrEmptyPayload is returned when the run input carries no content.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrDecode is returned when no renderable text survives decoding.
	ErrDecode = errors.New("no renderable text in payload")
	// ErrUntrustedWebhook is returned for webhook URLs outside the trusted prefix.
	ErrUntrustedWebhook = errors.New("untrusted webhook url")
	// ErrNoContent is returned when title or body extraction fails.
	ErrNoContent = errors.New("article content not found")
	// ErrQueueClosed is returned by a Queue that no longer yields runs.
	ErrQueueClosed = errors.New("queue closed")
)

// ClassifiedError attaches a Kind and optional HTTP context to an error.
type ClassifiedError struct {
	Kind       Kind
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewError builds a ClassifiedError.
func NewError(kind Kind, op string, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Op: op, Err: err}
}

// HTTPError builds a ClassifiedError carrying a response status.
func HTTPError(kind Kind, op string, status int, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Op: op, StatusCode: status, Err: err}
}

// KindOf returns the kind of the first ClassifiedError in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// ClassificationOf returns the propagation policy for err.
func ClassificationOf(err error) Classification {
	kind := KindOf(err)
	if kind == KindUnknown {
		return Fatal
	}
	return kind.Classification()
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
