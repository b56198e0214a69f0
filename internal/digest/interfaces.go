package digest

import (
	"context"
	"io"
	"net/http"
	"time"
)

// AuthProvider supplies credential headers for article fetches.
type AuthProvider interface {
	AuthHeaders(ctx context.Context) (http.Header, error)
}

// Summarizer condenses an article into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, title, body string) (string, error)
}

// DeliverySink posts a formatted message and reports the HTTP status.
type DeliverySink interface {
	Post(ctx context.Context, message string) (int, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// DeliveryLedger remembers which article URLs were already delivered.
type DeliveryLedger interface {
	Seen(ctx context.Context, url string) (bool, error)
	MarkDelivered(ctx context.Context, runID, url string, at time.Time) error
}

// OutcomeStore persists per-article outcomes.
type OutcomeStore interface {
	StoreOutcome(ctx context.Context, outcome Outcome) error
}

// RunStore persists run metadata and reports.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string) error
	AttachReport(ctx context.Context, runID string, report RunReport, reportURI string) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// PayloadSource reads a previously stored object by URI.
type PayloadSource interface {
	GetObject(ctx context.Context, uri string) ([]byte, error)
}

// Publisher pushes outcome events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for runs.
type Queue interface {
	Enqueue(ctx context.Context, req RunRequest) error
	Dequeue(ctx context.Context) (RunRequest, error)
}

// Hasher computes digests for archive object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
