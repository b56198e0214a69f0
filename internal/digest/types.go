package digest

import (
	"net/http"
	"time"
)

// DefaultAuthor is used when no author can be recovered for a stub.
const DefaultAuthor = "Unknown Author"

// MinBodyLength is the shortest body accepted as article content.
const MinBodyLength = 100

// TransferEncoding is the declared or inferred encoding of a raw payload.
type TransferEncoding string

// Transfer encodings understood by the decoder.
const (
	EncodingIdentity        TransferEncoding = "identity"
	EncodingQuotedPrintable TransferEncoding = "quoted-printable"
	EncodingBase64          TransferEncoding = "base64"
)

// ContentKind describes what the payload is expected to contain.
type ContentKind string

// Content kinds understood by the decoder.
const (
	ContentHTML    ContentKind = "text/html"
	ContentPlain   ContentKind = "text/plain"
	ContentUnknown ContentKind = "unknown"
)

// RawPayload is the immutable input of one pipeline run.
type RawPayload struct {
	Data        []byte           `json:"data"`
	Encoding    TransferEncoding `json:"encoding,omitempty"`
	ContentKind ContentKind      `json:"content_kind,omitempty"`
}

// SectionHint records which part of the digest a link was found in.
type SectionHint string

// Known digest sections.
const (
	SectionHighlights SectionHint = "highlights"
	SectionFollowing  SectionHint = "following"
	SectionGeneral    SectionHint = "general"
)

// CandidateLink is an unvalidated link found while scanning the digest.
type CandidateLink struct {
	URL        string
	AnchorText string
	Title      string
	Author     string
	Section    SectionHint
}

// ArticleStub is a validated, canonical, deduplicated article reference.
type ArticleStub struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// ArticleContent is the readable content recovered from an article page.
type ArticleContent struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Valid reports whether the content satisfies the minimum title/body rules.
func (c ArticleContent) Valid() bool {
	return len(c.Title) > 0 && len(c.Body) >= MinBodyLength
}

// Classification tags an error as worth retrying or not.
type Classification string

// Classification values.
const (
	Retryable Classification = "retryable"
	Fatal     Classification = "fatal"
)

// Stage names the last pipeline stage an outcome reached.
type Stage string

// Pipeline stages.
const (
	StageFetch     Stage = "fetch"
	StageSummarize Stage = "summarize"
	StageDeliver   Stage = "deliver"
	StageLedger    Stage = "ledger"
)

// Outcome is the terminal record for one article in a run.
type Outcome struct {
	RunID          string         `json:"run_id,omitempty"`
	URL            string         `json:"url"`
	Title          string         `json:"title,omitempty"`
	Stage          Stage          `json:"stage"`
	Attempts       int            `json:"attempts"`
	Classification Classification `json:"classification,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	Delivered      bool           `json:"delivered"`
	Skipped        bool           `json:"skipped,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// RunReport aggregates the per-article outcomes of a run.
type RunReport struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Candidates  int       `json:"candidates"`
	Stubs       int       `json:"stubs"`
	Outcomes    []Outcome `json:"outcomes"`
	DeadlineHit bool      `json:"deadline_hit,omitempty"`
}

// Delivered counts delivered articles.
func (r RunReport) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Delivered {
			n++
		}
	}
	return n
}

// Failed counts articles that were neither delivered nor skipped.
func (r RunReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Delivered && !o.Skipped {
			n++
		}
	}
	return n
}

// Status derives the run status from its outcomes.
func (r RunReport) Status() RunStatus {
	failed := r.Failed()
	switch {
	case failed == 0:
		return RunStatusSucceeded
	case failed < len(r.Outcomes):
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

// Run is the persisted metadata of a submitted run.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Submitted  time.Time  `json:"submitted_at"`
	Started    *time.Time `json:"started_at,omitempty"`
	Finished   *time.Time `json:"finished_at,omitempty"`
	ErrorText  string     `json:"error_text,omitempty"`
	PayloadURI string     `json:"payload_uri,omitempty"`
	ReportURI  string     `json:"report_uri,omitempty"`
	Report     *RunReport `json:"report,omitempty"`
}

// RunRequest is a queued unit of work for the worker pool.
type RunRequest struct {
	RunID      string
	Payload    RawPayload
	PayloadURI string
	Submitted  int64
}

// FetchRequest captures everything needed to fetch an article page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
