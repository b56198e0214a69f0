// Package worker executes queued digest runs.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

var tracer = otel.Tracer("github.com/JakeFAU/medium-digest/internal/worker")

// Runner executes one digest run.
type Runner interface {
	RunWithID(ctx context.Context, runID string, payload digest.RawPayload) (digest.RunReport, error)
}

// Config controls Worker behavior.
type Config struct {
	// ReportPrefix is the blob path prefix for archived run reports.
	ReportPrefix string
	// RunTopic receives a summary event per finished run when set.
	RunTopic string
}

// RunEvent is published when a run finishes.
type RunEvent struct {
	RunID     string           `json:"run_id"`
	Status    digest.RunStatus `json:"status"`
	Delivered int              `json:"delivered"`
	Failed    int              `json:"failed"`
	ReportURI string           `json:"report_uri,omitempty"`
	ErrorText string           `json:"error_text,omitempty"`
}

// Worker consumes queued runs and drives them through the pipeline.
type Worker struct {
	queue     digest.Queue
	runs      digest.RunStore
	runner    Runner
	payloads  digest.PayloadSource
	blobStore digest.BlobStore
	hasher    digest.Hasher
	publisher digest.Publisher
	clock     digest.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. payloads, blobStore, hasher and publisher may be
// nil; the matching step is then skipped.
func New(
	queue digest.Queue,
	runs digest.RunStore,
	runner Runner,
	payloads digest.PayloadSource,
	blobStore digest.BlobStore,
	hasher digest.Hasher,
	publisher digest.Publisher,
	clock digest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReportPrefix == "" {
		cfg.ReportPrefix = "reports"
	}
	return &Worker{
		queue:     queue,
		runs:      runs,
		runner:    runner,
		payloads:  payloads,
		blobStore: blobStore,
		hasher:    hasher,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queued runs until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, digest.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", req.RunID))
		w.processRun(ctx, req)
	}
}

func (w *Worker) processRun(ctx context.Context, req digest.RunRequest) {
	ctx, span := tracer.Start(ctx, "digest.run", trace.WithAttributes(attribute.String("digest.run_id", req.RunID)))
	defer span.End()
	log := w.logger.With(zap.String("run_id", req.RunID))
	// Status bookkeeping must land even when shutdown cancels the run.
	bookCtx := context.WithoutCancel(ctx)

	if err := w.runs.UpdateRunStatus(bookCtx, req.RunID, digest.RunStatusRunning, ""); err != nil {
		log.Error("update run status failed", zap.Error(err))
		return
	}

	payload, err := w.resolvePayload(ctx, req)
	if err != nil {
		log.Error("resolve payload failed", zap.String("payload_uri", req.PayloadURI), zap.Error(err))
		w.finish(bookCtx, log, req.RunID, digest.RunStatusFailed, err.Error(), "", digest.RunReport{RunID: req.RunID})
		return
	}

	report, runErr := w.runner.RunWithID(ctx, req.RunID, payload)
	reportURI := w.archive(bookCtx, log, report)
	if err := w.runs.AttachReport(bookCtx, req.RunID, report, reportURI); err != nil {
		log.Error("attach report failed", zap.Error(err))
	}

	status, errText := finalStatus(report, runErr)
	span.SetAttributes(
		attribute.String("digest.status", string(status)),
		attribute.Int("digest.delivered", report.Delivered()),
		attribute.Int("digest.failed", report.Failed()),
	)
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
	}
	w.finish(bookCtx, log, req.RunID, status, errText, reportURI, report)
}

func (w *Worker) resolvePayload(ctx context.Context, req digest.RunRequest) (digest.RawPayload, error) {
	if req.PayloadURI == "" {
		return req.Payload, nil
	}
	if w.payloads == nil {
		return digest.RawPayload{}, fmt.Errorf("payload uri given but no payload source configured")
	}
	data, err := w.payloads.GetObject(ctx, req.PayloadURI)
	if err != nil {
		return digest.RawPayload{}, fmt.Errorf("get payload: %w", err)
	}
	payload := req.Payload
	payload.Data = data
	return payload, nil
}

// archive writes the report as JSON named by its content hash. Failures are
// logged; the run result stands without an archive.
func (w *Worker) archive(ctx context.Context, log *zap.Logger, report digest.RunReport) string {
	if w.blobStore == nil || w.hasher == nil {
		return ""
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Error("marshal report failed", zap.Error(err))
		return ""
	}
	hash, err := w.hasher.Hash(data)
	if err != nil {
		log.Error("hash report failed", zap.Error(err))
		return ""
	}
	uri, err := w.blobStore.PutObject(ctx, w.reportPath(report, hash), "application/json", bytes.NewReader(data))
	if err != nil {
		log.Error("archive report failed", zap.Error(err))
		return ""
	}
	log.Info("report archived", zap.String("report_uri", uri))
	return uri
}

func (w *Worker) reportPath(report digest.RunReport, hash string) string {
	day := report.StartedAt
	if day.IsZero() && w.clock != nil {
		day = w.clock.Now()
	}
	if len(hash) > 12 {
		hash = hash[:12]
	}
	prefix := strings.Trim(w.cfg.ReportPrefix, "/")
	return fmt.Sprintf("%s/%s/%s-%s.json", prefix, day.UTC().Format("2006/01/02"), report.RunID, hash)
}

func (w *Worker) finish(
	ctx context.Context,
	log *zap.Logger,
	runID string,
	status digest.RunStatus,
	errText string,
	reportURI string,
	report digest.RunReport,
) {
	if err := w.runs.UpdateRunStatus(ctx, runID, status, errText); err != nil {
		log.Error("final run status update failed", zap.Error(err))
	}
	log.Info("run finished", zap.String("status", string(status)), zap.String("error", errText))

	if w.cfg.RunTopic == "" || w.publisher == nil {
		return
	}
	event := RunEvent{
		RunID:     runID,
		Status:    status,
		Delivered: report.Delivered(),
		Failed:    report.Failed(),
		ReportURI: reportURI,
		ErrorText: errText,
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.RunTopic, event); err != nil {
		log.Warn("publish run event failed", zap.Error(err))
	}
}

func finalStatus(report digest.RunReport, runErr error) (digest.RunStatus, string) {
	if runErr != nil {
		if len(report.Outcomes) == 0 {
			return digest.RunStatusFailed, runErr.Error()
		}
		return report.Status(), runErr.Error()
	}
	status := report.Status()
	if failed := report.Failed(); failed > 0 {
		return status, fmt.Sprintf("%d of %d articles failed", failed, len(report.Outcomes))
	}
	if report.DeadlineHit {
		return status, "run deadline reached"
	}
	return status, ""
}
