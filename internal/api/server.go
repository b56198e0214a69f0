package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/config"
	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/id/uuid"
	"github.com/JakeFAU/medium-digest/internal/metrics"
)

// Enqueuer accepts runs for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, req digest.RunRequest) error
}

// ReadyCheck reports whether one downstream dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Server wires HTTP handlers to the run queue and run store.
type Server struct {
	router   chi.Router
	runs     digest.RunStore
	queue    Enqueuer
	idGen    digest.IDGenerator
	clock    digest.Clock
	cfg      config.Config
	checks   map[string]ReadyCheck
	logger   *zap.Logger
	maxBytes int64
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runs digest.RunStore,
	queue Enqueuer,
	idGen digest.IDGenerator,
	clock digest.Clock,
	cfg config.Config,
	checks map[string]ReadyCheck,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := int64(cfg.Server.MaxPayloadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	s := &Server{
		runs:     runs,
		queue:    queue,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		checks:   checks,
		logger:   logger,
		maxBytes: maxBytes,
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/runs", s.submitRun)
		r.Get("/runs/{run_id}", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failures": failures})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// submitRequest is the JSON form of POST /v1/runs. Payload and PayloadURI are
// mutually exclusive.
type submitRequest struct {
	Payload     string                  `json:"payload"`
	Encoding    digest.TransferEncoding `json:"encoding"`
	ContentKind digest.ContentKind      `json:"content_kind"`
	PayloadURI  string                  `json:"payload_uri"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	req, err := parseSubmit(r.Header.Get("Content-Type"), body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := s.enqueueRun(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, digest.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}
	w.Header().Set("Location", "/v1/runs/"+runID)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": string(digest.RunStatusQueued)})
}

// parseSubmit accepts either the JSON envelope or a raw email/HTML body.
func parseSubmit(contentType string, body []byte) (digest.RunRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/json" {
		payload, err := digest.PayloadFromEvent(body)
		if err != nil {
			return digest.RunRequest{}, err
		}
		payload.ContentKind = contentKindOf(mediaType)
		return digest.RunRequest{Payload: payload}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return digest.RunRequest{}, errors.New("invalid JSON")
	}
	_, hasPayload := fields["payload"]
	_, hasURI := fields["payload_uri"]
	if !hasPayload && !hasURI {
		// Any other JSON object is treated as a structured mail event.
		payload, err := digest.PayloadFromEvent(fields)
		if err != nil {
			return digest.RunRequest{}, err
		}
		return digest.RunRequest{Payload: payload}, nil
	}

	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return digest.RunRequest{}, errors.New("invalid JSON")
	}
	switch {
	case req.PayloadURI != "" && req.Payload != "":
		return digest.RunRequest{}, errors.New("payload and payload_uri are mutually exclusive")
	case req.PayloadURI != "":
		if !strings.Contains(req.PayloadURI, "://") {
			return digest.RunRequest{}, errors.New("payload_uri must be a blob uri")
		}
		return digest.RunRequest{PayloadURI: req.PayloadURI}, nil
	}
	payload, err := digest.PayloadFromEvent(req.Payload)
	if err != nil {
		return digest.RunRequest{}, err
	}
	payload.Encoding = req.Encoding
	if req.ContentKind != "" {
		payload.ContentKind = req.ContentKind
	}
	return digest.RunRequest{Payload: payload}, nil
}

func contentKindOf(mediaType string) digest.ContentKind {
	switch mediaType {
	case "text/html":
		return digest.ContentHTML
	case "text/plain":
		return digest.ContentPlain
	default:
		return digest.ContentUnknown
	}
}

func (s *Server) enqueueRun(ctx context.Context, req digest.RunRequest) (string, error) {
	runID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	now := s.clock.Now()
	run := digest.Run{
		ID:         runID,
		Status:     digest.RunStatusQueued,
		Submitted:  now,
		PayloadURI: req.PayloadURI,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req.RunID = runID
	req.Submitted = now.Unix()
	if err := s.queue.Enqueue(queueCtx, req); err != nil {
		if updateErr := s.runs.UpdateRunStatus(context.WithoutCancel(ctx), runID, digest.RunStatusFailed, "enqueue failed"); updateErr != nil {
			s.logger.Error("mark unqueued run failed", zap.String("run_id", runID), zap.Error(updateErr))
		}
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	s.logger.Info("run queued", zap.String("run_id", runID), zap.Bool("by_uri", req.PayloadURI != ""))
	return runID, nil
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if !uuid.Valid(runID) {
		s.writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
