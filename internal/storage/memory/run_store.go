package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// ErrNotFound is returned for unknown runs and objects.
var ErrNotFound = errors.New("not found")

// RunStore keeps run metadata and per-article outcomes.
type RunStore struct {
	mu       sync.RWMutex
	clock    digest.Clock
	runs     map[string]digest.Run
	outcomes map[string][]digest.Outcome
}

// NewRunStore constructs a RunStore. clock stamps status transitions.
func NewRunStore(clock digest.Clock) *RunStore {
	return &RunStore{
		clock:    clock,
		runs:     make(map[string]digest.Run),
		outcomes: make(map[string][]digest.Outcome),
	}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run digest.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRunStatus moves a run to status, stamping start and finish times.
func (s *RunStore) UpdateRunStatus(_ context.Context, runID string, status digest.RunStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.ErrorText = errText
	now := s.now()
	if status == digest.RunStatusRunning && run.Started == nil {
		run.Started = &now
	}
	if isTerminal(status) {
		run.Finished = &now
	}
	s.runs[runID] = run
	return nil
}

// AttachReport stores the final report and where it was archived.
func (s *RunStore) AttachReport(_ context.Context, runID string, report digest.RunReport, reportURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.Report = &report
	run.ReportURI = reportURI
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (digest.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return digest.Run{}, ErrNotFound
	}
	return run, nil
}

// StoreOutcome appends an article outcome to its run.
func (s *RunStore) StoreOutcome(_ context.Context, outcome digest.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome.RunID] = append(s.outcomes[outcome.RunID], outcome)
	return nil
}

// Outcomes returns a copy of the outcomes stored for runID.
func (s *RunStore) Outcomes(runID string) []digest.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]digest.Outcome(nil), s.outcomes[runID]...)
}

func (s *RunStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func isTerminal(status digest.RunStatus) bool {
	switch status {
	case digest.RunStatusSucceeded, digest.RunStatusPartial, digest.RunStatusFailed:
		return true
	default:
		return false
	}
}
