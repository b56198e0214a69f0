package alert

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/metrics"
)

type safe struct {
	next   Notifier
	logger *zap.Logger
}

// Safe wraps next so that alerting never fails the caller. Every alert is
// logged; delivery failures are logged and swallowed. A nil next only logs.
func Safe(next Notifier, logger *zap.Logger) Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &safe{next: next, logger: logger}
}

func (s *safe) Notify(ctx context.Context, a Alert) error {
	s.logger.Warn("admin alert",
		zap.String("severity", string(a.Severity)),
		zap.String("title", a.Title),
		zap.Error(a.Err),
	)
	if s.next == nil {
		metrics.ObserveAlert(string(a.Severity), "logged")
		return nil
	}
	if err := s.next.Notify(ctx, a); err != nil {
		metrics.ObserveAlert(string(a.Severity), "failed")
		s.logger.Error("send admin alert failed", zap.String("title", a.Title), zap.Error(err))
		return nil
	}
	metrics.ObserveAlert(string(a.Severity), "sent")
	return nil
}
