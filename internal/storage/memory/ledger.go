package memory

import (
	"context"
	"sync"
	"time"
)

// Ledger remembers delivered article URLs for the life of the process.
type Ledger struct {
	mu        sync.RWMutex
	delivered map[string]time.Time
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{delivered: make(map[string]time.Time)}
}

// Seen reports whether url was delivered before.
func (l *Ledger) Seen(_ context.Context, url string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.delivered[url]
	return ok, nil
}

// MarkDelivered records url. The first delivery time wins.
func (l *Ledger) MarkDelivered(_ context.Context, _ string, url string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.delivered[url]; !ok {
		l.delivered[url] = at
	}
	return nil
}
