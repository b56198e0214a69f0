// Package postgres persists the delivery ledger and article outcomes in
// Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Default table names.
const (
	DefaultLedgerTable  = "delivered_articles"
	DefaultOutcomeTable = "article_outcomes"
)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	LedgerTable     string
	OutcomeTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements digest.DeliveryLedger and digest.OutcomeStore.
type Store struct {
	pool     pool
	ledger   string
	outcomes string
	sql      sq.StatementBuilderType
}

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.LedgerTable, cfg.OutcomeTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool builds a Store over an existing pool.
func NewWithPool(p pool, ledgerTable, outcomeTable string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ledgerTable == "" {
		ledgerTable = DefaultLedgerTable
	}
	if outcomeTable == "" {
		outcomeTable = DefaultOutcomeTable
	}
	for _, table := range []string{ledgerTable, outcomeTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{
		pool:     p,
		ledger:   ledgerTable,
		outcomes: outcomeTable,
		sql:      sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the ledger and outcome tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	delivered_at TIMESTAMPTZ NOT NULL
)`, s.ledger),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	stage TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	classification TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	delivered BOOLEAN NOT NULL,
	skipped BOOLEAN NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	finished_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, url)
)`, s.outcomes),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Seen reports whether url has a ledger row.
func (s *Store) Seen(ctx context.Context, url string) (bool, error) {
	query, args, err := s.sql.Select("1").From(s.ledger).Where(sq.Eq{"url": url}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build ledger query: %w", err)
	}
	var one int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return true, nil
}

// MarkDelivered inserts a ledger row. Re-marking a URL keeps the first row.
func (s *Store) MarkDelivered(ctx context.Context, runID, url string, at time.Time) error {
	query, args, err := s.sql.Insert(s.ledger).
		Columns("url", "run_id", "delivered_at").
		Values(url, runID, at).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build ledger insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ledger row: %w", err)
	}
	return nil
}

// StoreOutcome upserts the outcome row for (run, url).
func (s *Store) StoreOutcome(ctx context.Context, o digest.Outcome) error {
	if o.RunID == "" || o.URL == "" {
		return fmt.Errorf("outcome run id and url are required")
	}
	query, args, err := s.sql.Insert(s.outcomes).
		Columns("run_id", "url", "title", "stage", "attempts", "classification",
			"last_error", "delivered", "skipped", "summary", "finished_at").
		Values(o.RunID, o.URL, o.Title, string(o.Stage), o.Attempts, string(o.Classification),
			o.LastError, o.Delivered, o.Skipped, o.Summary, o.FinishedAt).
		Suffix(`ON CONFLICT (run_id, url) DO UPDATE SET
	stage = EXCLUDED.stage,
	attempts = EXCLUDED.attempts,
	classification = EXCLUDED.classification,
	last_error = EXCLUDED.last_error,
	delivered = EXCLUDED.delivered,
	skipped = EXCLUDED.skipped,
	summary = EXCLUDED.summary,
	finished_at = EXCLUDED.finished_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build outcome insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}
