// Package pipeline runs one digest payload end to end: decode, extract,
// normalize, then fetch, summarize and deliver every article with bounded
// parallelism under a run deadline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/medium-digest/internal/alert"
	"github.com/JakeFAU/medium-digest/internal/decoder"
	"github.com/JakeFAU/medium-digest/internal/delivery"
	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/extractor"
	"github.com/JakeFAU/medium-digest/internal/metrics"
	"github.com/JakeFAU/medium-digest/internal/resilience"
	"github.com/JakeFAU/medium-digest/internal/urlnorm"
)

// ArticleFetcher retrieves article content and reports attempts made.
type ArticleFetcher interface {
	Fetch(ctx context.Context, stub digest.ArticleStub) (digest.ArticleContent, int, error)
}

// Config tunes a Pipeline.
type Config struct {
	Workers      int
	RunTimeout   time.Duration
	OutcomeTopic string
}

// Deps are the collaborators of a Pipeline. Ledger, Outcomes, Publisher and
// Alerts are optional.
type Deps struct {
	Decoder    *decoder.Decoder
	Extractor  *extractor.Extractor
	Normalizer *urlnorm.Normalizer
	Fetcher    ArticleFetcher
	Summarizer digest.Summarizer
	Sink       digest.DeliverySink
	Delivery   *resilience.Executor

	Ledger    digest.DeliveryLedger
	Outcomes  digest.OutcomeStore
	Publisher digest.Publisher
	Alerts    alert.Notifier

	Clock  digest.Clock
	IDs    digest.IDGenerator
	Logger *zap.Logger
}

// Pipeline orchestrates one run.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates deps and builds a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Summarizer == nil:
		return nil, errors.New("pipeline: summarizer is required")
	case deps.Sink == nil:
		return nil, errors.New("pipeline: delivery sink is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Decoder == nil {
		deps.Decoder = decoder.New(deps.Logger.Named("decoder"))
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.New(deps.Logger.Named("extractor"))
	}
	if deps.Normalizer == nil {
		deps.Normalizer = urlnorm.NewNormalizer(deps.Logger.Named("urlnorm"))
	}
	if deps.Delivery == nil {
		deps.Delivery = resilience.New("deliver", resilience.DeliveryPolicy, resilience.WithLogger(deps.Logger))
	}
	deps.Alerts = alert.Safe(deps.Alerts, deps.Logger.Named("alert"))
	return &Pipeline{cfg: cfg, deps: deps, log: deps.Logger.Named("pipeline")}, nil
}

// Run processes payload under a freshly generated run ID.
func (p *Pipeline) Run(ctx context.Context, payload digest.RawPayload) (digest.RunReport, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return digest.RunReport{}, fmt.Errorf("generate run id: %w", err)
	}
	return p.RunWithID(ctx, runID, payload)
}

// RunWithID processes payload. Only a payload that cannot be decoded, or a
// cancelled parent context, is reported as an error; article failures are
// recorded in the report.
func (p *Pipeline) RunWithID(ctx context.Context, runID string, payload digest.RawPayload) (digest.RunReport, error) {
	log := p.log.With(zap.String("run_id", runID))
	report := digest.RunReport{RunID: runID, StartedAt: p.deps.Clock.Now(), Outcomes: []digest.Outcome{}}

	html, err := p.deps.Decoder.Decode(payload)
	if err != nil {
		report.FinishedAt = p.deps.Clock.Now()
		metrics.ObserveRun(string(digest.RunStatusFailed), report.FinishedAt.Sub(report.StartedAt))
		return report, fmt.Errorf("decode payload: %w", err)
	}
	candidates := p.deps.Extractor.Extract(html)
	stubs := p.deps.Normalizer.Normalize(candidates)
	report.Candidates = len(candidates)
	report.Stubs = len(stubs)
	log.Info("digest parsed", zap.Int("candidates", len(candidates)), zap.Int("stubs", len(stubs)))
	if len(stubs) == 0 {
		log.Warn("no article links found in digest")
	}

	runCtx := ctx
	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	state := &runState{id: runID}
	results := make(chan digest.Outcome, len(stubs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	go func() {
		for _, stub := range stubs {
			g.Go(func() error {
				results <- p.process(runCtx, state, stub)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	// Recording happens outside the run deadline so late outcomes still land.
	recordCtx := context.WithoutCancel(ctx)
	for outcome := range results {
		report.Outcomes = append(report.Outcomes, outcome)
		p.record(recordCtx, outcome)
	}

	report.FinishedAt = p.deps.Clock.Now()
	report.DeadlineHit = errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	status := report.Status()
	metrics.ObserveRun(string(status), report.FinishedAt.Sub(report.StartedAt))
	log.Info("run complete",
		zap.String("status", string(status)),
		zap.Int("delivered", report.Delivered()),
		zap.Int("failed", report.Failed()),
		zap.Bool("deadline_hit", report.DeadlineHit),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	if n := len(report.Outcomes); n > 0 && report.Failed() == n {
		_ = p.deps.Alerts.Notify(recordCtx, alert.Alert{
			Severity: alert.SeverityCritical,
			Title:    "Every article in the digest failed",
			Err:      lastError(report.Outcomes),
			Fields: map[string]string{
				"run_id":   runID,
				"articles": fmt.Sprint(n),
			},
			At: report.FinishedAt,
		})
	}

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run %s canceled: %w", runID, err)
	}
	return report, nil
}

type runState struct {
	id            string
	authAlertOnce sync.Once
}

func (p *Pipeline) process(ctx context.Context, state *runState, stub digest.ArticleStub) digest.Outcome {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	log := p.log.With(zap.String("run_id", state.id), zap.String("url", stub.URL))

	outcome := p.processStub(ctx, state, stub, log)
	outcome.RunID = state.id
	outcome.FinishedAt = p.deps.Clock.Now()
	if outcome.Title == "" {
		outcome.Title = stub.Title
	}

	result := "failed"
	switch {
	case outcome.Delivered:
		result = "delivered"
	case outcome.Skipped:
		result = "skipped"
	}
	metrics.ObserveArticle(string(outcome.Stage), result)
	return outcome
}

func (p *Pipeline) processStub(ctx context.Context, state *runState, stub digest.ArticleStub, log *zap.Logger) digest.Outcome {
	// Stubs whose turn comes after the deadline are reported without a fetch.
	if err := ctx.Err(); err != nil {
		log.Warn("run deadline reached before article started")
		return failure(stub, digest.StageFetch, 0, fmt.Errorf("run deadline reached before fetch: %w", err))
	}
	if p.deps.Ledger != nil {
		seen, err := p.deps.Ledger.Seen(ctx, stub.URL)
		if err != nil {
			log.Warn("delivery ledger lookup failed, processing anyway", zap.Error(err))
		} else if seen {
			log.Info("article already delivered, skipping")
			return digest.Outcome{URL: stub.URL, Title: stub.Title, Stage: digest.StageLedger, Skipped: true}
		}
	}

	content, attempts, err := p.deps.Fetcher.Fetch(ctx, stub)
	if err != nil {
		log.Warn("article fetch failed", zap.Int("attempts", attempts), zap.Error(err))
		if digest.IsKind(err, digest.KindAuthentication) {
			p.alertAuth(ctx, state, stub, err)
		}
		return failure(stub, digest.StageFetch, attempts, err)
	}

	summary, err := p.deps.Summarizer.Summarize(ctx, content.Title, content.Body)
	if err != nil {
		log.Warn("summarize failed", zap.Error(err))
		return failure(stub, digest.StageSummarize, 1, err)
	}

	outcome := delivery.Deliver(ctx, p.deps.Delivery, p.deps.Sink, stub.URL, content.Title, summary)
	if !outcome.Delivered {
		log.Warn("delivery failed", zap.Int("attempts", outcome.Attempts), zap.String("error", outcome.LastError))
		return outcome
	}
	log.Info("article delivered", zap.Int("attempts", outcome.Attempts))

	if p.deps.Ledger != nil {
		if err := p.deps.Ledger.MarkDelivered(context.WithoutCancel(ctx), state.id, stub.URL, p.deps.Clock.Now()); err != nil {
			log.Warn("mark delivered failed", zap.Error(err))
		}
	}
	return outcome
}

func (p *Pipeline) alertAuth(ctx context.Context, state *runState, stub digest.ArticleStub, err error) {
	state.authAlertOnce.Do(func() {
		_ = p.deps.Alerts.Notify(context.WithoutCancel(ctx), alert.Alert{
			Severity: alert.SeverityCritical,
			Title:    "Medium rejected the session cookies",
			Err:      err,
			Fields:   map[string]string{"run_id": state.id, "url": stub.URL},
			At:       p.deps.Clock.Now(),
		})
	})
}

func (p *Pipeline) record(ctx context.Context, outcome digest.Outcome) {
	if p.deps.Publisher != nil && p.cfg.OutcomeTopic != "" {
		if _, err := p.deps.Publisher.Publish(ctx, p.cfg.OutcomeTopic, outcome); err != nil {
			p.log.Warn("publish outcome failed", zap.String("url", outcome.URL), zap.Error(err))
		}
	}
	if p.deps.Outcomes != nil {
		if err := p.deps.Outcomes.StoreOutcome(ctx, outcome); err != nil {
			p.log.Warn("store outcome failed", zap.String("url", outcome.URL), zap.Error(err))
		}
	}
}

func failure(stub digest.ArticleStub, stage digest.Stage, attempts int, err error) digest.Outcome {
	return digest.Outcome{
		URL:            stub.URL,
		Title:          stub.Title,
		Stage:          stage,
		Attempts:       attempts,
		Classification: digest.ClassificationOf(err),
		LastError:      err.Error(),
	}
}

func lastError(outcomes []digest.Outcome) error {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].LastError != "" {
			return errors.New(outcomes[i].LastError)
		}
	}
	return nil
}
