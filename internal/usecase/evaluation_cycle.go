package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	"SignalGate/pkg/config"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/util"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrCycleRunning is returned when a cycle is requested while another is in progress.
var ErrCycleRunning = errors.New("evaluation cycle already running")

// CycleRequest selects what one cycle evaluates. Inline readings take
// precedence over the reading buffer for their ticker.
type CycleRequest struct {
	Trigger  models.CycleTrigger
	Tickers  []string
	Readings []models.TickerReadings
}

// CycleRunner evaluates a bounded ticker set in a worker pool. One cycle runs
// at a time; tickers never wait on each other except through the dedup ledger.
type CycleRunner struct {
	evaluator *Evaluator
	source    domrepo.ReadingSource
	cfg       config.CycleConfig
	l         *applogger.Logger
	metrics   domrepo.Metrics
	now       func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	last    *models.CycleReport
}

func NewCycleRunner(evaluator *Evaluator, source domrepo.ReadingSource, cfg config.CycleConfig, l *applogger.Logger, metrics domrepo.Metrics) *CycleRunner {
	if l == nil {
		l = applogger.Nop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &CycleRunner{
		evaluator: evaluator,
		source:    source,
		cfg:       cfg,
		l:         l.Component("cycle"),
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Running reports whether a cycle is in progress.
func (c *CycleRunner) Running() bool { return c.running.Load() }

// LastReport is the most recently finished cycle, if any.
func (c *CycleRunner) LastReport() (models.CycleReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return models.CycleReport{}, false
	}
	return *c.last, true
}

// Run evaluates one cycle. Per-ticker problems land in report.Failures; the
// returned error is reserved for the cycle as a whole (already running, no
// ticker source).
func (c *CycleRunner) Run(ctx context.Context, req CycleRequest) (models.CycleReport, error) {
	if !c.running.CompareAndSwap(false, true) {
		return models.CycleReport{}, ErrCycleRunning
	}
	defer c.running.Store(false)

	if req.Trigger == "" {
		req.Trigger = models.TriggerOnDemand
	}
	report := models.CycleReport{
		ID:        uuid.New().String(),
		Trigger:   req.Trigger,
		StartedAt: c.now(),
		Results:   []models.TickerEvaluation{},
		Failures:  []models.TickerFailure{},
	}
	meta := CycleMeta{ID: report.ID, At: report.StartedAt}
	l := c.l.With(applogger.String("cycle_id", report.ID), applogger.String("trigger", string(req.Trigger)))

	inputs, failures, skipped, err := c.collect(ctx, req)
	if err != nil {
		return report, err
	}
	report.Failures = append(report.Failures, failures...)
	report.Skipped = skipped

	l.Info("cycle started", applogger.Int("tickers", len(inputs)), applogger.Int("workers", c.cfg.Workers))

	results := make([]*models.TickerEvaluation, len(inputs))
	fails := make([]*models.TickerFailure, len(inputs))
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i, r := range inputs {
		if ctx.Err() != nil {
			report.Cancelled = true
			report.Skipped = append(report.Skipped, r.Ticker)
			continue
		}
		i, r := i, r
		g.Go(func() error {
			if ctx.Err() != nil {
				fails[i] = &models.TickerFailure{Ticker: r.Ticker, Stage: models.StageInput, Error: ctx.Err().Error()}
				return nil
			}
			tctx, cancel := c.tickerContext(ctx)
			defer cancel()
			eval, fail := c.evaluator.Evaluate(tctx, meta, r)
			if fail != nil {
				fails[i] = fail
				return nil
			}
			results[i] = &eval
			return nil
		})
	}
	_ = g.Wait()

	for i := range inputs {
		if results[i] != nil {
			report.Results = append(report.Results, *results[i])
		}
		if fails[i] != nil {
			report.Failures = append(report.Failures, *fails[i])
		}
	}
	if ctx.Err() != nil {
		report.Cancelled = true
	}
	report.FinishedAt = c.now()

	c.metrics.RecordCycle(string(req.Trigger), len(report.Failures), report.FinishedAt.Sub(report.StartedAt))
	l.Info("cycle finished",
		applogger.Int("results", len(report.Results)),
		applogger.Int("failures", len(report.Failures)),
		applogger.Int("skipped", len(report.Skipped)),
		applogger.Int("alerts", report.AlertCount()),
		applogger.Bool("cancelled", report.Cancelled),
		applogger.Duration("duration_ms", report.FinishedAt.Sub(report.StartedAt)),
	)

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()
	return report, nil
}

// RunScheduled is the cron job body.
func (c *CycleRunner) RunScheduled(ctx context.Context) {
	if _, err := c.Run(ctx, CycleRequest{Trigger: models.TriggerSchedule}); err != nil {
		if errors.Is(err, ErrCycleRunning) {
			c.l.Warn("scheduled cycle skipped, previous still running")
			return
		}
		c.metrics.RecordError("cycle")
		c.l.Error("scheduled cycle failed", applogger.Error(err))
	}
}

// tickerContext detaches a started ticker from cycle cancellation so it runs to
// completion; only TickerTimeout bounds it. Cancellation is honoured between tickers.
func (c *CycleRunner) tickerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.cfg.TickerTimeout > 0 {
		return context.WithTimeout(detached, c.cfg.TickerTimeout)
	}
	return context.WithCancel(detached)
}

// collect resolves the ticker set and its readings. Order: inline readings,
// then requested tickers, falling back to configured tickers and finally
// every ticker in the reading buffer.
func (c *CycleRunner) collect(ctx context.Context, req CycleRequest) ([]models.TickerReadings, []models.TickerFailure, []string, error) {
	inline := make(map[string]models.TickerReadings, len(req.Readings))
	order := make([]string, 0, len(req.Readings)+len(req.Tickers))
	for _, r := range req.Readings {
		r.Ticker = util.NormalizeTicker(r.Ticker)
		if r.Ticker == "" {
			continue
		}
		if _, dup := inline[r.Ticker]; !dup {
			order = append(order, r.Ticker)
		}
		inline[r.Ticker] = r
	}

	tickers := req.Tickers
	if len(tickers) == 0 && len(inline) == 0 {
		tickers = c.cfg.Tickers
		if len(tickers) == 0 && c.source != nil {
			all, err := c.source.Tickers(ctx)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("list buffered tickers: %w", err)
			}
			tickers = all
		}
	}
	order = util.NormalizeTickers(append(order, tickers...))

	var skipped []string
	if limit := c.cfg.MaxTickers; limit > 0 && len(order) > limit {
		skipped = append(skipped, order[limit:]...)
		order = order[:limit]
	}

	var need []string
	for _, t := range order {
		if _, ok := inline[t]; !ok {
			need = append(need, t)
		}
	}
	buffered := map[string]models.TickerReadings{}
	if len(need) > 0 && c.source != nil {
		m, err := c.source.LatestMany(ctx, need)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load readings: %w", err)
		}
		buffered = m
	}

	inputs := make([]models.TickerReadings, 0, len(order))
	var failures []models.TickerFailure
	for _, t := range order {
		r, ok := inline[t]
		if !ok {
			r, ok = buffered[t]
		}
		if !ok {
			failures = append(failures, models.TickerFailure{Ticker: t, Stage: models.StageInput, Error: "no readings available"})
			continue
		}
		r.Ticker = t
		inputs = append(inputs, r)
	}
	return inputs, failures, skipped, nil
}
