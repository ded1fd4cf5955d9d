package scheduler

import (
	"context"
	"fmt"

	applogger "SignalGate/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Runner fires jobs on cron specs (seconds field optional). A job still running
// when its next tick arrives is skipped rather than stacked.
type Runner struct {
	cron    *cron.Cron
	logger  *applogger.Logger
	baseCtx context.Context
}

func New(baseCtx context.Context, logger *applogger.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = applogger.Nop()
	}
	return &Runner{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec and returns its entry id.
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() { job(r.baseCtx) })
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return id, nil
}

var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether spec parses with the runner's parser.
func Validate(spec string) error {
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

func (r *Runner) Start() {
	r.logger.Info("scheduler started", applogger.Int("entries", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx, whichever comes first.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}
