package collaborators

import (
	"context"
	"sync"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/domain/repository"
	"SignalGate/internal/domain/service"
	applogger "SignalGate/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ExternalNames are the sub-scores supplied from outside the engine.
var ExternalNames = []string{models.SubScoreBacktest, models.SubScoreRiskProfile, models.SubScoreSentiment}

// Resolver gathers collaborator sub-scores for a ticker. A score carried in
// the readings wins over a provider call. A provider error only leaves the
// score missing; it never fails the ticker.
type Resolver struct {
	providers []service.SubScoreProvider
	l         *applogger.Logger
	metrics   repository.Metrics
}

func NewResolver(providers []service.SubScoreProvider, l *applogger.Logger, metrics repository.Metrics) *Resolver {
	if l == nil {
		l = applogger.Nop()
	}
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}
	return &Resolver{providers: providers, l: l.Component("collaborators"), metrics: metrics}
}

// NewHTTPResolver wires one HTTP provider per external sub-score, or none when base is disabled.
func NewHTTPResolver(base *HTTPBase, l *applogger.Logger, metrics repository.Metrics) *Resolver {
	var providers []service.SubScoreProvider
	if base.Enabled() {
		for _, name := range ExternalNames {
			providers = append(providers, NewHTTPProvider(name, base))
		}
	}
	return NewResolver(providers, l, metrics)
}

func (r *Resolver) Resolve(ctx context.Context, readings models.TickerReadings) map[string]models.SubScore {
	out := make(map[string]models.SubScore, len(ExternalNames))
	for _, name := range ExternalNames {
		if s, ok := readings.SubScore(name); ok {
			out[name] = s
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, p := range r.providers {
		if _, inline := out[p.Name()]; inline {
			continue
		}
		p := p
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					r.metrics.RecordError("collaborator")
					r.l.Error("sub-score provider panicked",
						applogger.String("ticker", readings.Ticker),
						applogger.String("provider", p.Name()),
						applogger.Any("panic", rec),
					)
				}
			}()
			s, ok, err := p.SubScore(ctx, readings)
			if err != nil {
				r.metrics.RecordError("collaborator")
				r.l.Warn("sub-score unavailable",
					applogger.String("ticker", readings.Ticker),
					applogger.String("provider", p.Name()),
					applogger.Error(err),
				)
				return nil
			}
			if ok {
				mu.Lock()
				out[p.Name()] = s
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
