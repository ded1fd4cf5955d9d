package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalGate/internal/handler/api"
	"SignalGate/internal/usecase"
	"SignalGate/pkg/config"
	xhttp "SignalGate/pkg/http"
	pkgkafka "SignalGate/pkg/kafka"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/scheduler"
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	runner     *usecase.CycleRunner
	httpServer *xhttp.Server
	hub        *api.AlertHub
	consumer   *pkgkafka.Consumer
	readings   pkgkafka.MessageHandler
	closers    []closer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, runner *usecase.CycleRunner, httpServer *xhttp.Server, hub *api.AlertHub) *App {
	return &App{
		cfg:        cfg,
		logger:     l.Component("app"),
		runner:     runner,
		httpServer: httpServer,
		hub:        hub,
	}
}

// SetConsumer attaches the readings consumer.
func (a *App) SetConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	a.consumer = c
	a.readings = h
}

// AddCloser registers a resource closed on shutdown, in registration order.
func (a *App) AddCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run starts the application and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(ctx, a.logger)
	if a.cfg.Cycle.Schedule != "" {
		if _, err := sched.Add(a.cfg.Cycle.Schedule, a.runner.RunScheduled); err != nil {
			return err
		}
	}

	if a.consumer != nil && a.readings != nil {
		a.consumer.RegisterHandler(a.readings)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.readings.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	sched.Start()
	if a.cfg.Cycle.RunOnStart {
		go a.runner.RunScheduled(ctx)
	}
	a.logger.Info("signalgate started",
		applogger.String("schedule", a.cfg.Cycle.Schedule),
		applogger.Int("port", a.cfg.Server.Port),
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown(sched)
}

// shutdown stops intake first, lets the running cycle finish, then closes outputs and stores.
func (a *App) shutdown(sched *scheduler.Runner) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := sched.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	a.hub.Close()
	a.logger.RemoveCollector()

	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", applogger.String("resource", c.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		a.logger.Error("shutdown finished with errors", applogger.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout; d > 0 {
		return d
	}
	return 15 * time.Second
}
