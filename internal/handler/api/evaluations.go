package api

import (
	"context"
	"errors"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	"SignalGate/internal/service/ratelimit"
	"SignalGate/internal/usecase"
	xhttp "SignalGate/pkg/http"
	applogger "SignalGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CycleRunner is the part of usecase.CycleRunner the API drives.
type CycleRunner interface {
	Run(ctx context.Context, req usecase.CycleRequest) (models.CycleReport, error)
	LastReport() (models.CycleReport, bool)
}

// EvaluationQueries is the read side used by the API.
type EvaluationQueries interface {
	LatestEvaluation(ctx context.Context, ticker string) (models.TickerEvaluation, error)
	History(ctx context.Context, ticker string, limit int) ([]models.TickerEvaluation, error)
	LedgerEntry(ctx context.Context, ticker, alertType string) (models.DedupLedgerEntry, error)
}

// EvaluationsHandler serves on-demand cycles and evaluation lookups.
type EvaluationsHandler struct {
	runner  CycleRunner
	queries EvaluationQueries
	limiter *ratelimit.Limiter
	logger  *applogger.Logger
}

func NewEvaluationsHandler(runner CycleRunner, queries EvaluationQueries, limiter *ratelimit.Limiter, logger *applogger.Logger) *EvaluationsHandler {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &EvaluationsHandler{runner: runner, queries: queries, limiter: limiter, logger: logger.Component("api")}
}

func (h *EvaluationsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/cycles", h.RunCycle)
	g.GET("/cycles/last", h.LastCycle)
	g.GET("/evaluations/:ticker", h.Latest)
	g.GET("/evaluations/:ticker/history", h.History)
	g.GET("/ledger/:ticker/:type", h.Ledger)
}

// RunCycle evaluates the requested tickers now and returns the full report.
// Per-ticker failures are part of a 200 response.
func (h *EvaluationsHandler) RunCycle(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("cycle trigger rate exceeded"))
	}
	req := &models.RunCycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	// a client hanging up must not abandon tickers that already claimed alerts
	report, err := h.runner.Run(context.WithoutCancel(c.Request().Context()), usecase.CycleRequest{
		Trigger:  models.TriggerOnDemand,
		Tickers:  req.Tickers,
		Readings: req.Readings,
	})
	switch {
	case errors.Is(err, usecase.ErrCycleRunning):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("an evaluation cycle is already running"))
	case err != nil:
		h.logger.Error("on-demand cycle failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("cycle failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *EvaluationsHandler) LastCycle(c echo.Context) error {
	report, ok := h.runner.LastReport()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no cycle has run yet"))
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *EvaluationsHandler) Latest(c echo.Context) error {
	req := &models.EvaluationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	eval, err := h.queries.LatestEvaluation(c.Request().Context(), req.Ticker)
	if err != nil {
		return h.lookupError(c, err, "no evaluation for %s", req.Ticker)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, eval)
}

func (h *EvaluationsHandler) History(c echo.Context) error {
	req := &models.EvaluationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.queries.History(c.Request().Context(), req.Ticker, xhttp.QueryLimit(c, 20, 200))
	if err != nil {
		return h.lookupError(c, err, "no history for %s", req.Ticker)
	}
	if rows == nil {
		rows = []models.TickerEvaluation{}
	}
	return xhttp.SuccessResponse(c, rows)
}

func (h *EvaluationsHandler) Ledger(c echo.Context) error {
	req := &models.LedgerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, ok := models.ParseAlertType(req.AlertType); !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("type", "unknown alert type").WithParam("type", req.AlertType))
	}
	entry, err := h.queries.LedgerEntry(c.Request().Context(), req.Ticker, req.AlertType)
	if err != nil {
		return h.lookupError(c, err, "%s %s has never been sent", req.Ticker, req.AlertType)
	}
	return xhttp.SuccessResponse(c, entry)
}

func (h *EvaluationsHandler) lookupError(c echo.Context, err error, format string, args ...interface{}) error {
	if errors.Is(err, domrepo.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf(format, args...))
	}
	h.logger.Error("lookup failed", applogger.String("route", c.Path()), applogger.Error(err))
	if errors.Is(err, domrepo.ErrLedgerUnavailable) {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ledger unavailable"))
	}
	return xhttp.InternalServerErrorResponse(c)
}

var (
	_ xhttp.Handler     = (*EvaluationsHandler)(nil)
	_ CycleRunner       = (*usecase.CycleRunner)(nil)
	_ EvaluationQueries = (*usecase.Queries)(nil)
)
