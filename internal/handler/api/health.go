package api

import (
	"context"
	"net/http"
	"time"

	xhttp "SignalGate/pkg/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// HealthCheck checks one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthBody struct {
	Status     string                     `json:"status"`
	Ledger     string                     `json:"ledger"`
	Components map[string]componentStatus `json:"components"`
}

// HealthHandler reports 503 when any dependency check fails.
type HealthHandler struct {
	ledger  string
	checks  []HealthCheck
	timeout time.Duration
}

func NewHealthHandler(ledgerBackend string, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{ledger: ledgerBackend, checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	results := make([]componentStatus, len(h.checks))
	var g errgroup.Group
	for i, chk := range h.checks {
		i, chk := i, chk
		g.Go(func() error {
			results[i] = componentStatus{Status: "up"}
			if err := chk.Check(ctx); err != nil {
				results[i] = componentStatus{Status: "down", Error: err.Error()}
			}
			return nil
		})
	}
	_ = g.Wait()

	body := healthBody{Status: "up", Ledger: h.ledger, Components: make(map[string]componentStatus, len(h.checks))}
	code := http.StatusOK
	for i, chk := range h.checks {
		body.Components[chk.Name] = results[i]
		if results[i].Status != "up" {
			body.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	return xhttp.DataResponse(c, code, body)
}

var _ xhttp.Handler = (*HealthHandler)(nil)
