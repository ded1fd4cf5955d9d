package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	"SignalGate/internal/service/ratelimit"
	"SignalGate/internal/usecase"
	xhttp "SignalGate/pkg/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type fakeRunner struct {
	err    error
	last   *models.CycleReport
	got    usecase.CycleRequest
	ctxErr error
}

func (f *fakeRunner) Run(ctx context.Context, req usecase.CycleRequest) (models.CycleReport, error) {
	f.got = req
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return models.CycleReport{}, f.err
	}
	return models.CycleReport{ID: "c1", Trigger: req.Trigger, Results: []models.TickerEvaluation{}, Failures: []models.TickerFailure{}}, nil
}

func (f *fakeRunner) LastReport() (models.CycleReport, bool) {
	if f.last == nil {
		return models.CycleReport{}, false
	}
	return *f.last, true
}

type fakeQueries struct {
	evals  map[string]models.TickerEvaluation
	ledger error
}

func (f *fakeQueries) LatestEvaluation(_ context.Context, ticker string) (models.TickerEvaluation, error) {
	e, ok := f.evals[ticker]
	if !ok {
		return models.TickerEvaluation{}, domrepo.ErrNotFound
	}
	return e, nil
}

func (f *fakeQueries) History(_ context.Context, ticker string, _ int) ([]models.TickerEvaluation, error) {
	if e, ok := f.evals[ticker]; ok {
		return []models.TickerEvaluation{e}, nil
	}
	return nil, nil
}

func (f *fakeQueries) LedgerEntry(_ context.Context, ticker, alertType string) (models.DedupLedgerEntry, error) {
	if f.ledger != nil {
		return models.DedupLedgerEntry{}, f.ledger
	}
	return models.DedupLedgerEntry{Ticker: ticker, AlertType: models.AlertType(alertType), LastSent: time.Unix(0, 0)}, nil
}

func newEcho(handlers ...xhttp.Handler) *echo.Echo {
	e := echo.New()
	e.Validator = xhttp.NewValidator()
	for _, h := range handlers {
		h.RegisterRoutes(e)
	}
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestEvaluationsRoutes(t *testing.T) {
	queries := &fakeQueries{evals: map[string]models.TickerEvaluation{"AAA": {CycleID: "c0", Ticker: "AAA"}}}

	tests := []struct {
		name    string
		runner  *fakeRunner
		queries *fakeQueries
		method  string
		target  string
		body    string
		want    int
	}{
		{name: "run cycle", runner: &fakeRunner{}, method: http.MethodPost, target: "/api/cycles", body: `{"tickers":["aaa"]}`, want: http.StatusOK},
		{name: "run cycle while running", runner: &fakeRunner{err: usecase.ErrCycleRunning}, method: http.MethodPost, target: "/api/cycles", body: `{}`, want: http.StatusConflict},
		{name: "run cycle failure", runner: &fakeRunner{err: errors.New("buffer down")}, method: http.MethodPost, target: "/api/cycles", body: `{}`, want: http.StatusInternalServerError},
		{name: "invalid inline reading", runner: &fakeRunner{}, method: http.MethodPost, target: "/api/cycles", body: `{"readings":[{"price":1}]}`, want: http.StatusBadRequest},
		{name: "invalid ticker in body", runner: &fakeRunner{}, method: http.MethodPost, target: "/api/cycles", body: `{"tickers":["two words"]}`, want: http.StatusBadRequest},
		{name: "invalid ticker in path", runner: &fakeRunner{}, queries: queries, method: http.MethodGet, target: "/api/evaluations/bad!!", want: http.StatusBadRequest},
		{name: "no cycle yet", runner: &fakeRunner{}, method: http.MethodGet, target: "/api/cycles/last", want: http.StatusNotFound},
		{name: "last cycle", runner: &fakeRunner{last: &models.CycleReport{ID: "c9"}}, method: http.MethodGet, target: "/api/cycles/last", want: http.StatusOK},
		{name: "latest evaluation", runner: &fakeRunner{}, queries: queries, method: http.MethodGet, target: "/api/evaluations/AAA", want: http.StatusOK},
		{name: "unknown evaluation", runner: &fakeRunner{}, queries: queries, method: http.MethodGet, target: "/api/evaluations/ZZZ", want: http.StatusNotFound},
		{name: "history", runner: &fakeRunner{}, queries: queries, method: http.MethodGet, target: "/api/evaluations/ZZZ/history?limit=5", want: http.StatusOK},
		{name: "ledger entry", runner: &fakeRunner{}, queries: queries, method: http.MethodGet, target: "/api/ledger/AAA/GAP_UP", want: http.StatusOK},
		{name: "ledger unknown type", runner: &fakeRunner{}, queries: queries, method: http.MethodGet, target: "/api/ledger/AAA/NOPE", want: http.StatusBadRequest},
		{name: "ledger never sent", runner: &fakeRunner{}, queries: &fakeQueries{ledger: domrepo.ErrNotFound}, method: http.MethodGet, target: "/api/ledger/AAA/GAP_UP", want: http.StatusNotFound},
		{name: "ledger down", runner: &fakeRunner{}, queries: &fakeQueries{ledger: domrepo.ErrLedgerUnavailable}, method: http.MethodGet, target: "/api/ledger/AAA/GAP_UP", want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.queries
			if q == nil {
				q = &fakeQueries{}
			}
			e := newEcho(NewEvaluationsHandler(tt.runner, q, nil, nil))
			rec := do(e, tt.method, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body=%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRunCycleForwardsRequest(t *testing.T) {
	r := &fakeRunner{}
	e := newEcho(NewEvaluationsHandler(r, &fakeQueries{}, nil, nil))

	rec := do(e, http.MethodPost, "/api/cycles", `{"tickers":["aaa"],"readings":[{"ticker":"BBB","price":10}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if r.got.Trigger != models.TriggerOnDemand || len(r.got.Tickers) != 1 || len(r.got.Readings) != 1 {
		t.Fatalf("runner got %+v", r.got)
	}

	var body struct {
		Data models.CycleReport `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.ID != "c1" {
		t.Fatalf("report id = %q", body.Data.ID)
	}
}

func TestRunCycleOutlivesClientDisconnect(t *testing.T) {
	r := &fakeRunner{}
	e := newEcho(NewEvaluationsHandler(r, &fakeQueries{}, nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/cycles", strings.NewReader(`{"tickers":["aaa"]}`)).WithContext(ctx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(httptest.NewRecorder(), req)

	if len(r.got.Tickers) != 1 {
		t.Fatalf("runner not invoked: %+v", r.got)
	}
	if r.ctxErr != nil {
		t.Fatalf("cycle context carried the request cancellation: %v", r.ctxErr)
	}
}

func TestRunCycleRateLimited(t *testing.T) {
	e := newEcho(NewEvaluationsHandler(&fakeRunner{}, &fakeQueries{}, ratelimit.New(0.001, 1), nil))

	if rec := do(e, http.MethodPost, "/api/cycles", `{}`); rec.Code != http.StatusOK {
		t.Fatalf("first trigger status = %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/cycles", `{}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second trigger status = %d, want 429", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	up := HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "clickhouse", Check: func(context.Context) error { return errors.New("dial timeout") }}

	rec := do(newEcho(NewHealthHandler("redis", up)), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	rec = do(newEcho(NewHealthHandler("redis", up, down)), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
	var body struct {
		Data healthBody `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Components["clickhouse"].Status != "down" || body.Data.Components["redis"].Status != "up" {
		t.Fatalf("components = %+v", body.Data.Components)
	}
}

func TestAlertHubFiltersByTicker(t *testing.T) {
	hub := NewAlertHub(nil, nil)
	srv := httptest.NewServer(newEcho(hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts?ticker=aaa"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(models.AlertRecord{Ticker: "BBB", Type: models.AlertGapUp})
	hub.Broadcast(models.AlertRecord{Ticker: "AAA", Type: models.AlertGapDown})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.AlertRecord
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Ticker != "AAA" || got.Type != models.AlertGapDown {
		t.Fatalf("received %+v, want the AAA alert only", got)
	}

	hub.Close()
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after hub shutdown")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("subscribers = %d after close", hub.Subscribers())
	}
}
