package api

import (
	"net/http"
	"sync"
	"time"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	"SignalGate/internal/usecase"
	xhttp "SignalGate/pkg/http"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
	wsSendBuffer   = 64
)

type subscriber struct {
	conn   *websocket.Conn
	ticker string // empty means every ticker
	send   chan models.AlertRecord
}

// AlertHub fans emitted alerts out to websocket subscribers. A subscriber that
// cannot keep up is disconnected rather than allowed to block a cycle.
type AlertHub struct {
	upgrader websocket.Upgrader
	logger   *applogger.Logger
	metrics  domrepo.Metrics

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewAlertHub(logger *applogger.Logger, metrics domrepo.Metrics) *AlertHub {
	if logger == nil {
		logger = applogger.Nop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &AlertHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// browser dashboards are served from other origins; CORS rules apply to the REST side
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger.Component("alert_hub"),
		metrics: metrics,
		subs:    make(map[*subscriber]struct{}),
	}
}

func (h *AlertHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/alerts", h.Serve)
}

// Broadcast never blocks.
func (h *AlertHub) Broadcast(a models.AlertRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.ticker != "" && s.ticker != a.Ticker {
			continue
		}
		select {
		case s.send <- a:
			h.metrics.RecordMessageSent("websocket", "alerts")
		default:
			h.metrics.RecordError("ws_slow_subscriber")
			h.dropLocked(s)
		}
	}
}

// Subscribers reports connected clients.
func (h *AlertHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Serve upgrades the request; ?ticker= limits the feed to one ticker.
func (h *AlertHub) Serve(c echo.Context) error {
	req := &models.AlertFeedRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}

	s := &subscriber{conn: conn, ticker: util.NormalizeTicker(req.Ticker), send: make(chan models.AlertRecord, wsSendBuffer)}
	if !h.add(s) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return nil
	}
	h.logger.Debug("subscriber connected", applogger.String("ticker", s.ticker), applogger.String("remote", c.RealIP()))

	go h.writePump(s)
	h.readPump(s)
	return nil
}

func (h *AlertHub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s] = struct{}{}
	return true
}

func (h *AlertHub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(s)
}

func (h *AlertHub) dropLocked(s *subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
}

// readPump only services control frames; clients do not send data.
func (h *AlertHub) readPump(s *subscriber) {
	defer func() {
		h.remove(s)
		_ = s.conn.Close()
	}()
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("subscriber read error", applogger.Error(err))
			}
			return
		}
	}
}

func (h *AlertHub) writePump(s *subscriber) {
	ping := time.NewTicker(wsPingInterval)
	defer func() {
		ping.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case a, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(a); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *AlertHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		h.dropLocked(s)
	}
}

var (
	_ usecase.AlertFeed = (*AlertHub)(nil)
	_ xhttp.Handler     = (*AlertHub)(nil)
)
