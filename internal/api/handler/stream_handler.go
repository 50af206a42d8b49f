package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/api/metrics"
	"github.com/roadsync/tracking-system/internal/core/ports"
	"github.com/roadsync/tracking-system/internal/stream"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The service sits behind the API gateway, which owns origin policy.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// StreamHandler upgrades GET /v1/orders/:order_id/stream to a WebSocket and
// pushes the order's location points as they arrive.
type StreamHandler struct {
	service  ports.TrackingService
	registry *stream.Registry
	log      zerolog.Logger
}

func NewStreamHandler(service ports.TrackingService, registry *stream.Registry, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{service: service, registry: registry, log: log}
}

// Stream subscribes the connection to the order's live feed. The current
// point is pushed first when one exists; afterwards every accepted report for
// the order streams until either side disconnects.
func (h *StreamHandler) Stream(c echo.Context) error {
	orderID := c.Param("order_id")

	// Reject unknown orders before upgrading.
	current, err := h.service.CurrentLocation(c.Request().Context(), orderID)
	if err != nil {
		current = nil
		if _, herr := h.service.OrderHistory(c.Request().Context(), orderID); herr != nil {
			return herr
		}
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sub := h.registry.Subscribe(orderID)
	metrics.StreamSubscribers.Inc()
	defer func() {
		h.registry.Unsubscribe(sub)
		metrics.StreamSubscribers.Dec()
		_ = conn.Close()
	}()

	h.log.Debug().Str("order_id", orderID).Msg("stream opened")

	// Reader only services control frames and surfaces the disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if current != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(toPointResponse(current.Point)); err != nil {
			return nil
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			h.log.Debug().Str("order_id", orderID).Msg("stream closed by client")
			return nil
		case point, ok := <-sub.Events():
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(toPointResponse(point)); err != nil {
				h.log.Debug().Err(err).Str("order_id", orderID).Msg("stream write failed")
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
