package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nekorec/blivec/internal/events"
)

// pingInterval keeps intermediary proxies from closing an otherwise-idle
// admin WebSocket connection, matching the keepalive cadence chat.Client
// uses for its own upstream connection.
const pingInterval = 30 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventsWSHandler streams the process-wide event bus to admin UI clients over
// /ws/v1/events, per spec.md §6.
type EventsWSHandler struct {
	logger *slog.Logger
}

// NewEventsWSHandler constructs an EventsWSHandler.
func NewEventsWSHandler(logger *slog.Logger) *EventsWSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsWSHandler{logger: logger}
}

// ServeHTTP upgrades the connection and relays every published event as JSON
// until the client disconnects.
func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	streamBus(w, r, h.logger, "event", func(fn func(any)) func() {
		return events.Events().Subscribe(fn)
	})
}

// ExceptionsWSHandler streams the process-wide exception bus to admin UI
// clients over /ws/v1/exceptions, per spec.md §7.
type ExceptionsWSHandler struct {
	logger *slog.Logger
}

// NewExceptionsWSHandler constructs an ExceptionsWSHandler.
func NewExceptionsWSHandler(logger *slog.Logger) *ExceptionsWSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExceptionsWSHandler{logger: logger}
}

// ServeHTTP upgrades the connection and relays every submitted exception as
// an ErrorEvent-shaped JSON message until the client disconnects.
func (h *ExceptionsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	streamBus(w, r, h.logger, "exception", func(fn func(any)) func() {
		return events.Exceptions().Subscribe(fn)
	})
}

// wsMessage is the envelope written for every relayed bus item. type is the
// Go type name for the five event types payloadType knows, and "ErrorEvent"
// for anything else, including every exception, letting the admin UI
// dispatch without guessing from shape alone.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func streamBus(w http.ResponseWriter, r *http.Request, logger *slog.Logger, kind string, subscribe func(fn func(any)) func()) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", slog.String("kind", kind), slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	out := make(chan wsMessage, 64)
	unsubscribe := subscribe(func(payload any) {
		msg := wsMessage{Type: payloadType(payload), Data: payload}
		select {
		case out <- msg:
		default:
			// Slow client: drop rather than block the publisher.
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-out:
			body, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		}
	}
}

func payloadType(payload any) string {
	switch payload.(type) {
	case events.LiveBeganEvent:
		return "LiveBeganEvent"
	case events.LiveEndedEvent:
		return "LiveEndedEvent"
	case events.RoomChangeEvent:
		return "RoomChangeEvent"
	case events.FileCompletedEvent:
		return "FileCompletedEvent"
	case events.SpaceNoEnoughEvent:
		return "SpaceNoEnoughEvent"
	default:
		return "ErrorEvent"
	}
}
