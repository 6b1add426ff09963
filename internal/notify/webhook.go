package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/events"
	"github.com/nekorec/blivec/internal/httpclient"
	"github.com/nekorec/blivec/internal/retry"
)

// webhookRetryPolicy matches spec.md §6's "retried with exponential backoff
// up to 180s".
var webhookRetryPolicy = retry.Policy{
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     30 * time.Second,
	MaxElapsed:   180 * time.Second,
}

// payload is the JSON body of one webhook delivery, per spec.md §6:
// `{type, id (UUIDv1), date (ISO with +08:00), data}`.
type payload struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Date string `json:"date"`
	Data any    `json:"data"`
}

// chinaStandardTime is the fixed UTC+8 offset spec.md's webhook date uses,
// independent of the host's local zone.
var chinaStandardTime = time.FixedZone("CST", 8*60*60)

// Webhook POSTs JSON event payloads to one configured sink.
type Webhook struct {
	cfg       config.WebhookConfig
	client    *httpclient.Client
	userAgent string
	logger    *slog.Logger

	unsubEvent func()
	unsubExc   func()
}

// NewWebhook constructs a Webhook sink. userAgent is sent as-is on every
// delivery (spec.md §6: `User-Agent: <prog>/<version>`).
func NewWebhook(cfg config.WebhookConfig, client *httpclient.Client, userAgent string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{cfg: cfg, client: client, userAgent: userAgent, logger: logger}
}

// Enable subscribes to the process-wide event and exception buses.
func (w *Webhook) Enable() {
	if w.unsubEvent != nil {
		return
	}
	w.unsubEvent = events.Events().Subscribe(w.onEvent)
	w.unsubExc = events.Exceptions().Subscribe(w.onException)
}

// Disable unsubscribes from both buses.
func (w *Webhook) Disable() {
	if w.unsubEvent == nil {
		return
	}
	w.unsubEvent()
	w.unsubExc()
	w.unsubEvent, w.unsubExc = nil, nil
}

func (w *Webhook) onEvent(ev any) {
	switch e := ev.(type) {
	case events.LiveBeganEvent:
		if w.cfg.LiveBegan {
			w.deliver("LiveBeganEvent", e.Data)
		}
	case events.LiveEndedEvent:
		if w.cfg.LiveEnded {
			w.deliver("LiveEndedEvent", e.Data)
		}
	case events.RoomChangeEvent:
		if w.cfg.RoomChange {
			w.deliver("RoomChangeEvent", e.Data)
		}
	case events.FileCompletedEvent:
		if w.cfg.FileCompleted {
			w.deliver("FileCompletedEvent", e.Data)
		}
	case events.SpaceNoEnoughEvent:
		if w.cfg.SpaceNoEnough {
			w.deliver("SpaceNoEnoughEvent", e.Data)
		}
	}
}

func (w *Webhook) onException(exc any) {
	if !w.cfg.ErrorOccurred {
		return
	}
	err, ok := exc.(error)
	if !ok {
		return
	}
	w.deliver("ErrorEvent", map[string]string{"name": fmt.Sprintf("%T", err), "detail": err.Error()})
}

// deliver POSTs one event to the webhook URL on its own goroutine, retrying
// with backoff up to 180s before giving up.
func (w *Webhook) deliver(eventType string, data any) {
	body := payload{
		Type: eventType,
		ID:   uuid.Must(uuid.NewUUID()).String(),
		Date: time.Now().In(chinaStandardTime).Format("2006-01-02T15:04:05.000-07:00"),
		Data: data,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookRetryPolicy.MaxElapsed+10*time.Second)
		defer cancel()

		err := retry.Do(ctx, webhookRetryPolicy, func(attempt int) error {
			return w.post(ctx, body)
		})
		if err != nil {
			w.logger.Warn("notify: webhook delivery failed",
				slog.String("url", w.cfg.URL), slog.String("type", eventType), slog.String("error", err.Error()))
		}
	}()
}

func (w *Webhook) post(ctx context.Context, body payload) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.userAgent)
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.DoWithContext(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
