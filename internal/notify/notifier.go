// Package notify implements the webhook and push-message notification sinks
// (C15): a Notifier wraps one MessagingProvider (email/Serverchan/Pushplus)
// and forwards live-began, live-ended, disk-space, and swallowed-exception
// events from the process-wide event/exception bus to it, subject to its own
// per-event toggles. Grounded on blrec `notification/{notifiers,providers,
// message}.py`.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/events"
	"github.com/nekorec/blivec/internal/retry"
)

// messageRetryPolicy matches blrec's AsyncRetrying(stop_after_delay(300),
// wait_exponential(multiplier=0.1, max=10)) used by MessageNotifier.
var messageRetryPolicy = retry.Policy{
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	MaxElapsed:   300 * time.Second,
}

// Notifier forwards bus events to one MessagingProvider.
type Notifier struct {
	name     string
	provider MessagingProvider
	toggles  config.NotificationEvents
	logger   *slog.Logger

	unsubEvent func()
	unsubExc   func()
}

// NewNotifier constructs a Notifier. name is used only for log lines (e.g.
// "Email notifier").
func NewNotifier(name string, provider MessagingProvider, toggles config.NotificationEvents, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{name: name, provider: provider, toggles: toggles, logger: logger}
}

// Enable subscribes to the process-wide event and exception buses.
func (n *Notifier) Enable() {
	if n.unsubEvent != nil {
		return
	}
	n.unsubEvent = events.Events().Subscribe(n.onEvent)
	n.unsubExc = events.Exceptions().Subscribe(n.onException)
	n.logger.Debug("notify: enabled notifier", slog.String("notifier", n.name))
}

// Disable unsubscribes from both buses.
func (n *Notifier) Disable() {
	if n.unsubEvent == nil {
		return
	}
	n.unsubEvent()
	n.unsubExc()
	n.unsubEvent, n.unsubExc = nil, nil
	n.logger.Debug("notify: disabled notifier", slog.String("notifier", n.name))
}

func (n *Notifier) onEvent(ev any) {
	switch e := ev.(type) {
	case events.LiveBeganEvent:
		if n.toggles.NotifyBegan {
			n.send(e.Data.Uname+" 开播啦", liveInfoContent(e.Data))
		}
	case events.LiveEndedEvent:
		if n.toggles.NotifyEnded {
			n.send(e.Data.Uname+" 下播了", liveInfoContent(e.Data))
		}
	case events.SpaceNoEnoughEvent:
		if n.toggles.NotifySpace {
			n.send("空间不足！", diskUsageContent(e.Data))
		}
	}
}

func (n *Notifier) onException(exc any) {
	if !n.toggles.NotifyError {
		return
	}
	err, ok := exc.(error)
	if !ok {
		return
	}
	n.send("出错了~", exceptionContent(err))
}

// send dispatches title/content through the provider on its own goroutine
// with retry, matching blrec's fire-and-forget
// asyncio.create_task(_send_message_async(...)).
func (n *Notifier) send(title, content string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), messageRetryPolicy.MaxElapsed+10*time.Second)
		defer cancel()

		err := retry.Do(ctx, messageRetryPolicy, func(attempt int) error {
			return n.provider.SendMessage(ctx, title, content)
		})
		if err != nil {
			n.logger.Warn("notify: failed to send message",
				slog.String("notifier", n.name), slog.String("error", err.Error()))
		}
	}()
}
