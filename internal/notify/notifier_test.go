package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/events"
)

type recordingProvider struct {
	sent chan [2]string
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{sent: make(chan [2]string, 4)}
}

func (p *recordingProvider) SendMessage(ctx context.Context, title, content string) error {
	p.sent <- [2]string{title, content}
	return nil
}

func waitForSend(t *testing.T, ch chan [2]string) [2]string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("expected a message to be sent")
		return [2]string{}
	}
}

func TestNotifierSendsOnLiveBegan(t *testing.T) {
	provider := newRecordingProvider()
	n := NewNotifier("test", provider, config.NotificationEvents{NotifyBegan: true}, nil)
	n.Enable()
	defer n.Disable()

	events.Events().Publish(events.LiveBeganEvent{Data: events.LiveStatusData{RoomID: 1, Uname: "alice"}})

	msg := waitForSend(t, provider.sent)
	require.Contains(t, msg[0], "alice")
}

func TestNotifierSkipsWhenToggleDisabled(t *testing.T) {
	provider := newRecordingProvider()
	n := NewNotifier("test", provider, config.NotificationEvents{NotifyBegan: false}, nil)
	n.Enable()
	defer n.Disable()

	events.Events().Publish(events.LiveBeganEvent{Data: events.LiveStatusData{RoomID: 1}})

	select {
	case <-provider.sent:
		t.Fatal("expected no message to be sent")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifierDisableStopsForwarding(t *testing.T) {
	provider := newRecordingProvider()
	n := NewNotifier("test", provider, config.NotificationEvents{NotifyEnded: true}, nil)
	n.Enable()
	n.Disable()

	events.Events().Publish(events.LiveEndedEvent{Data: events.LiveStatusData{RoomID: 1}})

	select {
	case <-provider.sent:
		t.Fatal("expected no message after Disable")
	case <-time.After(50 * time.Millisecond):
	}
}
