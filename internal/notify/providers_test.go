package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/config"
)

func TestEmailServiceRejectsMissingParameters(t *testing.T) {
	svc := NewEmailService(config.EmailNotifierConfig{})
	err := svc.SendMessage(context.Background(), "subject", "content")
	require.ErrorContains(t, err, "source email address")
}

func TestServerchanRejectsMissingSendKey(t *testing.T) {
	p := NewServerchan(config.ServerchanNotifierConfig{}, newTestHTTPClient())
	err := p.SendMessage(context.Background(), "title", "content")
	require.ErrorContains(t, err, "sendkey")
}

func TestPushplusRejectsMissingToken(t *testing.T) {
	p := NewPushplus(config.PushplusNotifierConfig{}, newTestHTTPClient())
	err := p.SendMessage(context.Background(), "title", "content")
	require.ErrorContains(t, err, "token")
}
