package livemonitor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/bili"
)

func TestTransitionCountPolicy(t *testing.T) {
	m := New(nil, 123)
	m.Init(&bili.RoomInfo{LiveStatus: 0})

	var began, available, reset, ended int
	m.AddListener(Listener{
		OnBegan:          func() { began++ },
		OnStreamAvailable: func() { available++ },
		OnStreamReset:    func() { reset++ },
		OnEnded:          func() { ended++ },
	})

	m.transition(Live)
	require.Equal(t, 1, began)
	require.Equal(t, 0, available)

	m.transition(Preparing)
	require.Equal(t, 1, ended)

	m.transition(Live)
	m.transition(Live)
	require.Equal(t, 2, began)
	require.Equal(t, 1, available)

	m.transition(Preparing)
	m.transition(Live)
	m.transition(Live)
	require.Equal(t, 3, began)
	require.Equal(t, 2, available)

	m.transition(Live)
	require.Equal(t, 1, reset)
}

func TestHandleDanmakuLiveCommand(t *testing.T) {
	m := New(nil, 123)
	m.Init(&bili.RoomInfo{LiveStatus: 0})

	var cur, prev Status
	m.AddListener(Listener{OnStatusChanged: func(c, p Status) { cur, prev = c, p }})

	raw, _ := json.Marshal(map[string]any{"cmd": "LIVE"})
	m.HandleDanmaku(nil, raw)

	require.Equal(t, Live, cur)
	require.Equal(t, Preparing, prev)
}

func TestHandleDanmakuPreparingRound(t *testing.T) {
	m := New(nil, 123)
	m.Init(&bili.RoomInfo{LiveStatus: 1})

	var cur Status
	m.AddListener(Listener{OnStatusChanged: func(c, _ Status) { cur = c }})

	raw, _ := json.Marshal(map[string]any{"cmd": "PREPARING", "round_status": 1})
	m.HandleDanmaku(nil, raw)

	require.Equal(t, Round, cur)
}

func TestInitSeedsConsecutiveCountWhenLive(t *testing.T) {
	m := New(nil, 123)
	m.Init(&bili.RoomInfo{LiveStatus: 1})
	require.Equal(t, 2, m.consecutiveLiveCount)
	require.Equal(t, Live, m.previous)
}
