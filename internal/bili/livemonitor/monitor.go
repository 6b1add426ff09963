// Package livemonitor implements the live-status state machine (C4): it
// watches chat commands and polled room info to decide when a room's stream
// began, ended, or became available, and republishes those transitions as
// events for the recorder to act on.
package livemonitor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nekorec/blivec/internal/bili"
)

// Status is the room's live-status tri-state, per spec.md §4.3.
type Status int

// Statuses.
const (
	Preparing Status = iota
	Live
	Round
)

func (s Status) String() string {
	switch s {
	case Live:
		return "live"
	case Round:
		return "round"
	default:
		return "preparing"
	}
}

func statusFromAPI(liveStatus int) Status {
	switch liveStatus {
	case 1:
		return Live
	default:
		return Preparing
	}
}

// Listener observes state transitions emitted by a Monitor. All fields are
// optional.
type Listener struct {
	OnStatusChanged  func(cur, prev Status)
	OnBegan          func()
	OnEnded          func()
	OnStreamAvailable func()
	OnStreamReset    func()
	OnRoomChanged    func(info *bili.RoomInfo)
}

// Monitor tracks one room's live status across chat events and reconnects.
type Monitor struct {
	api    *bili.Client
	roomID int64

	mu                  sync.Mutex
	previous            Status
	consecutiveLiveCount int
	listeners           []Listener
}

// New constructs a Monitor. Call Init once room info is first available to
// seed the state per spec.md §4.3: "On initialisation from room info, if
// currently live set count=2 else 0."
func New(api *bili.Client, roomID int64) *Monitor {
	return &Monitor{api: api, roomID: roomID, previous: Preparing}
}

// AddListener registers l to receive future transitions.
func (m *Monitor) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Monitor) emit(fn func(Listener)) {
	m.mu.Lock()
	listeners := append([]Listener{}, m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		fn(l)
	}
}

// Init seeds the monitor's state from the room's current status without
// emitting any transition events.
func (m *Monitor) Init(info *bili.RoomInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previous = statusFromAPI(info.LiveStatus)
	if m.previous == Live {
		m.consecutiveLiveCount = 2
	} else {
		m.consecutiveLiveCount = 0
	}
}

// danmakuCommand is the subset of a chat message's envelope this monitor
// inspects.
type danmakuCommand struct {
	Cmd  string `json:"cmd"`
	Data struct {
		LiveTime int `json:"live_time"`
	} `json:"data"`
	RoundStatus int `json:"round_status"`
}

// HandleDanmaku inspects one decoded chat message for LIVE, PREPARING, and
// ROOM_CHANGE commands (spec.md §4.3).
func (m *Monitor) HandleDanmaku(ctx context.Context, raw json.RawMessage) {
	var cmd danmakuCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	switch cmd.Cmd {
	case "LIVE":
		m.transition(Live)
	case "PREPARING":
		if cmd.RoundStatus == 1 {
			m.transition(Round)
		} else {
			m.transition(Preparing)
		}
	case "ROOM_CHANGE":
		if info, err := m.api.GetInfoByRoom(ctx, m.roomID); err == nil {
			m.emit(func(l Listener) {
				if l.OnRoomChanged != nil {
					l.OnRoomChanged(info)
				}
			})
		}
	}
}

// HandleReconnect re-fetches room info and, if the status changed while
// disconnected, simulates the transitions chat would have emitted (spec.md
// §4.3: "required so resuming after OS hibernation still yields a correct
// sequence").
func (m *Monitor) HandleReconnect(ctx context.Context) error {
	info, err := m.api.GetInfoByRoom(ctx, m.roomID)
	if err != nil {
		return err
	}

	cur := statusFromAPI(info.LiveStatus)
	m.mu.Lock()
	prev := m.previous
	m.mu.Unlock()

	if cur == prev {
		return nil
	}
	if cur == Live {
		m.transition(Live)
		m.emit(func(l Listener) {
			if l.OnStreamAvailable != nil {
				l.OnStreamAvailable()
			}
		})
	} else {
		m.transition(cur)
	}
	return nil
}

// transition applies the count policy from spec.md §4.3: transitioning away
// from live resets count to 0 and emits ended; transitioning to live, or a
// repeated live while already live, increments count and emits began at 1,
// stream-available at 2, stream-reset at >2.
func (m *Monitor) transition(cur Status) {
	m.mu.Lock()
	prev := m.previous
	if prev == cur && cur != Live {
		m.mu.Unlock()
		return
	}
	m.previous = cur

	var (
		emitBegan, emitEnded, emitAvailable, emitReset bool
	)
	if cur == Live {
		m.consecutiveLiveCount++
		switch m.consecutiveLiveCount {
		case 1:
			emitBegan = true
		case 2:
			emitAvailable = true
		default:
			emitReset = true
		}
	} else if prev == Live {
		m.consecutiveLiveCount = 0
		emitEnded = true
	}
	m.mu.Unlock()

	if prev != cur {
		m.emit(func(l Listener) {
			if l.OnStatusChanged != nil {
				l.OnStatusChanged(cur, prev)
			}
		})
	}
	if emitBegan {
		m.emit(func(l Listener) {
			if l.OnBegan != nil {
				l.OnBegan()
			}
		})
	}
	if emitAvailable {
		m.emit(func(l Listener) {
			if l.OnStreamAvailable != nil {
				l.OnStreamAvailable()
			}
		})
	}
	if emitReset {
		m.emit(func(l Listener) {
			if l.OnStreamReset != nil {
				l.OnStreamReset()
			}
		})
	}
	if emitEnded {
		m.emit(func(l Listener) {
			if l.OnEnded != nil {
				l.OnEnded()
			}
		})
	}
}

// Status returns the monitor's current status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previous
}
