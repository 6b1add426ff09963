// Package chat implements the chat/control channel client (C2): connects to
// the danmaku WebSocket, authenticates, sends heartbeats, and dispatches
// decoded messages to listeners.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nekorec/blivec/internal/bili"
	"github.com/nekorec/blivec/internal/chat/frame"
)

const (
	heartbeatInterval = 30 * time.Second
	receiveTimeout    = 2 * heartbeatInterval
	defaultMaxRetries = 60
)

// AuthParams is the payload sent in the AUTH frame, per spec.md §4.2.
type AuthParams struct {
	UID      int64  `json:"uid"`
	RoomID   int64  `json:"roomid"`
	ProtoVer int    `json:"protover"`
	Buvid    string `json:"buvid"`
	Platform string `json:"platform"`
	Type     int    `json:"type"`
	Key      string `json:"key"`
}

// ErrAuthFailed is raised when AUTH_REPLY carries a non-OK code; the token
// has expired and the caller must refresh danmu_info before retrying.
type ErrAuthFailed struct {
	Code int
}

func (e *ErrAuthFailed) Error() string {
	return fmt.Sprintf("chat: auth failed with code %d", e.Code)
}

// Listener receives lifecycle and message events from a Client. All methods
// are optional; nil funcs are skipped. Dispatch runs cooperatively on the
// client's receive goroutine: a panic or error from one listener is
// recovered, surfaced via OnError's own return path being irrelevant, and
// does not stop the loop (spec.md §4.2).
type Listener struct {
	OnConnected    func()
	OnDisconnected func()
	OnReconnected  func()
	OnDanmaku      func(msg json.RawMessage)
	OnError        func(err error)
}

// Client is one room's chat/control WebSocket connection.
type Client struct {
	api        *bili.Client
	roomID     int64 // real room id; must not be the short id
	uid        int64
	buvid      string
	maxRetries int

	mu        sync.Mutex
	conn      *websocket.Conn
	listeners []Listener
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool
}

// NewClient constructs a chat client for roomID (must already be resolved to
// the real room id via bili.Client.EnsureRoomID).
func NewClient(api *bili.Client, roomID, uid int64, buvid string) *Client {
	return &Client{
		api:        api,
		roomID:     roomID,
		uid:        uid,
		buvid:      buvid,
		maxRetries: defaultMaxRetries,
	}
}

// AddListener registers l to receive future events.
func (c *Client) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Client) emit(fn func(Listener)) {
	c.mu.Lock()
	listeners := append([]Listener{}, c.listeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.forwardError(fmt.Errorf("chat: listener panic: %v", r))
				}
			}()
			fn(l)
		}()
	}
}

func (c *Client) forwardError(err error) {
	c.emit(func(l Listener) {
		if l.OnError != nil {
			l.OnError(err)
		}
	})
}

// Start refreshes danmu_info, connects, and spawns the heartbeat and receive
// loops. It blocks until the initial connection and AUTH handshake succeed
// or fail.
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	return c.connectAndRun(ctx, false)
}

// Stop cancels the heartbeat and receive loops and closes the socket.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
}

// Restart stops then starts the client, emitting client_reconnected on
// success.
func (c *Client) Restart(ctx context.Context) error {
	c.Stop()
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.connectAndRun(ctx, true); err != nil {
		return err
	}
	return nil
}

func (c *Client) connectAndRun(ctx context.Context, reconnect bool) error {
	info, err := c.api.GetDanmuInfo(ctx, c.roomID)
	if err != nil {
		return fmt.Errorf("chat: refresh danmu_info: %w", err)
	}
	if len(info.HostList) == 0 {
		return errors.New("chat: empty chat host list")
	}

	var lastErr error
	for _, host := range info.HostList {
		conn, err := c.dial(ctx, host)
		if err != nil {
			lastErr = err
			continue
		}
		if err := c.authenticate(ctx, conn, info.Token); err != nil {
			conn.Close()
			lastErr = err
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		if reconnect {
			c.emit(func(l Listener) {
				if l.OnReconnected != nil {
					l.OnReconnected()
				}
			})
		} else {
			c.emit(func(l Listener) {
				if l.OnConnected != nil {
					l.OnConnected()
				}
			})
		}

		c.wg.Add(2)
		go c.heartbeatLoop(ctx)
		go c.receiveLoop(ctx)
		return nil
	}
	return fmt.Errorf("chat: all hosts failed: %w", lastErr)
}

func (c *Client) dial(ctx context.Context, host bili.DanmuHost) (*websocket.Conn, error) {
	u := url.URL{Scheme: "wss", Host: fmt.Sprintf("%s:%d", host.Host, host.WSSPort), Path: "/sub"}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn, key string) error {
	params := AuthParams{
		UID:      c.uid,
		RoomID:   c.roomID,
		ProtoVer: 3,
		Buvid:    c.buvid,
		Platform: "web",
		Type:     2,
		Key:      key,
	}
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	var buf writeBuffer
	if err := frame.Encode(&buf, &frame.Frame{Operation: frame.OpAuth, Version: frame.BodyVersionRaw, Body: body}); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(receiveTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	op, val, err := frame.Decode(newByteReader(data))
	if err != nil {
		return err
	}
	if op != frame.OpAuthReply {
		return fmt.Errorf("chat: expected AUTH_REPLY, got op %d", op)
	}
	var reply struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal([]byte(val.AuthReply), &reply); err != nil {
		return err
	}
	if reply.Code != frame.AuthOK {
		return &ErrAuthFailed{Code: reply.Code}
	}
	return nil
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			var buf writeBuffer
			if err := frame.Encode(&buf, &frame.Frame{Operation: frame.OpHeartbeat, Version: frame.BodyVersionRaw}); err != nil {
				c.forwardError(err)
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
				c.forwardError(err)
				return
			}
		}
	}
}

// receiveLoop reads frames until ctx is cancelled or an unrecoverable error
// occurs. Per spec.md §4.2 a read timeout or any error other than a
// context-cancellation counts toward a bounded, incrementing-backoff retry
// budget; a context.DeadlineExceeded-driven timeout does not count as a
// retry attempt in itself (only the resulting reconnect loop below applies
// the budget).
func (c *Client) receiveLoop(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.emit(func(l Listener) {
			if l.OnDisconnected != nil {
				l.OnDisconnected()
			}
		})
	}()

	retries := 0
	delay := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(receiveTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.forwardError(err)
			retries++
			if retries > c.effectiveMaxRetries() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay += time.Second
			continue
		}

		retries = 0
		delay = time.Second

		if msgType != websocket.BinaryMessage {
			c.forwardError(fmt.Errorf("chat: unexpected message type %d", msgType))
			continue
		}

		op, val, err := frame.Decode(newByteReader(data))
		if err != nil {
			c.forwardError(err)
			continue
		}
		switch op {
		case frame.OpHeartbeatReply:
			// dropped silently, per spec.md §4.2.
		case frame.OpMessage:
			for _, raw := range val.Messages {
				c.emit(func(l Listener) {
					if l.OnDanmaku != nil {
						l.OnDanmaku(json.RawMessage(raw))
					}
				})
			}
		}
	}
}

func (c *Client) effectiveMaxRetries() int {
	if c.maxRetries <= 0 {
		return defaultMaxRetries
	}
	return c.maxRetries
}

// SetMaxRetries overrides the default retry budget (spec.md §4.2, default 60).
func (c *Client) SetMaxRetries(n int) {
	c.maxRetries = n
}

// IsConnected reports whether the underlying socket is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
