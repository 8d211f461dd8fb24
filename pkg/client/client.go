// Package client implements the Go client for the realtime slide channel:
// a reconnecting WebSocket connection, a tracker mirroring server-side
// generation tasks, and a session state reducer for the event stream.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the connection state machine:
// disconnected → connecting → connected → disconnected..., ending in
// offline once the retry budget is exhausted.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateOffline      State = "offline"
)

// Message is one frame of the realtime channel
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrOffline is returned by Run once the retry budget is spent
var ErrOffline = errors.New("retry budget exhausted, connection is offline")

// Options configures a Client
type Options struct {
	// URL is the channel endpoint, e.g. ws://host/ws/slides/my-deck
	URL string

	// MaxRetries bounds consecutive failed connection attempts before the
	// client goes offline. Zero means the default of 10.
	MaxRetries int

	// BaseDelay is the first backoff delay (default 1s), doubling up to
	// MaxDelay (default 60s). The counter resets on a successful connect.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// HeartbeatInterval between client pings (default 30s)
	HeartbeatInterval time.Duration

	// OnMessage receives every inbound frame
	OnMessage func(Message)

	// OnState is called on every state transition
	OnState func(State)

	Dialer *websocket.Dialer
}

// Client maintains one realtime channel connection with automatic
// reconnection. All waiting is push-based; the only client-initiated frames
// are heartbeats.
type Client struct {
	opts  Options
	state State
	mu    sync.RWMutex
}

// New creates a client. Run starts it.
func New(opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 1 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 60 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts, state: StateDisconnected}
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

// Run connects and keeps the channel alive until ctx is cancelled or the
// retry budget is exhausted (ErrOffline). Each successful connection resets
// the budget.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			c.setState(StateDisconnected)
			return err
		}

		c.setState(StateConnecting)
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
		if err == nil {
			attempt = 0
			c.setState(StateConnected)
			c.serve(ctx, conn)
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		attempt++
		if attempt >= c.opts.MaxRetries {
			c.setState(StateOffline)
			return ErrOffline
		}

		delay := c.backoff(attempt)
		log.Printf("❌ Connection failed (attempt %d): %v, retrying in %v", attempt, err, delay)
		c.setState(StateDisconnected)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff computes the delay before the given retry attempt (1-based)
func (c *Client) backoff(attempt int) time.Duration {
	d := float64(c.opts.BaseDelay) * math.Pow(2, float64(attempt-1))
	return time.Duration(math.Min(d, float64(c.opts.MaxDelay)))
}

// serve pumps one live connection until it drops or ctx ends
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	// Heartbeat loop
	var writeMu sync.Mutex
	go func() {
		ticker := time.NewTicker(c.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteJSON(Message{Type: "ping"})
				writeMu.Unlock()
				if err != nil {
					log.Printf("⚠️ Heartbeat failed: %v", err)
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				log.Printf("❌ Connection lost: %v", err)
			}
			return
		}
		if msg.Type == "pong" {
			continue
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(msg)
		}
	}
}
