// Package client provides a reusable WebSocket load test client for the
// Harbor chat hub. It connects using gobwas/ws (the same library the server
// uses), carries the auth token and room intent as upgrade query parameters,
// waits for the server's connected message, and tracks per-connection
// performance metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ---------------------------------------------------------------------------
// Protocol message types (local equivalents of internal/protocol constants)
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeRoomMessage    = "room_message"
	TypePrivateMessage = "private_message"
	TypeTyping         = "typing"
	TypeReact          = "react"
	TypeMarkRead       = "mark_read"
	TypeDeleteMessage  = "delete_message"
	TypeHistory        = "history"
	TypePing           = "ping"
)

// Server -> Client message types.
const (
	TypeConnected      = "connected"
	TypeUserEntered    = "user_entered"
	TypeUserLeft       = "user_left"
	TypeReactionAdded  = "reaction_added"
	TypeReadReceipt    = "read_receipt"
	TypeMessageDeleted = "message_deleted"
	TypeNotification   = "notification"
	TypeHistoryPage    = "history_page"
	TypeRateLimited    = "rate_limited"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	FirstMsgLatency  time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Options carries the upgrade query parameters the server reads at connect
// time: the auth token, an optional room action, and an optional private peer.
type Options struct {
	Token      string
	Action     string // "create" or "join", empty for no room binding
	Room       string // join target
	CodeLength int    // create code length; 0 uses the server default
	Peer       string // private chat peer
}

// Client represents a single simulated user connection to the Harbor server.
// It manages the WebSocket lifecycle, dispatches incoming messages to
// registered handlers, and records the session details from the server's
// connected message.
type Client struct {
	conn      net.Conn
	mu        sync.Mutex
	sessionID string
	user      string
	room      string
	metrics   Metrics
	handlers  map[string]func(json.RawMessage)
	done      chan struct{}
	closeOnce sync.Once
	firstMsg  time.Time
}

// New creates a new load test client connected to the given WebSocket base
// URL with the options encoded as query parameters. The connection is
// established immediately and a background goroutine begins reading messages;
// the server's connected message is captured internally and unblocks
// WaitForConnected.
func New(ctx context.Context, baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", opts.Token)
	if opts.Action != "" {
		q.Set("action", opts.Action)
	}
	if opts.Room != "" {
		q.Set("room", opts.Room)
	}
	if opts.CodeLength > 0 {
		q.Set("code_length", strconv.Itoa(opts.CodeLength))
	}
	if opts.Peer != "" {
		q.Set("peer", opts.Peer)
	}
	u.RawQuery = q.Encode()

	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)

	// Start reading messages in background.
	go c.readLoop()

	return c, nil
}

// Send sends a JSON message to the server. It is goroutine-safe.
func (c *Client) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.MessagesSent++
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// On registers a handler for a specific server message type. The handler
// receives the full raw JSON of the message for flexible decoding.
// Handlers are invoked from the read loop goroutine so they should not block
// for extended periods. Only one handler per message type is supported;
// registering a second handler for the same type replaces the first.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.mu.Lock()
	c.handlers[msgType] = handler
	c.mu.Unlock()
}

// WaitForConnected blocks until the server's connected message has arrived or
// the context is cancelled. This is useful for coordinating load test phases
// that depend on the session being fully established.
func (c *Client) WaitForConnected(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("connection closed before the session was established")
		case <-ticker.C:
			if c.SessionID() != "" {
				return nil
			}
		}
	}
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// SessionID returns the session ID assigned by the server, or an empty string
// if the connected message has not arrived yet.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// User returns the identity the server resolved for this connection.
func (c *Client) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Room returns the room code the session was bound to at connect time, or an
// empty string. Room creators read their generated code from here.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// readLoop continuously reads WebSocket frames from the server and dispatches
// them to registered handlers. It runs until the connection is closed or an
// unrecoverable error occurs.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				// Connection was intentionally closed; do not count as error.
				return
			default:
			}
			c.mu.Lock()
			c.metrics.Errors++
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		// Track time of first message for FirstMsgLatency.
		if c.firstMsg.IsZero() {
			c.firstMsg = time.Now()
			c.metrics.FirstMsgLatency = c.metrics.ConnectLatency + time.Since(c.firstMsg)
		}
		c.metrics.MessagesReceived++
		c.mu.Unlock()

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		// Handle connected internally: capture the session details.
		if envelope.Type == TypeConnected {
			var msg struct {
				SessionID string `json:"session_id"`
				User      string `json:"user"`
				Room      string `json:"room"`
			}
			if err := json.Unmarshal(data, &msg); err == nil && msg.SessionID != "" {
				c.mu.Lock()
				c.sessionID = msg.SessionID
				c.user = msg.User
				c.room = msg.Room
				c.mu.Unlock()
			}
		}

		// Dispatch to registered handler if one exists.
		c.mu.Lock()
		handler, ok := c.handlers[envelope.Type]
		c.mu.Unlock()
		if ok {
			handler(json.RawMessage(data))
		}
	}
}
