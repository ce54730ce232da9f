// Package protocol defines the WebSocket message types and structures used
// for communication between the client and the hub. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
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
	TypeFriendRequest  = "friend_request"
	TypeAcceptFriend   = "accept_friend"
	TypeAddFriend      = "add_friend"
	TypeSetStatus      = "set_status"
	TypePing           = "ping"
)

// Server -> Client message types. TypeRoomMessage, TypePrivateMessage and
// TypeTyping are shared with the client->server set: the hub relays them
// under the same discriminator.
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

// Message scopes, shared by react/mark_read/delete/history payloads.
const (
	ScopeRoom    = "room"
	ScopePrivate = "private"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// RoomMessageMsg is a text message sent by the client to its current room.
type RoomMessageMsg struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

// PrivateMessageMsg is a text message sent by the client to its private peer.
type PrivateMessageMsg struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

// TypingMsg indicates whether the client is currently typing.
type TypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// ReactMsg is sent by the client to add itself to a message's reactor set
// for a given emoji.
type ReactMsg struct {
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// MarkReadMsg is sent by the client to add itself to a message's read-by set.
type MarkReadMsg struct {
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	MessageID string `json:"message_id"`
}

// DeleteMessageMsg is sent by the client to hard-remove a message it
// originally authored.
type DeleteMessageMsg struct {
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	MessageID string `json:"message_id"`
}

// HistoryMsg requests one page of history for the session's current room or
// private channel. Before is a unix-second cursor; zero means latest.
type HistoryMsg struct {
	Type   string `json:"type"`
	Scope  string `json:"scope"`
	Before int64  `json:"before,omitempty"`
}

// FriendRequestMsg is sent by the client to open a friend request.
type FriendRequestMsg struct {
	Type string `json:"type"`
	To   string `json:"to"`
}

// AcceptFriendMsg is sent by the client to accept a pending friend request.
type AcceptFriendMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}

// AddFriendMsg is sent by the client to add a friend directly, bypassing the
// request/approval flow.
type AddFriendMsg struct {
	Type string `json:"type"`
	To   string `json:"to"`
}

// SetStatusMsg updates the user's free-text status line.
type SetStatusMsg struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ConnectedMsg is sent by the server once the session is established. Room
// may be empty when a requested room no longer existed at connect time.
type ConnectedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	User      string `json:"user"`
	Room      string `json:"room,omitempty"`
	Peer      string `json:"peer,omitempty"`
}

// ChatEventMsg relays a persisted chat message to room members or to the two
// ends of a private channel. Room is empty for private messages.
type ChatEventMsg struct {
	Type      string              `json:"type"`
	MessageID string              `json:"message_id"`
	Scope     string              `json:"scope"`
	Room      string              `json:"room,omitempty"`
	From      string              `json:"from"`
	Body      string              `json:"body"`
	Ts        int64               `json:"ts"`
	Reactions map[string][]string `json:"reactions,omitempty"`
	ReadBy    []string            `json:"read_by,omitempty"`
}

// PresenceEventMsg announces a user entering or leaving a room. Body carries
// the rendered system line, e.g. "alice entered the room".
type PresenceEventMsg struct {
	Type string `json:"type"`
	Room string `json:"room"`
	User string `json:"user"`
	Body string `json:"body"`
	Ts   int64  `json:"ts"`
}

// ServerTypingMsg relays a typing indicator. Receivers drop events whose
// From matches their own user.
type ServerTypingMsg struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	IsTyping bool   `json:"is_typing"`
}

// ReactionAddedMsg announces a user joining a message's emoji reactor set.
type ReactionAddedMsg struct {
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	User      string `json:"user"`
}

// ReadReceiptMsg announces a user joining a message's read-by set.
type ReadReceiptMsg struct {
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	MessageID string `json:"message_id"`
	User      string `json:"user"`
}

// MessageDeletedMsg tells recipients to evict their local copy of a message.
type MessageDeletedMsg struct {
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	MessageID string `json:"message_id"`
}

// NotificationMsg is a live-pushed notification record.
type NotificationMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// HistoryPageMsg returns one newest-first page of history.
type HistoryPageMsg struct {
	Type     string         `json:"type"`
	Scope    string         `json:"scope"`
	Messages []ChatEventMsg `json:"messages"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRoomMessage:
		var m RoomMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePrivateMessage:
		var m PrivateMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReact:
		var m ReactMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMarkRead:
		var m MarkReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDeleteMessage:
		var m DeleteMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeHistory:
		var m HistoryMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFriendRequest:
		var m FriendRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAcceptFriend:
		var m AcceptFriendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAddFriend:
		var m AddFriendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSetStatus:
		var m SetStatusMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
