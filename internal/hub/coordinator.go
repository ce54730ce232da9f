// Package hub coordinates live sessions: room binding, presence ref-counts,
// message persistence and fanout. It is transport-agnostic; the WebSocket
// layer resolves identity and feeds decoded operations in, the bus carries
// events out to every hub instance.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/harborchat/harbor/internal/message"
	"github.com/harborchat/harbor/internal/metrics"
	"github.com/harborchat/harbor/internal/presence"
	"github.com/harborchat/harbor/internal/protocol"
	"github.com/harborchat/harbor/internal/room"
)

var (
	// ErrSessionNotFound is returned for operations on unknown or already
	// disconnected connections.
	ErrSessionNotFound = errors.New("hub: session not found")

	// ErrDuplicateConn rejects a second Connect with a live connection ID.
	ErrDuplicateConn = errors.New("hub: connection already registered")

	// ErrInvalidUser rejects user IDs that are empty, reserved, or contain
	// characters the fanout subjects cannot carry.
	ErrInvalidUser = errors.New("hub: invalid user id")

	// ErrNotInRoom is returned for room operations on a session without a
	// room binding.
	ErrNotInRoom = errors.New("hub: session not in a room")

	// ErrNoPeer is returned for private operations on a session without a
	// peer binding.
	ErrNoPeer = errors.New("hub: session has no private peer")

	// ErrUnauthorized is returned when a user tries to delete a message
	// someone else sent.
	ErrUnauthorized = errors.New("hub: not the message sender")
)

// Bus is the fanout boundary; satisfied by messaging.NATSClient. The hub
// publishes; the transport layer owns subscriptions.
type Bus interface {
	PublishRoom(code string, data []byte) error
	PublishPrivate(channelKey string, data []byte) error
}

// UserDirectory is the slice of the user store the hub touches on connect
// and disconnect; satisfied by friend.Store implementations.
type UserDirectory interface {
	EnsureUser(ctx context.Context, userID string) error
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
}

// Notifier records a notification for a user and pushes it live when they are
// online; satisfied by notify.Fanout.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

// ConnectOptions carries everything resolved at upgrade time: the identity,
// the requested room action, and an optional private peer.
type ConnectOptions struct {
	ConnID     string
	UserID     string
	Action     RoomAction
	RoomCode   string // JoinRoom target
	CodeLength int    // CreateRoom code length; 0 means the default
	Peer       string // optional private-chat peer
}

// Coordinator owns the live session table and drives every chat operation
// through the persist-then-broadcast sequence.
type Coordinator struct {
	rooms    *room.Registry
	presence *presence.Tracker
	messages message.Store
	users    UserDirectory
	bus      Bus
	notifier Notifier

	mu       sync.RWMutex
	sessions map[string]*Session

	now func() time.Time
}

// NewCoordinator creates a coordinator. users and notifier may be nil when no
// user store or notification fanout is wired (single-node dev setups).
func NewCoordinator(rooms *room.Registry, tracker *presence.Tracker, messages message.Store, users UserDirectory, bus Bus, notifier Notifier) *Coordinator {
	return &Coordinator{
		rooms:    rooms,
		presence: tracker,
		messages: messages,
		users:    users,
		bus:      bus,
		notifier: notifier,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Connect registers a new session, binds it to a room per the requested
// action, and flips the user online on their first concurrent session.
//
// A JoinRoom action whose room no longer exists does not fail the connect:
// the session comes up unbound and the caller can read the outcome from the
// returned session's Room.
func (c *Coordinator) Connect(ctx context.Context, opts ConnectOptions) (*Session, error) {
	if !message.ValidUserID(opts.UserID) {
		return nil, ErrInvalidUser
	}
	if opts.Peer != "" && !message.ValidUserID(opts.Peer) {
		return nil, ErrInvalidUser
	}

	if c.users != nil {
		if err := c.users.EnsureUser(ctx, opts.UserID); err != nil {
			return nil, fmt.Errorf("hub: ensure user %s: %w", opts.UserID, err)
		}
	}

	s := &Session{ConnID: opts.ConnID, UserID: opts.UserID, peer: opts.Peer}

	// entered tracks whether this connect made the user a room member; extra
	// sessions of an already present user do not re-announce.
	entered := false

	switch opts.Action {
	case CreateRoom:
		length := opts.CodeLength
		if length == 0 {
			length = room.DefaultCodeLength
		}
		code, err := c.rooms.Create(opts.UserID, length)
		if err != nil {
			return nil, fmt.Errorf("hub: create room: %w", err)
		}
		s.room = code
		entered = true
	case JoinRoom:
		first, err := c.rooms.Join(opts.RoomCode, opts.UserID)
		switch {
		case errors.Is(err, room.ErrNotFound):
			// The room died between invite and connect. Degrade silently.
		case err != nil:
			return nil, fmt.Errorf("hub: join room %s: %w", opts.RoomCode, err)
		default:
			s.room = opts.RoomCode
			entered = first
		}
	}

	c.mu.Lock()
	if _, exists := c.sessions[opts.ConnID]; exists {
		c.mu.Unlock()
		if s.room != "" {
			c.rooms.Leave(s.room, opts.UserID)
		}
		return nil, ErrDuplicateConn
	}
	c.sessions[opts.ConnID] = s
	c.mu.Unlock()

	if first := c.presence.Connect(ctx, opts.UserID); first && c.users != nil {
		if err := c.users.SetPresence(ctx, opts.UserID, true, c.now().UTC()); err != nil {
			log.Printf("hub: set presence online user=%s: %v", opts.UserID, err)
		}
	}

	metrics.ConnectionsTotal.Inc()
	metrics.OnlineUsers.Set(float64(c.presence.OnlineCount()))
	metrics.ActiveRooms.Set(float64(c.rooms.Count()))

	if s.room != "" {
		if entered {
			c.announce(protocol.TypeUserEntered, s.room, opts.UserID, opts.UserID+" entered the room")
		}
		if opts.Action == JoinRoom {
			c.notifyUser(ctx, opts.UserID, "You joined room "+s.room)
		}
	}
	return s, nil
}

// Disconnect tears the session down: leaves its room (tearing the room down
// when it empties), drops a presence ref, and flips the user offline on
// their last session. Disconnecting an unknown or already closed connection
// is a no-op.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	c.mu.Lock()
	s, ok := c.sessions[connID]
	if ok {
		delete(c.sessions, connID)
	}
	c.mu.Unlock()
	if !ok || !s.close() {
		return
	}

	if code := s.Room(); code != "" {
		left, torndown := c.rooms.Leave(code, s.UserID)
		if left && !torndown {
			c.announce(protocol.TypeUserLeft, code, s.UserID, s.UserID+" left the room")
		}
		metrics.ActiveRooms.Set(float64(c.rooms.Count()))
	}

	if last := c.presence.Disconnect(ctx, s.UserID); last && c.users != nil {
		if err := c.users.SetPresence(ctx, s.UserID, false, c.now().UTC()); err != nil {
			log.Printf("hub: set presence offline user=%s: %v", s.UserID, err)
		}
	}

	metrics.ConnectionsTotal.Dec()
	metrics.OnlineUsers.Set(float64(c.presence.OnlineCount()))
}

// roomOf returns the session's current room, verifying it still exists. A
// binding to a torn-down room is cleared and reported as ErrNotInRoom so a
// surviving session cannot keep sending into a dead room.
func (c *Coordinator) roomOf(s *Session) (string, error) {
	code := s.Room()
	if code == "" {
		return "", ErrNotInRoom
	}
	if !c.rooms.Exists(code) {
		s.clearRoom()
		return "", ErrNotInRoom
	}
	return code, nil
}

// Session returns the live session for a connection ID.
func (c *Coordinator) Session(connID string) (*Session, error) {
	c.mu.RLock()
	s, ok := c.sessions[connID]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// SendRoomMessage persists a message to the session's room and then fans it
// out to the room subject. A persist failure returns before any broadcast;
// a broadcast failure after a successful persist is logged and absorbed, the
// message is already durable and reachable through history.
func (c *Coordinator) SendRoomMessage(ctx context.Context, connID, body string) (*message.Message, error) {
	s, err := c.Session(connID)
	if err != nil {
		return nil, err
	}
	code, err := c.roomOf(s)
	if err != nil {
		return nil, err
	}
	if err := message.ValidateBody(body); err != nil {
		return nil, err
	}

	m := &message.Message{
		Kind:      message.KindRoom,
		Room:      code,
		Sender:    s.UserID,
		Body:      body,
		CreatedAt: c.now().UTC(),
		Reactions: map[string][]string{},
		ReadBy:    []string{s.UserID},
	}

	start := time.Now()
	id, err := c.messages.Append(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("hub: persist room message: %w", err)
	}
	m.ID = id
	metrics.MessagesTotal.WithLabelValues("room").Inc()

	c.broadcastChat(m)
	metrics.FanoutLatency.Observe(time.Since(start).Seconds())

	if members, err := c.rooms.Members(code); err == nil {
		for _, member := range members {
			if member == s.UserID {
				continue
			}
			c.notifyUser(ctx, member, "New message from "+s.UserID+" in room "+code)
		}
	}
	return m, nil
}

// SendPrivateMessage persists a message to the session's private channel and
// fans it out, with the same persist-then-broadcast contract as room sends.
func (c *Coordinator) SendPrivateMessage(ctx context.Context, connID, body string) (*message.Message, error) {
	s, err := c.Session(connID)
	if err != nil {
		return nil, err
	}
	peer := s.Peer()
	if peer == "" {
		return nil, ErrNoPeer
	}
	if err := message.ValidateBody(body); err != nil {
		return nil, err
	}

	m := &message.Message{
		Kind:      message.KindPrivate,
		Sender:    s.UserID,
		Receiver:  peer,
		Body:      body,
		CreatedAt: c.now().UTC(),
		Reactions: map[string][]string{},
		ReadBy:    []string{s.UserID},
	}

	start := time.Now()
	id, err := c.messages.Append(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("hub: persist private message: %w", err)
	}
	m.ID = id
	metrics.MessagesTotal.WithLabelValues("private").Inc()

	c.broadcastChat(m)
	metrics.FanoutLatency.Observe(time.Since(start).Seconds())

	c.notifyUser(ctx, peer, "New message from "+s.UserID)
	return m, nil
}

// React merges the user into a message's reactor set and broadcasts the
// reaction to the session's current conversation for the given scope.
func (c *Coordinator) React(ctx context.Context, connID, scope, messageID, emoji string) error {
	s, err := c.Session(connID)
	if err != nil {
		return err
	}
	kind, err := parseScope(scope)
	if err != nil {
		return err
	}
	if err := c.messages.React(ctx, kind, messageID, emoji, s.UserID); err != nil {
		return fmt.Errorf("hub: react to %s: %w", messageID, err)
	}

	c.publishToScope(s, kind, protocol.TypeReactionAdded, protocol.ReactionAddedMsg{
		Scope:     scope,
		MessageID: messageID,
		Emoji:     emoji,
		User:      s.UserID,
	})
	return nil
}

// MarkRead merges the user into a message's read-by set and broadcasts the
// receipt.
func (c *Coordinator) MarkRead(ctx context.Context, connID, scope, messageID string) error {
	s, err := c.Session(connID)
	if err != nil {
		return err
	}
	kind, err := parseScope(scope)
	if err != nil {
		return err
	}
	if err := c.messages.MarkRead(ctx, kind, messageID, s.UserID); err != nil {
		return fmt.Errorf("hub: mark read %s: %w", messageID, err)
	}

	c.publishToScope(s, kind, protocol.TypeReadReceipt, protocol.ReadReceiptMsg{
		Scope:     scope,
		MessageID: messageID,
		User:      s.UserID,
	})
	return nil
}

// DeleteMessage hard-removes a message the session's user sent. Anyone else
// gets ErrUnauthorized and the message is untouched.
func (c *Coordinator) DeleteMessage(ctx context.Context, connID, scope, messageID string) error {
	s, err := c.Session(connID)
	if err != nil {
		return err
	}
	kind, err := parseScope(scope)
	if err != nil {
		return err
	}

	m, err := c.messages.Get(ctx, kind, messageID)
	if err != nil {
		return fmt.Errorf("hub: delete %s: %w", messageID, err)
	}
	if m.Sender != s.UserID {
		return ErrUnauthorized
	}
	if err := c.messages.Delete(ctx, kind, messageID); err != nil {
		return fmt.Errorf("hub: delete %s: %w", messageID, err)
	}

	payload := protocol.MessageDeletedMsg{Scope: scope, MessageID: messageID}
	data, err := protocol.NewServerMessage(protocol.TypeMessageDeleted, payload)
	if err != nil {
		log.Printf("hub: encode delete event: %v", err)
		return nil
	}
	// Use the deleted message's own channel so eviction reaches everyone who
	// saw it, not just the sender's current conversation.
	if kind == message.KindRoom {
		if err := c.bus.PublishRoom(m.Room, data); err != nil {
			log.Printf("hub: broadcast delete room=%s: %v", m.Room, err)
		}
	} else {
		if err := c.bus.PublishPrivate(m.Channel(), data); err != nil {
			log.Printf("hub: broadcast delete channel=%s: %v", m.Channel(), err)
		}
	}
	return nil
}

// Typing fans a typing indicator out to the session's room or private
// channel. It is fire-and-forget: no persistence, no acknowledgement, and
// broadcast failure is only logged. Receivers filter out their own events.
func (c *Coordinator) Typing(connID string, isTyping bool) error {
	s, err := c.Session(connID)
	if err != nil {
		return err
	}

	payload := protocol.ServerTypingMsg{From: s.UserID, IsTyping: isTyping}
	data, err := protocol.NewServerMessage(protocol.TypeTyping, payload)
	if err != nil {
		log.Printf("hub: encode typing event: %v", err)
		return nil
	}

	if code, err := c.roomOf(s); err == nil {
		if err := c.bus.PublishRoom(code, data); err != nil {
			log.Printf("hub: typing broadcast room=%s: %v", code, err)
		}
		return nil
	}
	if peer := s.Peer(); peer != "" {
		key := message.ChannelKey(s.UserID, peer)
		if err := c.bus.PublishPrivate(key, data); err != nil {
			log.Printf("hub: typing broadcast channel=%s: %v", key, err)
		}
	}
	return nil
}

// History returns one newest-first page for the session's current room or
// private channel. before is an exclusive upper bound; the zero time means
// latest.
func (c *Coordinator) History(ctx context.Context, connID, scope string, before time.Time) ([]*message.Message, error) {
	s, err := c.Session(connID)
	if err != nil {
		return nil, err
	}
	kind, err := parseScope(scope)
	if err != nil {
		return nil, err
	}

	if kind == message.KindRoom {
		code, err := c.roomOf(s)
		if err != nil {
			return nil, err
		}
		return c.messages.QueryByRoom(ctx, code, before, message.PageSize)
	}

	peer := s.Peer()
	if peer == "" {
		return nil, ErrNoPeer
	}
	return c.messages.QueryByPrivatePair(ctx, s.UserID, peer, before, message.PageSize)
}

// RoomMembers returns the member list of the session's current room.
func (c *Coordinator) RoomMembers(connID string) ([]string, error) {
	s, err := c.Session(connID)
	if err != nil {
		return nil, err
	}
	code, err := c.roomOf(s)
	if err != nil {
		return nil, err
	}
	members, err := c.rooms.Members(code)
	if err != nil {
		return nil, fmt.Errorf("hub: members of %s: %w", code, err)
	}
	return members, nil
}

// broadcastChat encodes a persisted message as a chat event and publishes it
// to the message's channel.
func (c *Coordinator) broadcastChat(m *message.Message) {
	event := protocol.ChatEventMsg{
		MessageID: m.ID,
		From:      m.Sender,
		Body:      m.Body,
		Ts:        m.CreatedAt.Unix(),
	}
	msgType := protocol.TypePrivateMessage
	if m.Kind == message.KindRoom {
		msgType = protocol.TypeRoomMessage
		event.Scope = protocol.ScopeRoom
		event.Room = m.Room
	} else {
		event.Scope = protocol.ScopePrivate
	}

	data, err := protocol.NewServerMessage(msgType, event)
	if err != nil {
		log.Printf("hub: encode chat event id=%s: %v", m.ID, err)
		return
	}

	if m.Kind == message.KindRoom {
		if err := c.bus.PublishRoom(m.Room, data); err != nil {
			log.Printf("hub: broadcast room=%s id=%s: %v", m.Room, m.ID, err)
		}
		return
	}
	if err := c.bus.PublishPrivate(m.Channel(), data); err != nil {
		log.Printf("hub: broadcast channel=%s id=%s: %v", m.Channel(), m.ID, err)
	}
}

// publishToScope sends an encoded event to the session's current room or
// private channel for the given kind. Missing bindings are silently skipped;
// merge results are durable either way.
func (c *Coordinator) publishToScope(s *Session, kind message.Kind, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("hub: encode %s event: %v", msgType, err)
		return
	}

	if kind == message.KindRoom {
		code := s.Room()
		if code == "" {
			return
		}
		if err := c.bus.PublishRoom(code, data); err != nil {
			log.Printf("hub: broadcast %s room=%s: %v", msgType, code, err)
		}
		return
	}

	peer := s.Peer()
	if peer == "" {
		return
	}
	key := message.ChannelKey(s.UserID, peer)
	if err := c.bus.PublishPrivate(key, data); err != nil {
		log.Printf("hub: broadcast %s channel=%s: %v", msgType, key, err)
	}
}

// notifyUser records a notification for one user. The chat message is already
// durable and broadcast by the time this runs, so a notify failure is logged
// and never fails the calling operation.
func (c *Coordinator) notifyUser(ctx context.Context, userID, text string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, userID, text); err != nil {
		log.Printf("hub: notify user=%s: %v", userID, err)
	}
}

// announce publishes an entered/left system event to a room.
func (c *Coordinator) announce(msgType, code, userID, body string) {
	data, err := protocol.NewServerMessage(msgType, protocol.PresenceEventMsg{
		Room: code,
		User: userID,
		Body: body,
		Ts:   c.now().Unix(),
	})
	if err != nil {
		log.Printf("hub: encode %s event: %v", msgType, err)
		return
	}
	if err := c.bus.PublishRoom(code, data); err != nil {
		log.Printf("hub: announce %s room=%s: %v", msgType, code, err)
	}
}

// parseScope maps a wire scope to a message kind.
func parseScope(scope string) (message.Kind, error) {
	switch scope {
	case protocol.ScopeRoom:
		return message.KindRoom, nil
	case protocol.ScopePrivate:
		return message.KindPrivate, nil
	default:
		return "", fmt.Errorf("hub: unknown scope %q", scope)
	}
}
