package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid react message
// ---------------------------------------------------------------------------

func TestParseClientMessage_React(t *testing.T) {
	input := []byte(`{"type":"react","scope":"room","message_id":"m-1","emoji":"👍"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeReact {
		t.Fatalf("expected type %q, got %q", TypeReact, msgType)
	}

	rm, ok := msg.(ReactMsg)
	if !ok {
		t.Fatalf("expected ReactMsg, got %T", msg)
	}
	if rm.Scope != ScopeRoom {
		t.Errorf("expected scope %q, got %q", ScopeRoom, rm.Scope)
	}
	if rm.MessageID != "m-1" {
		t.Errorf("expected message_id %q, got %q", "m-1", rm.MessageID)
	}
	if rm.Emoji != "👍" {
		t.Errorf("expected emoji %q, got %q", "👍", rm.Emoji)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid room_message
// ---------------------------------------------------------------------------

func TestParseClientMessage_RoomMessage(t *testing.T) {
	input := []byte(`{"type":"room_message","body":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeRoomMessage {
		t.Fatalf("expected type %q, got %q", TypeRoomMessage, msgType)
	}

	rm, ok := msg.(RoomMessageMsg)
	if !ok {
		t.Fatalf("expected RoomMessageMsg, got %T", msg)
	}
	if rm.Body != "Hello!" {
		t.Errorf("expected body %q, got %q", "Hello!", rm.Body)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a connected server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_Connected(t *testing.T) {
	payload := ConnectedMsg{
		SessionID: "sess-456",
		User:      "alice",
		Room:      "AbCdEf",
	}

	data, err := NewServerMessage(TypeConnected, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeConnected {
		t.Errorf("expected type %q, got %v", TypeConnected, result["type"])
	}
	if result["session_id"] != "sess-456" {
		t.Errorf("expected session_id %q, got %v", "sess-456", result["session_id"])
	}
	if result["user"] != "alice" {
		t.Errorf("expected user %q, got %v", "alice", result["user"])
	}
	if result["room"] != "AbCdEf" {
		t.Errorf("expected room %q, got %v", "AbCdEf", result["room"])
	}
	if _, present := result["peer"]; present {
		t.Errorf("expected empty peer to be omitted, got %v", result["peer"])
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

// Server-only types must not be accepted from clients.
func TestParseClientMessage_ServerOnlyType(t *testing.T) {
	input := []byte(`{"type":"notification","id":"n-1","text":"hi"}`)

	if _, _, err := ParseClientMessage(input); err == nil {
		t.Fatal("expected an error for server-only message type, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Round-trip fidelity (marshal -> unmarshal)
// ---------------------------------------------------------------------------

func TestRoundTrip_History(t *testing.T) {
	original := HistoryMsg{
		Type:   TypeHistory,
		Scope:  ScopePrivate,
		Before: 1700000000,
	}

	// Marshal to JSON.
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	// Parse back through the protocol parser.
	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeHistory {
		t.Fatalf("expected type %q, got %q", TypeHistory, msgType)
	}

	decoded, ok := msg.(HistoryMsg)
	if !ok {
		t.Fatalf("expected HistoryMsg, got %T", msg)
	}
	if decoded.Scope != original.Scope {
		t.Errorf("scope mismatch: expected %q, got %q", original.Scope, decoded.Scope)
	}
	if decoded.Before != original.Before {
		t.Errorf("before mismatch: expected %d, got %d", original.Before, decoded.Before)
	}
}

func TestRoundTrip_ChatEvent(t *testing.T) {
	original := ChatEventMsg{
		Type:      TypeRoomMessage,
		MessageID: "m-42",
		Scope:     ScopeRoom,
		Room:      "QwErTy",
		From:      "bob",
		Body:      "how goes it",
		Ts:        1700000001,
		Reactions: map[string][]string{"🔥": {"alice"}},
		ReadBy:    []string{"alice", "bob"},
	}

	// Create server message bytes.
	data, err := NewServerMessage(TypeRoomMessage, original)
	if err != nil {
		t.Fatalf("failed to create server message: %v", err)
	}

	// Unmarshal back into the struct.
	var decoded ChatEventMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if decoded.Type != TypeRoomMessage {
		t.Errorf("type mismatch: expected %q, got %q", TypeRoomMessage, decoded.Type)
	}
	if decoded.MessageID != original.MessageID {
		t.Errorf("message_id mismatch: expected %q, got %q", original.MessageID, decoded.MessageID)
	}
	if decoded.Room != original.Room {
		t.Errorf("room mismatch: expected %q, got %q", original.Room, decoded.Room)
	}
	if decoded.Ts != original.Ts {
		t.Errorf("ts mismatch: expected %d, got %d", original.Ts, decoded.Ts)
	}
	if len(decoded.Reactions["🔥"]) != 1 || decoded.Reactions["🔥"][0] != "alice" {
		t.Errorf("unexpected reactions: %v", decoded.Reactions)
	}
	if len(decoded.ReadBy) != 2 {
		t.Fatalf("read_by length mismatch: expected 2, got %d", len(decoded.ReadBy))
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"room_message", `{"type":"room_message","body":"hi"}`, TypeRoomMessage},
		{"private_message", `{"type":"private_message","body":"psst"}`, TypePrivateMessage},
		{"typing", `{"type":"typing","is_typing":true}`, TypeTyping},
		{"react", `{"type":"react","scope":"room","message_id":"m1","emoji":"😀"}`, TypeReact},
		{"mark_read", `{"type":"mark_read","scope":"private","message_id":"m1"}`, TypeMarkRead},
		{"delete_message", `{"type":"delete_message","scope":"room","message_id":"m1"}`, TypeDeleteMessage},
		{"history", `{"type":"history","scope":"room"}`, TypeHistory},
		{"friend_request", `{"type":"friend_request","to":"bob"}`, TypeFriendRequest},
		{"accept_friend", `{"type":"accept_friend","request_id":"r1"}`, TypeAcceptFriend},
		{"add_friend", `{"type":"add_friend","to":"bob"}`, TypeAddFriend},
		{"set_status", `{"type":"set_status","status":"out for lunch"}`, TypeSetStatus},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
