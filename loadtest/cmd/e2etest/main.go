// Package main implements a standalone end-to-end integration test for the
// Harbor chat hub. It validates the full user journey against a running
// stack: health check, authenticated WebSocket handshake, room create/join,
// message fanout, reactions and read receipts, history, delete authorization,
// private channels, typing self-filtering, and offline notification delivery.
//
// Usage:
//
//	go run ./cmd/e2etest/ [-url ws://localhost:8080/ws] [-api http://localhost:8080] [-redis localhost:6379] [-timeout 60s]
//
// Exit code 0 if all required scenarios pass, 1 if any fail.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harborchat/harbor/loadtest/client"
)

// ---------------------------------------------------------------------------
// Result tracking
// ---------------------------------------------------------------------------

// resultKind categorises a scenario outcome.
type resultKind int

const (
	resultPass resultKind = iota
	resultFail
	resultInfo // optional / non-fatal
)

// scenarioResult holds the outcome of a single test scenario.
type scenarioResult struct {
	name   string
	kind   resultKind
	detail string
}

func (r scenarioResult) tag() string {
	switch r.kind {
	case resultPass:
		return "PASS"
	case resultFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

func pass(name, detail string) scenarioResult {
	return scenarioResult{name: name, kind: resultPass, detail: detail}
}

func fail(name, detail string) scenarioResult {
	return scenarioResult{name: name, kind: resultFail, detail: detail}
}

func info(name, detail string) scenarioResult {
	return scenarioResult{name: name, kind: resultInfo, detail: detail}
}

// waitFor polls a channel of raw events for one whose decoded form satisfies
// the predicate, up to the deadline.
func waitFor(ctx context.Context, ch <-chan json.RawMessage, timeout time.Duration,
	pred func(map[string]interface{}) bool) (map[string]interface{}, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline:
			return nil, false
		case raw := <-ch:
			var m map[string]interface{}
			if err := json.Unmarshal(raw, &m); err != nil {
				continue
			}
			if pred(m) {
				return m, true
			}
		}
	}
}

// capture registers a handler that feeds every event of msgType into the
// returned channel.
func capture(c *client.Client, msgType string) <-chan json.RawMessage {
	ch := make(chan json.RawMessage, 32)
	c.On(msgType, func(raw json.RawMessage) {
		select {
		case ch <- raw:
		default:
		}
	})
	return ch
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	wsURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	apiBase := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for token seeding")
	timeout := flag.Duration("timeout", 60*time.Second, "Global test timeout")
	flag.Parse()

	fmt.Println("=== Harbor E2E Integration Test ===")
	fmt.Printf("Server: %s\n\n", *wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var results []scenarioResult

	results = append(results, scenarioHealthCheck(ctx, *apiBase))
	results = append(results, scenarioSeedTokens(ctx, *redisAddr))

	// The remaining scenarios share live clients; a connect failure aborts.
	results = append(results, runJourney(ctx, *wsURL)...)

	// Print summary.
	fmt.Println("\n=== Results ===")
	failures := 0
	for _, r := range results {
		fmt.Printf("[%s] %-28s %s\n", r.tag(), r.name, r.detail)
		if r.kind == resultFail {
			failures++
		}
	}
	if failures > 0 {
		fmt.Printf("\n%d scenario(s) failed.\n", failures)
		os.Exit(1)
	}
	fmt.Println("\nAll required scenarios passed.")
}

// scenarioHealthCheck verifies the server's health endpoint responds.
func scenarioHealthCheck(ctx context.Context, apiBase string) scenarioResult {
	const name = "health check"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/health", nil)
	if err != nil {
		return fail(name, err.Error())
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fail(name, fmt.Sprintf("server unreachable: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fail(name, fmt.Sprintf("status %d", resp.StatusCode))
	}
	return pass(name, "healthy")
}

// scenarioSeedTokens issues the test users' auth tokens into Redis.
func scenarioSeedTokens(ctx context.Context, redisAddr string) scenarioResult {
	const name = "token seeding"

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	for _, user := range []string{"e2e-alice", "e2e-bob", "e2e-carol"} {
		if err := rdb.Set(ctx, "auth:token:"+user, user, time.Hour).Err(); err != nil {
			return fail(name, fmt.Sprintf("redis at %s: %v", redisAddr, err))
		}
	}
	return pass(name, "3 tokens issued")
}

// runJourney runs the connected scenarios: room lifecycle, messaging, merge
// operations, history, deletion, private channels, typing, and notifications.
func runJourney(ctx context.Context, wsURL string) []scenarioResult {
	var results []scenarioResult

	// --- Connect alice, creating a room ---
	alice, err := client.New(ctx, wsURL, client.Options{Token: "e2e-alice", Action: "create"})
	if err != nil {
		return append(results, fail("connect handshake", err.Error()))
	}
	defer alice.Close()

	aliceEntered := capture(alice, client.TypeUserEntered)
	_ = capture(alice, client.TypeUserLeft)
	aliceRoomMsgs := capture(alice, client.TypeRoomMessage)
	aliceReactions := capture(alice, client.TypeReactionAdded)
	aliceReceipts := capture(alice, client.TypeReadReceipt)
	aliceDeleted := capture(alice, client.TypeMessageDeleted)
	aliceTyping := capture(alice, client.TypeTyping)

	if err := alice.WaitForConnected(ctx); err != nil {
		return append(results, fail("connect handshake", err.Error()))
	}
	code := alice.Room()
	if alice.User() != "e2e-alice" || len(code) != 6 {
		return append(results, fail("connect handshake",
			fmt.Sprintf("user=%q room=%q", alice.User(), code)))
	}
	results = append(results, pass("connect handshake",
		fmt.Sprintf("session %s, room %s", alice.SessionID(), code)))

	// --- Bob joins the room; alice sees user_entered ---
	bob, err := client.New(ctx, wsURL, client.Options{Token: "e2e-bob", Action: "join", Room: code})
	if err != nil {
		return append(results, fail("room join", err.Error()))
	}
	defer bob.Close()

	bobRoomMsgs := capture(bob, client.TypeRoomMessage)
	bobTyping := capture(bob, client.TypeTyping)
	bobErrors := capture(bob, client.TypeError)

	if err := bob.WaitForConnected(ctx); err != nil {
		return append(results, fail("room join", err.Error()))
	}
	if bob.Room() != code {
		return append(results, fail("room join",
			fmt.Sprintf("bob bound to %q, want %q", bob.Room(), code)))
	}
	if _, ok := waitFor(ctx, aliceEntered, 5*time.Second, func(m map[string]interface{}) bool {
		return m["user"] == "e2e-bob"
	}); !ok {
		results = append(results, fail("room join", "alice never saw bob enter"))
	} else {
		results = append(results, pass("room join", "bob joined, presence announced"))
	}

	// --- Room message fanout ---
	if err := alice.Send(map[string]string{
		"type": client.TypeRoomMessage, "body": "hello from alice",
	}); err != nil {
		return append(results, fail("room message", err.Error()))
	}

	var messageID string
	if ev, ok := waitFor(ctx, bobRoomMsgs, 5*time.Second, func(m map[string]interface{}) bool {
		return m["from"] == "e2e-alice" && m["body"] == "hello from alice"
	}); ok {
		messageID, _ = ev["message_id"].(string)
	}
	if messageID == "" {
		results = append(results, fail("room message", "bob never received alice's message"))
	} else {
		results = append(results, pass("room message", "delivered with id "+messageID))
	}

	// Sender sees their own message too.
	if _, ok := waitFor(ctx, aliceRoomMsgs, 5*time.Second, func(m map[string]interface{}) bool {
		return m["message_id"] == messageID
	}); !ok {
		results = append(results, info("room message echo", "sender did not receive own message"))
	}

	// --- Reaction and read receipt merges ---
	if messageID != "" {
		_ = bob.Send(map[string]string{
			"type": client.TypeReact, "scope": "room", "message_id": messageID, "emoji": "🔥",
		})
		_ = bob.Send(map[string]string{
			"type": client.TypeMarkRead, "scope": "room", "message_id": messageID,
		})

		_, gotReaction := waitFor(ctx, aliceReactions, 5*time.Second, func(m map[string]interface{}) bool {
			return m["message_id"] == messageID && m["user"] == "e2e-bob" && m["emoji"] == "🔥"
		})
		_, gotReceipt := waitFor(ctx, aliceReceipts, 5*time.Second, func(m map[string]interface{}) bool {
			return m["message_id"] == messageID && m["user"] == "e2e-bob"
		})
		if gotReaction && gotReceipt {
			results = append(results, pass("react + mark_read", "both merges broadcast"))
		} else {
			results = append(results, fail("react + mark_read",
				fmt.Sprintf("reaction=%v receipt=%v", gotReaction, gotReceipt)))
		}
	}

	// --- History carries the merged state ---
	if messageID != "" {
		bobHistory := capture(bob, client.TypeHistoryPage)
		_ = bob.Send(map[string]interface{}{"type": client.TypeHistory, "scope": "room"})

		ev, ok := waitFor(ctx, bobHistory, 5*time.Second, func(m map[string]interface{}) bool {
			msgs, _ := m["messages"].([]interface{})
			return len(msgs) > 0
		})
		if !ok {
			results = append(results, fail("history", "no history_page received"))
		} else {
			found := false
			msgs, _ := ev["messages"].([]interface{})
			for _, raw := range msgs {
				m, _ := raw.(map[string]interface{})
				if m["message_id"] == messageID {
					readBy, _ := m["read_by"].([]interface{})
					found = len(readBy) >= 2 // alice (sender) + bob
				}
			}
			if found {
				results = append(results, pass("history", "page includes merged read_by"))
			} else {
				results = append(results, fail("history", "message missing or read_by not merged"))
			}
		}
	}

	// --- Delete authorization ---
	if messageID != "" {
		_ = bob.Send(map[string]string{
			"type": client.TypeDeleteMessage, "scope": "room", "message_id": messageID,
		})
		_, rejected := waitFor(ctx, bobErrors, 5*time.Second, func(m map[string]interface{}) bool {
			return m["code"] == "unauthorized"
		})

		_ = alice.Send(map[string]string{
			"type": client.TypeDeleteMessage, "scope": "room", "message_id": messageID,
		})
		_, evicted := waitFor(ctx, aliceDeleted, 5*time.Second, func(m map[string]interface{}) bool {
			return m["message_id"] == messageID
		})

		if rejected && evicted {
			results = append(results, pass("delete authorization", "non-sender rejected, sender delete broadcast"))
		} else {
			results = append(results, fail("delete authorization",
				fmt.Sprintf("rejected=%v evicted=%v", rejected, evicted)))
		}
	}

	// --- Typing is fanned out but never echoed to its author ---
	_ = alice.Send(map[string]interface{}{"type": client.TypeTyping, "is_typing": true})
	_, bobSaw := waitFor(ctx, bobTyping, 5*time.Second, func(m map[string]interface{}) bool {
		return m["from"] == "e2e-alice"
	})
	_, aliceSaw := waitFor(ctx, aliceTyping, 2*time.Second, func(m map[string]interface{}) bool {
		return m["from"] == "e2e-alice"
	})
	if bobSaw && !aliceSaw {
		results = append(results, pass("typing fanout", "peer notified, author filtered"))
	} else {
		results = append(results, fail("typing fanout",
			fmt.Sprintf("peer=%v author=%v", bobSaw, aliceSaw)))
	}

	// --- Private channel between alice and carol ---
	carol, err := client.New(ctx, wsURL, client.Options{Token: "e2e-carol", Peer: "e2e-alice"})
	if err != nil {
		return append(results, fail("private channel", err.Error()))
	}

	carolPrivate := capture(carol, client.TypePrivateMessage)
	if err := carol.WaitForConnected(ctx); err != nil {
		carol.Close()
		return append(results, fail("private channel", err.Error()))
	}

	// Alice needs a session bound to carol; reconnect a second alice session
	// with the peer parameter (multi-device: the room session stays up).
	alice2, err := client.New(ctx, wsURL, client.Options{Token: "e2e-alice", Peer: "e2e-carol"})
	if err != nil {
		carol.Close()
		return append(results, fail("private channel", err.Error()))
	}
	defer alice2.Close()
	if err := alice2.WaitForConnected(ctx); err != nil {
		carol.Close()
		return append(results, fail("private channel", err.Error()))
	}

	_ = alice2.Send(map[string]string{"type": client.TypePrivateMessage, "body": "psst carol"})
	if _, ok := waitFor(ctx, carolPrivate, 5*time.Second, func(m map[string]interface{}) bool {
		return m["from"] == "e2e-alice" && m["body"] == "psst carol"
	}); ok {
		results = append(results, pass("private channel", "1:1 delivery across sessions"))
	} else {
		results = append(results, fail("private channel", "carol never received the message"))
	}

	// --- Offline notification delivery ---
	// Carol disconnects; alice messages her; carol reconnects and should see
	// the persisted notification replayed.
	carol.Close()
	time.Sleep(500 * time.Millisecond) // let the disconnect commit

	_ = alice2.Send(map[string]string{"type": client.TypePrivateMessage, "body": "while you were out"})
	time.Sleep(500 * time.Millisecond)

	carol2, err := client.New(ctx, wsURL, client.Options{Token: "e2e-carol", Peer: "e2e-alice"})
	if err != nil {
		return append(results, fail("offline notification", err.Error()))
	}
	defer carol2.Close()

	carolNotifications := capture(carol2, client.TypeNotification)
	if err := carol2.WaitForConnected(ctx); err != nil {
		return append(results, fail("offline notification", err.Error()))
	}
	if _, ok := waitFor(ctx, carolNotifications, 5*time.Second, func(m map[string]interface{}) bool {
		text, _ := m["text"].(string)
		return text != ""
	}); ok {
		results = append(results, pass("offline notification", "replayed on reconnect"))
	} else {
		results = append(results, fail("offline notification", "no notification replay"))
	}

	// --- Rate limiting (informational: depends on limiter config) ---
	bobRateLimited := capture(bob, client.TypeRateLimited)
	for i := 0; i < 15; i++ {
		_ = bob.Send(map[string]string{"type": client.TypeRoomMessage, "body": "burst"})
	}
	if _, ok := waitFor(ctx, bobRateLimited, 5*time.Second, func(m map[string]interface{}) bool {
		return true
	}); ok {
		results = append(results, info("rate limiting", "burst throttled"))
	} else {
		results = append(results, info("rate limiting", "no rate_limited seen (limit may be higher)"))
	}

	return results
}
