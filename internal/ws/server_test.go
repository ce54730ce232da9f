package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"

	"github.com/harborchat/harbor/internal/identity"
)

// A client that drops its socket while connect setup is still running must
// not drive the disconnect path first: read readiness is armed only after the
// connect callback commits, so the disconnect always observes a registered
// session.
func TestDisconnectNeverPrecedesConnectCommit(t *testing.T) {
	srv := NewServer(DefaultServerConfig(), identity.StaticResolver{"tok": "alice"}, nil)
	var err error
	srv.epoll, err = NewEpoll()
	if err != nil {
		t.Fatalf("epoll: %v", err)
	}
	t.Cleanup(func() {
		close(srv.done)
		_ = srv.epoll.Close()
	})

	events := make(chan string, 4)
	srv.SetOnConnect(func(conn *Connection, _ url.Values) {
		// Session setup still in flight when the client drops the socket.
		time.Sleep(100 * time.Millisecond)
		events <- "connect"
	})
	srv.SetOnDisconnect(func(connID string) {
		events <- "disconnect"
	})

	go srv.startEventLoop()

	ts := httptest.NewServer(http.HandlerFunc(srv.handleUpgrade))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?token=tok"
	conn, _, _, err := ws.Dial(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close() // drop the socket immediately after the handshake

	for _, want := range []string{"connect", "disconnect"} {
		select {
		case got := <-events:
			if got != want {
				t.Fatalf("expected %q event, got %q", want, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q event", want)
		}
	}
}
