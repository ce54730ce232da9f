package ws

import (
	"log"
	"time"

	"github.com/gobwas/ws"
)

// HeartbeatConfig tunes the liveness sweep over chat connections.
type HeartbeatConfig struct {
	Interval time.Duration // sweep period
	Timeout  time.Duration // extra grace after Interval before eviction
}

// DefaultHeartbeatConfig returns the production heartbeat settings.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// StartHeartbeat runs a background sweep that pings every connection and
// evicts the ones that have gone silent, so sessions of vanished clients get
// torn down instead of lingering in rooms forever. It returns immediately;
// the sweep stops when the server's done channel closes.
func StartHeartbeat(server *Server, config HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-server.done:
				return
			case <-ticker.C:
				sweepConnections(server, config)
			}
		}
	}()
}

// sweepConnections evicts every connection with no frame activity within
// Interval + Timeout and pings the rest. Any inbound frame counts as
// activity; browsers answer the ping with a pong automatically.
func sweepConnections(server *Server, config HeartbeatConfig) {
	deadline := config.Interval + config.Timeout
	now := time.Now()

	for _, c := range server.Connections().All() {
		if now.Sub(c.LastPing) > deadline {
			log.Printf("ws: evicting silent connection conn=%s user=%s idle=%s",
				c.ID, c.UserID, now.Sub(c.LastPing).Round(time.Second))
			server.RemoveConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed conn=%s: %v", c.ID, err)
			server.RemoveConnection(c)
		}
	}
}

// WritePing sends a protocol-level ping frame. The connection's write mutex
// keeps it from interleaving with chat frames.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}
