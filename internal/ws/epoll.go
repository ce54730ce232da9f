//go:build linux

package ws

import (
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Epoll multiplexes read readiness for every chat connection over one kernel
// epoll instance. The hub keeps no goroutine per idle connection; sessions
// only cost a worker while a frame is actually pending.
type Epoll struct {
	fd     int              // epoll instance fd
	conns  map[int]net.Conn // socket fd -> connection
	mu     sync.RWMutex     // guards conns
	events []unix.EpollEvent
}

// NewEpoll opens a fresh epoll instance.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:     fd,
		conns:  make(map[int]net.Conn),
		events: make([]unix.EpollEvent, 128),
	}, nil
}

// Add puts the connection's socket on the interest list for reads and
// hangups. Until Add runs, nothing about the socket is observable through
// Wait.
func (e *Epoll) Add(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP,
		Fd:     int32(fd),
	}); err != nil {
		return err
	}

	e.mu.Lock()
	e.conns[fd] = conn
	e.mu.Unlock()
	return nil
}

// Remove takes the connection off the interest list and forgets its fd.
func (e *Epoll) Remove(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_DEL, fd, nil); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.conns, fd)
	e.mu.Unlock()
	return nil
}

// Wait blocks until at least one registered connection has data (or a hangup)
// pending and returns those connections. Fds evicted between the kernel wake
// and the lookup are skipped.
func (e *Epoll) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(e.fd, e.events, -1)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	ready := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		if conn, ok := e.conns[int(e.events[i].Fd)]; ok {
			ready = append(ready, conn)
		}
	}
	e.mu.RUnlock()
	return ready, nil
}

// Close releases the epoll instance.
func (e *Epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns = nil
	return unix.Close(e.fd)
}

// socketFD pulls the socket fd out of a net.Conn via SyscallConn. File()
// would dup the descriptor; epoll needs the original one.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	var fd int
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}
