//go:build unix

package server

import (
	"github.com/kjk/minidb/u"
	"golang.org/x/sys/unix"
)

// Conn is a connected client
type Conn struct {
	// ID is assigned at accept time, starting with 1
	ID   int
	Addr string

	fd int
	// echo bytes that didn't fit in socket send buffer yet
	pending []byte
	closed  bool
}

// Fd returns socket descriptor, -1 after close
func (c *Conn) Fd() int {
	if c.closed {
		return -1
	}
	return c.fd
}

// Closed returns true after the connection was closed
func (c *Conn) Closed() bool {
	return c.closed
}

// Pending returns number of bytes waiting to be written
func (c *Conn) Pending() int {
	return len(c.pending)
}

func (c *Conn) close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.pending = nil
	return unix.Close(c.fd)
}

// write queues d and writes as much of pending data as the socket
// accepts without blocking
func (c *Conn) write(d []byte) error {
	c.pending = append(c.pending, d...)
	return c.flush()
}

func (c *Conn) flush() error {
	for len(c.pending) > 0 {
		n, err := unix.Write(c.fd, c.pending)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return err
		}
		if n <= 0 {
			return nil
		}
		c.pending = c.pending[n:]
	}
	c.pending = nil
	return nil
}

// ConnSet is an ordered list of connections, in order of acceptance.
// Ids are never re-used.
type ConnSet struct {
	conns  []*Conn
	lastID int
}

// Add creates a connection for fd with the next id
func (s *ConnSet) Add(fd int, addr string) *Conn {
	u.PanicIf(fd < 0, "invalid fd %d", fd)
	s.lastID++
	c := &Conn{
		ID:   s.lastID,
		Addr: addr,
		fd:   fd,
	}
	s.conns = append(s.conns, c)
	return c
}

// Len returns number of connections
func (s *ConnSet) Len() int {
	return len(s.conns)
}

// All returns connections in order of acceptance. The slice is shared,
// callers must not modify it
func (s *ConnSet) All() []*Conn {
	return s.conns
}

// Get returns connection with a given id or nil
func (s *ConnSet) Get(id int) *Conn {
	for _, c := range s.conns {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// RemoveClosed removes closed connections, preserving order of others.
// Returns number of removed connections
func (s *ConnSet) RemoveClosed() int {
	n := 0
	for _, c := range s.conns {
		if !c.closed {
			s.conns[n] = c
			n++
		}
	}
	removed := len(s.conns) - n
	// don't keep references to removed connections
	clear(s.conns[n:])
	s.conns = s.conns[:n]
	return removed
}

// CloseAll closes all connections and empties the set
func (s *ConnSet) CloseAll() {
	for _, c := range s.conns {
		_ = c.close()
	}
	clear(s.conns)
	s.conns = s.conns[:0]
}
