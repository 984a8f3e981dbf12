//go:build unix

package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/kjk/minidb/log"
	"github.com/kjk/minidb/shutdown"
	"golang.org/x/sys/unix"
)

const (
	DefaultBacklog       = 10
	DefaultReadChunkSize = 1024
	DefaultMaxPending    = 64 * 1024
)

var (
	// ErrBind is wrapped by errors from Listen
	ErrBind = errors.New("server: failed to bind listening socket")
	// ErrServerClosed is returned when using a server after it was shut down
	ErrServerClosed = errors.New("server: closed")
)

type Options struct {
	// 0 means: pick a free port
	Port int
	// defaults to DefaultBacklog
	Backlog int
	// max number of bytes read from a client in one go.
	// defaults to DefaultReadChunkSize
	ReadChunkSize int
	// we stop reading from a client that doesn't read its echo
	// once it has that many unsent bytes. defaults to DefaultMaxPending
	MaxPending int
	// signals that trigger a shutdown while serving e.g. os.Interrupt
	Signals []os.Signal
}

type State int32

const (
	StateStopped State = iota
	StateListening
	StateRunning
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting down"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Server struct {
	opts Options
	sd   *shutdown.Coordinator
	// true if we created sd and must close it
	ownsSd bool

	ln    *Listener
	conns ConnSet

	mu    sync.Mutex
	state State
	// teardown already happened. A server can't be re-used
	closed   bool
	nConns   atomic.Int64
	chDone   chan struct{}
	teardown sync.Once

	// re-used between loop iterations
	pollFds []unix.PollFd
	polled  []*Conn
	readBuf []byte
}

// New creates a server. If sd is nil, the server creates its own
// coordinator, triggered by Shutdown() and opts.Signals
func New(opts *Options, sd *shutdown.Coordinator) *Server {
	s := &Server{
		sd:     sd,
		chDone: make(chan struct{}),
	}
	if opts != nil {
		s.opts = *opts
	}
	if s.opts.Backlog <= 0 {
		s.opts.Backlog = DefaultBacklog
	}
	if s.opts.ReadChunkSize <= 0 {
		s.opts.ReadChunkSize = DefaultReadChunkSize
	}
	if s.opts.MaxPending <= 0 {
		s.opts.MaxPending = DefaultMaxPending
	}
	s.readBuf = make([]byte, s.opts.ReadChunkSize)
	return s
}

// State returns current state. Safe to call from any goroutine
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NumConns returns number of connected clients.
// Safe to call from any goroutine
func (s *Server) NumConns() int {
	return int(s.nConns.Load())
}

// Addr returns listening address, nil if not listening
func (s *Server) Addr() *net.TCPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Done is closed after the server was torn down
func (s *Server) Done() <-chan struct{} {
	return s.chDone
}

// Listen binds a listening socket. Errors wrap ErrBind
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.state != StateStopped {
		return fmt.Errorf("server: Listen() called in state '%s'", s.state)
	}
	if s.sd == nil {
		sd, err := shutdown.New()
		if err != nil {
			return err
		}
		s.sd = sd
		s.ownsSd = true
	}
	ln, err := Listen(s.opts.Port, s.opts.Backlog)
	if err != nil {
		return fmt.Errorf("%w on port %d: %w", ErrBind, s.opts.Port, err)
	}
	s.ln = ln
	s.state = StateListening
	log.Verbosef("server: listening on port %d\n", ln.Port())
	return nil
}

// Serve runs the poll loop until shutdown. Returns nil on orderly shutdown
func (s *Server) Serve() error {
	s.mu.Lock()
	if s.state != StateListening {
		state := s.state
		s.mu.Unlock()
		if s.closed || state == StateShuttingDown {
			return ErrServerClosed
		}
		return fmt.Errorf("server: Serve() called in state '%s'", state)
	}
	s.state = StateRunning
	s.mu.Unlock()

	s.sd.Notify(s.opts.Signals...)
	log.Logf("server: accepting connections on port %d\n", s.ln.Port())

	var err error
	for !s.sd.Stopped() {
		if err = s.pollOnce(); err != nil {
			log.Errorf("server: poll failed: %s\n", err)
			break
		}
	}
	s.close()
	return err
}

// ListenAndServe is Listen followed by Serve
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown asks the server to stop and waits until all sockets are closed.
// Safe to call from any goroutine and multiple times
func (s *Server) Shutdown() {
	s.mu.Lock()
	sd := s.sd
	state := s.state
	direct := state == StateListening || (state == StateStopped && !s.closed)
	if direct {
		// Serve is not running so nobody else will tear down
		s.state = StateShuttingDown
	}
	s.mu.Unlock()

	if sd != nil {
		sd.Shutdown()
	}
	if direct {
		s.close()
		return
	}
	<-s.chDone
}

func (s *Server) pollOnce() error {
	fds := s.pollFds[:0]
	fds = append(fds, unix.PollFd{Fd: int32(s.sd.WakeFd()), Events: unix.POLLIN})
	fds = append(fds, unix.PollFd{Fd: int32(s.ln.Fd()), Events: unix.POLLIN})
	polled := s.polled[:0]
	for _, c := range s.conns.All() {
		var events int16
		if len(c.pending) < s.opts.MaxPending {
			events |= unix.POLLIN
		}
		if len(c.pending) > 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(c.fd), Events: events})
		polled = append(polled, c)
	}
	s.pollFds = fds
	s.polled = polled

	_, err := unix.Poll(fds, -1)
	if err == unix.EINTR {
		return nil
	}
	if err != nil {
		return err
	}

	if fds[0].Revents != 0 {
		s.sd.Drain()
	}
	if s.sd.Stopped() {
		return nil
	}

	if fds[1].Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0 {
		s.accept()
	}

	for i, c := range polled {
		s.serviceConn(c, fds[i+2].Revents)
	}
	// drop references to conns so that they can be garbage collected
	clear(s.polled)

	if n := s.conns.RemoveClosed(); n > 0 {
		s.nConns.Store(int64(s.conns.Len()))
	}
	return nil
}

func (s *Server) accept() {
	fd, addr, err := s.ln.Accept()
	if err != nil {
		if err == unix.EAGAIN || err == unix.ECONNABORTED || err == unix.EINTR {
			return
		}
		log.Errorf("server: accept failed: %s\n", err)
		return
	}
	c := s.conns.Add(fd, addr)
	s.nConns.Store(int64(s.conns.Len()))
	log.Verbosef("server: client %d connected from %s\n", c.ID, addr)
	log.Event(log.EventAccept, "client", c.ID, "addr", addr)
}

func (s *Server) disconnect(c *Conn, reason error) {
	if c.closed {
		return
	}
	if reason != nil {
		log.Verbosef("server: client %d: %s\n", c.ID, reason)
	} else {
		log.Verbosef("server: client %d disconnected\n", c.ID)
	}
	_ = c.close()
	log.Event(log.EventDisconnect, "client", c.ID)
}

func (s *Server) serviceConn(c *Conn, revents int16) {
	if revents == 0 || c.closed {
		return
	}
	if revents&unix.POLLNVAL != 0 {
		s.disconnect(c, errors.New("invalid fd"))
		return
	}
	if revents&unix.POLLOUT != 0 {
		if err := c.flush(); err != nil {
			s.disconnect(c, err)
			return
		}
	}
	if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
		return
	}
	n, err := unix.Read(c.fd, s.readBuf)
	if err == unix.EAGAIN || err == unix.EINTR {
		return
	}
	if err != nil {
		s.disconnect(c, err)
		return
	}
	if n <= 0 {
		s.disconnect(c, nil)
		return
	}
	d := s.readBuf[:n]
	log.Verbosef("server: client %d | %q\n", c.ID, d)
	if err = c.write(d); err != nil {
		s.disconnect(c, err)
	}
}

func (s *Server) close() {
	s.teardown.Do(func() {
		s.mu.Lock()
		s.state = StateShuttingDown
		s.mu.Unlock()

		n := s.conns.Len()
		s.conns.CloseAll()
		s.nConns.Store(0)
		var err error
		if s.ln != nil {
			err = s.ln.Close()
		}
		if s.sd != nil {
			s.sd.StopNotify()
			if s.ownsSd {
				_ = s.sd.Close()
			}
		}

		s.mu.Lock()
		s.state = StateStopped
		s.closed = true
		s.mu.Unlock()

		log.IfErrf(err, "server: closing listening socket failed: %s\n", err)
		log.Logf("server: shut down, closed %d client connections\n", n)
		log.Event(log.EventShutdown, "clients", n)
		close(s.chDone)
	})
}
