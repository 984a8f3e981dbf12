//go:build unix

// Package shutdown turns an interrupt signal into a stop flag that a
// poll loop can observe.
//
// Coordinator owns a self-pipe. Shutdown sets the flag and writes one
// byte to the pipe, so a goroutine blocked in poll(2) on WakeFd wakes up
// and sees Stopped() == true.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type Coordinator struct {
	stopped atomic.Bool
	done    chan struct{}

	// protects pipe fds from being closed while Shutdown writes
	mu     sync.Mutex
	rfd    int
	wfd    int
	closed bool

	chSignals chan os.Signal
}

// New creates a Coordinator with a non-blocking wake pipe
func New() (*Coordinator, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, err
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, err
		}
	}
	return &Coordinator{
		done: make(chan struct{}),
		rfd:  p[0],
		wfd:  p[1],
	}, nil
}

// Shutdown sets the stop flag and wakes up the poller.
// Only the first call has an effect. Safe to call at any time,
// from any goroutine, also after Close
func (c *Coordinator) Shutdown() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}
	close(c.done)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		// pipe is non-blocking and we write only once so it can't be full
		_, _ = unix.Write(c.wfd, []byte{1})
	}
}

// Stopped returns true after Shutdown
func (c *Coordinator) Stopped() bool {
	return c.stopped.Load()
}

// Done is closed after Shutdown
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// WakeFd is a read end of the pipe. It becomes readable after Shutdown
func (c *Coordinator) WakeFd() int {
	return c.rfd
}

// Drain reads pending wake bytes
func (c *Coordinator) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	var buf [16]byte
	for {
		n, err := unix.Read(c.rfd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Notify calls Shutdown when one of sigs is delivered.
// The signal goroutine only sets the flag and wakes the poller
func (c *Coordinator) Notify(sigs ...os.Signal) {
	if len(sigs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chSignals != nil {
		signal.Notify(c.chSignals, sigs...)
		return
	}
	ch := make(chan os.Signal, 1)
	c.chSignals = ch
	signal.Notify(ch, sigs...)
	go func() {
		if _, ok := <-ch; ok {
			c.Shutdown()
		}
	}()
}

// StopNotify stops delivering signals registered with Notify
func (c *Coordinator) StopNotify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chSignals == nil {
		return
	}
	signal.Stop(c.chSignals)
	close(c.chSignals)
	c.chSignals = nil
}

// Close stops signal delivery and closes the pipe.
// Can be called multiple times
func (c *Coordinator) Close() error {
	c.StopNotify()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := unix.Close(c.rfd)
	if err2 := unix.Close(c.wfd); err == nil {
		err = err2
	}
	return err
}
