//go:build unix

package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert"
	"github.com/kjk/minidb/shutdown"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	timeout := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(timeout) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// startServer starts a server on a free port. Returns a channel
// that receives the result of Serve
func startServer(t *testing.T, opts *Options) (*Server, chan error) {
	t.Helper()
	srv := New(opts, nil)
	assert.NoError(t, srv.Listen())
	assert.Equal(t, StateListening, srv.State())
	chErr := make(chan error, 1)
	go func() {
		chErr <- srv.Serve()
	}()
	waitFor(t, "running", func() bool {
		return srv.State() == StateRunning
	})
	t.Cleanup(srv.Shutdown)
	return srv, chErr
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	addr := "127.0.0.1:" + strconv.Itoa(srv.Addr().Port)
	c, err := net.Dial("tcp", addr)
	assert.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
	})
	return c
}

func readN(t *testing.T, c net.Conn, n int) []byte {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	d := make([]byte, n)
	_, err := io.ReadFull(c, d)
	assert.NoError(t, err)
	return d
}

func TestEcho(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)
	_, err := c.Write([]byte("ping"))
	assert.NoError(t, err)
	assert.Equal(t, "ping", string(readN(t, c, 4)))

	_, err = c.Write([]byte("hello\n"))
	assert.NoError(t, err)
	assert.Equal(t, "hello\n", string(readN(t, c, 6)))
}

func TestEchoMultipleClients(t *testing.T) {
	srv, _ := startServer(t, nil)
	var conns []net.Conn
	for range 5 {
		conns = append(conns, dial(t, srv))
	}
	waitFor(t, "5 clients", func() bool {
		return srv.NumConns() == 5
	})

	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := bytes.Repeat([]byte{byte('a' + i)}, 3000)
			_, err := c.Write(msg)
			assert.NoError(t, err)
			got := readN(t, c, len(msg))
			// each client gets only its own bytes
			assert.Equal(t, msg, got)
		}()
	}
	wg.Wait()
}

func TestEchoLargeSmallChunks(t *testing.T) {
	srv, _ := startServer(t, &Options{ReadChunkSize: 7, MaxPending: 1024})
	c := dial(t, srv)
	msg := make([]byte, 1024*1024)
	for i := range msg {
		msg[i] = byte(i % 251)
	}
	// write and read concurrently so that neither side's buffers fill up
	chWriteErr := make(chan error, 1)
	go func() {
		_, err := c.Write(msg)
		chWriteErr <- err
	}()
	got := readN(t, c, len(msg))
	assert.NoError(t, <-chWriteErr)
	assert.True(t, bytes.Equal(msg, got))
}

func TestDisconnectRemovesClient(t *testing.T) {
	srv, _ := startServer(t, nil)
	c1 := dial(t, srv)
	c2 := dial(t, srv)
	waitFor(t, "2 clients", func() bool {
		return srv.NumConns() == 2
	})
	c1.Close()
	waitFor(t, "1 client", func() bool {
		return srv.NumConns() == 1
	})

	// the other client is not affected
	_, err := c2.Write([]byte("still here"))
	assert.NoError(t, err)
	assert.Equal(t, "still here", string(readN(t, c2, 10)))
}

func TestPeerResetWithPendingEcho(t *testing.T) {
	srv, _ := startServer(t, &Options{MaxPending: 1024})
	bad := dial(t, srv).(*net.TCPConn)
	good := dial(t, srv)
	waitFor(t, "2 clients", func() bool {
		return srv.NumConns() == 2
	})

	// never read the echo so that it piles up on the server
	assert.NoError(t, bad.SetReadBuffer(4096))
	_ = bad.SetWriteDeadline(time.Now().Add(300 * time.Millisecond))
	_, _ = bad.Write(make([]byte, 8*1024*1024))
	// close with RST instead of FIN
	assert.NoError(t, bad.SetLinger(0))
	assert.NoError(t, bad.Close())

	waitFor(t, "1 client", func() bool {
		return srv.NumConns() == 1
	})
	_, err := good.Write([]byte("unaffected"))
	assert.NoError(t, err)
	assert.Equal(t, "unaffected", string(readN(t, good, 10)))
	assert.Equal(t, StateRunning, srv.State())
}

func TestShutdownClosesClients(t *testing.T) {
	srv, chErr := startServer(t, nil)
	c := dial(t, srv)
	waitFor(t, "client", func() bool {
		return srv.NumConns() == 1
	})

	srv.Shutdown()
	assert.NoError(t, <-chErr)
	assert.Equal(t, StateStopped, srv.State())
	assert.Equal(t, 0, srv.NumConns())

	// server closed our connection
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var buf [16]byte
	_, err := c.Read(buf[:])
	assert.Error(t, err)

	// nobody listens anymore
	_, err = net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(srv.Addr().Port), time.Second)
	assert.Error(t, err)

	// second shutdown is a no-op
	srv.Shutdown()
	assert.True(t, errors.Is(srv.Listen(), ErrServerClosed))
	assert.True(t, errors.Is(srv.Serve(), ErrServerClosed))
}

func TestShutdownFromCoordinator(t *testing.T) {
	sd, err := shutdown.New()
	assert.NoError(t, err)
	defer sd.Close()

	srv := New(nil, sd)
	assert.NoError(t, srv.Listen())
	chErr := make(chan error, 1)
	go func() {
		chErr <- srv.Serve()
	}()
	waitFor(t, "running", func() bool {
		return srv.State() == StateRunning
	})
	sd.Shutdown()
	select {
	case err = <-chErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve didn't return after Shutdown")
	}
	<-srv.Done()
	assert.Equal(t, StateStopped, srv.State())
}

func TestShutdownBeforeServe(t *testing.T) {
	srv := New(nil, nil)
	assert.NoError(t, srv.Listen())
	srv.Shutdown()
	assert.Equal(t, StateStopped, srv.State())
	assert.True(t, errors.Is(srv.Serve(), ErrServerClosed))

	// shutdown of a server that never listened
	srv = New(nil, nil)
	srv.Shutdown()
	assert.True(t, errors.Is(srv.Listen(), ErrServerClosed))
}

func TestListenPortInUse(t *testing.T) {
	srv, _ := startServer(t, nil)
	srv2 := New(&Options{Port: srv.Addr().Port}, nil)
	err := srv2.Listen()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrBind), "err: %v", err)
	assert.Equal(t, StateStopped, srv2.State())
	srv2.Shutdown()
}

func TestListenTwice(t *testing.T) {
	srv := New(nil, nil)
	defer srv.Shutdown()
	assert.NoError(t, srv.Listen())
	assert.Error(t, srv.Listen())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "shutting down", StateShuttingDown.String())
	assert.Equal(t, "State(9)", State(9).String())
}
