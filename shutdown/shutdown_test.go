//go:build unix

package shutdown

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/alecthomas/assert"
	"golang.org/x/sys/unix"
)

func pollReadable(t *testing.T, fd int, timeoutMs int) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		assert.NoError(t, err)
		return n == 1 && fds[0].Revents&unix.POLLIN != 0
	}
}

func TestShutdownWakesPoller(t *testing.T) {
	c, err := New()
	assert.NoError(t, err)
	defer c.Close()

	assert.False(t, c.Stopped())
	assert.False(t, pollReadable(t, c.WakeFd(), 0))

	c.Shutdown()
	assert.True(t, c.Stopped())
	assert.True(t, pollReadable(t, c.WakeFd(), 1000))
	select {
	case <-c.Done():
	default:
		t.Fatalf("Done() should be closed after Shutdown()")
	}

	c.Drain()
	assert.False(t, pollReadable(t, c.WakeFd(), 0))
	// only first Shutdown writes to the pipe
	c.Shutdown()
	assert.False(t, pollReadable(t, c.WakeFd(), 0))
}

func TestShutdownUnblocksPoll(t *testing.T) {
	c, err := New()
	assert.NoError(t, err)
	defer c.Close()

	chWoke := make(chan bool, 1)
	go func() {
		chWoke <- pollReadable(t, c.WakeFd(), -1)
	}()
	time.Sleep(20 * time.Millisecond)
	c.Shutdown()
	select {
	case ok := <-chWoke:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatalf("poll didn't wake up after Shutdown()")
	}
}

func TestShutdownAfterClose(t *testing.T) {
	c, err := New()
	assert.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	c.Shutdown()
	assert.True(t, c.Stopped())
	c.Drain()
}

func TestNotifySignal(t *testing.T) {
	c, err := New()
	assert.NoError(t, err)
	defer c.Close()

	c.Notify(syscall.SIGUSR1)
	assert.NoError(t, unix.Kill(os.Getpid(), unix.SIGUSR1))
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("signal didn't trigger shutdown")
	}
	assert.True(t, c.Stopped())
	c.StopNotify()
	c.StopNotify()
}
