//go:build unix

package server

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Listener is a non-blocking TCP socket listening on all IPv4 interfaces
type Listener struct {
	fd   int
	port int
}

// Listen creates a socket, binds it to 0.0.0.0:port and starts
// listening with a given backlog. Port 0 picks a free port.
func Listen(port int, backlog int) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			unix.Close(fd)
		}
	}()
	unix.CloseOnExec(fd)
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return nil, err
	}
	if err = unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		return nil, err
	}
	if err = unix.Listen(fd, backlog); err != nil {
		return nil, err
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	// with port 0 the kernel picks the port
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	if sa4, isInet4 := sa.(*unix.SockaddrInet4); isInet4 {
		port = sa4.Port
	}
	ok = true
	return &Listener{
		fd:   fd,
		port: port,
	}, nil
}

// Fd returns listening socket, for polling
func (l *Listener) Fd() int {
	return l.fd
}

// Port returns the port we listen on
func (l *Listener) Port() int {
	return l.port
}

// Addr returns listening address
func (l *Listener) Addr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.IPv4zero, Port: l.port}
}

// Accept accepts a pending connection and makes it non-blocking.
// Returns unix.EAGAIN if there's no pending connection
func (l *Listener) Accept() (int, string, error) {
	fd, sa, err := unix.Accept(l.fd)
	if err != nil {
		return -1, "", err
	}
	unix.CloseOnExec(fd)
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	return fd, sockaddrString(sa), nil
}

// Close closes listening socket. Can be called multiple times
func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	}
	return "unknown"
}
