// Package server implements a TCP echo server that multiplexes the listening
// socket and all client sockets with poll(2) on a single goroutine.
//
// The only place the loop blocks is a single unix.Poll call with no timeout.
// Shutdown comes from a shutdown.Coordinator: a signal (or a call to
// Shutdown) sets the stop flag and writes to a wake pipe that is part of
// every poll set, so the loop notices it right away, closes all client
// sockets and the listening socket, and Serve returns.
package server
