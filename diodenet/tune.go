// SPDX-License-Identifier: GPL-3.0-or-later

package diodenet

import (
	"net"
	"syscall"
)

// Tune applies the socket options required by the covert channels:
// the receive buffer is forced to a single byte and Nagle's
// algorithm is disabled, so measured throughput and latency are
// driven by protocol pacing rather than kernel batching.
//
// Connections that are not TCP sockets (e.g., in-memory pipes used
// by tests) are left untouched.
func Tune(conn net.Conn) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcp.SetNoDelay(true); err != nil {
		return err
	}
	return SetRecvBuffer(tcp, 1)
}

// SetRecvBuffer sets SO_RCVBUF on any socket exposing its raw
// file descriptor (connections and listeners alike).
//
// We use a raw setsockopt rather than [*net.TCPConn.SetReadBuffer]
// so the kernel receives exactly the requested value.
func SetRecvBuffer(sock syscall.Conn, size int) error {
	raw, err := sock.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = setsockoptRcvbuf(fd, size)
	}); err != nil {
		return err
	}
	return sockErr
}
