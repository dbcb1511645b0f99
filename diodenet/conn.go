// SPDX-License-Identifier: GPL-3.0-or-later

package diodenet

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rbmk-project/common/errclass"
)

// WrapConn wraps a [net.Conn] to emit one structured log event per
// read, write, and close, timestamped with the network's clock so
// covert-channel timing can be inspected offline.
func WrapConn(ctx context.Context, netx *Network, conn net.Conn) net.Conn {
	return &connWrapper{
		closeonce: sync.Once{},
		conn:      conn,
		ctx:       ctx,
		netx:      netx,
		raddr:     remoteAddrString(conn),
	}
}

// remoteAddrString is a safe way to stringify the remote address.
func remoteAddrString(conn net.Conn) string {
	if conn != nil && conn.RemoteAddr() != nil {
		return conn.RemoteAddr().String()
	}
	return ""
}

// connWrapper wraps a [net.Conn] to emit structured logs.
type connWrapper struct {
	closeonce sync.Once
	conn      net.Conn
	ctx       context.Context // only used for logging
	netx      *Network
	raddr     string
}

// logIO emits one I/O event record.
func (c *connWrapper) logIO(event string, count int, err error, t0 time.Time) {
	c.netx.Logger.InfoContext(
		c.ctx,
		event,
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", errclass.New(err)),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.netx.timeNow()),
	)
}

// Read implements [net.Conn].
func (c *connWrapper) Read(buf []byte) (int, error) {
	t0 := c.netx.timeNow()
	count, err := c.conn.Read(buf)
	c.logIO("readDone", count, err, t0)
	return count, err
}

// Write implements [net.Conn].
func (c *connWrapper) Write(data []byte) (int, error) {
	t0 := c.netx.timeNow()
	count, err := c.conn.Write(data)
	c.logIO("writeDone", count, err, t0)
	return count, err
}

// Close implements [net.Conn].
func (c *connWrapper) Close() (err error) {
	c.closeonce.Do(func() {
		t0 := c.netx.timeNow()
		err = c.conn.Close()
		c.logIO("closeDone", 0, err, t0)
	})
	return
}

// LocalAddr implements [net.Conn].
func (c *connWrapper) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr implements [net.Conn].
func (c *connWrapper) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetDeadline implements [net.Conn].
func (c *connWrapper) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// SetReadDeadline implements [net.Conn].
func (c *connWrapper) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// SetWriteDeadline implements [net.Conn].
func (c *connWrapper) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
