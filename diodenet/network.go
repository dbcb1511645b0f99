// SPDX-License-Identifier: GPL-3.0-or-later

package diodenet

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Network dials the connections used by the extraction engines.
//
// The zero value is ready to use. A [*Network] is safe for
// concurrent use as long as its fields are not modified after
// construction.
type Network struct {
	// DialContextFunc optionally replaces the dialer for creating
	// new connections. Tests use this to substitute the physical
	// layer with an in-memory link. If nil, the [net] package
	// dialer is used and the resulting connection is tuned with
	// [Tune].
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

	// Logger optionally emits structured diagnostic events. If nil,
	// no structured logs are emitted.
	Logger *slog.Logger

	// LookupHostFunc optionally resolves a domain to IP addresses.
	// If nil, the default [*net.Resolver] is used.
	LookupHostFunc func(ctx context.Context, domain string) ([]string, error)

	// TimeNow optionally replaces [time.Now] as the clock.
	TimeNow func() time.Time

	// WrapConn optionally wraps each established connection to emit
	// structured logs. [WrapConn] is the wrapper to use.
	WrapConn func(ctx context.Context, netx *Network, conn net.Conn) net.Conn
}

// timeNow returns the current time using the configured clock.
func (nx *Network) timeNow() time.Time {
	if nx.TimeNow != nil {
		return nx.TimeNow()
	}
	return time.Now()
}
