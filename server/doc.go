// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package server implements the leaky-diode server.

The server owns the secret and answers bit requests through side
effects only: in flow-modulation mode it throttles how fast it reads
from the connection, in close-delay mode it varies how long it keeps
the connection open before closing it. No payload ever carries the
secret, which is what lets the signal cross a one-way link that
strips or blocks content.

Each accepted connection is handled by its own goroutine paced by a
private [ratectl.Controller]; at most MaxConnections handlers run
concurrently and a per-source limiter bounds how often one address
may connect. A failing connection only ever ends its own handler.
*/
package server
