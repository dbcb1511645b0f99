// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package client implements the leaky-diode extraction client.

A [*Client] drives one extraction run: a single engine goroutine
requests the secret bit by bit and decodes each bit from a physical
signal — achieved throughput in flow-modulation mode, or the delay
until the server closes the connection in close-delay mode. Results
stream back as [Event] values over a bounded channel; the client
accumulates them and exposes the partial or complete secret on
demand.

Bit requests are strictly sequential within a run, since concurrent
sampling would corrupt the timing measurements.
*/
package client
