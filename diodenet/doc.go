// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package diodenet provides the transport layer shared by the leaky
diode client and server.

This package is designed to keep the measured timing and throughput
attributable to protocol pacing rather than to the OS: [Tune] forces
a 1-byte socket receive buffer and disables Nagle's algorithm, while
[*Network] exposes injection points (dialer, clock, logger) so tests
can replace the physical layer entirely.

Connections may be wrapped to emit [log/slog] events for each read,
write, and close, which is how timing experiments are observed.
*/
package diodenet
