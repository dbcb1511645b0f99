// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package wire implements the leaky-diode framed binary protocol.

Every frame starts with a 4-byte big-endian total length (including
the length field itself) followed by a 1-byte type tag:

	Length (4) | Type (1) | Payload (...)

The five frame variants are:

	Mode         | tag 0 | mode:1 low:4 high:4 | 14 bytes
	Exit         | tag 1 | -                   |  5 bytes
	Secret       | tag 2 | byte:2 bit:1        |  8 bytes
	Nop          | tag 3 | filler:507          | 512 bytes
	SecretLength | tag 4 | bit:1               |  6 bytes

Nop frames carry no semantics; they exist to keep the connection
open and the throughput measurable.

Decoding distinguishes [ErrMalformedFrame] (bytes that do not match
any known fixed layout) from [ErrValidation] (structurally valid
frames with out-of-range field values) so callers can tell malformed
wire data from cooperative protocol violations.
*/
package wire
