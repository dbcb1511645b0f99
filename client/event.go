// SPDX-License-Identifier: GPL-3.0-or-later

package client

// EventKind tags an extraction-stream event.
type EventKind int

const (
	// EventLength reports the recovered secret length in bytes.
	EventLength = EventKind(iota)

	// EventSecret reports one recovered secret byte.
	EventSecret

	// EventDone reports that the whole secret was recovered.
	EventDone

	// EventError reports a failed run, with a human-readable cause.
	EventError

	// EventExit reports a cooperative stop, distinct from a
	// failure.
	EventExit
)

// Event is one entry of the extraction result stream. Within one
// run events appear as: length, zero or more secret bytes, then a
// single terminal done, error, or exit event.
type Event struct {
	// Kind tags the event.
	Kind EventKind

	// Length is the secret length for [EventLength].
	Length int

	// Secret is the recovered byte for [EventSecret].
	Secret byte

	// Message is the cause for [EventError] and [EventExit].
	Message string
}

// eventChannelSize is the result stream capacity, large enough to
// never block the engine under normal operation.
const eventChannelSize = 2000
