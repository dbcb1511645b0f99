// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rbmk-project/common/errclass"

	"github.com/secnot/leaky-diode/diodenet"
	"github.com/secnot/leaky-diode/wire"
)

// errStopRequested is raised at the engine's tightest loop when the
// cooperative stop signal is set, and turned into an exit event at
// the top of the engine goroutine — never into an error event.
var errStopRequested = errors.New("client: stop requested")

// engine is one extraction algorithm driving a full run.
type engine interface {
	run()
}

// engineCore carries the state shared by both engines.
type engineCore struct {
	// address is the server endpoint.
	address string

	// events is the bounded result stream.
	events chan<- Event

	// high and low are the physical-signal parameters.
	high uint32
	low  uint32

	// logger emits structured diagnostics; never nil.
	logger *slog.Logger

	// netx dials connections; tests substitute the physical layer
	// through its DialContextFunc.
	netx *diodenet.Network

	// nop is the encoded filler frame, built once per run.
	nop []byte

	// stop is the cooperative cancellation signal.
	stop <-chan struct{}
}

// stopped reports whether the cooperative stop signal is set.
func (e *engineCore) stopped() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

// emit queues one event, giving up when the run is being stopped
// so a full channel can never deadlock Stop.
func (e *engineCore) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.stop:
	}
}

// finish translates the run outcome into the terminal event. No
// event follows it.
func (e *engineCore) finish(err error) {
	switch {
	case err == nil:
		e.logger.Info("extractionDone")
		e.emitFinal(Event{Kind: EventDone})
	case errors.Is(err, errStopRequested):
		e.logger.Info("extractionStopped")
		e.emitFinal(Event{Kind: EventExit, Message: "stop requested"})
	default:
		e.logger.Warn("extractionFailed",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
		)
		e.emitFinal(Event{Kind: EventError, Message: err.Error()})
	}
}

// emitFinal queues the terminal event. The stop signal must not
// suppress it, since a stopped run still owes its exit event, so
// this send is non-blocking instead of stop-interruptible.
func (e *engineCore) emitFinal(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// sendMsg writes one encoded message to the connection.
func sendMsg(w io.Writer, msg wire.Msg) error {
	if _, err := w.Write(msg.Encode()); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}
