// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rbmk-project/common/errclass"

	"github.com/secnot/leaky-diode/ratectl"
	"github.com/secnot/leaky-diode/wire"
)

// baseRate is the read target in bytes/s used whenever throughput
// must not itself carry signal.
const baseRate = 60 * 1024

// ErrProtocolViolation indicates a message that is valid in
// isolation but illegal for the connection's current mode.
var ErrProtocolViolation = errors.New("server: protocol violation")

// connMode is the connection's state-machine mode.
type connMode int

const (
	// modeUnselected is the state before a Mode message arrives.
	modeUnselected = connMode(iota)

	// modeFlowModulation signals bits through the read rate.
	modeFlowModulation

	// modeCloseDelay signals bits through the close delay.
	modeCloseDelay
)

// connState is the per-connection state machine. It is owned and
// mutated exclusively by the handler goroutine serving the
// connection.
type connState struct {
	conn   net.Conn
	ctrl   *ratectl.Controller
	logger *slog.Logger
	parser *wire.Parser
	srv    *Server

	// mode is the selected attack mode; there is no transition
	// back to modeUnselected.
	mode connMode

	// low and high are the client-selected signal parameters.
	low  uint32
	high uint32

	// rate is the current read target in bytes/s and recvSize the
	// derived per-tick read ceiling.
	rate     int
	recvSize int

	// closeTime is the absolute close deadline armed by
	// close-delay bit requests; zero means unarmed.
	closeTime time.Time

	// exitRequested records a client Exit message.
	exitRequested bool
}

// newConnState creates the state machine for one connection.
func newConnState(srv *Server, conn net.Conn, ctrl *ratectl.Controller) *connState {
	st := &connState{
		conn:   conn,
		ctrl:   ctrl,
		logger: srv.logger.With(slog.String("remoteAddr", conn.RemoteAddr().String())),
		parser: wire.NewParser(),
		srv:    srv,
	}
	st.setRate(baseRate)
	return st
}

// setRate changes the read target, taking effect on the next tick.
func (st *connState) setRate(rate int) {
	st.rate = rate
	// A floor of one byte keeps very low targets draining instead
	// of reading nothing forever.
	st.recvSize = max(1, rate/st.srv.ticks)
}

// secretBit returns the requested secret bit.
func (st *connState) secretBit(byteIndex uint16, bitIndex uint8) bool {
	return st.srv.secret[byteIndex]&(1<<bitIndex) != 0
}

// lengthBit returns the requested bit of the secret's byte length.
func (st *connState) lengthBit(bitIndex uint8) bool {
	return len(st.srv.secret)&(1<<bitIndex) != 0
}

// run serves the connection until the client exits, the socket
// fails, a protocol violation occurs, a close deadline elapses, or
// the server shuts down.
func (st *connState) run() {
	st.logger.Info("connAccepted")
	st.ctrl.Drain()

	for !st.exitRequested {
		// The acquire is both the pacing point and the cooperative
		// cancellation point.
		if !st.ctrl.Acquire(st.srv.stop) {
			st.logger.Info("connInterrupted")
			return
		}

		// The read deadline matches the tick period so the close
		// deadline and shutdown signal are re-checked even when the
		// client sends nothing.
		st.conn.SetReadDeadline(st.srv.timeNow().Add(st.ctrl.Interval()))
		buf := make([]byte, st.recvSize)
		count, err := st.conn.Read(buf)

		if !st.closeTime.IsZero() && !st.srv.timeNow().Before(st.closeTime) {
			st.logger.Info("closeDeadlineElapsed")
			return
		}

		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
		}

		if count > 0 {
			if ferr := st.feed(buf[:count]); ferr != nil {
				st.logger.Warn("connFailed",
					slog.Any("err", ferr),
					slog.String("errClass", errclass.New(ferr)),
				)
				return
			}
		}

		if err != nil {
			// EOF or transport failure; either way this handler is
			// done and the listener is unaffected.
			st.logger.Info("connClosed",
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
			)
			return
		}
	}

	st.logger.Info("connExited")
}

// feed parses all complete frames in data and dispatches them.
func (st *connState) feed(data []byte) error {
	for {
		data = st.parser.AppendData(data)
		for {
			msg, err := st.parser.Parse()
			if err != nil {
				return err
			}
			if msg == nil {
				break
			}
			if err := st.dispatch(msg); err != nil {
				return err
			}
			if st.exitRequested {
				return nil
			}
		}
		if len(data) <= 0 {
			return nil
		}
	}
}

// dispatch handles one parsed message according to the current
// mode.
func (st *connState) dispatch(msg wire.Msg) error {
	// The large majority of traffic is Nop filler.
	switch msg.(type) {
	case *wire.NopMsg:
		return nil
	case *wire.ExitMsg:
		st.logger.Info("exitRequested")
		st.exitRequested = true
		if st.mode == modeCloseDelay {
			// Close-delay Exit ends the serving loop, not just
			// this connection.
			st.srv.signalShutdown()
		}
		return nil
	}

	switch st.mode {
	case modeFlowModulation:
		return st.handleFlowMsg(msg)
	case modeCloseDelay:
		return st.handleCloseDelayMsg(msg)
	default:
		return st.handleUnselectedMsg(msg)
	}
}

// handleUnselectedMsg handles messages before a mode is selected.
func (st *connState) handleUnselectedMsg(msg wire.Msg) error {
	mode, ok := msg.(*wire.ModeMsg)
	if !ok {
		return fmt.Errorf("%w: %s before selecting a mode",
			ErrProtocolViolation, msgName(msg))
	}

	st.low, st.high = mode.Low, mode.High
	switch mode.Mode {
	case wire.CloseDelay:
		st.mode = modeCloseDelay
		st.setRate(baseRate)
	default:
		st.mode = modeFlowModulation
		st.setRate(int(mode.Low) + int(mode.High-mode.Low)/2)
	}
	st.ctrl.Drain()

	st.logger.Info("modeSelected",
		slog.Int("mode", int(mode.Mode)),
		slog.Uint64("low", uint64(mode.Low)),
		slog.Uint64("high", uint64(mode.High)),
	)
	return nil
}

// handleFlowMsg handles messages in flow-modulation mode.
func (st *connState) handleFlowMsg(msg wire.Msg) error {
	switch msg := msg.(type) {
	case *wire.SecretMsg:
		if int(msg.ByteIndex) >= len(st.srv.secret) {
			return fmt.Errorf("%w: secret byte %d out of range",
				ErrProtocolViolation, msg.ByteIndex)
		}
		bit := st.secretBit(msg.ByteIndex, msg.BitIndex)
		st.applyFlowBit(bit)
		st.logger.Debug("secretRequested",
			slog.Int("byte", int(msg.ByteIndex)),
			slog.Int("bit", int(msg.BitIndex)),
			slog.Bool("high", bit),
		)
		return nil

	case *wire.SecretLengthMsg:
		bit := st.lengthBit(msg.BitIndex)
		st.applyFlowBit(bit)
		st.logger.Debug("lengthRequested",
			slog.Int("bit", int(msg.BitIndex)),
			slog.Bool("high", bit),
		)
		return nil

	default:
		return fmt.Errorf("%w: %s in flow-modulation mode",
			ErrProtocolViolation, msgName(msg))
	}
}

// applyFlowBit retargets the read rate so the client observes the
// bit as achieved throughput.
func (st *connState) applyFlowBit(bit bool) {
	if bit {
		st.setRate(int(st.high))
	} else {
		st.setRate(int(st.low))
	}
	// Discard pending units so the first reads after the change do
	// not burst at the previous target.
	st.ctrl.Drain()
	st.logger.Info("rateChanged", slog.Int("rate", st.rate))
}

// handleCloseDelayMsg handles messages in close-delay mode.
func (st *connState) handleCloseDelayMsg(msg wire.Msg) error {
	var bit bool
	switch msg := msg.(type) {
	case *wire.SecretMsg:
		if int(msg.ByteIndex) >= len(st.srv.secret) {
			return fmt.Errorf("%w: secret byte %d out of range",
				ErrProtocolViolation, msg.ByteIndex)
		}
		bit = st.secretBit(msg.ByteIndex, msg.BitIndex)

	case *wire.SecretLengthMsg:
		bit = st.lengthBit(msg.BitIndex)

	default:
		return fmt.Errorf("%w: %s in close-delay mode",
			ErrProtocolViolation, msgName(msg))
	}

	// Pin throughput to the baseline so data flow does not also
	// carry signal; the bit rides on the close delay alone.
	st.setRate(baseRate)
	delay := st.low
	if bit {
		delay = st.high
	}
	st.closeTime = st.srv.timeNow().Add(time.Duration(delay) * time.Millisecond)
	st.logger.Info("closeArmed", slog.Uint64("delayMs", uint64(delay)))
	return nil
}

// msgName names a message variant for violation errors.
func msgName(msg wire.Msg) string {
	switch msg.(type) {
	case *wire.ModeMsg:
		return "Mode"
	case *wire.ExitMsg:
		return "Exit"
	case *wire.SecretMsg:
		return "Secret"
	case *wire.NopMsg:
		return "Nop"
	case *wire.SecretLengthMsg:
		return "SecretLength"
	default:
		return "unknown"
	}
}
