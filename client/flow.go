// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/secnot/leaky-diode/wire"
)

// flowEngine extracts bits by measuring the throughput the server
// grants after each bit request.
//
// The achieved *write* rate is used as a proxy for the server's
// read throttle; the kernel send buffer can absorb part of the
// signal, which is the dominant source of measurement noise. The
// settle phase exists to flush exactly that.
type flowEngine struct {
	engineCore

	// limitRate is the decision midpoint in bytes/s.
	limitRate float64

	// sample is the measurement window after the settle phase.
	sample time.Duration

	// settle is the warm-up window discarded before sampling.
	settle time.Duration
}

// newFlowEngine creates a flow-modulation engine.
func newFlowEngine(core engineCore, settle, sample time.Duration) *flowEngine {
	return &flowEngine{
		engineCore: core,
		limitRate:  float64(core.low) + float64(core.high-core.low)/2,
		sample:     sample,
		settle:     settle,
	}
}

// run implements [engine].
func (e *flowEngine) run() {
	e.finish(e.extract())
}

// extract performs the whole run over a single connection.
func (e *flowEngine) extract() error {
	conn, err := e.netx.DialContext(context.Background(), "tcp", e.address)
	if err != nil {
		return fmt.Errorf("connect %s: %w", e.address, err)
	}
	defer conn.Close()

	mode, err := wire.NewModeMsg(wire.FlowModulation, e.low, e.high)
	if err != nil {
		return err
	}
	if err := sendMsg(conn, mode); err != nil {
		return err
	}

	length, err := e.secretLength(conn)
	if err != nil {
		return err
	}
	e.logger.Info("lengthRecovered", slog.Int("length", length))
	e.emit(Event{Kind: EventLength, Length: length})

	for index := 0; index < length; index++ {
		value, err := e.secretByte(conn, index)
		if err != nil {
			return err
		}
		e.emit(Event{Kind: EventSecret, Secret: value})
	}
	return nil
}

// secretLength recovers the secret's byte length (16 bits).
func (e *flowEngine) secretLength(conn net.Conn) (int, error) {
	var bits []bool
	for bit := uint8(0); bit < 16; bit++ {
		msg, err := wire.NewSecretLengthMsg(bit)
		if err != nil {
			return 0, err
		}
		if err := sendMsg(conn, msg); err != nil {
			return 0, err
		}
		value, err := e.sampleBit(conn)
		if err != nil {
			return 0, err
		}
		e.logger.Debug("lengthBit", slog.Int("bit", int(bit)), slog.Bool("high", value))
		bits = append(bits, value)
	}
	return reconstructBits(bits), nil
}

// secretByte recovers the secret byte at index (8 bits).
func (e *flowEngine) secretByte(conn net.Conn, index int) (byte, error) {
	var bits []bool
	for bit := uint8(0); bit < 8; bit++ {
		msg, err := wire.NewSecretMsg(uint16(index), bit)
		if err != nil {
			return 0, err
		}
		if err := sendMsg(conn, msg); err != nil {
			return 0, err
		}
		value, err := e.sampleBit(conn)
		if err != nil {
			return 0, err
		}
		e.logger.Debug("secretBit",
			slog.Int("byte", index),
			slog.Int("bit", int(bit)),
			slog.Bool("high", value),
		)
		bits = append(bits, value)
	}
	return byte(reconstructBits(bits)), nil
}

// sampleBit floods the connection with filler and decodes one bit
// from the achieved write rate: settle first, then sample.
func (e *flowEngine) sampleBit(conn net.Conn) (bool, error) {
	// Settle: drain whatever burst is left over from the previous
	// target before measuring.
	start := time.Now()
	for {
		// This send is where the engine spends most of its time,
		// so it is the cancellation point.
		if e.stopped() {
			return false, errStopRequested
		}
		if _, err := conn.Write(e.nop); err != nil {
			return false, fmt.Errorf("connection closed: %w", err)
		}
		if time.Since(start) > e.settle {
			break
		}
	}

	// Sample: count bytes written during the measurement window.
	start = time.Now()
	var elapsed time.Duration
	sent := 0
	for {
		if e.stopped() {
			return false, errStopRequested
		}
		if _, err := conn.Write(e.nop); err != nil {
			return false, fmt.Errorf("connection closed: %w", err)
		}
		sent++
		elapsed = time.Since(start)
		if elapsed > e.sample {
			break
		}
	}

	speed := float64(sent*len(e.nop)) / elapsed.Seconds()
	return speed > e.limitRate, nil
}
