// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/secnot/leaky-diode/wire"
)

// closeDelayEngine extracts bits from the time the server waits
// before closing a connection: a short delay encodes zero and a long
// delay encodes one. Every bit request rides its own connection.
type closeDelayEngine struct {
	engineCore

	// limitDelay is the decision midpoint between the two delays.
	limitDelay time.Duration

	// maxDelay bounds one bit request; past it the server is
	// considered unresponsive.
	maxDelay time.Duration
}

// newCloseDelayEngine creates a close-delay engine. Here low and
// high are delays in milliseconds rather than rates.
func newCloseDelayEngine(core engineCore) *closeDelayEngine {
	low := time.Duration(core.low) * time.Millisecond
	high := time.Duration(core.high) * time.Millisecond
	return &closeDelayEngine{
		engineCore: core,
		limitDelay: low + (high-low)/2,
		maxDelay:   3 * high,
	}
}

// run implements [engine].
func (e *closeDelayEngine) run() {
	e.finish(e.extract())
}

// extract performs the whole run, one connection per bit.
func (e *closeDelayEngine) extract() error {
	length, err := e.secretLength()
	if err != nil {
		return err
	}
	e.logger.Info("lengthRecovered", slog.Int("length", length))
	e.emit(Event{Kind: EventLength, Length: length})

	for index := 0; index < length; index++ {
		value, err := e.secretByte(index)
		if err != nil {
			return err
		}
		e.emit(Event{Kind: EventSecret, Secret: value})
	}
	return nil
}

// secretLength recovers the secret's byte length (16 bits).
func (e *closeDelayEngine) secretLength() (int, error) {
	var bits []bool
	for bit := uint8(0); bit < 16; bit++ {
		msg, err := wire.NewSecretLengthMsg(bit)
		if err != nil {
			return 0, err
		}
		value, err := e.timeBit(msg)
		if err != nil {
			return 0, err
		}
		e.logger.Debug("lengthBit", slog.Int("bit", int(bit)), slog.Bool("high", value))
		bits = append(bits, value)
	}
	return reconstructBits(bits), nil
}

// secretByte recovers the secret byte at index (8 bits).
func (e *closeDelayEngine) secretByte(index int) (byte, error) {
	var bits []bool
	for bit := uint8(0); bit < 8; bit++ {
		msg, err := wire.NewSecretMsg(uint16(index), bit)
		if err != nil {
			return 0, err
		}
		value, err := e.timeBit(msg)
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

// timeBit opens a fresh connection, requests one bit, and decodes it
// from how long the server keeps the connection alive. The close is
// observed as a write failure while flooding filler.
func (e *closeDelayEngine) timeBit(msg wire.Msg) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.maxDelay)
	defer cancel()
	conn, err := e.netx.DialContext(ctx, "tcp", e.address)
	if err != nil {
		return false, fmt.Errorf("connect %s: %w", e.address, err)
	}
	defer conn.Close()

	mode, err := wire.NewModeMsg(wire.CloseDelay, e.low, e.high)
	if err != nil {
		return false, err
	}
	if err := sendMsg(conn, mode); err != nil {
		return false, err
	}
	if err := sendMsg(conn, msg); err != nil {
		return false, err
	}

	start := time.Now()
	for {
		if _, err := conn.Write(e.nop); err != nil {
			return time.Since(start) > e.limitDelay, nil
		}
		if e.stopped() {
			return false, errStopRequested
		}
		if time.Since(start) > e.maxDelay {
			return false, errors.New("bit request timed out waiting for close")
		}
	}
}
