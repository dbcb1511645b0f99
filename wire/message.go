// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rbmk-project/common/runtimex"
)

// MsgType is the 1-byte frame type tag.
type MsgType uint8

const (
	// TypeMode selects the attack mode and its parameters.
	TypeMode = MsgType(0)

	// TypeExit ends the connection.
	TypeExit = MsgType(1)

	// TypeSecret requests modulation of one secret bit.
	TypeSecret = MsgType(2)

	// TypeNop is a filler frame enabling modulation.
	TypeNop = MsgType(3)

	// TypeSecretLength requests one bit of the secret's length.
	TypeSecretLength = MsgType(4)
)

// AttackMode selects which covert channel the server modulates.
type AttackMode uint8

const (
	// FlowModulation signals bits through the achieved throughput.
	FlowModulation = AttackMode(0)

	// CloseDelay signals bits through the connection-close delay.
	CloseDelay = AttackMode(1)
)

// Encoded frame sizes in bytes, including the 5-byte header.
const (
	headerSize = 5

	// ModeSize is the encoded size of a Mode frame.
	ModeSize = 14

	// ExitSize is the encoded size of an Exit frame.
	ExitSize = 5

	// SecretSize is the encoded size of a Secret frame.
	SecretSize = 8

	// NopSize is the encoded size of a Nop frame.
	NopSize = 512

	// NopFillerSize is the filler payload size of a Nop frame.
	NopFillerSize = NopSize - headerSize

	// SecretLengthSize is the encoded size of a SecretLength frame.
	SecretLengthSize = 6
)

// ErrMalformedFrame indicates wire bytes that do not match any
// known type tag or fixed frame layout.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// ErrValidation indicates a structurally valid frame carrying
// out-of-range field values.
var ErrValidation = errors.New("wire: invalid field value")

// Msg is a protocol frame. Messages are immutable value objects
// created by the New* constructors or by decoding wire bytes.
type Msg interface {
	// Type returns the frame type tag.
	Type() MsgType

	// Encode returns the encoded frame. The declared length always
	// equals the exact encoded byte length of the variant.
	Encode() []byte
}

// putHeader writes the frame header into buf.
func putHeader(buf []byte, typ MsgType) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	buf[4] = byte(typ)
}

// checkFrame verifies the fixed layout shared by all variants.
func checkFrame(frame []byte, size int, typ MsgType) error {
	if len(frame) != size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedFrame, len(frame), size)
	}
	if binary.BigEndian.Uint32(frame[0:4]) != uint32(size) {
		return fmt.Errorf("%w: declared length does not match layout", ErrMalformedFrame)
	}
	if MsgType(frame[4]) != typ {
		return fmt.Errorf("%w: unexpected type tag %d", ErrMalformedFrame, frame[4])
	}
	return nil
}

// ModeMsg selects the attack mode. Low and high are the two
// physical-signal parameters: bytes/s for [FlowModulation] and
// milliseconds for [CloseDelay].
type ModeMsg struct {
	Mode AttackMode
	Low  uint32
	High uint32
}

// NewModeMsg constructs a [*ModeMsg].
//
// Returns [ErrValidation] when the mode is unknown or low >= high.
func NewModeMsg(mode AttackMode, low, high uint32) (*ModeMsg, error) {
	if mode != FlowModulation && mode != CloseDelay {
		return nil, fmt.Errorf("%w: unknown attack mode %d", ErrValidation, mode)
	}
	if low >= high {
		return nil, fmt.Errorf("%w: low must be smaller than high", ErrValidation)
	}
	return &ModeMsg{Mode: mode, Low: low, High: high}, nil
}

// Type implements [Msg].
func (m *ModeMsg) Type() MsgType { return TypeMode }

// Encode implements [Msg].
func (m *ModeMsg) Encode() []byte {
	buf := make([]byte, ModeSize)
	putHeader(buf, TypeMode)
	buf[5] = byte(m.Mode)
	binary.BigEndian.PutUint32(buf[6:10], m.Low)
	binary.BigEndian.PutUint32(buf[10:14], m.High)
	return buf
}

// DecodeMode decodes a Mode frame.
func DecodeMode(frame []byte) (*ModeMsg, error) {
	if err := checkFrame(frame, ModeSize, TypeMode); err != nil {
		return nil, err
	}
	return NewModeMsg(
		AttackMode(frame[5]),
		binary.BigEndian.Uint32(frame[6:10]),
		binary.BigEndian.Uint32(frame[10:14]),
	)
}

// ExitMsg asks the server to end the connection.
type ExitMsg struct{}

// NewExitMsg constructs an [*ExitMsg].
func NewExitMsg() *ExitMsg { return &ExitMsg{} }

// Type implements [Msg].
func (m *ExitMsg) Type() MsgType { return TypeExit }

// Encode implements [Msg].
func (m *ExitMsg) Encode() []byte {
	buf := make([]byte, ExitSize)
	putHeader(buf, TypeExit)
	return buf
}

// DecodeExit decodes an Exit frame.
func DecodeExit(frame []byte) (*ExitMsg, error) {
	if err := checkFrame(frame, ExitSize, TypeExit); err != nil {
		return nil, err
	}
	return NewExitMsg(), nil
}

// SecretMsg requests modulation of bit BitIndex of the secret byte
// at ByteIndex.
type SecretMsg struct {
	ByteIndex uint16
	BitIndex  uint8
}

// NewSecretMsg constructs a [*SecretMsg].
//
// Returns [ErrValidation] when bitIndex is not in [0, 8).
func NewSecretMsg(byteIndex uint16, bitIndex uint8) (*SecretMsg, error) {
	if bitIndex >= 8 {
		return nil, fmt.Errorf("%w: secret bit index must be between 0 and 7", ErrValidation)
	}
	return &SecretMsg{ByteIndex: byteIndex, BitIndex: bitIndex}, nil
}

// Type implements [Msg].
func (m *SecretMsg) Type() MsgType { return TypeSecret }

// Encode implements [Msg].
func (m *SecretMsg) Encode() []byte {
	buf := make([]byte, SecretSize)
	putHeader(buf, TypeSecret)
	binary.BigEndian.PutUint16(buf[5:7], m.ByteIndex)
	buf[7] = m.BitIndex
	return buf
}

// DecodeSecret decodes a Secret frame.
func DecodeSecret(frame []byte) (*SecretMsg, error) {
	if err := checkFrame(frame, SecretSize, TypeSecret); err != nil {
		return nil, err
	}
	return NewSecretMsg(binary.BigEndian.Uint16(frame[5:7]), frame[7])
}

// NopMsg is a fixed-size filler frame with no semantic payload.
type NopMsg struct {
	Filler []byte
}

// NewNopMsg constructs a [*NopMsg].
//
// Returns [ErrValidation] when filler is not exactly
// [NopFillerSize] bytes.
func NewNopMsg(filler []byte) (*NopMsg, error) {
	if len(filler) != NopFillerSize {
		return nil, fmt.Errorf("%w: filler length %d, expecting %d",
			ErrValidation, len(filler), NopFillerSize)
	}
	return &NopMsg{Filler: filler}, nil
}

// RandomNop returns a [*NopMsg] with random filler. Replace the
// filler with innocuous-looking data (e.g., JSON) to make the
// attack traffic harder to spot.
func RandomNop() *NopMsg {
	filler := make([]byte, NopFillerSize)
	runtimex.Try1(rand.Read(filler))
	return &NopMsg{Filler: filler}
}

// Type implements [Msg].
func (m *NopMsg) Type() MsgType { return TypeNop }

// Encode implements [Msg].
func (m *NopMsg) Encode() []byte {
	buf := make([]byte, NopSize)
	putHeader(buf, TypeNop)
	copy(buf[5:], m.Filler)
	return buf
}

// DecodeNop decodes a Nop frame.
func DecodeNop(frame []byte) (*NopMsg, error) {
	if err := checkFrame(frame, NopSize, TypeNop); err != nil {
		return nil, err
	}
	return NewNopMsg(append([]byte{}, frame[5:]...))
}

// SecretLengthMsg requests modulation of bit BitIndex of the
// secret's byte length.
type SecretLengthMsg struct {
	BitIndex uint8
}

// NewSecretLengthMsg constructs a [*SecretLengthMsg].
//
// Returns [ErrValidation] when bitIndex is not in [0, 16).
func NewSecretLengthMsg(bitIndex uint8) (*SecretLengthMsg, error) {
	if bitIndex >= 16 {
		return nil, fmt.Errorf("%w: length bit index must be between 0 and 15", ErrValidation)
	}
	return &SecretLengthMsg{BitIndex: bitIndex}, nil
}

// Type implements [Msg].
func (m *SecretLengthMsg) Type() MsgType { return TypeSecretLength }

// Encode implements [Msg].
func (m *SecretLengthMsg) Encode() []byte {
	buf := make([]byte, SecretLengthSize)
	putHeader(buf, TypeSecretLength)
	buf[5] = m.BitIndex
	return buf
}

// DecodeSecretLength decodes a SecretLength frame.
func DecodeSecretLength(frame []byte) (*SecretLengthMsg, error) {
	if err := checkFrame(frame, SecretLengthSize, TypeSecretLength); err != nil {
		return nil, err
	}
	return NewSecretLengthMsg(frame[5])
}
