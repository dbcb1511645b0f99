// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeMsg(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		msg, err := NewModeMsg(CloseDelay, 50, 400)
		require.NoError(t, err)

		frame := msg.Encode()
		assert.Len(t, frame, ModeSize)
		assert.Equal(t, uint32(ModeSize), binary.BigEndian.Uint32(frame[0:4]))

		decoded, err := DecodeMode(frame)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	})

	t.Run("unknown attack mode", func(t *testing.T) {
		_, err := NewModeMsg(AttackMode(7), 10, 20)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("low >= high", func(t *testing.T) {
		_, err := NewModeMsg(FlowModulation, 100, 100)
		assert.ErrorIs(t, err, ErrValidation)

		_, err = NewModeMsg(FlowModulation, 200, 100)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("decoding low >= high fails validation", func(t *testing.T) {
		msg, err := NewModeMsg(FlowModulation, 10, 20)
		require.NoError(t, err)
		frame := msg.Encode()
		binary.BigEndian.PutUint32(frame[6:10], 20)  // low
		binary.BigEndian.PutUint32(frame[10:14], 10) // high

		_, err = DecodeMode(frame)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("wrong type tag is malformed", func(t *testing.T) {
		msg, err := NewModeMsg(FlowModulation, 10, 20)
		require.NoError(t, err)
		frame := msg.Encode()
		frame[4] = byte(TypeSecret)

		_, err = DecodeMode(frame)
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("wrong size is malformed", func(t *testing.T) {
		_, err := DecodeMode([]byte{0, 0, 0, 5, 0})
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})
}

func TestExitMsg(t *testing.T) {
	msg := NewExitMsg()
	frame := msg.Encode()
	assert.Len(t, frame, ExitSize)

	decoded, err := DecodeExit(frame)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestSecretMsg(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		msg, err := NewSecretMsg(1000, 7)
		require.NoError(t, err)

		frame := msg.Encode()
		assert.Len(t, frame, SecretSize)

		decoded, err := DecodeSecret(frame)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	})

	t.Run("bit index out of range", func(t *testing.T) {
		_, err := NewSecretMsg(0, 8)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("decoding bit index >= 8 fails validation", func(t *testing.T) {
		msg, err := NewSecretMsg(3, 0)
		require.NoError(t, err)
		frame := msg.Encode()
		frame[7] = 8

		_, err = DecodeSecret(frame)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestNopMsg(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		msg, err := NewNopMsg(bytes.Repeat([]byte{0xa5}, NopFillerSize))
		require.NoError(t, err)

		frame := msg.Encode()
		assert.Len(t, frame, NopSize)

		decoded, err := DecodeNop(frame)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	})

	t.Run("wrong filler length", func(t *testing.T) {
		_, err := NewNopMsg(make([]byte, 100))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("random filler", func(t *testing.T) {
		msg := RandomNop()
		assert.Len(t, msg.Filler, NopFillerSize)
		assert.Len(t, msg.Encode(), NopSize)
	})
}

func TestSecretLengthMsg(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		msg, err := NewSecretLengthMsg(15)
		require.NoError(t, err)

		frame := msg.Encode()
		assert.Len(t, frame, SecretLengthSize)

		decoded, err := DecodeSecretLength(frame)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	})

	t.Run("bit index out of range", func(t *testing.T) {
		_, err := NewSecretLengthMsg(16)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("decoding bit index >= 16 fails validation", func(t *testing.T) {
		msg, err := NewSecretLengthMsg(0)
		require.NoError(t, err)
		frame := msg.Encode()
		frame[5] = 16

		_, err = DecodeSecretLength(frame)
		assert.ErrorIs(t, err, ErrValidation)
	})
}
