// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserIncomplete(t *testing.T) {
	t.Run("empty buffer", func(t *testing.T) {
		parser := NewParser()
		msg, err := parser.Parse()
		assert.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("partial header", func(t *testing.T) {
		parser := NewParser()
		parser.AppendData([]byte{0, 0, 0})
		msg, err := parser.Parse()
		assert.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("partial frame", func(t *testing.T) {
		parser := NewParser()
		secret, err := NewSecretMsg(2, 3)
		require.NoError(t, err)
		frame := secret.Encode()

		parser.AppendData(frame[:SecretSize-1])
		msg, err := parser.Parse()
		assert.NoError(t, err)
		assert.Nil(t, msg)

		// Completing the frame yields the message.
		parser.AppendData(frame[SecretSize-1:])
		msg, err = parser.Parse()
		require.NoError(t, err)
		assert.Equal(t, secret, msg)
	})
}

func TestParserManyFramesInOneRead(t *testing.T) {
	parser := NewParser()

	mode, err := NewModeMsg(FlowModulation, 10000, 100000)
	require.NoError(t, err)
	secret, err := NewSecretMsg(0, 1)
	require.NoError(t, err)
	nop := RandomNop()

	var data []byte
	data = append(data, mode.Encode()...)
	data = append(data, nop.Encode()...)
	data = append(data, secret.Encode()...)
	data = append(data, NewExitMsg().Encode()...)
	assert.Nil(t, parser.AppendData(data))

	want := []Msg{mode, nop, secret, NewExitMsg()}
	for _, expected := range want {
		msg, err := parser.Parse()
		require.NoError(t, err)
		assert.Equal(t, expected, msg)
	}

	// Buffer exhausted.
	msg, err := parser.Parse()
	assert.NoError(t, err)
	assert.Nil(t, msg)
}

func TestParserByteAtATime(t *testing.T) {
	parser := NewParser()
	length, err := NewSecretLengthMsg(9)
	require.NoError(t, err)

	for _, b := range length.Encode() {
		parser.AppendData([]byte{b})
	}
	msg, err := parser.Parse()
	require.NoError(t, err)
	assert.Equal(t, length, msg)
}

func TestParserMalformed(t *testing.T) {
	t.Run("unknown type tag", func(t *testing.T) {
		parser := NewParser()
		parser.AppendData([]byte{0, 0, 0, 5, 99})
		_, err := parser.Parse()
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("declared length below header size", func(t *testing.T) {
		parser := NewParser()
		parser.AppendData([]byte{0, 0, 0, 2, 0})
		_, err := parser.Parse()
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("declared length above buffer capacity", func(t *testing.T) {
		parser := NewParserSize(64)
		parser.AppendData([]byte{0, 1, 0, 0, 3})
		_, err := parser.Parse()
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})
}

func TestParserLeftover(t *testing.T) {
	parser := NewParserSize(8)
	leftover := parser.AppendData(make([]byte, 10))
	assert.Len(t, leftover, 2)
}
