// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/secnot/leaky-diode/streambuf"
)

// DefaultBufferSize is the default parser buffer capacity in bytes.
const DefaultBufferSize = 8192

// Parser incrementally reassembles frames from raw socket bytes.
//
// One recv may deliver zero, one, or many frames, so [Parser.Parse]
// is designed to be called in a loop until it reports that no
// complete frame is buffered.
//
// The zero value is not ready to use; construct using [NewParser]
// or [NewParserSize].
type Parser struct {
	// buf accumulates not-yet-complete frames.
	buf *streambuf.Buffer

	// capacity is the buffer capacity in bytes.
	capacity int
}

// NewParser creates a [*Parser] with [DefaultBufferSize] capacity.
func NewParser() *Parser {
	return NewParserSize(DefaultBufferSize)
}

// NewParserSize creates a [*Parser] with the given buffer capacity.
func NewParserSize(bufferSize int) *Parser {
	return &Parser{
		buf:      streambuf.New(bufferSize),
		capacity: bufferSize,
	}
}

// AppendData adds raw socket bytes to the parser buffer and returns
// the unstored leftover, or nil when everything fit.
func (p *Parser) AppendData(data []byte) []byte {
	return p.buf.Append(data)
}

// Parse returns the next complete frame in the buffer.
//
// Returns (nil, nil) without consuming anything when fewer than a
// header's worth of bytes, or fewer than the declared frame length,
// are buffered. Otherwise it pops exactly the declared length and
// decodes it into the matching [Msg] variant.
//
// Returns [ErrMalformedFrame] for an unknown type tag or for a
// declared length that cannot be a frame (below the header size or
// above the buffer capacity).
func (p *Parser) Parse() (Msg, error) {
	if p.buf.Len() < headerSize {
		return nil, nil
	}

	header, err := p.buf.Peek(headerSize)
	if err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint32(header[0:4]))
	typ := MsgType(header[4])

	// A length that can never complete would stall the connection
	// forever; reject it as malformed instead.
	if length < headerSize || length > p.capacity {
		return nil, fmt.Errorf("%w: declared length %d", ErrMalformedFrame, length)
	}

	if p.buf.Len() < length {
		return nil, nil
	}

	frame, err := p.buf.Pop(length)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeMode:
		return DecodeMode(frame)
	case TypeExit:
		return DecodeExit(frame)
	case TypeSecret:
		return DecodeSecret(frame)
	case TypeNop:
		return DecodeNop(frame)
	case TypeSecretLength:
		return DecodeSecretLength(frame)
	default:
		return nil, fmt.Errorf("%w: unknown type tag %d", ErrMalformedFrame, typ)
	}
}
