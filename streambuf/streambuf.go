// SPDX-License-Identifier: GPL-3.0-or-later

// Package streambuf implements a bounded FIFO byte buffer with
// partial append and exact-length peek/pop, used to reassemble
// protocol frames from socket reads.
package streambuf

import "errors"

// ErrOutOfRange indicates a peek or pop beyond the stored length.
var ErrOutOfRange = errors.New("streambuf: not enough buffered data")

// Buffer is a bounded, order-preserving byte accumulator.
//
// The zero value is not ready to use; construct using [New]. A
// [*Buffer] is owned by a single goroutine and is not safe for
// concurrent use.
type Buffer struct {
	// chunks holds the stored data in arrival order.
	chunks [][]byte

	// maxSize is the fixed capacity in bytes.
	maxSize int

	// size is the currently stored byte count.
	size int
}

// New creates a [*Buffer] with the given capacity in bytes.
func New(maxSize int) *Buffer {
	return &Buffer{maxSize: maxSize}
}

// Append stores as much of data as capacity allows, preserving
// arrival order, and returns the unstored suffix, or nil if all of
// it fit. The data is copied, so the caller may reuse its slice.
func (b *Buffer) Append(data []byte) []byte {
	free := b.maxSize - b.size
	if free <= 0 {
		return data
	}

	if len(data) <= free {
		b.chunks = append(b.chunks, append([]byte{}, data...))
		b.size += len(data)
		return nil
	}

	b.chunks = append(b.chunks, append([]byte{}, data[:free]...))
	b.size += free
	return data[free:]
}

// Peek returns the first length stored bytes without removing them.
//
// Returns [ErrOutOfRange] when fewer than length bytes are stored.
func (b *Buffer) Peek(length int) ([]byte, error) {
	if length > b.size {
		return nil, ErrOutOfRange
	}

	out := make([]byte, 0, length)
	missing := length
	for _, chunk := range b.chunks {
		if len(chunk) >= missing {
			out = append(out, chunk[:missing]...)
			break
		}
		out = append(out, chunk...)
		missing -= len(chunk)
	}
	return out, nil
}

// Pop returns and removes the first length stored bytes, splitting
// an internal chunk at the boundary when needed.
//
// Returns [ErrOutOfRange] when fewer than length bytes are stored.
func (b *Buffer) Pop(length int) ([]byte, error) {
	if length > b.size {
		return nil, ErrOutOfRange
	}

	out := make([]byte, 0, length)
	missing := length
	for missing > 0 {
		chunk := b.chunks[0]
		if len(chunk) > missing {
			out = append(out, chunk[:missing]...)
			b.chunks[0] = chunk[missing:]
			missing = 0
			break
		}
		out = append(out, chunk...)
		missing -= len(chunk)
		b.chunks = b.chunks[1:]
	}

	b.size -= length
	return out, nil
}

// Len returns the stored byte count.
func (b *Buffer) Len() int {
	return b.size
}
