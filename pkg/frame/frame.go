// SPDX-License-Identifier: Apache-2.0

// Package frame recovers message boundaries from a byte stream. Each
// message travels as an envelope: a uvarint byte-length prefix followed by
// that many payload bytes. The framer accepts chunks of any size and in any
// split, including a prefix broken across chunks.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	MalformedPrefixErr = errors.New("malformed length prefix")
	OversizeErr        = errors.New("declared message length exceeds maximum")
)

// DefaultMaxMessageSize bounds the declared length of a single message. A
// peer declaring more than this is treated as corrupt rather than a reason
// to allocate without limit.
const DefaultMaxMessageSize = 256 << 20

// Framer accumulates inbound chunks and yields complete message payloads in
// arrival order. It performs no content validation. Not safe for concurrent
// use; the engine serializes access.
type Framer struct {
	buf []byte
	max uint64
}

// New returns a framer with DefaultMaxMessageSize.
func New() *Framer {
	return NewWithMax(DefaultMaxMessageSize)
}

// NewWithMax returns a framer rejecting messages whose declared length
// exceeds max.
func NewWithMax(max uint64) *Framer {
	return &Framer{
		max: max,
	}
}

// Append adds a chunk to the internal buffer. Empty chunks are allowed.
func (f *Framer) Append(chunk []byte) {
	f.buf = append(f.buf, chunk...)
}

// Next removes and returns the next complete message payload, copied out of
// the internal buffer with the prefix stripped. It returns (nil, nil) when
// no complete message is buffered yet and must be called repeatedly after
// each Append, because one chunk may complete zero, one or many messages.
func (f *Framer) Next() ([]byte, error) {
	size, n := binary.Uvarint(f.buf)
	if n == 0 {
		if len(f.buf) >= binary.MaxVarintLen64 {
			return nil, errors.Join(MalformedPrefixErr, fmt.Errorf("no terminator in %d bytes", len(f.buf)))
		}
		return nil, nil
	}
	if n < 0 {
		return nil, errors.Join(MalformedPrefixErr, errors.New("value overflows 64 bits"))
	}
	if size > f.max {
		return nil, errors.Join(OversizeErr, fmt.Errorf("declared %d bytes, maximum %d", size, f.max))
	}
	if uint64(len(f.buf)-n) < size {
		return nil, nil
	}
	msg := make([]byte, size)
	copy(msg, f.buf[n:uint64(n)+size])
	f.buf = append(f.buf[:0], f.buf[uint64(n)+size:]...)
	return msg, nil
}

// Buffered returns the number of bytes awaiting a complete message.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// AppendEnvelope appends the wire form of msg (uvarint length prefix plus
// msg itself) to dst and returns the extended slice.
func AppendEnvelope(dst []byte, msg []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(msg)))
	return append(dst, msg...)
}
