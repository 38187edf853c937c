// SPDX-License-Identifier: MIT
// Source: original_source/src/huffman.rs (HuffReader::decode_bytes), ported
// to a byte-cursor style rather than the upstream's raw Core pointer
// arithmetic; the three-stream interleave and bit-reversed LUT lookup are
// preserved.

package huffman

import "github.com/pkg/errors"

// cursor is one of the three interleaved bit-accumulator streams: two run
// forward (src, src_mid), one runs backward (src_end) within the same
// region as src_mid, meeting it in the middle.
type cursor struct {
	buf  []byte
	pos  int
	dir  int // +1 forward, -1 backward
	bits uint32
	n    uint32
}

func newForwardCursor(buf []byte) *cursor { return &cursor{buf: buf, pos: 0, dir: 1} }
func newBackwardCursor(buf []byte) *cursor {
	return &cursor{buf: buf, pos: len(buf), dir: -1}
}

func (c *cursor) refill() {
	for c.n < 11 {
		if c.dir > 0 {
			if c.pos >= len(c.buf) {
				return
			}
			c.bits |= uint32(c.buf[c.pos]) << c.n
			c.pos++
		} else {
			if c.pos <= 0 {
				return
			}
			c.pos--
			c.bits |= uint32(c.buf[c.pos]) << c.n
		}
		c.n += 8
	}
}

func (c *cursor) decode(lut *RevLut) (byte, error) {
	c.refill()
	idx := c.bits & 0x7FF
	length := lut.Bits2Len[idx]
	if length == 0 {
		return 0, errors.New("huffman: zero-length code in stream")
	}
	sym := lut.Bits2Sym[idx]
	c.bits >>= length
	if c.n < uint32(length) {
		return 0, errors.New("huffman: stream exhausted mid-code")
	}
	c.n -= uint32(length)
	return sym, nil
}

// DecodeBytes decodes len(dst) symbols from src, split at splitMid into
// region A ([0,splitMid), consumed forward) and region B ([splitMid,len),
// consumed from both ends). Symbols are emitted round-robin: src, src_end,
// src_mid, repeating, matching the reference's six-byte inner loop
// collapsed to one byte per iteration.
func DecodeBytes(src []byte, splitMid int, dst []byte, lut *RevLut) error {
	if splitMid < 0 || splitMid > len(src) {
		return errors.New("huffman: invalid split point")
	}
	a := newForwardCursor(src[:splitMid])
	region := src[splitMid:]
	b := newForwardCursor(region)
	c := newBackwardCursor(region)

	order := [3]*cursor{a, c, b}
	for i := range dst {
		sym, err := order[i%3].decode(lut)
		if err != nil {
			return err
		}
		dst[i] = sym
	}

	if a.pos != splitMid {
		return errors.New("huffman: region A not fully consumed")
	}
	if diff := b.pos - c.pos; diff < -1 || diff > 1 {
		return errors.New("huffman: forward/backward streams did not meet")
	}
	return nil
}
