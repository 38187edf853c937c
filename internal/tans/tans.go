// SPDX-License-Identifier: MIT
// Source: original_source/src/tans.rs, ported to plain Go. The slot-spread
// step (how a symbol's weight maps onto LUT positions) is simplified from
// the upstream's four-interleaved-quadrant carry-propagated assignment to
// a sequential-by-symbol spread; see DESIGN.md. The per-slot state-math
// (x in [w,2w), bits_x = L_bits-floor(log2 x), w = (x<<bits_x)-L) is the
// standard tANS table construction and is preserved exactly.

// Package tans implements the table-driven asymmetric numeral system
// decoder: table construction from a sparse weight list, and the 5-state
// interleaved forward/backward decode loop.
package tans

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/bitreader"
	"github.com/go-ooz/ooz/internal/huffman"
	"github.com/go-ooz/ooz/internal/oozerr"
)

// Data is the sparse symbol/weight table recovered from the stream header:
// A holds weight-1 symbols, B holds packed (symbol<<16)|weight for weight>=2.
type Data struct {
	A []byte
	B []uint32
}

// LutEnt is one tANS table slot.
type LutEnt struct {
	X      uint32
	BitsX  uint8
	Symbol uint8
	W      uint16
}

// DecodeTable reads a Data table from br, in either of the two dialects
// signaled by one leading bit.
func DecodeTable(br *bitreader.BitReader, lBits uint32) (*Data, error) {
	L := uint32(1) << lBits
	if err := br.Refill(); err != nil {
		return nil, err
	}
	adaptive := br.ReadBitNoRefill() != 0
	data := &Data{}

	if adaptive {
		br2 := bitreader.NewBitReader2FromBitReader(br)
		avg := int32(6)
		sym := uint32(0)
		var total uint32
		for total < L && sym < 256 {
			var residue [1]byte
			if err := huffman.DecodeGolombRiceLengths(residue[:], br2); err != nil {
				return nil, err
			}
			v := int32(residue[0])
			zz := (^(v & 1) + 1) ^ (v >> 1)
			weight := zz + (avg >> 2)
			if weight < 1 {
				weight = 1
			}
			if total+uint32(weight) > L {
				weight = int32(L - total)
			}
			total += uint32(weight)
			if weight == 1 {
				data.A = append(data.A, byte(sym))
			} else {
				data.B = append(data.B, (sym<<16)|uint32(weight))
			}
			avg += zz*4 - (avg >> 2)
			sym++
		}
		return data, nil
	}

	count := br.ReadBitsNoRefill(8) + 1
	maxDeltaBits := br.ReadBitsNoRefill(4) + 1
	var prevSym uint32
	var total uint32
	for i := uint32(0); i < count; i++ {
		if err := br.Refill(); err != nil {
			return nil, err
		}
		delta := br.ReadBitsNoRefillZero(8)
		sym := prevSym + delta
		weight := br.ReadBitsNoRefillZero(maxDeltaBits) + 1
		total += weight
		if weight == 1 {
			data.A = append(data.A, byte(sym))
		} else {
			data.B = append(data.B, (sym<<16)|weight)
		}
		prevSym = sym + 1
	}
	if total < L {
		data.B = append(data.B, (prevSym<<16)|(L-total))
	}
	return data, nil
}

// InitLut builds the L = 2^lBits slot table from a Data weight list.
func InitLut(data *Data, lBits uint32) ([]LutEnt, error) {
	L := uint32(1) << lBits
	type symW struct {
		sym uint32
		w   uint32
	}
	syms := make([]symW, 0, len(data.A)+len(data.B))
	for _, s := range data.A {
		syms = append(syms, symW{uint32(s), 1})
	}
	for _, packed := range data.B {
		syms = append(syms, symW{packed >> 16, packed & 0xFFFF})
	}

	var total uint32
	for _, sw := range syms {
		total += sw.w
	}
	if total != L {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "tans: weight sum %d != %d", total, L)
	}

	lut := make([]LutEnt, L)
	var cum uint32
	for _, sw := range syms {
		w := sw.w
		for i := uint32(0); i < w; i++ {
			x := w + i
			nbits := uint8(lBits) - uint8(bits.Len32(x)-1)
			mask := uint32(1)<<nbits - 1
			base := uint16((x << nbits) - L)
			lut[cum+i] = LutEnt{X: mask, BitsX: nbits, Symbol: byte(sw.sym), W: base}
		}
		cum += w
	}
	return lut, nil
}

// Decoder runs the 5-state interleaved forward/backward decode loop.
type Decoder struct {
	lut          []LutEnt
	bitsF, bitsB uint32
	nF, nB       uint32
	ptrF, ptrB   int
	buf          []byte
	state        [5]uint32
}

// NewDecoder creates a decoder over buf reading lut-indexed symbols; the
// 5 initial states are 8 bits each, taken alternately from the front of
// buf (states 0, 2, 4) and from its back (states 1, 3).
func NewDecoder(lut []LutEnt, buf []byte) (*Decoder, error) {
	if len(buf) < 8 {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "tans: source too short")
	}
	d := &Decoder{lut: lut, buf: buf, ptrF: 0, ptrB: len(buf)}
	d.refillForward()
	d.refillBackward()
	for i := 0; i < 5; i++ {
		if i%2 == 0 {
			d.state[i] = d.takeForward(8)
		} else {
			d.state[i] = d.takeBackward(8)
		}
	}
	return d, nil
}

func (d *Decoder) refillForward() {
	for d.nF <= 24 && d.ptrF < len(d.buf) {
		d.bitsF |= uint32(d.buf[d.ptrF]) << d.nF
		d.ptrF++
		d.nF += 8
	}
}

func (d *Decoder) refillBackward() {
	for d.nB <= 24 && d.ptrB > 0 {
		d.ptrB--
		d.bitsB |= uint32(d.buf[d.ptrB]) << d.nB
		d.nB += 8
	}
}

func (d *Decoder) takeForward(n uint32) uint32 {
	v := d.bitsF & (uint32(1)<<n - 1)
	d.bitsF >>= n
	if d.nF >= n {
		d.nF -= n
	} else {
		d.nF = 0
	}
	return v
}

func (d *Decoder) takeBackward(n uint32) uint32 {
	v := d.bitsB & (uint32(1)<<n - 1)
	d.bitsB >>= n
	if d.nB >= n {
		d.nB -= n
	} else {
		d.nB = 0
	}
	return v
}

// Decode fills dst[:len(dst)-5] using the 5-state round-robin loop, then
// writes the 5 residual low-byte states as the trailing payload, matching
// spec.md §8 invariant 5.
func (d *Decoder) Decode(dst []byte) error {
	if len(dst) < 5 {
		return errors.Wrapf(oozerr.ErrMalformedStream, "tans: destination too short")
	}
	body := dst[:len(dst)-5]
	for i := range body {
		slot := i % 10
		stateIdx := slot % 5
		forward := slot < 5
		d.refillForward()
		d.refillBackward()

		e := d.lut[d.state[stateIdx]]
		body[i] = e.Symbol
		var bits uint32
		if forward {
			bits = d.takeForward(uint32(e.BitsX))
		} else {
			bits = d.takeBackward(uint32(e.BitsX))
		}
		d.state[stateIdx] = bits + uint32(e.W)
	}
	for i := 0; i < 5; i++ {
		if d.state[i]&^0xFF != 0 {
			return errors.Wrapf(oozerr.ErrMalformedStream, "tans: residual state %d out of byte range", i)
		}
		dst[len(dst)-5+i] = byte(d.state[i])
	}
	return nil
}
