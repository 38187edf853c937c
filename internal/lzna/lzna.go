// SPDX-License-Identifier: MIT
// Source: original_source/src/lzna.rs, ported to plain Go. The reference
// uses SSE2 intrinsics to vectorize the nibble/3-bit adaptive model lookup
// and update; this port keeps the same cumulative-frequency update rule
// (shift-7 exponential adaptation) but walks the probability table with a
// scalar linear scan instead of a SIMD compare-and-count-trailing-zeros.

// Package lzna implements the LZNA adaptive range/arithmetic decoder: two
// interleaved rANS-style bit accumulators driving nibble, 3-bit, and 1-bit
// adaptive models, a match-history preprocessing step, and a state-machine
// quantum loop that chooses between literal emission and one of several
// match-copy shapes (near/far distance, short/medium/long length, and
// direct reuse of one of 4 recent distances).
package lzna

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/oozerr"
)

// nibbleModel is a 4-bit value adaptive rANS model: 17 cumulative
// probability bounds, prob[0]==0 and prob[16]==0x8000 fixed.
type nibbleModel struct {
	prob [17]uint16
}

func newNibbleModel() *nibbleModel {
	return &nibbleModel{prob: [17]uint16{
		0x0000, 0x0800, 0x1000, 0x1800, 0x2000, 0x2800, 0x3000, 0x3800, 0x4000, 0x4800,
		0x5000, 0x5800, 0x6000, 0x6800, 0x7000, 0x7800, 0x8000,
	}}
}

// threeBitModel is a 3-bit value adaptive rANS model: 9 cumulative bounds.
type threeBitModel struct {
	prob [9]uint16
}

func newThreeBitModel() *threeBitModel {
	return &threeBitModel{prob: [9]uint16{
		0x0000, 0x1000, 0x2000, 0x3000, 0x4000, 0x5000, 0x6000, 0x7000, 0x8000,
	}}
}

// bitModel is a single adaptive binary probability, scaled to 1<<14.
type bitModel = uint16

// literalModel is the per-context model for a single output byte.
type literalModel struct {
	upper   [16]*nibbleModel
	lower   [16]*nibbleModel
	nomatch [16]*nibbleModel
}

func newLiteralModel() *literalModel {
	m := &literalModel{}
	for i := 0; i < 16; i++ {
		m.upper[i] = newNibbleModel()
		m.lower[i] = newNibbleModel()
		m.nomatch[i] = newNibbleModel()
	}
	return m
}

// farDistModel models a distance requiring the full near+far decomposition.
type farDistModel struct {
	firstLo *nibbleModel
	firstHi *nibbleModel
	second  [31]bitModel
	third   [2][31]bitModel
}

func newFarDistModel() *farDistModel {
	m := &farDistModel{firstLo: newNibbleModel(), firstHi: newNibbleModel()}
	for i := range m.second {
		m.second[i] = 0x2000
	}
	for i := range m.third {
		for j := range m.third[i] {
			m.third[i][j] = 0x2000
		}
	}
	return m
}

// nearDistModel models a short recently-reused distance class.
type nearDistModel struct {
	first  *nibbleModel
	second [16]bitModel
	third  [2][16]bitModel
}

func newNearDistModel() *nearDistModel {
	m := &nearDistModel{first: newNibbleModel()}
	for i := range m.second {
		m.second[i] = 0x2000
	}
	for i := range m.third {
		for j := range m.third[i] {
			m.third[i][j] = 0x2000
		}
	}
	return m
}

// lowBitsDistModel models the low bits shared by near and far distances.
type lowBitsDistModel struct {
	d [2]*nibbleModel
	v bitModel
}

func newLowBitsDistModel() *lowBitsDistModel {
	return &lowBitsDistModel{d: [2]*nibbleModel{newNibbleModel(), newNibbleModel()}, v: 0x2000}
}

// shortLengthRecentModel models the 3-10 byte copy length for a recently
// reused distance, one 3-bit model per (dst&3) phase.
type shortLengthRecentModel struct {
	a [4]*threeBitModel
}

func newShortLengthRecentModel() *shortLengthRecentModel {
	m := &shortLengthRecentModel{}
	for i := range m.a {
		m.a[i] = newThreeBitModel()
	}
	return m
}

// longLengthModel models lengths beyond the short/medium ranges.
type longLengthModel struct {
	first  [4]*nibbleModel
	second *nibbleModel
	third  *nibbleModel
}

func newLongLengthModel() *longLengthModel {
	m := &longLengthModel{second: newNibbleModel(), third: newNibbleModel()}
	for i := range m.first {
		m.first[i] = newNibbleModel()
	}
	return m
}

// State is the persistent LZNA model/history state, carried across quanta
// by the caller (the framer's restart_decoder bookkeeping).
type State struct {
	matchHistory      [8]uint32
	literal           [4]*literalModel
	isLiteral         [96]bitModel
	typ               [96]*nibbleModel
	shortLengthRecent [4]*shortLengthRecentModel
	longLengthRecent  *longLengthModel
	lowBitsOfDistance [2]*lowBitsDistModel
	shortLength       [12][4]bitModel
	nearDist          [2]*nearDistModel
	mediumLength      *threeBitModel
	longLength        *longLengthModel
	farDistance       *farDistModel
}

// NewState builds a fresh LZNA model state, as at the start of a stream.
func NewState() *State {
	s := &State{
		matchHistory:     [8]uint32{1, 1, 1, 1, 1, 1, 1, 1},
		mediumLength:     newThreeBitModel(),
		longLength:       newLongLengthModel(),
		farDistance:      newFarDistModel(),
		longLengthRecent: newLongLengthModel(),
	}
	for i := range s.isLiteral {
		s.isLiteral[i] = 0x1000
	}
	for i := range s.shortLength {
		for j := range s.shortLength[i] {
			s.shortLength[i][j] = 0x2000
		}
	}
	for i := range s.typ {
		s.typ[i] = newNibbleModel()
	}
	for i := range s.literal {
		s.literal[i] = newLiteralModel()
	}
	for i := range s.shortLengthRecent {
		s.shortLengthRecent[i] = newShortLengthRecentModel()
	}
	for i := range s.lowBitsOfDistance {
		s.lowBitsOfDistance[i] = newLowBitsDistModel()
	}
	for i := range s.nearDist {
		s.nearDist[i] = newNearDistModel()
	}
	return s
}

// preprocessMatchHistory promotes an aged-out recent distance before the
// quantum loop starts, mirroring LznaState::preprocess_match_history.
func (s *State) preprocessMatchHistory() {
	if s.matchHistory[4] < 0xc000 {
		return
	}
	i := 0
	for s.matchHistory[4+i] >= 0xc000 {
		i++
		if i >= 4 {
			s.matchHistory[7] = s.matchHistory[6]
			s.matchHistory[6] = s.matchHistory[5]
			s.matchHistory[5] = s.matchHistory[4]
			s.matchHistory[4] = 4
			return
		}
	}
	t := s.matchHistory[i+4]
	s.matchHistory[i+4] = s.matchHistory[i+3]
	s.matchHistory[i+3] = s.matchHistory[i+2]
	s.matchHistory[i+2] = s.matchHistory[i+1]
	s.matchHistory[4] = t
}

// decoder is the ephemeral per-quantum rANS bit-reader pair plus cursors.
type decoder struct {
	bitsA, bitsB uint64
	input        []byte
	output       []byte
	src          int
	dst          int
}

func newDecoder(input, output []byte, dst int) *decoder {
	return &decoder{input: input, output: output, dst: dst}
}

func (d *decoder) readByte() (byte, error) {
	if d.src >= len(d.input) {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "lzna: input exhausted")
	}
	v := d.input[d.src]
	d.src++
	return v, nil
}

func (d *decoder) read4() (uint32, error) {
	if d.src+4 > len(d.input) {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "lzna: input exhausted reading u32")
	}
	v := uint32(d.input[d.src]) | uint32(d.input[d.src+1])<<8 | uint32(d.input[d.src+2])<<16 | uint32(d.input[d.src+3])<<24
	d.src += 4
	return v, nil
}

func (d *decoder) initBits() (uint64, error) {
	db, err := d.readByte()
	if err != nil {
		return 0, err
	}
	n := int(db) >> 4
	if n > 8 {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "lzna: bad bit-stream nibble count %d", n)
	}
	var v uint64
	for i := 0; i < n; i++ {
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		v = (v << 8) | uint64(b)
	}
	return (v << 4) | uint64(db&0xF), nil
}

func (d *decoder) init() error {
	a, err := d.initBits()
	if err != nil {
		return err
	}
	d.bitsA = a
	b, err := d.initBits()
	if err != nil {
		return err
	}
	d.bitsB = b
	return nil
}

func (d *decoder) write(v byte) {
	d.output[d.dst] = v
	d.dst++
}

func (d *decoder) copyOffset(dist, length int) error {
	src := d.dst - dist
	if src < 0 {
		return errors.Wrapf(oozerr.ErrOutOfBounds, "lzna: copy distance %d exceeds output position %d", dist, d.dst)
	}
	if dist == 1 {
		v := d.output[src]
		for i := 0; i < length; i++ {
			d.output[d.dst+i] = v
		}
	} else if dist > length {
		copy(d.output[d.dst:d.dst+length], d.output[src:src+length])
	} else {
		for i := 0; i < length; i += dist {
			end := i + dist
			if end > length {
				end = length
			}
			copy(d.output[d.dst+i:d.dst+end], d.output[src+i:src+end])
		}
	}
	d.dst += length
	return nil
}

func (d *decoder) renormalize() error {
	x := d.bitsA
	if x < 0x80000000 {
		v, err := d.read4()
		if err != nil {
			return err
		}
		x = (x << 32) | uint64(v)
	}
	d.bitsA = d.bitsB
	d.bitsB = x
	return nil
}

func (d *decoder) readBool() (bool, error) {
	r := d.bitsA & 1
	d.bitsA >>= 1
	if err := d.renormalize(); err != nil {
		return false, err
	}
	return r == 1, nil
}

func (d *decoder) readNBits(bits int) (int, error) {
	rv := d.bitsA & ((1 << uint(bits)) - 1)
	d.bitsA >>= uint(bits)
	if err := d.renormalize(); err != nil {
		return 0, err
	}
	return int(rv), nil
}

// readNibble decodes a 4-bit value through an adaptive model, scanning the
// 16 cumulative bounds linearly (the reference vectorizes this scan).
func (d *decoder) readNibble(model *nibbleModel) (int, error) {
	x := d.bitsA
	low := uint16(x & 0x7FFF)
	bitindex := 1
	for bitindex < 16 && model.prob[bitindex] <= low {
		bitindex++
	}
	start := uint64(model.prob[bitindex-1])
	end := uint64(model.prob[bitindex])

	for i := 1; i < bitindex; i++ {
		model.prob[i] -= model.prob[i] >> 7
	}
	for i := bitindex; i < 16; i++ {
		model.prob[i] += (0x8000 - model.prob[i]) >> 7
	}

	d.bitsA = (end-start)*(x>>15) + (x & 0x7FFF) - start
	if err := d.renormalize(); err != nil {
		return 0, err
	}
	return bitindex - 1, nil
}

// readThreeBits decodes a 3-bit value through an adaptive model.
func (d *decoder) readThreeBits(model *threeBitModel) (int, error) {
	x := d.bitsA
	low := uint16(x & 0x7FFF)
	bitindex := 1
	for bitindex < 8 && model.prob[bitindex] <= low {
		bitindex++
	}
	start := uint64(model.prob[bitindex-1])
	end := uint64(model.prob[bitindex])

	for i := 1; i < bitindex; i++ {
		model.prob[i] -= model.prob[i] >> 7
	}
	for i := bitindex; i < 8; i++ {
		model.prob[i] += (0x8000 - model.prob[i]) >> 7
	}

	d.bitsA = (end-start)*(x>>15) + (x & 0x7FFF) - start
	if err := d.renormalize(); err != nil {
		return 0, err
	}
	return bitindex - 1, nil
}

// readOneBit decodes a single adaptively-modeled bit at nbits of
// precision, adapting model by 1/2^shift.
func (d *decoder) readOneBit(model *bitModel, nbits, shift uint) (int, error) {
	magn := uint64(1) << nbits
	q := uint64(*model) * (d.bitsA >> nbits)
	if (d.bitsA & (magn - 1)) >= uint64(*model) {
		d.bitsA -= q + uint64(*model)
		*model -= *model >> shift
		if err := d.renormalize(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	d.bitsA = (d.bitsA & (magn - 1)) + q
	*model += bitModel((magn - uint64(*model)) >> shift)
	if err := d.renormalize(); err != nil {
		return 0, err
	}
	return 0, nil
}

func (d *decoder) readFarDistance(lut *State) (int, error) {
	n, err := d.readNibble(lut.farDistance.firstLo)
	if err != nil {
		return 0, err
	}
	if n >= 15 {
		h, err := d.readNibble(lut.farDistance.firstHi)
		if err != nil {
			return 0, err
		}
		n = 15 + h
	}
	hi := 0
	if n != 0 {
		b, err := d.readOneBit(&lut.farDistance.second[n-1], 14, 6)
		if err != nil {
			return 0, err
		}
		hi = b + 2
		if n != 1 {
			b, err := d.readOneBit(&lut.farDistance.third[hi-2][n-1], 14, 6)
			if err != nil {
				return 0, err
			}
			hi = (hi << 1) + b
			if n != 2 {
				nb, err := d.readNBits(n - 2)
				if err != nil {
					return 0, err
				}
				hi = (hi << uint(n-2)) + nb
			}
		}
		hi--
	}
	lowIdx := 0
	if hi == 0 {
		lowIdx = 1
	}
	lutd := lut.lowBitsOfDistance[lowIdx]
	lowBit, err := d.readOneBit(&lutd.v, 14, 6)
	if err != nil {
		return 0, err
	}
	lowNibble, err := d.readNibble(lutd.d[lowBit])
	if err != nil {
		return 0, err
	}
	return lowBit + 2*lowNibble + 32*hi + 1, nil
}

func (d *decoder) readNearDistance(lut *State, idx int) (int, error) {
	model := lut.nearDist[idx]
	nb, err := d.readNibble(model.first)
	if err != nil {
		return 0, err
	}
	hi := 0
	if nb != 0 {
		b, err := d.readOneBit(&model.second[nb-1], 14, 6)
		if err != nil {
			return 0, err
		}
		hi = b + 2
		if nb != 1 {
			b, err := d.readOneBit(&model.third[hi-2][nb-1], 14, 6)
			if err != nil {
				return 0, err
			}
			hi = (hi << 1) + b
			if nb != 2 {
				n, err := d.readNBits(nb - 2)
				if err != nil {
					return 0, err
				}
				hi = (hi << uint(nb-2)) + n
			}
		}
		hi--
	}
	lowIdx := 0
	if hi == 0 {
		lowIdx = 1
	}
	lutd := lut.lowBitsOfDistance[lowIdx]
	lowBit, err := d.readOneBit(&lutd.v, 14, 6)
	if err != nil {
		return 0, err
	}
	lowNibble, err := d.readNibble(lutd.d[lowBit])
	if err != nil {
		return 0, err
	}
	return lowBit + 2*lowNibble + 32*hi + 1, nil
}

func (d *decoder) readLength(model *longLengthModel) (int, error) {
	length, err := d.readNibble(model.first[d.dst&3])
	if err != nil {
		return 0, err
	}
	if length >= 12 {
		b, err := d.readNibble(model.second)
		if err != nil {
			return 0, err
		}
		if b >= 15 {
			b2, err := d.readNibble(model.third)
			if err != nil {
				return 0, err
			}
			b = 15 + b2
		}
		n, base := 0, 0
		if b != 0 {
			n = (b - 1) >> 1
			base = ((((b - 1) & 1) + 2) << uint(n)) - 1
		}
		extra, err := d.readNBits(n)
		if err != nil {
			return 0, err
		}
		length += (extra + base) * 4
	}
	return length, nil
}

// DecodeQuantum decodes one LZNA quantum from input into output[dst:],
// stopping 8 bytes before the end of output (the final 8 bytes hold the
// two renormalized bit-accumulator tails, mirroring Lzna::decode_quantum).
// lut carries model/history state across quanta within one stream.
func DecodeQuantum(lut *State, input, output []byte, dst int) (int, error) {
	if len(output) < 8 {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "lzna: output too small for trailer")
	}
	lut.preprocessMatchHistory()
	d := newDecoder(input, output, dst)
	if err := d.init(); err != nil {
		return 0, err
	}
	dist := int(lut.matchHistory[4])
	state := 5
	dstEnd := len(output) - 8

	if d.dst == 0 {
		boolBit, err := d.readBool()
		if err != nil {
			return 0, err
		}
		var x int
		if boolBit {
			x = 0
		} else {
			model := lut.literal[0]
			x, err = d.readNibble(model.upper[0])
			if err != nil {
				return 0, err
			}
			var low int
			if x != 0 {
				low, err = d.readNibble(model.nomatch[x])
			} else {
				low, err = d.readNibble(model.lower[0])
			}
			if err != nil {
				return 0, err
			}
			x = (x << 4) + low
		}
		d.write(byte(x))
	}

	stateAfterLiteral := [12]int{0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 4, 5}

	for d.dst < dstEnd {
		matchVal := d.output[d.dst-dist]

		isLit, err := d.readOneBit(&lut.isLiteral[(d.dst&7)+8*state], 13, 5)
		if err != nil {
			return 0, err
		}
		if isLit != 0 {
			x, err := d.readNibble(lut.typ[(d.dst&7)+8*state])
			if err != nil {
				return 0, err
			}
			switch {
			case x == 0:
				d.write(matchVal)
				if state >= 7 {
					state = 11
				} else {
					state = 9
				}
			case x < 4:
				switch x {
				case 1:
					b, err := d.readOneBit(&lut.shortLength[state][d.dst&3], 14, 4)
					if err != nil {
						return 0, err
					}
					length := 3 + b
					dist, err = d.readNearDistance(lut, length-3)
					if err != nil {
						return 0, err
					}
					if err := d.copyOffset(dist, length); err != nil {
						return 0, err
					}
				case 2:
					b, err := d.readThreeBits(lut.mediumLength)
					if err != nil {
						return 0, err
					}
					length := 5 + b
					dist, err = d.readFarDistance(lut)
					if err != nil {
						return 0, err
					}
					if err := d.copyOffset(dist, length); err != nil {
						return 0, err
					}
				default:
					l, err := d.readLength(lut.longLength)
					if err != nil {
						return 0, err
					}
					length := l + 13
					dist, err = d.readFarDistance(lut)
					if err != nil {
						return 0, err
					}
					if err := d.copyOffset(dist, length); err != nil {
						return 0, err
					}
				}
				if state >= 7 {
					state = 10
				} else {
					state = 7
				}
				lut.matchHistory[7] = lut.matchHistory[6]
				lut.matchHistory[6] = lut.matchHistory[5]
				lut.matchHistory[5] = lut.matchHistory[4]
				lut.matchHistory[4] = uint32(dist)
			case x >= 12:
				idx := x - 12
				dist = int(lut.matchHistory[4+idx])
				lut.matchHistory[4+idx] = lut.matchHistory[3+idx]
				lut.matchHistory[3+idx] = lut.matchHistory[2+idx]
				lut.matchHistory[2+idx] = lut.matchHistory[1+idx]
				lut.matchHistory[4] = uint32(dist)
				if err := d.copyOffset(dist, 2); err != nil {
					return 0, err
				}
				if state >= 7 {
					state = 11
				} else {
					state = 8
				}
			default:
				idx := (x - 4) >> 1
				dist = int(lut.matchHistory[4+idx])
				lut.matchHistory[4+idx] = lut.matchHistory[3+idx]
				lut.matchHistory[3+idx] = lut.matchHistory[2+idx]
				lut.matchHistory[2+idx] = lut.matchHistory[1+idx]
				lut.matchHistory[4] = uint32(dist)
				if x&1 == 1 {
					l, err := d.readLength(lut.longLengthRecent)
					if err != nil {
						return 0, err
					}
					if err := d.copyOffset(dist, 11+l); err != nil {
						return 0, err
					}
				} else {
					b, err := d.readThreeBits(lut.shortLengthRecent[idx].a[d.dst&3])
					if err != nil {
						return 0, err
					}
					if err := d.copyOffset(dist, 3+b); err != nil {
						return 0, err
					}
				}
				if state >= 7 {
					state = 11
				} else {
					state = 8
				}
			}
		} else {
			model := lut.literal[d.dst&3]
			ctx := int(matchVal) >> 4
			x, err := d.readNibble(model.upper[ctx])
			if err != nil {
				return 0, err
			}
			var low int
			if ctx != x {
				low, err = d.readNibble(model.nomatch[x])
			} else {
				low, err = d.readNibble(model.lower[int(matchVal)&0xF])
			}
			if err != nil {
				return 0, err
			}
			d.write(byte((x << 4) + low))
			state = stateAfterLiteral[state]
		}
	}

	if d.dst != dstEnd {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "lzna: quantum ended at %d, want %d", d.dst, dstEnd)
	}

	tailA := int32(d.bitsA)
	tailB := int32(d.bitsB)
	output[d.dst] = byte(tailA)
	output[d.dst+1] = byte(tailA >> 8)
	output[d.dst+2] = byte(tailA >> 16)
	output[d.dst+3] = byte(tailA >> 24)
	output[d.dst+4] = byte(tailB)
	output[d.dst+5] = byte(tailB >> 8)
	output[d.dst+6] = byte(tailB >> 16)
	output[d.dst+7] = byte(tailB >> 24)

	return d.src, nil
}
