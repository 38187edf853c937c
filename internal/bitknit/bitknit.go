// SPDX-License-Identifier: MIT
// Source: original_source/src/bitknit.rs, ported to plain Go. The reference
// parameterizes its adaptive model over const generics (Base<F, A, L>); Go
// has no const generics, so the three concrete shapes (Literal,
// DistanceLsb, DistanceBits) share one dynamically-sized model type
// instead, constructed with each shape's table sizes and shift.

// Package bitknit implements the Bitknit mixed arithmetic coder: a single
// adaptive cumulative-frequency model shared by literal and distance
// symbols, two interleaved 32-bit bit accumulators, and an 8-slot
// recent-distance cache addressed through a packed 3-bit-per-slot
// rotation mask.
package bitknit

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/oozerr"
)

// model is one adaptive cumulative-frequency table: A (= F+1) cumulative
// bounds over F symbols, with an L-entry direct lookup table mapping the top bits
// of the normalized range to a starting symbol guess.
type model struct {
	a             []uint16
	freq          []uint16
	adaptInterval uint16
	lookup        []uint16
	shift         uint
	fInc          uint16
}

func newModel(f, a, l int, shift uint) *model {
	m := &model{
		a:      make([]uint16, a),
		freq:   make([]uint16, f),
		lookup: make([]uint16, l),
		shift:  shift,
		fInc:   uint16(1026 - a),
	}
	if shift == 6 {
		for i := 0; i < a; i++ {
			if i < 264 {
				m.a[i] = uint16((0x8000 - 300 + 264) * i / 264)
			} else {
				m.a[i] = uint16((0x8000 - 300) + i)
			}
		}
	} else {
		for i := 0; i < a; i++ {
			m.a[i] = uint16(0x8000 * i / f)
		}
	}
	for i := range m.freq {
		m.freq[i] = 1
	}
	m.adaptInterval = 1024
	m.fillLut()
	return m
}

func newLiteralModel() *model      { return newModel(300, 301, 516, 6) }
func newDistanceLsbModel() *model  { return newModel(40, 41, 68, 9) }
func newDistanceBitsModel() *model { return newModel(21, 22, 68, 9) }

func (m *model) fillLut() {
	p := 0
	for i, v := range m.a[1:] {
		pEnd := int((v-1)>>m.shift) + 1
		for j := p; j <= pEnd; j += 4 {
			for k := j; k < j+4 && k < len(m.lookup); k++ {
				m.lookup[k] = uint16(i)
			}
		}
		p = pEnd
	}
}

func (m *model) adapt(sym int) {
	m.adaptInterval = 1024
	m.freq[sym] += m.fInc

	var sum uint32
	for i, f := range m.freq {
		sum += uint32(f)
		av := uint32(m.a[i+1])
		m.a[i+1] = uint16(av + (sum-av)>>1)
	}
	for i := range m.freq {
		m.freq[i] = 1
	}
	m.fillLut()
}

func (m *model) lookup16(bits *uint32) int {
	masked := int(*bits & 0x7FFF)
	sym := int(m.lookup[masked>>m.shift])
	if masked > int(m.a[sym+1]) {
		sym++
	}
	for masked >= int(m.a[sym+1]) {
		sym++
	}
	s := uint32(m.a[sym])
	s1 := uint32(m.a[sym+1])
	*bits = uint32(masked) + (*bits>>15)*(s1-s) - s
	m.freq[sym] += 31
	m.adaptInterval--
	if m.adaptInterval == 0 {
		m.adapt(sym)
	}
	return sym
}

// State is the persistent Bitknit model/history state, carried across
// quanta by the caller.
type State struct {
	recentDist     [8]uint32
	lastMatchDist  uint32
	recentDistMask uint32

	literals     [4]*model
	distanceLsb  [4]*model
	distanceBits *model
}

// NewState builds a fresh Bitknit model state, as at the start of a stream.
func NewState() *State {
	s := &State{
		lastMatchDist: 1,
		distanceBits:  newDistanceBitsModel(),
	}
	for i := range s.recentDist {
		s.recentDist[i] = 1
	}
	for i := 1; i <= 7; i++ {
		s.recentDistMask |= uint32(i) << uint(i*3)
	}
	for i := range s.literals {
		s.literals[i] = newLiteralModel()
	}
	for i := range s.distanceLsb {
		s.distanceLsb[i] = newDistanceLsbModel()
	}
	return s
}

type decoder struct {
	state  *State
	input  []byte
	output []byte
	src    int
	dst    int
	bits   uint32
	bits2  uint32
}

func newDecoder(input, output []byte, state *State, dst int) *decoder {
	return &decoder{state: state, input: input, output: output, dst: dst, bits: 0x10000, bits2: 0x10000}
}

func (d *decoder) read2() (uint32, error) {
	if d.src+2 > len(d.input) {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "bitknit: input exhausted reading u16")
	}
	v := uint32(d.input[d.src]) | uint32(d.input[d.src+1])<<8
	d.src += 2
	return v, nil
}

func (d *decoder) read4() (uint32, error) {
	if d.src+4 > len(d.input) {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "bitknit: input exhausted reading u32")
	}
	v := uint32(d.input[d.src]) | uint32(d.input[d.src+1])<<8 | uint32(d.input[d.src+2])<<16 | uint32(d.input[d.src+3])<<24
	d.src += 4
	return v, nil
}

func (d *decoder) write1(v byte) {
	d.output[d.dst] = v
	d.dst++
}

func (d *decoder) write2(v uint16) {
	d.output[d.dst] = byte(v)
	d.output[d.dst+1] = byte(v >> 8)
	d.dst += 2
}

func (d *decoder) lastMatch() byte {
	return d.output[d.dst-int(d.state.lastMatchDist)]
}

func (d *decoder) writeSym(sym byte) {
	d.output[d.dst] = sym + d.lastMatch()
	d.dst++
}

func (d *decoder) copyChunks(chunkSize, copyLength, matchDist int) {
	n := copyLength / chunkSize
	for i := 0; i < n; i++ {
		dst := d.dst + i*chunkSize
		src := dst - matchDist
		copy(d.output[dst:dst+chunkSize], d.output[src:src+chunkSize])
	}
	rem := copyLength % chunkSize
	dst := d.dst + copyLength - rem
	src := dst - matchDist
	copy(d.output[dst:dst+rem], d.output[src:src+rem])
}

func (d *decoder) lookupLiteral() int {
	return d.state.literals[d.dst&3].lookup16(&d.bits)
}

func (d *decoder) lookupLsb() int {
	return d.state.distanceLsb[d.dst&3].lookup16(&d.bits)
}

func (d *decoder) lookupBits() int {
	return d.state.distanceBits.lookup16(&d.bits)
}

func (d *decoder) renormalize() error {
	if d.bits < 0x10000 {
		v, err := d.read2()
		if err != nil {
			return err
		}
		d.bits = (d.bits << 16) | v
	}
	d.bits, d.bits2 = d.bits2, d.bits
	return nil
}

// Decode decodes one Bitknit quantum from input into output[dst:], writing
// its two renormalized bit-accumulator tails at the very end. state
// carries model/history across quanta within one stream. Returns the
// number of input bytes consumed, or 0 if the quantum's leading u32 marks
// it as empty (v < 0x10000).
func Decode(state *State, input, output []byte, dst int) (int, error) {
	d := newDecoder(input, output, state, dst)
	recentMask := int(state.recentDistMask)

	v, err := d.read4()
	if err != nil {
		return 0, err
	}
	if v < 0x10000 {
		return 0, nil
	}

	a := v >> 4
	n := v & 0xF
	if a < 0x10000 {
		v2, err := d.read2()
		if err != nil {
			return 0, err
		}
		a = (a << 16) | v2
	}
	d.bits = a >> n
	if err := d.renormalizeLeading(); err != nil {
		return 0, err
	}
	v3, err := d.read2()
	if err != nil {
		return 0, err
	}
	a = (a << 16) | v3

	d.bits2 = (uint32(1) << (n + 16)) | (a & ((uint32(1) << (n + 16)) - 1))

	if d.dst == 0 {
		d.write1(byte(d.bits))
		d.bits >>= 8
		if err := d.renormalize(); err != nil {
			return 0, err
		}
	}

	for d.dst+4 < len(d.output) {
		sym := d.lookupLiteral()
		if err := d.renormalize(); err != nil {
			return 0, err
		}

		if sym < 256 {
			d.writeSym(byte(sym))
			if d.dst+4 >= len(d.output) {
				break
			}
			sym = d.lookupLiteral()
			if err := d.renormalize(); err != nil {
				return 0, err
			}
			if sym < 256 {
				d.writeSym(byte(sym))
				continue
			}
		}

		if sym >= 288 {
			nb := uint(sym - 287)
			sym = int(d.bits&((1<<nb)-1)) + (1 << nb) + 286
			d.bits >>= nb
			if err := d.renormalize(); err != nil {
				return 0, err
			}
		}

		copyLength := sym - 254
		if copyLength <= 0 {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "bitknit: non-positive copy length")
		}

		sym = d.lookupLsb()
		if err := d.renormalize(); err != nil {
			return 0, err
		}

		var matchDist uint32
		if sym >= 8 {
			nb := d.lookupBits()
			if err := d.renormalize(); err != nil {
				return 0, err
			}

			md := d.bits & ((1 << uint(nb&0xF)) - 1)
			d.bits >>= uint(nb & 0xF)
			if err := d.renormalize(); err != nil {
				return 0, err
			}
			if nb >= 0x10 {
				v4, err := d.read2()
				if err != nil {
					return 0, err
				}
				md = (md << 16) | v4
			}
			matchDist = uint32(32<<uint(nb)) + (md << 5) + uint32(sym) - 39

			state.recentDist[(recentMask>>21)&7] = state.recentDist[(recentMask>>18)&7]
			state.recentDist[(recentMask>>18)&7] = matchDist
		} else {
			idx := (recentMask >> uint(3*sym)) & 7
			mask := (^7) << uint(3*sym)
			matchDist = state.recentDist[idx]
			recentMask = (recentMask & mask) | ((idx + 8*recentMask) &^ mask)
		}

		if matchDist == 1 {
			v := d.output[d.dst-1]
			for i := 0; i < copyLength; i++ {
				d.output[d.dst+i] = v
			}
		} else if int(matchDist) > copyLength {
			src := d.dst - int(matchDist)
			copy(d.output[d.dst:d.dst+copyLength], d.output[src:src+copyLength])
		} else if matchDist >= 8 {
			d.copyChunks(8, copyLength, int(matchDist))
		} else if matchDist >= 4 {
			d.copyChunks(4, copyLength, int(matchDist))
		} else {
			for i := 0; i < copyLength; i++ {
				d.output[d.dst+i] = d.output[d.dst+i-int(matchDist)]
			}
		}

		d.dst += copyLength
		state.lastMatchDist = matchDist
	}

	d.write2(uint16(d.bits))
	d.write2(uint16(d.bits2))

	state.recentDistMask = uint32(recentMask)
	return d.src, nil
}

// renormalizeLeading mirrors the inline "if self.bits < 0x10000 { refill }"
// check in decode() that happens before the first real renormalize() call
// (which would also swap bits/bits2, not wanted at this point).
func (d *decoder) renormalizeLeading() error {
	if d.bits < 0x10000 {
		v, err := d.read2()
		if err != nil {
			return err
		}
		d.bits = (d.bits << 16) | v
	}
	return nil
}
