// SPDX-License-Identifier: MIT
// Source: original_source/src/leviathan.rs (the LeviathanMode trait and its
// six implementations: Sub, Raw, LamSub, SubAnd<4>, O1, SubAnd<16>).

package leviathan

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/buffer"
	"github.com/go-ooz/ooz/internal/oozerr"
)

// modeState carries the per-mode literal stream cursors threaded through
// one chunk's copy loop. Exactly one of the branches below is populated,
// selected by mode at construction time.
type modeState struct {
	mode int

	// Sub, Raw: single stream.
	lit    []byte
	litPos int

	// LamSub: an extra "lam" stream read once per copyLiterals call, then
	// the ordinary Sub stream for the rest.
	lam    []byte
	lamPos int

	// SubAnd4, SubAnd16: NUM independent lanes selected by dst.index & mask.
	lanes   [][]byte
	lanePos []int
	mask    int

	// O1: 16 order-1 context lanes plus a one-byte lookahead cache per lane.
	o1Lanes   [16][]byte
	o1Pos     [16]int
	o1Next    [16]byte
	o1Context int
	o1Primed  bool
}

func newModeState(lz *LzTable, mode, chunkStart int) *modeState {
	s := &modeState{mode: mode}
	switch mode {
	case ModeSub, ModeRaw:
		s.lit = lz.LitStreams[0]
	case ModeLamSub:
		s.lit = lz.LitStreams[0]
		s.lam = lz.LitStreams[1]
	case ModeSubAnd4, ModeSubAnd16:
		num := 4
		if mode == ModeSubAnd16 {
			num = 16
		}
		s.mask = num - 1
		base := (-chunkStart) & s.mask
		s.lanes = make([][]byte, num)
		s.lanePos = make([]int, num)
		for i := 0; i < num; i++ {
			s.lanes[i] = lz.LitStreams[(base+i)&s.mask]
		}
	case ModeO1:
		for i := 0; i < 16; i++ {
			s.o1Lanes[i] = lz.LitStreams[i]
		}
	}
	return s
}

func (s *modeState) primeO1(out *buffer.Arena, chunkStart int) error {
	if s.o1Primed {
		return nil
	}
	s.o1Primed = true
	for i := 0; i < 16; i++ {
		if len(s.o1Lanes[i]) == 0 {
			continue
		}
		s.o1Next[i] = s.o1Lanes[i][0]
		s.o1Pos[i] = 1
	}
	if chunkStart > 0 {
		b, err := out.GetByte(buffer.Pointer{Space: buffer.SpaceOutput, Index: chunkStart - 1})
		if err != nil {
			return err
		}
		s.o1Context = int(b)
	}
	return nil
}

// emitOne writes a single literal byte at dstPos and advances this mode's
// stream cursor(s). lastOffset is the current recent-offset used as the
// additive reference displacement; lamFirst is true only for the very
// first literal of a LamSub copyLiterals call.
func (s *modeState) emitOne(out *buffer.Arena, dstPos, lastOffset int, lamFirst bool) error {
	switch s.mode {
	case ModeRaw:
		if s.litPos >= len(s.lit) {
			return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: raw literal stream exhausted")
		}
		v := s.lit[s.litPos]
		s.litPos++
		return out.Set(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos}, v)

	case ModeSub:
		if s.litPos >= len(s.lit) {
			return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: sub literal stream exhausted")
		}
		ref, err := out.GetByte(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos + lastOffset})
		if err != nil {
			return err
		}
		v := s.lit[s.litPos] + ref
		s.litPos++
		return out.Set(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos}, v)

	case ModeLamSub:
		ref, err := out.GetByte(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos + lastOffset})
		if err != nil {
			return err
		}
		if lamFirst {
			if s.lamPos >= len(s.lam) {
				return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: lam literal stream exhausted")
			}
			v := s.lam[s.lamPos] + ref
			s.lamPos++
			return out.Set(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos}, v)
		}
		if s.litPos >= len(s.lit) {
			return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: sub literal stream exhausted")
		}
		v := s.lit[s.litPos] + ref
		s.litPos++
		return out.Set(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos}, v)

	case ModeSubAnd4, ModeSubAnd16:
		slot := dstPos & s.mask
		lane := s.lanes[slot]
		if s.lanePos[slot] >= len(lane) {
			return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: sub-and literal lane %d exhausted", slot)
		}
		ref, err := out.GetByte(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos + lastOffset})
		if err != nil {
			return err
		}
		v := lane[s.lanePos[slot]] + ref
		s.lanePos[slot]++
		return out.Set(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos}, v)

	case ModeO1:
		if err := s.primeO1(out, dstPos); err != nil {
			return err
		}
		slot := s.o1Context >> 4
		v := s.o1Next[slot]
		if err := out.Set(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos}, v); err != nil {
			return err
		}
		s.o1Context = int(v)
		lane := s.o1Lanes[slot]
		if s.o1Pos[slot] < len(lane) {
			s.o1Next[slot] = lane[s.o1Pos[slot]]
			s.o1Pos[slot]++
		}
		return nil
	}
	return errors.Wrapf(oozerr.ErrUnsupportedFeature, "leviathan: unknown mode %d", s.mode)
}

// copyLiterals implements Mode::CopyLiterals: decode this command's literal
// run length (escaping through the length stream past the 2-bit inline
// value) and emit that many literal bytes ahead of the upcoming match.
func (s *modeState) copyLiterals(out *buffer.Arena, cmd int, dstPos *int, readLitLenEscape func() (int, error), lastOffset int) error {
	litlen := (cmd >> 3) & 3
	if litlen == 3 {
		n, err := readLitLenEscape()
		if err != nil {
			return err
		}
		litlen = n + 3
	}
	for i := 0; i < litlen; i++ {
		first := s.mode == ModeLamSub && i == 0
		if err := s.emitOne(out, *dstPos, lastOffset, first); err != nil {
			return err
		}
		*dstPos++
	}
	return nil
}

// copyFinalLiterals implements Mode::CopyFinalLiterals: emit the trailing
// literal run after the command stream is exhausted, same per-mode byte
// semantics as copyLiterals but with an externally supplied count.
func (s *modeState) copyFinalLiterals(out *buffer.Arena, n int, dstPos *int, lastOffset int) error {
	for i := 0; i < n; i++ {
		first := s.mode == ModeLamSub && i == 0
		if err := s.emitOne(out, *dstPos, lastOffset, first); err != nil {
			return err
		}
		*dstPos++
	}
	return nil
}
