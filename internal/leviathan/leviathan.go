// SPDX-License-Identifier: MIT
// Source: original_source/src/leviathan.rs (LeviathanLzTable::Leviathan_ReadLzTable
// and Leviathan_ProcessLzRuns / process_lz), ported to plain Go. Offset/length
// stream unpacking reuses kraken.UnpackOffsets, since the reference calls the
// identical Kraken_UnpackOffsets function for both algorithms.

// Package leviathan implements the Leviathan LZ engine: a 16-slot
// recent-offset window (Kraken uses a 7-slot ring), six literal copy
// modes (Sub, Raw, LamSub, SubAnd4, O1, SubAnd16) selected by the chunk's
// mode/chunk_type, and an optional 8-way "multi command" stream that
// interleaves command bytes by (output position mod 8).
package leviathan

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/buffer"
	"github.com/go-ooz/ooz/internal/entropy"
	"github.com/go-ooz/ooz/internal/kraken"
	"github.com/go-ooz/ooz/internal/oozerr"
)

// Mode selects both how many literal streams Leviathan_ReadLzTable decodes
// and which CopyLiterals shape the run loop uses.
const (
	ModeSub      = 0
	ModeRaw      = 1
	ModeLamSub   = 2
	ModeSubAnd4  = 3
	ModeO1       = 4
	ModeSubAnd16 = 5
)

// LzTable holds the per-quantum streams decoded ahead of the copy loop.
type LzTable struct {
	OffsStream      []int32
	LenStream       []int32
	LitStreams      [][]byte
	CmdStream       []byte
	MultiCmd        bool
	MultiCmdStreams [8][]byte
	Shared8         []byte
}

// ProcessChunk implements the Leviathan Algorithm::process entry point.
// windowBase is the absolute index of the start of the whole decompressed
// stream (used to bound recent-offset references, and, through
// dst-windowBase, to decide whether this chunk starts with the 8 raw leading
// bytes); dst/dstSize delimit this chunk within it.
func ProcessChunk(mode int, src []byte, out *buffer.Arena, windowBase, dst, dstSize int) error {
	lz, err := readLzTable(mode, src, dstSize, dst-windowBase)
	if err != nil {
		return err
	}
	return processLzRuns(lz, mode, out, windowBase, dst, dstSize)
}

func litArrayCount(mode int) int {
	switch mode {
	case ModeSub, ModeRaw:
		return 1
	case ModeLamSub:
		return 2
	case ModeSubAnd4:
		return 4
	default: // ModeO1, ModeSubAnd16
		return 16
	}
}

// readLzTable implements Leviathan_ReadLzTable.
func readLzTable(mode int, src []byte, dstSize, offset int) (*LzTable, error) {
	if mode > 5 {
		return nil, errors.Wrapf(oozerr.ErrUnsupportedFeature, "leviathan: unsupported mode %d", mode)
	}
	if len(src) < 13 {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: lz table header truncated")
	}

	pos := 0
	lz := &LzTable{}
	if offset == 0 {
		lz.Shared8 = append([]byte(nil), src[:8]...)
		pos += 8
	}

	offsStreamLimit := dstSize / 3
	offsScaling := 0
	var packedOffs, packedOffsExtra []byte

	if src[pos]&0x80 == 0 {
		var n int
		var err error
		packedOffs, n, err = entropy.DecodeBytes(src[pos:], offsStreamLimit)
		if err != nil {
			return nil, errors.Wrapf(err, "leviathan: offset stream")
		}
		pos += n
	} else {
		offsScaling = int(src[pos]) - 127
		pos++
		var n int
		var err error
		packedOffs, n, err = entropy.DecodeBytes(src[pos:], offsStreamLimit)
		if err != nil {
			return nil, errors.Wrapf(err, "leviathan: offset stream")
		}
		pos += n
		if offsScaling != 1 {
			packedOffsExtra, n, err = entropy.DecodeBytes(src[pos:], offsStreamLimit)
			if err != nil {
				return nil, errors.Wrapf(err, "leviathan: offset extra stream")
			}
			if len(packedOffsExtra) != len(packedOffs) {
				return nil, errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: offset extra stream size mismatch")
			}
			pos += n
		}
	}

	packedLen, n, err := entropy.DecodeBytes(src[pos:], dstSize/5)
	if err != nil {
		return nil, errors.Wrapf(err, "leviathan: litlen stream")
	}
	pos += n

	if mode <= ModeRaw {
		lit, n, err := entropy.DecodeBytes(src[pos:], dstSize)
		if err != nil {
			return nil, errors.Wrapf(err, "leviathan: lit stream")
		}
		pos += n
		lz.LitStreams = [][]byte{lit}
	} else {
		arrays, _, n, err := entropy.DecodeMultiArray(src[pos:], litArrayCount(mode))
		if err != nil {
			return nil, errors.Wrapf(err, "leviathan: multi-array lit streams")
		}
		pos += n
		lz.LitStreams = arrays
	}

	if pos >= len(src) {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: truncated before cmd stream")
	}
	if src[pos]&0x80 == 0 {
		cmd, n, err := entropy.DecodeBytes(src[pos:], dstSize)
		if err != nil {
			return nil, errors.Wrapf(err, "leviathan: cmd stream")
		}
		pos += n
		lz.CmdStream = cmd
	} else {
		if src[pos] != 0x83 {
			return nil, errors.Wrapf(oozerr.ErrUnsupportedFeature, "leviathan: unsupported cmd stream flag 0x%02x", src[pos])
		}
		pos++
		arrays, _, n, err := entropy.DecodeMultiArray(src[pos:], 8)
		if err != nil {
			return nil, errors.Wrapf(err, "leviathan: multi-cmd streams")
		}
		pos += n
		lz.MultiCmd = true
		copy(lz.MultiCmdStreams[:], arrays)
	}

	offsStream, lenStream, err := kraken.UnpackOffsets(src[pos:], packedOffs, packedOffsExtra, offsScaling, packedLen)
	if err != nil {
		return nil, err
	}
	lz.OffsStream = offsStream
	lz.LenStream = lenStream
	return lz, nil
}

// processLzRuns implements Leviathan_ProcessLzRuns + process_lz.
func processLzRuns(lz *LzTable, mode int, out *buffer.Arena, windowBase, dst, dstSize int) error {
	if lz.Shared8 != nil {
		if err := out.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: dst}, lz.Shared8); err != nil {
			return err
		}
	}

	dstCur := dst
	if lz.Shared8 != nil {
		dstCur = dst + 8
	}
	dstEnd := dst + dstSize

	var recentOffs [16]int32
	for i := 8; i <= 14; i++ {
		recentOffs[i] = -8
	}
	lastOffset := int32(-8)

	lenPos, lenEnd := 0, len(lz.LenStream)
	offsPos, offsEnd := 0, len(lz.OffsStream)

	m := newModeState(lz, mode, dst)

	var multiCmdStreams [8][]byte
	var multiCmdPos [8]int
	cmdStreamLeft := 0
	cmdPos, cmdEnd := 0, len(lz.CmdStream)
	if lz.MultiCmd {
		base := (-dst) & 7
		for i := 0; i < 8; i++ {
			multiCmdStreams[i] = lz.MultiCmdStreams[(base+i)&7]
		}
		for _, s := range multiCmdStreams {
			cmdStreamLeft += len(s)
		}
	}

	readLitLenEscape := func() (int, error) {
		if lenPos >= lenEnd {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: len stream exhausted (litlen)")
		}
		v := int(lz.LenStream[lenPos]) & 0xffffff
		lenPos++
		return v, nil
	}
	readMatchLenEscape := func() (int, error) {
		if lenEnd <= lenPos {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: len stream exhausted (matchlen)")
		}
		lenEnd--
		return int(lz.LenStream[lenEnd]) + 6, nil
	}

	dstPos := dstCur
	for {
		var cmd int
		if !lz.MultiCmd {
			if cmdPos >= cmdEnd {
				break
			}
			cmd = int(lz.CmdStream[cmdPos])
			cmdPos++
		} else {
			if cmdStreamLeft == 0 {
				break
			}
			cmdStreamLeft--
			lane := dstPos & 7
			if multiCmdPos[lane] >= len(multiCmdStreams[lane]) {
				return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: multi-cmd lane %d exhausted", lane)
			}
			cmd = int(multiCmdStreams[lane][multiCmdPos[lane]])
			multiCmdPos[lane]++
		}

		offsIndex := cmd >> 5
		matchLen := (cmd & 7) + 2

		if offsPos >= offsEnd {
			return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: offset stream exhausted")
		}
		recentOffs[15] = lz.OffsStream[offsPos]

		if err := m.copyLiterals(out, cmd, &dstPos, readLitLenEscape, int(lastOffset)); err != nil {
			return err
		}

		offset := recentOffs[offsIndex+8]
		var temp [4]int32
		copy(temp[:], recentOffs[offsIndex+4:offsIndex+8])
		copy(recentOffs[offsIndex+1:offsIndex+5], recentOffs[offsIndex:offsIndex+4])
		copy(recentOffs[offsIndex+5:offsIndex+9], temp[:])
		recentOffs[8] = offset
		if offsIndex == 7 {
			offsPos++
		}
		lastOffset = offset

		if int(offset) < windowBase-dstPos {
			return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: offset out of bounds")
		}
		copyFrom := dstPos + int(offset)

		if matchLen == 9 {
			ml, err := readMatchLenEscape()
			if err != nil {
				return err
			}
			if err := out.RepeatCopy(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos},
				buffer.Pointer{Space: buffer.SpaceOutput, Index: copyFrom},
				16,
			); err != nil {
				return err
			}
			nextDst := dstPos + ml
			if ml > 16 {
				if err := out.RepeatCopy(
					buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos},
					buffer.Pointer{Space: buffer.SpaceOutput, Index: copyFrom},
					ml,
				); err != nil {
					return err
				}
			}
			dstPos = nextDst
		} else {
			if err := out.RepeatCopy(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos},
				buffer.Pointer{Space: buffer.SpaceOutput, Index: copyFrom},
				8,
			); err != nil {
				return err
			}
			dstPos += matchLen
		}
	}

	if offsPos != offsEnd || lenPos != lenEnd {
		return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: offset/length streams not fully consumed")
	}

	if dstPos < dstEnd {
		if err := m.copyFinalLiterals(out, dstEnd-dstPos, &dstPos, int(lastOffset)); err != nil {
			return err
		}
	} else if dstPos != dstEnd {
		return errors.Wrapf(oozerr.ErrMalformedStream, "leviathan: overran chunk end")
	}
	return nil
}
