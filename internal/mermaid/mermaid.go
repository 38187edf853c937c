// SPDX-License-Identifier: MIT
// Source: original_source/src/mermaid.rs (MermaidLzTable::read_lz_table and
// process_lz_runs), ported to plain Go. Mermaid and Selkie share this exact
// on-disk format; only the (irrelevant to decoding) compressor differs.

// Package mermaid implements the Mermaid/Selkie LZ engine: two independent
// 64KiB sub-chunks, each with its own command/offset streams, a near-offset
// (16-bit) stream shared with a per-chunk far-offset (32-bit) stream, and a
// flag byte whose low bits select one of five distinct copy shapes.
package mermaid

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/buffer"
	"github.com/go-ooz/ooz/internal/entropy"
	"github.com/go-ooz/ooz/internal/oozerr"
)

const chunkSize = 0x10000

// LzTable holds the per-quantum streams decoded ahead of the copy loop.
type LzTable struct {
	CmdStream    []byte
	CmdSplit     int // index in CmdStream where sub-chunk 2's commands begin
	LitStream    []byte
	LenStream    []byte
	Off16Stream  []uint16
	Off32Stream1 []uint32
	Off32Stream2 []uint32
	// Shared8 holds the 8 raw bytes stored uncompressed at the front of the
	// chunk when this quantum starts at output offset 0.
	Shared8 []byte
}

// ProcessChunk implements the Mermaid/Selkie Algorithm::process entry point:
// the framer has already split one quantum's compressed body (src) out of
// the shared chunk header (chunkHdr's mode/used fields), and supplies the
// absolute output offset (dstStart-relative "offset" used to decide the
// shared-first-8-bytes convention and far-offset scaling).
func ProcessChunk(mode int, src []byte, out *buffer.Arena, dstStart, dst, dstSize int) error {
	lz, _, err := readLzTable(mode, src, dstSize, dst-dstStart)
	if err != nil {
		return err
	}
	return processLzRuns(lz, mode, out, dst, dst+dstSize)
}

// readLzTable implements MermaidLzTable::read_lz_table.
func readLzTable(mode int, src []byte, dstSize, offset int) (*LzTable, int, error) {
	if mode > 1 {
		return nil, 0, errors.Wrapf(oozerr.ErrUnsupportedFeature, "mermaid: unsupported mode %d", mode)
	}
	if len(src) < 10 {
		return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: lz table header truncated")
	}

	pos := 0
	lz := &LzTable{}

	if offset == 0 {
		lz.Shared8 = append([]byte(nil), src[:8]...)
		pos += 8
	}

	litStream, n, err := entropy.DecodeBytes(src[pos:], dstSize)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "mermaid: lit stream")
	}
	lz.LitStream = litStream
	pos += n

	cmdStream, n, err := entropy.DecodeBytes(src[pos:], dstSize)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "mermaid: cmd stream")
	}
	lz.CmdStream = cmdStream
	pos += n

	cmdSplitEnd := len(cmdStream)
	cmdSplit := cmdSplitEnd
	if dstSize > chunkSize {
		if len(src)-pos < 2 {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: truncated cmd split offset")
		}
		cmdSplit = int(src[pos]) | int(src[pos+1])<<8
		pos += 2
		if cmdSplit > cmdSplitEnd {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: cmd split offset out of range")
		}
	}
	lz.CmdSplit = cmdSplit

	if len(src)-pos < 2 {
		return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: truncated off16 header")
	}
	off16Count := int(src[pos]) | int(src[pos+1])<<8
	pos += 2

	if off16Count == 0xffff {
		off16Hi, n, err := entropy.DecodeBytes(src[pos:], dstSize>>1)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "mermaid: off16 hi stream")
		}
		pos += n
		off16Lo, n, err := entropy.DecodeBytes(src[pos:], dstSize>>1)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "mermaid: off16 lo stream")
		}
		pos += n
		if len(off16Lo) != len(off16Hi) {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: off16 hi/lo size mismatch")
		}
		lz.Off16Stream = make([]uint16, len(off16Lo))
		for i := range lz.Off16Stream {
			lz.Off16Stream[i] = uint16(off16Lo[i]) + uint16(off16Hi[i])*256
		}
	} else {
		if len(src)-pos < off16Count*2 {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: truncated off16 raw stream")
		}
		lz.Off16Stream = make([]uint16, off16Count)
		for i := 0; i < off16Count; i++ {
			lz.Off16Stream[i] = uint16(src[pos+2*i]) | uint16(src[pos+2*i+1])<<8
		}
		pos += off16Count * 2
	}

	if len(src)-pos < 3 {
		return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: truncated off32 header")
	}
	tmp := int(src[pos]) | int(src[pos+1])<<8 | int(src[pos+2])<<16
	pos += 3

	if tmp != 0 {
		off32Size1 := tmp >> 12
		off32Size2 := tmp & 0xFFF
		if off32Size1 == 4095 {
			if len(src)-pos < 2 {
				return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: truncated off32_size_1")
			}
			off32Size1 = int(src[pos]) | int(src[pos+1])<<8
			pos += 2
		}
		if off32Size2 == 4095 {
			if len(src)-pos < 2 {
				return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: truncated off32_size_2")
			}
			off32Size2 = int(src[pos]) | int(src[pos+1])<<8
			pos += 2
		}

		off32Stream1, n, err := decodeFarOffsets(src[pos:], off32Size1, offset)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "mermaid: off32 stream 1")
		}
		pos += n
		lz.Off32Stream1 = off32Stream1

		off32Stream2, n, err := decodeFarOffsets(src[pos:], off32Size2, offset+chunkSize)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "mermaid: off32 stream 2")
		}
		pos += n
		lz.Off32Stream2 = off32Stream2
	}

	lenStream := src[pos:]
	lz.LenStream = lenStream
	return lz, len(src), nil
}

// decodeFarOffsets implements MermaidLzTable::decode_far_offsets: each
// far offset is a 3-byte little-endian value, extended by one extra byte
// (shifted 22 bits) once offset reaches 0xC00000-1 and the 3-byte value is
// at least 0xC00000 (its top two bits set).
func decodeFarOffsets(src []byte, count, offset int) ([]uint32, int, error) {
	out := make([]uint32, count)
	pos := 0
	extended := offset >= 0xC00000-1
	for i := 0; i < count; i++ {
		if len(src)-pos < 3 {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: truncated far offset")
		}
		off := int(src[pos]) | int(src[pos+1])<<8 | int(src[pos+2])<<16
		pos += 3
		if extended && off >= 0xc00000 {
			if pos >= len(src) {
				return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: truncated far offset extension")
			}
			off += int(src[pos]) << 22
			pos++
		}
		out[i] = uint32(off)
	}
	return out, pos, nil
}

// processLzRuns implements MermaidLzTable::process_lz_runs: two 64KiB
// sub-chunk passes, each resuming the previous pass's saved recent-offset
// and interleaved length/literal cursors.
func processLzRuns(lz *LzTable, mode int, out *buffer.Arena, writeFrom, writeTo int) error {
	if lz.Shared8 != nil {
		if err := out.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: writeFrom}, lz.Shared8); err != nil {
			return err
		}
	}

	savedDist := int32(-8)
	dst := writeFrom
	dstSize := writeTo - writeFrom

	cmdPos, cmdEnd := 0, lz.CmdSplit
	lenPos := 0
	litPos := 0
	off16Pos := 0
	off32Pos1, off32Pos2 := 0, 0

	for iteration := 0; iteration < 2; iteration++ {
		dstSizeCur := dstSize
		if dstSizeCur > chunkSize {
			dstSizeCur = chunkSize
		}

		var off32 []uint32
		if iteration == 0 {
			off32 = lz.Off32Stream1
		} else {
			off32 = lz.Off32Stream2
			cmdPos = lz.CmdSplit
			cmdEnd = len(lz.CmdStream)
		}
		off32Pos := 0
		if iteration == 1 {
			off32Pos = off32Pos2
		} else {
			off32Pos = off32Pos1
		}

		startOff := 0
		if lz.Shared8 != nil && iteration == 0 {
			startOff = 8
		}

		_, newLitPos, newLenPos, newOff16Pos, newOff32Pos, newSavedDist, err := processChunk(
			lz, mode, out, dst, dstSizeCur, cmdPos, cmdEnd, litPos, lenPos, off16Pos, off32Pos, off32, savedDist, startOff,
		)
		if err != nil {
			return err
		}
		litPos = newLitPos
		lenPos = newLenPos
		off16Pos = newOff16Pos
		if iteration == 0 {
			off32Pos1 = newOff32Pos
		} else {
			off32Pos2 = newOff32Pos
		}
		savedDist = newSavedDist

		dst += dstSizeCur
		dstSize -= dstSizeCur
		if dstSize == 0 {
			break
		}
	}

	if lenPos != len(lz.LenStream) {
		return errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: trailing length stream not fully consumed")
	}
	return nil
}

// processChunk implements MermaidLzTable::process (the generic<ADD_MODE> body).
func processChunk(
	lz *LzTable, mode int, out *buffer.Arena,
	dstBegin, dstSize int,
	cmdPos, cmdEnd int,
	litPos, lenPos, off16Pos, off32Pos int,
	off32 []uint32,
	savedDist int32, startOff int,
) (int, int, int, int, int, int32, error) {
	dstEnd := dstBegin + dstSize
	dst := dstBegin + startOff
	recentOffs := savedDist
	additive := mode == 0

	readLen := func() (int, error) {
		if lenPos >= len(lz.LenStream) {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: length stream exhausted")
		}
		l := int(lz.LenStream[lenPos])
		lenPos++
		if l > 251 {
			if lenPos+2 > len(lz.LenStream) {
				return 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: truncated length overflow")
			}
			l += (int(lz.LenStream[lenPos]) | int(lz.LenStream[lenPos+1])<<8) * 4
			lenPos += 2
		}
		return l, nil
	}

	copyLit := func(n int) error {
		if litPos+n > len(lz.LitStream) {
			return errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: literal stream exhausted")
		}
		if additive {
			lit := scratchFromSlice(out, lz.LitStream[litPos:litPos+n])
			if err := out.CopyAdd(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dst},
				lit,
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dst + int(recentOffs)},
				n,
			); err != nil {
				return err
			}
		} else {
			if err := out.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: dst}, lz.LitStream[litPos:litPos+n]); err != nil {
				return err
			}
		}
		dst += n
		litPos += n
		return nil
	}

	for cmdPos < cmdEnd {
		cmd := int(lz.CmdStream[cmdPos])
		cmdPos++

		switch {
		case cmd >= 24:
			litLen := cmd & 7
			if err := copyLit(litLen); err != nil {
				return 0, 0, 0, 0, 0, 0, err
			}
			if cmd>>7 == 0 {
				if off16Pos >= len(lz.Off16Stream) {
					return 0, 0, 0, 0, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: off16 stream exhausted")
				}
				recentOffs = -int32(lz.Off16Stream[off16Pos])
				off16Pos++
			}
			offsPtr := dst + int(recentOffs)
			n := (cmd >> 3) & 0xF
			if err := out.RepeatCopy(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dst},
				buffer.Pointer{Space: buffer.SpaceOutput, Index: offsPtr},
				n,
			); err != nil {
				return 0, 0, 0, 0, 0, 0, err
			}
			dst += n

		case cmd > 2:
			length := cmd + 5
			if off32Pos >= len(off32) {
				return 0, 0, 0, 0, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: off32 stream exhausted")
			}
			offsPtr := dstBegin - int(off32[off32Pos])
			off32Pos++
			recentOffs = int32(offsPtr - dst)
			if dstEnd-dst < length {
				return 0, 0, 0, 0, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: match overruns chunk")
			}
			if err := out.RepeatCopy(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dst},
				buffer.Pointer{Space: buffer.SpaceOutput, Index: offsPtr},
				length,
			); err != nil {
				return 0, 0, 0, 0, 0, 0, err
			}
			dst += length

		case cmd == 0:
			length, err := readLen()
			if err != nil {
				return 0, 0, 0, 0, 0, 0, err
			}
			length += 64
			if err := copyLit(length); err != nil {
				return 0, 0, 0, 0, 0, 0, err
			}

		case cmd == 1:
			length, err := readLen()
			if err != nil {
				return 0, 0, 0, 0, 0, 0, err
			}
			length += 91
			if off16Pos >= len(lz.Off16Stream) {
				return 0, 0, 0, 0, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: off16 stream exhausted")
			}
			offsPtr := dst - int(lz.Off16Stream[off16Pos])
			off16Pos++
			recentOffs = int32(offsPtr - dst)
			if err := out.RepeatCopy(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dst},
				buffer.Pointer{Space: buffer.SpaceOutput, Index: offsPtr},
				length,
			); err != nil {
				return 0, 0, 0, 0, 0, 0, err
			}
			dst += length

		default: // cmd == 2
			length, err := readLen()
			if err != nil {
				return 0, 0, 0, 0, 0, 0, err
			}
			length += 29
			if off32Pos >= len(off32) {
				return 0, 0, 0, 0, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "mermaid: off32 stream exhausted")
			}
			offsPtr := dstBegin - int(off32[off32Pos])
			off32Pos++
			recentOffs = int32(offsPtr - dst)
			if err := out.RepeatCopy(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dst},
				buffer.Pointer{Space: buffer.SpaceOutput, Index: offsPtr},
				length,
			); err != nil {
				return 0, 0, 0, 0, 0, 0, err
			}
			dst += length
		}
	}

	tail := dstEnd - dst
	if err := copyLit(tail); err != nil {
		return 0, 0, 0, 0, 0, 0, err
	}

	return dst, litPos, lenPos, off16Pos, off32Pos, recentOffs, nil
}

// scratchFromSlice stashes a plain byte slice into the arena's scratch space
// at a fresh offset so it can be addressed through Arena.CopyAdd.
func scratchFromSlice(a *buffer.Arena, data []byte) buffer.Pointer {
	base := len(a.Scratch)
	a.EnsureScratch(base + len(data))
	copy(a.Scratch[base:], data)
	return buffer.Pointer{Space: buffer.SpaceScratch, Index: base}
}
