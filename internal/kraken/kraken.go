// SPDX-License-Identifier: MIT
// Source: original_source/src/kraken.rs (KrakenDecoder::decode_quantum and
// the Kraken_* family), ported to plain Go using the shared buffer/bitreader
// packages in place of the Rust tagged-pointer arithmetic.

// Package kraken implements the Kraken LZ engine: a three-stream (literal,
// command, offset/length) entropy front end followed by a recent-offset
// copy loop, run in mode 0 (additive literals) or mode 1 (plain literals).
package kraken

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/bitreader"
	"github.com/go-ooz/ooz/internal/buffer"
	"github.com/go-ooz/ooz/internal/entropy"
	"github.com/go-ooz/ooz/internal/oozerr"
)

// LzTable holds the per-quantum streams decoded ahead of the copy loop.
type LzTable struct {
	CmdStream  []byte
	LitStream  []byte
	OffsStream []int32
	LenStream  []int32
	// Shared8 holds the 8 raw bytes stored uncompressed at the front of the
	// chunk when this quantum starts at output offset 0 (there is no prior
	// history to seed the initial match context from).
	Shared8 []byte
}

// DecodeQuantum decodes one Kraken quantum (up to 256KiB, internally split
// into 128KiB chunks) from src into out.Output[writeFrom:writeTo], returning
// the number of src bytes consumed.
func DecodeQuantum(src []byte, out *buffer.Arena, writeFrom, writeTo int) (int, error) {
	srcPos := 0
	dst := writeFrom

	for dst != writeTo {
		dstCount := writeTo - dst
		if dstCount > 0x20000 {
			dstCount = 0x20000
		}
		if len(src)-srcPos < 4 {
			return 0, errors.Wrapf(oozerr.ErrOutOfBounds, "kraken: quantum header truncated")
		}
		chunkHdr := int(src[srcPos+2]) | int(src[srcPos+1])<<8 | int(src[srcPos])<<16

		if chunkHdr&0x800000 == 0 {
			decoded, consumed, err := entropy.DecodeBytes(src[srcPos:], dstCount)
			if err != nil {
				return 0, errors.Wrapf(err, "kraken: entropy-only quantum")
			}
			if len(decoded) != dstCount {
				return 0, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: entropy-only quantum produced %d, want %d", len(decoded), dstCount)
			}
			if err := out.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: dst}, decoded); err != nil {
				return 0, err
			}
			srcPos += consumed
		} else {
			srcPos += 3
			chunkUsed := chunkHdr & 0x7FFFF
			mode := (chunkHdr >> 19) & 0xF
			if len(src)-srcPos < chunkUsed {
				return 0, errors.Wrapf(oozerr.ErrOutOfBounds, "kraken: chunk body truncated")
			}
			body := src[srcPos : srcPos+chunkUsed]

			if chunkUsed < dstCount {
				lz, err := readLzTable(mode, body, dstCount, dst-writeFrom)
				if err != nil {
					return 0, err
				}
				if err := processLzRuns(lz, mode, out, dst, dst+dstCount, dst-writeFrom); err != nil {
					return 0, err
				}
			} else if chunkUsed > dstCount || mode != 0 {
				return 0, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: uncompressed chunk size mismatch")
			} else {
				if err := out.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: dst}, body[:dstCount]); err != nil {
					return 0, err
				}
			}
			srcPos += chunkUsed
		}
		dst += dstCount
	}
	return srcPos, nil
}

// ProcessChunk implements the Kraken Algorithm::process entry point, for
// callers (the framer's generic quantum loop) that dispatch to
// Kraken/Mermaid/Leviathan uniformly rather than through DecodeQuantum's
// self-contained loop.
func ProcessChunk(mode int, src []byte, out *buffer.Arena, windowBase, dst, dstSize int) error {
	lz, err := readLzTable(mode, src, dstSize, dst-windowBase)
	if err != nil {
		return err
	}
	return processLzRuns(lz, mode, out, dst, dst+dstSize, dst-windowBase)
}

// readLzTable implements Kraken_ReadLzTable: it decodes the literal stream,
// command stream, offset stream (in either the traditional or two-table
// scaled-distance form), and length stream, in the reference's order. The
// literal and command streams are bounded by dstSize, the offset stream by
// the command stream's length, and the length stream by dstSize/4.
func readLzTable(mode int, src []byte, dstSize, offset int) (*LzTable, error) {
	if mode > 1 {
		return nil, errors.Wrapf(oozerr.ErrUnsupportedFeature, "kraken: unsupported mode %d", mode)
	}
	if len(src) < 13 {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: lz table header truncated")
	}

	pos := 0
	var shared8 []byte
	if offset == 0 {
		shared8 = append([]byte(nil), src[:8]...)
		pos += 8
	}

	if src[pos]&0x80 != 0 {
		return nil, errors.Wrapf(oozerr.ErrUnsupportedFeature, "kraken: excess-bytes flag not supported")
	}

	lz := &LzTable{Shared8: shared8}

	litStream, n, err := entropy.DecodeBytes(src[pos:], dstSize)
	if err != nil {
		return nil, errors.Wrapf(err, "kraken: lit stream")
	}
	lz.LitStream = litStream
	pos += n

	cmdStream, n, err := entropy.DecodeBytes(src[pos:], dstSize)
	if err != nil {
		return nil, errors.Wrapf(err, "kraken: cmd stream")
	}
	lz.CmdStream = cmdStream
	pos += n

	if len(src)-pos < 3 {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: truncated before offset stream")
	}

	var packedOffs []byte
	var packedOffsExtra []byte
	offsScaling := 0
	if src[pos]&0x80 != 0 {
		offsScaling = int(src[pos]) - 127
		pos++
		var n int
		var err error
		packedOffs, n, err = entropy.DecodeBytes(src[pos:], len(cmdStream))
		if err != nil {
			return nil, errors.Wrapf(err, "kraken: offset stream")
		}
		pos += n
		if offsScaling != 1 {
			packedOffsExtra, n, err = entropy.DecodeBytes(src[pos:], 0)
			if err != nil {
				return nil, errors.Wrapf(err, "kraken: offset extra stream")
			}
			if len(packedOffsExtra) != len(packedOffs) {
				return nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: offset extra stream size mismatch")
			}
			pos += n
		}
	} else {
		var n int
		var err error
		packedOffs, n, err = entropy.DecodeBytes(src[pos:], len(cmdStream))
		if err != nil {
			return nil, errors.Wrapf(err, "kraken: offset stream")
		}
		pos += n
	}

	packedLen, n, err := entropy.DecodeBytes(src[pos:], dstSize/4)
	if err != nil {
		return nil, errors.Wrapf(err, "kraken: litlen stream")
	}
	pos += n

	offsStream, lenStream, err := UnpackOffsets(src[pos:], packedOffs, packedOffsExtra, offsScaling, packedLen)
	if err != nil {
		return nil, err
	}
	lz.OffsStream = offsStream
	lz.LenStream = lenStream
	return lz, nil
}

// UnpackOffsets implements Kraken_UnpackOffsets: two synchronized bit
// readers (one forward, one backward over the same remaining span) decode
// the distance stream from packedOffs, the final length stream from both
// packedLen's inline byte values and overflow values on the same two bit
// readers, and the two readers are required to meet in the middle. Shared
// verbatim by the Leviathan decoder, which calls the identical reference
// function.
func UnpackOffsets(body []byte, packedOffs, packedOffsExtra []byte, scale int, packedLen []byte) ([]int32, []int32, error) {
	bitsA := bitreader.NewForward(body, 0, len(body))
	if err := bitsA.Refill(); err != nil {
		return nil, nil, err
	}
	bitsB := bitreader.NewBackward(body, 0, len(body))
	if err := bitsB.RefillBackwards(); err != nil {
		return nil, nil, err
	}

	if bitsB.Bits < 0x2000 {
		return nil, nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: excess stream requires excess_flag support")
	}
	lz := int32(31 - leadingZeros32(bitsB.Bits))
	bitsB.Bitpos += lz
	bitsB.Bits <<= uint32(lz)
	if err := bitsB.RefillBackwards(); err != nil {
		return nil, nil, err
	}
	lz++
	u32LenStreamSize := (bitsB.Bits >> (32 - uint32(lz))) - 1
	bitsB.Bitpos += lz
	bitsB.Bits <<= uint32(lz)
	if err := bitsB.RefillBackwards(); err != nil {
		return nil, nil, err
	}

	offsStream := make([]int32, 0, len(packedOffs))
	if scale == 0 {
		i := 0
		for i < len(packedOffs) {
			offsStream = append(offsStream, -bitsA.ReadDistance(uint32(packedOffs[i])))
			i++
			if i >= len(packedOffs) {
				break
			}
			offsStream = append(offsStream, -bitsB.ReadDistanceB(uint32(packedOffs[i])))
			i++
		}
	} else {
		i := 0
		for i < len(packedOffs) {
			cmd := int32(packedOffs[i])
			i++
			if cmd>>3 > 26 {
				return nil, nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: offset command exponent out of range")
			}
			extra, err := bitsA.ReadMoreThan24Bits(uint32(cmd >> 3))
			if err != nil {
				return nil, nil, err
			}
			offs := ((8 + (cmd & 7)) << uint(cmd>>3)) | int32(extra)
			offsStream = append(offsStream, 8-offs)
			if i >= len(packedOffs) {
				break
			}
			cmd = int32(packedOffs[i])
			i++
			if cmd>>3 > 26 {
				return nil, nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: offset command exponent out of range")
			}
			extra, err = bitsB.ReadMoreThan24BitsB(uint32(cmd >> 3))
			if err != nil {
				return nil, nil, err
			}
			offs = ((8 + (cmd & 7)) << uint(cmd>>3)) | int32(extra)
			offsStream = append(offsStream, 8-offs)
		}
		if scale != 1 {
			for i := range offsStream {
				low := int32(0)
				if i < len(packedOffsExtra) {
					low = int32(packedOffsExtra[i])
				}
				offsStream[i] = int32(scale)*offsStream[i] + low
			}
		}
	}

	if u32LenStreamSize > 512 {
		return nil, nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: excess length-overflow count")
	}
	u32LenBuf := make([]int32, u32LenStreamSize)
	for i := uint32(0); i < u32LenStreamSize; i++ {
		var v int32
		var err error
		if i%2 == 0 {
			v, err = bitsA.ReadLength()
		} else {
			v, err = bitsB.ReadLengthB()
		}
		if err != nil {
			return nil, nil, err
		}
		u32LenBuf[i] = v
	}

	aConsumed := (24 - bitsA.Bitpos) >> 3
	bConsumed := (24 - bitsB.Bitpos) >> 3
	if bitsA.P-int(aConsumed) != bitsB.P+int(bConsumed) {
		return nil, nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: offset/length readers did not meet")
	}

	lenStream := make([]int32, len(packedLen))
	overflowIdx := 0
	for i, b := range packedLen {
		v := int32(b)
		if v == 255 {
			if overflowIdx >= len(u32LenBuf) {
				return nil, nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: litlen overflow exhausted")
			}
			v = u32LenBuf[overflowIdx] + 255
			overflowIdx++
		}
		lenStream[i] = v + 3
	}
	if overflowIdx != len(u32LenBuf) {
		return nil, nil, errors.Wrapf(oozerr.ErrMalformedStream, "kraken: litlen overflow count mismatch")
	}
	return offsStream, lenStream, nil
}

func leadingZeros32(v uint32) int {
	n := 0
	for i := 31; i >= 0; i-- {
		if v&(1<<uint(i)) != 0 {
			break
		}
		n++
	}
	return n
}

// processLzRuns implements Kraken_ProcessLzRuns_Type0/Type1: the recent
// 7-slot offset ring (3 "recent" + 3 rotation + 1 pending) and the 8-byte
// overlapping copy loop.
func processLzRuns(lz *LzTable, mode int, out *buffer.Arena, dst, dstEnd, offset int) error {
	base := 0
	if offset == 0 {
		base = 8
		if err := out.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: dst}, lz.Shared8); err != nil {
			return err
		}
	}
	dstPos := dst + base

	cmdPos, cmdEnd := 0, len(lz.CmdStream)
	litPos, litEnd := 0, len(lz.LitStream)
	offsPos, offsEnd := 0, len(lz.OffsStream)
	lenPos := 0

	var recentOffs [7]int32
	recentOffs[3] = -8
	recentOffs[4] = -8
	recentOffs[5] = -8
	lastOffset := int32(-8)

	additive := mode == 0

	for cmdPos < cmdEnd {
		f := int(lz.CmdStream[cmdPos])
		cmdPos++
		litLen := f & 3
		offsIndex := f >> 6
		matchLen := (f >> 2) & 0xF

		if litLen == 3 {
			if lenPos >= len(lz.LenStream) {
				return errors.Wrapf(oozerr.ErrMalformedStream, "kraken: length stream exhausted (litlen)")
			}
			litLen = int(lz.LenStream[lenPos])
			lenPos++
		}
		if offsIndex == 3 {
			if offsPos >= offsEnd {
				return errors.Wrapf(oozerr.ErrMalformedStream, "kraken: offset stream exhausted")
			}
			recentOffs[6] = lz.OffsStream[offsPos]
		}

		if litPos+litLen > litEnd {
			return errors.Wrapf(oozerr.ErrMalformedStream, "kraken: literal stream exhausted")
		}
		if additive {
			lit := scratchFromSlice(out, lz.LitStream[litPos:litPos+litLen])
			if err := out.CopyAdd(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos},
				lit,
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos + int(lastOffset)},
				litLen,
			); err != nil {
				return err
			}
		} else {
			if err := out.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos}, lz.LitStream[litPos:litPos+litLen]); err != nil {
				return err
			}
		}
		dstPos += litLen
		litPos += litLen

		off := recentOffs[offsIndex+3]
		recentOffs[offsIndex+3] = recentOffs[offsIndex+2]
		recentOffs[offsIndex+2] = recentOffs[offsIndex+1]
		recentOffs[offsIndex+1] = recentOffs[offsIndex+0]
		recentOffs[3] = off
		lastOffset = off
		// offs_index in [0,3]; only offs_index==3 (a "new" offset, just
		// pushed through recentOffs[6]) consumes an entry from offsStream.
		offsPos += ((offsIndex + 1) & 4) / 4

		copyFrom := dstPos + int(off)
		if matchLen != 15 {
			if err := out.RepeatCopy(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos},
				buffer.Pointer{Space: buffer.SpaceOutput, Index: copyFrom},
				matchLen+2,
			); err != nil {
				return err
			}
			dstPos += matchLen + 2
		} else {
			if lenPos >= len(lz.LenStream) {
				return errors.Wrapf(oozerr.ErrMalformedStream, "kraken: length stream exhausted (matchlen)")
			}
			matchLen = 14 + int(lz.LenStream[lenPos])
			lenPos++
			if err := out.RepeatCopy(
				buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos},
				buffer.Pointer{Space: buffer.SpaceOutput, Index: copyFrom},
				matchLen,
			); err != nil {
				return err
			}
			dstPos += matchLen
		}
	}

	if offsPos != offsEnd || lenPos != len(lz.LenStream) {
		return errors.Wrapf(oozerr.ErrMalformedStream, "kraken: unconsumed offset/length stream")
	}
	finalLen := dstEnd - dstPos
	if finalLen != litEnd-litPos {
		return errors.Wrapf(oozerr.ErrMalformedStream, "kraken: trailing literal length mismatch")
	}
	if additive {
		lit := scratchFromSlice(out, lz.LitStream[litPos:litEnd])
		if err := out.CopyAdd(
			buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos},
			lit,
			buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos + int(lastOffset)},
			finalLen,
		); err != nil {
			return err
		}
	} else {
		if err := out.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: dstPos}, lz.LitStream[litPos:litEnd]); err != nil {
			return err
		}
	}
	return nil
}

// scratchFromSlice stashes a plain byte slice into the arena's scratch space
// at a fresh offset and returns a pointer to it, so literal bytes decoded
// into ordinary Go slices can be passed through Arena.CopyAdd, which
// addresses everything through Space/Index pairs.
func scratchFromSlice(a *buffer.Arena, data []byte) buffer.Pointer {
	base := len(a.Scratch)
	a.EnsureScratch(base + len(data))
	copy(a.Scratch[base:], data)
	return buffer.Pointer{Space: buffer.SpaceScratch, Index: base}
}
