// SPDX-License-Identifier: MIT
// Source: original_source/src/core.rs (Kraken_DecodeMultiArray and the
// Kraken_GetBlockSize helper it calls), ported to plain Go. This is the
// engine behind chunk type 5 (the "recursive" single-array case) and also
// behind Leviathan's multi-stream literal/command arrays (2, 4, 8, or 16
// arrays sharing one entropy-coded backing pool).
package entropy

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/bitreader"
	"github.com/go-ooz/ooz/internal/oozerr"
)

const maxEntropyArrays = 63

// DecodeMultiArray decodes arrayCount independent byte arrays (used by
// Leviathan's literal/multi-cmd streams, and by chunk type 5 with
// arrayCount==1) from the front of src, returning each array, the combined
// size of all of them, and the number of src bytes consumed.
func DecodeMultiArray(src []byte, arrayCount int) ([][]byte, int, int, error) {
	if len(src) < 4 {
		return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: truncated header")
	}
	full := int(src[0])
	pos := 1
	if full&0x80 == 0 {
		return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: missing entropy-array-count flag")
	}
	numArraysInFile := full & 0x3f

	if numArraysInFile == 0 {
		arrays := make([][]byte, arrayCount)
		totalSize := 0
		for i := 0; i < arrayCount; i++ {
			decoded, n, err := DecodeBytes(src[pos:], 0)
			if err != nil {
				return nil, 0, 0, errors.Wrapf(err, "multiarray: array %d", i)
			}
			arrays[i] = decoded
			pos += n
			totalSize += len(decoded)
		}
		return arrays, totalSize, pos, nil
	}
	if numArraysInFile > maxEntropyArrays {
		return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: array count %d exceeds %d", numArraysInFile, maxEntropyArrays)
	}

	entropyArrayData := make([][]byte, numArraysInFile)
	entropyArraySize := make([]int, numArraysInFile)
	totalSize := 0
	for i := 0; i < numArraysInFile; i++ {
		decoded, n, err := DecodeBytes(src[pos:], 0)
		if err != nil {
			return nil, 0, 0, errors.Wrapf(err, "multiarray: entropy array %d", i)
		}
		entropyArrayData[i] = decoded
		entropyArraySize[i] = len(decoded)
		pos += n
		totalSize += len(decoded)
	}

	if len(src)-pos < 3 {
		return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: truncated interval header")
	}
	q := int(src[pos]) | int(src[pos+1])<<8
	pos += 2

	numIndexes, err := getBlockSize(src[pos:], totalSize)
	if err != nil {
		return nil, 0, 0, errors.Wrapf(err, "multiarray: interval block size")
	}
	numLens := numIndexes - arrayCount
	if numLens <= 0 {
		return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: non-positive interval length count")
	}

	intervalIndexes := make([]byte, numIndexes)
	intervalLenlog2 := make([]byte, numIndexes)

	if q&0x8000 != 0 {
		decoded, n, err := DecodeBytes(src[pos:], numIndexes)
		if err != nil {
			return nil, 0, 0, errors.Wrapf(err, "multiarray: interval indexes")
		}
		if len(decoded) != numIndexes {
			return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: interval index count mismatch")
		}
		pos += n
		for i, t := range decoded {
			intervalLenlog2[i] = t >> 4
			intervalIndexes[i] = t & 0xF
		}
		numLens = numIndexes
	} else {
		lenlog2ChunkSize := numIndexes - arrayCount

		decodedIdx, n, err := DecodeBytes(src[pos:], numIndexes)
		if err != nil {
			return nil, 0, 0, errors.Wrapf(err, "multiarray: interval indexes")
		}
		pos += n
		copy(intervalIndexes, decodedIdx)

		decodedLog2, n, err := DecodeBytes(src[pos:], lenlog2ChunkSize)
		if err != nil {
			return nil, 0, 0, errors.Wrapf(err, "multiarray: interval lenlog2")
		}
		pos += n
		copy(intervalLenlog2, decodedLog2)
		for _, v := range decodedLog2 {
			if v > 16 {
				return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: lenlog2 %d exceeds 16", v)
			}
		}
	}

	varbitsComplen := q & 0x3FFF
	if len(src)-pos < varbitsComplen {
		return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: truncated interval-length bitstream")
	}
	bitsStart := pos
	srcEndActual := bitsStart + varbitsComplen

	f := bitreader.NewForward(src, bitsStart, len(src))
	b := bitreader.NewBackward(src, bitsStart, srcEndActual)
	if err := f.Refill(); err != nil {
		return nil, 0, 0, err
	}
	if err := b.RefillBackwards(); err != nil {
		return nil, 0, 0, err
	}

	decodedIntervals := make([]int, 0, numLens)
	for i := 0; i < numLens; i++ {
		nb := intervalLenlog2[i]
		if i%2 == 0 {
			if err := f.Refill(); err != nil {
				return nil, 0, 0, err
			}
			decodedIntervals = append(decodedIntervals, int(f.ReadBitsNoRefillZero(uint32(nb))))
		} else {
			if err := b.RefillBackwards(); err != nil {
				return nil, 0, 0, err
			}
			decodedIntervals = append(decodedIntervals, int(b.ReadBitsNoRefillZero(uint32(nb))))
		}
	}

	if intervalIndexes[numIndexes-1] != 0 {
		return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: interval index stream missing terminator")
	}

	outBuf := make([]byte, 0, totalSize)
	arrays := make([][]byte, arrayCount)
	indi, leni := 0, 0
	incrementLeni := q&0x8000 != 0

	for arri := 0; arri < arrayCount; arri++ {
		start := len(outBuf)
		if indi >= numIndexes {
			return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: interval index stream exhausted")
		}
		for {
			source := int(intervalIndexes[indi])
			indi++
			if source == 0 {
				break
			}
			if source > numArraysInFile {
				return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: source index %d out of range", source)
			}
			if leni >= numLens {
				return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: interval length stream exhausted")
			}
			curLen := decodedIntervals[leni]
			leni++
			si := source - 1
			if curLen > entropyArraySize[si] {
				return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: source array %d exhausted", si)
			}
			blk := entropyArrayData[si]
			outBuf = append(outBuf, blk[:curLen]...)
			entropyArrayData[si] = blk[curLen:]
			entropyArraySize[si] -= curLen
		}
		if incrementLeni {
			leni++
		}
		arrays[arri] = outBuf[start:len(outBuf)]
	}

	if indi != numIndexes || leni != numLens {
		return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: interval streams not fully consumed")
	}
	for i := 0; i < numArraysInFile; i++ {
		if entropyArraySize[i] != 0 {
			return nil, 0, 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: entropy array %d left with unused bytes", i)
		}
	}

	return arrays, totalSize, srcEndActual, nil
}

// getBlockSize peeks at the chunk header beginning at src (without
// consuming it) and returns the dst_size it declares, bounded by
// destCapacity. Mirrors Kraken_GetBlockSize.
func getBlockSize(src []byte, destCapacity int) (int, error) {
	if len(src) < 2 {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: block-size header truncated")
	}
	b0 := src[0]
	chunkType := (b0 >> 4) & 7

	if chunkType == 0 {
		var srcSize int
		if b0 >= 0x80 {
			srcSize = (int(b0)<<8 | int(src[1])) & 0xFFF
		} else {
			if len(src) < 3 {
				return 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: memcpy block-size header truncated")
			}
			srcSize = int(b0)<<16 | int(src[1])<<8 | int(src[2])
			if srcSize&^0x3ffff != 0 {
				return 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: reserved bits set in memcpy size")
			}
		}
		if srcSize > destCapacity {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: memcpy size exceeds capacity")
		}
		return srcSize, nil
	}
	if chunkType >= 6 {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: unknown chunk type %d", chunkType)
	}

	var srcSize, dstSize int
	if b0 >= 0x80 {
		if len(src) < 3 {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: short block-size header truncated")
		}
		bits := int(b0)<<16 | int(src[1])<<8 | int(src[2])
		srcSize = bits & 0x3ff
		dstSize = srcSize + ((bits >> 10) & 0x3ff) + 1
	} else {
		if len(src) < 5 {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: long block-size header truncated")
		}
		bits := int(src[1])<<24 | int(src[2])<<16 | int(src[3])<<8 | int(src[4])
		srcSize = bits & 0x3ffff
		dstSize = ((bits>>18 | int(b0)<<14) & 0x3ffff) + 1
		if srcSize >= dstSize {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: src_size >= dst_size in long header")
		}
	}
	if dstSize > destCapacity {
		return 0, errors.Wrapf(oozerr.ErrMalformedStream, "multiarray: dst_size exceeds capacity")
	}
	return dstSize, nil
}
