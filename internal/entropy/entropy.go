// SPDX-License-Identifier: MIT
// Source: original_source/src/core.rs (Kraken_DecodeBytes and friends,
// despite the upstream's "Kraken" prefix this dispatcher is shared by every
// algorithm — renamed here to avoid implying Kraken-specific behavior).

// Package entropy implements the chunk-type dispatcher shared by every Oodle
// LZ variant: memcpy passthrough, Huffman (one or two halves), RLE, tANS,
// and the recursive/multi-array block.
package entropy

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/bitreader"
	"github.com/go-ooz/ooz/internal/huffman"
	"github.com/go-ooz/ooz/internal/oozerr"
	"github.com/go-ooz/ooz/internal/tans"
)

// DecodeBytes decodes one entropy chunk from the front of src, returning
// the decoded bytes and the number of src bytes consumed. outputCap, when
// nonzero, bounds how large the decoded destination is allowed to be
// (mirrors the reference's output_size parameter); pass 0 to skip the
// check when the caller has no tighter bound than the chunk header itself.
func DecodeBytes(src []byte, outputCap int) ([]byte, int, error) {
	if len(src) < 1 {
		return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "entropy: empty chunk")
	}
	b0 := src[0]
	chunkType := (b0 >> 4) & 7

	if chunkType == 0 {
		out, n, err := decodeMemcpy(src, b0)
		if err == nil && outputCap > 0 && len(out) > outputCap {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "entropy: decoded size %d exceeds cap %d", len(out), outputCap)
		}
		return out, n, err
	}

	var srcSize, dstSize, hdrLen int
	if b0&0x80 != 0 {
		// short mode: 10-bit src/dst sizes packed into 3 header bytes.
		if len(src) < 3 {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "entropy: truncated short header")
		}
		bits := int(b0)<<16 | int(src[1])<<8 | int(src[2])
		srcSize = bits & 0x3ff
		dstSize = srcSize + ((bits >> 10) & 0x3ff) + 1
		hdrLen = 3
	} else {
		// long mode: 18-bit src/dst sizes packed into 5 header bytes.
		if len(src) < 5 {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "entropy: truncated long header")
		}
		bits := int(src[1])<<24 | int(src[2])<<16 | int(src[3])<<8 | int(src[4])
		srcSize = bits & 0x3ffff
		dstSize = ((bits>>18 | int(b0)<<14) & 0x3ffff) + 1
		hdrLen = 5
	}
	if hdrLen+srcSize > len(src) {
		return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "entropy: chunk overruns src (%d+%d > %d)", hdrLen, srcSize, len(src))
	}
	if outputCap > 0 && dstSize > outputCap {
		return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "entropy: decoded size %d exceeds cap %d", dstSize, outputCap)
	}
	body := src[hdrLen : hdrLen+srcSize]

	var out []byte
	var err error
	switch chunkType {
	case 1:
		out, err = decodeTans(body, dstSize)
	case 2, 4:
		out, err = decodeHuffman(body, dstSize, chunkType)
	case 3:
		out, err = decodeRLE(body, dstSize)
	case 5:
		out, err = decodeRecursive(body, dstSize)
	default:
		err = errors.Wrapf(oozerr.ErrMalformedStream, "entropy: unknown chunk type %d", chunkType)
	}
	if err != nil {
		return nil, 0, err
	}
	return out, hdrLen + srcSize, nil
}

func decodeMemcpy(src []byte, b0 byte) ([]byte, int, error) {
	var size, hdrLen int
	if b0&0x80 != 0 {
		if len(src) < 2 {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "entropy: truncated memcpy header")
		}
		size = (int(b0&0x3f) << 8) | int(src[1])
		hdrLen = 2
	} else {
		if len(src) < 3 {
			return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "entropy: truncated memcpy header")
		}
		v := (int(b0) << 16) | (int(src[1]) << 8) | int(src[2])
		size = v & 0x3FFFF
		hdrLen = 3
	}
	if hdrLen+size > len(src) {
		return nil, 0, errors.Wrapf(oozerr.ErrMalformedStream, "entropy: memcpy chunk overruns src")
	}
	out := make([]byte, size)
	copy(out, src[hdrLen:hdrLen+size])
	return out, hdrLen + size, nil
}

func decodeTans(src []byte, dstSize int) ([]byte, error) {
	if len(src) < 8 || dstSize < 5 {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "tans: chunk too small")
	}
	br := bitreader.NewForward(src, 0, len(src))
	if err := br.Refill(); err != nil {
		return nil, err
	}
	reserved := br.ReadBitNoRefill()
	if reserved != 0 {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "tans: reserved bit set")
	}
	lBits := br.ReadBitsNoRefill(2) + 8

	data, err := tans.DecodeTable(br, lBits)
	if err != nil {
		return nil, err
	}
	lut, err := tans.InitLut(data, lBits)
	if err != nil {
		return nil, err
	}
	dec, err := tans.NewDecoder(lut, src)
	if err != nil {
		return nil, err
	}
	out := make([]byte, dstSize)
	if err := dec.Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeHuffman implements Kraken_DecodeBytes_Type12: one shared code-length
// table (old or new dialect), then either one three-stream array spanning
// the whole chunk (param==1, global chunk type 2) or two independently
// split three-stream arrays covering each output half (param==2, global
// chunk type 4). The explicit split offsets are read as raw header bytes,
// not derived from src length: split_mid (and, for the two-array form,
// split_left) immediately follow the code-length table, and split_right is
// the first two bytes of the second half's region at split_mid.
func decodeHuffman(src []byte, dstSize int, chunkType byte) ([]byte, error) {
	br := bitreader.NewForward(src, 0, len(src))
	if err := br.Refill(); err != nil {
		return nil, err
	}
	first := br.ReadBitNoRefill()
	var codeLen []byte
	var err error
	if first == 0 {
		sparse := br.ReadBitNoRefill() == 0
		codeLen, err = huffman.ReadCodeLengthsOld(br, sparse)
	} else {
		second := br.ReadBitNoRefill()
		if second != 0 {
			return nil, errors.Wrapf(oozerr.ErrMalformedStream, "huffman: two consecutive dialect-selector 1 bits")
		}
		codeLen, err = huffman.ReadCodeLengthsNew(br)
	}
	if err != nil {
		return nil, err
	}

	numUsed := 0
	var onlySym byte
	for sym, l := range codeLen {
		if l > 0 {
			numUsed++
			onlySym = byte(sym)
		}
	}
	out := make([]byte, dstSize)
	if numUsed == 1 {
		for i := range out {
			out[i] = onlySym
		}
		return out, nil
	}

	lut, err := huffman.MakeLut(codeLen)
	if err != nil {
		return nil, err
	}

	pos := br.BytePos()
	param := chunkType >> 1

	if param == 1 {
		if pos+2 > len(src) {
			return nil, errors.Wrapf(oozerr.ErrMalformedStream, "huffman: truncated split_mid header")
		}
		splitMid := int(src[pos]) | int(src[pos+1])<<8
		pos += 2
		region := src[pos:]
		if err := huffman.DecodeBytes(region, splitMid, out, lut); err != nil {
			return nil, err
		}
		return out, nil
	}

	if pos+6 > len(src) {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "huffman: truncated two-array split header")
	}
	halfOutputSize := (dstSize + 1) >> 1
	splitMidAbs := int(src[pos]) | int(src[pos+1])<<8 | int(src[pos+2])<<16
	pos += 3
	splitLeft := int(src[pos]) | int(src[pos+1])<<8
	pos += 2
	srcMid := pos + splitMidAbs
	if srcMid+2 > len(src) {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "huffman: split_mid out of range")
	}
	splitRight := int(src[srcMid]) | int(src[srcMid+1])<<8

	if err := huffman.DecodeBytes(src[pos:srcMid], splitLeft, out[:halfOutputSize], lut); err != nil {
		return nil, err
	}
	if err := huffman.DecodeBytes(src[srcMid+2:], splitRight, out[halfOutputSize:], lut); err != nil {
		return nil, err
	}
	return out, nil
}
