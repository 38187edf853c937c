// SPDX-License-Identifier: MIT
// Source: original_source/src/extractor/mod.rs (Extractor, BlockHeader,
// QuantumHeader) and original_source/src/core.rs (Core::decode_quantum, the
// generic per-algorithm quantum/chunk splitting loop), ported to plain Go.
// The reference streams from an io.Read; this port works directly off an
// in-memory compressed slice, since Decompress already requires the whole
// input up front.

// Package framer implements the outer Oodle block/quantum framing: a
// 256KiB (or 16KiB, for Lzna/Bitknit) block header, a per-block quantum
// header selecting compressed/whole-match/memset/uncompressed handling,
// and the generic 128KiB-chunk splitting loop shared by Kraken, Mermaid,
// and Leviathan that dispatches each chunk to either a bare entropy decode
// or the algorithm's LZ engine.
package framer

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/go-ooz/ooz/internal/bitknit"
	"github.com/go-ooz/ooz/internal/buffer"
	"github.com/go-ooz/ooz/internal/entropy"
	"github.com/go-ooz/ooz/internal/kraken"
	"github.com/go-ooz/ooz/internal/leviathan"
	"github.com/go-ooz/ooz/internal/lzna"
	"github.com/go-ooz/ooz/internal/mermaid"
	"github.com/go-ooz/ooz/internal/oozerr"
)

// Decoder type codes, as stored in the low 7 bits of a block header's
// second byte.
const (
	decoderLzna      = 0x5
	decoderKraken    = 0x6
	decoderMermaid   = 0xA
	decoderBitknit   = 0xB
	decoderLeviathan = 0xC
)

const (
	smallBlock = 0x4000
	largeBlock = 0x40000
)

type blockHeader struct {
	decoderType    int
	restartDecoder bool
	uncompressed   bool
	useChecksums   bool
}

func (h blockHeader) blockSize() int {
	switch h.decoderType {
	case decoderLzna, decoderBitknit:
		return smallBlock
	default:
		return largeBlock
	}
}

type quantumKind int

const (
	quantumCompressed quantumKind = iota
	quantumWholeMatch
	quantumMemset
	quantumUncompressed
)

type quantumHeader struct {
	kind               quantumKind
	compressedSize     int
	wholeMatchDistance int
	memsetValue        byte
}

// Extractor pulls successive decompressed blocks out of a compressed
// input slice, mirroring the reference Extractor<In: Read>.
type Extractor struct {
	src    []byte
	pos    int
	header blockHeader

	bitknitState *bitknit.State
	lznaState    *lzna.State

	log logrus.FieldLogger
}

// New builds an Extractor reading from the front of src. log may be nil.
func New(src []byte, log logrus.FieldLogger) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{src: src, log: log}
}

// Read fills buf with decompressed bytes, parsing a fresh block header
// every 256KiB (0x3FFFF-aligned) of output and decoding one quantum at a
// time until buf is full. Input that runs out before then is an error.
// Returns the number of bytes written.
func (e *Extractor) Read(buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		if written&0x3FFFF == 0 {
			if err := e.parseHeader(); err != nil {
				return written, err
			}
		}
		n, err := e.extract(buf, written)
		if err != nil {
			return written, err
		}
		if n == 0 {
			break
		}
		written += n
	}
	return written, nil
}

// Pos returns the number of compressed input bytes consumed so far.
func (e *Extractor) Pos() int {
	return e.pos
}

func (e *Extractor) readBytes(n int) ([]byte, error) {
	if e.pos+n > len(e.src) {
		return nil, errors.Wrapf(oozerr.ErrOutOfBounds, "framer: expected %d more input bytes at %d, have %d", n, e.pos, len(e.src))
	}
	b := e.src[e.pos : e.pos+n]
	e.pos += n
	return b, nil
}

func (e *Extractor) parseHeader() error {
	b, err := e.readBytes(2)
	if err != nil {
		return err
	}
	b1, b2 := b[0], b[1]
	if (b1&0xF) != 0xC || ((b1>>4)&3) != 0 {
		return errors.Wrapf(oozerr.ErrInvalidHeader, "framer: invalid block header %02x%02x", b1, b2)
	}
	dt := int(b2 & 0x7F)
	switch dt {
	case decoderLzna, decoderKraken, decoderMermaid, decoderBitknit, decoderLeviathan:
	default:
		return errors.Wrapf(oozerr.ErrInvalidHeader, "framer: unknown decoder type %#x", dt)
	}
	e.header = blockHeader{
		restartDecoder: (b1>>7)&1 == 1,
		uncompressed:   (b1>>6)&1 == 1,
		decoderType:    dt,
		useChecksums:   (b2 >> 7) != 0,
	}
	e.log.Debugf("framer: parsed block header type=%#x restart=%v uncompressed=%v checksums=%v",
		e.header.decoderType, e.header.restartDecoder, e.header.uncompressed, e.header.useChecksums)
	return nil
}

func (e *Extractor) parseQuantumHeader() (quantumHeader, error) {
	if e.header.blockSize() == largeBlock {
		b, err := e.readBytes(3)
		if err != nil {
			return quantumHeader{}, err
		}
		v := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
		size := v & 0x3FFFF
		if size != 0x3ffff {
			q := quantumHeader{kind: quantumCompressed, compressedSize: size + 1}
			if e.header.useChecksums {
				if _, err := e.readBytes(3); err != nil {
					return quantumHeader{}, err
				}
			}
			return q, nil
		}
		if (v >> 18) == 1 {
			b, err := e.readBytes(1)
			if err != nil {
				return quantumHeader{}, err
			}
			return quantumHeader{kind: quantumMemset, memsetValue: b[0]}, nil
		}
		return quantumHeader{}, errors.Wrapf(oozerr.ErrInvalidHeader, "framer: invalid large quantum header data %#x", v)
	}

	b, err := e.readBytes(2)
	if err != nil {
		return quantumHeader{}, err
	}
	v := int(b[0])<<8 | int(b[1])
	size := v & 0x3FFF
	if size != 0x3FFF {
		q := quantumHeader{kind: quantumCompressed, compressedSize: size + 1}
		if e.header.useChecksums {
			if _, err := e.readBytes(3); err != nil {
				return quantumHeader{}, err
			}
		}
		return q, nil
	}
	switch v >> 14 {
	case 0:
		dist, err := e.parseWholeMatch()
		if err != nil {
			return quantumHeader{}, err
		}
		return quantumHeader{kind: quantumWholeMatch, wholeMatchDistance: dist}, nil
	case 1:
		b, err := e.readBytes(1)
		if err != nil {
			return quantumHeader{}, err
		}
		return quantumHeader{kind: quantumMemset, memsetValue: b[0]}, nil
	case 2:
		return quantumHeader{kind: quantumUncompressed}, nil
	default:
		return quantumHeader{}, errors.Wrapf(oozerr.ErrInvalidHeader, "framer: unexpected small quantum type %d", v>>14)
	}
}

// parseWholeMatch implements the variable-length whole-match distance
// encoding: a 16-bit prefix either is the distance directly (biased) or
// signals a 7-bit-per-byte continuation (biased by +/-0x80 per byte, with
// the terminal byte's top bit set).
func (e *Extractor) parseWholeMatch() (int, error) {
	b, err := e.readBytes(2)
	if err != nil {
		return 0, err
	}
	v := int(b[0])<<8 | int(b[1])
	if v >= 0x8000 {
		return v - 0x8000 + 1, nil
	}
	x := 0
	pos := uint(0)
	for {
		bb, err := e.readBytes(1)
		if err != nil {
			return 0, err
		}
		bv := int(bb[0])
		if bv&0x80 == 0 {
			x += (bv + 0x80) << pos
			pos += 7
			continue
		}
		x += (bv - 0x80) << pos
		return v + 0x8000 + (x << 15) + 1, nil
	}
}

// extract decodes one quantum into output[offset:offset+n] and returns n,
// the number of output bytes produced (always nonzero on success).
func (e *Extractor) extract(output []byte, offset int) (int, error) {
	dstBytesLeft := len(output) - offset
	if bs := e.header.blockSize(); bs < dstBytesLeft {
		dstBytesLeft = bs
	}

	if e.header.uncompressed {
		raw, err := e.readBytes(dstBytesLeft)
		if err != nil {
			return 0, err
		}
		copy(output[offset:offset+dstBytesLeft], raw)
		return dstBytesLeft, nil
	}

	q, err := e.parseQuantumHeader()
	if err != nil {
		return 0, err
	}

	switch q.kind {
	case quantumCompressed:
		input, err := e.readBytes(q.compressedSize)
		if err != nil {
			return 0, err
		}
		bytesRead, err := e.decodeCompressedQuantum(input, output, offset, dstBytesLeft)
		if err != nil {
			return 0, err
		}
		if bytesRead != q.compressedSize {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "framer: consumed %d of %d compressed bytes", bytesRead, q.compressedSize)
		}
		e.log.Debugf("framer: extracted %d bytes from %d compressed", dstBytesLeft, q.compressedSize)
		return dstBytesLeft, nil

	case quantumWholeMatch:
		if q.wholeMatchDistance > offset {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "framer: whole-match distance %d exceeds %d buffered bytes", q.wholeMatchDistance, offset)
		}
		from := offset - q.wholeMatchDistance
		copy(output[offset:offset+dstBytesLeft], output[from:from+dstBytesLeft])
		return dstBytesLeft, nil

	case quantumMemset:
		for i := 0; i < dstBytesLeft; i++ {
			output[offset+i] = q.memsetValue
		}
		return dstBytesLeft, nil

	case quantumUncompressed:
		raw, err := e.readBytes(dstBytesLeft)
		if err != nil {
			return 0, err
		}
		copy(output[offset:offset+dstBytesLeft], raw)
		return dstBytesLeft, nil
	}
	return 0, errors.Wrapf(oozerr.ErrInvalidHeader, "framer: unreachable quantum kind")
}

func (e *Extractor) decodeCompressedQuantum(input, output []byte, offset, dstBytesLeft int) (int, error) {
	switch e.header.decoderType {
	case decoderKraken:
		return decodeQuantum(input, output, offset, dstBytesLeft, kraken.ProcessChunk)
	case decoderMermaid:
		return decodeQuantum(input, output, offset, dstBytesLeft, mermaid.ProcessChunk)
	case decoderLeviathan:
		return decodeQuantum(input, output, offset, dstBytesLeft, leviathan.ProcessChunk)
	case decoderBitknit:
		if e.header.restartDecoder {
			e.bitknitState = bitknit.NewState()
			e.header.restartDecoder = false
		}
		if e.bitknitState == nil {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "framer: bitknit decoder used before restart")
		}
		return bitknit.Decode(e.bitknitState, input, output[:offset+dstBytesLeft], offset)
	case decoderLzna:
		if e.header.restartDecoder {
			e.lznaState = lzna.NewState()
			e.header.restartDecoder = false
		}
		if e.lznaState == nil {
			return 0, errors.Wrapf(oozerr.ErrMalformedStream, "framer: lzna decoder used before restart")
		}
		return lzna.DecodeQuantum(e.lznaState, input, output[:offset+dstBytesLeft], offset)
	default:
		return 0, errors.Wrapf(oozerr.ErrInvalidHeader, "framer: unsupported decoder type %#x", e.header.decoderType)
	}
}

// processChunkFunc is the Algorithm::process shape shared by Kraken,
// Mermaid, and Leviathan.
type processChunkFunc func(mode int, src []byte, out *buffer.Arena, windowBase, dst, dstSize int) error

// decodeQuantum implements Core::decode_quantum: it splits one block's
// compressed body into up to 128KiB chunks, each either a bare entropy
// array (no match copying) or an LZ-coded chunk dispatched to process.
// windowBase is always the absolute start of the whole decompressed
// output (never the current block's offset), matching the reference's
// hardcoded dst_start = Pointer::output(0).
func decodeQuantum(input, output []byte, writeFrom, writeCount int, process processChunkFunc) (int, error) {
	arena := buffer.New(input, output)
	srcPos := 0
	dst := writeFrom
	writeTo := writeFrom + writeCount

	for dst != writeTo {
		dstCount := writeTo - dst
		if dstCount > 0x20000 {
			dstCount = 0x20000
		}
		if len(input)-srcPos < 4 {
			return 0, errors.Wrapf(oozerr.ErrOutOfBounds, "framer: quantum chunk header truncated")
		}
		chunkHdr := int(input[srcPos])<<16 | int(input[srcPos+1])<<8 | int(input[srcPos+2])

		if chunkHdr&0x800000 == 0 {
			decoded, consumed, err := entropy.DecodeBytes(input[srcPos:], dstCount)
			if err != nil {
				return 0, errors.Wrapf(err, "framer: entropy-only chunk")
			}
			if len(decoded) != dstCount {
				return 0, errors.Wrapf(oozerr.ErrMalformedStream, "framer: entropy-only chunk produced %d, want %d", len(decoded), dstCount)
			}
			if err := arena.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: dst}, decoded); err != nil {
				return 0, err
			}
			srcPos += consumed
		} else {
			srcPos += 3
			chunkUsed := chunkHdr & 0x7FFFF
			mode := (chunkHdr >> 19) & 0xF
			if len(input)-srcPos < chunkUsed {
				return 0, errors.Wrapf(oozerr.ErrOutOfBounds, "framer: quantum chunk body truncated")
			}
			arena.Input = input[srcPos : srcPos+chunkUsed]

			if chunkUsed < dstCount {
				if err := process(mode, arena.Input, arena, 0, dst, dstCount); err != nil {
					return 0, err
				}
			} else if chunkUsed > dstCount || mode != 0 {
				return 0, errors.Wrapf(oozerr.ErrMalformedStream, "framer: uncompressed chunk size mismatch")
			} else {
				if err := arena.SetBytes(buffer.Pointer{Space: buffer.SpaceOutput, Index: dst}, arena.Input[:dstCount]); err != nil {
					return 0, err
				}
			}
			srcPos += chunkUsed
		}
		dst += dstCount
	}
	return srcPos, nil
}
