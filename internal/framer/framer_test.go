// SPDX-License-Identifier: MIT
// Source: original_source/src/extractor/mod.rs framing layout, tests written
// in the teacher's table-driven, hand-constructed-bytes style.

package framer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-ooz/ooz/internal/oozerr"
)

func TestParseHeader_ValidatesReservedBits(t *testing.T) {
	tests := []struct {
		name    string
		b1, b2  byte
		wantErr bool
	}{
		{"kraken, no flags", 0x0C, 0x06, false},
		{"mermaid, uncompressed", 0x4C, 0x0A, false},
		{"bitknit, restart+checksums", 0xCC, 0x8B, false},
		{"bad low nibble", 0x0D, 0x06, true},
		{"bad reserved bits", 0x2C, 0x06, true},
		{"unknown decoder type", 0x0C, 0x7F, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New([]byte{tt.b1, tt.b2}, nil)
			err := e.parseHeader()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBlockHeader_BlockSize(t *testing.T) {
	tests := []struct {
		decoderType int
		want        int
	}{
		{decoderKraken, largeBlock},
		{decoderMermaid, largeBlock},
		{decoderLeviathan, largeBlock},
		{decoderLzna, smallBlock},
		{decoderBitknit, smallBlock},
	}
	for _, tt := range tests {
		h := blockHeader{decoderType: tt.decoderType}
		if got := h.blockSize(); got != tt.want {
			t.Errorf("decoderType %#x: blockSize() = %#x, want %#x", tt.decoderType, got, tt.want)
		}
	}
}

func TestParseQuantumHeader_LargeBlockCompressed(t *testing.T) {
	// size field 9 (0-based), so compressed_size = 10.
	e := New([]byte{0x00, 0x00, 0x09}, nil)
	e.header = blockHeader{decoderType: decoderKraken}
	q, err := e.parseQuantumHeader()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.kind != quantumCompressed || q.compressedSize != 10 {
		t.Fatalf("got %+v", q)
	}
}

func TestParseQuantumHeader_LargeBlockMemset(t *testing.T) {
	// v = 0x3FFFF | (1<<18) = 0x7FFFF, BE 3 bytes: 0x07 0xFF 0xFF.
	e := New([]byte{0x07, 0xFF, 0xFF, 0x42}, nil)
	e.header = blockHeader{decoderType: decoderKraken}
	q, err := e.parseQuantumHeader()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.kind != quantumMemset || q.memsetValue != 0x42 {
		t.Fatalf("got %+v", q)
	}
}

func TestParseQuantumHeader_SmallBlockVariants(t *testing.T) {
	t.Run("compressed", func(t *testing.T) {
		// size field 3, compressed_size = 4.
		e := New([]byte{0x00, 0x03}, nil)
		e.header = blockHeader{decoderType: decoderBitknit}
		q, err := e.parseQuantumHeader()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if q.kind != quantumCompressed || q.compressedSize != 4 {
			t.Fatalf("got %+v", q)
		}
	})

	t.Run("uncompressed", func(t *testing.T) {
		// v = 0x3FFF | (2<<14) = 0xBFFF.
		e := New([]byte{0xBF, 0xFF}, nil)
		e.header = blockHeader{decoderType: decoderBitknit}
		q, err := e.parseQuantumHeader()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if q.kind != quantumUncompressed {
			t.Fatalf("got %+v", q)
		}
	})

	t.Run("memset", func(t *testing.T) {
		// v = 0x3FFF | (1<<14) = 0x7FFF.
		e := New([]byte{0x7F, 0xFF, 0x09}, nil)
		e.header = blockHeader{decoderType: decoderLzna}
		q, err := e.parseQuantumHeader()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if q.kind != quantumMemset || q.memsetValue != 0x09 {
			t.Fatalf("got %+v", q)
		}
	})
}

func TestParseWholeMatch(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		// v = 0x8005 >= 0x8000, distance = v - 0x8000 + 1.
		e := New([]byte{0x80, 0x05}, nil)
		dist, err := e.parseWholeMatch()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := 0x05 + 1; dist != want {
			t.Errorf("dist = %d, want %d", dist, want)
		}
	})

	t.Run("single continuation byte", func(t *testing.T) {
		// v = 0x1234 < 0x8000; terminal continuation byte 0x80 contributes 0.
		e := New([]byte{0x12, 0x34, 0x80}, nil)
		dist, err := e.parseWholeMatch()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := 0x1234 + 0x8000 + 1
		if dist != want {
			t.Errorf("dist = %d, want %d", dist, want)
		}
	})
}

func TestExtractor_Read_BlockLevelUncompressed(t *testing.T) {
	payload := []byte("hello, oodle!")
	src := append([]byte{0x4C, 0x06}, payload...) // uncompressed=1, decoderType=kraken
	e := New(src, nil)

	out := make([]byte, len(payload))
	n, err := e.Read(out)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("n = %d, want %d", n, len(payload))
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("out = %q, want %q", out, payload)
	}
	if e.Pos() != len(src) {
		t.Errorf("Pos() = %d, want %d", e.Pos(), len(src))
	}
}

func TestExtractor_Read_QuantumLevelUncompressed(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	src := []byte{0x0C, 0x0B, 0xBF, 0xFF} // block-level compressed, bitknit, quantum kind=Uncompressed
	src = append(src, payload...)
	e := New(src, nil)

	out := make([]byte, len(payload))
	n, err := e.Read(out)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != len(payload) || !bytes.Equal(out, payload) {
		t.Fatalf("got n=%d out=%v, want n=%d out=%v", n, out, len(payload), payload)
	}
}

func TestExtractor_Read_TruncatedInput(t *testing.T) {
	payload := []byte("truncate me")
	full := append([]byte{0x4C, 0x06}, payload...)

	for cut := 1; cut < len(payload); cut++ {
		src := full[:len(full)-cut]
		e := New(src, nil)
		out := make([]byte, len(payload))
		_, err := e.Read(out)
		if err == nil {
			t.Fatalf("cut=%d: expected error", cut)
		}
		if !errors.Is(err, oozerr.ErrOutOfBounds) {
			t.Fatalf("cut=%d: expected ErrOutOfBounds, got %v", cut, err)
		}
	}
}
