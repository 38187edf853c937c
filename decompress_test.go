// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/lzo decompress_test.go (table/error-path
// structure); test bodies are new since this decoder has no encoder to
// round-trip against, so they hand-construct minimal framed streams using
// the block-level "uncompressed" flag, which bypasses every codec.

package ooz

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecompress_OptionsRequired(t *testing.T) {
	_, err := Decompress([]byte{0x4C, 0x06, 0x00}, nil)
	if !errors.Is(err, ErrOptionsRequired) {
		t.Fatalf("expected ErrOptionsRequired, got %v", err)
	}

	_, err = DecompressFromReader(strings.NewReader("\x00"), nil)
	if !errors.Is(err, ErrOptionsRequired) {
		t.Fatalf("expected ErrOptionsRequired (reader), got %v", err)
	}
}

func TestDecompress_EmptyInput(t *testing.T) {
	_, err := Decompress(nil, DefaultDecompressOptions(0))
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

// uncompressedStream builds a single-block, block-level-uncompressed Oodle
// stream: a 2-byte header (uncompressed=1, decoderType=kraken) followed by
// payload verbatim.
func uncompressedStream(payload []byte) []byte {
	return append([]byte{0x4C, 0x06}, payload...)
}

func TestDecompress_Uncompressed(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 64)
	src := uncompressedStream(payload)

	out, err := Decompress(src, DefaultDecompressOptions(len(payload)))
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("decoded mismatch")
	}
}

func TestDecompressN_ReturnsConsumedBytes(t *testing.T) {
	payload := []byte("decompress-n-consumed-bytes-test")
	cmp := uncompressedStream(payload)

	decoded, nRead, err := DecompressN(cmp, DefaultDecompressOptions(len(payload)))
	if err != nil {
		t.Fatalf("DecompressN failed: %v", err)
	}
	if nRead != len(cmp) {
		t.Errorf("nRead = %d, want %d", nRead, len(cmp))
	}
	if !bytes.Equal(decoded, payload) {
		t.Errorf("decoded mismatch")
	}

	extra := []byte("trailing-bytes-not-consumed")
	src := append(append([]byte(nil), cmp...), extra...)
	decoded2, nRead2, err := DecompressN(src, DefaultDecompressOptions(len(payload)))
	if err != nil {
		t.Fatalf("DecompressN with trailing failed: %v", err)
	}
	if nRead2 != len(cmp) {
		t.Errorf("nRead with trailing = %d, want %d", nRead2, len(cmp))
	}
	if !bytes.Equal(decoded2, payload) {
		t.Errorf("decoded with trailing mismatch")
	}
	if !bytes.Equal(src[nRead2:], extra) {
		t.Errorf("advancing by nRead should leave trailing bytes unchanged")
	}
}

func TestDecompress_TruncatedInputAlwaysFails(t *testing.T) {
	payload := bytes.Repeat([]byte("truncation-probe"), 16)
	cmp := uncompressedStream(payload)

	maxCut := min(32, len(cmp)-1)
	for cut := 1; cut <= maxCut; cut++ {
		truncated := cmp[:len(cmp)-cut]
		_, err := Decompress(truncated, DefaultDecompressOptions(len(payload)))
		if err == nil {
			t.Fatalf("expected error for cut=%d", cut)
		}
	}
}

func TestDecompressFromReader_MaxInputSize(t *testing.T) {
	payload := bytes.Repeat([]byte("xyz"), 200)
	cmp := uncompressedStream(payload)

	opts := DefaultDecompressOptions(len(payload))
	opts.MaxInputSize = len(cmp) - 1
	_, err := DecompressFromReader(bytes.NewReader(cmp), opts)
	if !errors.Is(err, ErrInputTooLarge) {
		t.Fatalf("expected ErrInputTooLarge, got %v", err)
	}
}

func TestDecompressFromReader_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("reader-round-trip"), 10)
	cmp := uncompressedStream(payload)

	out, err := DecompressFromReader(bytes.NewReader(cmp), DefaultDecompressOptions(len(payload)))
	if err != nil {
		t.Fatalf("DecompressFromReader failed: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("decoded mismatch")
	}
}
