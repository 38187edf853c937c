// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/lzo (public entry-point shape: Decompress /
// DecompressN / DecompressFromReader over a fixed-size output buffer);
// decoding itself is internal/framer's block/quantum loop.

package ooz

import (
	"io"

	"github.com/go-ooz/ooz/internal/framer"
)

// Decompress decompresses an Oodle stream from src into a buffer of length
// opts.OutLen. Returns ErrOptionsRequired if opts is nil, ErrEmptyInput if
// src is empty. On success returns the decompressed slice, of length
// opts.OutLen; input that ends before OutLen bytes are decoded is an error.
func Decompress(src []byte, opts *DecompressOptions) ([]byte, error) {
	out, _, err := DecompressN(src, opts)
	return out, err
}

// DecompressN decompresses an Oodle stream from src and returns the decoded
// slice, the number of input bytes consumed (nRead), and an error. nRead is
// 0 on error. Use this when advancing a stream (e.g. back-to-back
// compressed blocks sharing one underlying buffer).
func DecompressN(src []byte, opts *DecompressOptions) ([]byte, int, error) {
	if opts == nil {
		return nil, 0, ErrOptionsRequired
	}
	if len(src) == 0 {
		return nil, 0, ErrEmptyInput
	}
	if opts.OutLen < 0 {
		return nil, 0, ErrOptionsRequired
	}

	dst := make([]byte, opts.OutLen)
	ex := framer.New(src, opts.logger())
	n, err := ex.Read(dst)
	if err != nil {
		return nil, 0, err
	}

	return dst[:n], ex.Pos(), nil
}

// DecompressFromReader reads the full stream then calls Decompress. No
// decoding logic of its own. If opts.MaxInputSize > 0 and more bytes are
// available than that, returns ErrInputTooLarge.
func DecompressFromReader(r io.Reader, opts *DecompressOptions) ([]byte, error) {
	if opts == nil {
		return nil, ErrOptionsRequired
	}

	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if opts.MaxInputSize > 0 && len(src) > opts.MaxInputSize {
		return nil, ErrInputTooLarge
	}

	return Decompress(src, opts)
}
