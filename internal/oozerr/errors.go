// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/lzo (sentinel-error idiom), taxonomy per
// spec.md §7.

// Package oozerr defines the four error kinds shared by every decoder
// package, so that internal packages and the public API can both match
// against the same sentinels via errors.Is.
package oozerr

import "errors"

var (
	// ErrOutOfBounds is returned when a pointer read or write would cross
	// its logical space's bounds.
	ErrOutOfBounds = errors.New("ooz: out of bounds")

	// ErrInvalidHeader is returned when a block or quantum header violates
	// a reserved-bit invariant, or declares an unknown decoder type.
	ErrInvalidHeader = errors.New("ooz: invalid header")

	// ErrMalformedStream is returned when decoded data fails an internal
	// consistency check: a decoded-size mismatch, a tANS weight sum that
	// doesn't equal L, an invalid Huffman code-length sum, a residual
	// stream left unconsumed at end-of-quantum, an out-of-range
	// recent-offset index, a match source below the window base, and
	// so on.
	ErrMalformedStream = errors.New("ooz: malformed stream")

	// ErrUnsupportedFeature is returned for the reserved "excess bytes"
	// flag on Kraken/Leviathan's packed-flag byte, which the reference
	// decoder unconditionally refuses.
	ErrUnsupportedFeature = errors.New("ooz: unsupported feature")
)
