// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/lzo

package ooz

import (
	"errors"

	"github.com/go-ooz/ooz/internal/oozerr"
)

// Sentinel errors for decompression, matched via errors.Is. Internal
// decoder packages wrap these with github.com/pkg/errors to attach
// positional context; the sentinel identity survives the wrap.
var (
	// ErrOutOfBounds is returned when a pointer read or write would cross
	// its logical buffer space.
	ErrOutOfBounds = oozerr.ErrOutOfBounds

	// ErrInvalidHeader is returned when a block or quantum header violates
	// a reserved-bit invariant, or names an unknown decoder type.
	ErrInvalidHeader = oozerr.ErrInvalidHeader

	// ErrMalformedStream is returned when decoded data fails an internal
	// consistency check (size mismatch, bad weight sum, unconsumed
	// residual stream, out-of-range recent-offset index, and so on).
	ErrMalformedStream = oozerr.ErrMalformedStream

	// ErrUnsupportedFeature is returned for the reserved "excess bytes"
	// flag on Kraken/Leviathan streams, which this decoder refuses just
	// as the reference implementation does.
	ErrUnsupportedFeature = oozerr.ErrUnsupportedFeature

	// ErrOptionsRequired is returned when Decompress is called with nil options.
	ErrOptionsRequired = errors.New("ooz: options required")

	// ErrEmptyInput is returned when src has zero length.
	ErrEmptyInput = errors.New("ooz: empty input")

	// ErrInputTooLarge is returned by DecompressFromReader when opts.MaxInputSize
	// is set and more bytes are available than that limit.
	ErrInputTooLarge = errors.New("ooz: input too large")
)
