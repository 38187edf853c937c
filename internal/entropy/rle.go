// SPDX-License-Identifier: MIT
// Source: original_source/src/core.rs (Krak_DecodeRLE), ported to plain Go.

package entropy

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/oozerr"
)

// decodeRLE implements the backward-scanning RLE command stream (spec.md
// §4.3). Literal copy bytes are read forward from the front of the command
// buffer while command bytes themselves are read backward from the end;
// the two cursors meet in the middle.
func decodeRLE(src []byte, dstSize int) ([]byte, error) {
	if len(src) <= 1 {
		out := make([]byte, dstSize)
		if len(src) == 1 {
			for i := range out {
				out[i] = src[0]
			}
		}
		return out, nil
	}

	cmdCompressed := src[0] != 0
	body := src[1:]

	var cmd []byte
	if cmdCompressed {
		decoded, _, err := DecodeBytes(body, len(body))
		if err != nil {
			return nil, err
		}
		cmd = decoded
	} else {
		cmd = body
	}

	out := make([]byte, dstSize)
	dst := 0
	front := 0       // next literal-copy-source byte, consumed forward
	back := len(cmd) // next command byte is cmd[back-1], consumed backward
	var rleByte byte

	takeCopy := func(n int) error {
		if n < 0 || front+n > back {
			return errors.Wrapf(oozerr.ErrMalformedStream, "rle: copy length %d overruns command region", n)
		}
		if dst+n > len(out) {
			return errors.Wrapf(oozerr.ErrMalformedStream, "rle: copy overruns output")
		}
		copy(out[dst:dst+n], cmd[front:front+n])
		front += n
		dst += n
		return nil
	}
	fill := func(n int) error {
		if n < 0 || dst+n > len(out) {
			return errors.Wrapf(oozerr.ErrMalformedStream, "rle: fill overruns output")
		}
		for i := 0; i < n; i++ {
			out[dst+i] = rleByte
		}
		dst += n
		return nil
	}

	for front < back {
		b := cmd[back-1]
		switch {
		case b > 0x2f:
			back--
			bytesToCopy := int(^b & 0xF)
			bytesToRLE := int(b >> 4)
			if err := takeCopy(bytesToCopy); err != nil {
				return nil, err
			}
			if err := fill(bytesToRLE); err != nil {
				return nil, err
			}

		case b >= 0x10:
			if back-front < 2 {
				return nil, errors.Wrapf(oozerr.ErrMalformedStream, "rle: truncated 2-byte command")
			}
			data := int(cmd[back-2]) | int(cmd[back-1])<<8
			back -= 2
			data -= 4096
			if err := takeCopy(data & 0x3F); err != nil {
				return nil, err
			}
			if err := fill(data >> 6); err != nil {
				return nil, err
			}

		case b == 1:
			back--
			if front >= back {
				return nil, errors.Wrapf(oozerr.ErrMalformedStream, "rle: missing rle byte")
			}
			rleByte = cmd[front]
			front++

		case b >= 9:
			if back-front < 2 {
				return nil, errors.Wrapf(oozerr.ErrMalformedStream, "rle: truncated rle-length command")
			}
			data := int(cmd[back-2]) | int(cmd[back-1])<<8
			back -= 2
			if err := fill((data - 0x8ff) * 128); err != nil {
				return nil, err
			}

		default:
			if back-front < 2 {
				return nil, errors.Wrapf(oozerr.ErrMalformedStream, "rle: truncated copy-length command")
			}
			data := int(cmd[back-2]) | int(cmd[back-1])<<8
			back -= 2
			if err := takeCopy((data - 511) * 64); err != nil {
				return nil, err
			}
		}
	}

	if dst != len(out) {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "rle: produced %d bytes, want %d", dst, len(out))
	}
	return out, nil
}
