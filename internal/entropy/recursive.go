// SPDX-License-Identifier: MIT
// Source: original_source/src/core.rs Krak_DecodeRecursive (core.rs:786-846),
// ported to plain Go.

package entropy

import (
	"github.com/pkg/errors"

	"github.com/go-ooz/ooz/internal/oozerr"
)

// decodeRecursive implements chunk type 5. The leading byte's low 7 bits,
// n, must be at least 2; its high bit then selects the sub-encoding: when
// clear, n is the count of independently-entropy-coded sub-chunks that
// follow back-to-back, decoded via repeated DecodeBytes calls and
// concatenated to form the chunk's output. When set, the body is a
// single DecodeMultiArray array (arrayCount==1).
func decodeRecursive(src []byte, dstSize int) ([]byte, error) {
	if len(src) < 1 {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "recursive: empty chunk")
	}
	n := int(src[0] & 0x7f)
	if n < 2 {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "recursive: sub-chunk count %d below 2", n)
	}

	if src[0]&0x80 == 0 {
		out := make([]byte, 0, dstSize)
		pos := 1
		for i := 0; i < n; i++ {
			if pos > len(src) {
				return nil, errors.Wrapf(oozerr.ErrMalformedStream, "recursive: truncated sub-chunk %d", i)
			}
			decoded, consumed, err := DecodeBytes(src[pos:], dstSize-len(out))
			if err != nil {
				return nil, errors.Wrapf(err, "recursive: sub-chunk %d", i)
			}
			out = append(out, decoded...)
			pos += consumed
		}
		if len(out) != dstSize {
			return nil, errors.Wrapf(oozerr.ErrMalformedStream, "recursive: decoded %d bytes, want %d", len(out), dstSize)
		}
		return out, nil
	}

	arrays, totalSize, _, err := DecodeMultiArray(src, 1)
	if err != nil {
		return nil, err
	}
	if totalSize != dstSize || len(arrays[0]) != dstSize {
		return nil, errors.Wrapf(oozerr.ErrMalformedStream, "recursive: decoded %d bytes, want %d", len(arrays[0]), dstSize)
	}
	return arrays[0], nil
}
