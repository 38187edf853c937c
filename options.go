// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/lzo

package ooz

import (
	"github.com/sirupsen/logrus"
)

// DecompressOptions configures decompression.
// OutLen is required (expected decompressed size, since Oodle streams don't
// self-describe their plaintext size); Logger and MaxInputSize are optional.
type DecompressOptions struct {
	// OutLen is the expected decompressed size.
	OutLen int
	// MaxInputSize limits how many bytes DecompressFromReader may read (0 = no limit).
	MaxInputSize int
	// Logger receives debug-level tracing of block/quantum/algorithm
	// dispatch. Defaults to a silenced logger when nil.
	Logger logrus.FieldLogger
}

// DefaultDecompressOptions returns options with the given output length, no
// input limit, and a silenced logger.
func DefaultDecompressOptions(outLen int) *DecompressOptions {
	return &DecompressOptions{OutLen: outLen, Logger: silentLogger()}
}

func silentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func (o *DecompressOptions) logger() logrus.FieldLogger {
	if o == nil || o.Logger == nil {
		return silentLogger()
	}
	return o.Logger
}
