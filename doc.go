// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/lzo

/*
Package ooz decompresses data produced by the Oodle family of LZ77-style
compressors: Kraken, Mermaid, Selkie, Leviathan, LZNA, and Bitknit. It reads
a stream of independently framed blocks and emits the reconstructed byte
sequence; it does not compress, does not verify checksums, and does not
support seeking.

OutLen is required (use DecompressOptions), since the framing format does
not self-describe the plaintext size. From a byte slice:

	out, err := ooz.Decompress(compressed, ooz.DefaultDecompressOptions(expectedLen))

To get the number of input bytes consumed (e.g. for back-to-back compressed
blocks):

	out, nRead, err := ooz.DecompressN(compressed, ooz.DefaultDecompressOptions(expectedLen))
	// advance: compressed = compressed[nRead:]

From an io.Reader:

	out, err := ooz.DecompressFromReader(r, ooz.DefaultDecompressOptions(expectedLen))
*/
package ooz
