// Package lzxpress implements the two XPRESS variants NTFS/WOF use (spec.md
// §4.H): the classic "plain" LZ77 form and the Huffman-coded form WOF
// methods 0, 2 and 3 select. Both are treated, per spec.md §4.H, as
// self-contained per-compression-unit decoders with the
// Decompress(src, dst) -> (n, error) contract compression.Decoder expects.
package lzxpress

import (
	"fmt"

	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

// HuffmanDecoder implements compression.Decoder for LZXPRESS-Huffman
// compression units (WOF methods 0, 2, 3).
type HuffmanDecoder struct{}

// Decompress decodes one LZXPRESS-Huffman unit. src begins with the 256-byte
// prefix-code length table described in huffman.go, followed by the
// Huffman-coded token stream.
func (HuffmanDecoder) Decompress(src, dst []byte) (int, error) {
	if len(src) < tableBytes {
		return 0, fmt.Errorf("lzxpress: huffman table needs %d bytes, got %d: %w", tableBytes, len(src), ntfserr.ErrShortUnit)
	}
	lens := parseLengths(src[:tableBytes])
	table := buildHuffmanTable(lens)

	r := newBitReader(src[tableBytes:])
	di := 0
	for di < len(dst) {
		sym, ok := table.decodeSymbol(r)
		if !ok {
			break
		}
		if sym < 256 {
			dst[di] = byte(sym)
			di++
			continue
		}

		code := sym - 256
		lengthNibble := code & 0x0F
		distanceBits := uint(code >> 4)

		length := int(lengthNibble) + 3
		if lengthNibble == 0x0F {
			extra, ok := r.bits(8)
			if !ok {
				return di, fmt.Errorf("lzxpress: truncated length extension: %w", ntfserr.ErrShortUnit)
			}
			length = int(lengthNibble) + 3 + int(extra)
			if extra == 0xFF {
				wide, ok := r.bits(16)
				if !ok {
					return di, fmt.Errorf("lzxpress: truncated wide length extension: %w", ntfserr.ErrShortUnit)
				}
				length = int(wide)
			}
		}

		distance := 1
		if distanceBits > 0 {
			extra, ok := r.bits(distanceBits)
			if !ok {
				return di, fmt.Errorf("lzxpress: truncated distance extension: %w", ntfserr.ErrShortUnit)
			}
			distance = (1 << distanceBits) + int(extra)
		}

		if distance > di {
			return di, fmt.Errorf("lzxpress: back-reference distance %d exceeds output position %d: %w", distance, di, ntfserr.ErrBadBackReference)
		}
		for i := 0; i < length && di < len(dst); i++ {
			dst[di] = dst[di-distance]
			di++
		}
	}
	return di, nil
}
