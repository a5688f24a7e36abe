package lzxpress

import (
	"encoding/binary"
	"fmt"

	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

// PlainDecoder implements compression.Decoder for the original,
// non-Huffman-coded XPRESS LZ77 format (spec.md §1's "LZXPRESS" entry,
// distinct from the Huffman-coded WOF variant). Every 32 tokens are preceded
// by a 4-byte little-endian flags word, consumed MSB-first, one bit per
// token: 0 selects a literal byte, 1 a back-reference.
type PlainDecoder struct{}

func (PlainDecoder) Decompress(src, dst []byte) (int, error) {
	si, di := 0, 0
	var flags uint32
	var flagBits uint

	nextFlag := func() (bool, bool) {
		if flagBits == 0 {
			if si+4 > len(src) {
				return false, false
			}
			flags = binary.LittleEndian.Uint32(src[si:])
			si += 4
			flagBits = 32
		}
		flagBits--
		bit := flags&(1<<flagBits) != 0
		return bit, true
	}

	for di < len(dst) {
		isMatch, ok := nextFlag()
		if !ok {
			break
		}
		if !isMatch {
			if si >= len(src) {
				break
			}
			dst[di] = src[si]
			si++
			di++
			continue
		}

		if si+2 > len(src) {
			return di, fmt.Errorf("lzxpress: truncated match token: %w", ntfserr.ErrShortUnit)
		}
		word := binary.LittleEndian.Uint16(src[si:])
		si += 2

		lengthIndicator := int(word >> 13)
		offset := int(word&0x1FFF) + 1

		length := lengthIndicator + 3
		if lengthIndicator == 7 {
			if si >= len(src) {
				return di, fmt.Errorf("lzxpress: truncated length extension: %w", ntfserr.ErrShortUnit)
			}
			extra := src[si]
			si++
			length = 7 + 3 + int(extra)
			if extra == 0xFF {
				if si+2 > len(src) {
					return di, fmt.Errorf("lzxpress: truncated wide length extension: %w", ntfserr.ErrShortUnit)
				}
				length = int(binary.LittleEndian.Uint16(src[si:]))
				si += 2
			}
		}

		if offset > di {
			return di, fmt.Errorf("lzxpress: back-reference offset %d exceeds output position %d: %w", offset, di, ntfserr.ErrBadBackReference)
		}
		for i := 0; i < length && di < len(dst); i++ {
			dst[di] = dst[di-offset]
			di++
		}
	}
	return di, nil
}
