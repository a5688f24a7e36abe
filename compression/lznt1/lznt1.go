// Package lznt1 decodes the LZNT1 compression format NTFS uses for
// natively-compressed attributes (spec.md §4.H). A compression unit is a
// sequence of up to cu_size/4096 chunks, each independently LZ77-coded or
// stored raw; a chunk header of 0x0000 before the unit's nominal chunk count
// is reached means the remainder of the unit is implicit zero.
package lznt1

import (
	"encoding/binary"
	"fmt"

	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

const chunkSize = 4096

// Decoder implements compression.Decoder for LZNT1 compression units.
type Decoder struct{}

// Decompress decodes src (the physical, non-sparse bytes of one compression
// unit) into dst, which must be sized to the unit's logical size (a multiple
// of 4096). It returns the number of logical bytes produced; trailing chunks
// implied by a short src (an early zero header, or src simply running out)
// are left zero in dst, matching the final-unit clamp in spec.md §4.G.
func (Decoder) Decompress(src, dst []byte) (int, error) {
	produced := 0
	for produced < len(dst) {
		if len(src) < 2 {
			break
		}
		header := binary.LittleEndian.Uint16(src)
		if header == 0 {
			break
		}
		chunkLength := int(header&0x0FFF) + 3
		isCompressed := header&0x8000 != 0

		if len(src) < chunkLength {
			return produced, fmt.Errorf("lznt1: chunk claims %d bytes, only %d remain: %w", chunkLength, len(src), ntfserr.ErrShortUnit)
		}
		payload := src[2:chunkLength]
		src = src[chunkLength:]

		out := dst[produced:]
		if len(out) > chunkSize {
			out = out[:chunkSize]
		}

		var n int
		var err error
		if isCompressed {
			n, err = decodeCompressedChunk(payload, out)
		} else {
			n = copy(out, payload)
		}
		if err != nil {
			return produced, err
		}
		produced += n
		if n < chunkSize {
			// A short chunk (raw copy shorter than 4096, or a compressed
			// chunk that decoded to fewer bytes) only legally occurs as
			// the stream's final chunk.
			break
		}
	}
	return produced, nil
}

// decodeCompressedChunk decodes one LZ77-coded chunk: repeated groups of one
// flag byte (LSB first) selecting 8 tokens, each either a literal byte or a
// back-reference whose length/offset bit split depends on the current output
// position (spec.md §4.H).
func decodeCompressedChunk(src []byte, dst []byte) (int, error) {
	si, di := 0, 0
	for si < len(src) && di < len(dst) {
		flags := src[si]
		si++
		for bit := 0; bit < 8 && si < len(src) && di < len(dst); bit++ {
			if flags&(1<<uint(bit)) == 0 {
				dst[di] = src[si]
				si++
				di++
				continue
			}
			if si+1 >= len(src) {
				return di, fmt.Errorf("lznt1: truncated back-reference token: %w", ntfserr.ErrShortUnit)
			}
			token := uint16(src[si]) | uint16(src[si+1])<<8
			si += 2

			lengthBits := splitLengthBits(di)
			length := int(token&((1<<uint(lengthBits))-1)) + 3
			offset := int(token>>uint(lengthBits)) + 1

			if offset > di {
				return di, fmt.Errorf("lznt1: back-reference offset %d exceeds output position %d: %w", offset, di, ntfserr.ErrBadBackReference)
			}
			for i := 0; i < length && di < len(dst); i++ {
				dst[di] = dst[di-offset]
				di++
			}
		}
	}
	return di, nil
}

// splitLengthBits returns the number of bits of a back-reference token spent
// on length (the remainder encodes offset), per spec.md §4.H: with
// k = clamp(ceil(log2(p)), 4, 12), offset gets k bits and length gets 16-k.
func splitLengthBits(p int) int {
	k := 4
	for (1 << uint(k)) < p && k < 12 {
		k++
	}
	return 16 - k
}
