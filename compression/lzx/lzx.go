// Package lzx decodes the LZX compression format WOF method 1 uses
// (spec.md §4.H). The bitstream framing (16-bit little-endian words,
// MSB-first bit consumption), canonical-Huffman tree encoding, and
// verbatim/aligned/uncompressed block structure follow the LZX variant
// documented for Windows Imaging container streams; a NTFS/WOF compression
// unit is exactly one such stream, bounded to a 32 KiB window.
package lzx

import (
	"encoding/binary"
	"errors"

	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

const (
	mainTreeSize  = 496
	mainTreeSplit = 256
	lengthTreeSize = 249
	alignedTreeSize = 8

	windowSize   = 32768
	maxTreeDepth = 16

	blockVerbatim     = 1
	blockAligned      = 2
	blockUncompressed = 3
)

var lengthFooterBits = [...]byte{
	0, 0, 0, 0, 1, 1, 2, 2,
	3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10,
	11, 11, 12, 12, 13, 13, 14,
}

var basePosition = [...]uint16{
	0, 1, 2, 3, 4, 6, 8, 12,
	16, 24, 32, 48, 64, 96, 128, 192,
	256, 384, 512, 768, 1024, 1536, 2048, 3072,
	4096, 6144, 8192, 12288, 16384, 24576, 32768,
}

var errCorrupt = errors.New("lzx: corrupt compression unit")

// Decoder implements compression.Decoder for one LZX compression unit. Each
// call to Decompress starts a fresh window and LRU offset cache: NTFS/WOF
// units are independently compressed, unlike the streaming WIM container
// this format was originally framed for.
type Decoder struct{}

type decodeState struct {
	src  []byte
	pos  int
	err  error

	c     uint32
	nbits byte

	lru [3]uint16

	unaligned bool

	window [windowSize]byte

	mainLens [mainTreeSize]byte
	lenLens  [lengthTreeSize]byte
}

func (Decoder) Decompress(src, dst []byte) (int, error) {
	if len(dst) > windowSize {
		return 0, errors.New("lzx: unit larger than 32 KiB window")
	}
	st := &decodeState{src: src, lru: [3]uint16{1, 1, 1}}

	produced := 0
	for produced < len(dst) {
		n, err := st.readBlock(uint16(produced))
		if err != nil {
			if produced > 0 && errors.Is(err, errCorrupt) {
				// Final unit may be shorter than the nominal unit size
				// (spec.md §4.G); treat an out-of-data condition after
				// at least one block as a clamp, not a hard failure.
				break
			}
			return produced, err
		}
		if n == 0 {
			break
		}
		produced += n
	}
	copy(dst, st.window[:produced])
	return produced, nil
}

func (st *decodeState) readByte() (byte, bool) {
	if st.pos >= len(st.src) {
		return 0, false
	}
	b := st.src[st.pos]
	st.pos++
	return b, true
}

func (st *decodeState) feed() bool {
	b0, ok := st.readByte()
	if !ok {
		return false
	}
	b1, ok := st.readByte()
	if !ok {
		b1 = 0
	}
	st.c |= (uint32(b1)<<8 | uint32(b0)) << (16 - st.nbits)
	st.nbits += 16
	return true
}

func (st *decodeState) getBits(n byte) uint16 {
	if st.nbits < n {
		st.feed()
	}
	v := uint16(st.c >> (32 - n))
	st.c <<= n
	st.nbits -= n
	return v
}

type huffmanTree struct {
	lens    []byte
	table   []uint16
	maxbits byte
}

func buildTree(lens []byte) *huffmanTree {
	var count [maxTreeDepth + 1]uint
	var max byte
	for _, l := range lens {
		count[l]++
		if max < l {
			max = l
		}
	}
	if max == 0 {
		return &huffmanTree{}
	}

	var first [maxTreeDepth + 1]uint
	code := uint(0)
	for i := byte(1); i <= max; i++ {
		code <<= 1
		first[i] = code
		code += count[i]
	}
	if code != 1<<max {
		return nil
	}

	table := make([]uint16, 1<<max)
	for sym, l := range lens {
		if l == 0 {
			continue
		}
		base := first[l] << (max - l)
		for j := uint(0); j < 1<<(max-l); j++ {
			table[base+j] = uint16(sym)
		}
		first[l]++
	}
	return &huffmanTree{lens: lens, table: table, maxbits: max}
}

func (st *decodeState) getCode(h *huffmanTree) uint16 {
	if h.maxbits == 0 {
		st.err = errCorrupt
		return 0
	}
	if st.nbits < maxTreeDepth {
		st.feed()
	}
	c := h.table[st.c>>(32-h.maxbits)]
	n := h.lens[c]
	if st.nbits < n {
		st.err = errCorrupt
		return 0
	}
	st.c <<= n
	st.nbits -= n
	return c
}

func mod17(b byte) byte {
	for b >= 17 {
		b -= 17
	}
	return b
}

// readTreeLengths decodes path lengths for one tree, delta-coded against its
// previous value (zero on first use) via a small pre-tree, per the LZX path
// length encoding.
func (st *decodeState) readTreeLengths(lens []byte) error {
	var preLens [20]byte
	for i := range preLens {
		preLens[i] = byte(st.getBits(4))
	}
	if st.err != nil {
		return st.err
	}
	pre := buildTree(preLens[:])
	if pre == nil {
		return errCorrupt
	}

	for i := 0; i < len(lens); {
		c := byte(st.getCode(pre))
		if st.err != nil {
			return st.err
		}
		switch {
		case c <= 16:
			lens[i] = mod17(lens[i] + 17 - c)
			i++
		case c == 17:
			n := int(st.getBits(4)) + 4
			if i+n > len(lens) {
				return errCorrupt
			}
			for j := 0; j < n; j++ {
				lens[i+j] = 0
			}
			i += n
		case c == 18:
			n := int(st.getBits(5)) + 20
			if i+n > len(lens) {
				return errCorrupt
			}
			for j := 0; j < n; j++ {
				lens[i+j] = 0
			}
			i += n
		case c == 19:
			n := int(st.getBits(1)) + 4
			if i+n > len(lens) {
				return errCorrupt
			}
			c = byte(st.getCode(pre))
			if c > 16 {
				return errCorrupt
			}
			l := mod17(lens[i] + 17 - c)
			for j := 0; j < n; j++ {
				lens[i+j] = l
			}
			i += n
		default:
			return errCorrupt
		}
	}
	return st.err
}

func (st *decodeState) readBlockHeader() (byte, uint16, error) {
	if st.unaligned {
		if _, ok := st.readByte(); !ok {
			return 0, 0, errCorrupt
		}
		st.unaligned = false
	}

	blockType := byte(st.getBits(3))
	full := st.getBits(1)
	var size uint16
	if full != 0 {
		size = windowSize
	} else {
		size = st.getBits(16)
		if size > windowSize {
			return 0, 0, errCorrupt
		}
	}
	if st.err != nil {
		return 0, 0, st.err
	}

	switch blockType {
	case blockVerbatim, blockAligned:
	case blockUncompressed:
		n := st.nbits
		if n == 0 {
			n = 16
		}
		st.getBits(n)
		if st.err != nil {
			return 0, 0, st.err
		}
		var lru [12]byte
		for i := range lru {
			b, ok := st.readByte()
			if !ok {
				return 0, 0, errCorrupt
			}
			lru[i] = b
		}
		st.lru[0] = uint16(binary.LittleEndian.Uint32(lru[0:4]))
		st.lru[1] = uint16(binary.LittleEndian.Uint32(lru[4:8]))
		st.lru[2] = uint16(binary.LittleEndian.Uint32(lru[8:12]))
	default:
		return 0, 0, errCorrupt
	}
	return blockType, size, nil
}

func (st *decodeState) readTrees(readAligned bool) (main, length, aligned *huffmanTree, err error) {
	if readAligned {
		var alignedLens [alignedTreeSize]byte
		for i := range alignedLens {
			alignedLens[i] = byte(st.getBits(3))
		}
		aligned = buildTree(alignedLens[:])
		if aligned == nil {
			return nil, nil, nil, errCorrupt
		}
	}

	if err = st.readTreeLengths(st.mainLens[:mainTreeSplit]); err != nil {
		return
	}
	if err = st.readTreeLengths(st.mainLens[mainTreeSplit:]); err != nil {
		return
	}
	main = buildTree(st.mainLens[:])
	if main == nil {
		return nil, nil, nil, errCorrupt
	}

	if err = st.readTreeLengths(st.lenLens[:]); err != nil {
		return
	}
	length = buildTree(st.lenLens[:])
	if length == nil {
		return nil, nil, nil, errCorrupt
	}
	return main, length, aligned, st.err
}

func (st *decodeState) readCompressedBlock(start, end uint16, main, length, aligned *huffmanTree) (int, error) {
	for i := start; i < end; {
		sym := st.getCode(main)
		if st.err != nil {
			return int(i - start), st.err
		}
		if sym < 256 {
			st.window[i] = byte(sym)
			i++
			continue
		}

		header := (sym - 256) % 8
		slot := (sym - 256) / 8

		var matchLen uint16
		if header == 7 {
			matchLen = st.getCode(length) + 7
		} else {
			matchLen = header
		}
		matchLen += 2

		var matchOffset uint16
		if slot < 3 {
			matchOffset = st.lru[slot]
			st.lru[slot] = st.lru[0]
			st.lru[0] = matchOffset
		} else {
			footerBits := lengthFooterBits[slot]
			var verbatim, alignedBits uint16
			if footerBits > 0 {
				if aligned != nil && footerBits >= 3 {
					verbatim = st.getBits(footerBits-3) * 8
					alignedBits = st.getCode(aligned)
				} else {
					verbatim = st.getBits(footerBits)
				}
			}
			matchOffset = basePosition[slot] + verbatim + alignedBits - 2
			st.lru[2] = st.lru[1]
			st.lru[1] = st.lru[0]
			st.lru[0] = matchOffset
		}

		if matchOffset > i || matchLen > end-i {
			return int(i - start), errCorrupt
		}
		for j := uint16(0); j < matchLen; j++ {
			st.window[i+j] = st.window[i+j-matchOffset]
		}
		i += matchLen
	}
	return int(end - start), nil
}

func (st *decodeState) readBlock(start uint16) (int, error) {
	blockType, size, err := st.readBlockHeader()
	if err != nil {
		return 0, err
	}

	if blockType == blockUncompressed {
		if size%2 == 1 {
			st.unaligned = true
		}
		for i := uint16(0); i < size; i++ {
			b, ok := st.readByte()
			if !ok {
				return int(i), ntfserr.ErrShortUnit
			}
			st.window[start+i] = b
		}
		return int(size), nil
	}

	main, length, aligned, err := st.readTrees(blockType == blockAligned)
	if err != nil {
		return 0, err
	}
	return st.readCompressedBlock(start, start+size, main, length, aligned)
}
