// Package wof decodes Windows Overlay Filter per-file compression (spec.md
// §4.I): a reparse point tags a file as WOF-compressed, and its $DATA stream
// is, at the NTFS level, an ordinary (uncompressed) attribute holding a
// provider-specific payload — here, the WOF chunk-offset table followed by
// the compressed chunks themselves. wof.Stream presents that payload as the
// original file's logical bytes, the same way clusterstream.Stream presents
// an NTFS-compressed attribute.
package wof

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/libyal/libfsntfs-sub001/clusterstream"
	"github.com/libyal/libfsntfs-sub001/compression"
	"github.com/libyal/libfsntfs-sub001/compression/lzx"
	"github.com/libyal/libfsntfs-sub001/compression/lzxpress"
	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

// Method identifies the compression algorithm a WOF provider used, carried
// in the reparse point's data (spec.md §4.I).
type Method uint32

const (
	MethodXpressHuffman4K  Method = 0
	MethodLZX32K           Method = 1
	MethodXpressHuffman8K  Method = 2
	MethodXpressHuffman16K Method = 3
)

// chunkSize returns the uncompressed size of one chunk for m, or an error
// for an unrecognized method (spec.md §4.I table).
func (m Method) chunkSize() (uint64, error) {
	switch m {
	case MethodXpressHuffman4K:
		return 4096, nil
	case MethodLZX32K:
		return 32768, nil
	case MethodXpressHuffman8K:
		return 8192, nil
	case MethodXpressHuffman16K:
		return 16384, nil
	}
	return 0, fmt.Errorf("wof: unrecognized compression method %d: %w", m, ntfserr.ErrUnsupportedCompressionMethod)
}

func (m Method) decoder() (compression.Decoder, error) {
	switch m {
	case MethodXpressHuffman4K, MethodXpressHuffman8K, MethodXpressHuffman16K:
		return lzxpress.HuffmanDecoder{}, nil
	case MethodLZX32K:
		return lzx.Decoder{}, nil
	}
	return nil, fmt.Errorf("wof: unrecognized compression method %d: %w", m, ntfserr.ErrUnsupportedCompressionMethod)
}

// Stream is the decompressed view over one WOF-compressed $DATA attribute.
// Build one with Open, passing the raw (plain, uncompressed-at-NTFS-level)
// bytes of $DATA as a clusterstream.Stream.
type Stream struct {
	raw        *clusterstream.Stream
	method     Method
	chunkSize  uint64
	logicalSize uint64
	offsets    []uint64 // n+1 entries: byte offset of each chunk within raw, plus the end
	decoder    compression.Decoder

	pos int64
}

// chunkOffsetEntrySize returns the width, in bytes, of one chunk-offset table
// entry: 4 bytes when the compressed payload fits a 32-bit size, 8 otherwise
// (spec.md §4.I "N, O" table).
func chunkOffsetEntrySize(compressedSize uint64) int {
	if compressedSize > 0xFFFFFFFF {
		return 8
	}
	return 4
}

// Open parses raw's chunk-offset table and returns a Stream that decodes
// logicalSize bytes of original file content on demand. raw is read from
// offset 0, the start of the provider payload within $DATA.
func Open(raw *clusterstream.Stream, method Method, logicalSize uint64) (*Stream, error) {
	chunkSz, err := method.chunkSize()
	if err != nil {
		return nil, err
	}
	decoder, err := method.decoder()
	if err != nil {
		return nil, err
	}

	if logicalSize == 0 {
		return &Stream{raw: raw, method: method, chunkSize: chunkSz, decoder: decoder}, nil
	}

	numChunks := (logicalSize + chunkSz - 1) / chunkSz
	compressedSize := uint64(raw.Size())
	entrySize := chunkOffsetEntrySize(compressedSize)
	tableSize := uint64(entrySize) * (numChunks - 1)

	table := make([]byte, tableSize)
	if tableSize > 0 {
		if _, err := io.ReadFull(io.NewSectionReader(raw, 0, int64(tableSize)), table); err != nil {
			return nil, fmt.Errorf("wof: reading %d-byte chunk offset table: %w", tableSize, err)
		}
	}

	offsets := make([]uint64, numChunks+1)
	offsets[0] = tableSize
	for i := uint64(0); i < numChunks-1; i++ {
		var v uint64
		if entrySize == 4 {
			v = uint64(binary.LittleEndian.Uint32(table[i*4 : i*4+4]))
		} else {
			v = binary.LittleEndian.Uint64(table[i*8 : i*8+8])
		}
		offsets[i+1] = tableSize + v
	}
	offsets[numChunks] = compressedSize

	for i := uint64(1); i < uint64(len(offsets)); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, fmt.Errorf("wof: chunk %d offset %d precedes chunk %d offset %d: %w", i, offsets[i], i-1, offsets[i-1], ntfserr.ErrNonMonotonicChunkTable)
		}
	}

	return &Stream{
		raw:         raw,
		method:      method,
		chunkSize:   chunkSz,
		logicalSize: logicalSize,
		offsets:     offsets,
		decoder:     decoder,
	}, nil
}

// Size returns the stream's logical (original, uncompressed file) length.
func (s *Stream) Size() uint64 { return s.logicalSize }

// chunkByteRange returns the [start, end) byte range within raw holding
// chunk i's compressed (or, for the last chunk, possibly stored-raw) bytes.
func (s *Stream) chunkByteRange(i uint64) (start, end uint64) {
	return s.offsets[i], s.offsets[i+1]
}

func (s *Stream) readChunk(i uint64) ([]byte, error) {
	start, end := s.chunkByteRange(i)
	compressed := make([]byte, end-start)
	if _, err := io.ReadFull(io.NewSectionReader(s.raw, int64(start), int64(end-start)), compressed); err != nil {
		return nil, fmt.Errorf("wof: reading chunk %d (%d bytes at %d): %w", i, end-start, start, err)
	}

	want := s.chunkSize
	if i == uint64(len(s.offsets))-2 {
		if tail := s.logicalSize % s.chunkSize; tail != 0 {
			want = tail
		}
	}

	// A chunk whose "compressed" size equals its logical size was stored
	// uncompressed by the provider (spec.md §4.I); some providers also mark
	// this with a per-chunk flag, but the size equality is sufficient here.
	if uint64(len(compressed)) >= want {
		return compressed[:want], nil
	}

	out := make([]byte, want)
	n, err := s.decoder.Decompress(compressed, out)
	if err != nil {
		return nil, fmt.Errorf("wof: decompressing chunk %d: %w", i, err)
	}
	return out[:n], nil
}

// Seek implements io.Seeker.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = int64(s.logicalSize) + offset
	default:
		return 0, fmt.Errorf("wof: invalid whence %d", whence)
	}
	if target < 0 || uint64(target) > s.logicalSize {
		return 0, fmt.Errorf("wof: seek to %d exceeds logical size %d: %w", target, s.logicalSize, ntfserr.ErrOutOfRange)
	}
	s.pos = target
	return s.pos, nil
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt over the decompressed logical stream.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("wof: negative offset %d", off)
	}
	start := uint64(off)
	if start >= s.logicalSize {
		return 0, io.EOF
	}
	end := start + uint64(len(p))
	if end > s.logicalSize {
		end = s.logicalSize
	}

	written := 0
	pos := start
	for pos < end {
		chunkIdx := pos / s.chunkSize
		data, err := s.readChunk(chunkIdx)
		if err != nil {
			return written, err
		}
		chunkStart := chunkIdx * s.chunkSize
		intraStart := pos - chunkStart
		intraEnd := end - chunkStart
		if intraEnd > uint64(len(data)) {
			intraEnd = uint64(len(data))
		}
		if intraStart >= intraEnd {
			break
		}
		n := copy(p[written:], data[intraStart:intraEnd])
		written += n
		pos += uint64(n)
	}
	return written, nil
}

// ChunkCount reports the number of chunks the offset table describes.
func (s *Stream) ChunkCount() int {
	if len(s.offsets) == 0 {
		return 0
	}
	return len(s.offsets) - 1
}
