// Package clusterstream presents an NTFS attribute — resident, non-resident
// and sparse, or non-resident and NTFS-compressed — as one uniform,
// randomly-seekable byte stream (spec.md §4.F "Cluster block stream" and
// §4.G/§4.H for the compressed path). It is the component the rest of the
// module (ntfsvol, wof) builds on: callers never see data runs, compression
// units or the block cache directly.
package clusterstream

import (
	"fmt"
	"io"
	"sort"

	"github.com/libyal/libfsntfs-sub001/attrchain"
	"github.com/libyal/libfsntfs-sub001/blockio"
	"github.com/libyal/libfsntfs-sub001/clusterblock"
	"github.com/libyal/libfsntfs-sub001/compression"
	"github.com/libyal/libfsntfs-sub001/compression/lznt1"
	"github.com/libyal/libfsntfs-sub001/fragment"
	"github.com/libyal/libfsntfs-sub001/mft"
	"github.com/libyal/libfsntfs-sub001/ntfserr"
	"github.com/libyal/libfsntfs-sub001/streamcache"
)

type segmentKind int

const (
	segSparse segmentKind = iota
	segRaw
)

type segment struct {
	fileOffset uint64
	length     uint64
	kind       segmentKind
	lcn        uint64
}

// Stream is the seekable view over one AttributeChain (spec.md §3.1
// "StreamDescriptor"). The zero value is not usable; build one with New.
type Stream struct {
	dev         blockio.Device
	clusterSize uint64

	dataSize  uint64
	validSize uint64

	resident []byte // non-nil only for resident attributes
	segments []segment
	units    []compression.Unit
	cuSize   uint64
	decoder  compression.Decoder

	cache    *streamcache.Cache
	cacheKey string

	pos int64
}

// Options configures a Stream beyond the attribute chain itself.
type Options struct {
	// Cache, if non-nil, backs both the raw-cluster and decompressed-unit
	// tiers. A nil Cache disables caching without affecting correctness.
	Cache *streamcache.Cache
	// CacheKey identifies this stream's compression units in Cache; it
	// should be unique per (file, attribute type, attribute name), e.g.
	// "5-128-" (record 5, type 128, unnamed). Ignored when the attribute is
	// not compressed.
	CacheKey string
}

// New builds a Stream from chain. volumeClusterCount bounds decoded LCNs
// (spec.md §4.C); pass 0 to skip that check.
func New(dev blockio.Device, clusterSize uint64, volumeClusterCount uint64, chain attrchain.Chain, opts Options) (*Stream, error) {
	if len(chain.Fragments) == 0 {
		return nil, fmt.Errorf("clusterstream: empty chain")
	}

	if chain.Resident() {
		frag := chain.Fragments[0]
		data := make([]byte, len(frag.Data))
		copy(data, frag.Data)
		return &Stream{
			dev:         dev,
			clusterSize: clusterSize,
			dataSize:    uint64(len(data)),
			validSize:   uint64(len(data)),
			resident:    data,
		}, nil
	}

	first := chain.Fragments[0]
	dataSize := first.DataSize
	validSize := first.ValidDataSize
	if validSize > dataSize {
		validSize = dataSize
	}

	var allRuns []mft.DataRun
	for _, frag := range chain.Fragments {
		runs, err := mft.DecodeDataRuns(frag.MappingPairs, volumeClusterCount)
		if err != nil {
			return nil, err
		}
		allRuns = append(allRuns, runs...)
	}

	if len(allRuns) == 0 {
		if dataSize != 0 {
			return nil, fmt.Errorf("clusterstream: empty run list with data_size %d: %w", dataSize, ntfserr.ErrVcnGap)
		}
		return &Stream{dev: dev, clusterSize: clusterSize, dataSize: 0, validSize: 0}, nil
	}

	cuLog2 := chain.CompressionUnitLog2()
	s := &Stream{
		dev:         dev,
		clusterSize: clusterSize,
		dataSize:    dataSize,
		validSize:   validSize,
		cache:       opts.Cache,
		cacheKey:    opts.CacheKey,
	}

	if cuLog2 == 0 {
		s.segments = buildSegments(allRuns, clusterSize, validSize, dataSize)
		return s, nil
	}

	s.cuSize = clusterSize << cuLog2
	units, err := compression.BuildUnits(allRuns, uint64(1)<<cuLog2)
	if err != nil {
		return nil, err
	}
	s.units = units
	s.decoder = lznt1.Decoder{}
	return s, nil
}

// buildSegments concatenates decoded runs into an ordered, byte-offset
// segment list, appending the classic NTFS "zero tail" when valid_data_size
// is short of data_size (spec.md §4.F step 3).
func buildSegments(runs []mft.DataRun, clusterSize, validSize, dataSize uint64) []segment {
	segs := make([]segment, 0, len(runs)+1)
	offset := uint64(0)
	for _, r := range runs {
		length := r.LengthInClusters * clusterSize
		if r.Sparse {
			segs = append(segs, segment{fileOffset: offset, length: length, kind: segSparse})
		} else {
			segs = append(segs, segment{fileOffset: offset, length: length, kind: segRaw, lcn: r.StartingLCN})
		}
		offset += length
	}
	if validSize < dataSize {
		tailStart := validSize
		if tailStart < offset {
			tailStart = offset
		}
		if tailStart < dataSize {
			segs = append(segs, segment{fileOffset: tailStart, length: dataSize - tailStart, kind: segSparse})
		}
	}
	return segs
}

// Size returns the stream's logical length (data_size).
func (s *Stream) Size() uint64 { return s.dataSize }

// Seek implements io.Seeker. Seeking past the logical end of the stream is
// permitted only up to data_size; anything further is ErrOutOfRange.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = int64(s.dataSize) + offset
	default:
		return 0, fmt.Errorf("clusterstream: invalid whence %d", whence)
	}
	if target < 0 || uint64(target) > s.dataSize {
		return 0, fmt.Errorf("clusterstream: seek to %d exceeds data_size %d: %w", target, s.dataSize, ntfserr.ErrOutOfRange)
	}
	s.pos = target
	return s.pos, nil
}

// Read implements io.Reader, advancing the stream's cursor.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// ReadAt reads from off: a read that reaches the end of the stream returns
// the bytes available and a nil error, and a read starting at or past the
// end returns (0, io.EOF) (spec.md §7's EOF exception to "errors are
// surfaced verbatim").
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("clusterstream: negative offset %d", off)
	}
	start := uint64(off)
	if start >= s.dataSize {
		return 0, io.EOF
	}
	end := start + uint64(len(p))
	if end > s.dataSize {
		end = s.dataSize
	}
	want := int(end - start)
	if want == 0 {
		return 0, io.EOF
	}

	if s.resident != nil {
		n := copy(p, s.resident[start:end])
		return n, nil
	}

	var total int
	var err error
	if s.units != nil {
		total, err = s.readCompressed(p[:want], start)
	} else {
		total, err = s.readSegments(p[:want], start)
	}
	if err != nil {
		return total, err
	}
	if end == s.dataSize && uint64(total) < uint64(want) {
		// short final read is still a success; next call returns EOF.
	}
	return total, nil
}

func (s *Stream) readSegments(p []byte, start uint64) (int, error) {
	end := start + uint64(len(p))
	idx := sort.Search(len(s.segments), func(i int) bool {
		seg := s.segments[i]
		return seg.fileOffset+seg.length > start
	})

	written := 0
	pos := start
	for pos < end && idx < len(s.segments) {
		seg := s.segments[idx]
		segEnd := seg.fileOffset + seg.length
		chunkEnd := segEnd
		if chunkEnd > end {
			chunkEnd = end
		}
		n := int(chunkEnd - pos)
		if n <= 0 {
			idx++
			continue
		}
		dst := p[written : written+n]
		if seg.kind == segSparse {
			for i := range dst {
				dst[i] = 0
			}
		} else {
			intra := pos - seg.fileOffset
			abs := int64(seg.lcn*s.clusterSize + intra)
			if err := s.readRawBytes(dst, abs); err != nil {
				return written, err
			}
		}
		written += n
		pos += uint64(n)
		if pos >= segEnd {
			idx++
		}
	}
	return written, nil
}

// readRawBytes copies len(dst) bytes starting at absolute volume offset abs,
// going through the raw-cluster cache tier one cluster at a time.
func (s *Stream) readRawBytes(dst []byte, abs int64) error {
	clusterSize := int64(s.clusterSize)
	for len(dst) > 0 {
		clusterOffset := (abs / clusterSize) * clusterSize
		intra := int(abs - clusterOffset)
		block, ok := s.cache.GetBlock(clusterOffset)
		if !ok {
			b, err := clusterblock.Read(s.dev, clusterOffset, int(clusterSize))
			if err != nil {
				return err
			}
			s.cache.PutBlock(b)
			block = b
		}
		n := copy(dst, block.Data[intra:])
		dst = dst[n:]
		abs += int64(n)
	}
	return nil
}

func (s *Stream) readCompressed(p []byte, start uint64) (int, error) {
	end := start + uint64(len(p))
	written := 0
	pos := start
	for pos < end {
		unitIdx := pos / s.cuSize
		if int(unitIdx) >= len(s.units) {
			break
		}
		unit := s.units[unitIdx]
		unitStart := unit.LogicalOffset * s.clusterSize // Unit.LogicalOffset is in clusters
		unitEnd := unitStart + s.cuSize

		data, err := s.decompressUnit(int(unitIdx), unit)
		if err != nil {
			return written, err
		}

		chunkEnd := unitEnd
		if chunkEnd > end {
			chunkEnd = end
		}
		intraStart := pos - unitStart
		intraEnd := chunkEnd - unitStart
		if intraEnd > uint64(len(data)) {
			intraEnd = uint64(len(data))
		}
		if intraStart < intraEnd {
			n := copy(p[written:], data[intraStart:intraEnd])
			written += n
			pos += uint64(n)
		}
		if pos < unitEnd {
			// decompressUnit produced fewer bytes than the unit's logical
			// size (the final, clamped unit): nothing more to give here.
			break
		}
	}
	return written, nil
}

func (s *Stream) decompressUnit(index int, unit compression.Unit) ([]byte, error) {
	key := streamcache.UnitKey{AttributeID: s.cacheKey, UnitIndex: uint64(index)}
	if s.cacheKey != "" {
		if data, ok := s.cache.GetUnit(key); ok {
			return data, nil
		}
	}

	logical := make([]byte, s.cuSize)
	switch unit.Kind {
	case compression.KindSparse:
		// leave zero
	case compression.KindRaw:
		if err := s.fillPhysical(logical, unit); err != nil {
			return nil, err
		}
	case compression.KindCompressed:
		physical := make([]byte, unit.PhysicalClusterCount()*s.clusterSize)
		if err := s.fillPhysical(physical, unit); err != nil {
			return nil, err
		}
		n, err := s.decoder.Decompress(physical, logical)
		if err != nil {
			return nil, err
		}
		if uint64(n) < s.cuSize {
			for i := n; i < len(logical); i++ {
				logical[i] = 0
			}
		}
	}

	if s.cacheKey != "" {
		s.cache.PutUnit(key, logical)
	}
	return logical, nil
}

// fillPhysical copies every non-sparse segment of unit, back to back, into
// dst (used both for KindRaw, where the bytes are already logical, and as
// the compressed payload staging buffer for KindCompressed).
func (s *Stream) fillPhysical(dst []byte, unit compression.Unit) error {
	off := 0
	for _, seg := range unit.Segments {
		length := int(seg.LengthInClusters * s.clusterSize)
		if seg.Kind == compression.SegmentSparse {
			if unit.Kind == compression.KindRaw {
				for i := 0; i < length && off < len(dst); i++ {
					dst[off+i] = 0
				}
				off += length
			}
			continue
		}
		abs := int64(seg.StartingLCN * s.clusterSize)
		n := length
		if off+n > len(dst) {
			n = len(dst) - off
		}
		if n <= 0 {
			continue
		}
		if err := s.readRawBytes(dst[off:off+n], abs); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// RawFragments translates chain's decoded data runs into device byte-range
// fragments suitable for fragment.Reader: a cheaper, uncached alternative to
// Stream for a single whole-attribute sequential copy. It only supports a
// fully-allocated (no sparse runs), NTFS-uncompressed, non-resident chain;
// anything else should go through New instead, since fragment.Reader cannot
// represent a zero-filled hole or a compressed payload.
func RawFragments(clusterSize, volumeClusterCount uint64, chain attrchain.Chain) ([]fragment.Fragment, error) {
	if chain.Resident() {
		return nil, fmt.Errorf("clusterstream: resident attribute has no raw fragments: %w", ntfserr.ErrUnsupported)
	}
	if chain.CompressionUnitLog2() != 0 {
		return nil, fmt.Errorf("clusterstream: NTFS-compressed attribute has no raw fragments: %w", ntfserr.ErrUnsupported)
	}

	var frags []fragment.Fragment
	for _, f := range chain.Fragments {
		runs, err := mft.DecodeDataRuns(f.MappingPairs, volumeClusterCount)
		if err != nil {
			return nil, err
		}
		for _, run := range runs {
			if run.Sparse {
				return nil, fmt.Errorf("clusterstream: sparse run has no raw fragment: %w", ntfserr.ErrUnsupported)
			}
			frags = append(frags, fragment.Fragment{
				Offset: int64(run.StartingLCN * clusterSize),
				Length: int64(run.LengthInClusters * clusterSize),
			})
		}
	}
	return frags, nil
}

// Extents returns the stream's physical layout as a sequence of Extent
// records, 1-to-1 with its segments or compression units.
func (s *Stream) Extents() []Extent {
	if s.resident != nil {
		return []Extent{{FileOffset: 0, ByteLength: s.dataSize, Raw: true}}
	}
	if s.units != nil {
		ext := make([]Extent, 0, len(s.units))
		for _, u := range s.units {
			fileOffset := u.LogicalOffset * s.clusterSize
			length := s.cuSize
			if fileOffset+length > s.dataSize {
				length = s.dataSize - fileOffset
			}
			e := Extent{FileOffset: fileOffset, ByteLength: length}
			switch u.Kind {
			case compression.KindSparse:
				e.Sparse = true
			case compression.KindCompressed:
				e.Compressed = true
			case compression.KindRaw:
				e.Raw = true
			}
			ext = append(ext, e)
		}
		return ext
	}
	ext := make([]Extent, 0, len(s.segments))
	for _, seg := range s.segments {
		ext = append(ext, Extent{
			FileOffset: seg.fileOffset,
			ByteLength: seg.length,
			Sparse:     seg.kind == segSparse,
			Raw:        seg.kind == segRaw,
		})
	}
	return ext
}
