// Package compression groups an attribute's data runs into fixed-size
// compression units (spec.md §4.G) and defines the Decoder interface the
// engines of spec.md §4.H implement; choosing an engine for a unit is left to
// clusterstream (LZNT1) and wof (per-chunk method). The unit descriptor here is
// shared by both NTFS-level compression ($ATTRIBUTE's own compressed flag,
// decoded by clusterstream) and WOF per-file compression (decoded by the wof
// package on top of a plain $DATA stream): both ultimately group cluster or
// byte ranges into "N bytes of physical input map to one unit of logical
// output", which is exactly what Unit describes.
package compression

import (
	"fmt"

	"github.com/libyal/libfsntfs-sub001/mft"
	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

// SegmentKind tags one physical segment of a compression unit.
type SegmentKind int

const (
	SegmentSparse SegmentKind = iota
	SegmentRaw
)

// Segment is one physical piece of a Unit: either a sparse (hole) run of
// LengthInClusters clusters, or LengthInClusters clusters starting at
// StartingLCN.
type Segment struct {
	Kind             SegmentKind
	StartingLCN      uint64
	LengthInClusters uint64
}

// Kind classifies a Unit per the rule in spec.md §4.G.
type Kind int

const (
	// KindRaw: every segment is non-sparse; the unit is uncompressed data
	// merely grouped into compression-unit-sized chunks.
	KindRaw Kind = iota
	// KindCompressed: a mix of sparse and non-sparse segments; the
	// non-sparse bytes are a compressed payload whose decoded size is the
	// full unit size.
	KindCompressed
	// KindSparse: every segment is sparse; the whole unit reads as zero.
	KindSparse
)

// Unit is one compression unit: spec.md §3.1 Entity "CompressionUnit".
type Unit struct {
	LogicalOffset uint64
	Kind          Kind
	Segments      []Segment
}

// PhysicalClusterCount returns the number of non-sparse clusters in the unit
// — the size of the compressed (or raw) payload to read off the volume.
func (u Unit) PhysicalClusterCount() uint64 {
	var n uint64
	for _, s := range u.Segments {
		if s.Kind != SegmentSparse {
			n += s.LengthInClusters
		}
	}
	return n
}

// BuildUnits groups runs into compression units of cuSizeClusters clusters
// each, per the walk described in spec.md §4.G. cuSizeClusters is
// 1 << compressionUnitLog2 and must be > 1 (callers should not call this for
// uncompressed attributes).
func BuildUnits(runs []mft.DataRun, cuSizeClusters uint64) ([]Unit, error) {
	if cuSizeClusters == 0 {
		return nil, fmt.Errorf("compression: zero compression-unit size: %w", ntfserr.ErrUnsupportedCompressionFlag)
	}

	var units []Unit
	logicalOffset := uint64(0)
	remaining := cuSizeClusters
	var current []Segment
	hasSparse, hasNonSparse := false, false

	flush := func() {
		kind := KindRaw
		switch {
		case hasSparse && hasNonSparse:
			kind = KindCompressed
		case hasSparse && !hasNonSparse:
			kind = KindSparse
		}
		units = append(units, Unit{LogicalOffset: logicalOffset, Kind: kind, Segments: current})
		logicalOffset += cuSizeClusters
		current = nil
		hasSparse, hasNonSparse = false, false
		remaining = cuSizeClusters
	}

	for _, run := range runs {
		runRemaining := run.LengthInClusters
		lcn := run.StartingLCN
		for runRemaining > 0 {
			take := runRemaining
			if take > remaining {
				take = remaining
			}
			seg := Segment{LengthInClusters: take}
			if run.Sparse {
				seg.Kind = SegmentSparse
				hasSparse = true
			} else {
				seg.Kind = SegmentRaw
				seg.StartingLCN = lcn
				hasNonSparse = true
				lcn += take
			}
			current = append(current, seg)
			runRemaining -= take
			remaining -= take
			if remaining == 0 {
				flush()
			}
		}
	}
	if remaining != cuSizeClusters {
		flush()
	}
	return units, nil
}
