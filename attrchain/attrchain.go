// Package attrchain stitches together attribute fragments that belong to one
// logical stream but physically reside in multiple MFT records, linked by an
// $ATTRIBUTE_LIST attribute (spec.md §4.D). The chain builder is the boundary
// between mft (single-record parsing) and clusterstream (stream
// presentation): clusterstream never looks at an $ATTRIBUTE_LIST itself, it
// only ever sees a Chain with a flat, VCN-ordered fragment list.
package attrchain

import (
	"fmt"
	"sort"

	"github.com/libyal/libfsntfs-sub001/blockio"
	"github.com/libyal/libfsntfs-sub001/mft"
	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

// RecordSource resolves an MFT record number to its parsed record, following
// the base/extension-record references an $ATTRIBUTE_LIST entry names. It is
// typically backed by a cache over mft.ParseRecord, since the chain builder
// may load the same record for several distinct attribute chains.
type RecordSource interface {
	ReadRecord(recordNumber uint64) (mft.Record, error)
}

// Chain is a non-empty, VCN-ordered list of fragments sharing one
// (type, name), satisfying the contiguity invariant of spec.md §3.1: fragment
// i+1's FirstVCN equals fragment i's LastVCN+1.
type Chain struct {
	Type     mft.AttributeType
	Name     string
	Fragments []mft.Attribute
}

// CompressionUnitLog2 returns the compression-unit exponent shared by every
// fragment (verified equal by Build), or 0 if the chain is resident or
// uncompressed.
func (c Chain) CompressionUnitLog2() uint8 {
	if len(c.Fragments) == 0 {
		return 0
	}
	return c.Fragments[0].CompressionUnitLog2
}

// Resident reports whether the chain's sole fragment is resident. A resident
// attribute is never split across MFT records, so a resident Chain always has
// exactly one fragment.
func (c Chain) Resident() bool {
	return len(c.Fragments) > 0 && c.Fragments[0].Resident
}

// Build resolves every fragment of the (attrType, name) attribute rooted at
// base, following base's $ATTRIBUTE_LIST (if any) through source to load
// extension records, and returns them ordered and validated per spec.md §4.D.
//
// A malformed $ATTRIBUTE_LIST poisons only this chain, never sibling
// attributes of the same file (spec.md §7): errors returned here should not
// be treated as invalidating other Build calls against the same base record.
func Build(base mft.Record, attrType mft.AttributeType, name string, source RecordSource) (Chain, error) {
	lists := base.FindAttributes(mft.AttributeTypeAttributeList)
	if len(lists) == 0 {
		return buildFromSingleRecord(base, attrType, name)
	}

	entries, err := readAttributeListEntries(base, lists[0], source)
	if err != nil {
		return Chain{}, fmt.Errorf("attrchain: reading $ATTRIBUTE_LIST: %w", err)
	}

	type located struct {
		attr mft.Attribute
	}
	var matches []located
	seenRecords := map[uint64]bool{base.FileReference.RecordNumber: true}

	// The base record's own matching attributes are always part of the
	// chain even when an $ATTRIBUTE_LIST exists (a small initial fragment
	// commonly remains in the base record alongside the list).
	for _, a := range base.Attributes {
		if a.Type == attrType && a.Name == name {
			matches = append(matches, located{a})
		}
	}

	for _, e := range entries {
		if e.Type != attrType || e.Name != name {
			continue
		}
		recNum := e.BaseRecordReference.RecordNumber
		if recNum == base.FileReference.RecordNumber || seenRecords[recNum] {
			continue
		}
		seenRecords[recNum] = true
		rec, err := source.ReadRecord(recNum)
		if err != nil {
			return Chain{}, fmt.Errorf("attrchain: loading extension record %d: %w", recNum, err)
		}
		for _, a := range rec.Attributes {
			if a.Type == attrType && a.Name == name && a.Identifier == int(e.AttributeId) {
				matches = append(matches, located{a})
			}
		}
	}

	if len(matches) == 0 {
		return Chain{}, fmt.Errorf("attrchain: no %s fragments found: %w", attrType.Name(), ntfserr.ErrInvalidBounds)
	}

	frags := make([]mft.Attribute, len(matches))
	for i, m := range matches {
		frags[i] = m.attr
	}
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Resident || frags[j].Resident {
			return false
		}
		return frags[i].FirstVCN < frags[j].FirstVCN
	})

	if err := validate(frags); err != nil {
		return Chain{}, err
	}
	return Chain{Type: attrType, Name: name, Fragments: frags}, nil
}

func buildFromSingleRecord(base mft.Record, attrType mft.AttributeType, name string) (Chain, error) {
	frags := base.FindAttributes(attrType)
	matches := frags[:0]
	for _, a := range frags {
		if a.Name == name {
			matches = append(matches, a)
		}
	}
	if len(matches) == 0 {
		return Chain{}, fmt.Errorf("attrchain: no %s fragments found: %w", attrType.Name(), ntfserr.ErrInvalidBounds)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Resident || matches[j].Resident {
			return false
		}
		return matches[i].FirstVCN < matches[j].FirstVCN
	})
	if err := validate(matches); err != nil {
		return Chain{}, err
	}
	return Chain{Type: attrType, Name: name, Fragments: matches}, nil
}

// validate checks the VCN-contiguity and compression-consistency invariants
// of spec.md §3.1/§4.D.
func validate(frags []mft.Attribute) error {
	if frags[0].Resident {
		if len(frags) != 1 {
			return fmt.Errorf("attrchain: resident attribute has %d fragments, want 1: %w", len(frags), ntfserr.ErrInvalidBounds)
		}
		return nil
	}
	expectedVCN := uint64(0)
	cuLog2 := frags[0].CompressionUnitLog2
	for i, f := range frags {
		if f.Resident {
			return fmt.Errorf("attrchain: mixed resident/non-resident fragments: %w", ntfserr.ErrInvalidBounds)
		}
		if f.FirstVCN != expectedVCN {
			return fmt.Errorf("attrchain: fragment %d starts at vcn %d, expected %d: %w", i, f.FirstVCN, expectedVCN, ntfserr.ErrVcnGap)
		}
		if f.CompressionUnitLog2 != cuLog2 {
			return fmt.Errorf("attrchain: fragment %d compression unit 2^%d differs from 2^%d: %w", i, f.CompressionUnitLog2, cuLog2, ntfserr.ErrInconsistentCompression)
		}
		if f.LastVCN < f.FirstVCN && !(f.FirstVCN == 0 && f.LastVCN == 0 && len(f.MappingPairs) == 0) {
			return fmt.Errorf("attrchain: fragment %d has last_vcn %d < first_vcn %d: %w", i, f.LastVCN, f.FirstVCN, ntfserr.ErrInvalidBounds)
		}
		expectedVCN = f.LastVCN + 1
	}
	return nil
}

// readAttributeListEntries decodes list (itself possibly non-resident) into
// its entries, reading extension records it references through source only
// to resolve the list's own content, not the attribute chains within it.
func readAttributeListEntries(base mft.Record, list mft.Attribute, source RecordSource) ([]mft.AttributeListEntry, error) {
	if list.Resident {
		return mft.ParseAttributeList(list.Data)
	}
	data, err := readRawNonResident(list, source)
	if err != nil {
		return nil, err
	}
	return mft.ParseAttributeList(data)
}

// readRawNonResident reads the raw bytes of a non-resident, uncompressed
// attribute directly off the device, honoring sparse runs as zero-fill. This
// is intentionally simpler than clusterstream.Stream: $ATTRIBUTE_LIST is
// never NTFS-compressed, so there is no compression-unit bookkeeping to do
// here, only plain cluster concatenation.
func readRawNonResident(attr mft.Attribute, source RecordSource) ([]byte, error) {
	rs, ok := source.(DeviceSource)
	if !ok {
		return nil, fmt.Errorf("attrchain: RecordSource %T cannot read non-resident $ATTRIBUTE_LIST data: %w", source, ntfserr.ErrUnsupported)
	}
	dev := rs.Device()
	clusterSize := rs.ClusterSize()

	runs, err := mft.DecodeDataRuns(attr.MappingPairs, rs.VolumeClusterCount())
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		if attr.DataSize == 0 {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("attrchain: empty run list with non-zero data size %d: %w", attr.DataSize, ntfserr.ErrVcnGap)
	}

	out := make([]byte, 0, attr.DataSize)
	for _, run := range runs {
		length := run.LengthInClusters * clusterSize
		if run.Sparse {
			out = append(out, make([]byte, length)...)
			continue
		}
		buf := make([]byte, length)
		off := int64(run.StartingLCN * clusterSize)
		if _, err := dev.ReadAt(buf, off); err != nil {
			return nil, fmt.Errorf("attrchain: reading attribute list run at offset %d: %w", off, err)
		}
		out = append(out, buf...)
	}
	if uint64(len(out)) > attr.DataSize {
		out = out[:attr.DataSize]
	}
	return out, nil
}

// DeviceSource is implemented by a RecordSource that can also hand back the
// underlying device and volume geometry, needed only to resolve a
// non-resident $ATTRIBUTE_LIST's own bytes.
type DeviceSource interface {
	Device() blockio.Device
	ClusterSize() uint64
	VolumeClusterCount() uint64
}
