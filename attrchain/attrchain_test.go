package attrchain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libyal/libfsntfs-sub001/attrchain"
	"github.com/libyal/libfsntfs-sub001/mft"
	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

type fakeSource struct {
	records map[uint64]mft.Record
}

func (s fakeSource) ReadRecord(recordNumber uint64) (mft.Record, error) {
	rec, ok := s.records[recordNumber]
	if !ok {
		return mft.Record{}, assert.AnError
	}
	return rec, nil
}

// TestBuild_ChainedAcrossTwoRecords exercises spec.md §8.4: a base record
// with $DATA covering VCN 0..2 and an $ATTRIBUTE_LIST entry pointing at a
// child record (MFT index 42) covering VCN 3..7.
func TestBuild_ChainedAcrossTwoRecords(t *testing.T) {
	base := mft.Record{
		FileReference: mft.FileReference{RecordNumber: 5},
		Attributes: []mft.Attribute{
			{Type: mft.AttributeTypeData, FirstVCN: 0, LastVCN: 2, Identifier: 1},
			{
				Type:     mft.AttributeTypeAttributeList,
				Resident: true,
				Data:     buildAttributeListEntry(t, mft.AttributeTypeData, 42, 3, 2),
			},
		},
	}
	child := mft.Record{
		FileReference: mft.FileReference{RecordNumber: 42},
		Attributes: []mft.Attribute{
			{Type: mft.AttributeTypeData, FirstVCN: 3, LastVCN: 7, Identifier: 2},
		},
	}

	source := fakeSource{records: map[uint64]mft.Record{42: child}}
	chain, err := attrchain.Build(base, mft.AttributeTypeData, "", source)
	require.Nilf(t, err, "could not build chain: %v", err)

	require.Len(t, chain.Fragments, 2)
	assert.EqualValues(t, 0, chain.Fragments[0].FirstVCN)
	assert.EqualValues(t, 2, chain.Fragments[0].LastVCN)
	assert.EqualValues(t, 3, chain.Fragments[1].FirstVCN)
	assert.EqualValues(t, 7, chain.Fragments[1].LastVCN)
}

// TestBuild_VcnGapRejected exercises spec.md §8.4's contrived child with a
// first_vcn that leaves a gap: must return an error wrapping ErrVcnGap.
func TestBuild_VcnGapRejected(t *testing.T) {
	base := mft.Record{
		FileReference: mft.FileReference{RecordNumber: 5},
		Attributes: []mft.Attribute{
			{Type: mft.AttributeTypeData, FirstVCN: 0, LastVCN: 2, Identifier: 1},
			{
				Type:     mft.AttributeTypeAttributeList,
				Resident: true,
				Data:     buildAttributeListEntry(t, mft.AttributeTypeData, 42, 4, 2),
			},
		},
	}
	child := mft.Record{
		FileReference: mft.FileReference{RecordNumber: 42},
		Attributes: []mft.Attribute{
			{Type: mft.AttributeTypeData, FirstVCN: 4, LastVCN: 7, Identifier: 2},
		},
	}

	source := fakeSource{records: map[uint64]mft.Record{42: child}}
	_, err := attrchain.Build(base, mft.AttributeTypeData, "", source)
	require.ErrorIs(t, err, ntfserr.ErrVcnGap)
}

// buildAttributeListEntry hand-encodes one minimal $ATTRIBUTE_LIST entry
// (spec.md §4.D), enough for mft.ParseAttributeList to decode a single
// reference into an extension record.
func buildAttributeListEntry(t *testing.T, attrType mft.AttributeType, recordNumber uint64, startingVCN uint64, attributeID uint16) []byte {
	t.Helper()
	b := make([]byte, 26)
	putUint32(b[0:4], uint32(attrType))
	b[4] = 26 // entry length
	b[6] = 0  // name length (unnamed)
	putUint64(b[8:16], startingVCN)
	putUint64(b[16:24], recordNumber&0x0000FFFFFFFFFFFF) // low 48 bits; sequence number left 0
	putUint16(b[24:26], attributeID)
	return b
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
