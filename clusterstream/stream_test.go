package clusterstream_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libyal/libfsntfs-sub001/attrchain"
	"github.com/libyal/libfsntfs-sub001/blockio"
	"github.com/libyal/libfsntfs-sub001/clusterstream"
	"github.com/libyal/libfsntfs-sub001/mft"
	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

// TestResidentData exercises spec.md §8.2: a small resident $DATA.
func TestResidentData(t *testing.T) {
	chain := attrchain.Chain{
		Type: mft.AttributeTypeData,
		Fragments: []mft.Attribute{
			{Type: mft.AttributeTypeData, Resident: true, Data: []byte("Hello")},
		},
	}

	s, err := clusterstream.New(blockio.NewSectionDevice(nil), 4096, 0, chain, clusterstream.Options{})
	require.Nilf(t, err, "could not build stream: %v", err)

	assert.EqualValues(t, 5, s.Size())

	buf := make([]byte, 8)
	n, err := s.ReadAt(buf, 0)
	require.Nilf(t, err, "read failed: %v", err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "Hello", string(buf[:5]))

	extents := s.Extents()
	require.Len(t, extents, 1)
	assert.Equal(t, clusterstream.Extent{FileOffset: 0, ByteLength: 5, Raw: true}, extents[0])
}

// TestSparseNonResidentData exercises spec.md §8.3: a three-cluster raw run
// at LCN 1024 followed by a five-cluster sparse tail, cluster size 4096.
func TestSparseNonResidentData(t *testing.T) {
	const clusterSize = 4096

	// Build a device large enough to hold the raw run's clusters, filled
	// with a recognizable pattern so the raw read can be checked.
	dev := make([]byte, (1024+3)*clusterSize)
	for i := range dev[1024*clusterSize : 1027*clusterSize] {
		dev[1024*clusterSize+i] = 0xAB
	}

	mappingPairs := []byte{0x21, 0x03, 0x00, 0x04, 0x01, 0x05, 0x00}

	chain := attrchain.Chain{
		Type: mft.AttributeTypeData,
		Fragments: []mft.Attribute{
			{
				Type:          mft.AttributeTypeData,
				Resident:      false,
				FirstVCN:      0,
				LastVCN:       7,
				DataSize:      8 * clusterSize,
				ValidDataSize: 8 * clusterSize,
				MappingPairs:  mappingPairs,
			},
		},
	}

	s, err := clusterstream.New(blockio.NewSectionDevice(dev), clusterSize, 0, chain, clusterstream.Options{})
	require.Nilf(t, err, "could not build stream: %v", err)

	assert.EqualValues(t, 8*clusterSize, s.Size())

	extents := s.Extents()
	require.Len(t, extents, 2)
	assert.Equal(t, clusterstream.Extent{FileOffset: 0, ByteLength: 3 * clusterSize, Raw: true}, extents[0])
	assert.Equal(t, clusterstream.Extent{FileOffset: 3 * clusterSize, ByteLength: 5 * clusterSize, Sparse: true}, extents[1])

	zeroBuf := make([]byte, clusterSize)
	n, err := s.ReadAt(zeroBuf, 14336)
	require.Nilf(t, err, "read failed: %v", err)
	assert.Equal(t, clusterSize, n)
	for _, b := range zeroBuf {
		assert.Equal(t, byte(0), b)
	}

	rawBuf := make([]byte, clusterSize)
	n, err = s.ReadAt(rawBuf, 0)
	require.Nilf(t, err, "read failed: %v", err)
	assert.Equal(t, clusterSize, n)
	for _, b := range rawBuf {
		assert.Equal(t, byte(0xAB), b)
	}
}

func TestReadPastEndOfStreamReturnsEOF(t *testing.T) {
	chain := attrchain.Chain{
		Type: mft.AttributeTypeData,
		Fragments: []mft.Attribute{
			{Type: mft.AttributeTypeData, Resident: true, Data: []byte("hi")},
		},
	}
	s, err := clusterstream.New(blockio.NewSectionDevice(nil), 4096, 0, chain, clusterstream.Options{})
	require.Nilf(t, err, "could not build stream: %v", err)

	buf := make([]byte, 4)
	n, err := s.ReadAt(buf, 2)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

// TestEmptyRunListWithNonZeroDataSizeIsVcnGap exercises the Open Question
// resolution in spec.md §9/§13: an empty run list is only valid when
// data_size is also zero.
func TestEmptyRunListWithNonZeroDataSizeIsVcnGap(t *testing.T) {
	chain := attrchain.Chain{
		Type: mft.AttributeTypeData,
		Fragments: []mft.Attribute{
			{
				Type:         mft.AttributeTypeData,
				Resident:     false,
				DataSize:     4096,
				MappingPairs: []byte{},
			},
		},
	}
	_, err := clusterstream.New(blockio.NewSectionDevice(nil), 4096, 0, chain, clusterstream.Options{})
	require.ErrorIs(t, err, ntfserr.ErrVcnGap)
}

func TestEmptyRunListWithZeroDataSizeIsValid(t *testing.T) {
	chain := attrchain.Chain{
		Type: mft.AttributeTypeData,
		Fragments: []mft.Attribute{
			{
				Type:         mft.AttributeTypeData,
				Resident:     false,
				DataSize:     0,
				MappingPairs: []byte{},
			},
		},
	}
	s, err := clusterstream.New(blockio.NewSectionDevice(nil), 4096, 0, chain, clusterstream.Options{})
	require.Nilf(t, err, "expected empty stream to be valid: %v", err)
	assert.EqualValues(t, 0, s.Size())
}
