package wof_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libyal/libfsntfs-sub001/attrchain"
	"github.com/libyal/libfsntfs-sub001/blockio"
	"github.com/libyal/libfsntfs-sub001/clusterstream"
	"github.com/libyal/libfsntfs-sub001/mft"
	"github.com/libyal/libfsntfs-sub001/wof"
)

// buildStoredChunk returns a chunk of n bytes filled with a repeating
// pattern seeded by seed; used to build chunks the WOF provider left
// uncompressed (compressed size == logical size, spec.md §4.I).
func buildStoredChunk(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

// TestOpen_ThreeChunksMethodXpressHuffman4K exercises spec.md §4.I's
// chunk-offset-table parsing with method 0 (4 KiB chunks), using
// provider-stored (uncompressed) chunks so the test needs no working
// LZXPRESS-Huffman encoder: a chunk whose compressed size equals its
// logical size is passed through verbatim.
func TestOpen_ThreeChunksMethodXpressHuffman4K(t *testing.T) {
	const (
		chunkSize  = 4096
		logicalSize = 9000 // 2 full chunks + an 808-byte tail
	)

	chunk0 := buildStoredChunk(chunkSize, 0x00)
	chunk1 := buildStoredChunk(chunkSize, 0x10)
	chunk2 := buildStoredChunk(808, 0x20)

	table := make([]byte, 8)
	binary.LittleEndian.PutUint32(table[0:4], uint32(len(chunk0)))
	binary.LittleEndian.PutUint32(table[4:8], uint32(len(chunk0)+len(chunk1)))

	raw := append([]byte{}, table...)
	raw = append(raw, chunk0...)
	raw = append(raw, chunk1...)
	raw = append(raw, chunk2...)

	chain := attrchain.Chain{
		Type: mft.AttributeTypeData,
		Fragments: []mft.Attribute{
			{Type: mft.AttributeTypeData, Resident: true, Data: raw},
		},
	}
	rawStream, err := clusterstream.New(blockio.NewSectionDevice(nil), 4096, 0, chain, clusterstream.Options{})
	require.Nilf(t, err, "could not build raw stream: %v", err)

	s, err := wof.Open(rawStream, wof.MethodXpressHuffman4K, logicalSize)
	require.Nilf(t, err, "could not open wof stream: %v", err)

	assert.EqualValues(t, logicalSize, s.Size())
	assert.Equal(t, 3, s.ChunkCount())

	out := make([]byte, logicalSize)
	n, err := s.ReadAt(out, 0)
	require.Nilf(t, err, "read failed: %v", err)
	assert.Equal(t, logicalSize, n)

	want := append([]byte{}, chunk0...)
	want = append(want, chunk1...)
	want = append(want, chunk2...)
	assert.Equal(t, want, out)
}

func TestOpen_UnrecognizedMethodRejected(t *testing.T) {
	chain := attrchain.Chain{
		Type:      mft.AttributeTypeData,
		Fragments: []mft.Attribute{{Type: mft.AttributeTypeData, Resident: true, Data: []byte{0}}},
	}
	rawStream, err := clusterstream.New(blockio.NewSectionDevice(nil), 4096, 0, chain, clusterstream.Options{})
	require.Nilf(t, err, "could not build raw stream: %v", err)

	_, err = wof.Open(rawStream, wof.Method(99), 100)
	require.Error(t, err)
}
