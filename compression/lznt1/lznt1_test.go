package lznt1_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libyal/libfsntfs-sub001/compression/lznt1"
)

// TestDecompress_RawChunk covers a chunk stored uncompressed (is_compressed
// bit clear): the chunk header's length field still counts the 2-byte
// header itself, so a 4096-byte raw chunk's header encodes 4095.
func TestDecompress_RawChunk(t *testing.T) {
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}

	chunkLengthMinusOne := uint16(len(payload) + 2 - 3)
	header := chunkLengthMinusOne // high bit clear: not compressed
	src := append([]byte{byte(header), byte(header >> 8)}, payload...)

	dst := make([]byte, 4096)
	n, err := lznt1.Decoder{}.Decompress(src, dst)
	require.Nilf(t, err, "decompress failed: %v", err)
	assert.Equal(t, 4096, n)
	assert.Equal(t, payload, dst)
}

// TestDecompress_CompressedChunkLiteralsOnly covers the simplest compressed
// chunk: a single flag byte of all zero bits (every token is a literal).
func TestDecompress_CompressedChunkLiteralsOnly(t *testing.T) {
	literals := []byte{0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48}
	chunkPayload := append([]byte{0x00}, literals...) // flag byte 0 = all literals

	chunkLengthMinusOne := uint16(len(chunkPayload) + 2 - 3)
	header := chunkLengthMinusOne | 0x8000 // is_compressed
	src := append([]byte{byte(header), byte(header >> 8)}, chunkPayload...)

	dst := make([]byte, 4096)
	n, err := lznt1.Decoder{}.Decompress(src, dst)
	require.Nilf(t, err, "decompress failed: %v", err)
	assert.Equal(t, len(literals), n)
	assert.Equal(t, literals, dst[:n])
}

// TestDecompress_CompressedChunkWithBackReference covers a back-reference
// token: four literal tokens (bits 0-3 of the flag byte) followed by one
// back-reference token (bit 4) that repeats the first four literals once
// more. At output position 4, spec.md §4.H's split rule gives
// k = clamp(ceil(log2(4)), 4, 12) = 4, so length gets 16-4 = 12 bits and
// offset gets 4 bits: token = (offset-1)<<12 | (length-3) = 3<<12 | 1 =
// 0x3001, encoding offset=4, length=4.
func TestDecompress_CompressedChunkWithBackReference(t *testing.T) {
	flag := byte(0x10) // bit4 set: the 5th token is a back-reference
	chunkPayload := []byte{flag, 'A', 'B', 'C', 'D', 0x01, 0x30}

	chunkLengthMinusOne := uint16(len(chunkPayload) + 2 - 3)
	header := chunkLengthMinusOne | 0x8000
	src := append([]byte{byte(header), byte(header >> 8)}, chunkPayload...)

	dst := make([]byte, 4096)
	n, err := lznt1.Decoder{}.Decompress(src, dst)
	require.Nilf(t, err, "decompress failed: %v", err)
	assert.Equal(t, "ABCDABCD", string(dst[:n]))
}
