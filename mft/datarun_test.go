package mft_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libyal/libfsntfs-sub001/mft"
)

// TestDecodeDataRuns_SparseTail exercises spec.md §8.3: a three-cluster run
// at LCN 1024 followed by a five-cluster sparse run.
func TestDecodeDataRuns_SparseTail(t *testing.T) {
	input := decodeHex(t, "21030004010500")
	runs, err := mft.DecodeDataRuns(input, 0)
	require.Nilf(t, err, "could not decode data runs: %v", err)

	expected := []mft.DataRun{
		{LengthInClusters: 3, StartingLCN: 1024},
		{LengthInClusters: 5, Sparse: true},
	}
	assert.Equal(t, expected, runs)
}

func TestDecodeDataRuns_Empty(t *testing.T) {
	runs, err := mft.DecodeDataRuns(nil, 0)
	require.Nilf(t, err, "could not decode data runs: %v", err)
	assert.Empty(t, runs)
}

func TestDecodeDataRuns_NegativeDeltaWraps(t *testing.T) {
	// First run establishes LCN 1024, second run applies delta -10 (one
	// byte, 0xF6 sign-extends to -10) landing at LCN 1014.
	input := decodeHex(t, "21030004" + "1105F6")
	runs, err := mft.DecodeDataRuns(input, 0)
	require.Nilf(t, err, "could not decode data runs: %v", err)

	require.Len(t, runs, 2)
	assert.Equal(t, uint64(1024), runs[0].StartingLCN)
	assert.Equal(t, uint64(1014), runs[1].StartingLCN)
}

func TestDecodeDataRuns_LcnOutOfRangeRejected(t *testing.T) {
	input := decodeHex(t, "21030004010000")
	_, err := mft.DecodeDataRuns(input, 100)
	require.Error(t, err)
}

func TestDecodeDataRuns_TruncatedRunRejected(t *testing.T) {
	input := decodeHex(t, "2103")
	_, err := mft.DecodeDataRuns(input, 0)
	require.Error(t, err)
}
