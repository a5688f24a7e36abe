package mft

import (
	"encoding/binary"
	"fmt"

	"github.com/libyal/libfsntfs-sub001/ntfserr"
)

// DataRun is one decoded (length, LCN) pair from a non-resident attribute's
// mapping-pairs block (spec.md §3.1 Entity "DataRun"). Sparse is true when
// the run has no backing cluster (a hole); StartingLCN is meaningless in
// that case.
type DataRun struct {
	LengthInClusters uint64
	StartingLCN      uint64
	Sparse           bool
}

// DecodeDataRuns decodes the variable-width run-length mapping-pairs
// encoding described in spec.md §4.C: each run begins with a header byte
// whose low nibble gives the width of the little-endian length field and
// whose high nibble gives the width of a signed delta to apply to the
// previous run's LCN (zero width means the run is sparse). A header byte of
// zero terminates the list.
//
// volumeClusterCount bounds the decoded LCN; pass 0 to skip that check
// (useful when the volume geometry isn't known yet, e.g. when decoding the
// boot sector's own attributes).
func DecodeDataRuns(mappingPairs []byte, volumeClusterCount uint64) ([]DataRun, error) {
	if len(mappingPairs) == 0 {
		return []DataRun{}, nil
	}

	runs := make([]DataRun, 0)
	previousLCN := int64(0)
	b := mappingPairs

	for len(b) > 0 {
		header := b[0]
		if header == 0 {
			break
		}

		lengthLen := int(header & 0x0F)
		offsetLen := int(header >> 4)
		if lengthLen > 8 || offsetLen > 8 {
			return nil, fmt.Errorf("mft: data run header %#x specifies field wider than 8 bytes: %w", header, ntfserr.ErrTruncatedRun)
		}

		need := 1 + lengthLen + offsetLen
		if len(b) < need {
			return nil, fmt.Errorf("mft: data run needs %d bytes, only %d remain: %w", need, len(b), ntfserr.ErrTruncatedRun)
		}

		length := binary.LittleEndian.Uint64(padUnsigned(b[1:1+lengthLen], 8))

		if offsetLen == 0 {
			runs = append(runs, DataRun{LengthInClusters: length, Sparse: true})
			b = b[need:]
			continue
		}

		offsetBytes := b[1+lengthLen : need]
		delta := int64(binary.LittleEndian.Uint64(padSigned(offsetBytes, 8)))
		current := previousLCN + delta
		if current < 0 || (volumeClusterCount > 0 && uint64(current) >= volumeClusterCount) {
			return nil, fmt.Errorf("mft: computed lcn %d out of range (volume has %d clusters): %w", current, volumeClusterCount, ntfserr.ErrLcnOutOfRange)
		}

		runs = append(runs, DataRun{LengthInClusters: length, StartingLCN: uint64(current)})
		previousLCN = current
		b = b[need:]
	}

	return runs, nil
}

func padUnsigned(data []byte, length int) []byte {
	out := make([]byte, length)
	copy(out, data)
	return out
}

func padSigned(data []byte, length int) []byte {
	out := make([]byte, length)
	copy(out, data)
	if len(data) > 0 && len(data) < length && data[len(data)-1]&0x80 != 0 {
		for i := len(data); i < length; i++ {
			out[i] = 0xFF
		}
	}
	return out
}
