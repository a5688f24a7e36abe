package usn_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libyal/libfsntfs-sub001/usn"
)

// asciiUTF16LE encodes an ASCII-only string as little-endian UTF-16, one
// zero high byte per character, matching how $FILE_NAME/USN record names are
// laid out on disk for the test fixtures in this package.
func asciiUTF16LE(s string) []byte {
	b := make([]byte, len(s)*2)
	for i := 0; i < len(s); i++ {
		b[i*2] = s[i]
		b[i*2+1] = 0x00
	}
	return b
}

// buildRecordV2 hand-encodes one USN_RECORD_V2 (usn.go's 60-byte header
// plus a variable-length little-endian UTF-16 file name at offset 60),
// padded up to a multiple of 8 bytes the way ScanRecords expects.
func buildRecordV2(t *testing.T, fileRefNum, parentRefNum uint64, usnValue int64, reason uint32, name string) []byte {
	t.Helper()
	nameBytes := asciiUTF16LE(name)
	recordLength := 60 + len(nameBytes)
	if rem := recordLength % 8; rem != 0 {
		recordLength += 8 - rem
	}

	b := make([]byte, recordLength)
	binary.LittleEndian.PutUint32(b[0:4], uint32(recordLength))
	binary.LittleEndian.PutUint16(b[4:6], 2) // major version
	binary.LittleEndian.PutUint16(b[6:8], 0) // minor version
	binary.LittleEndian.PutUint64(b[8:16], fileRefNum)
	binary.LittleEndian.PutUint64(b[16:24], parentRefNum)
	binary.LittleEndian.PutUint64(b[24:32], uint64(usnValue))
	binary.LittleEndian.PutUint64(b[32:40], 0) // timestamp
	binary.LittleEndian.PutUint32(b[40:44], reason)
	binary.LittleEndian.PutUint32(b[44:48], 0) // source info
	binary.LittleEndian.PutUint32(b[48:52], 0) // security id
	binary.LittleEndian.PutUint32(b[52:56], 0) // file attributes
	binary.LittleEndian.PutUint16(b[56:58], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint16(b[58:60], 60)
	copy(b[60:], nameBytes)
	return b
}

func TestParseRecord(t *testing.T) {
	fileRefNum := uint64(344379) | uint64(9)<<48
	parentRefNum := uint64(5) | uint64(2)<<48
	raw := buildRecordV2(t, fileRefNum, parentRefNum, 4096, uint32(usn.ReasonDataExtend), "test.txt")

	rec, n, err := usn.ParseRecord(raw)
	require.Nilf(t, err, "parse failed: %v", err)
	assert.Equal(t, len(raw), n)
	assert.EqualValues(t, 2, rec.MajorVersion)
	assert.EqualValues(t, 344379, rec.FileReference.RecordNumber)
	assert.EqualValues(t, 9, rec.FileReference.SequenceNumber)
	assert.EqualValues(t, 5, rec.ParentFileReference.RecordNumber)
	assert.EqualValues(t, 2, rec.ParentFileReference.SequenceNumber)
	assert.EqualValues(t, 4096, rec.USN)
	assert.True(t, rec.Reason.Is(usn.ReasonDataExtend))
	assert.Equal(t, "test.txt", rec.FileName)
}

func TestParseRecord_UnsupportedMajorVersionRejected(t *testing.T) {
	raw := buildRecordV2(t, 1, 5, 0, 0, "x")
	binary.LittleEndian.PutUint16(raw[4:6], 3) // V3 (128-bit references), unsupported

	_, _, err := usn.ParseRecord(raw)
	require.Error(t, err)
}

func TestParseRecord_TruncatedRejected(t *testing.T) {
	raw := buildRecordV2(t, 1, 5, 0, 0, "x")
	binary.LittleEndian.PutUint32(raw[0:4], uint32(len(raw)+100))

	_, _, err := usn.ParseRecord(raw)
	require.Error(t, err)
}

// TestScanRecords_SkipsSparsePadding exercises the $J stream's sparse
// alignment gaps between journal entries (spec.md §12, usn package doc).
func TestScanRecords_SkipsSparsePadding(t *testing.T) {
	rec1 := buildRecordV2(t, 10, 5, 100, uint32(usn.ReasonFileCreate), "a.txt")
	rec2 := buildRecordV2(t, 11, 5, 200, uint32(usn.ReasonFileDelete), "b.txt")

	gap := make([]byte, 32)
	j := append([]byte{}, rec1...)
	j = append(j, gap...)
	j = append(j, rec2...)

	records, err := usn.ScanRecords(j)
	require.Nilf(t, err, "scan failed: %v", err)
	require.Len(t, records, 2)
	assert.Equal(t, "a.txt", records[0].FileName)
	assert.EqualValues(t, 100, records[0].USN)
	assert.Equal(t, "b.txt", records[1].FileName)
	assert.EqualValues(t, 200, records[1].USN)
}

func TestScanRecords_Empty(t *testing.T) {
	records, err := usn.ScanRecords(nil)
	require.Nilf(t, err, "scan failed: %v", err)
	assert.Empty(t, records)
}
