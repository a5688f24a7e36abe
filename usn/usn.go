// Package usn slices USN change-journal records out of an $UsnJrnl:$J
// stream (spec.md §12), grounded on libfsntfs_usn_change_journal.c and
// libfsntfs_update_journal.c. $J is itself an ordinary sparse $DATA stream
// produced by clusterstream: the journal only ever appends, and deleted
// leading portions become sparse holes, which this package's scanner must
// skip the same way any other reader would skip a hole.
package usn

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/libyal/libfsntfs-sub001/mft"
	"github.com/libyal/libfsntfs-sub001/ntfserr"
	"github.com/libyal/libfsntfs-sub001/utf16"
)

// Reason is the USN_RECORD reason bit mask describing what changed.
type Reason uint32

const (
	ReasonDataOverwrite    Reason = 0x00000001
	ReasonDataExtend       Reason = 0x00000002
	ReasonDataTruncation   Reason = 0x00000004
	ReasonFileCreate       Reason = 0x00000100
	ReasonFileDelete       Reason = 0x00000200
	ReasonRename           Reason = 0x00002000 // RENAME_NEW_NAME
	ReasonClose            Reason = 0x80000000
)

// Is reports whether the reason mask contains c.
func (r Reason) Is(c Reason) bool { return r&c == c }

// Record is one decoded USN_RECORD_V2 (the only version this module
// supports; V3/V4, which use 128-bit file references, are out of scope).
type Record struct {
	RecordLength            uint32
	MajorVersion            uint16
	MinorVersion            uint16
	FileReference           mft.FileReference
	ParentFileReference     mft.FileReference
	USN                     int64
	Timestamp               time.Time
	Reason                  Reason
	SourceInfo              uint32
	SecurityID              uint32
	FileAttributes          uint32
	FileName                string
}

const recordV2HeaderSize = 60

// ParseRecord decodes one record starting at b[0]. It returns the record and
// the byte length consumed (== RecordLength, the caller advances by this
// much, not by len(b)).
func ParseRecord(b []byte) (Record, int, error) {
	if len(b) < 4 {
		return Record{}, 0, fmt.Errorf("usn: record needs at least 4 bytes, got %d: %w", len(b), ntfserr.ErrTruncatedRecord)
	}
	recordLength := binary.LittleEndian.Uint32(b[0:4])
	if recordLength == 0 {
		return Record{}, 0, ntfserr.ErrEndOfList
	}
	if uint64(recordLength) > uint64(len(b)) {
		return Record{}, 0, fmt.Errorf("usn: record length %d exceeds %d available bytes: %w", recordLength, len(b), ntfserr.ErrTruncatedRecord)
	}
	if recordLength < recordV2HeaderSize {
		return Record{}, 0, fmt.Errorf("usn: record length %d shorter than %d-byte V2 header: %w", recordLength, recordV2HeaderSize, ntfserr.ErrTruncatedRecord)
	}

	majorVersion := binary.LittleEndian.Uint16(b[4:6])
	if majorVersion != 2 {
		return Record{}, int(recordLength), fmt.Errorf("usn: record major version %d not supported: %w", majorVersion, ntfserr.ErrUnsupported)
	}

	fileRefNum := binary.LittleEndian.Uint64(b[8:16])
	parentRefNum := binary.LittleEndian.Uint64(b[16:24])
	usn := int64(binary.LittleEndian.Uint64(b[24:32]))
	timestamp := binary.LittleEndian.Uint64(b[32:40])
	reason := binary.LittleEndian.Uint32(b[40:44])
	sourceInfo := binary.LittleEndian.Uint32(b[44:48])
	securityID := binary.LittleEndian.Uint32(b[48:52])
	fileAttributes := binary.LittleEndian.Uint32(b[52:56])
	fileNameLength := binary.LittleEndian.Uint16(b[56:58])
	fileNameOffset := binary.LittleEndian.Uint16(b[58:60])

	var name string
	if fileNameLength > 0 {
		end := int(fileNameOffset) + int(fileNameLength)
		if end > int(recordLength) {
			return Record{}, 0, fmt.Errorf("usn: file name [%d,%d) escapes %d-byte record: %w", fileNameOffset, end, recordLength, ntfserr.ErrInvalidBounds)
		}
		decoded, err := utf16.DecodeString(b[fileNameOffset:end], binary.LittleEndian)
		if err != nil {
			return Record{}, 0, fmt.Errorf("usn: decoding file name: %w", err)
		}
		name = decoded
	}

	rec := Record{
		RecordLength:        recordLength,
		MajorVersion:        majorVersion,
		MinorVersion:        binary.LittleEndian.Uint16(b[6:8]),
		FileReference:       mft.FileReference{RecordNumber: fileRefNum & 0x0000FFFFFFFFFFFF, SequenceNumber: uint16(fileRefNum >> 48)},
		ParentFileReference: mft.FileReference{RecordNumber: parentRefNum & 0x0000FFFFFFFFFFFF, SequenceNumber: uint16(parentRefNum >> 48)},
		USN:                 usn,
		Timestamp:           mft.ConvertFileTime(timestamp),
		Reason:              Reason(reason),
		SourceInfo:          sourceInfo,
		SecurityID:          securityID,
		FileAttributes:      fileAttributes,
		FileName:            name,
	}
	return rec, int(recordLength), nil
}

// recordAlignment is the byte boundary every USN record is padded to.
const recordAlignment = 8

// ScanRecords decodes every record in j, the raw bytes of one $UsnJrnl:$J
// stream (or a window of it): $J is sparse-padded to a fixed block size
// between journal entries, so a run of zero bytes here means "skip to the
// next aligned record start", not "truncated stream" (spec.md §12).
func ScanRecords(j []byte) ([]Record, error) {
	var records []Record
	pos := 0
	for pos+4 <= len(j) {
		if binary.LittleEndian.Uint32(j[pos:pos+4]) == 0 {
			pos += recordAlignment
			continue
		}
		rec, n, err := ParseRecord(j[pos:])
		if err != nil {
			return records, err
		}
		records = append(records, rec)
		pos += n
		if rem := pos % recordAlignment; rem != 0 {
			pos += recordAlignment - rem
		}
	}
	return records, nil
}
