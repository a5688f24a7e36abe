/*
Package mft parses NTFS Master File Table ("MFT") records and the
$ATTRIBUTE headers they contain.

Basic usage

Parse a record with ParseRecord, which applies fixup and parses every
attribute header (but not attribute-specific data; use the Parse...
functions in attributes.go or hand the attribute to attrchain/clusterstream
for streaming). Non-resident attributes carry a raw mapping-pairs block;
decode it with DecodeDataRuns.

	record, err := mft.ParseRecord(buf)
	data := record.FindAttributes(mft.AttributeTypeData)
*/
package mft

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/libyal/libfsntfs-sub001/binutil"
	"github.com/libyal/libfsntfs-sub001/ntfserr"
	"github.com/libyal/libfsntfs-sub001/utf16"
)

var fileSignature = []byte{0x46, 0x49, 0x4c, 0x45} // "FILE"

const maxInt = int64(^uint(0) >> 1)

// A Record represents an MFT entry, excluding technical fixup data. The
// Attributes list only contains parsed attribute headers (plus resident
// bodies and non-resident run lists); named attribute values such as
// $FILE_NAME still need one of the Parse... helpers in attributes.go.
type Record struct {
	Signature             []byte
	FileReference         FileReference
	BaseRecordReference   FileReference
	LogFileSequenceNumber uint64
	HardLinkCount         int
	Flags                 RecordFlag
	ActualSize            uint32
	AllocatedSize         uint32
	NextAttributeId       int
	Attributes            []Attribute
}

// ParseRecord parses b into a Record, applying the update-sequence fixup
// first. b is assumed to be exactly one MFT record's worth of bytes.
func ParseRecord(b []byte) (Record, error) {
	if len(b) < 42 {
		return Record{}, fmt.Errorf("mft: record is %d bytes, need at least 42: %w", len(b), ntfserr.ErrTruncatedRecord)
	}
	sig := b[:4]
	if !bytes.Equal(sig, fileSignature) {
		return Record{}, fmt.Errorf("mft: unknown record signature %#x: %w", sig, ntfserr.ErrTruncatedRecord)
	}

	b = binutil.Duplicate(b)
	r := binutil.NewLittleEndianReader(b)

	baseRecordRef, err := ParseFileReference(r.Read(0x20, 8))
	if err != nil {
		return Record{}, fmt.Errorf("mft: base record reference: %w", err)
	}

	firstAttributeOffset := int(r.Uint16(0x14))
	if firstAttributeOffset < 0 || firstAttributeOffset > len(b) {
		return Record{}, fmt.Errorf("mft: first attribute offset %d exceeds record length %d: %w", firstAttributeOffset, len(b), ntfserr.ErrInvalidBounds)
	}

	updateSequenceOffset := int(r.Uint16(0x04))
	updateSequenceSize := int(r.Uint16(0x06))
	b, err = applyFixUp(b, updateSequenceOffset, updateSequenceSize)
	if err != nil {
		return Record{}, fmt.Errorf("mft: applying fixup: %w", err)
	}

	attributes, err := ParseAttributes(b[firstAttributeOffset:])
	if err != nil {
		return Record{}, err
	}
	return Record{
		Signature:             binutil.Duplicate(sig),
		FileReference:         FileReference{RecordNumber: uint64(r.Uint32(0x2C)), SequenceNumber: r.Uint16(0x10)},
		BaseRecordReference:   baseRecordRef,
		LogFileSequenceNumber: r.Uint64(0x08),
		HardLinkCount:         int(r.Uint16(0x12)),
		Flags:                 RecordFlag(r.Uint16(0x16)),
		ActualSize:            r.Uint32(0x18),
		AllocatedSize:         r.Uint32(0x1C),
		NextAttributeId:       int(r.Uint16(0x28)),
		Attributes:            attributes,
	}, nil
}

// FileReference refers to an MFT record: a record number plus a sequence
// number that increments every time the record slot is reused, so a stale
// reference can be detected.
type FileReference struct {
	RecordNumber   uint64
	SequenceNumber uint16
}

// ParseFileReference parses an 8-byte little-endian file reference: a
// 48-bit record number followed by a 16-bit sequence number.
func ParseFileReference(b []byte) (FileReference, error) {
	if len(b) != 8 {
		return FileReference{}, fmt.Errorf("mft: file reference needs 8 bytes, got %d: %w", len(b), ntfserr.ErrInvalidBounds)
	}
	return FileReference{
		RecordNumber:   binary.LittleEndian.Uint64(padUnsigned(b[:6], 8)),
		SequenceNumber: binary.LittleEndian.Uint16(b[6:]),
	}, nil
}

// RecordFlag is a bit mask describing the status of an MFT record.
type RecordFlag uint16

const (
	RecordFlagInUse       RecordFlag = 0x0001
	RecordFlagIsDirectory RecordFlag = 0x0002
	RecordFlagInExtend    RecordFlag = 0x0004
	RecordFlagIsIndex     RecordFlag = 0x0008
)

// Is reports whether the flag set contains c.
func (f RecordFlag) Is(c RecordFlag) bool { return f&c == c }

func applyFixUp(b []byte, offset int, length int) ([]byte, error) {
	if length == 0 {
		return b, nil
	}
	r := binutil.NewLittleEndianReader(b)
	if offset < 0 || offset+length*2 > len(b) {
		return nil, fmt.Errorf("mft: update sequence array out of bounds: %w", ntfserr.ErrInvalidBounds)
	}

	updateSequence := r.Read(offset, length*2)
	updateSequenceNumber := updateSequence[:2]
	updateSequenceArray := updateSequence[2:]

	sectorCount := len(updateSequenceArray) / 2
	if sectorCount == 0 {
		return b, nil
	}
	sectorSize := len(b) / sectorCount

	for i := 1; i <= sectorCount; i++ {
		off := sectorSize*i - 2
		if !bytes.Equal(updateSequenceNumber, b[off:off+2]) {
			return nil, fmt.Errorf("mft: update sequence mismatch at offset %d: %w", off, ntfserr.ErrInvalidBounds)
		}
	}
	for i := 0; i < sectorCount; i++ {
		off := sectorSize*(i+1) - 2
		num := i * 2
		copy(b[off:off+2], updateSequenceArray[num:num+2])
	}
	return b, nil
}

// FindAttributes returns every attribute of the given type in this record,
// in on-disk order. An empty (non-nil) slice is returned when there are no
// matches.
func (r *Record) FindAttributes(attrType AttributeType) []Attribute {
	ret := make([]Attribute, 0)
	for _, a := range r.Attributes {
		if a.Type == attrType {
			ret = append(ret, a)
		}
	}
	return ret
}

// Attribute is one parsed $ATTRIBUTE header plus its body: for a resident
// attribute, Data holds the value itself; for a non-resident attribute, the
// VCN/size fields are populated and MappingPairs holds the undecoded
// data-run block (decode it with DecodeDataRuns).
type Attribute struct {
	Type        AttributeType
	Resident    bool
	Name        string
	Flags       AttributeFlags
	Identifier  int
	Data        []byte

	FirstVCN            uint64
	LastVCN             uint64
	AllocatedSize       uint64
	DataSize            uint64
	ValidDataSize       uint64
	CompressionUnitLog2 uint8
	MappingPairs        []byte
}

// CompressionUnitSize returns the size, in clusters, of one compression
// unit for this attribute, or 0 if the attribute is not NTFS-compressed.
func (a *Attribute) CompressionUnitSize() uint64 {
	if a.CompressionUnitLog2 == 0 {
		return 0
	}
	return uint64(1) << a.CompressionUnitLog2
}

// AttributeType identifies the kind of an Attribute (spec.md §6.1).
type AttributeType uint32

const (
	AttributeTypeStandardInformation AttributeType = 0x10
	AttributeTypeAttributeList       AttributeType = 0x20
	AttributeTypeFileName            AttributeType = 0x30
	AttributeTypeObjectId            AttributeType = 0x40
	AttributeTypeSecurityDescriptor  AttributeType = 0x50
	AttributeTypeVolumeName          AttributeType = 0x60
	AttributeTypeVolumeInformation   AttributeType = 0x70
	AttributeTypeData                AttributeType = 0x80
	AttributeTypeIndexRoot           AttributeType = 0x90
	AttributeTypeIndexAllocation     AttributeType = 0xa0
	AttributeTypeBitmap              AttributeType = 0xb0
	AttributeTypeReparsePoint        AttributeType = 0xc0
	AttributeTypeEAInformation       AttributeType = 0xd0
	AttributeTypeEA                  AttributeType = 0xe0
	AttributeTypePropertySet         AttributeType = 0xf0
	AttributeTypeLoggedUtilityStream AttributeType = 0x100
	AttributeTypeTerminator          AttributeType = 0xFFFFFFFF
)

// Name returns the $-prefixed on-disk name for at, or "unknown".
func (at AttributeType) Name() string {
	switch at {
	case AttributeTypeStandardInformation:
		return "$STANDARD_INFORMATION"
	case AttributeTypeAttributeList:
		return "$ATTRIBUTE_LIST"
	case AttributeTypeFileName:
		return "$FILE_NAME"
	case AttributeTypeObjectId:
		return "$OBJECT_ID"
	case AttributeTypeSecurityDescriptor:
		return "$SECURITY_DESCRIPTOR"
	case AttributeTypeVolumeName:
		return "$VOLUME_NAME"
	case AttributeTypeVolumeInformation:
		return "$VOLUME_INFORMATION"
	case AttributeTypeData:
		return "$DATA"
	case AttributeTypeIndexRoot:
		return "$INDEX_ROOT"
	case AttributeTypeIndexAllocation:
		return "$INDEX_ALLOCATION"
	case AttributeTypeBitmap:
		return "$BITMAP"
	case AttributeTypeReparsePoint:
		return "$REPARSE_POINT"
	case AttributeTypeEAInformation:
		return "$EA_INFORMATION"
	case AttributeTypeEA:
		return "$EA"
	case AttributeTypePropertySet:
		return "$PROPERTY_SET"
	case AttributeTypeLoggedUtilityStream:
		return "$LOGGED_UTILITY_STREAM"
	}
	return "unknown"
}

// AttributeFlags is a bit mask describing properties of an attribute's data.
type AttributeFlags uint16

const (
	AttributeFlagsCompressed AttributeFlags = 0x0001
	AttributeFlagsEncrypted  AttributeFlags = 0x4000
	AttributeFlagsSparse     AttributeFlags = 0x8000
)

// Is reports whether the flag set contains c.
func (f AttributeFlags) Is(c AttributeFlags) bool { return f&c == c }

// ParseAttributes parses consecutive attribute headers from b until it
// meets the AttributeTypeTerminator sentinel or b is exhausted.
func ParseAttributes(b []byte) ([]Attribute, error) {
	if len(b) == 0 {
		return []Attribute{}, nil
	}
	attributes := make([]Attribute, 0)
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("mft: attribute header needs at least 4 bytes, got %d: %w", len(b), ntfserr.ErrTruncatedRecord)
		}

		r := binutil.NewLittleEndianReader(b)
		attrType := r.Uint32(0)
		if attrType == uint32(AttributeTypeTerminator) {
			break
		}

		if len(b) < 8 {
			return nil, fmt.Errorf("mft: attribute record length field needs 8 bytes, got %d: %w", len(b), ntfserr.ErrTruncatedRecord)
		}

		uRecordLength := r.Uint32(0x04)
		if int64(uRecordLength) > maxInt {
			return nil, fmt.Errorf("mft: attribute record length %d overflows int: %w", uRecordLength, ntfserr.ErrInvalidBounds)
		}
		recordLength := int(uRecordLength)
		if recordLength <= 0 {
			return nil, fmt.Errorf("mft: attribute record length is %d: %w", recordLength, ntfserr.ErrInvalidBounds)
		}
		if recordLength > len(b) {
			return nil, fmt.Errorf("mft: attribute record length %d exceeds remaining %d bytes: %w", recordLength, len(b), ntfserr.ErrTruncatedRecord)
		}

		recordData := r.Read(0, recordLength)
		attribute, err := ParseAttribute(recordData)
		if err != nil {
			return nil, err
		}
		attributes = append(attributes, attribute)
		b = r.ReadFrom(recordLength)
	}
	return attributes, nil
}

// ParseAttribute parses one $ATTRIBUTE header (and its resident body, or
// its non-resident VCN/size fields and raw mapping-pairs block) per
// spec.md §4.B.
func ParseAttribute(b []byte) (Attribute, error) {
	if len(b) < 16 {
		return Attribute{}, fmt.Errorf("mft: attribute needs at least 16 bytes, got %d: %w", len(b), ntfserr.ErrTruncatedRecord)
	}

	r := binutil.NewLittleEndianReader(b)

	nameLength := r.Byte(0x09)
	nameOffset := r.Uint16(0x0A)

	name := ""
	if nameLength != 0 {
		nameEnd := int(nameOffset) + int(nameLength)*2
		if nameEnd > len(b) {
			return Attribute{}, fmt.Errorf("mft: attribute name escapes record: %w", ntfserr.ErrInvalidBounds)
		}
		nameBytes := r.Read(int(nameOffset), int(nameLength)*2)
		decoded, err := utf16.DecodeString(nameBytes, binary.LittleEndian)
		if err != nil {
			return Attribute{}, fmt.Errorf("mft: decoding attribute name: %w", err)
		}
		name = decoded
	}

	flags := AttributeFlags(r.Uint16(0x0C))
	resident := r.Byte(0x08) == 0x00

	base := Attribute{
		Type:       AttributeType(r.Uint32(0)),
		Resident:   resident,
		Name:       name,
		Flags:      flags,
		Identifier: int(r.Uint16(0x0E)),
	}

	if resident {
		if len(b) < 0x18 {
			return Attribute{}, fmt.Errorf("mft: resident attribute header truncated: %w", ntfserr.ErrTruncatedRecord)
		}
		dataOffset := int(r.Uint16(0x14))
		uDataLength := r.Uint32(0x10)
		if int64(uDataLength) > maxInt {
			return Attribute{}, fmt.Errorf("mft: resident data length %d overflows int: %w", uDataLength, ntfserr.ErrInvalidBounds)
		}
		dataLength := int(uDataLength)
		expectedDataLength := dataOffset + dataLength
		if len(b) < expectedDataLength || dataOffset < 0 || dataLength < 0 {
			return Attribute{}, fmt.Errorf("mft: resident data [%d,%d) escapes %d-byte attribute: %w", dataOffset, expectedDataLength, len(b), ntfserr.ErrInvalidBounds)
		}
		base.Data = binutil.Duplicate(r.Read(dataOffset, dataLength))
		base.DataSize = uint64(dataLength)
		return base, nil
	}

	if len(b) < 0x40 {
		return Attribute{}, fmt.Errorf("mft: non-resident attribute header truncated: %w", ntfserr.ErrTruncatedRecord)
	}

	base.FirstVCN = r.Uint64(0x10)
	base.LastVCN = r.Uint64(0x18)
	mappingPairsOffset := int(r.Uint16(0x20))
	base.CompressionUnitLog2 = r.Byte(0x22) // only the low byte is significant
	base.AllocatedSize = r.Uint64(0x28)
	base.DataSize = r.Uint64(0x30)
	base.ValidDataSize = r.Uint64(0x38)

	if flags.Is(AttributeFlagsCompressed) && base.CompressionUnitLog2 == 0 {
		return Attribute{}, fmt.Errorf("mft: attribute %#x is flagged compressed with zero compression unit: %w", base.Type, ntfserr.ErrUnsupportedCompressionFlag)
	}
	if base.ValidDataSize > base.DataSize || base.DataSize > base.AllocatedSize {
		return Attribute{}, fmt.Errorf("mft: attribute %#x sizes out of order (valid=%d data=%d allocated=%d): %w", base.Type, base.ValidDataSize, base.DataSize, base.AllocatedSize, ntfserr.ErrInvalidBounds)
	}

	if mappingPairsOffset < 0 || mappingPairsOffset > len(b) {
		return Attribute{}, fmt.Errorf("mft: mapping pairs offset %d escapes %d-byte attribute: %w", mappingPairsOffset, len(b), ntfserr.ErrInvalidBounds)
	}
	base.MappingPairs = binutil.Duplicate(r.ReadFrom(mappingPairsOffset))
	return base, nil
}

func padTo(data []byte, length int) []byte {
	if len(data) >= length {
		return data
	}
	result := make([]byte, length)
	if len(data) == 0 {
		return result
	}
	copy(result, data)
	if data[len(data)-1]&0x80 == 0x80 {
		for i := len(data); i < length; i++ {
			result[i] = 0xFF
		}
	}
	return result
}
