// Package reparse interprets $REPARSE_POINT attribute payloads (spec.md
// §12). Only the pieces this module acts on are decoded: the tag (to detect
// a WOF-compressed file) and the WOF provider record itself; symbolic-link
// and junction substitute/print names are exposed as opaque bytes, parsing
// them is out of scope (Non-goals, spec.md).
package reparse

import (
	"encoding/binary"
	"fmt"

	"github.com/libyal/libfsntfs-sub001/mft"
	"github.com/libyal/libfsntfs-sub001/ntfserr"
	"github.com/libyal/libfsntfs-sub001/wof"
)

// Well-known reparse point tags (spec.md §12). The high bit marks a
// Microsoft-defined tag; none of the bits here are specific to this module
// beyond letting it recognize WOF.
const (
	TagSymlink        uint32 = 0xA000000C
	TagMountPoint     uint32 = 0xA0000003
	TagWOF            uint32 = 0x80000017
	TagAppExecLink    uint32 = 0x8000001B
)

// wofProviderFile is WOF's "provider" discriminant for a FILE_PROVIDER
// record, as opposed to a WIM_PROVIDER record (not handled: WIM-backed
// reparse points are out of scope).
const wofProviderFile = 2

// WOFInfo is the decoded WOF_EXTERNAL_INFO + FILE_PROVIDER_EXTERNAL_INFO_V1
// record carried in a WOF reparse point's data.
type WOFInfo struct {
	Version           uint32
	Provider          uint32
	ProviderVersion   uint32
	CompressionMethod wof.Method
}

// ParseWOFInfo decodes the WOF-specific payload following a $REPARSE_POINT's
// 8-byte common header. It returns ntfserr.ErrUnsupported if the record
// identifies a non-file (e.g. WIM) provider.
func ParseWOFInfo(data []byte) (WOFInfo, error) {
	if len(data) < 16 {
		return WOFInfo{}, fmt.Errorf("reparse: WOF record needs at least 16 bytes, got %d: %w", len(data), ntfserr.ErrTruncatedRecord)
	}
	info := WOFInfo{
		Version:  binary.LittleEndian.Uint32(data[0:4]),
		Provider: binary.LittleEndian.Uint32(data[4:8]),
	}
	if info.Provider != wofProviderFile {
		return WOFInfo{}, fmt.Errorf("reparse: WOF provider %d is not FILE_PROVIDER: %w", info.Provider, ntfserr.ErrUnsupported)
	}
	info.ProviderVersion = binary.LittleEndian.Uint32(data[8:12])
	info.CompressionMethod = wof.Method(binary.LittleEndian.Uint32(data[12:16]))
	return info, nil
}

// Point is a parsed $REPARSE_POINT attribute (spec.md §12).
type Point struct {
	Tag  uint32
	Data []byte
}

// IsWOF reports whether p tags its owning file as WOF-compressed.
func (p Point) IsWOF() bool { return p.Tag == TagWOF }

// Parse decodes a $REPARSE_POINT attribute value into a Point.
func Parse(raw []byte) (Point, error) {
	v, err := mft.ParseReparsePoint(raw)
	if err != nil {
		return Point{}, err
	}
	return Point{Tag: v.Tag, Data: v.Data}, nil
}
