// Package blockio defines the minimal contract the stream-resolution core
// requires from a host image (block device, raw file, or forensic
// container). It intentionally mirrors io.ReaderAt rather than inventing a
// bespoke read_at/size pair: io.ReaderAt already guarantees the "fully fill
// the buffer or return an error" contract spec.md §6.4 requires, and it is
// the convention the rest of the retrieval pack uses for backing stores
// (see the io.ReaderAt-based ntfs.FS in the lvdlvd/rawhide reference).
package blockio

import (
	"io"
	"os"
)

// Device is a read-only, absolute-offset byte source. Implementations must
// serialize their own ReadAt calls if the underlying resource isn't safe for
// concurrent access; the core never issues overlapping reads against a
// single Device (spec.md §5).
type Device interface {
	io.ReaderAt
	// Size reports the total addressable size of the image in bytes.
	Size() int64
}

// SectionDevice adapts an in-memory byte slice (or an io.ReaderAt over a
// slice of a larger resource) to Device. It is primarily useful for tests
// and for small forensic containers already held in memory.
type SectionDevice struct {
	data []byte
}

// NewSectionDevice wraps data as a Device. The slice is not copied.
func NewSectionDevice(data []byte) *SectionDevice {
	return &SectionDevice{data: data}
}

func (d *SectionDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (d *SectionDevice) Size() int64 { return int64(len(d.data)) }

// FileDevice adapts an *os.File (a raw volume handle or an image file) to
// Device.
type FileDevice struct {
	f    *os.File
	size int64
}

// NewFileDevice wraps f as a Device, statting it once up front to answer
// Size. For a block device where os.Stat reports a zero size, pass
// knownSize explicitly (e.g. from an out-of-band partition table entry);
// zero disables bounds reporting but ReadAt still works.
func NewFileDevice(f *os.File, knownSize int64) (*FileDevice, error) {
	size := knownSize
	if size == 0 {
		fi, err := f.Stat()
		if err != nil {
			return nil, err
		}
		size = fi.Size()
	}
	return &FileDevice{f: f, size: size}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) { return d.f.ReadAt(p, off) }

func (d *FileDevice) Size() int64 { return d.size }
