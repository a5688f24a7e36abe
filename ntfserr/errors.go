// Package ntfserr defines the error taxonomy shared by every layer of the
// stream resolution pipeline. Callers match errors with errors.Is/errors.As
// instead of string comparison; nothing here carries out-parameters or a
// custom error-code enum the way the C source's libcerror_error_t** does.
package ntfserr

import "errors"

// Kind buckets an error into one of the taxonomy's four top-level groups.
type Kind int

const (
	// KindIO covers errors propagated verbatim from a blockio.Device.
	KindIO Kind = iota
	// KindMalformedOnDisk covers invariant violations found in image bytes.
	KindMalformedOnDisk
	// KindUnsupported covers well-formed images using a feature this
	// package doesn't implement.
	KindUnsupported
	// KindBounds covers client requests for bytes outside a logical range.
	KindBounds
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindMalformedOnDisk:
		return "malformed-on-disk"
	case KindUnsupported:
		return "unsupported"
	case KindBounds:
		return "bounds"
	default:
		return "unknown"
	}
}

// SentinelError is the base type every exported Err* sentinel uses. Wrap it
// with fmt.Errorf("context: %w", ErrX) to attach call-specific detail while
// keeping it matchable with errors.Is(err, ErrX).
type SentinelError struct {
	kind Kind
	text string
}

func (e *SentinelError) Error() string { return e.text }

// Kind reports which taxonomy bucket the error falls into.
func (e *SentinelError) Kind() Kind { return e.kind }

func newSentinel(kind Kind, text string) *SentinelError {
	return &SentinelError{kind: kind, text: text}
}

// MalformedOnDisk sub-kinds (spec.md §7).
var (
	ErrTruncatedRecord         = newSentinel(KindMalformedOnDisk, "truncated mft record")
	ErrInvalidBounds           = newSentinel(KindMalformedOnDisk, "offset or length escapes record")
	ErrTruncatedRun            = newSentinel(KindMalformedOnDisk, "truncated data run")
	ErrLcnOutOfRange           = newSentinel(KindMalformedOnDisk, "lcn out of range")
	ErrVcnGap                  = newSentinel(KindMalformedOnDisk, "vcn gap between attribute fragments")
	ErrInconsistentCompression = newSentinel(KindMalformedOnDisk, "inconsistent compression unit size across fragments")
	ErrBadBackReference        = newSentinel(KindMalformedOnDisk, "back-reference points before start of output")
	ErrShortUnit               = newSentinel(KindMalformedOnDisk, "compression unit produced fewer bytes than expected")
	ErrDecompressorOverrun     = newSentinel(KindMalformedOnDisk, "decompressed chunk exceeds maximum chunk size")
	ErrNonMonotonicChunkTable  = newSentinel(KindMalformedOnDisk, "wof chunk offset table is not monotonic")

	// ErrUnsupportedCompressionFlag is MalformedOnDisk per spec.md §4.B
	// (compressed bit set with compression_unit_log2 == 0 is an on-disk
	// contradiction, not merely an unimplemented feature).
	ErrUnsupportedCompressionFlag = newSentinel(KindMalformedOnDisk, "compressed flag set with zero compression unit size")
)

// Unsupported (well-formed image, unimplemented feature).
var (
	ErrUnsupportedCompressionMethod = newSentinel(KindUnsupported, "unsupported compression method")
	ErrUnsupported                  = newSentinel(KindUnsupported, "unsupported on-disk feature")
)

// Bounds.
var (
	ErrOutOfRange = newSentinel(KindBounds, "offset past end of stream")
)

// ErrEndOfList is the attribute-record end-of-list sentinel from spec.md
// §4.B. It is not part of the Kind taxonomy: it is a successful "stop"
// signal, analogous to io.EOF, not a failure.
var ErrEndOfList = errors.New("end of attribute list")

// KindOf reports the taxonomy bucket for err, defaulting to KindIO for any
// error that isn't one of this package's sentinels (i.e. it came from the
// block-I/O adapter or elsewhere outside this module).
func KindOf(err error) Kind {
	var s *SentinelError
	if errors.As(err, &s) {
		return s.Kind()
	}
	return KindIO
}
