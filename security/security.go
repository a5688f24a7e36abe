// Package security carries NTFS security descriptors as opaque bytes.
// Parsing a SID, an ACL, or the $SECURITY_DESCRIPTOR attribute's internal
// structure is out of scope (Non-goals, spec.md): callers that need that get
// the raw bytes and a security identifier to correlate with, nothing more.
package security

// Descriptor is the opaque payload of one $SECURITY_DESCRIPTOR attribute
// value (whether held inline on a file or, for shared descriptors, read out
// of the $Secure system file's $SDS data stream).
type Descriptor struct {
	// SecurityID correlates this descriptor with $STANDARD_INFORMATION's
	// security_id field (or, inside $Secure, with an $SII/$SDH index entry).
	// Zero means "not applicable" (e.g. a per-file, non-shared descriptor).
	SecurityID uint32
	Raw        []byte
}

// New wraps a $SECURITY_DESCRIPTOR attribute's raw value, tagging it with
// the owning file's security_id for correlation.
func New(securityID uint32, raw []byte) Descriptor {
	return Descriptor{SecurityID: securityID, Raw: raw}
}
