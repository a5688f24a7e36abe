package clusterstream

// Extent is the user-visible projection of a stream's physical layout
// (spec.md §3.1 Entity "Extent"): a logical file-offset range tagged with
// how its bytes are produced.
type Extent struct {
	FileOffset uint64
	ByteLength uint64
	Sparse     bool
	Compressed bool
	Raw        bool
}
