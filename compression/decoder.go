package compression

// Decoder decodes exactly one compression unit's physical payload into its
// full logical size. dst is pre-sized to the unit's logical size (cu_size
// for NTFS compression units, the WOF chunk size for WOF chunks); Decompress
// returns the number of bytes actually produced, which may be less than
// len(dst), e.g. for the final, possibly-truncated unit of a stream or an
// LZNT1 unit that ends at a zero chunk header (spec.md §4.G; callers
// zero-fill and clamp to data_size).
//
// This mirrors the Codec/Decompressor shape used across the retrieval pack
// (see arloliu/mebo's compress.Decompressor) rather than inventing a new
// interface style.
type Decoder interface {
	Decompress(src, dst []byte) (int, error)
}

// RawDecoder "decodes" a KindRaw unit: the physical bytes already are the
// logical bytes, just grouped into compression-unit-sized spans.
type RawDecoder struct{}

func (RawDecoder) Decompress(src, dst []byte) (int, error) {
	return copy(dst, src), nil
}
