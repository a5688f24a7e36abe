// Package streamcache implements the bounded two-tier LRU described in
// spec.md §4.J: a raw-cluster tier keyed by absolute volume byte offset, and
// a decompressed compression-unit tier keyed by (attribute, unit index). Both
// tiers are optional — a nil *Cache (or a zero-sized tier) degrades
// performance but never correctness, since every miss falls through to the
// block-I/O adapter.
//
// The LRU itself is github.com/hashicorp/golang-lru/v2, the same package the
// rest of the retrieval pack reaches for when it needs a bounded cache
// (see SPEC_FULL.md §11); nothing here reimplements eviction bookkeeping.
package streamcache

import (
	"github.com/hashicorp/golang-lru/v2"

	"github.com/libyal/libfsntfs-sub001/clusterblock"
)

// DefaultRawBlocks and DefaultDecompressedUnits are the suggested bounds from
// spec.md §4.J.
const (
	DefaultRawBlocks        = 1024
	DefaultDecompressedUnits = 64
)

// UnitKey identifies one decompressed compression unit. AttributeID should be
// unique per logical stream (e.g. the base file reference combined with the
// attribute type and name); the cache does not interpret it.
type UnitKey struct {
	AttributeID string
	UnitIndex   uint64
}

// Config sizes the two cache tiers. A zero value in either field disables
// that tier (every lookup is a miss, every insert a no-op) without disabling
// the other.
type Config struct {
	RawBlocks        int
	DecompressedUnits int
}

// DefaultConfig returns the suggested tier sizes from spec.md §4.J.
func DefaultConfig() Config {
	return Config{RawBlocks: DefaultRawBlocks, DecompressedUnits: DefaultDecompressedUnits}
}

// Cache is the two-tier stream cache. The zero value is not usable; build one
// with New. A *Cache is not safe for concurrent use by multiple goroutines
// unless the caller serializes access externally (spec.md §5 recommends a
// single lock released across blockio calls).
type Cache struct {
	raw   *lru.Cache[int64, *clusterblock.Block]
	units *lru.Cache[UnitKey, []byte]
}

// New builds a Cache from cfg. A non-positive tier size disables that tier.
func New(cfg Config) (*Cache, error) {
	c := &Cache{}
	if cfg.RawBlocks > 0 {
		raw, err := lru.New[int64, *clusterblock.Block](cfg.RawBlocks)
		if err != nil {
			return nil, err
		}
		c.raw = raw
	}
	if cfg.DecompressedUnits > 0 {
		units, err := lru.New[UnitKey, []byte](cfg.DecompressedUnits)
		if err != nil {
			return nil, err
		}
		c.units = units
	}
	return c, nil
}

// GetBlock returns the cached block at offset, if any.
func (c *Cache) GetBlock(offset int64) (*clusterblock.Block, bool) {
	if c == nil || c.raw == nil {
		return nil, false
	}
	return c.raw.Get(offset)
}

// PutBlock admits a block into the raw-cluster tier.
func (c *Cache) PutBlock(b *clusterblock.Block) {
	if c == nil || c.raw == nil || b == nil {
		return
	}
	c.raw.Add(b.Offset, b)
}

// GetUnit returns the cached decompressed bytes for key, if any. The caller
// must not mutate the returned slice: it is shared with the cache.
func (c *Cache) GetUnit(key UnitKey) ([]byte, bool) {
	if c == nil || c.units == nil {
		return nil, false
	}
	return c.units.Get(key)
}

// PutUnit admits a decompressed compression unit into the CU tier.
func (c *Cache) PutUnit(key UnitKey, data []byte) {
	if c == nil || c.units == nil {
		return
	}
	c.units.Add(key, data)
}
