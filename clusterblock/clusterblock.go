// Package clusterblock wraps a single cluster-sized read from a blockio.Device
// (spec.md §4.E). A Block is immutable once read: the producer fills
// cluster_size bytes from the absolute byte offset and hands ownership to
// whoever asked for it (typically streamcache).
package clusterblock

import (
	"fmt"

	"github.com/libyal/libfsntfs-sub001/blockio"
)

// Block is one cached, cluster-sized buffer plus the absolute byte offset it
// was read from. The cache key for a Block is its Offset combined with the
// cluster size used to read it (a device's cluster size is fixed for its
// lifetime, so Offset alone is sufficient within one volume).
type Block struct {
	Offset int64
	Data   []byte
}

// Read fetches one cluster-sized block at the given absolute byte offset.
func Read(dev blockio.Device, offset int64, clusterSize int) (*Block, error) {
	if clusterSize <= 0 {
		return nil, fmt.Errorf("clusterblock: non-positive cluster size %d", clusterSize)
	}
	data := make([]byte, clusterSize)
	if _, err := dev.ReadAt(data, offset); err != nil {
		return nil, fmt.Errorf("clusterblock: reading %d bytes at offset %d: %w", clusterSize, offset, err)
	}
	return &Block{Offset: offset, Data: data}, nil
}
