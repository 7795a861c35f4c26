package alloc

import . "github.com/weberc2/sectorfs/pkg/types"

// Allocator grants and reclaims runs of contiguous sectors.
type Allocator interface {
	Allocate(count int) (Sector, bool)
	Release(sector Sector, count int)
}

var (
	_ Allocator = (*Bitmap)(nil)
	_ Allocator = (*Flushable)(nil)
)
