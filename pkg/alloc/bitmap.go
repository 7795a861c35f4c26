package alloc

import (
	"fmt"

	"github.com/weberc2/sectorfs/pkg/math"
	. "github.com/weberc2/sectorfs/pkg/types"
)

const bitsPerByte = 8

// Bitmap is a first-fit allocator with one bit per sector. A set bit means
// the sector is in use.
type Bitmap struct {
	bytes []byte
	size  int
}

func New(sectors int) *Bitmap {
	return &Bitmap{
		bytes: make([]byte, math.DivRoundUp(sectors, bitsPerByte)),
		size:  sectors,
	}
}

// Load replaces the bitmap contents with `data`, which must have been
// produced by `Bytes()` on a bitmap of the same size.
func (bm *Bitmap) Load(data []byte) error {
	if len(data) < len(bm.bytes) {
		return fmt.Errorf(
			"loading bitmap: wanted `%d` bytes; found `%d`",
			len(bm.bytes),
			len(data),
		)
	}
	copy(bm.bytes, data)
	return nil
}

func (bm *Bitmap) Size() int { return bm.size }

func (bm *Bitmap) Bytes() []byte { return bm.bytes }

func (bm *Bitmap) Allocate(count int) (Sector, bool) {
	if count <= 0 {
		return SectorNil, false
	}
	run := 0
	for i := 0; i < bm.size; i++ {
		if bm.test(i) {
			run = 0
			continue
		}
		run++
		if run == count {
			start := i - count + 1
			for j := start; j <= i; j++ {
				bm.set(j)
			}
			return Sector(start), true
		}
	}
	return SectorNil, false
}

func (bm *Bitmap) Release(sector Sector, count int) {
	for i := int(sector); i < int(sector)+count; i++ {
		if i >= bm.size {
			panic(fmt.Sprintf("releasing sector `%d` past end of bitmap", i))
		}
		bm.clear(i)
	}
}

func (bm *Bitmap) Reserve(sector Sector) { bm.set(int(sector)) }

func (bm *Bitmap) InUse(sector Sector) bool { return bm.test(int(sector)) }

// Free returns the number of unallocated sectors.
func (bm *Bitmap) Free() int {
	free := 0
	for i := 0; i < bm.size; i++ {
		if !bm.test(i) {
			free++
		}
	}
	return free
}

func (bm *Bitmap) test(i int) bool {
	return bm.bytes[i/bitsPerByte]&(0b1000_0000>>(i%bitsPerByte)) != 0
}

func (bm *Bitmap) set(i int) {
	bm.bytes[i/bitsPerByte] |= 0b1000_0000 >> (i % bitsPerByte)
}

func (bm *Bitmap) clear(i int) {
	bm.bytes[i/bitsPerByte] &^= 0b1000_0000 >> (i % bitsPerByte)
}
