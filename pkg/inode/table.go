// Package inode implements indexed, growable files on top of a sector
// device. A file's sectors are named by 250 direct pointers plus one
// doubly indirect block; all file data flows through the shared sector cache
// while inode sectors and index blocks go straight to the device.
package inode

import (
	"fmt"
	"sync"

	"github.com/weberc2/sectorfs/pkg/alloc"
	"github.com/weberc2/sectorfs/pkg/bcache"
	"github.com/weberc2/sectorfs/pkg/device"
	"github.com/weberc2/sectorfs/pkg/encode"
	. "github.com/weberc2/sectorfs/pkg/types"
)

// Table owns the set of open inodes for one device. Opening the same sector
// twice yields the same `*Inode`.
//
// Lock order is `mutex` (registry), then `Inode.mutex`, then `engine`.
type Table struct {
	device    device.Device
	allocator alloc.Allocator

	// engine guards `cache` and `allocator`.
	engine sync.Mutex
	cache  *bcache.Cache

	// mutex guards `open` and the open/deny counters and removed flags of
	// every registered inode.
	mutex sync.Mutex
	open  map[Sector]*Inode
}

func NewTable(
	dev device.Device,
	allocator alloc.Allocator,
	cache *bcache.Cache,
) *Table {
	return &Table{
		device:    dev,
		allocator: allocator,
		cache:     cache,
		open:      map[Sector]*Inode{},
	}
}

// Create writes a fresh inode of `length` bytes to `sector`. Every data
// sector is allocated up front and zero-filled. On failure, sectors granted
// during the call are returned to the allocator and nothing is written to
// `sector`.
func (t *Table) Create(sector Sector, length Byte) error {
	if length < 0 {
		panic(fmt.Sprintf("negative inode length: %d", length))
	}
	if length > MaxFileSize {
		return fmt.Errorf(
			"creating inode `%d` with length `%d`: %w",
			sector,
			length,
			FileTooLargeErr,
		)
	}

	disk := DiskInode{Length: length, Magic: InodeMagic}
	if err := t.extend(&disk, 0, length.Sectors()); err != nil {
		return fmt.Errorf("creating inode `%d`: %w", sector, err)
	}
	if err := t.writeInode(sector, &disk); err != nil {
		return fmt.Errorf("creating inode `%d`: %w", sector, err)
	}
	return nil
}

// Open returns the in-memory inode for `sector`, loading it from the device
// if no one has it open.
func (t *Table) Open(sector Sector) (*Inode, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if inode, ok := t.open[sector]; ok {
		inode.openCount++
		return inode, nil
	}

	var buf [SectorSize]byte
	if err := t.device.ReadSector(sector, &buf); err != nil {
		return nil, fmt.Errorf("opening inode `%d`: %w", sector, err)
	}
	inode := Inode{table: t, sector: sector, openCount: 1}
	if err := encode.DecodeInode(&inode.disk, &buf); err != nil {
		return nil, fmt.Errorf("opening inode `%d`: %w", sector, err)
	}
	t.open[sector] = &inode
	return &inode, nil
}

// OpenInodes returns the number of distinct inodes currently open.
func (t *Table) OpenInodes() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.open)
}

// Flush writes every dirty cached sector back to the device.
func (t *Table) Flush() error {
	t.engine.Lock()
	defer t.engine.Unlock()
	return t.cache.Flush()
}

func (t *Table) CacheStats() bcache.Stats {
	t.engine.Lock()
	defer t.engine.Unlock()
	return t.cache.Stats()
}

func (t *Table) cacheRead(sector Sector, offset Byte, p []byte) error {
	t.engine.Lock()
	defer t.engine.Unlock()
	return t.cache.Read(sector, offset, p)
}

func (t *Table) cacheWrite(sector Sector, offset Byte, p []byte) error {
	t.engine.Lock()
	defer t.engine.Unlock()
	return t.cache.Write(sector, offset, p)
}

func (t *Table) invalidate(sectors []Sector) error {
	t.engine.Lock()
	defer t.engine.Unlock()
	for _, sector := range sectors {
		if err := t.cache.Invalidate(sector); err != nil {
			return err
		}
	}
	return nil
}

// discard drops cached copies of dead sectors without writing them back.
func (t *Table) discard(sectors []Sector) {
	t.engine.Lock()
	defer t.engine.Unlock()
	for _, sector := range sectors {
		t.cache.Discard(sector)
	}
}

func (t *Table) release(sectors []Sector) {
	t.engine.Lock()
	defer t.engine.Unlock()
	for _, sector := range sectors {
		t.allocator.Release(sector, 1)
	}
}

// allocZeroed grants one sector and writes zeros to it on the device.
func (t *Table) allocZeroed() (Sector, error) {
	t.engine.Lock()
	sector, ok := t.allocator.Allocate(1)
	t.engine.Unlock()
	if !ok {
		return SectorNil, OutOfSectorsErr
	}
	if err := t.device.WriteSector(sector, &device.Zeros); err != nil {
		t.release([]Sector{sector})
		return SectorNil, fmt.Errorf("zeroing sector `%d`: %w", sector, err)
	}
	return sector, nil
}

func (t *Table) writeInode(sector Sector, disk *DiskInode) error {
	var buf [SectorSize]byte
	encode.EncodeInode(disk, &buf)
	if err := t.device.WriteSector(sector, &buf); err != nil {
		return fmt.Errorf("writing inode `%d`: %w", sector, err)
	}
	return nil
}

func (t *Table) readIndex(sector Sector, block *IndexBlock) error {
	var buf [SectorSize]byte
	if err := t.device.ReadSector(sector, &buf); err != nil {
		return fmt.Errorf("reading index block `%d`: %w", sector, err)
	}
	encode.DecodeIndex(block, &buf)
	return nil
}

func (t *Table) writeIndex(sector Sector, block *IndexBlock) error {
	var buf [SectorSize]byte
	encode.EncodeIndex(block, &buf)
	if err := t.device.WriteSector(sector, &buf); err != nil {
		return fmt.Errorf("writing index block `%d`: %w", sector, err)
	}
	return nil
}
