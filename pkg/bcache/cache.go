// Package bcache implements a fully associative, write-back sector cache.
//
// The cache performs no locking of its own: every method must be called with
// the engine lock held by the caller.
package bcache

import (
	"fmt"

	"github.com/weberc2/sectorfs/pkg/device"
	. "github.com/weberc2/sectorfs/pkg/types"
)

const DefaultSize = 128

type Slot struct {
	Sector  Sector
	Valid   bool
	Dirty   bool
	Recency uint64
	Data    [SectorSize]byte
}

type Stats struct {
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
	WriteBacks uint64 `json:"writeBacks"`
}

type Cache struct {
	slots  []Slot
	clock  uint64
	device device.Device
	policy Policy
	stats  Stats
}

func New(dev device.Device, size int, policy Policy) *Cache {
	if size <= 0 {
		panic(fmt.Sprintf("invalid cache size: %d", size))
	}
	return &Cache{
		slots:  make([]Slot, size),
		clock:  1,
		device: dev,
		policy: policy,
	}
}

func (c *Cache) Size() int { return len(c.slots) }

func (c *Cache) Policy() Policy { return c.policy }

func (c *Cache) Stats() Stats { return c.stats }

// Slot returns a copy of slot `i`.
func (c *Cache) Slot(i int) Slot { return c.slots[i] }

// Find returns the index of the valid slot mirroring `sector`.
func (c *Cache) Find(sector Sector) (int, bool) {
	for i := range c.slots {
		if c.slots[i].Valid && c.slots[i].Sector == sector {
			return i, true
		}
	}
	return -1, false
}

// Read copies `len(p)` bytes starting at `offset` within `sector` into `p`.
func (c *Cache) Read(sector Sector, offset Byte, p []byte) error {
	checkSpan(offset, p)
	i, err := c.lookup(sector)
	if err != nil {
		return fmt.Errorf("reading sector `%d` from cache: %w", sector, err)
	}
	s := &c.slots[i]
	c.touch(s)
	copy(p, s.Data[offset:offset+Byte(len(p))])
	return nil
}

// Write copies `p` into `sector` at `offset` and marks the slot dirty. A
// miss loads the sector first so the bytes outside the span are preserved.
func (c *Cache) Write(sector Sector, offset Byte, p []byte) error {
	checkSpan(offset, p)
	i, err := c.lookup(sector)
	if err != nil {
		return fmt.Errorf("writing sector `%d` to cache: %w", sector, err)
	}
	s := &c.slots[i]
	c.touch(s)
	s.Dirty = true
	copy(s.Data[offset:offset+Byte(len(p))], p)
	return nil
}

// Acquire returns a slot that may be overwritten: the first invalid slot,
// or else the eviction victim after it has been evicted.
func (c *Cache) Acquire() (int, error) {
	for i := range c.slots {
		if !c.slots[i].Valid {
			return i, nil
		}
	}
	victim := c.Victim()
	if err := c.Evict(victim); err != nil {
		return -1, err
	}
	c.stats.Evictions++
	return victim, nil
}

// Victim selects the slot to reclaim according to the cache policy. Only
// meaningful when every slot is valid.
func (c *Cache) Victim() int {
	victim := 0
	for i := 1; i < len(c.slots); i++ {
		if c.policy.better(c.slots[i].Recency, c.slots[victim].Recency) {
			victim = i
		}
	}
	return victim
}

// Evict invalidates slot `i`, writing it back first if it is dirty. If the
// write-back fails the slot is left valid and dirty.
func (c *Cache) Evict(i int) error {
	s := &c.slots[i]
	if s.Valid && s.Dirty {
		if err := c.device.WriteSector(s.Sector, &s.Data); err != nil {
			return fmt.Errorf(
				"evicting slot `%d`: writing back sector `%d`: %w",
				i,
				s.Sector,
				err,
			)
		}
		c.stats.WriteBacks++
	}
	s.Valid = false
	s.Dirty = false
	return nil
}

// Invalidate evicts the slot mirroring `sector`, if any.
func (c *Cache) Invalidate(sector Sector) error {
	if i, ok := c.Find(sector); ok {
		return c.Evict(i)
	}
	return nil
}

// Discard drops the slot mirroring `sector`, if any, without writing it
// back. Only sectors whose content is dead may be discarded.
func (c *Cache) Discard(sector Sector) {
	if i, ok := c.Find(sector); ok {
		c.slots[i] = Slot{}
	}
}

// Flush writes every dirty slot back to the device. Slots stay valid.
func (c *Cache) Flush() error {
	for i := range c.slots {
		s := &c.slots[i]
		if !s.Valid || !s.Dirty {
			continue
		}
		if err := c.device.WriteSector(s.Sector, &s.Data); err != nil {
			return fmt.Errorf(
				"flushing slot `%d`: writing back sector `%d`: %w",
				i,
				s.Sector,
				err,
			)
		}
		s.Dirty = false
		c.stats.WriteBacks++
	}
	return nil
}

func (c *Cache) lookup(sector Sector) (int, error) {
	if i, ok := c.Find(sector); ok {
		c.stats.Hits++
		return i, nil
	}
	c.stats.Misses++

	i, err := c.Acquire()
	if err != nil {
		return -1, err
	}
	s := &c.slots[i]
	if err := c.device.ReadSector(sector, &s.Data); err != nil {
		return -1, fmt.Errorf("loading sector into slot `%d`: %w", i, err)
	}
	s.Sector = sector
	s.Valid = true
	s.Dirty = false
	return i, nil
}

func (c *Cache) touch(s *Slot) {
	s.Recency = c.clock
	c.clock++
}

func checkSpan(offset Byte, p []byte) {
	if offset < 0 || offset+Byte(len(p)) > SectorSize {
		panic(fmt.Sprintf(
			"span [%d, %d) exceeds sector size %d",
			offset,
			offset+Byte(len(p)),
			SectorSize,
		))
	}
}
