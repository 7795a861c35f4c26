package inode

import (
	"fmt"

	. "github.com/weberc2/sectorfs/pkg/types"
)

// extend maps logical sectors `[from, to)` of `disk` to freshly allocated,
// zero-filled sectors, allocating the first-level block and any second-level
// blocks on demand. Index blocks are written only once every allocation has
// succeeded; on an allocation failure every sector granted by this call is
// released and `disk` is left untouched.
func (t *Table) extend(disk *DiskInode, from, to int) error {
	if from >= to {
		return nil
	}

	next := *disk
	var (
		granted []Sector
		first   *IndexBlock
		seconds = map[int]*IndexBlock{}
	)
	fail := func(err error) error {
		t.release(granted)
		return fmt.Errorf("extending from `%d` to `%d` sectors: %w", from, to, err)
	}
	grant := func() (Sector, error) {
		sector, err := t.allocZeroed()
		if err == nil {
			granted = append(granted, sector)
		}
		return sector, err
	}

	for i := from; i < to; i++ {
		loc, err := locate(i)
		if err != nil {
			return fail(err)
		}

		if loc.level == levelDirect {
			sector, err := grant()
			if err != nil {
				return fail(err)
			}
			next.Index[loc.direct] = sector
			continue
		}

		if first == nil {
			first = new(IndexBlock)
			if next.Index[IndirectSlot] == SectorNil {
				sector, err := grant()
				if err != nil {
					return fail(err)
				}
				next.Index[IndirectSlot] = sector
			} else if err := t.readIndex(
				next.Index[IndirectSlot],
				first,
			); err != nil {
				return fail(err)
			}
		}

		second, ok := seconds[loc.first]
		if !ok {
			second = new(IndexBlock)
			if first[loc.first] == SectorNil {
				sector, err := grant()
				if err != nil {
					return fail(err)
				}
				first[loc.first] = sector
			} else if err := t.readIndex(first[loc.first], second); err != nil {
				return fail(err)
			}
			seconds[loc.first] = second
		}

		sector, err := grant()
		if err != nil {
			return fail(err)
		}
		second[loc.second] = sector
	}

	for k, second := range seconds {
		if err := t.writeIndex(first[k], second); err != nil {
			return err
		}
	}
	if first != nil {
		if err := t.writeIndex(next.Index[IndirectSlot], first); err != nil {
			return err
		}
	}
	*disk = next
	return nil
}

// sectors lists the data sectors of `disk` in file order along with the
// index blocks that map them, first-level block first.
func (t *Table) sectors(disk *DiskInode) (data, index []Sector, err error) {
	count := disk.Length.Sectors()
	data = make([]Sector, 0, count)

	var (
		first  IndexBlock
		second IndexBlock
		loaded = -1
	)
	for i := 0; i < count; i++ {
		loc, err := locate(i)
		if err != nil {
			return nil, nil, err
		}
		if loc.level == levelDirect {
			data = append(data, disk.Index[loc.direct])
			continue
		}
		if len(index) == 0 {
			if err := t.readIndex(disk.Index[IndirectSlot], &first); err != nil {
				return nil, nil, err
			}
			index = append(index, disk.Index[IndirectSlot])
		}
		if loc.first != loaded {
			if err := t.readIndex(first[loc.first], &second); err != nil {
				return nil, nil, err
			}
			index = append(index, first[loc.first])
			loaded = loc.first
		}
		data = append(data, second[loc.second])
	}
	return data, index, nil
}
