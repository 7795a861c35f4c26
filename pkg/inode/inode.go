package inode

import (
	"fmt"
	"sync"

	"github.com/weberc2/sectorfs/pkg/math"
	. "github.com/weberc2/sectorfs/pkg/types"
)

// Inode is the in-memory state of one open file.
type Inode struct {
	table  *Table
	sector Sector

	// guarded by `table.mutex`
	openCount      int
	denyWriteCount int
	removed        bool

	// mutex guards `disk`. Writers hold it exclusively for the whole
	// operation so growth is never interleaved.
	mutex sync.RWMutex
	disk  DiskInode
}

// Inumber returns the sector holding the inode, which doubles as its
// identity.
func (inode *Inode) Inumber() Sector { return inode.sector }

// Reopen records another opener of an already-open inode.
func (inode *Inode) Reopen() *Inode {
	inode.table.mutex.Lock()
	defer inode.table.mutex.Unlock()
	if inode.openCount < 1 {
		panic(fmt.Sprintf("reopening closed inode `%d`", inode.sector))
	}
	inode.openCount++
	return inode
}

func (inode *Inode) OpenCount() int {
	inode.table.mutex.Lock()
	defer inode.table.mutex.Unlock()
	return inode.openCount
}

func (inode *Inode) Length() Byte {
	inode.mutex.RLock()
	defer inode.mutex.RUnlock()
	return inode.disk.Length
}

func (inode *Inode) IsDir() bool {
	inode.mutex.RLock()
	defer inode.mutex.RUnlock()
	return inode.disk.IsDir
}

// SetDir updates the directory flag and persists the inode.
func (inode *Inode) SetDir(isDir bool) error {
	inode.mutex.Lock()
	defer inode.mutex.Unlock()
	disk := inode.disk
	disk.IsDir = isDir
	if err := inode.table.writeInode(inode.sector, &disk); err != nil {
		return err
	}
	inode.disk = disk
	return nil
}

// Remove marks the inode for deletion. Its sectors are reclaimed when the
// last opener closes it.
func (inode *Inode) Remove() {
	inode.table.mutex.Lock()
	defer inode.table.mutex.Unlock()
	inode.removed = true
}

func (inode *Inode) Removed() bool {
	inode.table.mutex.Lock()
	defer inode.table.mutex.Unlock()
	return inode.removed
}

// DenyWrite blocks writes until a matching `AllowWrite`. Each opener may deny
// at most once.
func (inode *Inode) DenyWrite() {
	inode.table.mutex.Lock()
	defer inode.table.mutex.Unlock()
	inode.denyWriteCount++
	if inode.denyWriteCount > inode.openCount {
		panic(fmt.Sprintf(
			"inode `%d`: deny-write count `%d` exceeds open count `%d`",
			inode.sector,
			inode.denyWriteCount,
			inode.openCount,
		))
	}
}

// AllowWrite undoes one `DenyWrite`.
func (inode *Inode) AllowWrite() {
	inode.table.mutex.Lock()
	defer inode.table.mutex.Unlock()
	if inode.denyWriteCount < 1 {
		panic(fmt.Sprintf("inode `%d`: write is not denied", inode.sector))
	}
	if inode.denyWriteCount > inode.openCount {
		panic(fmt.Sprintf(
			"inode `%d`: deny-write count `%d` exceeds open count `%d`",
			inode.sector,
			inode.denyWriteCount,
			inode.openCount,
		))
	}
	inode.denyWriteCount--
}

func (inode *Inode) writeDenied() bool {
	inode.table.mutex.Lock()
	defer inode.table.mutex.Unlock()
	return inode.denyWriteCount > 0
}

// ReadAt copies up to `len(p)` bytes starting at `offset` into `p`. Reading
// at or past the end of the file is not an error; it returns fewer bytes
// than requested, possibly zero.
func (inode *Inode) ReadAt(offset Byte, p []byte) (Byte, error) {
	if offset < 0 {
		panic(fmt.Sprintf("negative read offset: %d", offset))
	}

	inode.mutex.RLock()
	defer inode.mutex.RUnlock()

	var read Byte
	for read < Byte(len(p)) {
		pos := offset + read
		sectorOffset := pos % SectorSize
		chunk := math.Min(
			Byte(len(p))-read,
			math.Min(inode.disk.Length-pos, SectorSize-sectorOffset),
		)
		if chunk <= 0 {
			break
		}

		sector, err := inode.byteToSector(pos)
		if err != nil {
			return read, fmt.Errorf(
				"reading inode `%d` at `%d`: %w",
				inode.sector,
				pos,
				err,
			)
		}
		if err := inode.table.cacheRead(
			sector,
			sectorOffset,
			p[read:read+chunk],
		); err != nil {
			return read, fmt.Errorf(
				"reading inode `%d` at `%d`: %w",
				inode.sector,
				pos,
				err,
			)
		}
		read += chunk
	}
	return read, nil
}

// WriteAt copies `p` into the file starting at `offset`, first growing the
// file if the write ends past its current length. A write to a
// write-denied inode writes nothing and returns zero.
func (inode *Inode) WriteAt(offset Byte, p []byte) (Byte, error) {
	if offset < 0 {
		panic(fmt.Sprintf("negative write offset: %d", offset))
	}
	if inode.writeDenied() {
		return 0, nil
	}

	inode.mutex.Lock()
	defer inode.mutex.Unlock()

	if err := inode.grow(offset + Byte(len(p))); err != nil {
		return 0, fmt.Errorf("writing inode `%d`: %w", inode.sector, err)
	}

	var written Byte
	for written < Byte(len(p)) {
		pos := offset + written
		sectorOffset := pos % SectorSize
		chunk := math.Min(
			Byte(len(p))-written,
			math.Min(inode.disk.Length-pos, SectorSize-sectorOffset),
		)
		if chunk <= 0 {
			break
		}

		sector, err := inode.byteToSector(pos)
		if err != nil {
			return written, fmt.Errorf(
				"writing inode `%d` at `%d`: %w",
				inode.sector,
				pos,
				err,
			)
		}
		if err := inode.table.cacheWrite(
			sector,
			sectorOffset,
			p[written:written+chunk],
		); err != nil {
			return written, fmt.Errorf(
				"writing inode `%d` at `%d`: %w",
				inode.sector,
				pos,
				err,
			)
		}
		written += chunk
	}
	return written, nil
}

// grow extends the file so that it is at least `end` bytes long. New sectors
// are zero-filled, and bytes between the old length and the end of its last
// sector are already zero, so the gap reads as zeros. The caller must hold
// `inode.mutex` exclusively.
func (inode *Inode) grow(end Byte) error {
	if end <= inode.disk.Length {
		return nil
	}
	if end > MaxFileSize {
		return fmt.Errorf("growing to `%d` bytes: %w", end, FileTooLargeErr)
	}

	disk := inode.disk
	if err := inode.table.extend(
		&disk,
		disk.Length.Sectors(),
		end.Sectors(),
	); err != nil {
		return err
	}
	disk.Length = end
	if err := inode.table.writeInode(inode.sector, &disk); err != nil {
		return err
	}
	inode.disk = disk
	return nil
}

// byteToSector returns the device sector holding byte `pos` of the file. The
// caller must hold `inode.mutex` and `pos` must be less than the length.
func (inode *Inode) byteToSector(pos Byte) (Sector, error) {
	if pos >= inode.disk.Length {
		panic(fmt.Sprintf(
			"inode `%d`: position `%d` past length `%d`",
			inode.sector,
			pos,
			inode.disk.Length,
		))
	}

	loc, err := locate(int(pos / SectorSize))
	if err != nil {
		return SectorNil, err
	}
	if loc.level == levelDirect {
		return inode.disk.Index[loc.direct], nil
	}

	var block IndexBlock
	if err := inode.table.readIndex(
		inode.disk.Index[IndirectSlot],
		&block,
	); err != nil {
		return SectorNil, err
	}
	if err := inode.table.readIndex(block[loc.first], &block); err != nil {
		return SectorNil, err
	}
	return block[loc.second], nil
}

// Close drops one opener. When the last opener leaves, the inode is
// deregistered and its cached data sectors are invalidated; if it was
// removed, its cached data is discarded without write-back and its inode
// sector, data sectors and index blocks are released. A failed Close leaves
// the caller's reference in place.
func (inode *Inode) Close() error {
	t := inode.table
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if inode.openCount < 1 {
		panic(fmt.Sprintf("closing inode `%d` with no openers", inode.sector))
	}
	if inode.openCount > 1 {
		inode.openCount--
		return nil
	}

	inode.mutex.Lock()
	defer inode.mutex.Unlock()

	// The last reference stays registered until its sectors are settled so
	// a failed close can be retried.
	data, index, err := t.sectors(&inode.disk)
	if err != nil {
		return fmt.Errorf("closing inode `%d`: %w", inode.sector, err)
	}
	if inode.removed {
		t.discard(data)
		t.release([]Sector{inode.sector})
		t.release(data)
		t.release(index)
	} else if err := t.invalidate(data); err != nil {
		return fmt.Errorf("closing inode `%d`: %w", inode.sector, err)
	}
	inode.openCount = 0
	delete(t.open, inode.sector)
	return nil
}
