package device

import (
	"fmt"
	"os"
	"sync"

	. "github.com/weberc2/sectorfs/pkg/types"
)

// File is a device backed by a disk image on the host file system.
type File struct {
	mutex   sync.RWMutex
	file    *os.File
	sectors int
}

// Create creates (or truncates) the image at `path` and sizes it to hold
// `sectors` sectors.
func Create(path string, sectors int) (*File, error) {
	if sectors <= 0 || sectors > MaxSectors {
		return nil, fmt.Errorf(
			"creating image `%s`: sector count `%d` not in [1, %d]",
			path,
			sectors,
			MaxSectors,
		)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating image `%s`: %w", path, err)
	}
	if err := f.Truncate(int64(sectors) * int64(SectorSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("creating image `%s`: truncating: %w", path, err)
	}
	return &File{file: f, sectors: sectors}, nil
}

// Open opens an existing image. The sector count is derived from the file
// size.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening image `%s`: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening image `%s`: stat: %w", path, err)
	}
	sectors := stat.Size() / int64(SectorSize)
	if sectors > MaxSectors {
		sectors = MaxSectors
	}
	return &File{file: f, sectors: int(sectors)}, nil
}

func (f *File) SectorCount() int { return f.sectors }

func (f *File) ReadSector(sector Sector, buf *[SectorSize]byte) error {
	if err := checkRange(f, sector); err != nil {
		return fmt.Errorf("reading sector: %w", err)
	}
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	if f.file == nil {
		return fmt.Errorf("reading sector `%d`: image is closed", sector)
	}
	if _, err := f.file.ReadAt(
		buf[:],
		int64(sector)*int64(SectorSize),
	); err != nil {
		return fmt.Errorf("reading sector `%d`: %w", sector, err)
	}
	return nil
}

func (f *File) WriteSector(sector Sector, buf *[SectorSize]byte) error {
	if err := checkRange(f, sector); err != nil {
		return fmt.Errorf("writing sector: %w", err)
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.file == nil {
		return fmt.Errorf("writing sector `%d`: image is closed", sector)
	}
	if _, err := f.file.WriteAt(
		buf[:],
		int64(sector)*int64(SectorSize),
	); err != nil {
		return fmt.Errorf("writing sector `%d`: %w", sector, err)
	}
	return nil
}

func (f *File) Sync() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.file == nil {
		return nil
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("syncing image: %w", err)
	}
	return nil
}

// Close syncs and closes the image. Closing twice is a no-op.
func (f *File) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.file == nil {
		return nil
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("closing image: syncing: %w", err)
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("closing image: %w", err)
	}
	f.file = nil
	return nil
}
