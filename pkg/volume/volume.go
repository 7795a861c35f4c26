// Package volume wires a device, the free map, the sector cache and the inode
// table into a mountable volume.
//
// The free map is itself stored in the inode at `SectorFreeMap`, sized at
// format time to hold one bit per sector so that persisting it never grows
// the file. `SectorRootDir` is reserved for the root directory.
package volume

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/weberc2/sectorfs/pkg/alloc"
	"github.com/weberc2/sectorfs/pkg/bcache"
	"github.com/weberc2/sectorfs/pkg/device"
	"github.com/weberc2/sectorfs/pkg/inode"
	. "github.com/weberc2/sectorfs/pkg/types"
)

const FreeMapSizeMismatchErr ConstError = "free map size does not match device"

type Options struct {
	CacheSize int
	Policy    bcache.Policy
	Logger    *slog.Logger
}

func (opts *Options) cacheSize() int {
	if opts.CacheSize < 1 {
		return bcache.DefaultSize
	}
	return opts.CacheSize
}

func (opts *Options) logger() *slog.Logger {
	if opts.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return opts.Logger
}

type Volume struct {
	device       device.Device
	freeMap      *alloc.Flushable
	table        *inode.Table
	freeMapInode *inode.Inode
	cacheSize    int
	policy       bcache.Policy
	logger       *slog.Logger
}

// Info summarizes the state of a mounted volume.
type Info struct {
	Sectors    int
	Free       int
	CacheSize  int
	Policy     bcache.Policy
	OpenInodes int
	Cache      bcache.Stats
}

func newVolume(dev device.Device, bitmap *alloc.Bitmap, opts *Options) *Volume {
	freeMap := alloc.NewFlushable(bitmap, nil)
	cacheSize := opts.cacheSize()
	return &Volume{
		device:  dev,
		freeMap: freeMap,
		table: inode.NewTable(
			dev,
			freeMap,
			bcache.New(dev, cacheSize, opts.Policy),
		),
		cacheSize: cacheSize,
		policy:    opts.Policy,
		logger:    opts.logger(),
	}
}

// Format initializes an empty volume on `dev` and returns it mounted. Any
// existing content is ignored.
func Format(dev device.Device, opts Options) (*Volume, error) {
	sectors := dev.SectorCount()
	bitmap := alloc.New(sectors)
	bitmap.Reserve(SectorFreeMap)
	bitmap.Reserve(SectorRootDir)

	v := newVolume(dev, bitmap, &opts)
	if err := v.table.Create(
		SectorFreeMap,
		Byte(len(bitmap.Bytes())),
	); err != nil {
		return nil, fmt.Errorf("formatting volume: creating free map: %w", err)
	}
	if err := v.table.Create(SectorRootDir, 0); err != nil {
		return nil, fmt.Errorf("formatting volume: creating root dir: %w", err)
	}
	if err := v.markRootDir(); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}
	if err := v.attachFreeMap(); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}
	if err := v.freeMap.Flush(); err != nil {
		return nil, fmt.Errorf("formatting volume: flushing free map: %w", err)
	}

	v.logger.Info(
		"formatted volume",
		"sectors", sectors,
		"free", v.freeMap.Free(),
		"cacheSize", v.cacheSize,
		"eviction", v.policy.String(),
	)
	return v, nil
}

// Mount loads the free map from a formatted device.
func Mount(dev device.Device, opts Options) (*Volume, error) {
	bitmap := alloc.New(dev.SectorCount())
	v := newVolume(dev, bitmap, &opts)
	if err := v.attachFreeMap(); err != nil {
		return nil, fmt.Errorf("mounting volume: %w", err)
	}

	length := v.freeMapInode.Length()
	if length != Byte(len(bitmap.Bytes())) {
		v.freeMapInode.Close()
		return nil, fmt.Errorf(
			"mounting volume: free map holds `%d` bytes for `%d` sectors: %w",
			length,
			dev.SectorCount(),
			FreeMapSizeMismatchErr,
		)
	}
	data := make([]byte, length)
	if _, err := v.freeMapInode.ReadAt(0, data); err != nil {
		v.freeMapInode.Close()
		return nil, fmt.Errorf("mounting volume: reading free map: %w", err)
	}
	// the table only reads until the volume is returned, so loading the
	// bitmap underneath the flushable wrapper is safe here.
	if err := bitmap.Load(data); err != nil {
		v.freeMapInode.Close()
		return nil, fmt.Errorf("mounting volume: %w", err)
	}

	v.logger.Info(
		"mounted volume",
		"sectors", dev.SectorCount(),
		"free", v.freeMap.Free(),
		"cacheSize", v.cacheSize,
		"eviction", v.policy.String(),
	)
	return v, nil
}

func (v *Volume) attachFreeMap() error {
	freeMapInode, err := v.table.Open(SectorFreeMap)
	if err != nil {
		return fmt.Errorf("opening free map: %w", err)
	}
	v.freeMapInode = freeMapInode
	v.freeMap.SetStore(&InodeBitmapStore{Inode: freeMapInode})
	return nil
}

func (v *Volume) markRootDir() error {
	root, err := v.table.Open(SectorRootDir)
	if err != nil {
		return fmt.Errorf("opening root dir: %w", err)
	}
	if err := root.SetDir(true); err != nil {
		root.Close()
		return fmt.Errorf("marking root dir: %w", err)
	}
	return root.Close()
}

// Create allocates an inode sector and creates a file of `length` bytes in
// it, returning the inode's sector.
func (v *Volume) Create(length Byte) (Sector, error) {
	sector, ok := v.freeMap.Allocate(1)
	if !ok {
		return SectorNil, fmt.Errorf(
			"creating inode of length `%d`: %w",
			length,
			OutOfSectorsErr,
		)
	}
	if err := v.table.Create(sector, length); err != nil {
		v.freeMap.Release(sector, 1)
		return SectorNil, err
	}
	v.logger.Debug("created inode", "inode", sector, "length", length)
	return sector, nil
}

// Open opens the inode at `sector`, which must be allocated in the free
// map. A freed inode sector keeps its old content on the device, so the
// free map rather than the magic decides whether it is live. Opening one of
// the volume's own reserved inodes is allowed; callers that must not touch
// them check `Reserved` first.
func (v *Volume) Open(sector Sector) (*inode.Inode, error) {
	if int(sector) >= v.device.SectorCount() {
		return nil, fmt.Errorf(
			"opening inode `%d`: %w",
			sector,
			SectorOutOfRangeErr,
		)
	}
	if !v.freeMap.InUse(sector) {
		return nil, fmt.Errorf("opening inode `%d`: %w", sector, FreeSectorErr)
	}
	return v.table.Open(sector)
}

// Remove marks the inode at `sector` removed and drops this call's handle on
// it, reclaiming its sectors if no one else has it open.
func (v *Volume) Remove(sector Sector) error {
	if Reserved(sector) {
		return fmt.Errorf("removing inode `%d`: %w", sector, ReservedInodeErr)
	}
	file, err := v.Open(sector)
	if err != nil {
		return fmt.Errorf("removing inode `%d`: %w", sector, err)
	}
	file.Remove()
	if err := file.Close(); err != nil {
		return fmt.Errorf("removing inode `%d`: %w", sector, err)
	}
	v.logger.Debug("removed inode", "inode", sector)
	return nil
}

const (
	ReservedInodeErr ConstError = "inode is reserved by the volume"
	FreeSectorErr    ConstError = "sector is not allocated"
)

// Reserved reports whether `sector` holds one of the volume's own inodes.
func Reserved(sector Sector) bool {
	return sector == SectorFreeMap || sector == SectorRootDir
}

func (v *Volume) Info() Info {
	return Info{
		Sectors:    v.device.SectorCount(),
		Free:       v.freeMap.Free(),
		CacheSize:  v.cacheSize,
		Policy:     v.policy,
		OpenInodes: v.table.OpenInodes(),
		Cache:      v.table.CacheStats(),
	}
}

// Flush persists the free map and writes every dirty cached sector back to
// the device.
func (v *Volume) Flush() error {
	if err := v.freeMap.Flush(); err != nil {
		return fmt.Errorf("flushing free map: %w", err)
	}
	if err := v.table.Flush(); err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}
	return nil
}

// Close flushes the volume and closes the free-map inode. Inodes opened by
// callers should be closed first.
func (v *Volume) Close() error {
	if err := v.Flush(); err != nil {
		return fmt.Errorf("closing volume: %w", err)
	}
	if err := v.freeMapInode.Close(); err != nil {
		return fmt.Errorf("closing volume: closing free map: %w", err)
	}
	stats := v.table.CacheStats()
	v.logger.Info(
		"closed volume",
		"free", v.freeMap.Free(),
		"openInodes", v.table.OpenInodes(),
		"hits", stats.Hits,
		"misses", stats.Misses,
		"evictions", stats.Evictions,
		"writeBacks", stats.WriteBacks,
	)
	return nil
}
