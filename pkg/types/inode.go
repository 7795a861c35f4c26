package types

const (
	// DirectCount is the number of data sectors addressed straight from the
	// inode.
	DirectCount = 250

	// IndirectSlot is the index entry holding the first-level indirect
	// block.
	IndirectSlot = DirectCount

	// IndexCount is the number of index entries in an on-disk inode.
	IndexCount = DirectCount + 1

	// PointersPerBlock is the number of sector pointers in one index block.
	PointersPerBlock = int(SectorSize / SectorPointerSize)

	// MaxFileSectors is the number of data sectors a single inode can map.
	MaxFileSectors = DirectCount + PointersPerBlock*PointersPerBlock

	// MaxFileSize is the largest representable file length.
	MaxFileSize = Byte(MaxFileSectors) * SectorSize

	InodeMagic uint32 = 0x494e4f44
)

// DiskInode is the one-sector inode structure as stored on the device.
type DiskInode struct {
	Length Byte
	Magic  uint32
	IsDir  bool
	Index  [IndexCount]Sector
}

// IndexBlock is the content of a first- or second-level indirect block.
type IndexBlock [PointersPerBlock]Sector
