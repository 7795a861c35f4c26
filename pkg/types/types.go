package types

// Sector addresses one fixed-size unit of the block device. Sector numbers
// are stored on disk as 16-bit values, so a volume addresses at most
// `MaxSectors` sectors.
type Sector uint16

// Byte is a count of bytes or a byte offset within a file.
type Byte int64

const (
	SectorSize        Byte = 512
	SectorPointerSize Byte = 2

	// MaxSectors is the largest number of sectors a volume may have.
	MaxSectors = 1 << 16

	// SectorNil marks an unused pointer inside an index block. Sector 0 is
	// always owned by the free map, so it never names a data sector.
	SectorNil Sector = 0

	// SectorFreeMap holds the inode for the persisted free map.
	SectorFreeMap Sector = 0

	// SectorRootDir is reserved for the root directory inode.
	SectorRootDir Sector = 1
)

// Sectors returns the number of sectors needed to hold `size` bytes.
func (size Byte) Sectors() int {
	if size <= 0 {
		return 0
	}
	return int((size + SectorSize - 1) / SectorSize)
}

type ConstError string

func (err ConstError) Error() string { return string(err) }

const (
	OutOfSectorsErr     ConstError = "out of free sectors"
	BadMagicErr         ConstError = "bad inode magic"
	FileTooLargeErr     ConstError = "file too large"
	SectorOutOfRangeErr ConstError = "sector out of range"
)
