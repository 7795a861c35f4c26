package encode

import (
	"fmt"

	. "github.com/weberc2/sectorfs/pkg/types"
)

func EncodeInode(inode *DiskInode, b *[SectorSize]byte) {
	*b = [SectorSize]byte{}
	p := b[:]

	putU32(p, inodeLengthStart, uint32(int32(inode.Length)))
	putU32(p, inodeMagicStart, inode.Magic)
	if inode.IsDir {
		putU8(p, inodeIsDirStart, 1)
	}
	for i, s := range inode.Index {
		putSector(p, inodeIndexStart+Byte(i)*SectorPointerSize, s)
	}
}

// DecodeInode fails with `BadMagicErr` if the sector does not hold an inode.
func DecodeInode(inode *DiskInode, b *[SectorSize]byte) error {
	p := b[:]

	// validate before touching `inode`
	magic := getU32(p, inodeMagicStart)
	if magic != InodeMagic {
		return fmt.Errorf(
			"decoding inode: wanted magic `%#x`; found `%#x`: %w",
			InodeMagic,
			magic,
			BadMagicErr,
		)
	}

	inode.Length = Byte(int32(getU32(p, inodeLengthStart)))
	inode.Magic = magic
	inode.IsDir = getU8(p, inodeIsDirStart) != 0
	for i := range inode.Index {
		inode.Index[i] = getSector(p, inodeIndexStart+Byte(i)*SectorPointerSize)
	}
	return nil
}

const (
	inodeLengthStart = 0
	inodeLengthSize  = 4
	inodeLengthEnd   = inodeLengthStart + inodeLengthSize

	inodeMagicStart = inodeLengthEnd
	inodeMagicSize  = 4
	inodeMagicEnd   = inodeMagicStart + inodeMagicSize

	inodeIsDirStart = inodeMagicEnd
	inodeIsDirSize  = 2 // one flag byte plus one byte of padding
	inodeIsDirEnd   = inodeIsDirStart + inodeIsDirSize

	inodeIndexStart = inodeIsDirEnd
	inodeIndexSize  = Byte(IndexCount) * SectorPointerSize
	inodeIndexEnd   = inodeIndexStart + inodeIndexSize
)

// the inode must fill its sector exactly
var _ [SectorSize - inodeIndexEnd]struct{}
var _ [inodeIndexEnd - SectorSize]struct{}
