package encode

import . "github.com/weberc2/sectorfs/pkg/types"

func EncodeIndex(block *IndexBlock, b *[SectorSize]byte) {
	for i, s := range block {
		putSector(b[:], Byte(i)*SectorPointerSize, s)
	}
}

func DecodeIndex(block *IndexBlock, b *[SectorSize]byte) {
	for i := range block {
		block[i] = getSector(b[:], Byte(i)*SectorPointerSize)
	}
}
