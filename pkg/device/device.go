package device

import (
	"fmt"

	. "github.com/weberc2/sectorfs/pkg/types"
)

// Device is a synchronous, sector-addressed block device.
type Device interface {
	ReadSector(sector Sector, buf *[SectorSize]byte) error
	WriteSector(sector Sector, buf *[SectorSize]byte) error
	SectorCount() int
}

var (
	_ Device = (*Memory)(nil)
	_ Device = (*File)(nil)
)

// Zeros is a sector-sized buffer of zeroes. It must never be written to.
var Zeros [SectorSize]byte

func checkRange(dev Device, sector Sector) error {
	if int(sector) >= dev.SectorCount() {
		return fmt.Errorf(
			"sector `%d` of `%d`: %w",
			sector,
			dev.SectorCount(),
			SectorOutOfRangeErr,
		)
	}
	return nil
}
