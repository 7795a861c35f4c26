package inode

import (
	"fmt"

	. "github.com/weberc2/sectorfs/pkg/types"
)

type level int

const (
	levelDirect level = iota
	levelIndirect
	levelOutOfRange
)

func (level level) String() string {
	switch level {
	case levelDirect:
		return "direct"
	case levelIndirect:
		return "doubly indirect"
	case levelOutOfRange:
		return "out of range"
	default:
		panic(fmt.Sprintf("invalid level: %d", level))
	}
}

// location is where the pointer for one logical sector of a file lives:
// either `Index[direct]` of the inode, or entry `second` of the second-level
// block named by entry `first` of the first-level block.
type location struct {
	level  level
	direct int
	first  int
	second int
}

// locate maps the `index`th sector of a file to the place its pointer is
// stored.
func locate(index int) (location, error) {
	if index < 0 {
		panic(fmt.Sprintf("negative sector index: %d", index))
	}
	if index < DirectCount {
		return location{level: levelDirect, direct: index}, nil
	}
	if index < MaxFileSectors {
		base := index - DirectCount
		return location{
			level:  levelIndirect,
			first:  base / PointersPerBlock,
			second: base % PointersPerBlock,
		}, nil
	}
	return location{level: levelOutOfRange}, fmt.Errorf(
		"locating sector index `%d`: %w",
		index,
		FileTooLargeErr,
	)
}
