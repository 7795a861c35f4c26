package volume

import (
	"fmt"

	"github.com/weberc2/sectorfs/pkg/alloc"
	"github.com/weberc2/sectorfs/pkg/inode"
	. "github.com/weberc2/sectorfs/pkg/types"
)

// InodeBitmapStore persists a free map as the content of an inode.
type InodeBitmapStore struct {
	Inode *inode.Inode
}

var _ alloc.BitmapStore = (*InodeBitmapStore)(nil)

func (store *InodeBitmapStore) Put(bitmap *alloc.Bitmap) error {
	data := bitmap.Bytes()
	n, err := store.Inode.WriteAt(0, data)
	if err != nil {
		return fmt.Errorf(
			"storing bitmap in inode `%d`: %w",
			store.Inode.Inumber(),
			err,
		)
	}
	if n != Byte(len(data)) {
		return fmt.Errorf(
			"storing bitmap in inode `%d`: wanted `%d` bytes written; found `%d`",
			store.Inode.Inumber(),
			len(data),
			n,
		)
	}
	return nil
}
