package alloc

import (
	"sync"

	. "github.com/weberc2/sectorfs/pkg/types"
)

type BitmapStore interface {
	Put(*Bitmap) error
}

// Flushable is a goroutine-safe bitmap that remembers whether it has changed
// since it was last persisted.
type Flushable struct {
	bitmap *Bitmap
	store  BitmapStore
	mutex  sync.Mutex
	dirty  bool
}

func NewFlushable(bitmap *Bitmap, store BitmapStore) *Flushable {
	return &Flushable{bitmap: bitmap, store: store}
}

// SetStore attaches the persistence backend. The free map is stored inside
// an inode that can only be opened after the bitmap exists.
func (f *Flushable) SetStore(store BitmapStore) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.store = store
}

func (f *Flushable) Allocate(count int) (Sector, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	sector, ok := f.bitmap.Allocate(count)
	if ok {
		f.dirty = true
	}
	return sector, ok
}

func (f *Flushable) Release(sector Sector, count int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.bitmap.Release(sector, count)
	f.dirty = true
}

func (f *Flushable) Reserve(sector Sector) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.bitmap.Reserve(sector)
	f.dirty = true
}

func (f *Flushable) InUse(sector Sector) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.bitmap.InUse(sector)
}

func (f *Flushable) Free() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.bitmap.Free()
}

// Flush persists the bitmap if it changed since the last flush. The store
// receives a snapshot, so allocations may proceed while it writes.
func (f *Flushable) Flush() error {
	f.mutex.Lock()
	if !f.dirty || f.store == nil {
		f.mutex.Unlock()
		return nil
	}
	snapshot := &Bitmap{
		bytes: append([]byte(nil), f.bitmap.bytes...),
		size:  f.bitmap.size,
	}
	f.dirty = false
	store := f.store
	f.mutex.Unlock()

	if err := store.Put(snapshot); err != nil {
		f.mutex.Lock()
		f.dirty = true
		f.mutex.Unlock()
		return err
	}
	return nil
}
