package device

import (
	"fmt"
	"sync"

	. "github.com/weberc2/sectorfs/pkg/types"
)

// Memory is a device backed by a byte slice.
type Memory struct {
	mutex sync.RWMutex
	data  []byte
}

func NewMemory(sectors int) *Memory {
	return &Memory{data: make([]byte, sectors*int(SectorSize))}
}

// NewMemoryFrom wraps existing image bytes; any trailing partial sector is
// ignored.
func NewMemoryFrom(data []byte) *Memory {
	return &Memory{data: data[:len(data)/int(SectorSize)*int(SectorSize)]}
}

func (m *Memory) SectorCount() int { return len(m.data) / int(SectorSize) }

func (m *Memory) ReadSector(sector Sector, buf *[SectorSize]byte) error {
	if err := checkRange(m, sector); err != nil {
		return fmt.Errorf("reading sector: %w", err)
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	start := Byte(sector) * SectorSize
	copy(buf[:], m.data[start:start+SectorSize])
	return nil
}

func (m *Memory) WriteSector(sector Sector, buf *[SectorSize]byte) error {
	if err := checkRange(m, sector); err != nil {
		return fmt.Errorf("writing sector: %w", err)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	start := Byte(sector) * SectorSize
	copy(m.data[start:start+SectorSize], buf[:])
	return nil
}

// Bytes returns the raw image. Callers must not use it concurrently with
// writes.
func (m *Memory) Bytes() []byte { return m.data }
