package testsupport

import (
	"fmt"
	"sync"

	"github.com/weberc2/sectorfs/pkg/device"
	. "github.com/weberc2/sectorfs/pkg/types"
)

// RecordingDevice is an in-memory device that counts accesses per sector
// and can be told to fail them.
type RecordingDevice struct {
	*device.Memory

	mutex      sync.Mutex
	reads      map[Sector]int
	writes     map[Sector]int
	failReads  map[Sector]error
	failWrites map[Sector]error
}

func NewRecordingDevice(sectors int) *RecordingDevice {
	return &RecordingDevice{
		Memory:     device.NewMemory(sectors),
		reads:      map[Sector]int{},
		writes:     map[Sector]int{},
		failReads:  map[Sector]error{},
		failWrites: map[Sector]error{},
	}
}

func (d *RecordingDevice) ReadSector(s Sector, buf *[SectorSize]byte) error {
	d.mutex.Lock()
	err := d.failReads[s]
	d.reads[s]++
	d.mutex.Unlock()
	if err != nil {
		return fmt.Errorf("reading sector `%d`: %w", s, err)
	}
	return d.Memory.ReadSector(s, buf)
}

func (d *RecordingDevice) WriteSector(s Sector, buf *[SectorSize]byte) error {
	d.mutex.Lock()
	err := d.failWrites[s]
	d.writes[s]++
	d.mutex.Unlock()
	if err != nil {
		return fmt.Errorf("writing sector `%d`: %w", s, err)
	}
	return d.Memory.WriteSector(s, buf)
}

func (d *RecordingDevice) Reads(s Sector) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.reads[s]
}

func (d *RecordingDevice) Writes(s Sector) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.writes[s]
}

func (d *RecordingDevice) TotalReads() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	total := 0
	for _, n := range d.reads {
		total += n
	}
	return total
}

func (d *RecordingDevice) TotalWrites() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	total := 0
	for _, n := range d.writes {
		total += n
	}
	return total
}

// FailReads makes every read of `s` return `err`; a nil `err` clears it.
func (d *RecordingDevice) FailReads(s Sector, err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err == nil {
		delete(d.failReads, s)
		return
	}
	d.failReads[s] = err
}

// FailWrites makes every write of `s` return `err`; a nil `err` clears it.
func (d *RecordingDevice) FailWrites(s Sector, err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err == nil {
		delete(d.failWrites, s)
		return
	}
	d.failWrites[s] = err
}

// ResetCounts zeroes the access counters.
func (d *RecordingDevice) ResetCounts() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.reads = map[Sector]int{}
	d.writes = map[Sector]int{}
}

// Peek reads sector `s` straight from the backing memory without counting.
func (d *RecordingDevice) Peek(s Sector) [SectorSize]byte {
	var buf [SectorSize]byte
	if err := d.Memory.ReadSector(s, &buf); err != nil {
		panic(err)
	}
	return buf
}
