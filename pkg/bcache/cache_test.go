package bcache

import (
	"bytes"
	"errors"
	"testing"

	"github.com/weberc2/sectorfs/pkg/testsupport"
	. "github.com/weberc2/sectorfs/pkg/types"
)

func pattern(b byte) *[SectorSize]byte {
	var buf [SectorSize]byte
	for i := range buf {
		buf[i] = b + byte(i)
	}
	return &buf
}

func TestCache_ReadAfterWrite(t *testing.T) {
	dev := testsupport.NewRecordingDevice(16)
	c := New(dev, 4, EvictLeastRecent)

	input := []byte("hello, sector")
	if err := c.Write(5, 37, input); err != nil {
		t.Fatalf("Write(): unexpected err: %v", err)
	}

	output := make([]byte, len(input))
	if err := c.Read(5, 37, output); err != nil {
		t.Fatalf("Read(): unexpected err: %v", err)
	}
	if !bytes.Equal(input, output) {
		t.Fatalf("Read(): wanted `%s`; found `%s`", input, output)
	}

	if n := dev.Writes(5); n != 0 {
		t.Fatalf("write-back cache: wanted `0` device writes; found `%d`", n)
	}
	if n := dev.Reads(5); n != 1 {
		t.Fatalf("wanted exactly `1` device read of sector 5; found `%d`", n)
	}

	stats := c.Stats()
	if stats.Misses != 1 || stats.Hits != 1 {
		t.Fatalf("Stats(): wanted `1` miss and `1` hit; found `%+v`", stats)
	}
}

func TestCache_PartialWritePreservesRestOfSector(t *testing.T) {
	dev := testsupport.NewRecordingDevice(16)
	if err := dev.WriteSector(7, pattern(1)); err != nil {
		t.Fatalf("seeding device: %v", err)
	}
	c := New(dev, 4, EvictLeastRecent)

	if err := c.Write(7, 100, []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("Write(): unexpected err: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush(): unexpected err: %v", err)
	}

	wanted := *pattern(1)
	copy(wanted[100:104], []byte{0, 0, 0, 0})
	if found := dev.Peek(7); found != wanted {
		t.Fatalf(
			"device sector 7: wanted untouched bytes preserved; found "+
				"`%#x` around the write",
			found[96:108],
		)
	}
}

func TestCache_Eviction(t *testing.T) {
	type testCase struct {
		name          string
		policy        Policy
		accesses      []Sector
		wantedVictim  Sector
		wantedSurvive Sector
	}

	for _, tc := range []testCase{{
		name:          "lru-evicts-oldest",
		policy:        EvictLeastRecent,
		accesses:      []Sector{1, 2, 1},
		wantedVictim:  2,
		wantedSurvive: 1,
	}, {
		name:          "mru-evicts-newest",
		policy:        EvictMostRecent,
		accesses:      []Sector{1, 2, 1},
		wantedVictim:  1,
		wantedSurvive: 2,
	}} {
		t.Run(tc.name, func(t *testing.T) {
			dev := testsupport.NewRecordingDevice(16)
			c := New(dev, 2, tc.policy)
			var buf [1]byte
			for _, s := range tc.accesses {
				if err := c.Read(s, 0, buf[:]); err != nil {
					t.Fatalf("Read(%d): unexpected err: %v", s, err)
				}
			}

			valid := func() int {
				n := 0
				for i := 0; i < c.Size(); i++ {
					if c.Slot(i).Valid {
						n++
					}
				}
				return n
			}
			if valid() != 2 {
				t.Fatalf("before eviction: wanted `2` valid slots; found `%d`", valid())
			}

			if err := c.Read(3, 0, buf[:]); err != nil {
				t.Fatalf("Read(3): unexpected err: %v", err)
			}

			if _, ok := c.Find(tc.wantedVictim); ok {
				t.Fatalf("Find(%d): wanted victim evicted", tc.wantedVictim)
			}
			if _, ok := c.Find(tc.wantedSurvive); !ok {
				t.Fatalf("Find(%d): wanted sector to survive", tc.wantedSurvive)
			}
			if _, ok := c.Find(3); !ok {
				t.Fatal("Find(3): wanted newly loaded sector to be cached")
			}
			if valid() != 2 {
				t.Fatalf("after eviction: wanted `2` valid slots; found `%d`", valid())
			}
			if n := c.Stats().Evictions; n != 1 {
				t.Fatalf("Stats().Evictions: wanted `1`; found `%d`", n)
			}
		})
	}
}

func TestCache_DirtyEvictionWritesBack(t *testing.T) {
	dev := testsupport.NewRecordingDevice(16)
	c := New(dev, 1, EvictLeastRecent)

	if err := c.Write(4, 0, []byte("dirty")); err != nil {
		t.Fatalf("Write(): unexpected err: %v", err)
	}

	var buf [1]byte
	if err := c.Read(9, 0, buf[:]); err != nil {
		t.Fatalf("Read(): unexpected err: %v", err)
	}

	if n := dev.Writes(4); n != 1 {
		t.Fatalf("evicting dirty slot: wanted `1` write of sector 4; found `%d`", n)
	}
	if found := dev.Peek(4); !bytes.Equal(found[:5], []byte("dirty")) {
		t.Fatalf("evicting dirty slot: wanted `dirty` on device; found `%s`", found[:5])
	}

	// the clean slot for sector 9 is evicted without a device write
	if err := c.Read(10, 0, buf[:]); err != nil {
		t.Fatalf("Read(): unexpected err: %v", err)
	}
	if n := dev.Writes(9); n != 0 {
		t.Fatalf("evicting clean slot: wanted `0` writes; found `%d`", n)
	}
	if n := c.Stats().WriteBacks; n != 1 {
		t.Fatalf("Stats().WriteBacks: wanted `1`; found `%d`", n)
	}
}

func TestCache_Invalidate(t *testing.T) {
	dev := testsupport.NewRecordingDevice(16)
	c := New(dev, 4, EvictLeastRecent)

	if err := c.Write(2, 10, []byte{0xff}); err != nil {
		t.Fatalf("Write(): unexpected err: %v", err)
	}
	if err := c.Invalidate(2); err != nil {
		t.Fatalf("Invalidate(): unexpected err: %v", err)
	}
	if _, ok := c.Find(2); ok {
		t.Fatal("Find(2): wanted absent after Invalidate()")
	}
	if found := dev.Peek(2); found[10] != 0xff {
		t.Fatalf("Invalidate(): wanted dirty byte written back; found `%#x`", found[10])
	}

	if err := c.Invalidate(3); err != nil {
		t.Fatalf("Invalidate() of uncached sector: unexpected err: %v", err)
	}
}

func TestCache_Discard(t *testing.T) {
	dev := testsupport.NewRecordingDevice(16)
	c := New(dev, 4, EvictLeastRecent)

	if err := c.Write(2, 10, []byte{0xff}); err != nil {
		t.Fatalf("Write(): unexpected err: %v", err)
	}
	writes := dev.Writes(2)
	c.Discard(2)
	if _, ok := c.Find(2); ok {
		t.Fatal("Find(2): wanted absent after Discard()")
	}
	if found := dev.Writes(2); found != writes {
		t.Fatalf("Discard(): wanted `%d` writes; found `%d`", writes, found)
	}
	if found := dev.Peek(2); found[10] != 0 {
		t.Fatalf("Discard(): wanted dirty byte dropped; found `%#x`", found[10])
	}
	if found := c.Stats().WriteBacks; found != 0 {
		t.Fatalf("Stats().WriteBacks: wanted `0`; found `%d`", found)
	}

	c.Discard(3)
}

func TestCache_VictimTiesGoToLowestIndex(t *testing.T) {
	for _, policy := range []Policy{EvictLeastRecent, EvictMostRecent} {
		c := New(testsupport.NewRecordingDevice(4), 8, policy)
		if v := c.Victim(); v != 0 {
			t.Fatalf("%s: Victim(): wanted `0`; found `%d`", policy, v)
		}
	}
}

func TestCache_FailedWriteBackKeepsSlotDirty(t *testing.T) {
	const diskErr ConstError = "disk on fire"
	dev := testsupport.NewRecordingDevice(16)
	c := New(dev, 1, EvictLeastRecent)

	if err := c.Write(4, 0, []byte("keep")); err != nil {
		t.Fatalf("Write(): unexpected err: %v", err)
	}
	dev.FailWrites(4, diskErr)

	var buf [1]byte
	if err := c.Read(5, 0, buf[:]); !errors.Is(err, diskErr) {
		t.Fatalf("Read(): wanted `%v`; found `%v`", diskErr, err)
	}

	i, ok := c.Find(4)
	if !ok {
		t.Fatal("Find(4): wanted dirty sector to remain cached")
	}
	if !c.Slot(i).Dirty {
		t.Fatal("Slot(): wanted slot to remain dirty")
	}

	dev.FailWrites(4, nil)
	if err := c.Read(5, 0, buf[:]); err != nil {
		t.Fatalf("Read(): unexpected err after recovery: %v", err)
	}
	if found := dev.Peek(4); !bytes.Equal(found[:4], []byte("keep")) {
		t.Fatalf("wanted `keep` written back; found `%s`", found[:4])
	}
}

func TestCache_FailedLoadLeavesSlotInvalid(t *testing.T) {
	const diskErr ConstError = "bad sector"
	dev := testsupport.NewRecordingDevice(16)
	dev.FailReads(6, diskErr)
	c := New(dev, 2, EvictLeastRecent)

	var buf [1]byte
	if err := c.Read(6, 0, buf[:]); !errors.Is(err, diskErr) {
		t.Fatalf("Read(): wanted `%v`; found `%v`", diskErr, err)
	}
	if _, ok := c.Find(6); ok {
		t.Fatal("Find(6): wanted absent after failed load")
	}
	for i := 0; i < c.Size(); i++ {
		if c.Slot(i).Valid {
			t.Fatalf("Slot(%d): wanted invalid", i)
		}
	}
}

func TestCache_RecencyIsMonotonic(t *testing.T) {
	c := New(testsupport.NewRecordingDevice(16), 4, EvictLeastRecent)
	var buf [1]byte
	var last uint64
	for _, s := range []Sector{1, 2, 1, 3, 1} {
		if err := c.Read(s, 0, buf[:]); err != nil {
			t.Fatalf("Read(%d): unexpected err: %v", s, err)
		}
		i, _ := c.Find(s)
		if r := c.Slot(i).Recency; r <= last {
			t.Fatalf("Recency: wanted > `%d`; found `%d`", last, r)
		} else {
			last = r
		}
	}
}

func TestCache_SpanPastSectorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Read(): wanted panic for span past end of sector")
		}
	}()
	c := New(testsupport.NewRecordingDevice(4), 1, EvictLeastRecent)
	c.Read(0, SectorSize-1, make([]byte, 2))
}

func TestParsePolicy(t *testing.T) {
	for _, tc := range []struct {
		input  string
		wanted Policy
		err    bool
	}{
		{input: "", wanted: EvictLeastRecent},
		{input: "lru", wanted: EvictLeastRecent},
		{input: "mru", wanted: EvictMostRecent},
		{input: "fifo", err: true},
	} {
		found, err := ParsePolicy(tc.input)
		if tc.err {
			if err == nil {
				t.Fatalf("ParsePolicy(%q): wanted err; found `nil`", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParsePolicy(%q): unexpected err: %v", tc.input, err)
		}
		if found != tc.wanted {
			t.Fatalf("ParsePolicy(%q): wanted `%s`; found `%s`", tc.input, tc.wanted, found)
		}
	}
}
