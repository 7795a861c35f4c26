package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/weberc2/sectorfs/pkg/device"
	"github.com/weberc2/sectorfs/pkg/objectstore"
	"github.com/weberc2/sectorfs/pkg/testsupport"
	. "github.com/weberc2/sectorfs/pkg/types"
	"github.com/weberc2/sectorfs/pkg/volume"
	"golang.org/x/crypto/blake2b"
)

func newVolume(t *testing.T) *volume.Volume {
	t.Helper()
	v, err := volume.Format(device.NewMemory(2048), volume.Options{CacheSize: 16})
	if err != nil {
		t.Fatalf("Format(): unexpected err: %v", err)
	}
	return v
}

func newFile(t *testing.T, v *volume.Volume, data []byte) Sector {
	t.Helper()
	sector, err := v.Create(0)
	if err != nil {
		t.Fatalf("Create(): unexpected err: %v", err)
	}
	if _, err := writeRange(v, sector, 0, data); err != nil {
		t.Fatalf("writeRange(): unexpected err: %v", err)
	}
	return sector
}

func TestReadRange(t *testing.T) {
	type testCase struct {
		name   string
		offset Byte
		length Byte
		wanted string
	}

	for _, tc := range []testCase{{
		name:   "everything",
		offset: 0,
		length: -1,
		wanted: "hello, world",
	}, {
		name:   "rest-of-file",
		offset: 7,
		length: -1,
		wanted: "world",
	}, {
		name:   "bounded",
		offset: 0,
		length: 5,
		wanted: "hello",
	}, {
		name:   "past-end",
		offset: 100,
		length: -1,
		wanted: "",
	}} {
		t.Run(tc.name, func(t *testing.T) {
			v := newVolume(t)
			sector := newFile(t, v, []byte("hello, world"))
			found, err := readRange(v, sector, tc.offset, tc.length)
			if err != nil {
				t.Fatalf("readRange(): unexpected err: %v", err)
			}
			if string(found) != tc.wanted {
				t.Fatalf("readRange(): wanted `%s`; found `%s`", tc.wanted, found)
			}
		})
	}
}

func TestStat(t *testing.T) {
	v := newVolume(t)
	sector := newFile(t, v, make([]byte, 1000))
	s, err := stat(v, sector)
	if err != nil {
		t.Fatalf("stat(): unexpected err: %v", err)
	}
	wanted := Stat{Inode: sector, Length: 1000, Sectors: 2, OpenCount: 1}
	if *s != wanted {
		t.Fatalf("stat(): wanted `%+v`; found `%+v`", wanted, *s)
	}

	root, err := stat(v, SectorRootDir)
	if err != nil {
		t.Fatalf("stat(): unexpected err: %v", err)
	}
	if !root.IsDir {
		t.Fatal("stat(): wanted root dir to be a directory")
	}
}

func TestSum(t *testing.T) {
	v := newVolume(t)
	data := bytes.Repeat([]byte{0xab}, 300*int(SectorSize))
	sector := newFile(t, v, data)

	found, err := sum(v, sector)
	if err != nil {
		t.Fatalf("sum(): unexpected err: %v", err)
	}
	digest := blake2b.Sum256(data)
	if wanted := hex.EncodeToString(digest[:]); found != wanted {
		t.Fatalf("sum(): wanted `%s`; found `%s`", wanted, found)
	}
}

func TestExportImport(t *testing.T) {
	v := newVolume(t)
	data := bytes.Repeat([]byte("exported "), 200)
	sector := newFile(t, v, data)
	fake := testsupport.ObjectStoreFake{}
	store := &objectstore.GzipObjectStore{ObjectStore: fake}

	if err := export(v, sector, store, "bucket", "key"); err != nil {
		t.Fatalf("export(): unexpected err: %v", err)
	}
	if compressed := fake[[2]string{"bucket", "key"}]; len(compressed) >= len(data) {
		t.Fatalf(
			"export(): wanted compressed object; found `%d` bytes for `%d`",
			len(compressed),
			len(data),
		)
	}

	imported, err := importObject(v, store, "bucket", "key")
	if err != nil {
		t.Fatalf("importObject(): unexpected err: %v", err)
	}
	if imported == sector {
		t.Fatal("importObject(): wanted a new inode")
	}
	found, err := readRange(v, imported, 0, -1)
	if err != nil {
		t.Fatalf("readRange(): unexpected err: %v", err)
	}
	if !bytes.Equal(found, data) {
		t.Fatal("importObject(): content differs from the exported inode")
	}
}

func TestImport_NotFound(t *testing.T) {
	v := newVolume(t)
	free := v.Info().Free
	_, err := importObject(v, testsupport.ObjectStoreFake{}, "bucket", "missing")

	var notFound *objectstore.ObjectNotFoundErr
	if !errors.As(err, &notFound) {
		t.Fatalf("importObject(): wanted `ObjectNotFoundErr`; found `%v`", err)
	}
	if found := v.Info().Free; found != free {
		t.Fatalf("importObject(): wanted `%d` free; found `%d`", free, found)
	}
}

func TestParseInode(t *testing.T) {
	type testCase struct {
		name    string
		input   uint
		wanted  Sector
		wantErr bool
	}

	for _, tc := range []testCase{
		{name: "zero", input: 0, wanted: 0},
		{name: "largest", input: MaxSectors - 1, wanted: 65535},
		{name: "wraps-to-free-map", input: MaxSectors, wantErr: true},
		{name: "wraps-to-root-dir", input: MaxSectors + 1, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			found, err := parseInode(tc.input)
			if tc.wantErr {
				if !errors.Is(err, SectorOutOfRangeErr) {
					t.Fatalf("parseInode(%d): wanted `%v`; found `%v`", tc.input, SectorOutOfRangeErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseInode(%d): unexpected err: %v", tc.input, err)
			}
			if found != tc.wanted {
				t.Fatalf("parseInode(%d): wanted `%d`; found `%d`", tc.input, tc.wanted, found)
			}
		})
	}
}

func TestWriteRange_ReservedInodes(t *testing.T) {
	dev := device.NewMemory(2048)
	v, err := volume.Format(dev, volume.Options{CacheSize: 16})
	if err != nil {
		t.Fatalf("Format(): unexpected err: %v", err)
	}

	for _, sector := range []Sector{SectorFreeMap, SectorRootDir} {
		n, err := writeRange(v, sector, 256, []byte("junk"))
		if !errors.Is(err, volume.ReservedInodeErr) {
			t.Fatalf("writeRange(%d): wanted `%v`; found `%v`", sector, volume.ReservedInodeErr, err)
		}
		if n != 0 {
			t.Fatalf("writeRange(%d): wanted `0`; found `%d`", sector, n)
		}
	}

	if err := v.Close(); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}
	if _, err := volume.Mount(dev, volume.Options{}); err != nil {
		t.Fatalf("Mount(): unexpected err: %v", err)
	}
}

func TestInfoReport_IncludesCacheStats(t *testing.T) {
	v := newVolume(t)
	sector := newFile(t, v, []byte("hello"))
	if _, err := readRange(v, sector, 0, -1); err != nil {
		t.Fatalf("readRange(): unexpected err: %v", err)
	}

	info := infoReport(v, nil)
	if info.Cache.Hits == 0 {
		t.Fatalf("infoReport(): wanted cache hits; found `%+v`", info.Cache)
	}
	if info.Cache != v.Info().Cache {
		t.Fatalf(
			"infoReport(): wanted `%+v`; found `%+v`",
			v.Info().Cache,
			info.Cache,
		)
	}

	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("json.Marshal(): unexpected err: %v", err)
	}
	var decoded struct {
		Cache map[string]uint64 `json:"cache"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal(): unexpected err: %v", err)
	}
	for _, key := range []string{"hits", "misses", "evictions", "writeBacks"} {
		if _, ok := decoded.Cache[key]; !ok {
			t.Fatalf("infoReport(): wanted `cache.%s` in `%s`", key, data)
		}
	}
}

func TestListExports(t *testing.T) {
	v := newVolume(t)
	store := &objectstore.GzipObjectStore{ObjectStore: testsupport.ObjectStoreFake{}}

	keys, err := listExports(store, "bucket", "vol/")
	if err != nil {
		t.Fatalf("listExports(): unexpected err: %v", err)
	}
	if keys == nil || len(keys) != 0 {
		t.Fatalf("listExports(): wanted empty non-nil keys; found `%#v`", keys)
	}

	for _, key := range []string{"vol/2", "vol/1", "misc"} {
		sector := newFile(t, v, []byte(key))
		if err := export(v, sector, store, "bucket", key); err != nil {
			t.Fatalf("export(): unexpected err: %v", err)
		}
	}
	keys, err = listExports(store, "bucket", "vol/")
	if err != nil {
		t.Fatalf("listExports(): unexpected err: %v", err)
	}
	if len(keys) != 2 || keys[0] != "vol/1" || keys[1] != "vol/2" {
		t.Fatalf("listExports(): wanted `[vol/1 vol/2]`; found `%v`", keys)
	}
}
