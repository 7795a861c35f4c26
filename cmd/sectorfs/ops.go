package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/weberc2/sectorfs/pkg/bcache"
	"github.com/weberc2/sectorfs/pkg/inode"
	"github.com/weberc2/sectorfs/pkg/objectstore"
	. "github.com/weberc2/sectorfs/pkg/types"
	"github.com/weberc2/sectorfs/pkg/volume"
	"golang.org/x/crypto/blake2b"
)

type Stat struct {
	Inode     Sector `json:"inode"`
	Length    Byte   `json:"length"`
	IsDir     bool   `json:"isDir"`
	Sectors   int    `json:"sectors"`
	OpenCount int    `json:"openCount"`
}

// parseInode converts a command line inode number to a sector, rejecting
// values a sector number cannot represent instead of truncating them.
func parseInode(n uint) (Sector, error) {
	if n >= MaxSectors {
		return SectorNil, fmt.Errorf(
			"parsing inode `%d`: %w",
			n,
			SectorOutOfRangeErr,
		)
	}
	return Sector(n), nil
}

// Info is the payload printed by the `info` command.
type Info struct {
	Manifest   *volume.Manifest `json:"manifest,omitempty"`
	Sectors    int              `json:"sectors"`
	Free       int              `json:"free"`
	CacheSize  int              `json:"cacheSize"`
	Eviction   string           `json:"eviction"`
	OpenInodes int              `json:"openInodes"`
	Cache      bcache.Stats     `json:"cache"`
}

func infoReport(v *volume.Volume, manifest *volume.Manifest) *Info {
	info := v.Info()
	return &Info{
		Manifest:   manifest,
		Sectors:    info.Sectors,
		Free:       info.Free,
		CacheSize:  info.CacheSize,
		Eviction:   info.Policy.String(),
		OpenInodes: info.OpenInodes,
		Cache:      info.Cache,
	}
}

func withInode(
	v *volume.Volume,
	sector Sector,
	f func(file *inode.Inode) error,
) error {
	file, err := v.Open(sector)
	if err != nil {
		return err
	}
	if err := f(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func stat(v *volume.Volume, sector Sector) (*Stat, error) {
	var s Stat
	if err := withInode(v, sector, func(file *inode.Inode) error {
		length := file.Length()
		s = Stat{
			Inode:     file.Inumber(),
			Length:    length,
			IsDir:     file.IsDir(),
			Sectors:   length.Sectors(),
			OpenCount: file.OpenCount(),
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &s, nil
}

// readRange reads `length` bytes from `offset`, or everything from `offset`
// to the end of the file when `length` is negative.
func readRange(
	v *volume.Volume,
	sector Sector,
	offset Byte,
	length Byte,
) ([]byte, error) {
	if offset < 0 {
		return nil, fmt.Errorf("reading inode `%d`: negative offset `%d`", sector, offset)
	}
	var data []byte
	if err := withInode(v, sector, func(file *inode.Inode) error {
		if length < 0 {
			length = file.Length() - offset
		}
		if length < 0 {
			length = 0
		}
		buf := make([]byte, length)
		n, err := file.ReadAt(offset, buf)
		if err != nil {
			return fmt.Errorf("reading inode `%d`: %w", sector, err)
		}
		data = buf[:n]
		return nil
	}); err != nil {
		return nil, err
	}
	return data, nil
}

func writeRange(
	v *volume.Volume,
	sector Sector,
	offset Byte,
	data []byte,
) (Byte, error) {
	if offset < 0 {
		return 0, fmt.Errorf("writing inode `%d`: negative offset `%d`", sector, offset)
	}
	if volume.Reserved(sector) {
		return 0, fmt.Errorf(
			"writing inode `%d`: %w",
			sector,
			volume.ReservedInodeErr,
		)
	}
	var written Byte
	if err := withInode(v, sector, func(file *inode.Inode) error {
		n, err := file.WriteAt(offset, data)
		if err != nil {
			return fmt.Errorf("writing inode `%d`: %w", sector, err)
		}
		written = n
		return nil
	}); err != nil {
		return written, err
	}
	return written, nil
}

// sum returns the hex-encoded BLAKE2b-256 digest of the inode's content.
func sum(v *volume.Volume, sector Sector) (string, error) {
	data, err := readRange(v, sector, 0, -1)
	if err != nil {
		return "", err
	}
	digest := blake2b.Sum256(data)
	return hex.EncodeToString(digest[:]), nil
}

func export(
	v *volume.Volume,
	sector Sector,
	store objectstore.ObjectStore,
	bucket string,
	key string,
) error {
	data, err := readRange(v, sector, 0, -1)
	if err != nil {
		return fmt.Errorf("exporting inode `%d`: %w", sector, err)
	}
	if err := store.PutObject(bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("exporting inode `%d`: %w", sector, err)
	}
	return nil
}

// listExports returns the exported keys under `prefix`, never nil.
func listExports(
	store objectstore.ObjectStore,
	bucket string,
	prefix string,
) ([]string, error) {
	keys, err := store.ListObjects(bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing exports in bucket `%s`: %w", bucket, err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// importObject copies an object into a newly created inode and returns the
// inode's sector.
func importObject(
	v *volume.Volume,
	store objectstore.ObjectStore,
	bucket string,
	key string,
) (Sector, error) {
	body, err := store.GetObject(bucket, key)
	if err != nil {
		return SectorNil, fmt.Errorf("importing object: %w", err)
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return SectorNil, fmt.Errorf(
			"importing object `%s/%s`: reading: %w",
			bucket,
			key,
			err,
		)
	}

	sector, err := v.Create(Byte(len(data)))
	if err != nil {
		return SectorNil, fmt.Errorf("importing object `%s/%s`: %w", bucket, key, err)
	}
	if _, err := writeRange(v, sector, 0, data); err != nil {
		if err := v.Remove(sector); err != nil {
			return SectorNil, fmt.Errorf(
				"importing object `%s/%s`: cleaning up inode `%d`: %w",
				bucket,
				key,
				sector,
				err,
			)
		}
		return SectorNil, fmt.Errorf("importing object `%s/%s`: %w", bucket, key, err)
	}
	return sector, nil
}
