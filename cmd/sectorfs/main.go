package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/urfave/cli/v2"
	"github.com/weberc2/sectorfs/pkg/device"
	"github.com/weberc2/sectorfs/pkg/objectstore"
	. "github.com/weberc2/sectorfs/pkg/types"
	"github.com/weberc2/sectorfs/pkg/volume"
)

func main() {
	app := cli.App{
		Name:        appName,
		Description: "inspect and modify sectorfs volume images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "image",
				Usage: "Path to the volume image. Overrides `SECTORFS_IMAGE`.",
			},
			&cli.IntFlag{
				Name:  "cache-size",
				Usage: "Number of sector cache slots.",
			},
			&cli.StringFlag{
				Name:  "eviction",
				Usage: "Cache eviction policy: `lru` or `mru`.",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at debug level.",
			},
		},
		Commands: []*cli.Command{{
			Name:        "format",
			Aliases:     []string{"mkfs"},
			Description: "create and format a new volume image",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:     "sectors",
					Usage:    "The number of 512-byte sectors in the image.",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "label",
					Usage: "A human-readable volume label.",
				},
			},
			Action: withConfig(func(c *Config, ctx *cli.Context) error {
				if c.Image == "" {
					c.Image = volume.ImageName(ctx.String("label"))
				}
				if err := c.Validate(); err != nil {
					return err
				}
				sectors := ctx.Int("sectors")
				file, err := device.Create(c.Image, sectors)
				if err != nil {
					return err
				}
				opts := c.VolumeOptions(slog.Default())
				v, err := volume.Format(file, opts)
				if err != nil {
					file.Close()
					return err
				}
				if err := closeVolume(v, file); err != nil {
					return err
				}

				manifest := volume.NewManifest(
					ctx.String("label"),
					sectors,
					opts,
					time.Now(),
				)
				if err := volume.WriteManifest(
					volume.ManifestPath(c.Image),
					&manifest,
				); err != nil {
					return err
				}
				return printJSON(manifest)
			}),
		}, {
			Name:        "info",
			Description: "show volume and cache statistics",
			Action: withVolume(func(v *volume.Volume, c *Config, ctx *cli.Context) error {
				manifest, err := volume.ReadManifest(volume.ManifestPath(c.Image))
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
				return printJSON(infoReport(v, manifest))
			}),
		}, {
			Name:        "create",
			Aliases:     []string{"touch"},
			Description: "create a file and print its inode number",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:  "length",
					Usage: "The initial length in bytes. Defaults to `0`.",
				},
			},
			Action: withVolume(func(v *volume.Volume, c *Config, ctx *cli.Context) error {
				sector, err := v.Create(Byte(ctx.Int64("length")))
				if err != nil {
					return err
				}
				_, err = fmt.Println(sector)
				return err
			}),
		}, {
			Name:        "write",
			Description: "write a host file (or stdin) into an inode",
			Flags: []cli.Flag{
				inodeFlag(),
				&cli.Int64Flag{
					Name:  "offset",
					Usage: "The byte offset to write at. Defaults to `0`.",
				},
				&cli.StringFlag{
					Name:  "file",
					Usage: "The host file to copy from. Defaults to stdin.",
					Value: "-",
				},
			},
			Action: withFile(func(v *volume.Volume, sector Sector, c *Config, ctx *cli.Context) error {
				data, err := readInput(ctx.String("file"))
				if err != nil {
					return err
				}
				written, err := writeRange(
					v,
					sector,
					Byte(ctx.Int64("offset")),
					data,
				)
				if err != nil {
					return err
				}
				if written != Byte(len(data)) {
					return fmt.Errorf(
						"inode `%d` is write-denied; wrote `%d` of `%d` bytes",
						sector,
						written,
						len(data),
					)
				}
				return nil
			}),
		}, {
			Name:        "read",
			Aliases:     []string{"cat"},
			Description: "copy an inode's content to stdout",
			Flags: []cli.Flag{
				inodeFlag(),
				&cli.Int64Flag{
					Name:  "offset",
					Usage: "The byte offset to read from. Defaults to `0`.",
				},
				&cli.Int64Flag{
					Name:  "length",
					Usage: "The number of bytes to read. Defaults to the rest of the file.",
					Value: -1,
				},
			},
			Action: withFile(func(v *volume.Volume, sector Sector, c *Config, ctx *cli.Context) error {
				data, err := readRange(
					v,
					sector,
					Byte(ctx.Int64("offset")),
					Byte(ctx.Int64("length")),
				)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			}),
		}, {
			Name:        "stat",
			Description: "show an inode's metadata",
			Flags:       []cli.Flag{inodeFlag()},
			Action: withFile(func(v *volume.Volume, sector Sector, c *Config, ctx *cli.Context) error {
				s, err := stat(v, sector)
				if err != nil {
					return err
				}
				return printJSON(s)
			}),
		}, {
			Name:        "rm",
			Aliases:     []string{"remove", "delete"},
			Description: "remove an inode and reclaim its sectors",
			Flags:       []cli.Flag{inodeFlag()},
			Action: withFile(func(v *volume.Volume, sector Sector, c *Config, ctx *cli.Context) error {
				return v.Remove(sector)
			}),
		}, {
			Name:        "sum",
			Description: "print the BLAKE2b-256 digest of an inode's content",
			Flags:       []cli.Flag{inodeFlag()},
			Action: withFile(func(v *volume.Volume, sector Sector, c *Config, ctx *cli.Context) error {
				digest, err := sum(v, sector)
				if err != nil {
					return err
				}
				_, err = fmt.Println(digest)
				return err
			}),
		}, {
			Name:        "export",
			Description: "upload an inode's content, gzipped, to S3",
			Flags: []cli.Flag{
				inodeFlag(),
				bucketFlag(),
				&cli.StringFlag{
					Name:     "key",
					Usage:    "The object key. Required.",
					Required: true,
				},
			},
			Action: withFile(func(v *volume.Volume, sector Sector, c *Config, ctx *cli.Context) error {
				store, err := newObjectStore()
				if err != nil {
					return err
				}
				bucket, err := chooseBucket(c, ctx)
				if err != nil {
					return err
				}
				return export(
					v,
					sector,
					store,
					bucket,
					ctx.String("key"),
				)
			}),
		}, {
			Name:        "import",
			Description: "download a gzipped S3 object into a new inode",
			Flags: []cli.Flag{
				bucketFlag(),
				&cli.StringFlag{
					Name:     "key",
					Usage:    "The object key. Required.",
					Required: true,
				},
			},
			Action: withVolume(func(v *volume.Volume, c *Config, ctx *cli.Context) error {
				store, err := newObjectStore()
				if err != nil {
					return err
				}
				bucket, err := chooseBucket(c, ctx)
				if err != nil {
					return err
				}
				sector, err := importObject(v, store, bucket, ctx.String("key"))
				if err != nil {
					return err
				}
				_, err = fmt.Println(sector)
				return err
			}),
		}, {
			Name:        "exports",
			Description: "list exported object keys in the bucket",
			Flags: []cli.Flag{
				bucketFlag(),
				&cli.StringFlag{
					Name:  "prefix",
					Usage: "Only list keys beginning with this prefix.",
				},
			},
			Action: withConfig(func(c *Config, ctx *cli.Context) error {
				store, err := newObjectStore()
				if err != nil {
					return err
				}
				bucket, err := chooseBucket(c, ctx)
				if err != nil {
					return err
				}
				keys, err := listExports(store, bucket, ctx.String("prefix"))
				if err != nil {
					return err
				}
				return printJSON(keys)
			}),
		}},
	}

	log.Fatal(app.Run(os.Args))
}

func inodeFlag() cli.Flag {
	return &cli.UintFlag{
		Name:     "inode",
		Usage:    "The inode (sector) number. Required.",
		Required: true,
	}
}

func bucketFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "bucket",
		Usage: "The S3 bucket. Overrides `SECTORFS_BUCKET`.",
	}
}

func chooseBucket(c *Config, ctx *cli.Context) (string, error) {
	if ctx.IsSet("bucket") {
		return ctx.String("bucket"), nil
	}
	if c.Bucket == "" {
		return "", fmt.Errorf(
			"missing required configuration: bucket / %s_BUCKET",
			envVarPrefix,
		)
	}
	return c.Bucket, nil
}

func newObjectStore() (objectstore.ObjectStore, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return &objectstore.GzipObjectStore{
		ObjectStore: &objectstore.S3ObjectStore{Client: s3.New(sess)},
	}, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	return data, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Printf("%s\n", data)
	return err
}

// applyFlags overrides configuration with any global flags that were set.
func applyFlags(c *Config, ctx *cli.Context) error {
	if ctx.IsSet("image") {
		c.Image = ctx.String("image")
	}
	if ctx.IsSet("cache-size") {
		c.CacheSize = ctx.Int("cache-size")
	}
	if ctx.IsSet("eviction") {
		if err := c.Eviction.Decode(ctx.String("eviction")); err != nil {
			return err
		}
	}
	if ctx.Bool("verbose") {
		c.LogLevel = "debug"
	}
	return nil
}

func withConfig(f func(c *Config, ctx *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := LoadConfig(configFile())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := applyFlags(c, ctx); err != nil {
			return err
		}
		slog.SetDefault(c.Logger())
		return f(c, ctx)
	}
}

func withVolume(
	f func(v *volume.Volume, c *Config, ctx *cli.Context) error,
) cli.ActionFunc {
	return withConfig(func(c *Config, ctx *cli.Context) error {
		if err := c.Validate(); err != nil {
			return err
		}
		file, err := device.Open(c.Image)
		if err != nil {
			return err
		}
		v, err := volume.Mount(file, c.VolumeOptions(slog.Default()))
		if err != nil {
			file.Close()
			return err
		}
		if err := f(v, c, ctx); err != nil {
			closeVolume(v, file)
			return err
		}
		return closeVolume(v, file)
	})
}

// withFile is `withVolume` for commands that take an `--inode` flag.
func withFile(
	f func(v *volume.Volume, sector Sector, c *Config, ctx *cli.Context) error,
) cli.ActionFunc {
	return withVolume(func(v *volume.Volume, c *Config, ctx *cli.Context) error {
		sector, err := parseInode(ctx.Uint("inode"))
		if err != nil {
			return err
		}
		return f(v, sector, c, ctx)
	})
}

func closeVolume(v *volume.Volume, file *device.File) error {
	if err := v.Close(); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
