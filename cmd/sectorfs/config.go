package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/weberc2/sectorfs/pkg/bcache"
	"github.com/weberc2/sectorfs/pkg/volume"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "SECTORFS"
	appName      = "sectorfs"
)

type Config struct {
	Image     string        `envconfig:"SECTORFS_IMAGE"      yaml:"image"`
	CacheSize int           `envconfig:"SECTORFS_CACHE_SIZE" yaml:"cacheSize"`
	Eviction  bcache.Policy `envconfig:"SECTORFS_EVICTION"   yaml:"eviction"`
	LogLevel  string        `envconfig:"SECTORFS_LOG_LEVEL"  yaml:"logLevel"`
	Bucket    string        `envconfig:"SECTORFS_BUCKET"     yaml:"bucket"`
}

func configFile() string {
	if configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE"); configFile != "" {
		return configFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName+".yaml")
}

// LoadConfig reads the config file, if any, and then applies environment
// variable overrides.
func LoadConfig(configFile string) (*Config, error) {
	var c Config
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	if c.CacheSize == 0 {
		c.CacheSize = bcache.DefaultSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if y, e := func() (string, string) {
		if c.Image == "" {
			return "image", "IMAGE"
		}
		if c.CacheSize < 1 {
			return "cacheSize", "CACHE_SIZE"
		}
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return "logLevel", "LOG_LEVEL"
		}
		return "", ""
	}(); y != "" {
		return fmt.Errorf(
			"missing or invalid configuration: %s / %s_%s",
			y,
			envVarPrefix,
			e,
		)
	}
	return nil
}

func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}

func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(
		os.Stderr,
		&slog.HandlerOptions{Level: c.Level()},
	))
}

func (c *Config) VolumeOptions(logger *slog.Logger) volume.Options {
	return volume.Options{
		CacheSize: c.CacheSize,
		Policy:    c.Eviction,
		Logger:    logger,
	}
}
