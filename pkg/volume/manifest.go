package volume

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gopkg.in/yaml.v2"
)

// Manifest is the YAML sidecar stored next to a volume image. It names the
// volume and records how it was formatted.
type Manifest struct {
	VolumeID  string    `yaml:"volumeID"`
	Label     string    `yaml:"label"`
	Slug      string    `yaml:"slug"`
	Sectors   int       `yaml:"sectors"`
	CacheSize int       `yaml:"cacheSize"`
	Eviction  string    `yaml:"eviction"`
	CreatedAt time.Time `yaml:"createdAt"`
}

func NewManifest(label string, sectors int, opts Options, now time.Time) Manifest {
	return Manifest{
		VolumeID:  uuid.NewString(),
		Label:     label,
		Slug:      slug.Make(label),
		Sectors:   sectors,
		CacheSize: opts.cacheSize(),
		Eviction:  opts.Policy.String(),
		CreatedAt: now.UTC(),
	}
}

// ManifestPath returns where the manifest for the image at `image` lives.
func ManifestPath(image string) string { return image + ".yaml" }

// ImageName returns the default image file name for a volume labeled
// `label`.
func ImageName(label string) string {
	if s := slug.Make(label); s != "" {
		return s + ".img"
	}
	return "volume.img"
}

func (m *Manifest) Validate() error {
	if _, err := uuid.Parse(m.VolumeID); err != nil {
		return fmt.Errorf("validating manifest: volume ID `%s`: %w", m.VolumeID, err)
	}
	if m.Sectors < 1 {
		return fmt.Errorf("validating manifest: invalid sector count `%d`", m.Sectors)
	}
	return nil
}

func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest `%s`: %w", path, err)
	}
	return nil
}

func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest `%s`: %w", path, err)
	}
	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest `%s`: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("reading manifest `%s`: %w", path, err)
	}
	return &m, nil
}
