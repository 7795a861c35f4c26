// Command workflows prints the GitHub Actions workflow that checks sectorfs
// and builds release binaries of the CLI. Regenerate with:
//
//	go run ./cmd/workflows > .github/workflows/ci.yaml
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

const goVersion = "1.22"

// Target is one platform the CLI is released for.
type Target struct {
	OS   string `yaml:"os"`
	Arch string `yaml:"arch"`
}

var releaseTargets = []Target{
	{OS: "linux", Arch: "amd64"},
	{OS: "linux", Arch: "arm64"},
	{OS: "darwin", Arch: "arm64"},
}

// roundTripScript formats a small image with the CLI, writes a file and
// checks it reads back.
const roundTripScript = `go build -o sectorfs ./cmd/sectorfs
./sectorfs format --sectors 1024
inode=$(./sectorfs create)
echo hello | ./sectorfs write --inode "$inode"
test "$(./sectorfs read --inode "$inode")" = hello`

func WorkflowCI(binary string, targets ...Target) Workflow {
	return Workflow{
		Name: "ci",
		On: Trigger{
			Push: BranchFilter{
				Branches: []string{"*"},
				Tags:     []string{"*"},
			},
			PullRequest: &BranchFilter{Branches: []string{"master"}},
		},
		Jobs: map[string]Job{
			"check":   JobCheck(),
			"release": JobRelease(binary, targets...),
		},
	}
}

func setupSteps() []Step {
	return []Step{{
		Name: "Checkout",
		Uses: "actions/checkout@v4",
	}, {
		Name: "Setup Go",
		Uses: "actions/setup-go@v5",
		With: Args{"go-version": goVersion},
	}}
}

func JobCheck() Job {
	return Job{
		RunsOn: "ubuntu-latest",
		Steps: append(
			setupSteps(),
			Step{Name: "Go Vet", ID: "vet", Run: "go vet ./..."},
			Step{Name: "Go Test", ID: "test", Run: "go test -race ./..."},
			Step{
				Name: "Round Trip",
				ID:   "round-trip",
				Run:  roundTripScript,
				Env:  Env{"SECTORFS_IMAGE": "ci.img"},
			},
		),
	}
}

func JobRelease(binary string, targets ...Target) Job {
	output := fmt.Sprintf("%s-${{ matrix.os }}-${{ matrix.arch }}", binary)
	return Job{
		RunsOn: "ubuntu-latest",
		Needs:  []string{"check"},
		Strategy: &Strategy{
			Matrix: Matrix{Include: targets},
		},
		Env: Env{
			"GOOS":        "${{ matrix.os }}",
			"GOARCH":      "${{ matrix.arch }}",
			"CGO_ENABLED": "0",
		},
		Steps: append(
			setupSteps(),
			Step{
				Name: "Build",
				ID:   "build",
				Run:  fmt.Sprintf("go build -o %s ./cmd/%s", output, binary),
			},
			Step{
				Name: "Upload",
				If:   "startsWith(github.ref, 'refs/tags/')",
				Uses: "actions/upload-artifact@v4",
				With: Args{"name": output, "path": output},
			},
		),
	}
}

// MarshalToWriter marshals `v` and writes the result directly to `w`.
func MarshalToWriter(w io.Writer, v interface{}) error {
	yamlEncoder := yaml.NewEncoder(w)
	yamlEncoder.SetIndent(2)
	if err := yamlEncoder.Encode(v); err != nil {
		return fmt.Errorf("marshaling to YAML: %w", err)
	}
	return nil
}

func main() {
	if err := MarshalToWriter(
		os.Stdout,
		WorkflowCI("sectorfs", releaseTargets...),
	); err != nil {
		log.Fatalf("marshaling ci workflow: %v", err)
	}
}
