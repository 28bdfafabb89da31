package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/sway/internal/dagger"
)

// binaries built from ./cli
var binaries = []string{"sway", "swayapi"}

// Build and return directory of go binaries.
// cgo rules out cross compiling, so each architecture builds in a
// container of its own platform.
func (s *Sway) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	goarches := []string{"amd64", "arm64"}

	outputs := dag.Directory()

	for _, goarch := range goarches {
		path := fmt.Sprintf("linux/%s/", goarch)
		platform := dagger.Platform("linux/" + goarch)

		build := s.goContainer(dagger.ContainerOpts{Platform: platform})
		for _, bin := range binaries {
			build = build.WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/" + bin})
		}

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (s *Sway) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now().UTC().Format(time.RFC3339)

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/sway/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/sway/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/sway/pkg/utils.Buildtime=%s'", buildtime),
	}

	return s.Build(ctx, strings.Join(ldflags, " "))
}
