// Package testrun discovers the built llama.cpp test binaries, applies the
// skip policy, executes the runnable ones, and aggregates a run summary.
package testrun

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ErrBuildOutputMissing indicates the build output directory does not exist,
// i.e. the build stage was never run. An existing-but-empty directory is a
// valid state and not an error.
var ErrBuildOutputMissing = errors.New("build output missing")

// EnvBuildDir overrides the build directory used for discovery, supporting
// out-of-tree builds.
const EnvBuildDir = "HIPFORGE_BUILD_DIR"

// testPrefix is the project's test binary naming convention.
const testPrefix = "test-"

// Binary is one discovered test executable.
type Binary struct {
	// Path is the absolute executable path.
	Path string
	// Name is the binary name without any .exe suffix.
	Name string
}

// BinDir returns the binary directory under a build directory.
func BinDir(buildDir string) string {
	return filepath.Join(buildDir, "bin")
}

// Discover enumerates test binaries in binDir, sorted by name so run order
// is deterministic across invocations. Entries that are directories,
// non-executable, or miss the test- prefix are filtered out. An empty result
// is valid; a missing directory is ErrBuildOutputMissing.
//
// Binary paths are absolute. The runner sets the working directory of each
// test process, so a path relative to the invoking shell would resolve
// against the wrong directory at exec time.
func Discover(binDir string) ([]Binary, error) {
	binDir, err := filepath.Abs(binDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", binDir, err)
	}
	entries, err := os.ReadDir(binDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist, run build first", ErrBuildOutputMissing, binDir)
		}
		return nil, fmt.Errorf("read %s: %w", binDir, err)
	}

	var binaries []Binary
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := testName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !executable(info.Mode()) {
			continue
		}
		binaries = append(binaries, Binary{
			Path: filepath.Join(binDir, entry.Name()),
			Name: name,
		})
	}

	sort.Slice(binaries, func(i, j int) bool { return binaries[i].Name < binaries[j].Name })
	return binaries, nil
}

// testName validates the naming convention and strips the platform suffix.
func testName(filename string) (string, bool) {
	name := filename
	if runtime.GOOS == "windows" {
		if !strings.HasSuffix(name, ".exe") {
			return "", false
		}
		name = strings.TrimSuffix(name, ".exe")
	}
	if !strings.HasPrefix(name, testPrefix) {
		return "", false
	}
	return name, true
}

func executable(mode os.FileMode) bool {
	if runtime.GOOS == "windows" {
		return true // extension already checked
	}
	return mode&0o111 != 0
}
