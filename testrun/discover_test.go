package testrun

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// chdir mirrors testing.T.Chdir (added in Go 1.24) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Error(err)
		}
	})
}

func writeBinary(t *testing.T, dir, name string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\nexit 0\n"), mode); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover_SortedAndFiltered(t *testing.T) {
	binDir := t.TempDir()
	writeBinary(t, binDir, "test-tokenizer", 0o755)
	writeBinary(t, binDir, "test-alloc", 0o755)
	writeBinary(t, binDir, "test-notes.txt", 0o644) // not executable
	writeBinary(t, binDir, "llama-cli", 0o755)      // wrong prefix
	if err := os.MkdirAll(filepath.Join(binDir, "test-dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	binaries, err := Discover(binDir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(binaries) != 2 {
		t.Fatalf("got %d binaries, want 2: %v", len(binaries), binaries)
	}
	if binaries[0].Name != "test-alloc" || binaries[1].Name != "test-tokenizer" {
		t.Errorf("order = [%s %s], want lexicographic [test-alloc test-tokenizer]",
			binaries[0].Name, binaries[1].Name)
	}
	if binaries[0].Path != filepath.Join(binDir, "test-alloc") {
		t.Errorf("Path = %q, want absolute path in bin dir", binaries[0].Path)
	}
}

func TestDiscover_RelativeDirYieldsAbsolutePaths(t *testing.T) {
	root := t.TempDir()
	binDir := filepath.Join(root, "build", "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeBinary(t, binDir, "test-alloc", 0o755)
	chdir(t, root)

	binaries, err := Discover(filepath.Join("build", "bin"))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(binaries) != 1 {
		t.Fatalf("got %d binaries, want 1", len(binaries))
	}
	if !filepath.IsAbs(binaries[0].Path) {
		t.Errorf("Path = %q, want absolute", binaries[0].Path)
	}
}

func TestDiscover_EmptyDirIsNotAnError(t *testing.T) {
	binaries, err := Discover(t.TempDir())
	if err != nil {
		t.Fatalf("Discover on empty dir: %v", err)
	}
	if len(binaries) != 0 {
		t.Errorf("got %d binaries, want 0", len(binaries))
	}
}

func TestDiscover_MissingDirFails(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "build", "bin"))
	if !errors.Is(err, ErrBuildOutputMissing) {
		t.Fatalf("err = %v, want ErrBuildOutputMissing", err)
	}
}

func TestBinDir(t *testing.T) {
	if got := BinDir("/x/build"); got != filepath.Join("/x/build", "bin") {
		t.Errorf("BinDir = %q", got)
	}
}
