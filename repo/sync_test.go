package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRunner records git invocations and returns scripted results.
type fakeRunner struct {
	calls   []string
	outputs map[string]string // command prefix -> stdout
	fail    map[string]error  // command prefix -> error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: make(map[string]string),
		fail:    make(map[string]error),
	}
}

func (f *fakeRunner) run(_ context.Context, _, name string, args ...string) ([]byte, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	for prefix, err := range f.fail {
		if strings.HasPrefix(call, prefix) {
			return []byte("fatal: scripted failure"), err
		}
	}
	for prefix, out := range f.outputs {
		if strings.HasPrefix(call, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func (f *fakeRunner) calledWithPrefix(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// newExistingRepoDir creates a temp dir that looks like an existing clone.
func newExistingRepoDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSync_FreshDirInitializes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "llama.cpp")
	fake := newFakeRunner()
	fake.outputs["git rev-parse HEAD"] = "abc123\n"

	s := NewSyncer(CheckoutSpec{Dir: dir, Ref: "master", Depth: 1}, fake.run)
	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	wantOrder := []string{
		"git init --initial-branch=main",
		"git config advice.detachedHead false",
		"git remote add origin " + DefaultRemote,
		"git fetch --depth 1 -j 10 origin master",
		"git checkout FETCH_HEAD",
		"git tag -f " + DiffbaseTag + " --no-sign",
		"git rev-parse HEAD",
	}
	if len(fake.calls) != len(wantOrder) {
		t.Fatalf("calls = %v, want %v", fake.calls, wantOrder)
	}
	for i, want := range wantOrder {
		if fake.calls[i] != want {
			t.Errorf("calls[%d] = %q, want %q", i, fake.calls[i], want)
		}
	}
}

func TestSync_ExistingRepoFetchesWithoutInit(t *testing.T) {
	dir := newExistingRepoDir(t)
	fake := newFakeRunner()

	s := NewSyncer(CheckoutSpec{Dir: dir, Remote: "https://example.com/fork.git"}, fake.run)
	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if fake.calledWithPrefix("git init") {
		t.Error("init run against existing repository")
	}
	if !fake.calledWithPrefix("git remote set-url origin https://example.com/fork.git") {
		t.Errorf("remote set-url not run, calls: %v", fake.calls)
	}
	if !fake.calledWithPrefix("git fetch -j 10 origin master") {
		t.Errorf("fetch not run with defaults, calls: %v", fake.calls)
	}
}

func TestSync_Idempotent(t *testing.T) {
	dir := newExistingRepoDir(t)
	fake := newFakeRunner()
	fake.outputs["git rev-parse HEAD"] = "deadbeef\n"

	s := NewSyncer(CheckoutSpec{Dir: dir, Ref: "v1.0"}, fake.run)
	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	first := fake.calls
	fake.calls = nil
	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	if len(first) != len(fake.calls) {
		t.Fatalf("second run issued different commands: %v vs %v", first, fake.calls)
	}
	head1, _ := s.Head(context.Background())
	head2, _ := s.Head(context.Background())
	if head1 != head2 || head1 != "deadbeef" {
		t.Errorf("HEAD diverged across runs: %q vs %q", head1, head2)
	}
}

func TestSync_DirtyTreeFails(t *testing.T) {
	dir := newExistingRepoDir(t)
	fake := newFakeRunner()
	fake.outputs["git status --porcelain"] = " M src/llama.cpp\n"

	s := NewSyncer(CheckoutSpec{Dir: dir}, fake.run)
	err := s.Sync(context.Background())
	if !errors.Is(err, ErrDirtyWorkingTree) {
		t.Fatalf("err = %v, want ErrDirtyWorkingTree", err)
	}
	if fake.calledWithPrefix("git fetch") {
		t.Error("fetch run despite dirty tree")
	}
}

func TestSync_DirtyTreeForced(t *testing.T) {
	dir := newExistingRepoDir(t)
	fake := newFakeRunner()
	fake.outputs["git status --porcelain"] = " M src/llama.cpp\n"

	s := NewSyncer(CheckoutSpec{Dir: dir, Force: true}, fake.run)
	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !fake.calledWithPrefix("git checkout --force FETCH_HEAD") {
		t.Errorf("forced checkout not run, calls: %v", fake.calls)
	}
}

func TestSync_FetchFailureClassified(t *testing.T) {
	dir := newExistingRepoDir(t)
	fake := newFakeRunner()
	fake.fail["git fetch"] = fmt.Errorf("exit status 128")

	s := NewSyncer(CheckoutSpec{Dir: dir, Ref: "no-such-ref"}, fake.run)
	err := s.Sync(context.Background())
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}

	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("err is not *SyncError: %T", err)
	}
	if syncErr.Op != "fetch" || syncErr.Ref != "no-such-ref" {
		t.Errorf("SyncError = {Op: %q, Ref: %q}, want {fetch, no-such-ref}", syncErr.Op, syncErr.Ref)
	}
	if syncErr.Output == "" {
		t.Error("SyncError.Output empty, want captured git output")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	spec := CheckoutSpec{Dir: "x"}.Normalize()
	if spec.Remote != DefaultRemote {
		t.Errorf("Remote = %q, want %q", spec.Remote, DefaultRemote)
	}
	if spec.Ref != DefaultRef {
		t.Errorf("Ref = %q, want %q", spec.Ref, DefaultRef)
	}
	if spec.FetchJobs != DefaultFetchJobs {
		t.Errorf("FetchJobs = %d, want %d", spec.FetchJobs, DefaultFetchJobs)
	}
	if spec.Depth != 0 {
		t.Errorf("Depth = %d, want 0 (full history)", spec.Depth)
	}
}
