package repo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/offcut-io/hipforge/log"
)

// DiffbaseTag marks the checked-out upstream commit. It is re-pointed on
// every sync so local development always has a known integration base.
const DiffbaseTag = "HIPFORGE_UPSTREAM_DIFFBASE"

// Defaults for CheckoutSpec fields left zero by the caller.
const (
	DefaultRemote    = "https://github.com/ggml-org/llama.cpp.git"
	DefaultRef       = "master"
	DefaultFetchJobs = 10
)

// CheckoutSpec describes the desired state of the local source tree.
// Zero-value fields are filled from defaults by Normalize.
type CheckoutSpec struct {
	// Remote is the git URL to fetch from.
	Remote string
	// Dir is the local working tree path.
	Dir string
	// Ref is the branch, tag, or commit to check out.
	Ref string
	// Depth bounds the history fetched. Zero fetches full history.
	Depth int
	// FetchJobs is the parallel fetch job count passed to git.
	FetchJobs int
	// Force discards local modifications instead of failing the sync.
	// Policy: the default is to hard-fail on a dirty tree; forcing is
	// an explicit, logged decision.
	Force bool
}

// Normalize fills unset fields with defaults and returns the spec.
func (s CheckoutSpec) Normalize() CheckoutSpec {
	if s.Remote == "" {
		s.Remote = DefaultRemote
	}
	if s.Ref == "" {
		s.Ref = DefaultRef
	}
	if s.FetchJobs == 0 {
		s.FetchJobs = DefaultFetchJobs
	}
	return s
}

// CommandRunner executes a command in dir and returns its combined output.
// Injected for testing; the default runs the real process.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecRunner is the default CommandRunner backed by exec.CommandContext.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = nil
	return cmd.CombinedOutput()
}

// Syncer ensures a local working tree matches a CheckoutSpec.
type Syncer struct {
	spec   CheckoutSpec
	run    CommandRunner
	logger *log.SugaredLogger
}

// NewSyncer creates a Syncer for the given spec.
// A nil runner uses ExecRunner.
func NewSyncer(spec CheckoutSpec, runner CommandRunner) *Syncer {
	if runner == nil {
		runner = ExecRunner
	}
	return &Syncer{
		spec:   spec.Normalize(),
		run:    runner,
		logger: log.NewLogger("checkout").Sugar(),
	}
}

// Sync brings the working tree to the resolved ref. Idempotent: re-running
// against an already-satisfied tree fetches (cheap when up to date) and
// re-checks out the same commit.
func (s *Syncer) Sync(ctx context.Context) error {
	fresh, err := s.ensureRepo(ctx)
	if err != nil {
		return err
	}

	if !fresh {
		dirty, err := s.isDirty(ctx)
		if err != nil {
			return err
		}
		if dirty {
			if !s.spec.Force {
				return newSyncError(ErrDirtyWorkingTree, "checkout", s.spec.Ref, "",
					fmt.Errorf("refusing to discard local changes in %s (use --force)", s.spec.Dir))
			}
			s.logger.Warnf("discarding local modifications in %s (--force)", s.spec.Dir)
		}
	}

	if err := s.fetch(ctx); err != nil {
		return err
	}
	if err := s.checkoutFetchHead(ctx); err != nil {
		return err
	}
	if err := s.tagDiffbase(ctx); err != nil {
		return err
	}

	head, err := s.Head(ctx)
	if err != nil {
		return err
	}
	s.logger.Infof("checked out %s at %s", s.spec.Ref, head)
	return nil
}

// ensureRepo initializes the repository when absent and points origin at the
// configured remote. Returns true when the repository was freshly created.
func (s *Syncer) ensureRepo(ctx context.Context) (bool, error) {
	gitDir := filepath.Join(s.spec.Dir, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		s.logger.Debugf("not cloning, %s exists", gitDir)
		if out, err := s.run(ctx, s.spec.Dir, "git", "remote", "set-url", "origin", s.spec.Remote); err != nil {
			return false, newSyncError(ErrFetch, "remote set-url", "", string(out), err)
		}
		return false, nil
	}

	s.logger.Infof("initializing repository in %s", s.spec.Dir)
	if err := os.MkdirAll(s.spec.Dir, 0o755); err != nil {
		return false, newSyncError(ErrFetch, "init", "", "", err)
	}
	steps := [][]string{
		{"init", "--initial-branch=main"},
		{"config", "advice.detachedHead", "false"},
		{"remote", "add", "origin", s.spec.Remote},
	}
	for _, args := range steps {
		if out, err := s.run(ctx, s.spec.Dir, "git", args...); err != nil {
			return false, newSyncError(ErrFetch, args[0], "", string(out), err)
		}
	}
	return true, nil
}

// isDirty reports whether the working tree has uncommitted modifications.
func (s *Syncer) isDirty(ctx context.Context) (bool, error) {
	out, err := s.run(ctx, s.spec.Dir, "git", "status", "--porcelain")
	if err != nil {
		return false, newSyncError(ErrFetch, "status", "", string(out), err)
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}

func (s *Syncer) fetch(ctx context.Context) error {
	args := []string{"fetch"}
	if s.spec.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(s.spec.Depth))
	}
	if s.spec.FetchJobs > 0 {
		args = append(args, "-j", strconv.Itoa(s.spec.FetchJobs))
	}
	args = append(args, "origin", s.spec.Ref)

	s.logger.Infof("fetching %s from %s", s.spec.Ref, s.spec.Remote)
	if out, err := s.run(ctx, s.spec.Dir, "git", args...); err != nil {
		return newSyncError(ErrFetch, "fetch", s.spec.Ref, string(out), err)
	}
	return nil
}

func (s *Syncer) checkoutFetchHead(ctx context.Context) error {
	args := []string{"checkout"}
	if s.spec.Force {
		args = append(args, "--force")
	}
	args = append(args, "FETCH_HEAD")
	if out, err := s.run(ctx, s.spec.Dir, "git", args...); err != nil {
		return newSyncError(ErrFetch, "checkout", s.spec.Ref, string(out), err)
	}
	return nil
}

func (s *Syncer) tagDiffbase(ctx context.Context) error {
	if out, err := s.run(ctx, s.spec.Dir, "git", "tag", "-f", DiffbaseTag, "--no-sign"); err != nil {
		return newSyncError(ErrFetch, "tag", DiffbaseTag, string(out), err)
	}
	return nil
}

// Head returns the commit hash the working tree is currently checked out at.
func (s *Syncer) Head(ctx context.Context) (string, error) {
	out, err := s.run(ctx, s.spec.Dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", newSyncError(ErrFetch, "rev-parse", "HEAD", string(out), err)
	}
	return strings.TrimSpace(string(out)), nil
}
