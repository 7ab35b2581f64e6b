// Package rocm discovers the local ROCm SDK installation and the GPU
// targets usable on the current machine.
package rocm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/offcut-io/hipforge/log"
)

// ErrSDKNotFound indicates no structurally valid ROCm installation could be
// located. Use errors.Is(err, ErrSDKNotFound) for typed assertions.
var ErrSDKNotFound = errors.New("ROCm SDK not found")

// DefaultRoot is the conventional ROCm install location.
const DefaultRoot = "/opt/rocm"

// FallbackTarget keeps the pipeline usable when agent enumeration reports
// nothing, e.g. on build machines without a GPU.
const FallbackTarget = "gfx1100"

// SDK is the immutable accelerator context consumed by the build stage.
// Constructed once per invocation by Probe.Discover; never read from
// ambient global state.
type SDK struct {
	// Root is the ROCm installation root.
	Root string
	// Targets are the GPU architectures usable on this machine.
	// Non-empty: enumeration falls back to a default rather than failing.
	Targets []string
}

// HipClang returns the path to the ROCm clang used as HIPCXX.
func (s *SDK) HipClang() string {
	return filepath.Join(s.Root, "llvm", "bin", "clang")
}

// DeviceLibDir returns the HIP device bitcode library directory.
func (s *SDK) DeviceLibDir() string {
	return filepath.Join(s.Root, "lib", "llvm", "amdgcn", "bitcode")
}

// LibDir returns the ROCm shared library directory used for RPATH fixup.
func (s *SDK) LibDir() string {
	return filepath.Join(s.Root, "lib")
}

// CommandRunner executes a command and returns its combined output.
// Injected for testing; the default runs the real process.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Probe queries the installed SDK. All queries are read-only.
type Probe struct {
	run    CommandRunner
	logger *log.SugaredLogger
}

// NewProbe creates a Probe. A nil runner uses the real process runner.
func NewProbe(runner CommandRunner) *Probe {
	if runner == nil {
		runner = execRunner
	}
	return &Probe{
		run:    runner,
		logger: log.NewLogger("probe").Sugar(),
	}
}

// Discover resolves the SDK root and enumerates GPU targets.
//
// Root resolution order: explicit override > `hipconfig --rocmpath` >
// DefaultRoot. Returns ErrSDKNotFound when none resolve to a structurally
// valid installation. Target enumeration is best-effort: zero reported
// targets fall back to fallbackTargets (else FallbackTarget) with a warning.
func (p *Probe) Discover(ctx context.Context, rootOverride string, fallbackTargets []string) (*SDK, error) {
	root, err := p.resolveRoot(ctx, rootOverride)
	if err != nil {
		return nil, err
	}

	targets := p.enumerateTargets(ctx, root)
	if len(targets) == 0 {
		targets = fallbackTargets
		if len(targets) == 0 {
			targets = []string{FallbackTarget}
		}
		p.logger.Warnf("no GPU agents reported, falling back to %s", strings.Join(targets, ","))
	}

	sdk := &SDK{Root: root, Targets: targets}
	p.logger.Infof("ROCm SDK at %s, targets: %s", root, strings.Join(targets, ","))
	return sdk, nil
}

func (p *Probe) resolveRoot(ctx context.Context, override string) (string, error) {
	if override != "" {
		if err := validateRoot(override); err != nil {
			return "", err
		}
		return override, nil
	}

	if out, err := p.run(ctx, "hipconfig", "--rocmpath"); err == nil {
		root := strings.TrimSpace(string(out))
		if root != "" {
			if err := validateRoot(root); err == nil {
				p.logger.Debugf("hipconfig reports ROCm at %s", root)
				return root, nil
			}
			p.logger.Warnf("hipconfig reports %s but it is not a usable installation", root)
		}
	}

	if err := validateRoot(DefaultRoot); err != nil {
		return "", err
	}
	return DefaultRoot, nil
}

// validateRoot checks the directory holds the runtime artifacts the build
// needs: a bin directory and the HIP clang compiler.
func validateRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s does not exist", ErrSDKNotFound, root)
	}
	if _, err := os.Stat(filepath.Join(root, "bin")); err != nil {
		return fmt.Errorf("%w: %s has no bin directory", ErrSDKNotFound, root)
	}
	hipClang := filepath.Join(root, "llvm", "bin", "clang")
	if _, err := os.Stat(hipClang); err != nil {
		return fmt.Errorf("%w: HIP compiler not found at %s", ErrSDKNotFound, hipClang)
	}
	return nil
}

// enumerateTargets invokes rocm_agent_enumerator and parses one target per
// line. gfx000 is the CPU agent placeholder and is dropped.
func (p *Probe) enumerateTargets(ctx context.Context, root string) []string {
	enumerator := filepath.Join(root, "bin", "rocm_agent_enumerator")
	out, err := p.run(ctx, enumerator)
	if err != nil {
		p.logger.Warnf("agent enumeration failed: %v", err)
		return nil
	}

	var targets []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		target := strings.TrimSpace(line)
		if target == "" || target == "gfx000" || seen[target] {
			continue
		}
		seen[target] = true
		targets = append(targets, target)
	}
	return targets
}
