// Package build derives native build parameters from the discovered ROCm
// context and drives the CMake configure and compile steps.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/offcut-io/hipforge/iox"
	"github.com/offcut-io/hipforge/log"
	"github.com/offcut-io/hipforge/rocm"
)

// DefaultBuildType is the CMake build type used when none is specified.
const DefaultBuildType = "Release"

// tailLines bounds the build output retained for failure diagnosis.
const tailLines = 50

// Toggles are the optional native build capabilities. All default to
// disabled; each maps to a single -D flag.
type Toggles struct {
	// Curl enables libcurl HTTP transfer support.
	Curl bool
	// OpenSSL enables TLS via the system OpenSSL library.
	OpenSSL bool
	// LLGuidance enables constrained-decoding grammar support.
	LLGuidance bool
}

// Config is the complete native-build parameter set. Immutable once
// constructed via Derive; consumed by Orchestrator.
type Config struct {
	// SourceDir is the synced llama.cpp source tree.
	SourceDir string
	// BuildDir receives all build output. Created if absent.
	BuildDir string
	// BuildType is the CMake build type (default Release).
	BuildType string
	// Targets are the GPU architectures to compile for.
	Targets []string
	// Toggles are the optional build capabilities.
	Toggles Toggles
	// Jobs is the parallel compile job count. Zero lets the native build
	// system pick.
	Jobs int
	// Clean removes the entire build directory before configuring.
	// Destructive and irreversible.
	Clean bool
}

// Derive fills a Config from the discovered SDK and caller overrides.
// Caller-set fields win over discovery. Returns the derived config and any
// overridden targets the probe did not report (empty unless the caller
// selected targets outside the discovered set).
func Derive(sdk *rocm.SDK, overrides Config) (Config, []string) {
	cfg := overrides
	if cfg.BuildType == "" {
		cfg.BuildType = DefaultBuildType
	}
	if cfg.BuildDir == "" && cfg.SourceDir != "" {
		cfg.BuildDir = filepath.Join(cfg.SourceDir, "build")
	}

	if len(cfg.Targets) == 0 {
		cfg.Targets = append([]string(nil), sdk.Targets...)
		return cfg, nil
	}

	known := make(map[string]bool, len(sdk.Targets))
	for _, t := range sdk.Targets {
		known[t] = true
	}
	var unknown []string
	for _, t := range cfg.Targets {
		if !known[t] {
			unknown = append(unknown, t)
		}
	}
	return cfg, unknown
}

// CommandRunner starts a command with the given environment and streams its
// combined output to w. Injected for testing; the default runs the real
// process.
type CommandRunner func(ctx context.Context, env []string, w io.Writer, name string, args ...string) error

func execRunner(ctx context.Context, env []string, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.Stdin = nil
	return cmd.Run()
}

// Orchestrator invokes the native build with a derived Config.
type Orchestrator struct {
	sdk    *rocm.SDK
	cfg    Config
	run    CommandRunner
	out    io.Writer
	logger *log.SugaredLogger
}

// NewOrchestrator creates an Orchestrator. A nil runner uses the real
// process runner; a nil out streams build output to os.Stdout.
func NewOrchestrator(sdk *rocm.SDK, cfg Config, runner CommandRunner, out io.Writer) *Orchestrator {
	if runner == nil {
		runner = execRunner
	}
	if out == nil {
		out = os.Stdout
	}
	return &Orchestrator{
		sdk:    sdk,
		cfg:    cfg,
		run:    runner,
		out:    out,
		logger: log.NewLogger("build").Sugar(),
	}
}

// Build runs configure then compile. Any nonzero exit is fatal and surfaces
// as a *BuildError carrying the output tail; no retry, no partial recovery.
func (o *Orchestrator) Build(ctx context.Context) error {
	if _, err := os.Stat(o.cfg.SourceDir); err != nil {
		return fmt.Errorf("source tree %s does not exist, run checkout first: %w", o.cfg.SourceDir, err)
	}

	if o.cfg.Clean {
		o.logger.Warnf("removing build directory %s (--clean)", o.cfg.BuildDir)
		if err := os.RemoveAll(o.cfg.BuildDir); err != nil {
			return fmt.Errorf("clean %s: %w", o.cfg.BuildDir, err)
		}
	}
	if err := os.MkdirAll(o.cfg.BuildDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", o.cfg.BuildDir, err)
	}

	env := o.buildEnv()
	o.logger.Infof("configuring in %s for targets %s", o.cfg.BuildDir, strings.Join(o.cfg.Targets, ";"))
	if err := o.step(ctx, env, "configure", o.configureArgs()); err != nil {
		return err
	}

	o.logger.Infof("compiling in %s", o.cfg.BuildDir)
	if err := o.step(ctx, env, "compile", o.compileArgs()); err != nil {
		return err
	}

	o.logger.Infof("build complete in %s", o.cfg.BuildDir)
	return nil
}

// step runs one cmake invocation, teeing output to the configured writer
// and a bounded tail for error reporting.
func (o *Orchestrator) step(ctx context.Context, env []string, name string, args []string) error {
	tail := iox.NewTailBuffer(tailLines)
	w := io.MultiWriter(o.out, tail)
	if err := o.run(ctx, env, w, "cmake", args...); err != nil {
		return &BuildError{Step: name, OutputTail: tail.String(), Err: err}
	}
	return nil
}

// buildEnv extends the process environment with the ROCm variables the HIP
// toolchain requires. Scoped to the child processes, never set globally.
func (o *Orchestrator) buildEnv() []string {
	return append(os.Environ(),
		"ROCM_PATH="+o.sdk.Root,
		"HIP_DEVICE_LIB_PATH="+o.sdk.DeviceLibDir(),
		"HIPCXX="+o.sdk.HipClang(),
	)
}

func (o *Orchestrator) configureArgs() []string {
	return []string{
		"-S", o.cfg.SourceDir,
		"-B", o.cfg.BuildDir,
		"-DGPU_TARGETS=" + strings.Join(o.cfg.Targets, ";"),
		"-DCMAKE_BUILD_TYPE=" + o.cfg.BuildType,
		"-DLLAMA_CURL=" + onOff(o.cfg.Toggles.Curl),
		"-DLLAMA_OPENSSL=" + onOff(o.cfg.Toggles.OpenSSL),
		"-DLLAMA_LLGUIDANCE=" + onOff(o.cfg.Toggles.LLGuidance),
		"-DHIP_PLATFORM=amd",
		"-DGGML_HIP=ON",
		// rocWMMA fused attention is disabled until the toolchain ships it.
		"-DGGML_HIP_ROCWMMA_FATTN=OFF",
		// RPATH fixup so binaries find ROCm shared libraries at runtime.
		"-DCMAKE_BUILD_RPATH=" + o.sdk.LibDir(),
		"-DCMAKE_INSTALL_RPATH=" + o.sdk.LibDir(),
	}
}

func (o *Orchestrator) compileArgs() []string {
	args := []string{"--build", o.cfg.BuildDir, "--config", o.cfg.BuildType}
	if o.cfg.Jobs > 0 {
		args = append(args, "--", "-j"+strconv.Itoa(o.cfg.Jobs))
	}
	return args
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}
	return "OFF"
}
