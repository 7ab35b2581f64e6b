package cmd

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
)

// newTestApp builds the app with a no-op exit handler so tests observe
// ExitCoder errors instead of the process exiting.
func newTestApp() *cli.App {
	return &cli.App{
		Name: "hipforge",
		Commands: []*cli.Command{
			CheckoutCommand(),
			ProbeCommand(),
			BuildCommand(),
			TestCommand(),
			VersionCommand("deadbeef"),
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// captureStdout runs fn with os.Stdout redirected and returns its output.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	w.Close()
	data, _ := io.ReadAll(r)
	return string(data)
}

// newBuildTree lays out a build dir with scripted test binaries.
func newBuildTree(t *testing.T, scripts map[string]string) string {
	t.Helper()
	buildDir := filepath.Join(t.TempDir(), "build")
	binDir := filepath.Join(buildDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(binDir, name), []byte(body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return buildDir
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var coder cli.ExitCoder
	if !errors.As(err, &coder) {
		t.Fatalf("err is not an ExitCoder: %v", err)
	}
	return coder.ExitCode()
}

func TestTestCommand_AllPass(t *testing.T) {
	buildDir := newBuildTree(t, map[string]string{
		"test-alloc": "#!/bin/sh\nexit 0\n",
		"test-gguf":  "#!/bin/sh\nexit 0\n",
	})

	var runErr error
	out := captureStdout(t, func() {
		runErr = newTestApp().Run([]string{"hipforge", "test",
			"--build-dir", buildDir, "--targets", "gfx1100", "--format", "json"})
	})
	if code := exitCode(t, runErr); code != 0 {
		t.Fatalf("exit code = %d, want 0: %v", code, runErr)
	}

	var resp TestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("output not JSON: %v\n%s", err, out)
	}
	if resp.Passed != 2 || resp.Failed != 0 || resp.Skipped != 0 {
		t.Errorf("resp = %+v, want 2 passed", resp)
	}
}

func TestTestCommand_FailureExitCode(t *testing.T) {
	buildDir := newBuildTree(t, map[string]string{
		"test-alloc":   "#!/bin/sh\nexit 0\n",
		"test-grammar": "#!/bin/sh\necho boom\nexit 1\n",
	})

	var runErr error
	out := captureStdout(t, func() {
		runErr = newTestApp().Run([]string{"hipforge", "test",
			"--build-dir", buildDir, "--targets", "gfx1100", "--format", "json"})
	})
	if code := exitCode(t, runErr); code != exitTestFailures {
		t.Fatalf("exit code = %d, want %d", code, exitTestFailures)
	}

	var resp TestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if resp.Failed != 1 || len(resp.Failures) != 1 || resp.Failures[0] != "test-grammar" {
		t.Errorf("resp = %+v, want test-grammar failure", resp)
	}
}

func TestTestCommand_SkipsDoNotFail(t *testing.T) {
	// Default rules skip test-backend-ops on gfx1030.
	buildDir := newBuildTree(t, map[string]string{
		"test-backend-ops": "#!/bin/sh\nexit 1\n", // would fail if executed
		"test-alloc":       "#!/bin/sh\nexit 0\n",
	})

	var runErr error
	out := captureStdout(t, func() {
		runErr = newTestApp().Run([]string{"hipforge", "test",
			"--build-dir", buildDir, "--targets", "gfx1030", "--format", "json"})
	})
	if code := exitCode(t, runErr); code != 0 {
		t.Fatalf("exit code = %d, want 0 (skips never fail the run): %v", code, runErr)
	}

	var resp TestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Skipped != 1 || resp.Passed != 1 || resp.Failed != 0 {
		t.Errorf("resp = %+v, want 1 passed 1 skipped", resp)
	}
}

func TestTestCommand_MissingBuildDir(t *testing.T) {
	runErr := newTestApp().Run([]string{"hipforge", "test",
		"--build-dir", filepath.Join(t.TempDir(), "absent"), "--targets", "gfx1100"})
	if code := exitCode(t, runErr); code != exitPipelineError {
		t.Fatalf("exit code = %d, want %d", code, exitPipelineError)
	}
}

func TestTestCommand_EmptyBinDirIsSuccess(t *testing.T) {
	buildDir := newBuildTree(t, nil)

	var runErr error
	out := captureStdout(t, func() {
		runErr = newTestApp().Run([]string{"hipforge", "test",
			"--build-dir", buildDir, "--targets", "gfx1100", "--format", "json"})
	})
	if code := exitCode(t, runErr); code != 0 {
		t.Fatalf("exit code = %d, want 0 for zero tests", code)
	}

	var resp TestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 {
		t.Errorf("Total = %d, want 0", resp.Total)
	}
}

func TestTestCommand_InvalidSuite(t *testing.T) {
	runErr := newTestApp().Run([]string{"hipforge", "test", "--suite", "nightly"})
	if code := exitCode(t, runErr); code != exitInvalidInput {
		t.Fatalf("exit code = %d, want %d", code, exitInvalidInput)
	}
}

func TestTestCommand_SmokeSuiteFilters(t *testing.T) {
	buildDir := newBuildTree(t, map[string]string{
		"test-alloc":       "#!/bin/sh\nexit 0\n", // smoke
		"test-backend-ops": "#!/bin/sh\nexit 0\n", // not smoke
	})

	var runErr error
	out := captureStdout(t, func() {
		runErr = newTestApp().Run([]string{"hipforge", "test",
			"--build-dir", buildDir, "--targets", "gfx1100", "--suite", "smoke", "--format", "json"})
	})
	if code := exitCode(t, runErr); code != 0 {
		t.Fatalf("exit code = %d: %v", code, runErr)
	}

	var resp TestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Suite != "smoke" {
		t.Errorf("resp = %+v, want 1 smoke test", resp)
	}
}

func TestTestCommand_EnvBuildDirOverride(t *testing.T) {
	buildDir := newBuildTree(t, map[string]string{
		"test-alloc": "#!/bin/sh\nexit 0\n",
	})
	t.Setenv("HIPFORGE_BUILD_DIR", buildDir)

	var runErr error
	out := captureStdout(t, func() {
		runErr = newTestApp().Run([]string{"hipforge", "test",
			"--targets", "gfx1100", "--format", "json"})
	})
	if code := exitCode(t, runErr); code != 0 {
		t.Fatalf("exit code = %d: %v", code, runErr)
	}

	var resp TestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Passed != 1 {
		t.Errorf("resp = %+v, want discovery via env override", resp)
	}
}

func TestTestCommand_ConfigSkipRules(t *testing.T) {
	buildDir := newBuildTree(t, map[string]string{
		"test-flaky": "#!/bin/sh\nexit 1\n",
	})
	cfgPath := filepath.Join(t.TempDir(), "hipforge.yaml")
	cfg := "test:\n  skip_rules:\n    - match: test-flaky\n      reason: tracked upstream\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	var runErr error
	out := captureStdout(t, func() {
		runErr = newTestApp().Run([]string{"hipforge", "test", "--config", cfgPath,
			"--build-dir", buildDir, "--targets", "gfx1100", "--format", "json"})
	})
	if code := exitCode(t, runErr); code != 0 {
		t.Fatalf("exit code = %d, want 0 (config rule skips the failing test): %v", code, runErr)
	}

	var resp TestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Skipped != 1 || resp.Failed != 0 {
		t.Errorf("resp = %+v, want config-driven skip", resp)
	}
}

func TestVersionCommand(t *testing.T) {
	var runErr error
	out := captureStdout(t, func() {
		runErr = newTestApp().Run([]string{"hipforge", "version", "--format", "json"})
	})
	if runErr != nil {
		t.Fatalf("version: %v", runErr)
	}

	var resp VersionResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if resp.Version != Version || resp.Commit != "deadbeef" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestProbeCommand_NoSDK(t *testing.T) {
	// Point discovery at a root that cannot exist.
	runErr := newTestApp().Run([]string{"hipforge", "probe",
		"--rocm", filepath.Join(t.TempDir(), "no-rocm")})
	if code := exitCode(t, runErr); code != exitPipelineError {
		t.Fatalf("exit code = %d, want %d", code, exitPipelineError)
	}
}
