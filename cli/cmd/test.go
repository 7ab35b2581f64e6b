package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/offcut-io/hipforge/cli/render"
	"github.com/offcut-io/hipforge/log"
	"github.com/offcut-io/hipforge/rocm"
	"github.com/offcut-io/hipforge/testrun"
	"github.com/urfave/cli/v2"
)

// EnvSuite selects the test suite when the --suite flag is not given.
const EnvSuite = "TEST_TYPE"

// TestResponse is the rendered run summary.
type TestResponse struct {
	Suite    string   `json:"suite"`
	Total    int      `json:"total"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
	Failures []string `json:"failures,omitempty"`
	LogPath  string   `json:"log_path,omitempty"`
}

// TestCommand returns the test command.
// It discovers built test binaries, applies the skip policy, executes the
// runnable ones sequentially, and reports an aggregated summary.
func TestCommand() *cli.Command {
	return &cli.Command{
		Name:  "test",
		Usage: "Run the built llama.cpp test binaries",
		Flags: []cli.Flag{
			ConfigFlag,
			FormatFlag,
			&cli.StringFlag{
				Name:    "build-dir",
				Usage:   "Build output path holding bin/ with test binaries",
				EnvVars: []string{testrun.EnvBuildDir},
			},
			&cli.StringFlag{
				Name:    "suite",
				Usage:   "Test suite: full or smoke",
				EnvVars: []string{EnvSuite},
			},
			&cli.StringSliceFlag{
				Name:  "targets",
				Usage: "Active GPU targets for skip-rule scoping (default: auto-discovered)",
			},
			&cli.StringFlag{
				Name:  "save-log",
				Usage: "Persist the full combined test log to this file",
			},
		},
		Action: testAction,
	}
}

func testAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	suite := stringOr(c, "suite", cfg.Test.Suite, "full")
	if suite != "full" && suite != "smoke" {
		return cli.Exit(fmt.Sprintf("invalid suite %q (must be full or smoke)", suite), exitInvalidInput)
	}

	buildDir := stringOr(c, "build-dir", cfg.Build.BuildDir, "")
	if buildDir == "" {
		source := cfg.Checkout.Dir
		if source == "" {
			source = DefaultSourceDir
		}
		buildDir = filepath.Join(source, "build")
	}
	binDir := testrun.BinDir(buildDir)

	binaries, err := testrun.Discover(binDir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("test discovery failed: %v", err), exitPipelineError)
	}
	if suite == "smoke" {
		binaries = testrun.FilterSmoke(binaries)
	}

	logger := log.NewLogger("test").Sugar()
	if len(binaries) == 0 {
		logger.Warnf("no matching tests found in %s", binDir)
	}

	policy := testrun.NewPolicy(cfg.Test.Rules(), runtime.GOOS, activeTargets(c, cfg.Build.Targets, cfg.Build.RocmDir))
	runner := testrun.NewRunner(policy, binDir, nil)

	logPath := stringOr(c, "save-log", cfg.Test.SaveLog, "")
	summary, err := runner.Run(c.Context, binaries, logPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("test run failed: %v", err), exitPipelineError)
	}

	resp := TestResponse{
		Suite:   suite,
		Total:   summary.Total(),
		Passed:  summary.Passed,
		Failed:  summary.Failed,
		Skipped: summary.Skipped,
		LogPath: summary.LogPath,
	}
	for _, f := range summary.Failures() {
		resp.Failures = append(resp.Failures, f.Name)
	}
	if err := r.Render(resp); err != nil {
		return err
	}

	for _, f := range summary.Failures() {
		fmt.Fprintf(os.Stderr, "--- %s (exit %d)\n%s\n", f.Name, f.ExitCode, f.Output)
	}

	// Skips never fail the run; only executed failures do.
	if summary.Failed > 0 {
		return cli.Exit("", exitTestFailures)
	}
	return nil
}

// activeTargets resolves the GPU targets used for skip-rule scoping.
// Explicit flag or config wins; otherwise a best-effort probe. A machine
// with no discoverable SDK runs with no target-scoped skips.
func activeTargets(c *cli.Context, cfgTargets []string, cfgRocmDir string) []string {
	if targets := sliceOr(c, "targets", cfgTargets); len(targets) > 0 {
		return targets
	}
	sdk, err := rocm.NewProbe(nil).Discover(c.Context, cfgRocmDir, nil)
	if err != nil {
		return nil
	}
	return sdk.Targets
}
