package testrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/offcut-io/hipforge/iox"
	"github.com/offcut-io/hipforge/log"
)

// Status is one test's terminal state.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome is the recorded result of one discovered binary.
type Outcome struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	// Reason is set for skipped outcomes: the matching rule's reason.
	Reason string `json:"reason,omitempty"`
	// ExitCode is the process exit status for executed binaries.
	ExitCode int `json:"exit_code"`
	// Output is the captured combined output, retained for failures.
	Output string `json:"output,omitempty"`
	// DurationMs is the wall time of an executed binary.
	DurationMs int64 `json:"duration_ms"`
}

// Summary aggregates one test invocation. Invariant:
// Passed + Failed + Skipped equals the number of discovered binaries.
type Summary struct {
	Passed  int       `json:"passed"`
	Failed  int       `json:"failed"`
	Skipped int       `json:"skipped"`
	Results []Outcome `json:"results"`
	// LogPath is the persisted combined log, when requested.
	LogPath string `json:"log_path,omitempty"`
}

// Total returns the number of discovered binaries covered by the summary.
func (s *Summary) Total() int {
	return s.Passed + s.Failed + s.Skipped
}

// Failures returns the failed outcomes in run order.
func (s *Summary) Failures() []Outcome {
	var out []Outcome
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// BinaryRunner executes a test binary with cwd dir, returning combined
// output and exit code. A non-nil error means the binary could not be
// executed at all. Injected for testing.
type BinaryRunner func(ctx context.Context, dir, path string) ([]byte, int, error)

func execBinaryRunner(ctx context.Context, dir, path string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = dir
	cmd.Stdin = nil
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, exitErr.ExitCode(), nil
		}
		return out, -1, err
	}
	return out, 0, nil
}

// Runner executes runnable binaries sequentially and aggregates a Summary.
// Sequential execution keeps run order deterministic and log output
// attributable to one test at a time.
type Runner struct {
	policy *Policy
	binDir string
	run    BinaryRunner
	logger *log.SugaredLogger
}

// NewRunner creates a Runner. A nil runner uses the real process runner.
func NewRunner(policy *Policy, binDir string, runner BinaryRunner) *Runner {
	if runner == nil {
		runner = execBinaryRunner
	}
	return &Runner{
		policy: policy,
		binDir: binDir,
		run:    runner,
		logger: log.NewLogger("test").Sugar(),
	}
}

// Run executes every runnable binary, continuing past individual failures
// so the summary is a complete picture. When logPath is non-empty the full
// combined log of all executed tests is persisted there.
func (r *Runner) Run(ctx context.Context, binaries []Binary, logPath string) (*Summary, error) {
	var logW io.Writer = io.Discard
	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			return nil, fmt.Errorf("create log file %s: %w", logPath, err)
		}
		defer iox.DiscardClose(f)
		logW = f
	}

	summary := &Summary{LogPath: logPath}
	for _, binary := range binaries {
		summary.record(r.runOne(ctx, binary, logW))
	}

	r.logger.Infof("%d passed, %d failed, %d skipped of %d tests",
		summary.Passed, summary.Failed, summary.Skipped, summary.Total())
	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, binary Binary, logW io.Writer) Outcome {
	if skip, reason := r.policy.Evaluate(binary.Name); skip {
		r.logger.Infof("-- Skipping %s: %s", binary.Name, reason)
		fmt.Fprintf(logW, "-- Skipping %s: %s\n", binary.Name, reason)
		return Outcome{Name: binary.Name, Status: StatusSkipped, Reason: reason}
	}

	r.logger.Infof("++ Running %s", binary.Name)
	fmt.Fprintf(logW, "++ Running %s\n", binary.Name)

	start := time.Now()
	out, exitCode, err := r.run(ctx, r.binDir, binary.Path)
	elapsed := time.Since(start)
	logW.Write(out)

	outcome := Outcome{
		Name:       binary.Name,
		ExitCode:   exitCode,
		Output:     string(out),
		DurationMs: elapsed.Milliseconds(),
	}
	switch {
	case err != nil:
		outcome.Status = StatusFailed
		// Keep any partial output the binary produced before the failure.
		if outcome.Output != "" {
			outcome.Output += "\n"
		}
		outcome.Output += fmt.Sprintf("failed to execute: %v", err)
		r.logger.Errorf("[FAIL] %s could not be executed: %v", binary.Name, err)
		fmt.Fprintf(logW, "[FAIL] %s could not be executed: %v\n", binary.Name, err)
	case exitCode != 0:
		outcome.Status = StatusFailed
		r.logger.Errorf("[FAIL] %s exited with code %d", binary.Name, exitCode)
		fmt.Fprintf(logW, "[FAIL] %s exited with code %d\n", binary.Name, exitCode)
	default:
		outcome.Status = StatusPassed
		outcome.Output = "" // retain output for failures only
		r.logger.Infof("[OK] %s ran successfully", binary.Name)
		fmt.Fprintf(logW, "[OK] %s ran successfully\n", binary.Name)
	}
	return outcome
}

func (s *Summary) record(o Outcome) {
	s.Results = append(s.Results, o)
	switch o.Status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	}
}
