// Package main provides the hipforge CLI entrypoint.
//
// hipforge orchestrates building and validating llama.cpp against a locally
// installed ROCm SDK:
//
//	hipforge checkout   sync the source tree to a pinned ref
//	hipforge probe      discover the SDK root and GPU targets
//	hipforge build      cmake configure + compile with derived parameters
//	hipforge test       run the produced test binaries under the skip policy
//
// Exit codes:
//   - 0: success
//   - 1: one or more non-skipped tests failed
//   - 2: pipeline error (fetch, SDK discovery, build, test discovery)
//   - 3: invalid arguments or config
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/offcut-io/hipforge/cli/cmd"
	"github.com/urfave/cli/v2"
)

// commit is set at link time via -ldflags "-X main.commit=...".
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:    "hipforge",
		Usage:   "Build and validate llama.cpp against a local ROCm install",
		Version: cmd.Version,
		Commands: []*cli.Command{
			cmd.CheckoutCommand(),
			cmd.ProbeCommand(),
			cmd.BuildCommand(),
			cmd.TestCommand(),
			cmd.VersionCommand(commit),
		},
		ExitErrHandler: exitErrHandler,
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit; this branch is only
		// reached if it didn't.
		os.Exit(2)
	}
}

// exitErrHandler handles errors from the CLI, respecting cli.ExitCoder.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(2)
}
