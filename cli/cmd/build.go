package cmd

import (
	"fmt"
	"strings"

	"github.com/offcut-io/hipforge/build"
	"github.com/offcut-io/hipforge/log"
	"github.com/offcut-io/hipforge/rocm"
	"github.com/urfave/cli/v2"
)

// BuildCommand returns the build command.
// It derives the native build parameters from the probed SDK plus flag
// overrides and drives CMake configure + compile.
func BuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Configure and compile llama.cpp for the discovered GPU targets",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.StringFlag{
				Name:  "rocm",
				Usage: "ROCm installation root (default: auto-discovered)",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "llama.cpp source tree path",
			},
			&cli.StringFlag{
				Name:  "build-dir",
				Usage: "Build output path (default: <source>/build)",
			},
			&cli.StringFlag{
				Name:  "build-type",
				Usage: "CMake build type (Release, Debug, ...)",
			},
			&cli.StringSliceFlag{
				Name:  "targets",
				Usage: "GPU targets to compile for (default: auto-discovered)",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "Parallel compile jobs (0 = native default)",
			},
			&cli.BoolFlag{
				Name:  "curl",
				Usage: "Enable libcurl HTTP transfer support",
			},
			&cli.BoolFlag{
				Name:  "openssl",
				Usage: "Enable TLS via system OpenSSL",
			},
			&cli.BoolFlag{
				Name:  "llguidance",
				Usage: "Enable LLGuidance constrained decoding",
			},
			&cli.BoolFlag{
				Name:  "clean",
				Usage: "Remove the build directory before configuring (destructive)",
			},
		},
		Action: buildAction,
	}
}

func buildAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	rootOverride := stringOr(c, "rocm", cfg.Build.RocmDir, "")
	targetFallback := sliceOr(c, "targets", cfg.Build.Targets)
	sdk, err := rocm.NewProbe(nil).Discover(c.Context, rootOverride, targetFallback)
	if err != nil {
		return cli.Exit(fmt.Sprintf("build aborted: %v", err), exitPipelineError)
	}

	overrides := build.Config{
		SourceDir: stringOr(c, "source", cfg.Checkout.Dir, DefaultSourceDir),
		BuildDir:  stringOr(c, "build-dir", cfg.Build.BuildDir, ""),
		BuildType: stringOr(c, "build-type", cfg.Build.BuildType, ""),
		Targets:   sliceOr(c, "targets", cfg.Build.Targets),
		Toggles: build.Toggles{
			Curl:       boolOr(c, "curl", cfg.Build.Curl),
			OpenSSL:    boolOr(c, "openssl", cfg.Build.OpenSSL),
			LLGuidance: boolOr(c, "llguidance", cfg.Build.LLGuidance),
		},
		Jobs:  intOr(c, "jobs", cfg.Build.Jobs, 0),
		Clean: c.Bool("clean"),
	}

	derived, unknown := build.Derive(sdk, overrides)
	if len(unknown) > 0 {
		log.NewLogger("build").Sugar().Warnf(
			"targets %s not reported by the SDK probe, building anyway (explicit override)",
			strings.Join(unknown, ","))
	}

	o := build.NewOrchestrator(sdk, derived, nil, nil)
	if err := o.Build(c.Context); err != nil {
		return cli.Exit(fmt.Sprintf("build failed: %v", err), exitPipelineError)
	}
	return nil
}
