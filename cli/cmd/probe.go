package cmd

import (
	"fmt"

	"github.com/offcut-io/hipforge/cli/render"
	"github.com/offcut-io/hipforge/rocm"
	"github.com/urfave/cli/v2"
)

// ProbeResponse is the rendered result of SDK discovery.
type ProbeResponse struct {
	Root    string   `json:"root"`
	Targets []string `json:"targets"`
}

// ProbeCommand returns the probe command.
// Read-only: reports the discovered ROCm installation and GPU targets.
func ProbeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Discover the ROCm SDK and usable GPU targets",
		Flags: []cli.Flag{
			ConfigFlag,
			FormatFlag,
			&cli.StringFlag{
				Name:  "rocm",
				Usage: "ROCm installation root (default: auto-discovered)",
			},
		},
		Action: probeAction,
	}
}

func probeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	rootOverride := stringOr(c, "rocm", cfg.Build.RocmDir, "")
	sdk, err := rocm.NewProbe(nil).Discover(c.Context, rootOverride, cfg.Build.Targets)
	if err != nil {
		return cli.Exit(fmt.Sprintf("probe failed: %v", err), exitPipelineError)
	}

	return r.Render(ProbeResponse{Root: sdk.Root, Targets: sdk.Targets})
}
