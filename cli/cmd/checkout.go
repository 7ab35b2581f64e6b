package cmd

import (
	"fmt"

	"github.com/offcut-io/hipforge/repo"
	"github.com/urfave/cli/v2"
)

// DefaultSourceDir is the project-relative llama.cpp working tree.
const DefaultSourceDir = "./llama.cpp"

// CheckoutCommand returns the checkout command.
// It syncs the llama.cpp source tree to the pinned ref.
func CheckoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "checkout",
		Usage: "Sync the llama.cpp source tree to a pinned ref",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.StringFlag{
				Name:  "repo",
				Usage: "Local working tree path",
			},
			&cli.StringFlag{
				Name:  "ref",
				Usage: "Branch, tag, or commit to check out",
			},
			&cli.StringFlag{
				Name:  "remote",
				Usage: "Git repository URL",
			},
			&cli.IntFlag{
				Name:  "depth",
				Usage: "Shallow fetch depth (0 = full history)",
			},
			&cli.IntFlag{
				Name:  "fetch-jobs",
				Usage: "Parallel fetch job count",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Discard local modifications instead of failing",
			},
		},
		Action: checkoutAction,
	}
}

func checkoutAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	spec := repo.CheckoutSpec{
		Remote:    stringOr(c, "remote", cfg.Checkout.Remote, ""),
		Dir:       stringOr(c, "repo", cfg.Checkout.Dir, DefaultSourceDir),
		Ref:       stringOr(c, "ref", cfg.Checkout.Ref, ""),
		Depth:     intOr(c, "depth", cfg.Checkout.Depth, 0),
		FetchJobs: intOr(c, "fetch-jobs", cfg.Checkout.FetchJobs, 0),
		Force:     c.Bool("force"),
	}

	syncer := repo.NewSyncer(spec, nil)
	if err := syncer.Sync(c.Context); err != nil {
		return cli.Exit(fmt.Sprintf("checkout failed: %v", err), exitPipelineError)
	}
	return nil
}
