package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackbox-fetch/shipyard/pkg/config"
	"github.com/blackbox-fetch/shipyard/pkg/forge"
	"github.com/blackbox-fetch/shipyard/pkg/gitrepo"
	"github.com/blackbox-fetch/shipyard/pkg/pipeline"
)

func newReleaseCmd() *cobra.Command {
	var dryRun bool
	var token string

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Run the full release pipeline on the current release branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cfg, err := openProject(cmd)
			if err != nil {
				return err
			}

			var releaser pipeline.Releaser
			if !dryRun {
				client, err := forge.NewClient(cfg.Forge.BaseURL, cfg.Forge.Owner, cfg.Forge.Repo, token)
				if err != nil {
					return err
				}
				releaser = client
			}

			runner := &pipeline.Runner{
				Cfg:    cfg,
				Repo:   repo,
				Forge:  releaser,
				Log:    log,
				DryRun: dryRun,
			}
			if err := runner.Run(cmd.Context()); err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "dry run complete; no state persisted")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "build and package, stop before persisting anything")
	cmd.Flags().StringVar(&token, "token", "", "forge API token (default: SHIPYARD_TOKEN)")
	return cmd
}

// openProject opens the enclosing git repo and loads its release config.
func openProject(cmd *cobra.Command) (*gitrepo.Repo, config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, config.Config{}, err
	}
	repo, err := gitrepo.Open(cmd.Context(), cwd)
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := config.Load(repo.Dir)
	if err != nil {
		return nil, config.Config{}, err
	}
	return repo, cfg, nil
}
