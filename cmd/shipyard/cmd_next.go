package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackbox-fetch/shipyard/pkg/semver"
)

func newNextCmd() *cobra.Command {
	var branchFlag string

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the version plan for a release branch without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cfg, err := openProject(cmd)
			if err != nil {
				return err
			}

			branch := branchFlag
			if branch == "" {
				branch, err = repo.CurrentBranch(cmd.Context())
				if err != nil {
					return err
				}
			}

			current, err := semver.ReadDescriptor(filepath.Join(repo.Dir, cfg.VersionFile))
			if err != nil {
				return err
			}
			plan, err := cfg.Policy().NextVersion(branch, current)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "branch:         %s (%s bump)\n", plan.Branch, plan.Rule)
			fmt.Fprintf(out, "version before: %s\n", plan.VersionBefore)
			fmt.Fprintf(out, "version after:  %s\n", plan.VersionAfter)
			if plan.TagBefore() != "" {
				fmt.Fprintf(out, "tag before:     %s\n", plan.TagBefore())
			} else {
				fmt.Fprintf(out, "tag before:     (none, first release)\n")
			}
			fmt.Fprintf(out, "tag after:      %s\n", plan.TagAfter())
			return nil
		},
	}

	cmd.Flags().StringVar(&branchFlag, "branch", "", "release branch to plan for (default: current branch)")
	return cmd
}
