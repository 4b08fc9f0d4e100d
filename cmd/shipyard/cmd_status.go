package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackbox-fetch/shipyard/pkg/pipeline"
)

func newStatusCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of an interrupted release run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openProject(cmd)
			if err != nil {
				return err
			}
			stateDir := filepath.Join(repo.Dir, pipeline.StateDirName)

			cp, err := pipeline.LoadCheckpoint(stateDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cp == nil {
				fmt.Fprintln(out, "no interrupted run")
				return nil
			}

			if clear {
				if err := pipeline.ClearCheckpoint(stateDir); err != nil {
					return err
				}
				fmt.Fprintf(out, "cleared checkpoint for %s (last step: %s)\n", cp.Tag, cp.LastStep)
				return nil
			}

			fmt.Fprintf(out, "run:       %s\n", cp.RunID)
			fmt.Fprintf(out, "branch:    %s\n", cp.Branch)
			fmt.Fprintf(out, "tag:       %s\n", cp.Tag)
			fmt.Fprintf(out, "last step: %s\n", cp.LastStep)
			fmt.Fprintf(out, "updated:   %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
			if cp.LastStep == pipeline.StepPush {
				fmt.Fprintln(out, "note: commit and tag were pushed; the remote holds them even though no release was published")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "remove a stale checkpoint")
	return cmd
}
