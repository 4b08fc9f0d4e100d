package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackbox-fetch/shipyard/pkg/changelog"
)

func newChangelogCmd() *cobra.Command {
	var from, to string
	var write bool

	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Synthesize the categorized changelog for a commit range",
		Long: "Synthesizes the changelog for (from, to]. With no --from the full\n" +
			"history up to --to is included, the first-release case. An empty range\n" +
			"produces an empty but well-formed document.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cfg, err := openProject(cmd)
			if err != nil {
				return err
			}

			head := strings.TrimSpace(to)
			if head == "" {
				head, err = repo.Head(cmd.Context())
				if err != nil {
					return err
				}
			}

			entries, err := repo.Log(cmd.Context(), from, head)
			if err != nil {
				return err
			}
			commits := make([]changelog.Commit, len(entries))
			for i, e := range entries {
				commits[i] = changelog.Commit{Hash: e.Hash, Subject: e.Subject}
			}

			rangeLabel := head
			if strings.TrimSpace(from) != "" {
				rangeLabel = from + ".." + head
			}
			doc := changelog.Synthesize(rangeLabel, commits).Render()

			if write {
				path := filepath.Join(repo.Dir, cfg.ChangelogFile)
				if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
					return fmt.Errorf("write changelog %q: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), doc)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "lower bound tag or ref, exclusive (default: repository root)")
	cmd.Flags().StringVar(&to, "to", "", "upper bound ref, inclusive (default: HEAD)")
	cmd.Flags().BoolVar(&write, "write", false, "write to the configured changelog file instead of stdout")
	return cmd
}
