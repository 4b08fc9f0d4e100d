package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackbox-fetch/shipyard/pkg/archive"
	"github.com/blackbox-fetch/shipyard/pkg/semver"
)

func newPackageCmd() *cobra.Command {
	var versionFlag string

	cmd := &cobra.Command{
		Use:   "package",
		Short: "Package raw platform binaries into version-qualified archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cfg, err := openProject(cmd)
			if err != nil {
				return err
			}

			var v semver.Version
			if strings.TrimSpace(versionFlag) != "" {
				v, err = semver.Parse(versionFlag)
			} else {
				v, err = semver.ReadDescriptor(filepath.Join(repo.Dir, cfg.VersionFile))
			}
			if err != nil {
				return err
			}

			packager := &archive.Packager{
				Tool:   cfg.Tool,
				OutDir: filepath.Join(repo.Dir, cfg.DistDir),
			}
			rawPaths := make(map[string]string, len(cfg.Platforms))
			for _, platform := range cfg.Platforms {
				rawPaths[platform] = filepath.Join(repo.Dir, cfg.DistDir, packager.BinaryName(platform))
			}

			archives, err := packager.PackageAll(cfg.Platforms, rawPaths, v)
			if err != nil {
				return err
			}
			for _, a := range archives {
				fmt.Fprintf(cmd.OutOrStdout(), "packaged %s\n", a.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&versionFlag, "version", "", "version to stamp archives with (default: version descriptor)")
	return cmd
}
