package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackbox-fetch/shipyard/pkg/buildfan"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fan out the per-platform builds without releasing",
		Long: "Runs every platform build concurrently. On a release branch the raw\n" +
			"artifacts are retained under the dist directory; on any other branch\n" +
			"the build is validation-only and the artifacts are discarded.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cfg, err := openProject(cmd)
			if err != nil {
				return err
			}
			branch, err := repo.CurrentBranch(cmd.Context())
			if err != nil {
				return err
			}

			retained := cfg.Policy().IsReleaseBranch(branch)
			outDir := filepath.Join(repo.Dir, cfg.DistDir)
			if !retained {
				outDir, err = os.MkdirTemp("", "shipyard-validate-*")
				if err != nil {
					return err
				}
				defer os.RemoveAll(outDir)
			}

			cache := &buildfan.Cache{Dir: filepath.Join(repo.Dir, cfg.CacheDir)}
			depsDir := filepath.Join(repo.Dir, cfg.DepsDir)
			var keys []string
			if lock, readErr := os.ReadFile(filepath.Join(repo.Dir, cfg.LockFile)); readErr == nil {
				keys = buildfan.FallbackKeys(lock, runtime.GOOS)
				if cache.HasAny(keys) {
					restoreErr := buildfan.RetryTransient(cmd.Context(), 3, 500*time.Millisecond, func(context.Context) error {
						if _, ok := cache.RestoreDir(keys, depsDir); !ok {
							return fmt.Errorf("cache entry unreadable")
						}
						return nil
					})
					if restoreErr != nil {
						log.Info("dependency cache miss", zap.Error(restoreErr))
					} else {
						log.Info("dependency cache restored")
					}
				}
			}

			builder := &buildfan.CommandBuilder{
				Template: cfg.BuildCommand,
				Dir:      repo.Dir,
				OutDir:   outDir,
				Tool:     cfg.Tool,
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			}
			coord := &buildfan.Coordinator{
				Platforms: cfg.Platforms,
				Build:     builder.Func(),
			}

			artifacts, err := coord.Run(cmd.Context())
			if err != nil {
				return err
			}

			// A successful standalone build warms the cache the same way a
			// release run does.
			if len(keys) > 0 {
				if _, statErr := os.Stat(depsDir); statErr == nil {
					if storeErr := cache.StoreDir(keys[0], depsDir); storeErr != nil {
						log.Warn("dependency cache store failed", zap.Error(storeErr))
					}
				}
			}

			for _, platform := range cfg.Platforms {
				a := artifacts[platform]
				if retained {
					fmt.Fprintf(cmd.OutOrStdout(), "built %s -> %s (sha256 %s)\n", platform, a.Path, a.Checksum[:12])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "validated %s (artifact discarded)\n", platform)
				}
			}
			log.Info("build fan-out complete",
				zap.String("branch", branch),
				zap.Bool("retained", retained),
				zap.Int("platforms", len(artifacts)))
			return nil
		},
	}
	return cmd
}
