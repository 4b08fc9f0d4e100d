package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blackbox-fetch/shipyard/pkg/archive"
	"github.com/blackbox-fetch/shipyard/pkg/buildfan"
	"github.com/blackbox-fetch/shipyard/pkg/config"
	"github.com/blackbox-fetch/shipyard/pkg/gitrepo"
	"github.com/blackbox-fetch/shipyard/pkg/semver"
)

// StateDirName is the per-repo directory holding locks, checkpoints, and
// the dependency cache.
const StateDirName = ".shipyard"

// Runner executes a complete release run: fan-out builds in parallel with
// the version computation, a join barrier, packaging, then the publish
// sequence.
type Runner struct {
	Cfg   config.Config
	Repo  *gitrepo.Repo
	Forge Releaser
	Log   *zap.Logger

	// DryRun stops after packaging, before any state is persisted.
	DryRun bool
}

// Run drives one release on the current branch. Only release branches are
// valid; the policy engine is never consulted for anything else.
func (r *Runner) Run(ctx context.Context) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	branch, err := r.Repo.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	policy := r.Cfg.Policy()
	if !policy.IsReleaseBranch(branch) {
		return fmt.Errorf("branch %q: %w", branch, semver.ErrUnknownChannel)
	}

	runID := uuid.NewString()
	stateDir := filepath.Join(r.Repo.Dir, StateDirName)
	log = log.With(zap.String("run_id", runID), zap.String("branch", branch))

	lock, err := AcquireLock(stateDir, branch, runID)
	if err != nil {
		return err
	}
	defer lock.Release()

	clean, err := r.Repo.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("working tree has uncommitted changes; refusing to release")
	}

	// An interrupted run has already persisted its bumped descriptor, so
	// planning must happen relative to the checkpoint, not blindly bump
	// again.
	cp, err := LoadCheckpoint(stateDir)
	if err != nil {
		return err
	}

	// Builds are version-independent, so the fan-out runs in parallel with
	// the version computation; both join before packaging.
	var plan semver.Plan
	var artifacts map[string]buildfan.Artifact

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		current, err := semver.ReadDescriptor(filepath.Join(r.Repo.Dir, r.Cfg.VersionFile))
		if err != nil {
			return err
		}
		if cp != nil && cp.Branch == branch && cp.Tag == current.Tag() {
			plan, err = resumePlan(policy, branch, cp, current)
			if err != nil {
				return err
			}
			log.Info("resuming interrupted release",
				zap.String("tag", cp.Tag),
				zap.String("last_step", string(cp.LastStep)))
			return nil
		}
		plan, err = policy.NextVersion(branch, current)
		return err
	})
	g.Go(func() error {
		var err error
		artifacts, err = r.runBuilds(gctx, log)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("fan-out joined",
		zap.String("version_after", plan.VersionAfter.String()),
		zap.Int("artifacts", len(artifacts)))

	rawPaths := make(map[string]string, len(artifacts))
	for platform, a := range artifacts {
		rawPaths[platform] = a.Path
	}
	packager := &archive.Packager{
		Tool:   r.Cfg.Tool,
		OutDir: filepath.Join(r.Repo.Dir, r.Cfg.DistDir),
	}
	archives, err := packager.PackageAll(r.Cfg.Platforms, rawPaths, plan.VersionAfter)
	if err != nil {
		return err
	}
	log.Info("archives packaged", zap.Int("count", len(archives)))

	if r.DryRun {
		log.Info("dry run: stopping before persist",
			zap.String("tag_after", plan.TagAfter()))
		return nil
	}

	pub := &Publisher{
		Git:           r.Repo,
		Forge:         r.Forge,
		Tool:          r.Cfg.Tool,
		Branch:        branch,
		Remote:        r.Cfg.Remote,
		RepoDir:       r.Repo.Dir,
		VersionFile:   r.Cfg.VersionFile,
		ChangelogFile: r.Cfg.ChangelogFile,
		StateDir:      stateDir,
		Plan:          plan,
		Archives:      archives,
		RunID:         runID,
		Log:           log,
	}
	return pub.Run(ctx)
}

// resumePlan rebuilds the plan of an interrupted run whose persist step
// already wrote current into the descriptor. current is the target, not
// the base of another bump.
func resumePlan(policy *semver.Policy, branch string, cp *Checkpoint, current semver.Version) (semver.Plan, error) {
	rule, ok := policy.Rule(branch)
	if !ok {
		return semver.Plan{}, fmt.Errorf("resume on %q: %w", branch, semver.ErrUnknownChannel)
	}
	var before semver.Version
	if cp.TagBefore != "" {
		var err error
		before, err = semver.Parse(cp.TagBefore)
		if err != nil {
			return semver.Plan{}, fmt.Errorf("resume on %q: checkpoint tag_before %q: %w", branch, cp.TagBefore, err)
		}
	}
	return semver.Plan{
		Branch:        branch,
		Rule:          rule,
		VersionBefore: before,
		VersionAfter:  current,
	}, nil
}

// runBuilds restores the dependency cache, fans the platform builds out,
// and refreshes the cache on success. Cache traffic is latency-only; any
// miss or corrupt entry just means a slower build.
func (r *Runner) runBuilds(ctx context.Context, log *zap.Logger) (map[string]buildfan.Artifact, error) {
	cache := &buildfan.Cache{Dir: filepath.Join(r.Repo.Dir, r.Cfg.CacheDir)}
	depsDir := filepath.Join(r.Repo.Dir, r.Cfg.DepsDir)

	var keys []string
	if lock, err := os.ReadFile(filepath.Join(r.Repo.Dir, r.Cfg.LockFile)); err == nil {
		keys = buildfan.FallbackKeys(lock, runtime.GOOS)
		if cache.HasAny(keys) {
			// An entry exists; a failed read here is transient (a store in
			// flight), so the fetch retries. A plain miss never does.
			restoreErr := buildfan.RetryTransient(ctx, 3, 500*time.Millisecond, func(context.Context) error {
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
		} else {
			log.Info("dependency cache miss")
		}
	}

	builder := &buildfan.CommandBuilder{
		Template: r.Cfg.BuildCommand,
		Dir:      r.Repo.Dir,
		OutDir:   filepath.Join(r.Repo.Dir, r.Cfg.DistDir),
		Tool:     r.Cfg.Tool,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
	coord := &buildfan.Coordinator{
		Platforms: r.Cfg.Platforms,
		Build:     builder.Func(),
	}
	artifacts, err := coord.Run(ctx)
	if err != nil {
		return nil, err
	}

	if len(keys) > 0 {
		if _, statErr := os.Stat(depsDir); statErr == nil {
			if storeErr := cache.StoreDir(keys[0], depsDir); storeErr != nil {
				log.Warn("dependency cache store failed", zap.Error(storeErr))
			}
		}
	}
	return artifacts, nil
}
