package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/blackbox-fetch/shipyard/pkg/archive"
	"github.com/blackbox-fetch/shipyard/pkg/changelog"
	"github.com/blackbox-fetch/shipyard/pkg/forge"
	"github.com/blackbox-fetch/shipyard/pkg/gitrepo"
	"github.com/blackbox-fetch/shipyard/pkg/semver"
)

// GitClient is the slice of git the publisher drives.
type GitClient interface {
	Head(ctx context.Context) (string, error)
	CommitPaths(ctx context.Context, message string, paths ...string) (string, error)
	CreateTag(ctx context.Context, name, target string) error
	Push(ctx context.Context, remote string, refspecs ...string) error
	Log(ctx context.Context, from, to string) ([]gitrepo.LogEntry, error)
}

// Releaser creates the release record and attaches its assets.
type Releaser interface {
	CreateRelease(ctx context.Context, req forge.ReleaseRequest) (*forge.Release, error)
	UploadAsset(ctx context.Context, releaseID int64, a archive.Archive) error
}

// Publisher runs the five publish steps in strict order: persist, tag,
// changelog, push, publish. The first three mutate only local state; push
// onward is externally visible and never rolled back automatically.
type Publisher struct {
	Git   GitClient
	Forge Releaser

	Tool          string
	Branch        string
	Remote        string
	RepoDir       string
	VersionFile   string
	ChangelogFile string
	StateDir      string

	Plan     semver.Plan
	Archives []archive.Archive

	RunID string
	Log   *zap.Logger
}

func (p *Publisher) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

// Run executes the publish sequence, resuming after the last completed
// step when a checkpoint for the same target tag exists. Any step failure
// halts the run with the checkpoint left in place for diagnosis.
func (p *Publisher) Run(ctx context.Context) error {
	tag := p.Plan.TagAfter()
	log := p.logger().With(
		zap.String("run_id", p.RunID),
		zap.String("branch", p.Branch),
		zap.String("tag", tag),
	)

	cp, err := LoadCheckpoint(p.StateDir)
	if err != nil {
		return err
	}
	if cp != nil && cp.Tag != tag {
		return fmt.Errorf("run %s: checkpoint targets %q, this run targets %q: %w",
			p.RunID, cp.Tag, tag, ErrStaleCheckpoint)
	}
	if cp != nil {
		log.Info("resuming from checkpoint", zap.String("last_step", string(cp.LastStep)))
	}

	steps := map[Step]func(context.Context) error{
		StepPersist:   p.persist,
		StepTag:       p.tag,
		StepChangelog: p.materializeChangelog,
		StepPush:      p.push,
		StepPublish:   p.publish,
	}

	for _, step := range stepOrder {
		if cp.Completed(step) {
			log.Info("step already completed, skipping", zap.String("step", string(step)))
			continue
		}
		log.Info("step starting", zap.String("step", string(step)))
		if err := steps[step](ctx); err != nil {
			log.Error("step failed", zap.String("step", string(step)), zap.Error(err))
			return fmt.Errorf("step %s: %w", step, err)
		}
		if err := SaveCheckpoint(p.StateDir, Checkpoint{
			RunID:     p.RunID,
			Branch:    p.Branch,
			Tag:       tag,
			LastStep:  step,
			TagBefore: p.Plan.TagBefore(),
		}); err != nil {
			return err
		}
		log.Info("step completed", zap.String("step", string(step)))
	}

	if err := ClearCheckpoint(p.StateDir); err != nil {
		return err
	}
	log.Info("release published",
		zap.String("version", p.Plan.VersionAfter.String()),
		zap.Int("assets", len(p.Archives)))
	return nil
}

// persist writes versionAfter into the descriptor and commits it locally.
func (p *Publisher) persist(ctx context.Context) error {
	path := filepath.Join(p.RepoDir, p.VersionFile)
	if err := semver.WriteDescriptor(path, p.Plan.VersionAfter); err != nil {
		return err
	}
	message := fmt.Sprintf("release: bump version to %s", p.Plan.VersionAfter)
	if _, err := p.Git.CommitPaths(ctx, message, p.VersionFile); err != nil {
		return fmt.Errorf("%w: %v", semver.ErrVersionBump, err)
	}
	return nil
}

// tag points the immutable release tag at the bump commit.
func (p *Publisher) tag(ctx context.Context) error {
	head, err := p.Git.Head(ctx)
	if err != nil {
		return err
	}
	return p.Git.CreateTag(ctx, p.Plan.TagAfter(), head)
}

// materializeChangelog synthesizes the changelog bounded by the new tag,
// writes it to the fixed-path document the release body is read from, and
// commits it so the next run starts from a clean tree.
func (p *Publisher) materializeChangelog(ctx context.Context) error {
	entries, err := p.Git.Log(ctx, p.Plan.TagBefore(), p.Plan.TagAfter())
	if err != nil {
		return err
	}
	commits := make([]changelog.Commit, len(entries))
	for i, e := range entries {
		commits[i] = changelog.Commit{Hash: e.Hash, Subject: e.Subject}
	}

	rangeLabel := p.Plan.TagAfter()
	if before := p.Plan.TagBefore(); before != "" {
		rangeLabel = before + ".." + rangeLabel
	}
	doc := changelog.Synthesize(rangeLabel, commits).Render()

	path := filepath.Join(p.RepoDir, p.ChangelogFile)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write changelog %q: %w", path, err)
	}
	message := fmt.Sprintf("release: changelog for %s", p.Plan.TagAfter())
	if _, err := p.Git.CommitPaths(ctx, message, p.ChangelogFile); err != nil {
		return fmt.Errorf("commit changelog: %w", err)
	}
	return nil
}

// push sends the bump commit and the release tag to the remote. A failure
// here leaves the local commit and tag in place for manual recovery.
func (p *Publisher) push(ctx context.Context) error {
	return p.Git.Push(ctx, p.Remote, p.Branch, "refs/tags/"+p.Plan.TagAfter())
}

// publish creates the release record with the changelog body and all
// required archives. Declared archives are verified on disk before the
// forge is touched so a partial release is never created.
func (p *Publisher) publish(ctx context.Context) error {
	if len(p.Archives) == 0 {
		return fmt.Errorf("%w: no archives declared", archive.ErrMissingArtifact)
	}
	for _, a := range p.Archives {
		if _, err := os.Stat(a.Path); err != nil {
			return fmt.Errorf("%w: %q: %v", archive.ErrMissingArtifact, a.Path, err)
		}
	}

	body, err := os.ReadFile(filepath.Join(p.RepoDir, p.ChangelogFile))
	if err != nil {
		return fmt.Errorf("read changelog body: %w", err)
	}

	rel, err := p.Forge.CreateRelease(ctx, forge.ReleaseRequest{
		TagName:    p.Plan.TagAfter(),
		Name:       fmt.Sprintf("%s %s", p.Tool, p.Plan.VersionAfter),
		Body:       string(body),
		Prerelease: true,
	})
	if err != nil {
		return err
	}

	for _, a := range p.Archives {
		if err := p.Forge.UploadAsset(ctx, rel.ID, a); err != nil {
			return err
		}
	}
	return nil
}
