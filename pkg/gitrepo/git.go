// Package gitrepo drives the real git binary for the release pipeline:
// branch identity, the bump commit, create-once tags, and the push to the
// remote. Everything else git does is out of scope here.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrPushConflict marks a push the remote rejected because it diverged
// from the local history. Never retried; the local commit and tag are left
// in place for manual recovery.
var ErrPushConflict = errors.New("remote diverged from local")

// ErrTagExists marks an attempt to recreate an existing tag. Tags are
// created once and never reassigned.
var ErrTagExists = errors.New("tag already exists")

const gitTimeout = 5 * time.Minute

// Repo is a working copy rooted at Dir.
type Repo struct {
	Dir string
}

// Open verifies dir is inside a git working tree and returns the repo
// rooted at its top level.
func Open(ctx context.Context, dir string) (*Repo, error) {
	out, err := gitCapture(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("open repo %q: %w", dir, err)
	}
	return &Repo{Dir: strings.TrimSpace(string(out))}, nil
}

// CurrentBranch returns the checked-out branch name, empty when HEAD is
// detached.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := gitCapture(ctx, r.Dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	name := strings.TrimSpace(string(out))
	if name == "HEAD" {
		return "", nil
	}
	return name, nil
}

// Head returns the commit hash HEAD points at.
func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := gitCapture(ctx, r.Dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve head: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// IsClean reports whether the working tree has no uncommitted changes to
// tracked files. Untracked files (build output, the state dir) do not
// block a release.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := gitCapture(ctx, r.Dir, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return strings.TrimSpace(string(out)) == "", nil
}

// CommitPaths stages paths and commits them locally with message. Staging
// that produces no change is a no-op returning the current head, so a
// resumed run can replay a commit safely. Nothing is pushed.
func (r *Repo) CommitPaths(ctx context.Context, message string, paths ...string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("commit: no paths given")
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := gitCapture(ctx, r.Dir, args...); err != nil {
		return "", fmt.Errorf("commit: stage: %w", err)
	}
	staged, err := r.hasStagedChanges(ctx)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if !staged {
		return r.Head(ctx)
	}
	if _, err := gitCapture(ctx, r.Dir, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return r.Head(ctx)
}

// hasStagedChanges reports whether the index differs from HEAD.
func (r *Repo) hasStagedChanges(ctx context.Context) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", "-C", r.Dir, "diff", "--cached", "--quiet")
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		// diff --quiet exits 1 when the index has changes.
		return true, nil
	}
	return false, fmt.Errorf("staged diff: %w", err)
}

// TagExists reports whether name resolves to an existing tag ref.
func (r *Repo) TagExists(ctx context.Context, name string) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", "-C", r.Dir, "rev-parse", "--verify", "--quiet", "refs/tags/"+name)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		// rev-parse --verify --quiet exits 1 when the ref does not exist.
		return false, nil
	}
	return false, fmt.Errorf("tag exists %q: %w", name, err)
}

// CreateTag creates a lightweight tag at target. Existing tags are never
// reassigned; a second create fails with ErrTagExists.
func (r *Repo) CreateTag(ctx context.Context, name, target string) error {
	exists, err := r.TagExists(ctx, name)
	if err != nil {
		return fmt.Errorf("create tag %q: %w", name, err)
	}
	if exists {
		return fmt.Errorf("create tag %q: %w", name, ErrTagExists)
	}
	if _, err := gitCapture(ctx, r.Dir, "tag", name, target); err != nil {
		return fmt.Errorf("create tag %q: %w", name, err)
	}
	return nil
}

// Push sends refspecs to remote. A rejection caused by remote divergence
// maps to ErrPushConflict so the caller can distinguish it from transport
// failures; neither is retried.
func (r *Repo) Push(ctx context.Context, remote string, refspecs ...string) error {
	args := append([]string{"push", remote}, refspecs...)
	if _, err := gitCapture(ctx, r.Dir, args...); err != nil {
		if isPushConflict(err.Error()) {
			return fmt.Errorf("push to %q: %w: %v", remote, ErrPushConflict, err)
		}
		return fmt.Errorf("push to %q: %w", remote, err)
	}
	return nil
}

func isPushConflict(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"non-fast-forward", "[rejected]", "stale info", "fetch first"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// LogEntry is one commit from a range log, as synthesis input.
type LogEntry struct {
	Hash    string
	Subject string
}

// Log returns commits in (from, to], newest first. An empty from means the
// full history up to to, the first-release case. An empty range is not an
// error; it returns no entries.
func (r *Repo) Log(ctx context.Context, from, to string) ([]LogEntry, error) {
	spec := to
	if strings.TrimSpace(from) != "" {
		spec = from + ".." + to
	}
	out, err := gitCapture(ctx, r.Dir, "log", "--format=%H%x09%s", spec)
	if err != nil {
		return nil, fmt.Errorf("log %q: %w", spec, err)
	}

	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		hash, subject, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		entries = append(entries, LogEntry{Hash: hash, Subject: strings.TrimSpace(subject)})
	}
	return entries, nil
}

func gitCapture(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}
