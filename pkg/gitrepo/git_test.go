package gitrepo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return string(out)
}

func initTestRepo(t *testing.T) *Repo {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.name", "tester")
	runGit(t, dir, "config", "user.email", "tester@example.com")
	return &Repo{Dir: dir}
}

func commitFile(t *testing.T, r *Repo, name, contents, message string) string {
	t.Helper()
	path := filepath.Join(r.Dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	hash, err := r.CommitPaths(context.Background(), message, name)
	if err != nil {
		t.Fatalf("CommitPaths: %v", err)
	}
	return hash
}

func TestOpenAndCurrentBranch(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "VERSION", "1.0.0\n", "initial")

	opened, err := Open(context.Background(), r.Dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	branch, err := opened.CurrentBranch(context.Background())
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Fatalf("branch = %q, want main", branch)
	}
}

func TestIsCleanIgnoresUntrackedFiles(t *testing.T) {
	r := initTestRepo(t)
	ctx := context.Background()
	commitFile(t, r, "VERSION", "1.0.0\n", "initial")

	if err := os.MkdirAll(filepath.Join(r.Dir, "dist"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(r.Dir, "dist", "binary"), []byte("x"), 0o755); err != nil {
		t.Fatalf("write untracked: %v", err)
	}
	clean, err := r.IsClean(ctx)
	if err != nil {
		t.Fatalf("IsClean: %v", err)
	}
	if !clean {
		t.Fatalf("untracked files must not dirty the tree")
	}

	// A modified tracked file does.
	if err := os.WriteFile(filepath.Join(r.Dir, "VERSION"), []byte("9.9.9\n"), 0o644); err != nil {
		t.Fatalf("modify tracked: %v", err)
	}
	clean, err = r.IsClean(ctx)
	if err != nil {
		t.Fatalf("IsClean: %v", err)
	}
	if clean {
		t.Fatalf("modified tracked file should dirty the tree")
	}
}

func TestCommitPathsNoChangeKeepsHead(t *testing.T) {
	r := initTestRepo(t)
	first := commitFile(t, r, "VERSION", "1.0.0\n", "initial")

	// Committing identical content again must not create a commit.
	second, err := r.CommitPaths(context.Background(), "repeat", "VERSION")
	if err != nil {
		t.Fatalf("CommitPaths unchanged: %v", err)
	}
	if second != first {
		t.Fatalf("head moved on a no-op commit: %q -> %q", first, second)
	}
}

func TestCreateTagOnce(t *testing.T) {
	r := initTestRepo(t)
	head := commitFile(t, r, "VERSION", "1.2.4\n", "release: bump version to 1.2.4")
	ctx := context.Background()

	if err := r.CreateTag(ctx, "v1.2.4", head); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	exists, err := r.TagExists(ctx, "v1.2.4")
	if err != nil {
		t.Fatalf("TagExists: %v", err)
	}
	if !exists {
		t.Fatalf("tag should exist after create")
	}

	err = r.CreateTag(ctx, "v1.2.4", head)
	if !errors.Is(err, ErrTagExists) {
		t.Fatalf("second create = %v, want ErrTagExists", err)
	}
}

func TestTagExistsFalseForMissing(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "VERSION", "1.0.0\n", "initial")

	exists, err := r.TagExists(context.Background(), "v9.9.9")
	if err != nil {
		t.Fatalf("TagExists: %v", err)
	}
	if exists {
		t.Fatalf("missing tag reported as existing")
	}
}

func TestLogRange(t *testing.T) {
	r := initTestRepo(t)
	ctx := context.Background()
	commitFile(t, r, "a.txt", "a", "feat: first")
	tagged := commitFile(t, r, "b.txt", "b", "fix: second")
	if err := r.CreateTag(ctx, "v1.0.0", tagged); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	commitFile(t, r, "c.txt", "c", "feat: third")
	head := commitFile(t, r, "d.txt", "d", "docs: fourth")

	entries, err := r.Log(ctx, "v1.0.0", head)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Subject != "docs: fourth" || entries[1].Subject != "feat: third" {
		t.Fatalf("log order wrong: %+v", entries)
	}
}

func TestLogFullHistoryWhenNoLowerBound(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "a", "feat: first")
	head := commitFile(t, r, "b.txt", "b", "fix: second")

	entries, err := r.Log(context.Background(), "", head)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("full history entries = %d, want 2", len(entries))
	}
}

func TestLogEmptyRange(t *testing.T) {
	r := initTestRepo(t)
	ctx := context.Background()
	head := commitFile(t, r, "a.txt", "a", "feat: only")
	if err := r.CreateTag(ctx, "v1.0.0", head); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	entries, err := r.Log(ctx, "v1.0.0", head)
	if err != nil {
		t.Fatalf("Log over empty range: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("empty range entries = %d, want 0", len(entries))
	}
}

func TestPushCommitAndTag(t *testing.T) {
	r := initTestRepo(t)
	ctx := context.Background()
	head := commitFile(t, r, "VERSION", "1.2.4\n", "release: bump version to 1.2.4")
	if err := r.CreateTag(ctx, "v1.2.4", head); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	bare := t.TempDir()
	runGit(t, bare, "init", "--bare", "-b", "main")
	runGit(t, r.Dir, "remote", "add", "origin", bare)

	if err := r.Push(ctx, "origin", "main", "refs/tags/v1.2.4"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	out := runGit(t, bare, "tag")
	if out != "v1.2.4\n" {
		t.Fatalf("remote tags = %q, want v1.2.4", out)
	}
}

func TestPushConflictDetected(t *testing.T) {
	r := initTestRepo(t)
	ctx := context.Background()
	commitFile(t, r, "a.txt", "a", "feat: base")

	bare := t.TempDir()
	runGit(t, bare, "init", "--bare", "-b", "main")
	runGit(t, r.Dir, "remote", "add", "origin", bare)
	if err := r.Push(ctx, "origin", "main"); err != nil {
		t.Fatalf("seed push: %v", err)
	}

	// Advance the remote from a second clone, then push a divergent local
	// commit.
	other := t.TempDir()
	runGit(t, other, "clone", bare, "clone")
	cloneDir := filepath.Join(other, "clone")
	runGit(t, cloneDir, "config", "user.name", "other")
	runGit(t, cloneDir, "config", "user.email", "other@example.com")
	if err := os.WriteFile(filepath.Join(cloneDir, "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGit(t, cloneDir, "add", "b.txt")
	runGit(t, cloneDir, "commit", "-m", "feat: remote wins")
	runGit(t, cloneDir, "push", "origin", "main")

	commitFile(t, r, "c.txt", "c", "feat: local diverges")
	err := r.Push(ctx, "origin", "main")
	if !errors.Is(err, ErrPushConflict) {
		t.Fatalf("push after divergence = %v, want ErrPushConflict", err)
	}
}
