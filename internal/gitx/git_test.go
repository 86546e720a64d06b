package gitx

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// initRepo creates a repository with a single commit on main.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestIsRepo(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)

	assert.True(t, IsRepo(repo))
	assert.False(t, IsRepo(t.TempDir()))
}

func TestCurrentBranch(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)

	branch, err := CurrentBranch(repo)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestClone(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	dest := filepath.Join(t.TempDir(), "clone")

	require.NoError(t, Clone(context.Background(), repo, dest))
	assert.True(t, IsRepo(dest))
	assert.FileExists(t, filepath.Join(dest, "README.md"))
}

func TestCloneBadURL(t *testing.T) {
	requireGit(t)
	dest := filepath.Join(t.TempDir(), "clone")

	err := Clone(context.Background(), filepath.Join(t.TempDir(), "nope"), dest)
	assert.ErrorContains(t, err, "git clone")
}

func TestWorktreeAddCreatesBranch(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	dest := filepath.Join(t.TempDir(), "feature-x")

	require.False(t, BranchExists(repo, "feature-x"))
	require.NoError(t, WorktreeAdd(context.Background(), repo, dest, "feature-x"))

	assert.True(t, BranchExists(repo, "feature-x"))
	branch, err := CurrentBranch(dest)
	require.NoError(t, err)
	assert.Equal(t, "feature-x", branch)
}

func TestWorktreeAddExistingBranch(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)

	cmd := exec.Command("git", "branch", "staging")
	cmd.Dir = repo
	require.NoError(t, cmd.Run())

	dest := filepath.Join(t.TempDir(), "staging")
	require.NoError(t, WorktreeAdd(context.Background(), repo, dest, "staging"))

	branch, err := CurrentBranch(dest)
	require.NoError(t, err)
	assert.Equal(t, "staging", branch)
}

func TestWorktreeRemove(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	dest := filepath.Join(t.TempDir(), "throwaway")

	require.NoError(t, WorktreeAdd(context.Background(), repo, dest, "throwaway"))
	require.NoError(t, WorktreeRemove(context.Background(), repo, dest))
	assert.NoDirExists(t, dest)
}
