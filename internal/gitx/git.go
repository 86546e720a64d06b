// Package gitx shells out to the git binary for environment
// provisioning. The clone and worktree strategies both land here; the
// link strategy never touches git.
package gitx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// IsRepo reports whether dir is the root of a git checkout.
func IsRepo(dir string) bool {
	// A worktree checkout has a .git file instead of a directory;
	// both count.
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// CurrentBranch returns the checked-out branch for dir.
func CurrentBranch(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to read branch in %s: %w", dir, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// BranchExists reports whether branch is a local branch of the
// repository at dir.
func BranchExists(dir, branch string) bool {
	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = dir
	return cmd.Run() == nil
}

// Clone clones url into dest. dest must not exist yet; git creates it.
func Clone(ctx context.Context, url, dest string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", url, dest)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone %s: %w (%s)", url, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// WorktreeAdd creates a linked worktree of the repository at repo under
// dest, checked out on branch. The branch is created if it does not
// exist yet.
func WorktreeAdd(ctx context.Context, repo, dest, branch string) error {
	args := []string{"worktree", "add"}
	if BranchExists(repo, branch) {
		args = append(args, dest, branch)
	} else {
		args = append(args, "-b", branch, dest)
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repo
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git worktree add %s: %w (%s)", dest, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// WorktreeRemove detaches the worktree at dest from the repository at
// repo. The checkout directory is removed by git.
func WorktreeRemove(ctx context.Context, repo, dest string) error {
	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", dest)
	cmd.Dir = repo
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git worktree remove %s: %w (%s)", dest, err, strings.TrimSpace(string(output)))
	}
	return nil
}
