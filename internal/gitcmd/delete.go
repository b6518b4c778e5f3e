package gitcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// RemoveWorktree removes the worktree at path with `git worktree remove --force`.
// A worktree that is already gone (directory deleted, or entry already removed)
// counts as removed; its administrative data is pruned.
func (c *Client) RemoveWorktree(ctx context.Context, repoDir, path string) (string, error) {
	cmdString := fmt.Sprintf("git worktree remove --force %s", path)
	_, err := c.git(ctx, repoDir, "worktree", "remove", "--force", path)
	if err == nil {
		return cmdString, nil
	}
	if IsTimeout(err) {
		return cmdString, err
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) || isNotWorktree(err) {
		if _, pruneErr := c.git(ctx, repoDir, "worktree", "prune"); pruneErr != nil {
			return cmdString, fmt.Errorf("failed to prune worktrees: %w", pruneErr)
		}
		return cmdString, nil
	}
	return cmdString, fmt.Errorf("failed to remove worktree %s: %w", path, err)
}

func isNotWorktree(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, "is not a working tree")
}

// BranchExists reports whether refs/heads/<name> exists.
func (c *Client) BranchExists(ctx context.Context, repoDir, name string) (bool, error) {
	_, err := c.git(ctx, repoDir, "rev-parse", "--verify", "--quiet", headsPrefix+name)
	if err == nil {
		return true, nil
	}
	if IsTimeout(err) {
		return false, err
	}
	return false, nil
}

// DeleteBranch force-deletes a local branch. Callers perform their own safety checks,
// so `-D` is always used: squash-merged branches would be refused by `-d`.
// A branch that no longer exists counts as deleted.
func (c *Client) DeleteBranch(ctx context.Context, repoDir, name string) (string, error) {
	cmdString := fmt.Sprintf("git branch -D %s", name)
	_, err := c.git(ctx, repoDir, "branch", "-D", name)
	if err == nil {
		return cmdString, nil
	}
	if IsTimeout(err) {
		return cmdString, err
	}

	exists, existsErr := c.BranchExists(ctx, repoDir, name)
	if existsErr == nil && !exists {
		return cmdString, nil
	}
	return cmdString, fmt.Errorf("failed to delete branch %s: %w", name, err)
}
