// Package gitcmd provides functions for interacting with the git command-line tool.
//
// Every query in this package is read-only. The only mutating operations live in
// delete.go and are called exclusively by the cleanup package.
package gitcmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mkramers/gb/internal/types"
)

const (
	// Format: refname<NULL>objectname<NULL>HEAD<NULL>committerdate:unix<NULL>upstream:short<NULL>upstream:track<NEWLINE>
	// Using NULL character (\x00) as the field separator and newline (\n) as the record separator.
	branchInfoFormat = "%(refname)%00%(objectname)%00%(HEAD)%00%(committerdate:unix)%00%(upstream:short)%00%(upstream:track,nobracket)"
	fieldSeparator   = "\x00" // Null character
	branchFieldCount = 6
	headsPrefix      = "refs/heads/"

	// maxSquashScan bounds how many default-branch commits are patch-id'd per merge-base.
	maxSquashScan = 500
)

// IsInGitRepo checks if dir is within a Git working tree.
func (c *Client) IsInGitRepo(ctx context.Context, dir string) (bool, error) {
	output, err := c.git(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		if IsTimeout(err) {
			return false, err
		}
		// A failing rev-parse is the expected answer outside a repository.
		return false, nil
	}
	return strings.TrimSpace(output) == "true", nil
}

// ListBranches fetches details for all local branches using git for-each-ref.
func (c *Client) ListBranches(ctx context.Context, dir string) ([]types.BranchFact, error) {
	output, err := c.git(ctx, dir, "for-each-ref", "--format="+branchInfoFormat, headsPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return parseBranches(output)
}

func parseBranches(output string) ([]types.BranchFact, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return []types.BranchFact{}, nil
	}

	var branches []types.BranchFact
	for _, record := range strings.Split(output, "\n") {
		if record == "" {
			continue
		}
		fields := strings.Split(record, fieldSeparator)
		if len(fields) != branchFieldCount {
			return nil, parseErrorf("branch record has %d fields, expected %d: %q", len(fields), branchFieldCount, record)
		}
		if !strings.HasPrefix(fields[0], headsPrefix) {
			return nil, parseErrorf("unexpected ref %q", fields[0])
		}

		unix, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, parseErrorf("bad commit date %q for %s", fields[3], fields[0])
		}

		branch := types.BranchFact{
			Name:           strings.TrimPrefix(fields[0], headsPrefix),
			Commit:         fields[1],
			IsCurrent:      fields[2] == "*",
			LastCommitDate: time.Unix(unix, 0),
			Upstream:       fields[4],
		}
		if branch.Upstream != "" {
			track, err := parseTrack(fields[5])
			if err != nil {
				return nil, err
			}
			branch.Ahead, branch.Behind, branch.UpstreamGone = track.ahead, track.behind, track.gone
		}
		branches = append(branches, branch)
	}
	return branches, nil
}

// trackStatus is the parsed form of %(upstream:track,nobracket).
type trackStatus struct {
	ahead, behind int
	gone          bool
}

// parseTrack understands "", "gone", "ahead N", "behind N" and "ahead N, behind M".
func parseTrack(s string) (trackStatus, error) {
	var t trackStatus
	s = strings.TrimSpace(s)
	if s == "" {
		return t, nil
	}
	if s == "gone" {
		t.gone = true
		return t, nil
	}
	for _, part := range strings.Split(s, ",") {
		word, num, ok := strings.Cut(strings.TrimSpace(part), " ")
		if !ok {
			return t, parseErrorf("bad tracking status %q", s)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return t, parseErrorf("bad tracking count %q", s)
		}
		switch word {
		case "ahead":
			t.ahead = n
		case "behind":
			t.behind = n
		default:
			return t, parseErrorf("bad tracking status %q", s)
		}
	}
	return t, nil
}

// ListWorktrees returns all worktrees of a repository using git worktree list --porcelain.
func (c *Client) ListWorktrees(ctx context.Context, dir string) ([]types.WorktreeInfo, error) {
	output, err := c.git(ctx, dir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}
	return parseWorktrees(output)
}

func parseWorktrees(output string) ([]types.WorktreeInfo, error) {
	var worktrees []types.WorktreeInfo
	var current *types.WorktreeInfo

	flush := func() {
		if current != nil {
			worktrees = append(worktrees, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		if key == "worktree" {
			flush()
			current = &types.WorktreeInfo{Path: value, Main: len(worktrees) == 0}
			continue
		}
		if current == nil {
			return nil, parseErrorf("worktree attribute before worktree line: %q", line)
		}
		switch key {
		case "HEAD":
			current.Head = value
		case "branch":
			current.Branch = strings.TrimPrefix(value, headsPrefix)
		case "prunable":
			current.Prunable = true
		}
	}
	flush()
	return worktrees, nil
}

// OriginHead returns the branch origin/HEAD points at, or "" when it is not set.
func (c *Client) OriginHead(ctx context.Context, dir string) (string, error) {
	output, err := c.git(ctx, dir, "symbolic-ref", "--quiet", "--short", "refs/remotes/origin/HEAD")
	if err != nil {
		if IsTimeout(err) {
			return "", err
		}
		// symbolic-ref exits 1 when the ref is missing; that is not a failure.
		return "", nil
	}
	_, branch, ok := strings.Cut(strings.TrimSpace(output), "/")
	if !ok {
		return "", nil
	}
	return branch, nil
}

// resolveDefaultBranch picks the default branch among the local branches: origin/HEAD's
// target when it exists locally, then main, then master.
func resolveDefaultBranch(originHead string, local map[string]bool) string {
	for _, candidate := range []string{originHead, "main", "master"} {
		if candidate != "" && local[candidate] {
			return candidate
		}
	}
	return ""
}

// MergedBranches returns the set of local branches whose tip is an ancestor of target.
func (c *Client) MergedBranches(ctx context.Context, dir, target string) (map[string]bool, error) {
	if target == "" {
		return nil, fmt.Errorf("target branch cannot be empty")
	}
	output, err := c.git(ctx, dir, "for-each-ref", "--merged="+headsPrefix+target, "--format=%(refname)", headsPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get branches merged into %q: %w", target, err)
	}

	merged := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, headsPrefix) {
			return nil, parseErrorf("unexpected ref %q", line)
		}
		merged[strings.TrimPrefix(line, headsPrefix)] = true
	}
	return merged, nil
}

// DivergenceFromDefault counts the commits branch has that defaultBranch lacks (ahead)
// and the reverse (behind).
func (c *Client) DivergenceFromDefault(ctx context.Context, dir, defaultBranch, branch string) (ahead, behind int, err error) {
	output, err := c.git(ctx, dir, "rev-list", "--left-right", "--count", defaultBranch+"..."+branch)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compare %s with %s: %w", branch, defaultBranch, err)
	}
	return parseLeftRight(output)
}

// parseLeftRight reads the "<left>\t<right>" output of `rev-list --left-right --count`.
// The right side is the branch, so it is returned first.
func parseLeftRight(output string) (ahead, behind int, err error) {
	fields := strings.Fields(output)
	if len(fields) != 2 {
		return 0, 0, parseErrorf("bad rev-list count %q", strings.TrimSpace(output))
	}
	left, err1 := strconv.Atoi(fields[0])
	right, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return 0, 0, parseErrorf("bad rev-list count %q", strings.TrimSpace(output))
	}
	return right, left, nil
}

// MainWorktree returns the primary working tree of the repository that dir belongs to,
// which differs from dir's own top level inside a linked worktree.
func (c *Client) MainWorktree(ctx context.Context, dir string) (string, error) {
	output, err := c.git(ctx, dir, "rev-parse", "--path-format=absolute", "--git-common-dir")
	if err != nil {
		return "", fmt.Errorf("failed to find repository of %s: %w", dir, err)
	}
	common := filepath.Clean(strings.TrimSpace(output))
	if filepath.Base(common) != ".git" {
		// Bare repositories have no main worktree.
		return "", parseErrorf("git common dir %q is not a .git directory", common)
	}
	return filepath.Dir(common), nil
}
