package types

import "time"

// BranchFact holds raw Git data for a local branch in one repository.
type BranchFact struct {
	Name              string
	Commit            string
	IsCurrent         bool
	Upstream          string // e.g., "origin/feature/x"; empty when no upstream is configured
	UpstreamGone      bool   // upstream configured but the remote-tracking ref no longer exists
	Ahead             int
	Behind            int
	AheadDefault      int // commits not on the default branch
	BehindDefault     int // default-branch commits missing from the branch
	LastCommitDate    time.Time
	MergedIntoDefault bool
	SquashMerged      bool
	HasWorktree       bool
	WorktreePath      string
}

// WorktreeInfo describes one entry of `git worktree list`.
type WorktreeInfo struct {
	Path     string
	Branch   string // empty for detached worktrees
	Head     string
	Dirty    bool // uncommitted or untracked changes outside ignored paths
	Main     bool // the repository's primary working tree
	Prunable bool // the directory is gone; git still holds the administrative entry
}

// RawRepoData is the fully completed result of one collection attempt.
type RawRepoData struct {
	Repo          Repository
	DefaultBranch string
	Branches      []BranchFact
	Worktrees     []WorktreeInfo
	CollectedAt   time.Time

	// Warnings records non-fatal query failures; the data is usable but incomplete.
	Warnings []string
}

// Deletable classifies why a branch is safe to delete.
type Deletable string

const (
	DeletableNo           Deletable = ""
	DeletableMergedClean  Deletable = "merged"
	DeletableSquashMerged Deletable = "squash-merged"
	DeletableUpstreamGone Deletable = "upstream-gone"
)

// ClassifiedBranch contains processed branch info for UI and decisions.
type ClassifiedBranch struct {
	BranchFact // Embedded raw info
	Deletable  Deletable
	Dirty      bool // only meaningful when HasWorktree is set
	Protected  bool // default branch or listed in protected_branches
	Pinned     bool
}

// IsDeletable reports whether the branch carries any deletable reason.
func (b ClassifiedBranch) IsDeletable() bool {
	return b.Deletable != DeletableNo
}
