// Package analyze turns the raw facts of one repository into the ordered, classified
// branch list shown to the user. Nothing in this package performs I/O.
package analyze

import (
	"sort"
	"time"

	"github.com/mkramers/gb/internal/types"
)

// Options carries the inputs of a classification that do not come from git.
type Options struct {
	// RecentDays hides branches without a commit in the last RecentDays days unless they
	// are current, pinned or checked out in a worktree. Zero or less shows every branch.
	RecentDays int
	// Now is the reference time for RecentDays. Zero means time.Now().
	Now time.Time
	// Protected lists branch names that are never deletable, in addition to the
	// repository's default branch.
	Protected []string
	// Pinned holds the names of the repository's pinned branches.
	Pinned map[string]bool
}

// Classify computes the deletable state of every branch in data and returns the visible
// branches in display order: current branch first, then pinned branches, then by most
// recent commit. Branches with equal keys are ordered by name, so the result depends
// only on its inputs.
func Classify(data types.RawRepoData, opts Options) []types.ClassifiedBranch {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	var cutoff time.Time
	if opts.RecentDays > 0 {
		cutoff = now.AddDate(0, 0, -opts.RecentDays)
	}

	protected := make(map[string]bool, len(opts.Protected)+1)
	for _, name := range opts.Protected {
		protected[name] = true
	}
	if data.DefaultBranch != "" {
		protected[data.DefaultBranch] = true
	}

	dirtyWorktrees := make(map[string]bool, len(data.Worktrees))
	for _, wt := range data.Worktrees {
		dirtyWorktrees[wt.Path] = wt.Dirty
	}

	classified := make([]types.ClassifiedBranch, 0, len(data.Branches))
	for _, fact := range data.Branches {
		branch := types.ClassifiedBranch{
			BranchFact: fact,
			Protected:  protected[fact.Name],
			Pinned:     opts.Pinned[fact.Name],
		}
		if fact.HasWorktree {
			branch.Dirty = dirtyWorktrees[fact.WorktreePath]
		}
		if !visible(branch, cutoff) {
			continue
		}
		branch.Deletable = DeletableReason(branch)
		classified = append(classified, branch)
	}

	sort.SliceStable(classified, func(i, j int) bool {
		return less(classified[i], classified[j])
	})
	return classified
}

// DeletableReason applies the deletion policy to one branch; the first matching rule wins.
// The branch's Protected and Dirty flags must already be set.
func DeletableReason(b types.ClassifiedBranch) types.Deletable {
	switch {
	case b.Protected:
		return types.DeletableNo
	case b.IsCurrent:
		return types.DeletableNo
	case b.HasWorktree && b.Dirty:
		return types.DeletableNo
	case b.MergedIntoDefault:
		return types.DeletableMergedClean
	case b.SquashMerged:
		return types.DeletableSquashMerged
	case b.Upstream != "" && b.UpstreamGone:
		return types.DeletableUpstreamGone
	default:
		return types.DeletableNo
	}
}

func visible(b types.ClassifiedBranch, cutoff time.Time) bool {
	if b.IsCurrent || b.HasWorktree || b.Pinned || cutoff.IsZero() {
		return true
	}
	return !b.LastCommitDate.Before(cutoff)
}

func less(a, b types.ClassifiedBranch) bool {
	if a.IsCurrent != b.IsCurrent {
		return a.IsCurrent
	}
	if a.Pinned != b.Pinned {
		return a.Pinned
	}
	if !a.LastCommitDate.Equal(b.LastCommitDate) {
		return a.LastCommitDate.After(b.LastCommitDate)
	}
	return a.Name < b.Name
}
