// Package cleanup deletes branches and their worktrees after checking that nothing
// unsaved would be lost.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mkramers/gb/internal/analyze"
	"github.com/mkramers/gb/internal/gitcmd"
	"github.com/mkramers/gb/internal/types"
)

var (
	// ErrIsCurrentBranch rejects deleting the checked-out branch.
	ErrIsCurrentBranch = errors.New("branch is currently checked out")
	// ErrProtectedBranch rejects deleting the default branch or a configured protected branch.
	ErrProtectedBranch = errors.New("branch is protected")
	// ErrWorktreeDirty marks a confirmation request caused by changes in the branch's worktree.
	ErrWorktreeDirty = errors.New("worktree has uncommitted changes")
	// ErrUnmerged marks a confirmation request for a branch not known to be merged.
	ErrUnmerged = errors.New("branch is not detected as merged")
)

// Confirmation reasons carried in DeleteOutcome.Reasons.
const (
	ReasonDirty    = "uncommitted changes"
	ReasonUnmerged = "not detected as merged"
)

// Git is the subset of the git client used for deletions.
type Git interface {
	WorktreeStatus(ctx context.Context, worktreePath string) ([]gitcmd.StatusEntry, error)
	RemoveWorktree(ctx context.Context, repoDir, path string) (string, error)
	DeleteBranch(ctx context.Context, repoDir, name string) (string, error)
}

// Executor performs deletions. It is the only component that changes repository state.
type Executor struct {
	git        Git
	invalidate func(repoPath string)
	logger     *zap.Logger
}

// NewExecutor returns an Executor. invalidate is called with the repository path after
// any deletion step changed the repository; it may be nil.
func NewExecutor(git Git, invalidate func(repoPath string), logger *zap.Logger) *Executor {
	if invalidate == nil {
		invalidate = func(string) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{git: git, invalidate: invalidate, logger: logger}
}

// Delete removes branch from repo, and its worktree first when it has one.
//
// Without force, a dirty worktree or a branch that is not known to be deletable yields
// OutcomeNeedsConfirmation and nothing is changed. The current branch and protected
// branches are always rejected.
func (e *Executor) Delete(ctx context.Context, repo types.Repository, branch types.ClassifiedBranch, force bool) types.DeleteOutcome {
	outcome := types.DeleteOutcome{BranchName: branch.Name, RepoPath: repo.Path}

	switch {
	case branch.IsCurrent:
		outcome.Kind = types.OutcomeRejected
		outcome.Stage = types.StagePreflight
		outcome.Err = ErrIsCurrentBranch
		return outcome
	case branch.Protected:
		outcome.Kind = types.OutcomeRejected
		outcome.Stage = types.StagePreflight
		outcome.Err = ErrProtectedBranch
		return outcome
	}

	worktree := ""
	if branch.HasWorktree && branch.WorktreePath != "" {
		worktree = branch.WorktreePath
		dirty, err := e.dirtyPaths(ctx, repo, worktree)
		if err != nil {
			outcome.Kind = types.OutcomeFailed
			outcome.Stage = types.StagePreflight
			outcome.Err = err
			return outcome
		}
		if len(dirty) > 0 {
			outcome.Reasons = append(outcome.Reasons, ReasonDirty)
			outcome.Entries = dirty
			outcome.Err = ErrWorktreeDirty
		}
	}

	// The deletable policy without the dirty rule, which was just checked live.
	clean := branch
	clean.Dirty = false
	if analyze.DeletableReason(clean) == types.DeletableNo {
		outcome.Reasons = append(outcome.Reasons, ReasonUnmerged)
		if outcome.Err == nil {
			outcome.Err = ErrUnmerged
		}
	}

	if len(outcome.Reasons) > 0 && !force {
		outcome.Kind = types.OutcomeNeedsConfirmation
		return outcome
	}
	outcome.Err = nil

	if worktree != "" {
		cmd, err := e.git.RemoveWorktree(ctx, repo.Path, worktree)
		outcome.Cmds = append(outcome.Cmds, cmd)
		if err != nil {
			return e.failed(outcome, types.StageWorktree, err)
		}
	}

	cmd, err := e.git.DeleteBranch(ctx, repo.Path, branch.Name)
	outcome.Cmds = append(outcome.Cmds, cmd)
	if err != nil {
		return e.failed(outcome, types.StageBranch, err)
	}

	outcome.Kind = types.OutcomeDeleted
	e.logger.Info("branch deleted",
		zap.String("repo", repo.Path), zap.String("branch", branch.Name),
		zap.Bool("force", force), zap.Strings("cmds", outcome.Cmds))
	e.invalidate(repo.Path)
	return outcome
}

func (e *Executor) failed(outcome types.DeleteOutcome, stage types.DeleteStage, err error) types.DeleteOutcome {
	outcome.Kind = types.OutcomeFailed
	outcome.Stage = stage
	outcome.Err = err
	e.logger.Warn("deletion failed",
		zap.String("repo", outcome.RepoPath), zap.String("branch", outcome.BranchName),
		zap.String("stage", string(stage)), zap.Error(err))
	// A removed worktree, or a partial failure, still changed what git reports.
	e.invalidate(outcome.RepoPath)
	return outcome
}

// dirtyPaths lists changed paths of the worktree outside the repository's ignore list.
// A worktree directory that no longer exists has nothing to lose.
func (e *Executor) dirtyPaths(ctx context.Context, repo types.Repository, worktree string) ([]string, error) {
	if _, err := os.Stat(worktree); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	entries, err := e.git.WorktreeStatus(ctx, worktree)
	if err != nil {
		return nil, fmt.Errorf("could not check worktree %s: %w", worktree, err)
	}
	return gitcmd.DirtyPaths(entries, repo.WorktreeIgnore), nil
}
