package gitcmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkramers/gb/internal/types"
)

const defaultConcurrency = 4

// CollectOptions tunes a single collection.
type CollectOptions struct {
	// Since skips squash detection for branches older than Since that have no
	// worktree; the classifier hides those branches anyway. Zero checks everything.
	Since time.Time
	// WorkingDir is the process working directory. The branch of a worktree that
	// contains it counts as current.
	WorkingDir string
	// Concurrency bounds parallel git invocations within the repository.
	Concurrency int
}

// Collect gathers the raw branch and worktree facts of one repository.
//
// The returned data is always from one attempt: listing queries run first, then the
// merge and dirtiness checks, then divergence and squash checks. Failures of the
// listing queries fail the whole collection; failures of individual checks become
// warnings and fall back to the answer that cannot make a branch deletable.
func (c *Client) Collect(ctx context.Context, repo types.Repository, opts CollectOptions) (types.RawRepoData, error) {
	if info, err := os.Stat(repo.Path); err != nil || !info.IsDir() {
		return types.RawRepoData{}, fmt.Errorf("%s: %w", repo.Path, ErrNotARepo)
	}
	inRepo, err := c.IsInGitRepo(ctx, repo.Path)
	if err != nil {
		return types.RawRepoData{}, fmt.Errorf("%s: %w", repo.Path, err)
	}
	if !inRepo {
		return types.RawRepoData{}, fmt.Errorf("%s: %w", repo.Path, ErrNotARepo)
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	// Phase 1: independent listings.
	var (
		branches   []types.BranchFact
		worktrees  []types.WorktreeInfo
		originHead string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		branches, err = c.ListBranches(gctx, repo.Path)
		return err
	})
	g.Go(func() error {
		var err error
		worktrees, err = c.ListWorktrees(gctx, repo.Path)
		return err
	})
	g.Go(func() error {
		var err error
		originHead, err = c.OriginHead(gctx, repo.Path)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.RawRepoData{}, err
	}

	data := types.RawRepoData{
		Repo:        repo,
		Worktrees:   worktrees,
		CollectedAt: time.Now(),
	}
	local := make(map[string]bool, len(branches))
	for _, b := range branches {
		local[b.Name] = true
	}
	data.DefaultBranch = resolveDefaultBranch(originHead, local)

	var mu sync.Mutex
	warn := func(err error) {
		mu.Lock()
		data.Warnings = append(data.Warnings, err.Error())
		mu.Unlock()
	}

	// Phase 2: ancestry and worktree dirtiness.
	var merged map[string]bool
	var checks errgroup.Group
	checks.SetLimit(limit)
	if data.DefaultBranch != "" {
		checks.Go(func() error {
			m, err := c.MergedBranches(ctx, repo.Path, data.DefaultBranch)
			if err != nil {
				warn(err)
				return nil
			}
			merged = m
			return nil
		})
	}
	for i := range data.Worktrees {
		wt := &data.Worktrees[i]
		if wt.Prunable || wt.Branch == "" {
			continue
		}
		checks.Go(func() error {
			entries, err := c.WorktreeStatus(ctx, wt.Path)
			if err != nil {
				// Unknown state is treated as dirty.
				wt.Dirty = true
				warn(err)
				return nil
			}
			wt.Dirty = len(DirtyPaths(entries, repo.WorktreeIgnore)) > 0
			return nil
		})
	}
	_ = checks.Wait()

	byBranch := make(map[string]types.WorktreeInfo, len(data.Worktrees))
	for _, wt := range data.Worktrees {
		if wt.Branch != "" {
			byBranch[wt.Branch] = wt
		}
	}
	for i := range branches {
		b := &branches[i]
		b.MergedIntoDefault = merged[b.Name]
		if wt, ok := byBranch[b.Name]; ok {
			b.HasWorktree = true
			b.WorktreePath = wt.Path
			if wt.Main || ContainsPath(wt.Path, opts.WorkingDir) {
				b.IsCurrent = true
			}
		}
	}

	// Phase 3: divergence from the default branch and squash detection.
	if data.DefaultBranch != "" {
		squash := newSquashChecker(c, repo.Path, data.DefaultBranch)
		var compares errgroup.Group
		compares.SetLimit(limit)
		for i := range branches {
			b := &branches[i]
			if b.Name == data.DefaultBranch {
				continue
			}
			if !opts.Since.IsZero() && b.LastCommitDate.Before(opts.Since) && !b.HasWorktree {
				continue
			}
			compares.Go(func() error {
				ahead, behind, err := c.DivergenceFromDefault(ctx, repo.Path, data.DefaultBranch, b.Name)
				if err != nil {
					warn(err)
				} else {
					b.AheadDefault, b.BehindDefault = ahead, behind
				}
				return nil
			})
			if b.MergedIntoDefault || b.IsCurrent {
				continue
			}
			compares.Go(func() error {
				ok, err := squash.IsSquashMerged(ctx, b.Name)
				if err != nil {
					warn(err)
					return nil
				}
				b.SquashMerged = ok
				return nil
			})
		}
		_ = compares.Wait()
	}

	if err := ctx.Err(); err != nil {
		return types.RawRepoData{}, err
	}
	data.Branches = branches
	return data, nil
}

// ContainsPath reports whether target is dir or lies beneath it.
func ContainsPath(dir, target string) bool {
	if dir == "" || target == "" {
		return false
	}
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
