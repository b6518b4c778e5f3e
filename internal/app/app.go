// Package app wires the collection engine together for one gb process.
//
// An App owns every long-lived component: the git client, the aggregator that holds the
// repository view, the refresh scheduler and the deletion executor. The UI receives the
// App at construction; no component keeps package-level state.
package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkramers/gb/internal/aggregate"
	"github.com/mkramers/gb/internal/analyze"
	"github.com/mkramers/gb/internal/cleanup"
	"github.com/mkramers/gb/internal/config"
	"github.com/mkramers/gb/internal/gitcmd"
	"github.com/mkramers/gb/internal/pins"
	"github.com/mkramers/gb/internal/refresh"
	"github.com/mkramers/gb/internal/types"
)

// Options configures New.
type Options struct {
	Config config.Config
	Pins   *pins.Store
	Logger *zap.Logger
	// Git overrides the git client, e.g. in tests. Nil builds one from Config.
	Git *gitcmd.Client
	// WorkingDir is the directory gb was started in.
	WorkingDir string
	// Current is the configured repository containing WorkingDir, if any.
	Current string
	// ShowAll starts with every repository visible instead of only Current.
	ShowAll bool
}

// App is the process-scoped context shared by the UI and the command line.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	git        *gitcmd.Client
	pins       *pins.Store
	workingDir string
	current    string
	repos      []types.Repository

	Aggregator *aggregate.Aggregator
	Scheduler  *refresh.Scheduler
	Executor   *cleanup.Executor
}

// New builds an App. Nothing runs until Start.
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	git := opts.Git
	if git == nil {
		git = gitcmd.NewClient(opts.Config.CommandTimeout, logger.Named("git"))
	}

	a := &App{
		cfg:        opts.Config,
		logger:     logger,
		git:        git,
		pins:       opts.Pins,
		workingDir: opts.WorkingDir,
		current:    opts.Current,
	}
	for _, path := range opts.Config.Repos {
		a.repos = append(a.repos, types.NewRepository(path, opts.Config.WorktreeIgnore))
	}

	focus := aggregate.FocusCurrent
	if opts.ShowAll {
		focus = aggregate.FocusAll
	}
	a.Aggregator = aggregate.New(a.repos, aggregate.Options{
		Collect:        a.collect,
		Classify:       a.classify,
		MaxConcurrency: opts.Config.MaxConcurrency,
		Current:        opts.Current,
		Focus:          focus,
		Logger:         logger.Named("aggregate"),
	})
	a.Scheduler = refresh.New(a.Aggregator, opts.Config.RefreshInterval, opts.Current, logger.Named("refresh"))
	a.Executor = cleanup.NewExecutor(git, a.Scheduler.Trigger, logger.Named("cleanup"))
	return a
}

// Start begins collecting: the current repository first, the others in the background,
// then again on every refresh interval.
func (a *App) Start() {
	a.logger.Info("starting",
		zap.Int("repos", len(a.repos)), zap.String("current", a.current),
		zap.Duration("interval", a.cfg.RefreshInterval))
	a.Scheduler.Start()
}

// Close stops refreshing and abandons in-flight collections. Results that arrive later are
// dropped.
func (a *App) Close() {
	a.Scheduler.Stop()
	a.Aggregator.Close()
	a.logger.Info("stopped")
}

// Current returns the configured repository containing the working directory, or "".
func (a *App) Current() string { return a.current }

// Repositories returns the configured repositories in order.
func (a *App) Repositories() []types.Repository { return a.repos }

// View returns the latest aggregate view.
func (a *App) View() *aggregate.View { return a.Aggregator.View() }

// Updates signals new views; it is closed by Close.
func (a *App) Updates() <-chan struct{} { return a.Aggregator.Updates() }

// SetFocus switches between the current repository and all repositories.
func (a *App) SetFocus(f aggregate.Focus) { a.Aggregator.SetFocus(f) }

// Refresh re-collects every repository now.
func (a *App) Refresh() { a.Scheduler.Trigger("") }

// PauseRefresh stops periodic refreshes, e.g. while a deletion waits for confirmation.
func (a *App) PauseRefresh() { a.Scheduler.Pause() }

// ResumeRefresh undoes PauseRefresh.
func (a *App) ResumeRefresh() { a.Scheduler.Resume() }

// Delete runs the deletion executor. A deleted branch also loses its pin.
func (a *App) Delete(ctx context.Context, repo types.Repository, branch types.ClassifiedBranch, force bool) types.DeleteOutcome {
	outcome := a.Executor.Delete(ctx, repo, branch, force)
	if outcome.Kind == types.OutcomeDeleted && a.pins != nil {
		if err := a.pins.Forget(repo.Path, branch.Name); err != nil {
			a.logger.Warn("could not drop pin", zap.String("branch", branch.Name), zap.Error(err))
		}
	}
	return outcome
}

// TogglePin pins or unpins a branch and re-sorts its repository without running git.
func (a *App) TogglePin(repo types.Repository, branch string) (bool, error) {
	if a.pins == nil {
		return false, nil
	}
	pinned, err := a.pins.Toggle(repo.Path, branch)
	if err != nil {
		return pinned, err
	}
	a.Aggregator.Reclassify(repo.Path)
	return pinned, nil
}

// Snapshot collects and classifies one repository on the calling goroutine, outside the
// aggregator. It is used by one-shot commands that do not run the refresh loop.
func (a *App) Snapshot(ctx context.Context, repo types.Repository) (types.RepositorySnapshot, error) {
	snap := types.RepositorySnapshot{Repo: repo, Status: types.StatusPending}
	raw, err := a.collect(ctx, repo)
	if err != nil {
		snap.Status = types.StatusFailed
		snap.Reason = err.Error()
		return snap, err
	}
	snap.DefaultBranch = raw.DefaultBranch
	snap.Branches = a.classify(raw)
	snap.LastSuccess = raw.CollectedAt
	snap.Status = types.StatusComplete
	if len(raw.Warnings) > 0 {
		snap.Status = types.StatusPartial
		snap.Reason = strings.Join(raw.Warnings, "; ")
	}
	return snap, nil
}

func (a *App) collect(ctx context.Context, repo types.Repository) (types.RawRepoData, error) {
	opts := gitcmd.CollectOptions{
		WorkingDir:  a.workingDir,
		Concurrency: a.cfg.MaxConcurrency,
	}
	if a.cfg.RecentDays > 0 {
		opts.Since = time.Now().AddDate(0, 0, -a.cfg.RecentDays)
	}
	return a.git.Collect(ctx, repo, opts)
}

func (a *App) classify(data types.RawRepoData) []types.ClassifiedBranch {
	// Classification depends only on the collected data, so a reclassification after
	// a pin toggle hides no branch that the collection showed.
	opts := analyze.Options{
		RecentDays: a.cfg.RecentDays,
		Now:        data.CollectedAt,
		Protected:  a.cfg.ProtectedBranches,
	}
	if a.pins != nil {
		opts.Pinned = a.pins.Pinned(data.Repo.Path)
	}
	return analyze.Classify(data, opts)
}

// FindCurrent returns the configured repository that contains dir, either directly or
// through one of its linked worktrees. It returns "" when none does.
func FindCurrent(ctx context.Context, git *gitcmd.Client, repos []string, dir string) string {
	for _, r := range repos {
		if gitcmd.ContainsPath(r, dir) {
			return r
		}
	}
	mainWorktree, err := git.MainWorktree(ctx, dir)
	if err != nil {
		return ""
	}
	for _, r := range repos {
		if r == mainWorktree {
			return r
		}
	}
	return ""
}
