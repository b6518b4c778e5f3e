// Package aggregate maintains the live view of every configured repository.
//
// Each repository is collected by its own goroutine. At most one collection per
// repository runs at a time; requests that arrive while one is running are coalesced
// into a single follow-up run. Results replace that repository's snapshot and publish a
// new immutable View, so readers never see a partially updated state.
package aggregate

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mkramers/gb/internal/types"
)

const defaultMaxConcurrency = 4

// CollectFunc gathers the raw data of one repository.
type CollectFunc func(ctx context.Context, repo types.Repository) (types.RawRepoData, error)

// ClassifyFunc turns raw data into the ordered branch list of a snapshot. It must not block.
type ClassifyFunc func(data types.RawRepoData) []types.ClassifiedBranch

// Focus selects which repositories the UI shows.
type Focus int

const (
	// FocusCurrent shows only the repository containing the working directory.
	FocusCurrent Focus = iota
	// FocusAll shows every configured repository.
	FocusAll
)

// View is an immutable picture of all repositories. A new View is built for every change.
type View struct {
	// Generation increases with every published View.
	Generation uint64
	// Repos is in configuration order.
	Repos   []types.RepositorySnapshot
	Focus   Focus
	Current string // path of the repository containing the working directory, if any
}

// Snapshot returns the snapshot of the repository at path.
func (v *View) Snapshot(path string) (types.RepositorySnapshot, bool) {
	for _, s := range v.Repos {
		if s.Repo.Path == path {
			return s, true
		}
	}
	return types.RepositorySnapshot{}, false
}

// Visible returns the snapshots selected by the focus. Without a current repository the
// focus has no effect.
func (v *View) Visible() []types.RepositorySnapshot {
	if v.Focus == FocusAll || v.Current == "" {
		return v.Repos
	}
	if s, ok := v.Snapshot(v.Current); ok {
		return []types.RepositorySnapshot{s}
	}
	return v.Repos
}

// Busy reports whether any repository is pending or being collected.
func (v *View) Busy() bool {
	for _, s := range v.Repos {
		if s.Loading || s.Status == types.StatusPending {
			return true
		}
	}
	return false
}

// Options configures an Aggregator.
type Options struct {
	Collect  CollectFunc
	Classify ClassifyFunc
	// MaxConcurrency bounds the repositories collected in parallel. The priority
	// repository does not count against it.
	MaxConcurrency int
	// Current is the path of the repository containing the working directory.
	Current string
	Focus   Focus
	Logger  *zap.Logger
}

type repoState struct {
	running bool
	pending bool
	raw     *types.RawRepoData
}

// Aggregator owns the View. It is the only writer of repository snapshots.
type Aggregator struct {
	repos    []types.Repository
	index    map[string]int
	collect  CollectFunc
	classify ClassifyFunc
	current  string
	logger   *zap.Logger

	slots   *semaphore.Weighted
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	updates chan struct{}

	mu         sync.Mutex
	closed     bool
	states     []repoState
	snapshots  []types.RepositorySnapshot
	focus      Focus
	generation uint64

	view atomic.Pointer[View]
}

// New creates an Aggregator with every repository pending. Nothing is collected until
// CollectAll or Request is called.
func New(repos []types.Repository, opts Options) *Aggregator {
	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = defaultMaxConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &Aggregator{
		repos:     slices.Clone(repos),
		index:     make(map[string]int, len(repos)),
		collect:   opts.Collect,
		classify:  opts.Classify,
		current:   opts.Current,
		logger:    logger,
		slots:     semaphore.NewWeighted(int64(limit)),
		ctx:       ctx,
		cancel:    cancel,
		updates:   make(chan struct{}, 1),
		states:    make([]repoState, len(repos)),
		snapshots: make([]types.RepositorySnapshot, len(repos)),
		focus:     opts.Focus,
	}
	for i, r := range a.repos {
		a.index[r.Path] = i
		a.snapshots[i] = types.RepositorySnapshot{Repo: r, Status: types.StatusPending}
	}

	a.mu.Lock()
	a.publishLocked()
	a.mu.Unlock()
	return a
}

// View returns the current View. The result must not be modified.
func (a *Aggregator) View() *View {
	return a.view.Load()
}

// Updates signals that a new View was published. Signals are coalesced; the channel is
// closed by Close.
func (a *Aggregator) Updates() <-chan struct{} {
	return a.updates
}

// Repositories returns the configured repositories in order.
func (a *Aggregator) Repositories() []types.Repository {
	return slices.Clone(a.repos)
}

// SetFocus changes which repositories the View marks visible.
func (a *Aggregator) SetFocus(f Focus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.focus == f {
		return
	}
	a.focus = f
	a.publishLocked()
}

// CollectAll requests a collection of every repository, starting with priority.
// The priority repository bypasses the concurrency limit so that it is never queued
// behind slower repositories.
func (a *Aggregator) CollectAll(priority string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if idx, ok := a.index[priority]; ok {
		a.requestLocked(idx, true)
	}
	for i, r := range a.repos {
		if r.Path != priority {
			a.requestLocked(i, false)
		}
	}
	a.publishLocked()
}

// Request asks for a collection of one repository. It reports false for an unknown path.
// A request for a repository that is already being collected runs once more after the
// current collection; further requests in the meantime are merged into that one.
func (a *Aggregator) Request(path string) bool {
	idx, ok := a.index[path]
	if !ok {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return true
	}
	a.requestLocked(idx, path == a.current)
	a.publishLocked()
	return true
}

// Reclassify rebuilds the branch list of a repository from its last collected data, e.g.
// after a pin changed. It does not run git.
func (a *Aggregator) Reclassify(path string) {
	idx, ok := a.index[path]
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.states[idx].raw == nil {
		return
	}
	a.snapshots[idx].Branches = a.classify(*a.states[idx].raw)
	a.publishLocked()
}

// Close stops the Aggregator. Collections in flight are cancelled and their results are
// discarded. Close returns once every collection goroutine has exited.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.cancel()
	close(a.updates)
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *Aggregator) requestLocked(idx int, priority bool) {
	st := &a.states[idx]
	if st.running {
		st.pending = true
		return
	}
	st.running = true
	a.snapshots[idx].Loading = true
	a.wg.Add(1)
	go a.run(idx, priority)
}

func (a *Aggregator) run(idx int, priority bool) {
	defer a.wg.Done()
	repo := a.repos[idx]

	for {
		if !priority {
			if err := a.slots.Acquire(a.ctx, 1); err != nil {
				return
			}
		}

		start := time.Now()
		raw, err := a.collect(a.ctx, repo)
		if !priority {
			a.slots.Release(1)
		}

		var branches []types.ClassifiedBranch
		if err == nil {
			branches = a.classify(raw)
		}
		if !a.finish(idx, raw, branches, err, time.Since(start)) {
			return
		}
	}
}

// finish stores one collection result and reports whether a coalesced request asks for
// another run.
func (a *Aggregator) finish(idx int, raw types.RawRepoData, branches []types.ClassifiedBranch, err error, took time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	repo := a.repos[idx]
	if a.closed {
		a.logger.Debug("discarding result after close", zap.String("repo", repo.Path))
		return false
	}

	snap := a.snapshots[idx]
	if err != nil {
		// Branches from the last successful collection stay visible.
		snap.Status = types.StatusFailed
		snap.Reason = err.Error()
		a.logger.Warn("collection failed",
			zap.String("repo", repo.Path), zap.Duration("took", took), zap.Error(err))
	} else {
		a.states[idx].raw = &raw
		snap.DefaultBranch = raw.DefaultBranch
		snap.Branches = branches
		snap.LastSuccess = raw.CollectedAt
		if len(raw.Warnings) > 0 {
			snap.Status = types.StatusPartial
			snap.Reason = strings.Join(raw.Warnings, "; ")
		} else {
			snap.Status = types.StatusComplete
			snap.Reason = ""
		}
		a.logger.Info("collection finished",
			zap.String("repo", repo.Path),
			zap.Int("branches", len(raw.Branches)),
			zap.Int("warnings", len(raw.Warnings)),
			zap.Duration("took", took))
	}

	st := &a.states[idx]
	again := st.pending
	st.pending = false
	st.running = again
	snap.Loading = again
	a.snapshots[idx] = snap
	a.publishLocked()
	return again
}

func (a *Aggregator) publishLocked() {
	a.generation++
	a.view.Store(&View{
		Generation: a.generation,
		Repos:      slices.Clone(a.snapshots),
		Focus:      a.focus,
		Current:    a.current,
	})
	if a.closed {
		return
	}
	select {
	case a.updates <- struct{}{}:
	default:
	}
}
