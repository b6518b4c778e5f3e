package analyze

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mkramers/gb/internal/types"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func names(branches []types.ClassifiedBranch) []string {
	out := make([]string, len(branches))
	for i, b := range branches {
		out[i] = b.Name
	}
	return out
}

func byName(branches []types.ClassifiedBranch) map[string]types.ClassifiedBranch {
	m := make(map[string]types.ClassifiedBranch, len(branches))
	for _, b := range branches {
		m[b.Name] = b
	}
	return m
}

func sampleData() types.RawRepoData {
	day := 24 * time.Hour
	return types.RawRepoData{
		DefaultBranch: "main",
		Branches: []types.BranchFact{
			{Name: "main", LastCommitDate: now.Add(-2 * day), MergedIntoDefault: true},
			{Name: "feature/x", LastCommitDate: now.Add(-3 * day), MergedIntoDefault: true},
			{Name: "feature/y", LastCommitDate: now.Add(-4 * day), SquashMerged: true},
			{Name: "feature/z", LastCommitDate: now.Add(-5 * day), Upstream: "origin/feature/z", UpstreamGone: true},
			{Name: "wip", LastCommitDate: now.Add(-1 * day), IsCurrent: true, MergedIntoDefault: true},
			{
				Name: "dirty-wt", LastCommitDate: now.Add(-6 * day), MergedIntoDefault: true,
				HasWorktree: true, WorktreePath: "/wt/dirty",
			},
			{
				Name: "clean-wt", LastCommitDate: now.Add(-90 * day), SquashMerged: true,
				HasWorktree: true, WorktreePath: "/wt/clean",
			},
			{Name: "ancient", LastCommitDate: now.Add(-60 * day), MergedIntoDefault: true},
			{Name: "active", LastCommitDate: now.Add(-1 * time.Hour), Upstream: "origin/active"},
			{Name: "release", LastCommitDate: now.Add(-7 * day), MergedIntoDefault: true},
		},
		Worktrees: []types.WorktreeInfo{
			{Path: "/repo", Branch: "main", Main: true},
			{Path: "/wt/dirty", Branch: "dirty-wt", Dirty: true},
			{Path: "/wt/clean", Branch: "clean-wt"},
		},
	}
}

func TestClassify_DeletablePolicy(t *testing.T) {
	got := byName(Classify(sampleData(), Options{RecentDays: 14, Now: now, Protected: []string{"release"}}))

	want := map[string]types.Deletable{
		"main":      types.DeletableNo,           // default branch
		"release":   types.DeletableNo,           // protected
		"wip":       types.DeletableNo,           // current
		"dirty-wt":  types.DeletableNo,           // dirty worktree
		"feature/x": types.DeletableMergedClean,  // merged
		"feature/y": types.DeletableSquashMerged, // squash
		"feature/z": types.DeletableUpstreamGone, // gone
		"clean-wt":  types.DeletableSquashMerged, // old, but has a worktree
		"active":    types.DeletableNo,
	}
	gotReasons := make(map[string]types.Deletable, len(got))
	for name, b := range got {
		gotReasons[name] = b.Deletable
	}
	if diff := cmp.Diff(want, gotReasons); diff != "" {
		t.Errorf("deletable mismatch (-want +got):\n%s", diff)
	}

	if !got["dirty-wt"].Dirty || got["clean-wt"].Dirty {
		t.Error("worktree dirtiness not carried onto branches")
	}
	if !got["main"].Protected || !got["release"].Protected || got["feature/x"].Protected {
		t.Error("protected flag mismatch")
	}
}

func TestClassify_Ordering(t *testing.T) {
	data := sampleData()
	got := Classify(data, Options{RecentDays: 14, Now: now, Pinned: map[string]bool{"feature/z": true}})

	want := []string{
		"wip",       // current
		"feature/z", // pinned
		"active",
		"main",
		"feature/x",
		"feature/y",
		"dirty-wt",
		"release",
		"clean-wt", // older than recent_days, kept for its worktree
	}
	if diff := cmp.Diff(want, names(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_RecentDaysFilter(t *testing.T) {
	data := sampleData()

	withFilter := byName(Classify(data, Options{RecentDays: 14, Now: now}))
	if _, ok := withFilter["ancient"]; ok {
		t.Error("branch older than recent_days without worktree should be hidden")
	}
	if _, ok := withFilter["clean-wt"]; !ok {
		t.Error("branch with a worktree should always be shown")
	}

	pinned := byName(Classify(data, Options{RecentDays: 14, Now: now, Pinned: map[string]bool{"ancient": true}}))
	if _, ok := pinned["ancient"]; !ok {
		t.Error("pinned branch should always be shown")
	}

	unfiltered := Classify(data, Options{Now: now})
	if len(unfiltered) != len(data.Branches) {
		t.Errorf("RecentDays 0 should show all %d branches, got %d", len(data.Branches), len(unfiltered))
	}
}

func TestClassify_Idempotent(t *testing.T) {
	data := sampleData()
	opts := Options{RecentDays: 14, Now: now, Pinned: map[string]bool{"feature/y": true}}

	first := Classify(data, opts)
	second := Classify(data, opts)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("classify is not idempotent (-first +second):\n%s", diff)
	}
}

func TestClassify_NeverCurrentAndDeletable(t *testing.T) {
	data := sampleData()
	// Mark every branch as a deletion candidate by every rule.
	for i := range data.Branches {
		data.Branches[i].MergedIntoDefault = true
		data.Branches[i].SquashMerged = true
		data.Branches[i].Upstream = "origin/" + data.Branches[i].Name
		data.Branches[i].UpstreamGone = true
	}
	for _, b := range Classify(data, Options{Now: now}) {
		if b.IsDeletable() && b.IsCurrent {
			t.Errorf("%s is both current and deletable", b.Name)
		}
		if b.IsDeletable() && b.HasWorktree && b.Dirty {
			t.Errorf("%s is deletable with a dirty worktree", b.Name)
		}
	}
}

func TestClassify_IgnoredChangesStayClean(t *testing.T) {
	// The collector decides dirtiness after applying the ignore list; a worktree whose
	// only changes are ignored arrives clean and its branch stays deletable.
	data := types.RawRepoData{
		DefaultBranch: "main",
		Branches: []types.BranchFact{
			{Name: "topic", LastCommitDate: now, MergedIntoDefault: true, HasWorktree: true, WorktreePath: "/wt/topic"},
		},
		Worktrees: []types.WorktreeInfo{{Path: "/wt/topic", Branch: "topic"}},
	}
	got := Classify(data, Options{Now: now})
	if got[0].Deletable != types.DeletableMergedClean {
		t.Fatalf("clean worktree: got %q, want merged", got[0].Deletable)
	}

	data.Worktrees[0].Dirty = true
	got = Classify(data, Options{Now: now})
	if got[0].Deletable != types.DeletableNo || !got[0].Dirty {
		t.Fatalf("dirty worktree: got %q dirty=%v, want not deletable", got[0].Deletable, got[0].Dirty)
	}
}

func TestDeletableReason_UpstreamGoneNeedsUpstream(t *testing.T) {
	b := types.ClassifiedBranch{BranchFact: types.BranchFact{Name: "x", UpstreamGone: true}}
	if got := DeletableReason(b); got != types.DeletableNo {
		t.Errorf("gone flag without upstream should not be deletable, got %q", got)
	}
}
