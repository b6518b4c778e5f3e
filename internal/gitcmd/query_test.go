package gitcmd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mkramers/gb/internal/types"
)

const (
	simulatedGitError = "simulated git error"
	repoDir           = "/src/app"
)

func branchRecord(fields ...string) string {
	return strings.Join(fields, fieldSeparator)
}

func TestListBranches(t *testing.T) {
	ctx := context.Background()
	listArgs := []string{"for-each-ref", "--format=" + branchInfoFormat, headsPrefix}

	sampleOutput := strings.Join([]string{
		branchRecord("refs/heads/main", "hash1", "*", "1707000000", "origin/main", ""),
		branchRecord("refs/heads/feature/a", "hash2", " ", "1707100000", "", ""),
		branchRecord("refs/heads/feature/z", "hash3", " ", "1600000000", "origin/feature/z", "gone"),
		branchRecord("refs/heads/dev", "hash4", " ", "1707200000", "origin/dev", "ahead 2, behind 1"),
	}, "\n")

	expectedBranches := []types.BranchFact{
		{Name: "main", Commit: "hash1", IsCurrent: true, Upstream: "origin/main", LastCommitDate: time.Unix(1707000000, 0)},
		{Name: "feature/a", Commit: "hash2", LastCommitDate: time.Unix(1707100000, 0)},
		{
			Name: "feature/z", Commit: "hash3", Upstream: "origin/feature/z", UpstreamGone: true,
			LastCommitDate: time.Unix(1600000000, 0),
		},
		{
			Name: "dev", Commit: "hash4", Upstream: "origin/dev", Ahead: 2, Behind: 1,
			LastCommitDate: time.Unix(1707200000, 0),
		},
	}

	t.Run("Successful Parsing", func(t *testing.T) {
		client := setupExpectations(t, []commandExpectation{
			{dir: repoDir, args: listArgs, output: sampleOutput},
		})

		branches, err := client.ListBranches(ctx, repoDir)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if diff := cmp.Diff(expectedBranches, branches); diff != "" {
			t.Errorf("branches mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Empty Output", func(t *testing.T) {
		client := setupExpectations(t, []commandExpectation{{args: listArgs}})

		branches, err := client.ListBranches(ctx, repoDir)
		if err != nil {
			t.Fatalf("Expected no error for empty output, got %v", err)
		}
		if len(branches) != 0 {
			t.Errorf("Expected empty branch slice, got %d branches", len(branches))
		}
	})

	t.Run("Git Command Error", func(t *testing.T) {
		client := setupExpectations(t, []commandExpectation{
			{args: listArgs, err: errors.New(simulatedGitError)},
		})

		_, err := client.ListBranches(ctx, repoDir)
		if err == nil {
			t.Fatal("Expected an error, got nil")
		}
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			t.Errorf("Expected a *CommandError, got %T", err)
		}
		if !strings.Contains(err.Error(), simulatedGitError) {
			t.Errorf("Expected error to contain '%s', got: %v", simulatedGitError, err)
		}
	})

	t.Run("Malformed Record", func(t *testing.T) {
		malformed := sampleOutput + "\nrefs/heads/broken\x00only-two"
		client := setupExpectations(t, []commandExpectation{{args: listArgs, output: malformed}})

		_, err := client.ListBranches(ctx, repoDir)
		if !errors.Is(err, ErrParse) {
			t.Fatalf("Expected ErrParse, got %v", err)
		}
	})
}

func TestParseTrack(t *testing.T) {
	testCases := []struct {
		in      string
		want    trackStatus
		wantErr bool
	}{
		{in: "", want: trackStatus{}},
		{in: "gone", want: trackStatus{gone: true}},
		{in: "ahead 3", want: trackStatus{ahead: 3}},
		{in: "behind 2", want: trackStatus{behind: 2}},
		{in: "ahead 5, behind 1", want: trackStatus{ahead: 5, behind: 1}},
		{in: "sideways 1", wantErr: true},
		{in: "ahead x", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseTrack(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("parseTrack(%q) error = %v, want ErrParse", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTrack(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("parseTrack(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

const worktreeOutput = `worktree /Users/mk/projects/app
HEAD abc1234def5678901234567890abcdef12345678
branch refs/heads/main

worktree /Users/mk/projects/app-feature
HEAD def5678abc1234901234567890abcdef12345678
branch refs/heads/feature-x

worktree /Users/mk/projects/app-detached
HEAD 1111111abc1234901234567890abcdef12345678
detached

worktree /Users/mk/projects/app-gone
HEAD 2222222abc1234901234567890abcdef12345678
branch refs/heads/gone-branch
prunable gitdir file points to non-existent location
`

func TestParseWorktrees(t *testing.T) {
	got, err := parseWorktrees(worktreeOutput)
	if err != nil {
		t.Fatalf("parseWorktrees: %v", err)
	}
	want := []types.WorktreeInfo{
		{Path: "/Users/mk/projects/app", Head: "abc1234def5678901234567890abcdef12345678", Branch: "main", Main: true},
		{Path: "/Users/mk/projects/app-feature", Head: "def5678abc1234901234567890abcdef12345678", Branch: "feature-x"},
		{Path: "/Users/mk/projects/app-detached", Head: "1111111abc1234901234567890abcdef12345678"},
		{
			Path: "/Users/mk/projects/app-gone", Head: "2222222abc1234901234567890abcdef12345678",
			Branch: "gone-branch", Prunable: true,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("worktrees mismatch (-want +got):\n%s", diff)
	}
}

func TestParseWorktrees_Malformed(t *testing.T) {
	_, err := parseWorktrees("HEAD abc\nworktree /x\n")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestResolveDefaultBranch(t *testing.T) {
	local := map[string]bool{"main": true, "master": true, "trunk": true}
	if got := resolveDefaultBranch("trunk", local); got != "trunk" {
		t.Errorf("origin/HEAD target should win, got %q", got)
	}
	if got := resolveDefaultBranch("develop", local); got != "main" {
		t.Errorf("missing origin/HEAD target should fall back to main, got %q", got)
	}
	if got := resolveDefaultBranch("", map[string]bool{"master": true}); got != "master" {
		t.Errorf("expected master fallback, got %q", got)
	}
	if got := resolveDefaultBranch("", map[string]bool{"feature": true}); got != "" {
		t.Errorf("expected no default branch, got %q", got)
	}
}

func TestOriginHead(t *testing.T) {
	ctx := context.Background()
	args := []string{"symbolic-ref", "--quiet", "--short", "refs/remotes/origin/HEAD"}

	client := setupExpectations(t, []commandExpectation{
		{args: args, output: "origin/trunk\n"},
		{args: args, err: errors.New("exit status 1")},
	})

	head, err := client.OriginHead(ctx, repoDir)
	if err != nil || head != "trunk" {
		t.Errorf("OriginHead = %q, %v; want trunk, nil", head, err)
	}
	head, err = client.OriginHead(ctx, repoDir)
	if err != nil || head != "" {
		t.Errorf("OriginHead without origin/HEAD = %q, %v; want empty, nil", head, err)
	}
}

func TestMergedBranches(t *testing.T) {
	ctx := context.Background()
	args := []string{"for-each-ref", "--merged=refs/heads/main", "--format=%(refname)", headsPrefix}

	t.Run("Successful Parsing", func(t *testing.T) {
		client := setupExpectations(t, []commandExpectation{
			{args: args, output: "refs/heads/feature/x\nrefs/heads/main\n"},
		})
		merged, err := client.MergedBranches(ctx, repoDir, "main")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		want := map[string]bool{"feature/x": true, "main": true}
		if diff := cmp.Diff(want, merged); diff != "" {
			t.Errorf("merged mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Empty Target", func(t *testing.T) {
		client := setupExpectations(t, nil)
		if _, err := client.MergedBranches(ctx, repoDir, ""); err == nil {
			t.Error("Expected error for empty target")
		}
	})
}

func TestIsInGitRepo(t *testing.T) {
	ctx := context.Background()
	args := []string{"rev-parse", "--is-inside-work-tree"}

	client := setupExpectations(t, []commandExpectation{
		{args: args, output: "true\n"},
		{args: args, err: errors.New("fatal: not a git repository")},
		{args: args, err: &CommandError{Args: args, Timeout: true}},
	})

	if ok, err := client.IsInGitRepo(ctx, repoDir); !ok || err != nil {
		t.Errorf("inside repo: got %v, %v", ok, err)
	}
	if ok, err := client.IsInGitRepo(ctx, repoDir); ok || err != nil {
		t.Errorf("outside repo: got %v, %v; want false, nil", ok, err)
	}
	if _, err := client.IsInGitRepo(ctx, repoDir); !IsTimeout(err) {
		t.Errorf("timeout should propagate, got %v", err)
	}
}

func TestClientRun_Timeout(t *testing.T) {
	slow := func(ctx context.Context, inv Invocation) (string, error) {
		<-ctx.Done()
		return "", &CommandError{Args: inv.Args, Err: ctx.Err()}
	}
	client := NewClient(20*time.Millisecond, nil).WithRunner(slow)

	_, err := client.ListBranches(context.Background(), repoDir)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("timeout error should say so, got %q", err.Error())
	}
}

func TestMainWorktree(t *testing.T) {
	ctx := context.Background()
	args := []string{"rev-parse", "--path-format=absolute", "--git-common-dir"}

	client := setupExpectations(t, []commandExpectation{
		{dir: "/src/app-feature", args: args, output: "/src/app/.git\n"},
		{args: args, output: "/srv/mirror.git"},
		{args: args, err: errors.New("fatal: not a git repository")},
	})

	got, err := client.MainWorktree(ctx, "/src/app-feature")
	if err != nil || got != "/src/app" {
		t.Errorf("MainWorktree = %q, %v; want /src/app, nil", got, err)
	}
	if _, err := client.MainWorktree(ctx, "/srv/mirror.git"); !errors.Is(err, ErrParse) {
		t.Errorf("bare repository: expected ErrParse, got %v", err)
	}
	if _, err := client.MainWorktree(ctx, "/tmp"); err == nil {
		t.Error("expected an error outside a repository")
	}
}

func TestDivergenceFromDefault(t *testing.T) {
	ctx := context.Background()
	args := []string{"rev-list", "--left-right", "--count", "main...feature/x"}

	client := setupExpectations(t, []commandExpectation{
		{dir: repoDir, args: args, output: "3\t5\n"},
		{dir: repoDir, args: args, output: "3\n"},
		{dir: repoDir, args: args, err: errors.New(simulatedGitError)},
	})

	ahead, behind, err := client.DivergenceFromDefault(ctx, repoDir, "main", "feature/x")
	if err != nil || ahead != 5 || behind != 3 {
		t.Errorf("DivergenceFromDefault = %d, %d, %v; want 5, 3, nil", ahead, behind, err)
	}
	if _, _, err := client.DivergenceFromDefault(ctx, repoDir, "main", "feature/x"); !errors.Is(err, ErrParse) {
		t.Errorf("expected ErrParse for a single count, got %v", err)
	}
	if _, _, err := client.DivergenceFromDefault(ctx, repoDir, "main", "feature/x"); err == nil {
		t.Error("expected git failure to be returned")
	}
}
