package gitcmd

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseStatus(t *testing.T) {
	output := " M src/app.go\x00?? node_modules/\x00R  new.go\x00old.go\x00A  docs/readme.md\x00!! .env\x00"

	got, err := parseStatus(output)
	if err != nil {
		t.Fatalf("parseStatus: %v", err)
	}
	want := []StatusEntry{
		{Code: " M", Path: "src/app.go"},
		{Code: "??", Path: "node_modules/"},
		{Code: "R ", Path: "new.go"},
		{Code: "A ", Path: "docs/readme.md"},
		{Code: "!!", Path: ".env"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if !got[1].Untracked() || got[0].Untracked() {
		t.Error("Untracked() misreports entry kind")
	}
	if !got[4].Ignored() || got[1].Ignored() {
		t.Error("Ignored() misreports entry kind")
	}
}

func TestParseStatus_Malformed(t *testing.T) {
	if _, err := parseStatus("XYZ"); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestDirtyPaths(t *testing.T) {
	entries := []StatusEntry{
		{Code: "!!", Path: "node_modules/"},
		{Code: "??", Path: "web/node_modules/"},
		{Code: "!!", Path: ".venv/"},
		{Code: " M", Path: "build/out/app.bin"},
		{Code: " M", Path: "src/main.go"},
	}

	testCases := []struct {
		name   string
		ignore []string
		want   []string
	}{
		{
			name: "no ignore list",
			want: []string{"node_modules/", "web/node_modules/", ".venv/", "build/out/app.bin", "src/main.go"},
		},
		{
			name:   "segment and prefix matches",
			ignore: []string{"node_modules", ".venv", "build/out"},
			want:   []string{"src/main.go"},
		},
		{
			name:   "everything ignored",
			ignore: []string{"node_modules", ".venv/", "build", "src/main.go"},
			want:   nil,
		},
		{
			name:   "gitignored entries count unless listed",
			ignore: []string{"node_modules"},
			want:   []string{".venv/", "build/out/app.bin", "src/main.go"},
		},
		{
			name:   "multi-segment items only match as prefix",
			ignore: []string{"out/app.bin"},
			want:   []string{"node_modules/", "web/node_modules/", ".venv/", "build/out/app.bin", "src/main.go"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := DirtyPaths(entries, tc.ignore)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("DirtyPaths mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWorktreeStatus(t *testing.T) {
	args := []string{"status", "--porcelain=v1", "-z", "--untracked-files=normal", "--ignored=matching"}
	client := setupExpectations(t, []commandExpectation{
		{dir: "/wt/feature", args: args, output: "?? scratch.txt\x00!! .env\x00"},
	})

	entries, err := client.WorktreeStatus(context.Background(), "/wt/feature")
	if err != nil {
		t.Fatalf("WorktreeStatus: %v", err)
	}
	want := []StatusEntry{{Code: "??", Path: "scratch.txt"}, {Code: "!!", Path: ".env"}}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}
