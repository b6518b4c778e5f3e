package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkramers/gb/internal/app"
	"github.com/mkramers/gb/internal/types"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the branches of every repository and exit",
	Long: `list collects every configured repository once, without the interactive UI,
and prints the visible branches with the reason a branch is safe to delete.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().Bool("deletable", false, "Only print branches that are safe to delete.")
}

func runList(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cmd, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	snapshots := collectSnapshots(cmd.Context(), a, appConfig.MaxConcurrency, logger)
	deletableOnly, _ := cmd.Flags().GetBool("deletable")
	return printSnapshots(os.Stdout, snapshots, deletableOnly, time.Now())
}

// collectSnapshots collects every repository concurrently. Failures are kept in the
// snapshot instead of aborting the others.
func collectSnapshots(ctx context.Context, a *app.App, limit int, logger *zap.Logger) []types.RepositorySnapshot {
	repos := a.Repositories()
	snapshots := make([]types.RepositorySnapshot, len(repos))

	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, repo := range repos {
		i, repo := i, repo
		g.Go(func() error {
			snap, err := a.Snapshot(ctx, repo)
			if err != nil {
				logger.Warn("collection failed", zap.String("repo", repo.Path), zap.Error(err))
			}
			snapshots[i] = snap
			return nil
		})
	}
	_ = g.Wait()
	return snapshots
}

func printSnapshots(w io.Writer, snapshots []types.RepositorySnapshot, deletableOnly bool, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, snap := range snapshots {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		header := fmt.Sprintf("%s (%s)", snap.Repo.Name, snap.Repo.Path)
		switch snap.Status {
		case types.StatusFailed:
			header += " failed: " + snap.Reason
		case types.StatusPartial:
			header += " incomplete: " + snap.Reason
		}
		fmt.Fprintln(tw, header)

		for _, b := range snap.Branches {
			if deletableOnly && !b.IsDeletable() {
				continue
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
				branchMarker(b), b.Name, listAge(now, b.LastCommitDate), defaultInfo(b), trackInfo(b), string(b.Deletable))
		}
	}
	return tw.Flush()
}

func branchMarker(b types.ClassifiedBranch) string {
	switch {
	case b.IsCurrent:
		return "*"
	case b.Pinned:
		return "p"
	case b.HasWorktree && b.Dirty:
		return "!"
	case b.HasWorktree:
		return "+"
	}
	return " "
}

// defaultInfo renders the divergence from the default branch as "+ahead -behind".
func defaultInfo(b types.ClassifiedBranch) string {
	var parts []string
	if b.AheadDefault > 0 {
		parts = append(parts, fmt.Sprintf("+%d", b.AheadDefault))
	}
	if b.BehindDefault > 0 {
		parts = append(parts, fmt.Sprintf("-%d", b.BehindDefault))
	}
	return strings.Join(parts, " ")
}

func trackInfo(b types.ClassifiedBranch) string {
	var parts []string
	if b.Upstream != "" {
		parts = append(parts, b.Upstream)
	}
	if b.Ahead > 0 {
		parts = append(parts, fmt.Sprintf("ahead %d", b.Ahead))
	}
	if b.Behind > 0 {
		parts = append(parts, fmt.Sprintf("behind %d", b.Behind))
	}
	if b.UpstreamGone {
		parts = append(parts, "gone")
	}
	return strings.Join(parts, ", ")
}

func listAge(now, t time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	if days < 1 {
		return "today"
	}
	return fmt.Sprintf("%dd ago", days)
}
