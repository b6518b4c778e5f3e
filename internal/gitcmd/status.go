package gitcmd

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// StatusEntry is one record of `git status --porcelain=v1 -z`.
type StatusEntry struct {
	Code string // two-letter XY code, "??" for untracked, "!!" for gitignored
	Path string
}

// Untracked reports whether the entry is an untracked file or directory.
func (e StatusEntry) Untracked() bool { return e.Code == "??" }

// Ignored reports whether the entry is matched by a .gitignore rule.
func (e StatusEntry) Ignored() bool { return e.Code == "!!" }

// WorktreeStatus lists uncommitted, untracked and gitignored entries in a working tree.
// Gitignored files are included because removing the worktree destroys them too; only
// the configured ignore list may exempt a path. Untracked and ignored directories are
// reported once, with a trailing slash.
func (c *Client) WorktreeStatus(ctx context.Context, worktreePath string) ([]StatusEntry, error) {
	output, err := c.git(ctx, worktreePath, "status", "--porcelain=v1", "-z", "--untracked-files=normal", "--ignored=matching")
	if err != nil {
		return nil, fmt.Errorf("failed to read status of %s: %w", worktreePath, err)
	}
	return parseStatus(output)
}

func parseStatus(output string) ([]StatusEntry, error) {
	var entries []StatusEntry
	records := strings.Split(output, "\x00")
	for i := 0; i < len(records); i++ {
		record := records[i]
		if record == "" {
			continue
		}
		if len(record) < 4 || record[2] != ' ' {
			return nil, parseErrorf("bad status record %q", record)
		}
		entry := StatusEntry{Code: record[:2], Path: record[3:]}
		entries = append(entries, entry)
		// Renames and copies are followed by their source path.
		if entry.Code[0] == 'R' || entry.Code[0] == 'C' {
			i++
		}
	}
	return entries, nil
}

// DirtyPaths returns the paths of entries that are not covered by the ignore list.
//
// An ignore item matches an entry when it equals the entry path, is a directory prefix of
// it, or (for single-segment items such as "node_modules") names any path segment.
func DirtyPaths(entries []StatusEntry, ignore []string) []string {
	var dirty []string
	for _, e := range entries {
		if !isIgnored(e.Path, ignore) {
			dirty = append(dirty, e.Path)
		}
	}
	return dirty
}

func isIgnored(p string, ignore []string) bool {
	p = strings.TrimSuffix(p, "/")
	segments := strings.Split(p, "/")
	for _, item := range ignore {
		item = strings.Trim(path.Clean(item), "/")
		if item == "" || item == "." {
			continue
		}
		if p == item || strings.HasPrefix(p, item+"/") {
			return true
		}
		if !strings.Contains(item, "/") {
			for _, seg := range segments {
				if seg == item {
					return true
				}
			}
		}
	}
	return false
}
