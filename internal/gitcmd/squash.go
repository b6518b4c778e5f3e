package gitcmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// AreChangesIncluded reports whether every commit on head has a patch-equivalent
// commit on upstream, using `git cherry`. A branch without unique commits returns false;
// ancestry is the merged check's business.
func (c *Client) AreChangesIncluded(ctx context.Context, dir, upstream, head string) (bool, error) {
	output, err := c.git(ctx, dir, "cherry", upstream, head)
	if err != nil {
		return false, fmt.Errorf("failed git cherry %s %s: %w", upstream, head, err)
	}
	return parseCherry(output)
}

func parseCherry(output string) (bool, error) {
	seen := 0
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line[0] {
		case '-':
			seen++
		case '+':
			return false, nil
		default:
			return false, parseErrorf("bad cherry line %q", line)
		}
	}
	return seen > 0, nil
}

// PatchIDs runs `git patch-id --stable` over a patch stream and returns the ids in order.
func (c *Client) PatchIDs(ctx context.Context, dir, patch string) ([]string, error) {
	if strings.TrimSpace(patch) == "" {
		return nil, nil
	}
	output, err := c.run(ctx, Invocation{Dir: dir, Args: []string{"patch-id", "--stable"}, Stdin: patch + "\n"})
	if err != nil {
		return nil, fmt.Errorf("failed git patch-id: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, parseErrorf("bad patch-id line %q", line)
		}
		ids = append(ids, fields[0])
	}
	return ids, nil
}

// squashChecker detects squash merges into one default branch during a single
// collection attempt. The default branch's patch-ids are cached per merge-base.
type squashChecker struct {
	client        *Client
	dir           string
	defaultBranch string

	mu    sync.Mutex
	cache map[string]map[string]bool
}

func newSquashChecker(client *Client, dir, defaultBranch string) *squashChecker {
	return &squashChecker{
		client:        client,
		dir:           dir,
		defaultBranch: defaultBranch,
		cache:         make(map[string]map[string]bool),
	}
}

// IsSquashMerged reports whether branch's net change since its merge-base already
// exists on the default branch. Anything ambiguous answers false.
func (s *squashChecker) IsSquashMerged(ctx context.Context, branch string) (bool, error) {
	// Rebase merges keep one upstream commit per branch commit.
	included, err := s.client.AreChangesIncluded(ctx, s.dir, s.defaultBranch, branch)
	if err != nil {
		return false, err
	}
	if included {
		return true, nil
	}

	base, err := s.client.git(ctx, s.dir, "merge-base", s.defaultBranch, branch)
	if err != nil {
		return false, fmt.Errorf("failed to find merge-base of %s and %s: %w", s.defaultBranch, branch, err)
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return false, nil
	}

	diff, err := s.client.git(ctx, s.dir, "diff-tree", "-r", "-p", base, branch)
	if err != nil {
		return false, fmt.Errorf("failed to diff %s: %w", branch, err)
	}
	ids, err := s.client.PatchIDs(ctx, s.dir, diff)
	if err != nil {
		return false, err
	}
	if len(ids) != 1 {
		// An empty net diff says nothing about where the work went.
		return false, nil
	}

	landed, err := s.defaultPatchIDs(ctx, base)
	if err != nil {
		return false, err
	}
	return landed[ids[0]], nil
}

// defaultPatchIDs returns the patch-ids of the newest non-merge commits on the
// default branch since base.
func (s *squashChecker) defaultPatchIDs(ctx context.Context, base string) (map[string]bool, error) {
	s.mu.Lock()
	cached, ok := s.cache[base]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	log, err := s.client.git(ctx, s.dir, "log", "-p", "--no-merges", "--no-color", "--no-decorate", "--no-ext-diff",
		"-n", strconv.Itoa(maxSquashScan), base+".."+s.defaultBranch)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s history: %w", s.defaultBranch, err)
	}
	ids, err := s.client.PatchIDs(ctx, s.dir, log)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	s.mu.Lock()
	s.cache[base] = set
	s.mu.Unlock()
	return set, nil
}
