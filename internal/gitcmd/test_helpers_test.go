package gitcmd

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

// commandExpectation defines an expected git command call and its result.
type commandExpectation struct {
	dir    string   // Expected working directory; empty skips the check
	args   []string // Expected arguments
	output string   // Output to return
	err    error    // Error to return
}

// setupExpectations returns a client whose runner verifies calls against a sequence of
// expectations. Unmet expectations are reported when the test finishes.
func setupExpectations(t *testing.T, expectations []commandExpectation) *Client {
	t.Helper()

	currentExpectationIndex := 0
	var mu sync.Mutex

	mockFunc := func(_ context.Context, inv Invocation) (string, error) {
		mu.Lock()
		defer mu.Unlock()

		if currentExpectationIndex >= len(expectations) {
			t.Errorf("Unexpected git command call: %v. No more expectations.", inv.Args)
			return "", errors.New("unexpected call")
		}
		expected := expectations[currentExpectationIndex]
		currentExpectationIndex++

		if diff := cmp.Diff(expected.args, inv.Args); diff != "" {
			t.Errorf("Unexpected git command arguments (-want +got):\n%s", diff)
			return "", errors.New("unexpected arguments")
		}
		if expected.dir != "" && expected.dir != inv.Dir {
			t.Errorf("git %v ran in %q, want %q", inv.Args, inv.Dir, expected.dir)
		}
		return expected.output, expected.err
	}

	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		if currentExpectationIndex < len(expectations) {
			t.Errorf("Not all expected git commands were called. Expected %d more.", len(expectations)-currentExpectationIndex)
			for i := currentExpectationIndex; i < len(expectations); i++ {
				t.Logf("Remaining expectation %d: args=%v", i, expectations[i].args)
			}
		}
	})

	return NewClient(time.Second, zaptest.NewLogger(t)).WithRunner(mockFunc)
}

// fakeResponse is the canned answer for one git command line.
type fakeResponse struct {
	output string
	err    error
	delay  time.Duration
}

// fakeGit answers git invocations by their joined argument string, independent of call
// order, which suits code that issues queries concurrently. A key of the form
// "<dir>: <args>" takes precedence for invocations in that directory.
type fakeGit struct {
	t         *testing.T
	responses map[string]fakeResponse

	mu    sync.Mutex
	calls []Invocation
}

func newFakeGit(t *testing.T, responses map[string]fakeResponse) *fakeGit {
	return &fakeGit{t: t, responses: responses}
}

func (f *fakeGit) run(ctx context.Context, inv Invocation) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	key := strings.Join(inv.Args, " ")
	resp, ok := f.responses[inv.Dir+": "+key]
	if !ok {
		resp, ok = f.responses[key]
	}
	if !ok {
		f.t.Errorf("unexpected git call: %s (dir %s)", key, inv.Dir)
		return "", errors.New("unexpected call")
	}
	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp.output, resp.err
}

func (f *fakeGit) client() *Client {
	return NewClient(time.Second, zaptest.NewLogger(f.t)).WithRunner(f.run)
}

// called reports whether a command line was issued.
func (f *fakeGit) called(args string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.Join(c.Args, " ") == args {
			return true
		}
	}
	return false
}
