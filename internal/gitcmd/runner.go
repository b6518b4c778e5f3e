package gitcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single git invocation when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

// Invocation describes one git command.
type Invocation struct {
	Dir   string   // working directory; empty means the process cwd
	Args  []string // arguments after "git"
	Stdin string   // optional standard input
}

// String renders the invocation the way a user would type it.
func (inv Invocation) String() string {
	return "git " + strings.Join(inv.Args, " ")
}

// GitRunner defines the function signature for executing git commands.
// This allows mocking the actual git execution during tests.
type GitRunner func(ctx context.Context, inv Invocation) (stdout string, err error)

// Client runs git commands with a bounded execution time.
type Client struct {
	runner  GitRunner
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient returns a Client backed by the git binary on PATH.
// A zero timeout selects DefaultTimeout; a nil logger discards output.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{runner: runGitCommandReal, timeout: timeout, logger: logger}
}

// WithRunner returns a copy of the client that executes through runner.
func (c *Client) WithRunner(runner GitRunner) *Client {
	clone := *c
	clone.runner = runner
	return &clone
}

// run executes one invocation, applying the client timeout and translating failures
// into *CommandError values.
func (c *Client) run(ctx context.Context, inv Invocation) (string, error) {
	if c.runner == nil {
		// Safety check, should not happen if initialized correctly.
		return "", fmt.Errorf("GitRunner is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.runner(ctx, inv)
	c.logger.Debug("git",
		zap.String("dir", inv.Dir),
		zap.Strings("args", inv.Args),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	if err == nil {
		return out, nil
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		cmdErr = &CommandError{Args: inv.Args, Err: err}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		cmdErr.Timeout = true
	}
	return out, cmdErr
}

// git is a convenience wrapper for invocations without standard input.
func (c *Client) git(ctx context.Context, dir string, args ...string) (string, error) {
	return c.run(ctx, Invocation{Dir: dir, Args: args})
}

// runGitCommandReal is the actual implementation that executes git commands.
func runGitCommandReal(ctx context.Context, inv Invocation) (string, error) {
	cmd := exec.CommandContext(ctx, "git", inv.Args...)
	cmd.Dir = inv.Dir
	// Queries must not take optional locks (e.g. the index refresh done by status)
	// and messages must be stable for the few places that inspect stderr.
	cmd.Env = append(os.Environ(), "GIT_OPTIONAL_LOCKS=0", "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	if inv.Stdin != "" {
		cmd.Stdin = strings.NewReader(inv.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	// Only trailing newlines are stripped: porcelain output may start with a space.
	stdout := strings.TrimRight(stdoutBuf.String(), "\r\n")
	if err != nil {
		return stdout, &CommandError{
			Args:   inv.Args,
			Stderr: strings.TrimSpace(stderrBuf.String()),
			Err:    err,
		}
	}
	return stdout, nil
}
