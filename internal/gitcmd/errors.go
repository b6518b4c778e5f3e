package gitcmd

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	// ErrGitNotFound indicates git is not installed or not in PATH.
	ErrGitNotFound = errors.New("git not found: please install git (https://git-scm.com)")
	// ErrNotARepo is returned when a configured path is missing or is not a git work tree.
	ErrNotARepo = errors.New("not a git repository")
	// ErrParse marks git output that did not match the expected format.
	ErrParse = errors.New("unexpected git output")
)

// CommandError reports a failed git invocation.
type CommandError struct {
	Args    []string
	Stderr  string
	Timeout bool
	Err     error
}

func (e *CommandError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("git %s: timed out", strings.Join(e.Args, " "))
	}
	if e.Stderr != "" {
		return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), e.Stderr)
	}
	return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsTimeout reports whether err was caused by a git invocation exceeding its time bound.
func IsTimeout(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr) && cmdErr.Timeout
}

// parseErrorf wraps ErrParse with details about the offending output.
func parseErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// CheckGit verifies that git is available in PATH.
func CheckGit() error {
	if _, err := exec.LookPath("git"); err != nil {
		return ErrGitNotFound
	}
	return nil
}
