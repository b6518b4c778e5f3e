package types

import "fmt"

// OutcomeKind tags a DeleteOutcome.
type OutcomeKind int

const (
	OutcomeDeleted OutcomeKind = iota
	OutcomeNeedsConfirmation
	OutcomeRejected
	OutcomeFailed
)

// DeleteStage names the step of a deletion that failed.
type DeleteStage string

const (
	StagePreflight DeleteStage = "preflight"
	StageWorktree  DeleteStage = "worktree"
	StageBranch    DeleteStage = "branch"
)

// DeleteOutcome holds the outcome of one delete attempt.
type DeleteOutcome struct {
	Kind       OutcomeKind
	BranchName string
	RepoPath   string
	Reasons    []string // confirmation reasons, e.g. "uncommitted changes", "not detected as merged"
	Entries    []string // offending paths when the worktree is dirty
	Stage      DeleteStage
	Err        error
	Cmds       []string // git commands attempted
}

// Message renders the outcome for display.
func (o DeleteOutcome) Message() string {
	switch o.Kind {
	case OutcomeDeleted:
		return fmt.Sprintf("Deleted %s", o.BranchName)
	case OutcomeNeedsConfirmation:
		return fmt.Sprintf("'%s': %v", o.BranchName, o.Reasons)
	case OutcomeRejected:
		return fmt.Sprintf("Cannot delete %s: %v", o.BranchName, o.Err)
	default:
		return fmt.Sprintf("Failed to delete %s (%s): %v", o.BranchName, o.Stage, o.Err)
	}
}
