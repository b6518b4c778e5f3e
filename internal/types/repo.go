package types

import (
	"path/filepath"
	"time"
)

// Repository is a configured repository. It is created once at startup and never mutated.
type Repository struct {
	Path           string // absolute, identity
	Name           string
	WorktreeIgnore []string
}

// NewRepository builds a Repository whose display name is the last path element.
func NewRepository(path string, ignore []string) Repository {
	return Repository{
		Path:           path,
		Name:           filepath.Base(path),
		WorktreeIgnore: ignore,
	}
}

// SnapshotStatus is the collection state of one repository.
type SnapshotStatus string

const (
	StatusPending  SnapshotStatus = "pending"
	StatusPartial  SnapshotStatus = "partial"
	StatusComplete SnapshotStatus = "complete"
	StatusFailed   SnapshotStatus = "failed"
)

// RepositorySnapshot is an immutable view of one repository's classified branches.
// A failed snapshot keeps the branches from the last successful collection.
type RepositorySnapshot struct {
	Repo          Repository
	DefaultBranch string
	Branches      []ClassifiedBranch
	Status        SnapshotStatus
	Reason        string // failure reason or joined warnings
	LastSuccess   time.Time
	Loading       bool // a collection for this repository is in flight
}

// Branch looks up a branch by name.
func (s RepositorySnapshot) Branch(name string) (ClassifiedBranch, bool) {
	for _, b := range s.Branches {
		if b.Name == name {
			return b, true
		}
	}
	return ClassifiedBranch{}, false
}
