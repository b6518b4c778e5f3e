// Package pins persists the set of branches the user pinned, per repository.
package pins

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"
)

const defaultFile = "pins.toml"

// file is the on-disk shape: repository path -> pinned branch names.
type file struct {
	Repos map[string][]string `toml:"repos"`
}

// Store holds pinned branches and writes every change back to disk.
type Store struct {
	path string

	mu   sync.RWMutex
	pins map[string]map[string]bool
}

// DefaultPath returns the pins file next to the configuration file.
func DefaultPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), defaultFile)
}

// Load reads the pins file at path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, pins: make(map[string]map[string]bool)}

	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("error decoding pins file %q: %w", path, err)
	}
	for repo, branches := range f.Repos {
		set := make(map[string]bool, len(branches))
		for _, b := range branches {
			set[b] = true
		}
		s.pins[repo] = set
	}
	return s, nil
}

// Pinned returns a copy of the pinned branch names of one repository.
func (s *Store) Pinned(repo string) map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.pins[repo]))
	for b := range s.pins[repo] {
		out[b] = true
	}
	return out
}

// Toggle flips the pin of branch in repo, saves the store and returns the new state.
func (s *Store) Toggle(repo, branch string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.pins[repo]
	if set == nil {
		set = make(map[string]bool)
		s.pins[repo] = set
	}
	pinned := !set[branch]
	if pinned {
		set[branch] = true
	} else {
		delete(set, branch)
		if len(set) == 0 {
			delete(s.pins, repo)
		}
	}
	return pinned, s.saveLocked()
}

// Forget drops a branch's pin, e.g. after the branch was deleted.
func (s *Store) Forget(repo, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pins[repo][branch] {
		return nil
	}
	delete(s.pins[repo], branch)
	if len(s.pins[repo]) == 0 {
		delete(s.pins, repo)
	}
	return s.saveLocked()
}

func (s *Store) saveLocked() (err error) {
	f := file{Repos: make(map[string][]string, len(s.pins))}
	for repo, set := range s.pins {
		branches := make([]string, 0, len(set))
		for b := range set {
			branches = append(branches, b)
		}
		slices.Sort(branches)
		f.Repos[repo] = branches
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("could not create pins directory: %w", err)
	}
	out, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("could not create pins file %q: %w", s.path, err)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close pins file %q: %w", s.path, closeErr)
		}
	}()
	if err := toml.NewEncoder(out).Encode(f); err != nil {
		return fmt.Errorf("could not encode pins to TOML file %q: %w", s.path, err)
	}
	return nil
}
