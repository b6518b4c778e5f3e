// Package handoff passes the selected directory to the shell wrapper that started gb.
//
// The wrapper reads the result file after gb exits and changes into the directory it
// names. The path is fixed per user, so two concurrent gb processes of the same user
// share it; the last writer wins.
package handoff

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Path returns the per-user result file, /tmp/gb-<uid>-result.
func Path() string {
	return filepath.Join("/tmp", "gb-"+strconv.Itoa(os.Getuid())+"-result")
}

// Clear removes a stale result file so that its absence after exit means "no selection".
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not remove result file %q: %w", path, err)
	}
	return nil
}

// Write replaces the result file with dir.
func Write(path, dir string) error {
	if err := Clear(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("could not create result file %q: %w", path, err)
	}
	if _, err := f.WriteString(dir); err != nil {
		_ = f.Close()
		return fmt.Errorf("could not write result file %q: %w", path, err)
	}
	return f.Close()
}
