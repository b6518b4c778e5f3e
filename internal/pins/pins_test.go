package pins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "pins.toml"))
	require.NoError(t, err)
	assert.Empty(t, s.Pinned("/src/app"))
}

func TestToggle_PersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gb", "pins.toml")
	s, err := Load(path)
	require.NoError(t, err)

	pinned, err := s.Toggle("/src/app", "feature/x")
	require.NoError(t, err)
	assert.True(t, pinned)
	_, err = s.Toggle("/src/app", "feature/y")
	require.NoError(t, err)
	_, err = s.Toggle("/src/lib", "main")
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"feature/x": true, "feature/y": true}, reloaded.Pinned("/src/app"))
	assert.Equal(t, map[string]bool{"main": true}, reloaded.Pinned("/src/lib"))

	pinned, err = reloaded.Toggle("/src/app", "feature/x")
	require.NoError(t, err)
	assert.False(t, pinned)
	require.NoError(t, reloaded.Forget("/src/lib", "main"))

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"feature/y": true}, again.Pinned("/src/app"))
	assert.Empty(t, again.Pinned("/src/lib"))
}

func TestPinned_ReturnsCopy(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "pins.toml"))
	require.NoError(t, err)
	_, err = s.Toggle("/r", "b")
	require.NoError(t, err)

	got := s.Pinned("/r")
	got["other"] = true
	assert.Equal(t, map[string]bool{"b": true}, s.Pinned("/r"))
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.toml")
	require.NoError(t, os.WriteFile(path, []byte("repos = ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/home/u/.config/gb", "pins.toml"), DefaultPath("/home/u/.config/gb/config.yaml"))
}
