package handoff

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	assert.Equal(t, "/tmp/gb-"+strconv.Itoa(os.Getuid())+"-result", Path())
}

func TestWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result")

	require.NoError(t, Write(path, "/src/app-feature-long-path"))
	require.NoError(t, Write(path, "/src/app"))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/src/app", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result")

	require.NoError(t, Clear(path), "clearing a missing file is not an error")
	require.NoError(t, Write(path, "/x"))
	require.NoError(t, Clear(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
