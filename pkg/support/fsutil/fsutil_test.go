package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ReplaceTildeInDir("~/data/images")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "data/images"), got)

	got, err = ReplaceTildeInDir("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(usr.HomeDir), got)

	got, err = ReplaceTildeInDir("/tmp/~x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/~x", got)

	_, err = ReplaceTildeInDir("~no_such_user_ganprep/x")
	require.Error(t, err)
}

func TestRequireDir(t *testing.T) {
	dir := t.TempDir()
	got, err := RequireDir(dir + "/./")
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	filePath := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(filePath, nil, 0o644))
	_, err = RequireDir(filePath)
	require.Error(t, err)
	_, err = RequireDir(filepath.Join(dir, "missing"))
	require.Error(t, err)

	exists, err := FileExists(filePath)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = FileExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)
}
