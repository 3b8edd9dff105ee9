package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()

	err := m.WriteFile("/exports/a.json", []byte("{}"), 0o644)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "parent must exist, got %v", err)

	require.NoError(t, m.MkdirAll("/exports/p01", 0o755))
	assert.True(t, m.Exists("/exports"))
	assert.True(t, m.Exists("/exports/p01/"))

	data := []byte(`[{"index":0}]`)
	require.NoError(t, m.WriteFile("/exports/p01/a.json", data, 0o644))
	data[0] = 'x'

	got, err := m.ReadFile("/exports/p01/a.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"index":0}]`, string(got), "stored data must be a copy")

	got[0] = 'y'
	again, _ := m.ReadFile("/exports/p01/a.json")
	assert.Equal(t, byte('['), again[0], "returned data must be a copy")

	_, err = m.ReadFile("/exports/missing.json")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	err = m.MkdirAll("/exports/p01/a.json/sub", 0o755)
	assert.True(t, errors.Is(err, fs.ErrExist))
	err = m.WriteFile("/exports/p01", nil, 0o644)
	assert.True(t, errors.Is(err, fs.ErrExist))

	require.NoError(t, m.WriteFile("b.csv", nil, 0o644))
	assert.Equal(t, []string{"/exports/p01/a.json", "b.csv"}, m.Files())
}

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "exports", "p01")

	require.NoError(t, fsys.MkdirAll(dir, 0o755))
	assert.True(t, fsys.Exists(dir))

	path := filepath.Join(dir, "session.csv")
	assert.False(t, fsys.Exists(path))
	require.NoError(t, fsys.WriteFile(path, []byte("index\n0\n"), 0o644))

	got, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "index\n0\n", string(got))
}

func TestInterfaceCompliance(t *testing.T) {
	var _ FileSystem = OSFileSystem{}
	var _ FileSystem = (*MemoryFileSystem)(nil)
}
