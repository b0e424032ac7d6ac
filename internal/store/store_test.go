package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashdl/internal/logger"
)

func TestOpenCreatesAssetDir(t *testing.T) {
	workDir := t.TempDir()
	s, err := Open(logger.Nop(), workDir, "asset42")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(workDir, "asset42"), s.Dir())
	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteHasRead(t *testing.T) {
	s, err := Open(logger.Nop(), t.TempDir(), "asset42")
	require.NoError(t, err)

	assert.False(t, s.Has("v_302_0"))

	path, err := s.Write("v_302_0", []byte("segment bytes"))
	require.NoError(t, err)
	assert.Equal(t, s.SegmentPath("v_302_0"), path)
	assert.True(t, s.Has("v_302_0"))

	data, err := s.Read("v_302_0")
	require.NoError(t, err)
	assert.Equal(t, []byte("segment bytes"), data)
}

func TestSegmentPathExtension(t *testing.T) {
	s, err := Open(logger.Nop(), t.TempDir(), "asset42")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "vi_302.mp4"), s.SegmentPath("vi_302"))
}

func TestRemoveTolerant(t *testing.T) {
	s, err := Open(logger.Nop(), t.TempDir(), "asset42")
	require.NoError(t, err)

	path, err := s.Write("a_303_0", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(path))
	// Gone already: still fine.
	assert.NoError(t, s.Remove(path))
}

func TestRemoveAll(t *testing.T) {
	s, err := Open(logger.Nop(), t.TempDir(), "asset42")
	require.NoError(t, err)

	var paths []string
	for _, name := range []string{"ai_303", "a_303_0", "a_303_1"} {
		path, err := s.Write(name, []byte("x"))
		require.NoError(t, err)
		paths = append(paths, path)
	}
	require.NoError(t, s.RemoveAll(paths))
	for _, name := range []string{"ai_303", "a_303_0", "a_303_1"} {
		assert.False(t, s.Has(name))
	}
}

func TestRemoveDirIfEmpty(t *testing.T) {
	s, err := Open(logger.Nop(), t.TempDir(), "asset42")
	require.NoError(t, err)

	_, err = s.Write("v_302_0", []byte("x"))
	require.NoError(t, err)

	// Populated: left alone.
	require.NoError(t, s.RemoveDirIfEmpty())
	_, err = os.Stat(s.Dir())
	assert.NoError(t, err)

	require.NoError(t, s.Remove(s.SegmentPath("v_302_0")))
	require.NoError(t, s.RemoveDirIfEmpty())
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
}
