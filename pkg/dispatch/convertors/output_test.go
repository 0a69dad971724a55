package convertors_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stackvity/asset-compiler/internal/testutil"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/out", "ui", "icon.png"), convertors.TargetPath("/src/ui/icon.png", "/out/ui", ""))
	assert.Equal(t, filepath.Join("/out", "icon.tga.webp"), convertors.TargetPath("/src/icon.tga.png", "/out", ".webp"))
}

func TestUpToDate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.xml")
	dst := filepath.Join(dir, "out", "a.xml")
	testutil.CreateDummyFile(t, src, "src")

	assert.False(t, convertors.UpToDate(src, dst), "missing target")

	testutil.CreateDummyFile(t, dst, "dst")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(src, old, old))
	assert.True(t, convertors.UpToDate(src, dst))

	newer := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, newer, newer))
	assert.False(t, convertors.UpToDate(src, dst))
}

func TestWriteOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "mission.xml")
	require.NoError(t, convertors.WriteOutput(path, []byte("<mission/>")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<mission/>", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}
