package dispatch_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackvity/asset-compiler/internal/testutil"
	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walkerOptions(roots ...string) dispatch.Options {
	return dispatch.Options{
		SourceRoots: roots,
		TargetRoot:  "/out",
		Logger:      slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}),
	}
}

func relPaths(files []dispatch.FileRecord) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.SourceRelativePath
	}
	return out
}

func TestDiscover_WalksAndSorts(t *testing.T) {
	root := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(root, "textures", "b.png"), "b")
	testutil.CreateDummyFile(t, filepath.Join(root, "a.xml"), "a")
	testutil.CreateDummyFile(t, filepath.Join(root, "levels", "l1", "mission.xml"), "m")
	testutil.CreateDummyFile(t, filepath.Join(root, dispatch.LockFileName), "")

	files, err := dispatch.Discover(context.Background(), walkerOptions(root))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.xml", "levels/l1/mission.xml", "textures/b.png"}, relPaths(files))
	for _, f := range files {
		assert.Equal(t, filepath.Clean(root), f.SourceRoot)
		assert.Equal(t, "/out", f.TargetRoot)
	}
}

func TestDiscover_LaterRootWins(t *testing.T) {
	base := t.TempDir()
	rootA := filepath.Join(base, "a")
	rootB := filepath.Join(base, "b")
	testutil.CreateDummyFile(t, filepath.Join(rootA, "shared", "Sky.png"), "a")
	testutil.CreateDummyFile(t, filepath.Join(rootA, "only_a.png"), "a")
	testutil.CreateDummyFile(t, filepath.Join(rootB, "shared", "sky.png"), "b")

	files, err := dispatch.Discover(context.Background(), walkerOptions(rootA+";"+rootB))
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "only_a.png", files[0].SourceRelativePath)
	assert.Equal(t, filepath.Clean(rootA), files[0].SourceRoot)
	assert.Equal(t, "shared/sky.png", files[1].SourceRelativePath)
	assert.Equal(t, filepath.Clean(rootB), files[1].SourceRoot, "duplicates compare case-insensitively and the last root wins")
}

func TestDiscover_IgnoreMasksAndChangedFiles(t *testing.T) {
	root := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(root, "a.png"), "a")
	testutil.CreateDummyFile(t, filepath.Join(root, "b.PNG"), "b")
	testutil.CreateDummyFile(t, filepath.Join(root, "c.xml"), "c")
	testutil.CreateDummyFile(t, filepath.Join(root, "build", "d.png"), "d")
	testutil.CreateDummyFile(t, filepath.Join(root, "keep", "e.png"), "e")
	testutil.CreateDummyFile(t, filepath.Join(root, dispatch.IgnoreFileName), "keep/\n")

	t.Run("Ignore patterns and ignore file", func(t *testing.T) {
		opts := walkerOptions(root)
		opts.Ignore = []string{"build/"}
		files, err := dispatch.Discover(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.png", "b.PNG", "c.xml"}, relPaths(files))
	})

	t.Run("Masks match case-insensitively", func(t *testing.T) {
		opts := walkerOptions(root)
		opts.Ignore = []string{"build/"}
		opts.Masks = []string{"*.png"}
		files, err := dispatch.Discover(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.png", "b.PNG"}, relPaths(files))
	})

	t.Run("Changed files only", func(t *testing.T) {
		opts := walkerOptions(root)
		opts.Git.ChangedOnly = true
		opts.ChangedFiles = map[string]struct{}{"c.xml": {}, "build/d.png": {}}
		files, err := dispatch.Discover(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"build/d.png", "c.xml"}, relPaths(files))
	})
}

func TestDiscover_Errors(t *testing.T) {
	root := t.TempDir()

	_, err := dispatch.Discover(context.Background(), walkerOptions())
	assert.ErrorIs(t, err, dispatch.ErrConfigValidation)

	_, err = dispatch.Discover(context.Background(), walkerOptions(filepath.Join(root, "missing")))
	assert.ErrorIs(t, err, dispatch.ErrConfigValidation)

	opts := walkerOptions(root)
	opts.Masks = []string{"[bad"}
	_, err = dispatch.Discover(context.Background(), opts)
	assert.ErrorIs(t, err, dispatch.ErrConfigValidation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	testutil.CreateDummyFile(t, filepath.Join(root, "a.png"), "a")
	_, err = dispatch.Discover(ctx, walkerOptions(root))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.png")
	testutil.CreateDummyFile(t, target, "x")
	if err := os.Symlink(target, filepath.Join(root, "link.png")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	files, err := dispatch.Discover(context.Background(), walkerOptions(root))
	require.NoError(t, err)
	assert.Equal(t, []string{"real.png"}, relPaths(files))
}

func TestDiscover_SymlinkedRoot(t *testing.T) {
	base := t.TempDir()
	realDir := filepath.Join(base, "real")
	testutil.CreateDummyFile(t, filepath.Join(realDir, "textures", "a.png"), "a")
	link := filepath.Join(base, "assets")
	if err := os.Symlink(realDir, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink(filepath.Join(realDir, "textures", "a.png"), filepath.Join(realDir, "b.png")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	files, err := dispatch.Discover(context.Background(), walkerOptions(link))
	require.NoError(t, err)

	require.Len(t, files, 1, "links below the root are still skipped")
	assert.Equal(t, "textures/a.png", files[0].SourceRelativePath)
	assert.Equal(t, link, files[0].SourceRoot, "records keep the root as given")
}

func TestSplitSourceRoots(t *testing.T) {
	got := dispatch.SplitSourceRoots([]string{"a;b", " ", "c;;"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
