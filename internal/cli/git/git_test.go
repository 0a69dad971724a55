package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	t    *testing.T
	root string
	repo *gogit.Repository
	wt   *gogit.Worktree
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	root := t.TempDir()
	repo, err := gogit.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &testRepo{t: t, root: root, repo: repo, wt: wt}
}

func (r *testRepo) write(rel, content string) {
	r.t.Helper()
	path := filepath.Join(r.root, filepath.FromSlash(rel))
	require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(r.t, os.WriteFile(path, []byte(content), 0644))
}

func (r *testRepo) commit(msg string, paths ...string) plumbing.Hash {
	r.t.Helper()
	for _, p := range paths {
		_, err := r.wt.Add(p)
		require.NoError(r.t, err)
	}
	hash, err := r.wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Build Bot", Email: "build@example.com", When: time.Now()},
	})
	require.NoError(r.t, err)
	return hash
}

func TestChangedFiles_WorktreeStatus(t *testing.T) {
	r := newTestRepo(t)
	r.write("assets/a.png", "a")
	r.write("assets/b.png", "b")
	r.commit("initial", "assets/a.png", "assets/b.png")

	r.write("assets/a.png", "a2")
	r.write("assets/untracked.png", "u")

	got, err := NewClient(nil).ChangedFiles(context.Background(), []string{r.root}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"assets/a.png": {}}, got)
}

func TestChangedFiles_SinceRefIsRelativeToSourceRoot(t *testing.T) {
	r := newTestRepo(t)
	r.write("assets/a.png", "a")
	r.write("docs/readme.txt", "r")
	first := r.commit("initial", "assets/a.png", "docs/readme.txt")

	r.write("assets/new.png", "n")
	r.write("docs/readme.txt", "r2")
	r.commit("second", "assets/new.png", "docs/readme.txt")

	got, err := NewClient(nil).ChangedFiles(context.Background(), []string{filepath.Join(r.root, "assets")}, first.String())
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"new.png": {}}, got, "changes outside the source root are dropped")
}

func TestChangedFiles_Errors(t *testing.T) {
	c := NewClient(nil)

	_, err := c.ChangedFiles(context.Background(), []string{t.TempDir()}, "")
	assert.ErrorIs(t, err, ErrGitOperation)

	r := newTestRepo(t)
	r.write("a.png", "a")
	r.commit("initial", "a.png")
	_, err = c.ChangedFiles(context.Background(), []string{r.root}, "no-such-ref")
	assert.ErrorIs(t, err, ErrGitOperation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ChangedFiles(ctx, []string{r.root}, "")
	assert.ErrorIs(t, err, context.Canceled)
}
