// Package git computes the set of changed asset files for --git-changed runs
// using go-git, so no git binary is needed on the build machine.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrGitOperation wraps every failure of the client.
var ErrGitOperation = errors.New("git operation failed")

func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrGitOperation}, args...)...)
}

// patchTimeout bounds diff generation between two commits.
const patchTimeout = 60 * time.Second

// Client answers which files changed in the repositories holding the source
// roots.
type Client struct {
	logger *slog.Logger
}

// NewClient creates a go-git backed client.
func NewClient(loggerHandler slog.Handler) *Client {
	if loggerHandler == nil {
		loggerHandler = slog.DiscardHandler
	}
	return &Client{logger: slog.New(loggerHandler).With(slog.String("component", "gitClient"))}
}

// ChangedFiles returns the changed files under every root, as slash
// separated paths relative to that root. With an empty sinceRef the
// worktree status is used (staged and unstaged changes, untracked files
// excluded); otherwise the diff between sinceRef and HEAD.
func (c *Client) ChangedFiles(ctx context.Context, roots []string, sinceRef string) (map[string]struct{}, error) {
	changed := make(map[string]struct{})
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.collect(ctx, root, sinceRef, changed); err != nil {
			return nil, err
		}
	}
	c.logger.Debug("Collected changed files", slog.Int("count", len(changed)), slog.String("since", sinceRef))
	return changed, nil
}

func (c *Client) collect(ctx context.Context, root, sinceRef string, into map[string]struct{}) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errorf("failed to resolve source root '%s': %w", root, err)
	}
	repo, err := git.PlainOpenWithOptions(absRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return errorf("no repository found at or above '%s': %w", absRoot, err)
		}
		return errorf("failed to open repository at '%s': %w", absRoot, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return errorf("failed to get worktree for '%s': %w", absRoot, err)
	}
	repoRoot := worktree.Filesystem.Root()

	var repoPaths []string
	if sinceRef == "" {
		repoPaths, err = statusPaths(worktree)
	} else {
		repoPaths, err = c.sincePaths(ctx, repo, sinceRef)
	}
	if err != nil {
		return err
	}

	for _, p := range repoPaths {
		rel, err := filepath.Rel(absRoot, filepath.Join(repoRoot, filepath.FromSlash(p)))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		into[filepath.ToSlash(rel)] = struct{}{}
	}
	return nil
}

func statusPaths(worktree *git.Worktree) ([]string, error) {
	status, err := worktree.Status()
	if err != nil {
		return nil, errorf("failed to get worktree status: %w", err)
	}
	var paths []string
	for path, st := range status {
		if st.Staging == git.Untracked && st.Worktree == git.Untracked {
			continue
		}
		if st.Staging != git.Unmodified || st.Worktree != git.Unmodified {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (c *Client) sincePaths(ctx context.Context, repo *git.Repository, sinceRef string) ([]string, error) {
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			c.logger.Warn("HEAD reference not found, repository might be empty")
			return nil, nil
		}
		return nil, errorf("failed to resolve HEAD: %w", err)
	}
	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, errorf("failed to load HEAD commit: %w", err)
	}
	sinceHash, err := repo.ResolveRevision(plumbing.Revision(sinceRef))
	if err != nil {
		return nil, errorf("invalid git reference '%s': %w", sinceRef, err)
	}
	sinceCommit, err := repo.CommitObject(*sinceHash)
	if err != nil {
		return nil, errorf("failed to load commit for '%s': %w", sinceRef, err)
	}

	patchCtx, cancel := context.WithTimeout(ctx, patchTimeout)
	defer cancel()
	patch, err := sinceCommit.PatchContext(patchCtx, headCommit)
	if err != nil {
		return nil, errorf("failed to diff '%s' against HEAD: %w", sinceRef, err)
	}

	var paths []string
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		switch {
		case to != nil:
			paths = append(paths, to.Path())
		case from != nil:
			// Deleted files cannot be converted but keep the set complete.
			paths = append(paths, from.Path())
		}
	}
	return paths, nil
}
