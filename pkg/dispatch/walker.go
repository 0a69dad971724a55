package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stackvity/asset-compiler/pkg/util"
)

// IgnoreFileName is looked up from each source root upwards; its patterns are
// applied in addition to Options.Ignore.
const IgnoreFileName = ".assetcompilerignore"

// SplitSourceRoots expands every entry on ';' and drops empty parts, keeping
// order. Later roots take precedence during discovery.
func SplitSourceRoots(roots []string) []string {
	var out []string
	for _, entry := range roots {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, filepath.Clean(part))
			}
		}
	}
	return out
}

// Discover walks every source root and returns the files to convert, sorted
// by relative path. When several roots contain the same relative path
// (compared case-insensitively) the last-listed root wins. Symbolic links are
// skipped.
func Discover(ctx context.Context, opts Options) ([]FileRecord, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "walker"))

	roots := SplitSourceRoots(opts.SourceRoots)
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: at least one source root is required", ErrConfigValidation)
	}
	for _, m := range opts.Masks {
		if _, err := filepath.Match(m, ""); err != nil {
			return nil, fmt.Errorf("%w: invalid file mask '%s': %w", ErrConfigValidation, m, err)
		}
	}
	if opts.Git.ChangedOnly && opts.ChangedFiles == nil {
		logger.Warn("Git changed-only mode active but no changed files were provided")
	}

	seen := make(map[string]struct{})
	var files []FileRecord
	for i := len(roots) - 1; i >= 0; i-- {
		root := roots[i]
		found, err := walkRoot(ctx, opts, logger, root)
		if err != nil {
			return nil, err
		}
		for _, rec := range found {
			key := strings.ToLower(rec.SourceRelativePath)
			if _, dup := seen[key]; dup {
				logger.Debug("File overridden by a later source root", slog.String("root", root), slog.String("path", rec.SourceRelativePath))
				continue
			}
			seen[key] = struct{}{}
			files = append(files, rec)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].SourceRelativePath < files[j].SourceRelativePath
	})
	logger.Info("Discovery completed", slog.Int("roots", len(roots)), slog.Int("files", len(files)))
	return files, nil
}

func walkRoot(ctx context.Context, opts Options, logger *slog.Logger, root string) ([]FileRecord, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot access source root '%s': %w", ErrConfigValidation, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: source root '%s' is not a directory", ErrConfigValidation, root)
	}
	// WalkDir does not descend into a symlinked root, so walk its target.
	walkBase, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve source root '%s': %w", ErrConfigValidation, root, err)
	}
	matcher, err := newIgnoreMatcher(walkBase, opts.Ignore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ignore patterns: %w", err)
	}

	logger.Debug("Walking source root", slog.String("root", root), slog.Int("ignorePatterns", matcher.patternCount()))
	var found []FileRecord
	walkErr := filepath.WalkDir(walkBase, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("Error accessing path during walk", slog.String("path", path), slog.String("error", err.Error()))
			if path == walkBase {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.Type()&fs.ModeSymlink != 0 {
			logger.Debug("Skipping symbolic link", slog.String("path", path))
			return nil
		}
		rel, err := filepath.Rel(walkBase, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		isDir := d.IsDir()
		if matcher.Match(rel, isDir) {
			logger.Debug("Path ignored", slog.String("path", rel), slog.String("pattern", matcher.LastMatchPattern(rel, isDir)))
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}
		if isDir || d.Name() == IgnoreFileName || d.Name() == LockFileName {
			return nil
		}
		if !matchesMasks(opts.Masks, d.Name()) {
			return nil
		}
		if opts.Git.ChangedOnly {
			if _, ok := opts.ChangedFiles[rel]; !ok {
				logger.Debug("Path excluded, not changed in git", slog.String("path", rel))
				return nil
			}
		}
		found = append(found, FileRecord{SourceRoot: root, SourceRelativePath: rel, TargetRoot: opts.TargetRoot})
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, fmt.Errorf("directory walk of '%s' failed: %w", root, walkErr)
	}
	return found, nil
}

// matchesMasks reports whether name matches any mask. No masks match everything.
func matchesMasks(masks []string, name string) bool {
	if len(masks) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, m := range masks {
		if ok, _ := filepath.Match(strings.ToLower(m), lower); ok {
			return true
		}
	}
	return false
}

// --- ignoreMatcher ---

type ignoreMatcher struct {
	patterns []ignorePattern
	basePath string // absolute path of the source root
}

type ignorePattern struct {
	pattern     string // slash separated, without '!', leading '/' or trailing '/'
	origPattern string
	negated     bool
	isDirOnly   bool
	isRooted    bool
	baseAbsPath string // directory the pattern is relative to
}

func newIgnoreMatcher(root string, configPatterns []string, logger *slog.Logger) (*ignoreMatcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for source root: %w", err)
	}
	m := &ignoreMatcher{basePath: absRoot}

	ignoreFile, err := findIgnoreFile(absRoot)
	if err != nil {
		logger.Warn("Error searching for ignore file", slog.String("error", err.Error()))
	}
	if ignoreFile != "" {
		filePatterns, err := loadPatternsFromFile(ignoreFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load ignore file %s: %w", ignoreFile, err)
		}
		m.addPatterns(filePatterns, filepath.Dir(ignoreFile))
		logger.Debug("Loaded patterns from ignore file", slog.String("path", ignoreFile), slog.Int("count", len(filePatterns)))
	}
	m.addPatterns(configPatterns, absRoot)
	return m, nil
}

// findIgnoreFile walks up from absStartPath looking for IgnoreFileName.
func findIgnoreFile(absStartPath string) (string, error) {
	current := absStartPath
	for {
		candidate := filepath.Join(current, IgnoreFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("error checking for ignore file at %s: %w", candidate, err)
		}
		parent := filepath.Dir(current)
		if parent == current || parent == "" {
			return "", nil
		}
		current = parent
	}
}

func loadPatternsFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ignore file %s: %w", path, err)
	}
	defer f.Close()
	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return patterns, nil
}

func (m *ignoreMatcher) addPatterns(raw []string, baseAbsPath string) {
	for _, r := range raw {
		p := ignorePattern{origPattern: r, baseAbsPath: baseAbsPath}
		s := strings.TrimSpace(r)
		if strings.HasPrefix(s, "!") {
			p.negated = true
			s = strings.TrimSpace(s[1:])
		}
		if strings.HasPrefix(s, "/") {
			p.isRooted = true
			s = strings.TrimPrefix(s, "/")
		}
		if strings.HasSuffix(s, "/") {
			p.isDirOnly = true
			s = strings.TrimSuffix(s, "/")
		}
		p.pattern = filepath.ToSlash(s)
		if p.pattern == "" {
			continue
		}
		m.patterns = append(m.patterns, p)
	}
}

// Match reports whether rel (relative to the source root) is ignored. The
// last matching pattern decides, so negations can re-include paths.
func (m *ignoreMatcher) Match(rel string, isDir bool) bool {
	ignored := false
	for _, p := range m.patterns {
		if p.isDirOnly && !isDir {
			continue
		}
		if util.MatchesGitignore(p.pattern, p.baseAbsPath, m.basePath, rel, p.isRooted) {
			ignored = !p.negated
		}
	}
	return ignored
}

// LastMatchPattern returns the pattern that ignored rel, or "".
func (m *ignoreMatcher) LastMatchPattern(rel string, isDir bool) string {
	last, ignored := "", false
	for _, p := range m.patterns {
		if p.isDirOnly && !isDir {
			continue
		}
		if util.MatchesGitignore(p.pattern, p.baseAbsPath, m.basePath, rel, p.isRooted) {
			last, ignored = p.origPattern, !p.negated
		}
	}
	if ignored {
		return last
	}
	return ""
}

func (m *ignoreMatcher) patternCount() int { return len(m.patterns) }
