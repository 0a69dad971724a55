package util

import (
	"path"
	"path/filepath"
	"strings"
)

// MatchesGitignore checks if a path relative to walkerBaseAbsPath matches a
// gitignore-style pattern defined relative to patternBaseAbsPath.
//
// A pattern without a slash that is not rooted matches any path component,
// so it ignores both files of that name and everything under directories of
// that name. Any other pattern is anchored at its base and matches a leading
// run of path components; "**" stands for zero or more components.
func MatchesGitignore(pattern, patternBaseAbsPath, walkerBaseAbsPath, pathToMatchRel string, isRooted bool) bool {
	pattern = strings.Trim(filepath.ToSlash(pattern), "/")
	pathToMatchRel = filepath.ToSlash(pathToMatchRel)
	if pattern == "" || pathToMatchRel == "" || pathToMatchRel == "." {
		return false
	}

	abs := filepath.Join(walkerBaseAbsPath, filepath.FromSlash(pathToMatchRel))
	rel, err := filepath.Rel(patternBaseAbsPath, abs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return false // outside the pattern's scope
	}
	segments := strings.Split(rel, "/")

	if !isRooted && !strings.Contains(pattern, "/") {
		for _, seg := range segments {
			if ok, _ := path.Match(pattern, seg); ok {
				return true
			}
		}
		return false
	}
	return matchPrefix(strings.Split(pattern, "/"), segments)
}

// matchPrefix reports whether pat matches a leading run of segs.
func matchPrefix(pat, segs []string) bool {
	if len(pat) == 0 {
		return true
	}
	if pat[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchPrefix(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, _ := path.Match(pat[0], segs[0]); !ok {
		return false
	}
	return matchPrefix(pat[1:], segs[1:])
}
