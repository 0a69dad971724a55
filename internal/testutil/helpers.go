package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stretchr/testify/require"
)

// CreateDummyFile creates a dummy file with specified content at the given path,
// ensuring parent directories exist. It uses require assertions for test setup.
func CreateDummyFile(t *testing.T, path string, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	dir := filepath.Dir(fullPath)
	err := os.MkdirAll(dir, 0755)
	require.NoError(t, err, "Failed to create directory %s for dummy file", dir)
	err = os.WriteFile(fullPath, []byte(content), 0644)
	require.NoError(t, err, "Failed to write dummy file %s", fullPath)
}

// CreateDummyDir ensures a directory exists at the given path, creating parents if needed.
func CreateDummyDir(t *testing.T, path string) {
	t.Helper()
	err := os.MkdirAll(filepath.Clean(path), 0755)
	require.NoError(t, err, "Failed to create dummy directory %s", path)
}

// Records builds n records named file00.<ext>, file01.<ext>, ... under root.
func Records(root, target, ext string, n int) []dispatch.FileRecord {
	recs := make([]dispatch.FileRecord, n)
	for i := range recs {
		recs[i] = dispatch.FileRecord{
			SourceRoot:         root,
			SourceRelativePath: fmt.Sprintf("file%02d.%s", i, ext),
			TargetRoot:         target,
		}
	}
	return recs
}
