// Package convertors holds the helpers shared by the bundled converters.
// The converters themselves live in the sub-packages.
package convertors

import (
	"fmt"
	"os"
	"path/filepath"
)

// TargetPath returns the output file for job's source inside targetDir,
// replacing the extension when newExt is not empty.
func TargetPath(sourcePath, targetDir, newExt string) string {
	name := filepath.Base(sourcePath)
	if newExt != "" {
		name = name[:len(name)-len(filepath.Ext(name))] + newExt
	}
	return filepath.Join(targetDir, name)
}

// UpToDate reports whether target exists and is not older than source.
// Any stat error is treated as "needs conversion".
func UpToDate(source, target string) bool {
	srcInfo, err := os.Stat(source)
	if err != nil {
		return false
	}
	dstInfo, err := os.Stat(target)
	if err != nil {
		return false
	}
	return !dstInfo.ModTime().Before(srcInfo.ModTime())
}

// WriteOutput writes data to path, creating parent directories. The data
// goes to a temporary sibling first so a crashed run never leaves a
// truncated asset behind.
func WriteOutput(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move output into place at %s: %w", path, err)
	}
	return nil
}
