package dispatch

import (
	"path"
	"path/filepath"
)

// Status defines the possible processing states of a file during a run.
type Status string

// Constants representing the defined file processing statuses.
const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusOutOfMemory Status = "outOfMemory"
	StatusCancelled   Status = "cancelled"
)

// OutputFormat defines the format for the final summary printed to standard output.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// LogFormat selects the slog handler used by the CLI.
type LogFormat string

const (
	LogFormatAuto LogFormat = "auto"
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// FileRecord identifies one conversion unit. SourceRoot, SourceRelativePath
// and TargetRoot together form the canonical identity of a conversion job.
type FileRecord struct {
	SourceRoot         string `json:"sourceRoot"`
	SourceRelativePath string `json:"sourceRelativePath"` // slash separated
	TargetRoot         string `json:"targetRoot"`
}

// Key returns the canonical identity of the record.
func (r FileRecord) Key() string {
	return r.SourceRoot + "|" + r.SourceRelativePath + "|" + r.TargetRoot
}

// SourcePath returns the full source file name.
func (r FileRecord) SourcePath() string {
	return filepath.Join(r.SourceRoot, filepath.FromSlash(r.SourceRelativePath))
}

// TargetDir returns the directory the converted output belongs in: the
// target root joined with the inner directory of the source file. An empty
// TargetRoot means "convert next to the source".
func (r FileRecord) TargetDir() string {
	root := r.TargetRoot
	if root == "" {
		root = r.SourceRoot
	}
	innerDir := path.Dir(r.SourceRelativePath)
	if innerDir == "." {
		return filepath.Clean(root)
	}
	return filepath.Join(root, filepath.FromSlash(innerDir))
}

// String is used in log lines.
func (r FileRecord) String() string {
	return r.SourcePath()
}
