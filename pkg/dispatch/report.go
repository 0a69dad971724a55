package dispatch

import (
	"fmt"
	"io"
	"time"
)

// Report summarizes the result of a single CompileFiles run.
type Report struct {
	Summary   ReportSummary   `json:"summary"`
	Bindings  []BindingResult `json:"bindings"`
	Converted []FileRecord    `json:"converted"`
	Failed    []FailureInfo   `json:"failed"`
}

// ReportSummary contains aggregated statistics for a CompileFiles run.
type ReportSummary struct {
	RunID            string    `json:"runId,omitempty"`
	SourceRoots      []string  `json:"sourceRoots"`
	TargetRoot       string    `json:"targetRoot,omitempty"`
	ProfileUsed      string    `json:"profileUsed,omitempty"`
	ConfigFilePath   string    `json:"configFilePath,omitempty"`
	TotalFiles       int       `json:"totalFiles"`
	ConvertedCount   int       `json:"convertedCount"`
	FailedCount      int       `json:"failedCount"`
	CancelledCount   int       `json:"cancelledCount"`
	NoConverterCount int       `json:"noConverterCount"`
	Threads          int       `json:"threads"`
	Cancelled        bool      `json:"cancelled"`
	DurationSeconds  float64   `json:"durationSeconds"`
	Timestamp        time.Time `json:"timestamp"`
	SchemaVersion    string    `json:"schemaVersion,omitempty"`
}

// FailureInfo details a file that ended in the failed bucket.
type FailureInfo struct {
	Path      string     `json:"path"`
	Record    FileRecord `json:"record"`
	Error     string     `json:"error"`
	Cancelled bool       `json:"cancelled,omitempty"`
}

// Succeeded reports whether every file was converted.
func (r Report) Succeeded() bool {
	return r.Summary.FailedCount == 0
}

// SummaryLines renders the final human-readable report.
func (r Report) SummaryLines() []string {
	s := r.Summary
	elapsed := fmt.Sprintf(" in %.1f sec", s.DurationSeconds)

	if s.FailedCount <= 0 {
		return []string{fmt.Sprintf("%d %s processed%s.", s.ConvertedCount, plural(s.ConvertedCount > 1, "file"), elapsed)}
	}

	total := s.ConvertedCount + s.FailedCount
	lines := make([]string, 0, len(r.Failed)+1)
	lines = append(lines, fmt.Sprintf("%d of %d %s were converted%s. Couldn't convert the following %s:",
		s.ConvertedCount, total, plural(total > 1, "file"), elapsed, plural(s.FailedCount > 1, "file")))
	for _, f := range r.Failed {
		line := "  " + f.Path
		if f.Cancelled {
			line += " (cancelled)"
		}
		lines = append(lines, line)
	}
	return lines
}

// WriteText writes SummaryLines to w, one per line.
func (r Report) WriteText(w io.Writer) error {
	for _, line := range r.SummaryLines() {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func plural(many bool, word string) string {
	if many {
		return word + "s"
	}
	return word
}
