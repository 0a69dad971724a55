// Package hooks bridges dispatcher events to the CLI's presentation layer:
// the full-screen TUI, a plain terminal progress bar, or logs only.
package hooks

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
)

// --- TUI Message Structs ---

// RoundStartMsg signals that a converter binding started a round.
type RoundStartMsg struct {
	Converter string
	Round     int
	Threads   int
	Files     int
}

// ProgressMsg carries a periodic snapshot of the running round.
type ProgressMsg struct{ Progress dispatch.Progress }

// FileStatusUpdateMsg signals a change in a file's processing status.
type FileStatusUpdateMsg struct {
	Path     string
	Status   dispatch.Status
	Message  string
	Duration time.Duration
}

// RunCompleteMsg signals the completion of the entire run.
type RunCompleteMsg struct{ Report dispatch.Report }

// TUIProgram is the part of *tea.Program the hooks use.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar is the subset of *progressbar.ProgressBar the hooks drive.
type ProgressBar interface {
	Set(num int) error
	Describe(description string)
	Finish() error
}

// NewProgressBar creates a terminal progress bar for total files on w.
func NewProgressBar(w io.Writer, total int) ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Converting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(barWidth(w)),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

const (
	defaultBarWidth = 30
	minBarWidth     = 10
	maxBarWidth     = 60
)

// barWidth gives the bar a third of the terminal's columns.
func barWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultBarWidth
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return defaultBarWidth
	}
	return min(max(cols/3, minBarWidth), maxBarWidth)
}

// CLIHooks implements dispatch.Hooks. Exactly one presentation is active:
// the TUI when a program is given, else the progress bar when one is given,
// else logging only.
type CLIHooks struct {
	logger      *slog.Logger
	verbose     bool
	tuiProgram  TUIProgram
	progressBar ProgressBar
	mu          sync.Mutex // serializes progress bar writes
}

// NewCLIHooks creates the hooks. tuiProg and progBar may be nil.
func NewCLIHooks(logger *slog.Logger, verbose bool, tuiProg TUIProgram, progBar ProgressBar) *CLIHooks {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CLIHooks{
		logger:      logger.With(slog.String("component", "hooks")),
		verbose:     verbose,
		tuiProgram:  tuiProg,
		progressBar: progBar,
	}
}

// OnRoundStart implements dispatch.Hooks.
func (h *CLIHooks) OnRoundStart(converter string, round, threads, files int) error {
	if h.tuiProgram != nil {
		h.tuiProgram.Send(RoundStartMsg{Converter: converter, Round: round, Threads: threads, Files: files})
		return nil
	}
	if h.progressBar != nil {
		h.mu.Lock()
		h.progressBar.Describe(fmt.Sprintf("%s (round %d, %d threads)", converter, round, threads))
		h.mu.Unlock()
		return nil
	}
	h.logger.Info("Starting round",
		slog.String("converter", converter),
		slog.Int("round", round),
		slog.Int("threads", threads),
		slog.Int("files", files),
	)
	return nil
}

// OnProgress implements dispatch.Hooks.
func (h *CLIHooks) OnProgress(p dispatch.Progress) error {
	if h.tuiProgram != nil {
		h.tuiProgram.Send(ProgressMsg{Progress: p})
		return nil
	}
	if h.progressBar != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.progressBar.Set(p.Snapshot.Processed())
	}
	return nil
}

// OnFileStatusUpdate implements dispatch.Hooks. Failures are already logged
// by the workers, so outside the TUI only verbose runs log here.
func (h *CLIHooks) OnFileStatusUpdate(rec dispatch.FileRecord, status dispatch.Status, message string, duration time.Duration) error {
	if h.tuiProgram != nil {
		h.tuiProgram.Send(FileStatusUpdateMsg{
			Path:     rec.SourceRelativePath,
			Status:   status,
			Message:  message,
			Duration: duration,
		})
		return nil
	}
	if !h.verbose {
		return nil
	}

	attrs := []any{slog.String("path", rec.SourceRelativePath), slog.String("status", string(status))}
	if duration > 0 {
		attrs = append(attrs, slog.Duration("duration", duration))
	}
	if message != "" {
		attrs = append(attrs, slog.String("message", message))
	}
	h.logger.Debug("File status updated", attrs...)
	return nil
}

// OnRunComplete implements dispatch.Hooks.
func (h *CLIHooks) OnRunComplete(report dispatch.Report) error {
	if h.tuiProgram != nil {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
		return nil
	}
	if h.progressBar != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.progressBar.Finish()
	}
	return nil
}
