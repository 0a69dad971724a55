// Package cli wires configuration, discovery, the converter registry and
// the presentation layer around dispatch.CompileFiles.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/stackvity/asset-compiler/internal/cli/git"
	"github.com/stackvity/asset-compiler/internal/cli/hooks"
	"github.com/stackvity/asset-compiler/internal/cli/runner"
	"github.com/stackvity/asset-compiler/internal/cli/ui"
	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors/external"
)

// ChangeLister reports the files changed under a set of source roots,
// relative to their root.
type ChangeLister interface {
	ChangedFiles(ctx context.Context, roots []string, sinceRef string) (map[string]struct{}, error)
}

// Environment carries the process-level collaborators of a run. Nil fields
// get production defaults.
type Environment struct {
	// Stdout receives the final report.
	Stdout io.Writer
	// Terminal is the interactive terminal, nil when stderr is not one. The
	// TUI and the progress bar draw on it.
	Terminal io.Writer
	// Logs, when set, is held while the terminal is being drawn on.
	Logs   *HoldWriter
	Runner external.ToolRunner
	Git    ChangeLister
}

// Run executes one conversion run. It returns dispatch.ErrFilesFailed
// (wrapped) when the run completed but some files could not be converted.
func Run(ctx context.Context, opts dispatch.Options, logger *slog.Logger, env Environment) error {
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Runner == nil {
		env.Runner = runner.NewExecRunner(opts.Logger)
	}
	if env.Git == nil {
		env.Git = git.NewClient(opts.Logger)
	}

	opts.RunID = uuid.NewString()
	logger = logger.With(slog.String("run", opts.RunID))

	release, err := acquireLocks(lockDirs(opts))
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("Failed to release lock", slog.String("error", err.Error()))
		}
	}()

	registry, err := BuildRegistry(opts, env.Runner, logger)
	if err != nil {
		return err
	}
	opts.Registry = registry

	if opts.Git.ChangedOnly {
		changed, err := env.Git.ChangedFiles(ctx, opts.SourceRoots, opts.Git.SinceRef)
		if err != nil {
			return err
		}
		logger.Info("Restricting run to files changed in git", slog.Int("changed", len(changed)), slog.String("since", opts.Git.SinceRef))
		opts.ChangedFiles = changed
	}

	files, err := dispatch.Discover(ctx, opts)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Info("No files to convert")
	}

	report, err := compile(ctx, opts, logger, env, files)
	if err != nil {
		return err
	}

	if err := WriteReport(env.Stdout, opts.OutputFormat, report); err != nil {
		return err
	}
	if !report.Succeeded() {
		return fmt.Errorf("%w: %d of %d", dispatch.ErrFilesFailed, report.Summary.FailedCount, report.Summary.TotalFiles)
	}
	return nil
}

// compile runs CompileFiles behind the presentation matching the
// environment: the TUI, a progress bar, or logs only.
func compile(ctx context.Context, opts dispatch.Options, logger *slog.Logger, env Environment, files []dispatch.FileRecord) (dispatch.Report, error) {
	interactive := env.Terminal != nil && !opts.Verbose && len(files) > 0

	if !interactive {
		opts.EventHooks = hooks.NewCLIHooks(logger, opts.Verbose, nil, nil)
		return dispatch.CompileFiles(ctx, opts, files)
	}

	if env.Logs != nil {
		env.Logs.Hold()
		defer func() {
			if err := env.Logs.Release(); err != nil {
				logger.Warn("Failed to flush held log output", slog.String("error", err.Error()))
			}
		}()
	}

	if !opts.TuiEnabled {
		opts.EventHooks = hooks.NewCLIHooks(logger, false, nil, hooks.NewProgressBar(env.Terminal, len(files)))
		return dispatch.CompileFiles(ctx, opts, files)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(opts.AppVersion, cancel)
	program := tea.NewProgram(&model, tea.WithOutput(env.Terminal), tea.WithContext(runCtx))
	tuiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		tuiDone <- err
	}()

	opts.EventHooks = hooks.NewCLIHooks(logger, false, program, nil)
	report, err := dispatch.CompileFiles(runCtx, opts, files)
	if err != nil {
		program.Quit()
	}
	if tuiErr := <-tuiDone; tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
		logger.Warn("Terminal UI exited with an error", slog.String("error", tuiErr.Error()))
	}
	return report, err
}
