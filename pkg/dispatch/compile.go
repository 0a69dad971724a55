package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

type binding struct {
	converter Converter
	files     []FileRecord
}

// CompileFiles converts files with the converters of opts.Registry. Files are
// grouped by converter and each group is dispatched in turn, in order of the
// first appearance of its converter, on one shared work queue.
//
// The returned error is non-nil only when opts fail validation. Conversion
// failures, including cancellation, are reported in the Report.
func CompileFiles(ctx context.Context, opts Options, files []FileRecord) (Report, error) {
	// --- Initial Validation ---
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	if opts.Registry == nil {
		return Report{}, fmt.Errorf("%w: Registry cannot be nil", ErrConfigValidation)
	}
	if opts.Threads < 0 {
		return Report{}, fmt.Errorf("%w: threads cannot be negative (got %d)", ErrConfigValidation, opts.Threads)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	if opts.Monitor == nil {
		opts.Monitor = NewMemoryMonitor(opts.Memory)
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.Threads == 0 {
		opts.Threads = runtime.NumCPU()
	}

	logger := slog.New(opts.Logger).With(slog.String("component", "compiler"))
	if opts.RunID != "" {
		logger = logger.With(slog.String("run", opts.RunID))
	}

	startTime := time.Now()
	queue := NewWorkQueue()
	logger.Info("Starting conversion run", slog.Int("files", len(files)), slog.Int("threads", opts.Threads))
	opts.Monitor.LogUsage(logger, false)

	bindings, noConverter := partition(ctx, opts, logger, queue, files)

	if opts.Verbose && len(bindings) > 0 {
		logger.Info("Files to convert", slog.Int("files", len(files)-noConverter))
		for _, b := range bindings {
			for _, rec := range b.files {
				logger.Info(rec.SourcePath()+" -> "+rec.TargetDir(), slog.String("converter", b.converter.Name()))
			}
		}
	}

	results := make([]BindingResult, 0, len(bindings))
	for _, b := range bindings {
		if ctx.Err() != nil {
			moved := failCancelled(opts, logger, queue, b.files)
			results = append(results, BindingResult{Converter: b.converter.Name(), Files: len(b.files), Cancelled: moved})
			continue
		}
		d := NewDispatcher(b.converter, queue, DispatcherOptions{
			MaxThreads:       opts.Threads,
			Config:           opts.ProcessingConfig(),
			AppRoot:          opts.AppRoot,
			Logger:           logger,
			Hooks:            opts.EventHooks,
			Monitor:          opts.Monitor,
			ProgressInterval: opts.ProgressInterval,
			TotalFiles:       len(files),
		})
		results = append(results, d.Run(ctx, b.files))
	}

	report := buildReport(opts, queue, results, noConverter, len(files), startTime, ctx.Err() != nil)
	if report.Summary.ConvertedCount+report.Summary.FailedCount != len(files) {
		logger.Error("Internal error: converted and failed files do not add up to the input",
			slog.Int("converted", report.Summary.ConvertedCount),
			slog.Int("failed", report.Summary.FailedCount),
			slog.Int("files", len(files)))
	}

	logger.Info("Conversion run finished",
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("converted", report.Summary.ConvertedCount),
		slog.Int("failed", report.Summary.FailedCount),
		slog.Int("cancelled", report.Summary.CancelledCount),
	)
	opts.Monitor.LogUsage(logger, false)

	if hookErr := opts.EventHooks.OnRunComplete(report); hookErr != nil {
		logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
	}
	return report, nil
}

// partition groups files by converter. Files without a converter, or every
// file once ctx is cancelled, go straight to the failed bucket.
func partition(ctx context.Context, opts Options, logger *slog.Logger, queue *WorkQueue, files []FileRecord) ([]binding, int) {
	var bindings []binding
	index := make(map[string]int)
	noConverter := 0

	for i, rec := range files {
		if ctx.Err() != nil {
			logger.Warn("Abort was requested before all files were assigned to converters")
			failCancelled(opts, logger, queue, files[i:])
			for _, b := range bindings {
				failCancelled(opts, logger, queue, b.files)
			}
			return nil, noConverter
		}

		conv, ok := opts.Registry.FindConverter(rec.SourceRelativePath)
		if !ok {
			cause := fmt.Errorf("%w for %s", ErrNoConverter, rec.SourcePath())
			logger.Error("Cannot find convertor", slog.String("path", rec.SourcePath()))
			queue.ReportFailed(rec, cause)
			notifyStatus(opts.EventHooks, logger, rec, StatusFailed, cause.Error())
			noConverter++
			continue
		}

		pos, seen := index[conv.Name()]
		if !seen {
			pos = len(bindings)
			index[conv.Name()] = pos
			bindings = append(bindings, binding{converter: conv})
		}
		bindings[pos].files = append(bindings[pos].files, rec)
	}
	return bindings, noConverter
}

func failCancelled(opts Options, logger *slog.Logger, queue *WorkQueue, files []FileRecord) []FileRecord {
	for _, rec := range files {
		queue.ReportFailed(rec, ErrCancelled)
		notifyStatus(opts.EventHooks, logger, rec, StatusCancelled, ErrCancelled.Error())
	}
	return files
}

func notifyStatus(hooks Hooks, logger *slog.Logger, rec FileRecord, status Status, msg string) {
	if err := hooks.OnFileStatusUpdate(rec, status, msg, 0); err != nil {
		logger.Warn("OnFileStatusUpdate hook returned an error", slog.String("error", err.Error()))
	}
}

func buildReport(opts Options, queue *WorkQueue, results []BindingResult, noConverter, total int, startTime time.Time, cancelled bool) Report {
	converted := queue.Converted()
	failed := queue.Failed()

	failures := make([]FailureInfo, 0, len(failed))
	cancelledCount := 0
	for _, rec := range failed {
		cause := queue.FailureCause(rec)
		if cause == nil {
			cause = ErrConversionFailed
		}
		isCancelled := errors.Is(cause, ErrCancelled)
		if isCancelled {
			cancelledCount++
		}
		failures = append(failures, FailureInfo{
			Path:      rec.SourcePath(),
			Record:    rec,
			Error:     cause.Error(),
			Cancelled: isCancelled,
		})
	}

	return Report{
		Summary: ReportSummary{
			RunID:            opts.RunID,
			SourceRoots:      opts.SourceRoots,
			TargetRoot:       opts.TargetRoot,
			ProfileUsed:      opts.ProfileName,
			ConfigFilePath:   opts.ConfigFilePath,
			TotalFiles:       total,
			ConvertedCount:   len(converted),
			FailedCount:      len(failed),
			CancelledCount:   cancelledCount,
			NoConverterCount: noConverter,
			Threads:          opts.Threads,
			Cancelled:        cancelled,
			DurationSeconds:  time.Since(startTime).Seconds(),
			Timestamp:        time.Now().UTC(),
			SchemaVersion:    ReportSchemaVersion,
		},
		Bindings:  results,
		Converted: converted,
		Failed:    failures,
	}
}
