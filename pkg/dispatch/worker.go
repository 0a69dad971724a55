package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Worker drains a WorkQueue with one Compiler. A worker never holds the
// queue lock while converting, logging or notifying hooks.
type Worker struct {
	ID        int // 1-based
	Queue     *WorkQueue
	Compiler  Compiler
	Config    ProcessingConfig
	LogMemory bool // memory-degraded round: log usage before every file
	Logger    *slog.Logger
	Hooks     Hooks
	Monitor   *MemoryMonitor
}

// Run processes records until the queue is empty or ctx is cancelled. On
// cancellation the remaining pending records are failed with ErrCancelled
// and returned. A claimed record always runs to completion: Process gets a
// context that is not cancelled with ctx.
func (w *Worker) Run(ctx context.Context) []FileRecord {
	logger := w.Logger.With(slog.Int("thread", w.ID))
	logger.Debug("Worker started")

	procCtx := context.WithoutCancel(ctx)
	var cancelled []FileRecord

	w.Compiler.BeginProcessing(w.Config)
	for {
		if ctx.Err() != nil {
			cancelled = w.Queue.FailPending(ErrCancelled)
			if len(cancelled) > 0 {
				// Only the first worker to get here moves anything.
				logger.Warn("Abort was requested, remaining files are not converted", slog.Int("files", len(cancelled)))
				for _, rec := range cancelled {
					w.notify(logger, rec, StatusCancelled, ErrCancelled.Error(), 0)
				}
			}
			break
		}

		rec, ok := w.Queue.TryClaimNext()
		if !ok {
			break
		}
		w.convert(procCtx, logger, rec)
	}
	w.Compiler.EndProcessing()

	logger.Debug("Worker finished")
	return cancelled
}

func (w *Worker) convert(ctx context.Context, logger *slog.Logger, rec FileRecord) {
	job := Job{
		Record:     rec,
		SourcePath: rec.SourcePath(),
		TargetDir:  rec.TargetDir(),
		WorkerID:   w.ID,
		LogMemory:  w.LogMemory,
	}
	logger.Debug("Converting file", slog.String("source", job.SourcePath), slog.String("target", job.TargetDir))
	w.Monitor.LogUsage(logger, !w.LogMemory)

	w.notify(logger, rec, StatusProcessing, "", 0)
	start := time.Now()
	err := w.Compiler.Process(ctx, job)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		w.Queue.ReportConverted(rec)
		w.notify(logger, rec, StatusSuccess, "", elapsed)
	case errors.Is(err, ErrOutOfMemory):
		w.Queue.ReportOutOfMemory(rec)
		logger.Warn("Ran out of memory while converting file", slog.String("path", job.SourcePath), slog.String("error", err.Error()))
		w.Monitor.LogUsage(logger, false)
		w.notify(logger, rec, StatusOutOfMemory, err.Error(), elapsed)
	default:
		w.Queue.ReportFailed(rec, err)
		logger.Error("Failed to convert file", slog.String("path", job.SourcePath), slog.String("error", err.Error()))
		w.notify(logger, rec, StatusFailed, err.Error(), elapsed)
	}
}

func (w *Worker) notify(logger *slog.Logger, rec FileRecord, status Status, msg string, d time.Duration) {
	if err := w.Hooks.OnFileStatusUpdate(rec, status, msg, d); err != nil {
		logger.Warn("OnFileStatusUpdate hook returned an error", slog.String("error", err.Error()))
	}
}
