package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// RoundContext describes one round of parallel processing.
type RoundContext struct {
	Queue          *WorkQueue
	ThreadCount    int
	MemoryDegraded bool // set on the single-threaded retry after memory exhaustion
}

// RoundOutcome is what a single round left behind.
type RoundOutcome struct {
	Threads   int          // workers actually spawned
	Cancelled []FileRecord // pending records failed because of cancellation
}

// BindingResult summarises the processing of one converter binding.
type BindingResult struct {
	Converter    string       `json:"converter"`
	Files        int          `json:"files"`
	Rounds       int          `json:"rounds"`
	ThreadCounts []int        `json:"threadCounts"`
	Cancelled    []FileRecord `json:"cancelled,omitempty"`
	PermanentOOM []FileRecord `json:"permanentOutOfMemory,omitempty"`
	InitError    string       `json:"initError,omitempty"`
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	MaxThreads       int
	Config           ProcessingConfig
	AppRoot          string
	Logger           *slog.Logger
	Hooks            Hooks
	Monitor          *MemoryMonitor
	ProgressInterval time.Duration
	TotalFiles       int // files in the whole run, for progress reporting
}

// Dispatcher drives the rounds of one converter binding over a shared queue.
type Dispatcher struct {
	converter Converter
	queue     *WorkQueue
	opts      DispatcherOptions
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher for converter. Missing optional
// dependencies are replaced by defaults.
func NewDispatcher(converter Converter, queue *WorkQueue, opts DispatcherOptions) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Hooks == nil {
		opts.Hooks = &NoOpHooks{}
	}
	if opts.Monitor == nil {
		opts.Monitor = NewMemoryMonitor(MemoryConfig{})
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.MaxThreads <= 0 {
		opts.MaxThreads = 1
	}
	return &Dispatcher{
		converter: converter,
		queue:     queue,
		opts:      opts,
		logger:    opts.Logger.With(slog.String("converter", converter.Name())),
	}
}

// Run processes files with the dispatcher's converter. Files are claimed in
// the order given. Init is called once before the first round and DeInit
// once after the last, on every path.
func (d *Dispatcher) Run(ctx context.Context, files []FileRecord) BindingResult {
	name := d.converter.Name()
	res := BindingResult{Converter: name, Files: len(files)}

	if err := d.converter.Init(InitContext{Config: d.opts.Config, Files: files, AppRoot: d.opts.AppRoot}); err != nil {
		cause := fmt.Errorf("%w: %s: %w", ErrConverterInit, name, err)
		d.logger.Error("Converter initialization failed, skipping its files", slog.Int("files", len(files)), slog.String("error", err.Error()))
		for _, rec := range files {
			d.queue.ReportFailed(rec, cause)
			d.notify(rec, StatusFailed, cause.Error())
		}
		res.InitError = cause.Error()
		d.converter.DeInit()
		return res
	}

	// Claims pop from the back, so push in reverse to process in listed order.
	reversed := slices.Clone(files)
	slices.Reverse(reversed)
	d.queue.Push(reversed...)

	threadCount := d.opts.MaxThreads
	if threadCount > 1 && !d.converter.SupportsMultithreading() {
		d.logger.Info("Converter does not support multithreading, using a single thread", slog.Int("requestedThreads", threadCount))
		threadCount = 1
	}
	memoryDegraded := false

	for {
		out := d.RunRound(ctx, RoundContext{Queue: d.queue, ThreadCount: threadCount, MemoryDegraded: memoryDegraded}, res.Rounds+1)
		if out.Threads > 0 {
			res.Rounds++
			res.ThreadCounts = append(res.ThreadCounts, out.Threads)
		}
		res.Cancelled = append(res.Cancelled, out.Cancelled...)

		oom := d.queue.OutOfMemory()
		if len(oom) == 0 {
			break
		}
		d.opts.Monitor.LogUsage(d.logger, false)

		if out.Threads > 1 {
			d.logger.Warn("Ran out of memory while processing files", slog.Int("files", len(oom)))
			for _, rec := range oom {
				d.logger.Warn("Out of memory", slog.String("root", rec.SourceRoot), slog.String("path", rec.SourceRelativePath))
			}
			d.logger.Warn("Switching to single-thread mode and trying to convert the files again")
			d.queue.DrainOutOfMemoryIntoPending()
			for _, rec := range oom {
				d.notify(rec, StatusPending, "queued for single-thread retry")
			}
			threadCount = 1
			memoryDegraded = true
			continue
		}

		d.logger.Error("Ran out of memory while processing files", slog.Int("files", len(oom)))
		res.PermanentOOM = d.queue.FailOutOfMemory(ErrOutOfMemory)
		for _, rec := range res.PermanentOOM {
			d.logger.Error("Out of memory", slog.String("root", rec.SourceRoot), slog.String("path", rec.SourceRelativePath))
			d.notify(rec, StatusFailed, ErrOutOfMemory.Error())
		}
		break
	}

	d.converter.DeInit()
	d.logger.Debug("Binding finished", slog.Int("rounds", res.Rounds), slog.Any("threads", res.ThreadCounts))
	return res
}

// RunRound spawns up to rc.ThreadCount workers, never more than there are
// pending records, and waits for all of them. While waiting it polls the
// queue and reports progress. Every compiler created for the round is
// released exactly once after the join.
func (d *Dispatcher) RunRound(ctx context.Context, rc RoundContext, round int) RoundOutcome {
	if ctx.Err() != nil {
		moved := rc.Queue.FailPending(ErrCancelled)
		if len(moved) > 0 {
			d.logger.Warn("Abort was requested, remaining files are not converted", slog.Int("files", len(moved)))
			for _, rec := range moved {
				d.notify(rec, StatusCancelled, ErrCancelled.Error())
			}
		}
		return RoundOutcome{Cancelled: moved}
	}

	threads := min(rc.ThreadCount, rc.Queue.Snapshot().Pending)
	if threads <= 0 {
		return RoundOutcome{}
	}
	d.logger.Debug("Starting round", slog.Int("round", round), slog.Int("threads", threads), slog.Bool("memoryDegraded", rc.MemoryDegraded))
	if err := d.opts.Hooks.OnRoundStart(d.converter.Name(), round, threads, rc.Queue.Snapshot().Pending); err != nil {
		d.logger.Warn("OnRoundStart hook returned an error", slog.String("error", err.Error()))
	}

	compilers := make([]Compiler, threads)
	for i := range compilers {
		compilers[i] = d.converter.CreateCompiler()
	}

	cancelled := make([][]FileRecord, threads)
	var wg sync.WaitGroup
	for i := range threads {
		w := &Worker{
			ID:        i + 1,
			Queue:     rc.Queue,
			Compiler:  compilers[i],
			Config:    d.opts.Config,
			LogMemory: rc.MemoryDegraded,
			Logger:    d.logger,
			Hooks:     d.opts.Hooks,
			Monitor:   d.opts.Monitor,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cancelled[i] = w.Run(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(d.opts.ProgressInterval)
	defer ticker.Stop()
waitLoop:
	for {
		select {
		case <-done:
			break waitLoop
		case <-ticker.C:
			d.reportProgress(rc.Queue, round, threads)
		}
	}
	d.reportProgress(rc.Queue, round, threads)

	for _, c := range compilers {
		c.Release()
	}

	out := RoundOutcome{Threads: threads}
	for _, c := range cancelled {
		out.Cancelled = append(out.Cancelled, c...)
	}
	return out
}

func (d *Dispatcher) reportProgress(q *WorkQueue, round, threads int) {
	p := Progress{
		Converter: d.converter.Name(),
		Round:     round,
		Threads:   threads,
		Total:     d.opts.TotalFiles,
		Snapshot:  q.Snapshot(),
	}
	if err := d.opts.Hooks.OnProgress(p); err != nil {
		d.logger.Warn("OnProgress hook returned an error", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) notify(rec FileRecord, status Status, msg string) {
	notifyStatus(d.opts.Hooks, d.logger, rec, status, msg)
}
