package dispatch

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/dustin/go-humanize"
)

const megabyte = 1024 * 1024

// MemorySample is one reading of the process memory usage.
type MemorySample struct {
	HeapInUse uint64 // bytes of in-use heap spans
	Sys       uint64 // bytes obtained from the OS
}

// MemorySampler reads the current memory usage. Replaced in tests.
type MemorySampler func() MemorySample

func readRuntimeMemory() MemorySample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemorySample{HeapInUse: ms.HeapInuse, Sys: ms.Sys}
}

// MemoryMonitor tracks the peak heap usage of the process and logs it
// against warning and error thresholds. Safe for concurrent use.
type MemoryMonitor struct {
	warnBytes  uint64
	errorBytes uint64
	sample     MemorySampler

	mu   sync.Mutex
	peak uint64
}

// NewMemoryMonitor creates a monitor using the thresholds in cfg. Zero
// thresholds fall back to the defaults.
func NewMemoryMonitor(cfg MemoryConfig) *MemoryMonitor {
	return NewMemoryMonitorWithSampler(cfg, readRuntimeMemory)
}

// NewMemoryMonitorWithSampler creates a monitor reading memory through sampler.
func NewMemoryMonitorWithSampler(cfg MemoryConfig, sampler MemorySampler) *MemoryMonitor {
	warn, errMB := cfg.WarnMB, cfg.ErrorMB
	if warn <= 0 {
		warn = DefaultMemoryWarnMB
	}
	if errMB <= 0 {
		errMB = DefaultMemoryErrorMB
	}
	if errMB < warn {
		errMB = warn
	}
	return &MemoryMonitor{
		warnBytes:  uint64(warn) * megabyte,
		errorBytes: uint64(errMB) * megabyte,
		sample:     sampler,
	}
}

// Peak returns the highest heap usage observed so far.
func (m *MemoryMonitor) Peak() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// LogUsage samples memory and logs it. With problemsOnly set, a line is only
// emitted when a new peak at or above the warning threshold was observed.
// Returns true when something was logged.
func (m *MemoryMonitor) LogUsage(logger *slog.Logger, problemsOnly bool) bool {
	s := m.sample()

	reportProblem := false
	m.mu.Lock()
	if s.HeapInUse > m.peak {
		m.peak = s.HeapInUse
		reportProblem = s.HeapInUse >= m.warnBytes
	}
	peak := m.peak
	m.mu.Unlock()

	if problemsOnly && !reportProblem {
		return false
	}

	attrs := []any{
		slog.String("heap", humanize.IBytes(s.HeapInUse)),
		slog.String("peak", humanize.IBytes(peak)),
		slog.String("sys", humanize.IBytes(s.Sys)),
	}
	switch {
	case s.HeapInUse >= m.errorBytes:
		logger.Error("Memory usage - DANGER!", attrs...)
	case s.HeapInUse >= m.warnBytes:
		logger.Warn("Memory usage - DANGER!", attrs...)
	default:
		logger.Info("Memory usage", attrs...)
	}
	return true
}
