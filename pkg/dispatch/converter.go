package dispatch

import "context"

// ProcessingConfig is the read-only configuration handed to converters and
// compilers. It is shared by all workers and must not be mutated.
type ProcessingConfig struct {
	Threads int               // worker count requested for the run
	Refresh bool              // reconvert even when the target looks up to date
	Params  map[string]string // free-form converter parameters from config
}

// Param returns a parameter value or def when it is not set.
func (c ProcessingConfig) Param(key, def string) string {
	if v, ok := c.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// InitContext is passed to Converter.Init once per binding, before any round.
type InitContext struct {
	Config  ProcessingConfig
	Files   []FileRecord // all files assigned to the converter
	AppRoot string
}

// Job is one claimed file as seen by a Compiler.
type Job struct {
	Record     FileRecord
	SourcePath string // full source file name
	TargetDir  string // directory the output belongs in
	WorkerID   int    // 1-based worker identity
	// LogMemory is set on rounds that retry after memory exhaustion.
	LogMemory bool
}

// Converter is the strategy object responsible for one family of input file
// formats. Init, DeInit and CreateCompiler are only ever called from the
// dispatcher goroutine, never concurrently.
type Converter interface {
	// Name identifies the converter in logs and reports.
	Name() string
	// Extensions lists the lower-case file extensions (with leading dot) the
	// converter handles. "*" binds every extension.
	Extensions() []string
	Init(ic InitContext) error
	DeInit()
	// CreateCompiler returns a new Compiler owned by exactly one worker.
	CreateCompiler() Compiler
	// SupportsMultithreading reports whether compilers may run in parallel.
	// When false the dispatcher runs the binding single-threaded.
	SupportsMultithreading() bool
}

// Compiler performs the conversion of one file at a time. A Compiler is
// owned by one worker for a whole round and is never shared.
//
// Process returns nil on success, an error wrapping ErrOutOfMemory when the
// conversion exhausted memory, and any other error for an expected failure.
// A panic is treated as an unknown failure and is deliberately not recovered.
type Compiler interface {
	BeginProcessing(cfg ProcessingConfig)
	Process(ctx context.Context, job Job) error
	EndProcessing()
	Release()
}
