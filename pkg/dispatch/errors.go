package dispatch

import "errors"

// These errors represent specific categories of issues a run can encounter.
// Library users can check against these using errors.Is.
var (
	// ErrConfigValidation indicates that the provided Options failed validation
	// at the beginning of CompileFiles. Returned directly as a fatal error.
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrNoConverter marks files whose name resolved to no registered converter.
	// Such files never enter the work queue.
	ErrNoConverter = errors.New("cannot find convertor")

	// ErrOutOfMemory is the resource exhaustion signal. A Compiler returns an
	// error wrapping it when a conversion could not get the memory it needed;
	// the file is then retried single-threaded.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrConversionFailed is the generic expected-failure cause used when a
	// compiler reports failure without a more specific error.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrCancelled is the failure cause of files that were never claimed
	// because cancellation was requested.
	ErrCancelled = errors.New("cancelled before conversion")

	// ErrConverterInit indicates Converter.Init returned an error; every file
	// of that binding is failed with it.
	ErrConverterInit = errors.New("converter initialization failed")

	// ErrLocked indicates another run already holds the lock on the target root.
	ErrLocked = errors.New("target root is locked by another run")

	// ErrFilesFailed is returned by the CLI when the run completed but at
	// least one file could not be converted.
	ErrFilesFailed = errors.New("one or more files failed to convert")
)
