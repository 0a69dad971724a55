package dispatch

import (
	"log/slog"
	"time"
)

// MemoryConfig holds the memory usage thresholds used by the memory monitor.
type MemoryConfig struct {
	WarnMB  int64 `mapstructure:"warnMB"`
	ErrorMB int64 `mapstructure:"errorMB"`
}

// GitConfig holds settings related to Git-based discovery filtering.
type GitConfig struct {
	ChangedOnly bool   `mapstructure:"changedOnly"`
	SinceRef    string `mapstructure:"sinceRef"`
}

// ImageConfig configures the bundled image converter.
type ImageConfig struct {
	Extensions     []string `mapstructure:"extensions"`
	Format         string   `mapstructure:"format"` // "png", "jpeg" or "webp"
	Quality        int      `mapstructure:"quality"`
	MaxDimension   int      `mapstructure:"maxDimension"`
	MemoryBudgetMB int64    `mapstructure:"memoryBudgetMB"`
}

// TextConfig configures the bundled text converter.
type TextConfig struct {
	Extensions        []string          `mapstructure:"extensions"`
	DefaultEncoding   string            `mapstructure:"defaultEncoding"`
	LanguageOverrides map[string]string `mapstructure:"languageOverrides"` // extension -> language tag
}

// ToolConfig defines one external tool bound to a set of extensions.
type ToolConfig struct {
	Name           string            `mapstructure:"name"`
	Extensions     []string          `mapstructure:"extensions"`
	Command        []string          `mapstructure:"command"`
	Multithreading bool              `mapstructure:"multithreading"`
	Params         map[string]string `mapstructure:"params"`
}

// Hooks defines callbacks for status updates during a run.
// Implementations MUST be thread-safe as methods may be called concurrently.
// Errors returned by hooks are logged and otherwise ignored.
type Hooks interface {
	OnRoundStart(converter string, round, threads, files int) error
	OnProgress(p Progress) error
	OnFileStatusUpdate(rec FileRecord, status Status, message string, duration time.Duration) error
	OnRunComplete(report Report) error
}

// Progress is a periodic, purely observational view of a running round.
type Progress struct {
	Converter string
	Round     int
	Threads   int
	Total     int // files in the whole run
	Snapshot  Snapshot
}

// Percent returns the completion percentage of the run.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Snapshot.Processed()) * 100 / float64(p.Total)
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks interface.
type NoOpHooks struct{}

// OnRoundStart implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRoundStart(converter string, round, threads, files int) error { return nil }

// OnProgress implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnProgress(p Progress) error { return nil }

// OnFileStatusUpdate implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnFileStatusUpdate(rec FileRecord, status Status, message string, duration time.Duration) error {
	return nil
}

// OnRunComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// Options holds all configuration for a CompileFiles run.
type Options struct {
	// --- Core Paths ---
	SourceRoots []string `mapstructure:"sourceRoots"` // Required: later roots override earlier ones
	TargetRoot  string   `mapstructure:"targetRoot"`  // Empty means convert next to the source
	AppRoot     string   `mapstructure:"appRoot"`

	// --- Application Info ---
	AppVersion     string `mapstructure:"-"`
	ConfigFilePath string `mapstructure:"-"`
	ProfileName    string `mapstructure:"-"`
	RunID          string `mapstructure:"-"`

	// --- Discovery ---
	Masks        []string            `mapstructure:"masks"`  // file name globs, empty means all files
	Ignore       []string            `mapstructure:"ignore"` // glob patterns relative to a source root
	Git          GitConfig           `mapstructure:"git"`
	ChangedFiles map[string]struct{} `mapstructure:"-"` // populated when Git.ChangedOnly is set

	// --- Behavior & Control ---
	Threads             int               `mapstructure:"threads"` // 0 = runtime.NumCPU()
	Refresh             bool              `mapstructure:"refresh"`
	CopyOnly            bool              `mapstructure:"copyOnly"`
	CopyExtensions      []string          `mapstructure:"copyExtensions"`
	OverwriteExtension  string            `mapstructure:"overwriteExtension"`
	Params              map[string]string `mapstructure:"params"`
	Verbose             bool              `mapstructure:"verbose"`
	TuiEnabled          bool              `mapstructure:"tuiEnabled"`
	OutputFormat        OutputFormat      `mapstructure:"outputFormat"`
	LogFormat           LogFormat         `mapstructure:"logFormat"`
	LogFile             string            `mapstructure:"logFile"`
	ProgressIntervalCfg string            `mapstructure:"progressInterval"`
	ProgressInterval    time.Duration     `mapstructure:"-"` // derived from ProgressIntervalCfg

	// --- Resources ---
	Memory MemoryConfig `mapstructure:"memory"`

	// --- Bundled Converters ---
	Image ImageConfig  `mapstructure:"image"`
	Text  TextConfig   `mapstructure:"text"`
	Tools []ToolConfig `mapstructure:"tools"`

	// --- Injected Dependencies ---
	Registry   *Registry      `mapstructure:"-"` // Required: converter lookup
	EventHooks Hooks          `mapstructure:"-"` // Optional: defaults to NoOpHooks
	Logger     slog.Handler   `mapstructure:"-"` // Required: logging backend
	Monitor    *MemoryMonitor `mapstructure:"-"` // Optional: created from Memory when nil
}

// ProcessingConfig derives the configuration handed to converters.
func (o *Options) ProcessingConfig() ProcessingConfig {
	return ProcessingConfig{
		Threads: o.Threads,
		Refresh: o.Refresh,
		Params:  o.Params,
	}
}
