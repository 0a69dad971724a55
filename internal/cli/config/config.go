// Package config loads the CLI configuration with viper (defaults, config
// file, profile, environment, flags), validates it into dispatch.Options and
// builds the run logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
)

const (
	EnvPrefix         = "ASSETCOMPILER"
	DefaultConfigName = "asset-compiler"
)

// Params carries everything LoadAndValidate needs besides the environment.
type Params struct {
	ConfigFile string
	Profile    string
	AppVersion string
	Masks      []string // positional arguments; override configured masks when set
	Flags      *pflag.FlagSet
	Stderr     io.Writer // log destination; os.Stderr when nil
	// SkipPaths skips source and target root validation, for commands
	// that never touch the file system.
	SkipPaths bool
	// Terminal reports that Stderr ends in an interactive terminal, as
	// found by IsTerminal. Auto log format picks text logs only then.
	Terminal bool
}

// Loaded is the result of a successful LoadAndValidate.
type Loaded struct {
	Options dispatch.Options
	Logger  *slog.Logger
	// Close releases the log file, if one was opened.
	Close func() error
}

// LoadAndValidate loads configuration from all sources, validates the merged
// result and derives absolute paths, thread count and progress interval.
// Validation failures wrap dispatch.ErrConfigValidation.
func LoadAndValidate(p Params) (Loaded, error) {
	var opts dispatch.Options
	stderr := p.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	tempLogger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	noop := Loaded{Logger: tempLogger, Close: func() error { return nil }}

	v := viper.New()
	setDefaults(v)

	if p.ConfigFile != "" {
		v.SetConfigFile(p.ConfigFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || p.ConfigFile != "" {
			where := p.ConfigFile
			if where == "" {
				where = DefaultConfigName
			}
			return noop, fmt.Errorf("%w: error reading config file '%s': %w", dispatch.ErrConfigValidation, where, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
	}

	opts.ProfileName = p.Profile
	if p.Profile != "" {
		profileKey := "profiles." + p.Profile
		profile := v.Sub(profileKey)
		if profile == nil {
			where := v.ConfigFileUsed()
			if where == "" {
				where = "(no config file found)"
			}
			return noop, fmt.Errorf("%w: profile '%s' not found in config file '%s'", dispatch.ErrConfigValidation, p.Profile, where)
		}
		if err := v.MergeConfigMap(profile.AllSettings()); err != nil {
			return noop, fmt.Errorf("%w: error merging profile '%s': %w", dispatch.ErrConfigValidation, p.Profile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if p.Flags != nil {
		for flagName, key := range flagKeys {
			if f := p.Flags.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return noop, fmt.Errorf("error binding flag '--%s': %w", flagName, err)
				}
			}
		}
	}

	if err := v.Unmarshal(&opts); err != nil {
		return noop, fmt.Errorf("%w: error unmarshalling configuration: %w", dispatch.ErrConfigValidation, err)
	}
	opts.AppVersion = p.AppVersion
	if len(p.Masks) > 0 {
		opts.Masks = p.Masks
	}
	if p.Flags != nil && p.Flags.Changed(FlagNoTUI) {
		if noTUI, _ := p.Flags.GetBool(FlagNoTUI); noTUI {
			opts.TuiEnabled = false
		}
	}

	handler, closeLog, err := newLogHandler(opts, stderr, p.Terminal)
	if err != nil {
		return noop, err
	}
	logger := slog.New(handler)
	opts.Logger = handler

	if err := validateAndDeriveOptions(&opts, logger, p.SkipPaths); err != nil {
		_ = closeLog()
		return Loaded{Options: opts, Logger: logger, Close: func() error { return nil }}, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.Int("threads", opts.Threads),
		slog.Any("sourceRoots", opts.SourceRoots),
		slog.String("targetRoot", opts.TargetRoot),
	)
	return Loaded{Options: opts, Logger: logger, Close: closeLog}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sourceRoots", []string{})
	v.SetDefault("targetRoot", "")
	v.SetDefault("appRoot", "")
	v.SetDefault("masks", []string{})
	v.SetDefault("ignore", []string{})
	v.SetDefault("git.changedOnly", false)
	v.SetDefault("git.sinceRef", "")

	v.SetDefault("threads", dispatch.DefaultThreads)
	v.SetDefault("refresh", false)
	v.SetDefault("copyOnly", false)
	v.SetDefault("copyExtensions", []string{})
	v.SetDefault("overwriteExtension", "")
	v.SetDefault("params", map[string]string{})
	v.SetDefault("verbose", dispatch.DefaultVerbose)
	v.SetDefault("tuiEnabled", dispatch.DefaultTuiEnabled)
	v.SetDefault("outputFormat", string(dispatch.DefaultOutputFormat))
	v.SetDefault("logFormat", string(dispatch.DefaultLogFormat))
	v.SetDefault("logFile", "")
	v.SetDefault("progressInterval", dispatch.DefaultProgressIntervalString)

	v.SetDefault("memory.warnMB", dispatch.DefaultMemoryWarnMB)
	v.SetDefault("memory.errorMB", dispatch.DefaultMemoryErrorMB)

	v.SetDefault("image.extensions", dispatch.DefaultImageExtensions)
	v.SetDefault("image.format", dispatch.DefaultImageFormat)
	v.SetDefault("image.quality", dispatch.DefaultImageQuality)
	v.SetDefault("image.maxDimension", 0)
	v.SetDefault("image.memoryBudgetMB", dispatch.DefaultImageMemoryBudgetMB)

	v.SetDefault("text.extensions", dispatch.DefaultTextExtensions)
	v.SetDefault("text.defaultEncoding", "")
	v.SetDefault("text.languageOverrides", map[string]string{})
}

// newLogHandler builds the stderr handler, teeing into the log file when
// one is configured.
func newLogHandler(opts dispatch.Options, stderr io.Writer, terminal bool) (slog.Handler, func() error, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	format := opts.LogFormat
	if format == "" || format == dispatch.LogFormatAuto {
		format = dispatch.LogFormatJSON
		if terminal {
			format = dispatch.LogFormatText
		}
	}

	var handler slog.Handler
	switch format {
	case dispatch.LogFormatJSON:
		handler = slog.NewJSONHandler(stderr, hopts)
	case dispatch.LogFormatText:
		handler = slog.NewTextHandler(stderr, hopts)
	default:
		return nil, nil, fmt.Errorf("%w: invalid value '%s' for key 'logFormat' (flag --log-format). Allowed: auto, text, json", dispatch.ErrConfigValidation, opts.LogFormat)
	}

	if opts.LogFile == "" {
		return handler, func() error { return nil }, nil
	}
	f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cannot open log file '%s': %w", dispatch.ErrConfigValidation, opts.LogFile, err)
	}
	// The file always gets debug-level JSON for post-mortems.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return newTeeHandler(handler, fileHandler), f.Close, nil
}

// IsTerminal reports whether w is a file attached to an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func validateAndDeriveOptions(opts *dispatch.Options, logger *slog.Logger, skipPaths bool) error {
	if !skipPaths {
		if err := validatePaths(opts); err != nil {
			return err
		}
	}
	return validateSettings(opts, logger)
}

func validatePaths(opts *dispatch.Options) error {
	opts.SourceRoots = dispatch.SplitSourceRoots(opts.SourceRoots)
	if len(opts.SourceRoots) == 0 {
		return fmt.Errorf("%w: at least one source root is required (-s, --source)", dispatch.ErrConfigValidation)
	}
	for i, root := range opts.SourceRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("%w: cannot resolve source root '%s': %w", dispatch.ErrConfigValidation, root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("%w: source root '%s' is not accessible: %w", dispatch.ErrConfigValidation, abs, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: source root '%s' is not a directory", dispatch.ErrConfigValidation, abs)
		}
		opts.SourceRoots[i] = abs
	}

	if opts.TargetRoot != "" {
		abs, err := filepath.Abs(opts.TargetRoot)
		if err != nil {
			return fmt.Errorf("%w: cannot resolve target root '%s': %w", dispatch.ErrConfigValidation, opts.TargetRoot, err)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return fmt.Errorf("%w: cannot create or access target root '%s': %w", dispatch.ErrConfigValidation, abs, err)
		}
		opts.TargetRoot = abs
	}
	if opts.AppRoot == "" {
		if exe, err := os.Executable(); err == nil {
			opts.AppRoot = filepath.Dir(exe)
		}
	}
	return nil
}

func validateSettings(opts *dispatch.Options, logger *slog.Logger) error {
	// === Enums ===
	if !slices.Contains([]dispatch.OutputFormat{dispatch.OutputFormatText, dispatch.OutputFormatJSON}, opts.OutputFormat) {
		return fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: text, json", dispatch.ErrConfigValidation, opts.OutputFormat)
	}

	// === Numbers ===
	if opts.Threads < 0 {
		return fmt.Errorf("%w: invalid value '%d' for key 'threads' (flag --threads). Must be >= 0", dispatch.ErrConfigValidation, opts.Threads)
	}
	if opts.Threads == 0 {
		opts.Threads = runtime.NumCPU()
		logger.Debug("Threads not set, defaulting to number of CPUs", slog.Int("threads", opts.Threads))
	}
	if opts.Memory.WarnMB < 0 || opts.Memory.ErrorMB < 0 {
		return fmt.Errorf("%w: memory thresholds cannot be negative", dispatch.ErrConfigValidation)
	}
	if opts.Memory.WarnMB > 0 && opts.Memory.ErrorMB > 0 && opts.Memory.WarnMB > opts.Memory.ErrorMB {
		return fmt.Errorf("%w: memory.warnMB (%d) cannot exceed memory.errorMB (%d)", dispatch.ErrConfigValidation, opts.Memory.WarnMB, opts.Memory.ErrorMB)
	}

	interval, err := time.ParseDuration(opts.ProgressIntervalCfg)
	if err != nil {
		return fmt.Errorf("%w: invalid progressInterval '%s': %w", dispatch.ErrConfigValidation, opts.ProgressIntervalCfg, err)
	}
	if interval <= 0 {
		return fmt.Errorf("%w: progressInterval must be positive, got '%s'", dispatch.ErrConfigValidation, opts.ProgressIntervalCfg)
	}
	opts.ProgressInterval = interval

	// === Derived switches ===
	if opts.Git.SinceRef != "" {
		opts.Git.ChangedOnly = true
	}
	if opts.OverwriteExtension != "" && !strings.HasPrefix(opts.OverwriteExtension, ".") {
		opts.OverwriteExtension = "." + opts.OverwriteExtension
	}
	// Debug output interleaves badly with the full-screen UI.
	if opts.Verbose && opts.TuiEnabled {
		logger.Debug("Verbose mode enabled, TUI disabled")
		opts.TuiEnabled = false
	}
	return nil
}
