// Package external binds an external conversion tool to a set of
// extensions. The tool is started once per file; it receives a JSON Request
// on stdin and answers with a JSON Response on stdout.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
)

// SchemaVersion is the version of the request/response protocol.
const SchemaVersion = "1.0"

// Response statuses.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusOutOfMemory = "oom"
)

// Command arguments may reference the job with these placeholders.
const (
	PlaceholderSource    = "{source}"
	PlaceholderTargetDir = "{targetDir}"
)

// Request is written to the tool's stdin.
type Request struct {
	SchemaVersion string            `json:"schemaVersion"`
	Source        string            `json:"source"`
	RelativePath  string            `json:"relativePath"`
	TargetDir     string            `json:"targetDir"`
	WorkerID      int               `json:"workerId"`
	Refresh       bool              `json:"refresh"`
	LogMemory     bool              `json:"logMemory"`
	Params        map[string]string `json:"params,omitempty"`
}

// Response is read from the tool's stdout.
type Response struct {
	SchemaVersion string `json:"schemaVersion"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

// ToolRunner starts a command, feeds it stdin and returns its stdout. A
// non-zero exit is reported as an error.
type ToolRunner interface {
	Run(ctx context.Context, command []string, stdin []byte) ([]byte, error)
}

// Converter runs one configured tool.
type Converter struct {
	cfg    dispatch.ToolConfig
	runner ToolRunner
	logger *slog.Logger
	params map[string]string
}

// New validates cfg and creates the converter.
func New(cfg dispatch.ToolConfig, runner ToolRunner, logger *slog.Logger) (*Converter, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: tool name cannot be empty", dispatch.ErrConfigValidation)
	}
	if len(cfg.Extensions) == 0 {
		return nil, fmt.Errorf("%w: tool '%s' has no extensions", dispatch.ErrConfigValidation, cfg.Name)
	}
	if len(cfg.Command) == 0 || strings.TrimSpace(cfg.Command[0]) == "" {
		return nil, fmt.Errorf("%w: tool '%s' has no command", dispatch.ErrConfigValidation, cfg.Name)
	}
	if runner == nil {
		return nil, fmt.Errorf("%w: tool '%s' has no runner", dispatch.ErrConfigValidation, cfg.Name)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Converter{cfg: cfg, runner: runner, logger: logger.With("converter", cfg.Name)}, nil
}

func (c *Converter) Name() string { return c.cfg.Name }

func (c *Converter) Extensions() []string { return c.cfg.Extensions }

func (c *Converter) SupportsMultithreading() bool { return c.cfg.Multithreading }

// Init merges the run parameters with the tool's own; the tool's win.
func (c *Converter) Init(ic dispatch.InitContext) error {
	c.params = make(map[string]string, len(ic.Config.Params)+len(c.cfg.Params))
	maps.Copy(c.params, ic.Config.Params)
	maps.Copy(c.params, c.cfg.Params)
	c.logger.Debug("External tool bound", slog.String("command", strings.Join(c.cfg.Command, " ")), slog.Int("files", len(ic.Files)))
	return nil
}

func (c *Converter) DeInit() {}

func (c *Converter) CreateCompiler() dispatch.Compiler {
	return &compiler{conv: c}
}

type compiler struct {
	conv *Converter
	cfg  dispatch.ProcessingConfig
}

func (c *compiler) BeginProcessing(cfg dispatch.ProcessingConfig) { c.cfg = cfg }

func (c *compiler) EndProcessing() {}

func (c *compiler) Release() {}

func (c *compiler) Process(ctx context.Context, job dispatch.Job) error {
	conv := c.conv
	req := Request{
		SchemaVersion: SchemaVersion,
		Source:        job.SourcePath,
		RelativePath:  job.Record.SourceRelativePath,
		TargetDir:     job.TargetDir,
		WorkerID:      job.WorkerID,
		Refresh:       c.cfg.Refresh,
		LogMemory:     job.LogMemory,
		Params:        conv.params,
	}
	input, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: failed to encode request for '%s': %w", dispatch.ErrConversionFailed, conv.cfg.Name, err)
	}

	stdout, err := conv.runner.Run(ctx, expand(conv.cfg.Command, job), input)
	if err != nil {
		return fmt.Errorf("%w: tool '%s' failed on %s: %w", dispatch.ErrConversionFailed, conv.cfg.Name, job.Record.SourceRelativePath, err)
	}

	var resp Response
	if err := json.Unmarshal(stdout, &resp); err != nil {
		return fmt.Errorf("%w: tool '%s' returned invalid JSON: %w", dispatch.ErrConversionFailed, conv.cfg.Name, err)
	}
	if resp.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: tool '%s' uses schema version '%s', expected '%s'", dispatch.ErrConversionFailed, conv.cfg.Name, resp.SchemaVersion, SchemaVersion)
	}

	switch resp.Status {
	case StatusOK:
		return nil
	case StatusOutOfMemory:
		return fmt.Errorf("%w: tool '%s' ran out of memory on %s", dispatch.ErrOutOfMemory, conv.cfg.Name, job.Record.SourceRelativePath)
	case StatusError:
		msg := resp.Error
		if msg == "" {
			msg = "no details"
		}
		return fmt.Errorf("%w: tool '%s': %s", dispatch.ErrConversionFailed, conv.cfg.Name, msg)
	default:
		return fmt.Errorf("%w: tool '%s' returned unknown status %q", dispatch.ErrConversionFailed, conv.cfg.Name, resp.Status)
	}
}

func expand(command []string, job dispatch.Job) []string {
	r := strings.NewReplacer(PlaceholderSource, job.SourcePath, PlaceholderTargetDir, job.TargetDir)
	out := make([]string, len(command))
	for i, arg := range command {
		out[i] = r.Replace(arg)
	}
	return out
}
