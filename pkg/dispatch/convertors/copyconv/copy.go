// Package copyconv provides the converter that copies source files into the
// target tree unchanged. It backs --copy-only runs and configured copy
// extensions.
package copyconv

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors"
)

// Name is the registry name of the copy converter.
const Name = "copy"

// Converter copies files. With no extensions it binds every extension.
type Converter struct {
	exts   []string
	logger *slog.Logger
}

// New creates a copy converter for exts, or for every extension when exts
// is empty.
func New(logger *slog.Logger, exts ...string) *Converter {
	if len(exts) == 0 {
		exts = []string{dispatch.WildcardExtension}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Converter{exts: exts, logger: logger.With("converter", Name)}
}

func (c *Converter) Name() string { return Name }
func (c *Converter) Extensions() []string { return c.exts }
func (c *Converter) Init(ic dispatch.InitContext) error { return nil }
func (c *Converter) DeInit() {}
func (c *Converter) SupportsMultithreading() bool { return true }

func (c *Converter) CreateCompiler() dispatch.Compiler {
	return &compiler{logger: c.logger}
}

type compiler struct {
	cfg    dispatch.ProcessingConfig
	logger *slog.Logger
}

func (c *compiler) BeginProcessing(cfg dispatch.ProcessingConfig) { c.cfg = cfg }
func (c *compiler) EndProcessing() {}
func (c *compiler) Release() {}

func (c *compiler) Process(ctx context.Context, job dispatch.Job) error {
	target := convertors.TargetPath(job.SourcePath, job.TargetDir, "")
	if filepath.Clean(target) == filepath.Clean(job.SourcePath) {
		return nil
	}
	if !c.cfg.Refresh && convertors.UpToDate(job.SourcePath, target) {
		c.logger.Debug("Target is up to date, skipping copy", slog.String("target", target))
		return nil
	}

	data, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %w", dispatch.ErrConversionFailed, job.SourcePath, err)
	}
	if err := convertors.WriteOutput(target, data); err != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrConversionFailed, err)
	}
	return nil
}
