// Package textconv provides the converter that normalizes text assets
// (configs, level XML, scripts) to UTF-8 in the target tree.
package textconv

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors"
	"github.com/stackvity/asset-compiler/pkg/dispatch/encoding"
	"github.com/stackvity/asset-compiler/pkg/dispatch/language"
)

// Name is the registry name of the text converter.
const Name = "text"

// LineEndingsParam selects the line endings written to the target:
// "lf", "crlf", or "keep" (the default).
const LineEndingsParam = "text.lineEndings"

// Converter decodes text files to UTF-8. Binary content is an expected
// failure.
type Converter struct {
	exts     []string
	handler  encoding.Handler
	detector language.Detector
	logger   *slog.Logger
}

// New creates a text converter from cfg. Empty cfg.Extensions falls back to
// dispatch.DefaultTextExtensions.
func New(cfg dispatch.TextConfig, logger *slog.Logger) *Converter {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = dispatch.DefaultTextExtensions
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Converter{
		exts:     exts,
		handler:  encoding.NewHandler(cfg.DefaultEncoding),
		detector: language.NewDetector(cfg.LanguageOverrides),
		logger:   logger.With("converter", Name),
	}
}

func (c *Converter) Name() string { return Name }

func (c *Converter) Extensions() []string { return c.exts }

func (c *Converter) Init(ic dispatch.InitContext) error {
	c.logger.Debug("Text converter initialized", slog.Int("files", len(ic.Files)))
	return nil
}

func (c *Converter) DeInit() {}

func (c *Converter) SupportsMultithreading() bool { return true }

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
	target := convertors.TargetPath(job.SourcePath, job.TargetDir, "")
	if !c.cfg.Refresh && convertors.UpToDate(job.SourcePath, target) {
		return nil
	}

	content, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %w", dispatch.ErrConversionFailed, job.SourcePath, err)
	}

	if c.conv.handler.IsBinary(content) {
		return fmt.Errorf("%w: %s looks binary (%s)", dispatch.ErrConversionFailed, job.Record.SourceRelativePath, c.conv.handler.MIMEType(content))
	}

	utf8Content, enc, certain, err := c.conv.handler.DetectAndDecode(content)
	if err != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrConversionFailed, err)
	}

	lang, confidence := c.conv.detector.Detect(utf8Content, job.Record.SourceRelativePath)
	c.conv.logger.Debug("Decoded text asset",
		slog.String("path", job.Record.SourceRelativePath),
		slog.String("encoding", enc),
		slog.Bool("certain", certain),
		slog.String("language", lang),
		slog.Float64("confidence", confidence),
		slog.Int("thread", job.WorkerID),
	)

	utf8Content, err = normalizeLineEndings(utf8Content, c.cfg.Param(LineEndingsParam, "keep"))
	if err != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrConversionFailed, err)
	}

	if err := convertors.WriteOutput(target, utf8Content); err != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrConversionFailed, err)
	}
	return nil
}

func normalizeLineEndings(content []byte, mode string) ([]byte, error) {
	switch strings.ToLower(mode) {
	case "keep":
		return content, nil
	case "lf":
		return bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n")), nil
	case "crlf":
		lf := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
		return bytes.ReplaceAll(lf, []byte("\n"), []byte("\r\n")), nil
	default:
		return nil, fmt.Errorf("unknown %s value '%s'", LineEndingsParam, mode)
	}
}
