// Package imageconv provides the converter for texture and UI images. It
// decodes the common raster formats plus WebP, optionally downsizes them and
// re-encodes them into the configured output format.
//
// Decoded pixel memory is bounded by a budget shared by all compilers of a
// binding. A compiler that cannot reserve its image's share reports
// dispatch.ErrOutOfMemory, so heavy batches degrade to a single-threaded
// retry instead of exhausting the process.
package imageconv

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/semaphore"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors"
)

// Name is the registry name of the image converter.
const Name = "image"

// bytesPerPixel is the decoded footprint of an NRGBA pixel.
const bytesPerPixel = 4

// Converter converts images. Init must run before compilers are used.
type Converter struct {
	cfg    dispatch.ImageConfig
	exts   []string
	logger *slog.Logger

	budgetBytes int64
	budget      *semaphore.Weighted
}

// New creates an image converter from cfg, filling unset fields from the
// package defaults.
func New(cfg dispatch.ImageConfig, logger *slog.Logger) (*Converter, error) {
	if cfg.Format == "" {
		cfg.Format = dispatch.DefaultImageFormat
	}
	cfg.Format = strings.ToLower(cfg.Format)
	if _, ok := outputExtensions[cfg.Format]; !ok {
		return nil, fmt.Errorf("%w: unsupported image output format %q", dispatch.ErrConfigValidation, cfg.Format)
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = dispatch.DefaultImageQuality
	}
	if cfg.MemoryBudgetMB <= 0 {
		cfg.MemoryBudgetMB = dispatch.DefaultImageMemoryBudgetMB
	}
	if cfg.MaxDimension < 0 {
		return nil, fmt.Errorf("%w: image maxDimension cannot be negative", dispatch.ErrConfigValidation)
	}
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = dispatch.DefaultImageExtensions
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Converter{
		cfg:         cfg,
		exts:        exts,
		logger:      logger.With("converter", Name),
		budgetBytes: cfg.MemoryBudgetMB << 20,
	}, nil
}

var outputExtensions = map[string]string{
	"png":  ".png",
	"jpeg": ".jpg",
	"jpg":  ".jpg",
	"webp": ".webp",
}

func (c *Converter) Name() string { return Name }

func (c *Converter) Extensions() []string { return c.exts }

func (c *Converter) SupportsMultithreading() bool { return true }

// Init resets the decode budget for the binding.
func (c *Converter) Init(ic dispatch.InitContext) error {
	c.budget = semaphore.NewWeighted(c.budgetBytes)
	c.logger.Debug("Image converter initialized",
		slog.Int("files", len(ic.Files)),
		slog.String("format", c.cfg.Format),
		slog.String("budget", humanize.IBytes(uint64(c.budgetBytes))),
	)
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
	if conv.budget == nil {
		return fmt.Errorf("%w: image converter used before Init", dispatch.ErrConversionFailed)
	}
	target := convertors.TargetPath(job.SourcePath, job.TargetDir, outputExtensions[conv.cfg.Format])
	if !c.cfg.Refresh && convertors.UpToDate(job.SourcePath, target) {
		return nil
	}

	data, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %w", dispatch.ErrConversionFailed, job.SourcePath, err)
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return fmt.Errorf("%w: %s is not an image (%s)", dispatch.ErrConversionFailed, job.Record.SourceRelativePath, mt.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: failed to read image header of %s: %w", dispatch.ErrConversionFailed, job.Record.SourceRelativePath, err)
	}
	need := int64(cfg.Width) * int64(cfg.Height) * bytesPerPixel
	if need > conv.budgetBytes {
		return fmt.Errorf("%w: %s needs %s, budget is %s", dispatch.ErrOutOfMemory,
			job.Record.SourceRelativePath, humanize.IBytes(uint64(need)), humanize.IBytes(uint64(conv.budgetBytes)))
	}
	if !conv.budget.TryAcquire(need) {
		return fmt.Errorf("%w: decode budget exhausted while converting %s (%s)", dispatch.ErrOutOfMemory,
			job.Record.SourceRelativePath, humanize.IBytes(uint64(need)))
	}
	defer conv.budget.Release(need)

	img, err := decode(job.SourcePath, data)
	if err != nil {
		return fmt.Errorf("%w: failed to decode %s: %w", dispatch.ErrConversionFailed, job.Record.SourceRelativePath, err)
	}
	img = c.resize(img)

	out, err := c.encode(img)
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s: %w", dispatch.ErrConversionFailed, job.Record.SourceRelativePath, err)
	}
	if job.LogMemory {
		conv.logger.Info("Converted image in memory-degraded round",
			slog.String("path", job.Record.SourceRelativePath),
			slog.String("decoded", humanize.IBytes(uint64(need))),
		)
	}
	if err := convertors.WriteOutput(target, out); err != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrConversionFailed, err)
	}
	return nil
}

func decode(path string, data []byte) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		return webp.Decode(bytes.NewReader(data))
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

// resize keeps the aspect ratio and never upscales.
func (c *compiler) resize(img image.Image) image.Image {
	limit := c.conv.cfg.MaxDimension
	if limit == 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= limit && b.Dy() <= limit {
		return img
	}
	return imaging.Fit(img, limit, limit, imaging.Lanczos)
}

func (c *compiler) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch c.conv.cfg.Format {
	case "webp":
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(c.conv.cfg.Quality)})
	case "jpeg", "jpg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.conv.cfg.Quality))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	return buf.Bytes(), err
}
