package imageconv_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stackvity/asset-compiler/internal/testutil"
	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors/imageconv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		img.Set(x, x%h, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	testutil.CreateDummyFile(t, path, buf.String())
}

func newConverter(t *testing.T, cfg dispatch.ImageConfig) *imageconv.Converter {
	t.Helper()
	conv, err := imageconv.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, conv.Init(dispatch.InitContext{}))
	return conv
}

func process(conv dispatch.Converter, rec dispatch.FileRecord) error {
	c := conv.CreateCompiler()
	c.BeginProcessing(dispatch.ProcessingConfig{Refresh: true})
	defer c.Release()
	defer c.EndProcessing()
	return c.Process(context.Background(), dispatch.Job{Record: rec, SourcePath: rec.SourcePath(), TargetDir: rec.TargetDir(), WorkerID: 1})
}

func TestNew_Validation(t *testing.T) {
	_, err := imageconv.New(dispatch.ImageConfig{Format: "tga"}, nil)
	assert.ErrorIs(t, err, dispatch.ErrConfigValidation)

	_, err = imageconv.New(dispatch.ImageConfig{MaxDimension: -1}, nil)
	assert.ErrorIs(t, err, dispatch.ErrConfigValidation)

	conv, err := imageconv.New(dispatch.ImageConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, dispatch.DefaultImageExtensions, conv.Extensions())
	assert.True(t, conv.SupportsMultithreading())
}

func TestCompiler_ResizesToMaxDimension(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writePNG(t, filepath.Join(src, "ui", "banner.png"), 64, 32)
	rec := dispatch.FileRecord{SourceRoot: src, SourceRelativePath: "ui/banner.png", TargetRoot: out}

	require.NoError(t, process(newConverter(t, dispatch.ImageConfig{MaxDimension: 16}), rec))

	f, err := os.Open(filepath.Join(out, "ui", "banner.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
}

func TestCompiler_EncodesWebP(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writePNG(t, filepath.Join(src, "icon.png"), 20, 10)
	rec := dispatch.FileRecord{SourceRoot: src, SourceRelativePath: "icon.png", TargetRoot: out}

	require.NoError(t, process(newConverter(t, dispatch.ImageConfig{Format: "webp", Quality: 80}), rec))

	data, err := os.ReadFile(filepath.Join(out, "icon.webp"))
	require.NoError(t, err)
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

func TestCompiler_ImageAboveBudgetIsOutOfMemory(t *testing.T) {
	src := t.TempDir()
	writePNG(t, filepath.Join(src, "huge.png"), 600, 600)
	rec := dispatch.FileRecord{SourceRoot: src, SourceRelativePath: "huge.png", TargetRoot: t.TempDir()}

	err := process(newConverter(t, dispatch.ImageConfig{MemoryBudgetMB: 1}), rec)

	assert.ErrorIs(t, err, dispatch.ErrOutOfMemory)
}

func TestCompiler_Failures(t *testing.T) {
	src := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(src, "notes.png"), "definitely not pixels")
	writePNG(t, filepath.Join(src, "ok.png"), 4, 4)

	err := process(newConverter(t, dispatch.ImageConfig{}), dispatch.FileRecord{SourceRoot: src, SourceRelativePath: "notes.png", TargetRoot: t.TempDir()})
	require.ErrorIs(t, err, dispatch.ErrConversionFailed)
	assert.Contains(t, err.Error(), "is not an image")

	uninitialized, err := imageconv.New(dispatch.ImageConfig{}, nil)
	require.NoError(t, err)
	err = process(uninitialized, dispatch.FileRecord{SourceRoot: src, SourceRelativePath: "ok.png", TargetRoot: t.TempDir()})
	assert.ErrorIs(t, err, dispatch.ErrConversionFailed)
}

// Two workers against a budget that fits one image: the dispatcher degrades
// to a single-threaded round and every image converts.
func TestImageConverter_BudgetDrivesSingleThreadedRetry(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	var files []dispatch.FileRecord
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		writePNG(t, filepath.Join(src, name), 400, 400)
		files = append(files, dispatch.FileRecord{SourceRoot: src, SourceRelativePath: name, TargetRoot: out})
	}
	conv, err := imageconv.New(dispatch.ImageConfig{MemoryBudgetMB: 1}, nil)
	require.NoError(t, err)

	q := dispatch.NewWorkQueue()
	d := dispatch.NewDispatcher(conv, q, dispatch.DispatcherOptions{MaxThreads: 2, Config: dispatch.ProcessingConfig{Refresh: true}})
	result := d.Run(context.Background(), files)

	assert.Empty(t, result.PermanentOOM)
	assert.Len(t, q.Converted(), 4)
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
}
