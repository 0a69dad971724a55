package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors/copyconv"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors/external"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors/imageconv"
	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors/textconv"
)

// BuildRegistry assembles the converters selected by opts.
//
// With CopyOnly every file is copied. Otherwise extensions are claimed in
// this order: configured tools, copyExtensions, the text converter, the
// image converter. A later converter silently gives up extensions already
// claimed, so a tool can take over ".png" without editing the image list.
// Two tools claiming the same extension is a configuration error.
func BuildRegistry(opts dispatch.Options, runner external.ToolRunner, logger *slog.Logger) (*dispatch.Registry, error) {
	reg := dispatch.NewRegistry()
	if opts.OverwriteExtension != "" {
		reg.SetOverwriteExtension(opts.OverwriteExtension)
	}

	if opts.CopyOnly {
		if err := reg.Register(copyconv.New(logger)); err != nil {
			return nil, err
		}
		return reg, nil
	}

	claimed := make(map[string]struct{})
	unclaimed := func(exts []string) []string {
		out := make([]string, 0, len(exts))
		for _, ext := range exts {
			key := strings.ToLower(ext)
			if !strings.HasPrefix(key, ".") {
				key = "." + key
			}
			if _, taken := claimed[key]; taken {
				continue
			}
			claimed[key] = struct{}{}
			out = append(out, key)
		}
		return out
	}

	for _, toolCfg := range opts.Tools {
		tool, err := external.New(toolCfg, runner, logger)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(tool); err != nil {
			return nil, err
		}
		for _, ext := range tool.Extensions() {
			unclaimed([]string{ext})
		}
	}

	if exts := unclaimed(opts.CopyExtensions); len(exts) > 0 {
		if err := reg.Register(copyconv.New(logger, exts...)); err != nil {
			return nil, err
		}
	}

	textCfg := opts.Text
	textCfg.Extensions = unclaimed(orDefault(textCfg.Extensions, dispatch.DefaultTextExtensions))
	if len(textCfg.Extensions) > 0 {
		if err := reg.Register(textconv.New(textCfg, logger)); err != nil {
			return nil, err
		}
	}

	imageCfg := opts.Image
	imageCfg.Extensions = unclaimed(orDefault(imageCfg.Extensions, dispatch.DefaultImageExtensions))
	if len(imageCfg.Extensions) > 0 {
		images, err := imageconv.New(imageCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("image converter: %w", err)
		}
		if err := reg.Register(images); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func orDefault(exts, defaults []string) []string {
	if len(exts) == 0 {
		return defaults
	}
	return exts
}
