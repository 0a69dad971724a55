package cli

import (
	"testing"

	"github.com/stackvity/asset-compiler/internal/testutil"
	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func converterNames(reg *dispatch.Registry) []string {
	var names []string
	for _, c := range reg.Converters() {
		names = append(names, c.Name())
	}
	return names
}

func TestBuildRegistry_CopyOnly(t *testing.T) {
	reg, err := BuildRegistry(dispatch.Options{CopyOnly: true, Tools: []dispatch.ToolConfig{{Name: "ignored"}}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"copy"}, converterNames(reg))
	c, ok := reg.FindConverter("anything.at.all")
	require.True(t, ok)
	assert.Equal(t, "copy", c.Name())
}

func TestBuildRegistry_Defaults(t *testing.T) {
	reg, err := BuildRegistry(dispatch.Options{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"text", "image"}, converterNames(reg))
	for name, want := range map[string]string{"a.XML": "text", "b.lua": "text", "c.png": "image", "d.WebP": "image"} {
		c, ok := reg.FindConverter(name)
		require.True(t, ok, name)
		assert.Equal(t, want, c.Name(), name)
	}
	_, ok := reg.FindConverter("e.wav")
	assert.False(t, ok)
}

func TestBuildRegistry_ClaimOrder(t *testing.T) {
	opts := dispatch.Options{
		CopyExtensions: []string{"txt", ".wav"},
		Tools: []dispatch.ToolConfig{
			{Name: "texturec", Extensions: []string{".PNG"}, Command: []string{"texturec"}},
		},
	}
	reg, err := BuildRegistry(opts, &testutil.MockToolRunner{}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"texturec", "copy", "text", "image"}, converterNames(reg))
	for name, want := range map[string]string{"a.png": "texturec", "b.txt": "copy", "c.wav": "copy", "d.xml": "text", "e.jpg": "image"} {
		c, ok := reg.FindConverter(name)
		require.True(t, ok, name)
		assert.Equal(t, want, c.Name(), name)
	}
}

func TestBuildRegistry_ConverterLosingAllExtensionsIsSkipped(t *testing.T) {
	opts := dispatch.Options{
		CopyExtensions: []string{".txt"},
		Text:           dispatch.TextConfig{Extensions: []string{".txt"}},
	}
	reg, err := BuildRegistry(opts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"copy", "image"}, converterNames(reg))
}

func TestBuildRegistry_Errors(t *testing.T) {
	runner := &testutil.MockToolRunner{}
	testCases := []struct {
		name string
		opts dispatch.Options
	}{
		{"Tools share an extension", dispatch.Options{Tools: []dispatch.ToolConfig{
			{Name: "a", Extensions: []string{".mdl"}, Command: []string{"a"}},
			{Name: "b", Extensions: []string{".mdl"}, Command: []string{"b"}},
		}}},
		{"Tool without command", dispatch.Options{Tools: []dispatch.ToolConfig{{Name: "a", Extensions: []string{".mdl"}}}}},
		{"Tool named like a bundled converter", dispatch.Options{Tools: []dispatch.ToolConfig{{Name: "text", Extensions: []string{".mdl"}, Command: []string{"a"}}}}},
		{"Unsupported image format", dispatch.Options{Image: dispatch.ImageConfig{Format: "tga"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildRegistry(tc.opts, runner, nil)
			assert.ErrorIs(t, err, dispatch.ErrConfigValidation)
		})
	}
}

func TestBuildRegistry_OverwriteExtension(t *testing.T) {
	reg, err := BuildRegistry(dispatch.Options{OverwriteExtension: ".png"}, nil, nil)
	require.NoError(t, err)

	c, ok := reg.FindConverter("level.xml")
	require.True(t, ok)
	assert.Equal(t, "image", c.Name())
}
