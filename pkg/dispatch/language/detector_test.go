package language_test

import (
	"testing"

	"github.com/stackvity/asset-compiler/pkg/dispatch/language"
	"github.com/stretchr/testify/assert"
)

func TestNewDetector_NormalizesOverrides(t *testing.T) {
	detector := language.NewDetector(map[string]string{
		".MTL":   "Material",
		"cfg":    "Config",
		"":       "skipped",
		".empty": "",
	})

	lang, conf := detector.Detect([]byte("shader = stone"), "objects/rock.mtl")
	assert.Equal(t, "material", lang)
	assert.Equal(t, 1.0, conf)

	lang, _ = detector.Detect([]byte("r_width=1920"), "system.CFG")
	assert.Equal(t, "config", lang)

	lang, _ = detector.Detect([]byte("plain words"), "notes.empty")
	assert.Equal(t, language.PlainText, lang)
}

func TestDetector_Detect(t *testing.T) {
	detector := language.NewDetector(nil)

	testCases := []struct {
		name          string
		path          string
		content       string
		want          string
		minConfidence float64
	}{
		{"Go source", "tools/main.go", "package main\n\nfunc main() {}\n", "go", 0.5},
		{"Lua script", "scripts/ai.lua", "local function think(self)\n  return self.target\nend\n", "lua", 0.5},
		{"Plain text", "readme.txt", "This is just plain text.", language.PlainText, 0.0},
		{"Empty content", "empty.xml", "", language.Unknown, 0.0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lang, conf := detector.Detect([]byte(tc.content), tc.path)
			assert.Equal(t, tc.want, lang)
			assert.GreaterOrEqual(t, conf, tc.minConfidence)
		})
	}
}

func TestDetector_OverrideWinsOverContent(t *testing.T) {
	detector := language.NewDetector(map[string]string{".lua": "gamescript"})
	lang, conf := detector.Detect([]byte("local x = 1\n"), "ai.lua")
	assert.Equal(t, "gamescript", lang)
	assert.Equal(t, 1.0, conf)
}
