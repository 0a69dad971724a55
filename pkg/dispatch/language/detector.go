// Package language tags text assets with the language go-enry detects for
// them. The text converter only logs the result; overrides let a project map
// its own extensions (".mtl", ".cfg") to a fixed language.
package language

import (
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

const (
	// Unknown is reported for empty content.
	Unknown = "unknown"
	// PlainText is reported when no rule matched.
	PlainText = "plaintext"
)

// Detector determines the language of a file from its content and name.
type Detector interface {
	// Detect returns a lowercase language identifier and an indicative
	// confidence: 1.0 for overrides, 0.8 for a content match, 0.5 for an
	// extension or file name match and 0.0 for the fallbacks.
	Detect(content []byte, filePath string) (lang string, confidence float64)
}

type enryDetector struct {
	overrides map[string]string
}

// NewDetector creates a go-enry backed detector. Override keys are
// extensions; they are lowercased and given a leading dot.
func NewDetector(overrides map[string]string) Detector {
	normalized := make(map[string]string, len(overrides))
	for ext, lang := range overrides {
		ext = strings.ToLower(strings.TrimSpace(ext))
		lang = strings.ToLower(strings.TrimSpace(lang))
		if ext == "" || ext == "." || lang == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = lang
	}
	return &enryDetector{overrides: normalized}
}

func (d *enryDetector) Detect(content []byte, filePath string) (string, float64) {
	if len(content) == 0 {
		return Unknown, 0.0
	}

	if lang, ok := d.overrides[strings.ToLower(filepath.Ext(filePath))]; ok {
		return lang, 1.0
	}

	if lang := enry.GetLanguage(filepath.Base(filePath), content); usable(lang) {
		return strings.ToLower(lang), 0.8
	}
	if lang, safe := enry.GetLanguageByExtension(filePath); safe && usable(lang) {
		return strings.ToLower(lang), 0.5
	}
	if lang, safe := enry.GetLanguageByFilename(filePath); safe && usable(lang) {
		return strings.ToLower(lang), 0.5
	}
	return PlainText, 0.0
}

// enry answers "Text" when it only knows the file is not code.
func usable(lang string) bool {
	return lang != "" && lang != "Text"
}
