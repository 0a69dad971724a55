// Package encoding detects the character encoding of text assets, converts
// them to UTF-8 and tells text from binary content.
package encoding

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const (
	// checkLen is the number of leading bytes inspected for null bytes.
	checkLen = 1024
	// nullThreshold is the share of null bytes above which content is binary.
	nullThreshold = 0.15
)

var utf8BOM = []byte("\uFEFF")

// Handler defines the interface for detecting character encoding, converting
// content to UTF-8, and detecting binary files.
type Handler interface {
	// DetectAndDecode detects the encoding of content and converts it to
	// UTF-8. It returns the UTF-8 bytes, the IANA name of the detected
	// encoding and whether detection was certain. When detection is
	// uncertain the configured default encoding is assumed.
	DetectAndDecode(content []byte) (utf8Content []byte, detectedEncoding string, certain bool, err error)

	// IsBinary reports whether content is likely binary, based on MIME
	// sniffing and the share of null bytes.
	IsBinary(content []byte) bool

	// MIMEType returns the sniffed MIME type of content.
	MIMEType(content []byte) string
}

type charsetHandler struct {
	defaultEncoding string
}

// NewHandler creates an encoding handler. defaultEncoding is used when
// detection is uncertain; empty keeps the detector's own guess.
func NewHandler(defaultEncoding string) Handler {
	return &charsetHandler{defaultEncoding: defaultEncoding}
}

// DetectAndDecode implements the Handler interface.
func (h *charsetHandler) DetectAndDecode(content []byte) ([]byte, string, bool, error) {
	enc, name, certain := charset.DetermineEncoding(content, "")

	if !certain && h.defaultEncoding != "" {
		if fallback, fallbackName := charset.Lookup(h.defaultEncoding); fallback != nil {
			enc, name, certain = fallback, fallbackName, true
		}
	}
	if enc == nil {
		if name == "" {
			name = "utf-8"
		}
		return content, name, certain, nil
	}

	utf8Content, err := io.ReadAll(transform.NewReader(bytes.NewReader(content), enc.NewDecoder()))
	if name == "" {
		name = "unknown"
	}
	if err != nil {
		return content, name, certain, fmt.Errorf("failed to convert from '%s': %w", name, err)
	}
	return bytes.TrimPrefix(utf8Content, utf8BOM), name, certain, nil
}

// MIMEType implements the Handler interface.
func (h *charsetHandler) MIMEType(content []byte) string {
	return mimetype.Detect(content).String()
}

// IsBinary implements the Handler interface.
func (h *charsetHandler) IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	// Wide encodings are full of null bytes by construction.
	if bytes.HasPrefix(content, []byte{0xFF, 0xFE}) || bytes.HasPrefix(content, []byte{0xFE, 0xFF}) {
		return false
	}
	m := mimetype.Detect(content)
	if !isTextBased(m) && !m.Is("application/octet-stream") {
		return true
	}
	if lower := strings.ToLower(m.String()); strings.Contains(lower, "utf-16") || strings.Contains(lower, "utf-32") {
		return false
	}

	limit := min(len(content), checkLen)
	nulls := bytes.Count(content[:limit], []byte{0x00})
	return float64(nulls)/float64(limit) > nullThreshold
}

// isTextBased walks the MIME hierarchy looking for text/plain.
func isTextBased(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
