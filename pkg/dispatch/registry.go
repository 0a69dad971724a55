package dispatch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// WildcardExtension binds a converter to every file name.
const WildcardExtension = "*"

// Registry maps file extensions to converters.
type Registry struct {
	mu         sync.RWMutex
	converters []Converter
	byExt      map[string]Converter
	wildcard   Converter
	// overwriteExt, when set, replaces the extension of every looked-up name.
	overwriteExt string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Converter)}
}

// Register adds a converter for all of its extensions. Converter names must
// be unique, and registering a second converter for an extension that is
// already bound is an error.
func (r *Registry) Register(c Converter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, prev := range r.converters {
		if prev.Name() == c.Name() {
			return fmt.Errorf("%w: converter '%s' is already registered", ErrConfigValidation, c.Name())
		}
	}
	exts := c.Extensions()
	if len(exts) == 0 {
		return fmt.Errorf("%w: converter '%s' declares no extensions", ErrConfigValidation, c.Name())
	}
	for _, ext := range exts {
		if ext == WildcardExtension {
			if r.wildcard != nil {
				return fmt.Errorf("%w: converters '%s' and '%s' both bind every extension", ErrConfigValidation, r.wildcard.Name(), c.Name())
			}
			continue
		}
		if prev, ok := r.byExt[normalizeExt(ext)]; ok {
			return fmt.Errorf("%w: extension '%s' is bound to both '%s' and '%s'", ErrConfigValidation, ext, prev.Name(), c.Name())
		}
	}
	for _, ext := range exts {
		if ext == WildcardExtension {
			r.wildcard = c
			continue
		}
		r.byExt[normalizeExt(ext)] = c
	}
	r.converters = append(r.converters, c)
	return nil
}

// SetOverwriteExtension forces every lookup to use ext instead of the real
// extension of the file name. An empty ext restores normal lookup.
func (r *Registry) SetOverwriteExtension(ext string) {
	r.mu.Lock()
	r.overwriteExt = strings.TrimPrefix(ext, ".")
	r.mu.Unlock()
}

// OverwriteExtension returns the forced extension, if any.
func (r *Registry) OverwriteExtension() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.overwriteExt
}

// FindConverter resolves the converter for a file name. The boolean is false
// when no converter is registered for it.
func (r *Registry) FindConverter(name string) (Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.overwriteExt != "" {
		name = "filename." + r.overwriteExt
	}
	if c, ok := r.byExt[normalizeExt(filepath.Ext(name))]; ok {
		return c, true
	}
	if r.wildcard != nil {
		return r.wildcard, true
	}
	return nil, false
}

// Converters returns the registered converters in registration order.
func (r *Registry) Converters() []Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Converter, len(r.converters))
	copy(out, r.converters)
	return out
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
