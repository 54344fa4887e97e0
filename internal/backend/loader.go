package backend

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// PreludePage builds a page factory for a named prelude script.
type PreludePage func(name, prelude string) PageFactory

// Pages is the named registry windows resolve their sand page from.
type Pages struct {
	mu        sync.RWMutex
	factories map[string]PageFactory
}

// NewPages creates an empty registry
func NewPages() *Pages {
	return &Pages{factories: make(map[string]PageFactory)}
}

// Register adds or replaces the page called name.
func (p *Pages) Register(name string, factory PageFactory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories[name] = factory
}

// Lookup returns the factory registered under name.
func (p *Pages) Lookup(name string) (PageFactory, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.factories[name]
	return f, ok
}

// Names returns registered page names in sorted order.
func (p *Pages) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.factories))
	for name := range p.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScanDir registers one page per *.js file below dir. A file at
// "tools/math.js" becomes the page "tools/math".
func (p *Pages) ScanDir(dir string, ctor PreludePage) (int, error) {
	return p.ScanFS(os.DirFS(dir), ctor)
}

// ScanFS is ScanDir over an arbitrary filesystem.
func (p *Pages) ScanFS(fsys fs.FS, ctor PreludePage) (int, error) {
	matches, err := doublestar.Glob(fsys, "**/*.js")
	if err != nil {
		return 0, fmt.Errorf("failed to scan pages: %w", err)
	}

	for _, match := range matches {
		data, err := fs.ReadFile(fsys, match)
		if err != nil {
			return 0, fmt.Errorf("failed to read page %s: %w", match, err)
		}
		name := strings.TrimSuffix(match, ".js")
		p.Register(name, ctor(name, string(data)))
	}
	return len(matches), nil
}
