// Package registry resolves reusable component definitions by name. A
// lookup walks an ordered registry list, first hit wins, so local and
// in-memory registries layered ahead of the installation registries shadow
// on-disk truth the same way the live editor session does.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"mclsp/internal/document"
	"mclsp/internal/mcdoc"
)

// CompExt is the file extension of component definitions.
const CompExt = ".comp"

// Component is a resolved component definition with its parameter lists.
type Component struct {
	Name    string
	Define  []document.Param
	Setting []document.Param
	Doc     mcdoc.Doc
	Source  string
	Path    string
}

// Param looks up a DEFINITION or SETTING parameter by name.
func (c *Component) Param(name string) (document.Param, bool) {
	for _, p := range c.Define {
		if p.Name == name {
			return p, true
		}
	}
	for _, p := range c.Setting {
		if p.Name == name {
			return p, true
		}
	}
	return document.Param{}, false
}

// ParseComponent builds a Component from raw source. Structural errors in
// the source are ignored here; the caller surfaces them separately.
func ParseComponent(name, source, path string) *Component {
	doc := document.Parse(name+CompExt, source)
	comp := &Component{
		Name:   name,
		Doc:    mcdoc.Parse(source),
		Source: source,
		Path:   path,
	}
	if doc.Def != nil {
		comp.Define = doc.Def.DefParams
		comp.Setting = doc.Def.Params
		if doc.Def.Name != "" {
			comp.Name = doc.Def.Name
		}
	}
	return comp
}

// Registry locates component sources by stem name.
type Registry interface {
	Name() string
	Known(name string) bool
	// Contents returns the component source text.
	Contents(name string) (string, bool)
	// Path returns the file path markers should attribute the source to.
	Path(name string) (string, bool)
	// Names lists every known component stem.
	Names() []string
}

// Stack is an ordered registry list, highest priority first.
type Stack []Registry

// Known reports whether any registry resolves name.
func (s Stack) Known(name string) bool {
	for _, r := range s {
		if r.Known(name) {
			return true
		}
	}
	return false
}

// Get resolves and parses a component, first registry wins.
func (s Stack) Get(name string) (*Component, bool) {
	for _, r := range s {
		if !r.Known(name) {
			continue
		}
		source, ok := r.Contents(name)
		if !ok {
			continue
		}
		path, _ := r.Path(name)
		return ParseComponent(name, source, path), true
	}
	return nil, false
}

// Names returns the union of all component stems, sorted.
func (s Stack) Names() []string {
	seen := make(map[string]struct{})
	for _, r := range s {
		for _, n := range r.Names() {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// LocalRegistry serves .comp files from one directory.
type LocalRegistry struct {
	name string
	dir  string
}

// NewLocal wraps dir as a registry. The directory is not required to exist;
// lookups against a missing directory simply fail.
func NewLocal(name, dir string) *LocalRegistry {
	return &LocalRegistry{name: name, dir: dir}
}

func (l *LocalRegistry) Name() string { return l.name }

func (l *LocalRegistry) file(name string) string {
	return filepath.Join(l.dir, name+CompExt)
}

func (l *LocalRegistry) Known(name string) bool {
	info, err := os.Stat(l.file(name))
	return err == nil && !info.IsDir()
}

func (l *LocalRegistry) Contents(name string) (string, bool) {
	data, err := os.ReadFile(l.file(name))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (l *LocalRegistry) Path(name string) (string, bool) {
	if !l.Known(name) {
		return "", false
	}
	return l.file(name), true
}

func (l *LocalRegistry) Names() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), CompExt) {
			names = append(names, strings.TrimSuffix(e.Name(), CompExt))
		}
	}
	return names
}

type memEntry struct {
	source string
	path   string
}

// InMemoryRegistry holds component sources injected at runtime: live
// unsaved editor buffers and the fragment wrapper's self-registration.
// Writes are last-write-wins and idempotent.
type InMemoryRegistry struct {
	mu   sync.RWMutex
	name string
	comp map[string]memEntry
}

// NewInMemory builds an empty in-memory registry.
func NewInMemory(name string) *InMemoryRegistry {
	return &InMemoryRegistry{name: name, comp: make(map[string]memEntry)}
}

func (m *InMemoryRegistry) Name() string { return m.name }

// Inject registers source under name. path, when non-empty, is the real
// file path line markers should reference instead of a synthetic one.
func (m *InMemoryRegistry) Inject(name, source, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comp[name] = memEntry{source: source, path: path}
}

// Evict removes an override, restoring on-disk truth for name.
func (m *InMemoryRegistry) Evict(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.comp, name)
}

func (m *InMemoryRegistry) Known(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.comp[name]
	return ok
}

func (m *InMemoryRegistry) Contents(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.comp[name]
	return e.source, ok
}

func (m *InMemoryRegistry) Path(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.comp[name]
	if !ok || e.path == "" {
		return "", false
	}
	return e.path, true
}

func (m *InMemoryRegistry) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.comp))
	for n := range m.comp {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
