package flavor

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// NameSource answers "which component names does this flavor know". The
// registry layer implements it; tests supply fixed sets.
type NameSource interface {
	ComponentNames(f Flavor) map[string]struct{}
}

// Matches "COMPONENT <instance> = <Type>", ignoring the argument list.
var compInstRe = regexp.MustCompile(`(?i)COMPONENT\s+\w+\s*=\s*(\w+)`)

type cacheEntry struct {
	flavor   Flavor
	explicit bool
}

// Resolver determines the Flavor for each open document through a cascade:
// session override, per-document pin, project config file, component-name
// inference, URI heuristic, default. Inferred results are cached per URI and
// invalidated when the session override changes; explicit pins survive.
type Resolver struct {
	mu            sync.Mutex
	workspaceRoot string
	override      *Flavor
	byURI         map[string]cacheEntry
	names         NameSource
}

// NewResolver builds a resolver rooted at workspaceRoot (may be empty).
// names may be nil, which disables component-name inference.
func NewResolver(workspaceRoot string, names NameSource) *Resolver {
	return &Resolver{
		workspaceRoot: workspaceRoot,
		byURI:         make(map[string]cacheEntry),
		names:         names,
	}
}

// SetWorkspaceRoot points project-config lookup at a new root and drops
// inferred cache entries so open documents re-resolve against it.
func (r *Resolver) SetWorkspaceRoot(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaceRoot = root
	for uri, entry := range r.byURI {
		if !entry.explicit {
			delete(r.byURI, uri)
		}
	}
}

// SetOverride sets or clears (nil) the session-wide flavor override.
// Clearing drops every inferred cache entry so documents re-resolve; pins
// set through SetDocumentFlavor are kept.
func (r *Resolver) SetOverride(f *Flavor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = f
	for uri, entry := range r.byURI {
		if !entry.explicit {
			delete(r.byURI, uri)
		}
	}
}

// SetDocumentFlavor pins the flavor for a single document.
func (r *Resolver) SetDocumentFlavor(uri string, f Flavor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byURI[uri] = cacheEntry{flavor: f, explicit: true}
}

// Forget removes a document from the cache (called on didClose).
func (r *Resolver) Forget(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byURI, uri)
}

// Resolve returns the best flavor for uri. When source is non-empty and no
// cached result exists, component-name inference is attempted and the result
// cached as inferred.
func (r *Resolver) Resolve(uri, source string) Flavor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(uri, source)
}

// ReInfer refreshes an inferred cache entry on edit: a new instantiation may
// settle a previously ambiguous document. Overrides and pins are untouched.
func (r *Resolver) ReInfer(uri, source string) Flavor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.override != nil {
		return *r.override
	}
	if entry, ok := r.byURI[uri]; ok && entry.explicit {
		return entry.flavor
	}
	delete(r.byURI, uri)
	return r.resolveLocked(uri, source)
}

func (r *Resolver) resolveLocked(uri, source string) Flavor {
	if r.override != nil {
		return *r.override
	}
	if entry, ok := r.byURI[uri]; ok && entry.explicit {
		return entry.flavor
	}
	if f, ok := readProjectConfig(r.workspaceRoot); ok {
		return f
	}
	if entry, ok := r.byURI[uri]; ok {
		return entry.flavor
	}
	if source != "" && r.names != nil {
		if f, ok := r.inferFromSource(source); ok {
			r.byURI[uri] = cacheEntry{flavor: f}
			return f
		}
	}
	if f, ok := uriHeuristic(uri); ok {
		r.byURI[uri] = cacheEntry{flavor: f}
		return f
	}
	return McStas
}

// inferFromSource scans instantiation statements and checks each component
// type against both flavors' name sets. The first type known to exactly one
// flavor settles the document. Textual scan, not the parse tree: identical
// names in comments can mislead it, which is accepted as best-effort.
func (r *Resolver) inferFromSource(source string) (Flavor, bool) {
	mcstas := r.names.ComponentNames(McStas)
	mcxtrace := r.names.ComponentNames(McXtrace)
	for _, m := range compInstRe.FindAllStringSubmatch(source, -1) {
		name := m[1]
		_, inStas := mcstas[name]
		_, inXtrace := mcxtrace[name]
		if inStas && !inXtrace {
			return McStas, true
		}
		if inXtrace && !inStas {
			return McXtrace, true
		}
	}
	return McStas, false
}

func uriHeuristic(uri string) (Flavor, bool) {
	lower := strings.ToLower(uri)
	if strings.Contains(lower, "mcxtrace") {
		return McXtrace, true
	}
	if strings.Contains(lower, "mcstas") {
		return McStas, true
	}
	return McStas, false
}

// ConfigFileName is the project-level configuration file read from the
// workspace root.
const ConfigFileName = ".mclsp.toml"

type projectConfig struct {
	Flavor string `toml:"flavor"`
}

func readProjectConfig(workspaceRoot string) (Flavor, bool) {
	if workspaceRoot == "" {
		return McStas, false
	}
	path := filepath.Join(workspaceRoot, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		return McStas, false
	}
	var cfg projectConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return McStas, false
	}
	return FromString(cfg.Flavor)
}
