package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"mclsp/internal/config"
	"mclsp/internal/flavor"
)

// Bump when namePayload changes shape; stale entries are ignored.
const nameCacheSchemaVersion uint16 = 1

type namePayload struct {
	Schema    uint16
	Flavor    string
	Names     []string
	ScannedAt int64
}

// NameCache caches the component name set per flavor. Scanning an
// installation registry touches every file in it, which is too slow for
// completion and flavor inference to do repeatedly, so the scan result is
// held in memory and mirrored in a msgpack disk cache across restarts.
// Invalidation is an explicit call, not a garbage-collection side effect.
type NameCache struct {
	mu      sync.Mutex
	entries map[flavor.Flavor]map[string]struct{}
	stacks  func(flavor.Flavor) Stack
	dir     string
}

// NewNameCache builds a cache over the stacks lookup. The disk mirror
// lives under the user cache directory; diskDir overrides it for tests,
// and an empty string with no resolvable cache dir disables the mirror.
func NewNameCache(stacks func(flavor.Flavor) Stack, diskDir string) *NameCache {
	if diskDir == "" {
		diskDir = defaultCacheDir()
	}
	return &NameCache{
		entries: make(map[flavor.Flavor]map[string]struct{}),
		stacks:  stacks,
		dir:     diskDir,
	}
}

func defaultCacheDir() string {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "mclsp", "names")
}

// ComponentNames returns the name set for f, scanning on first use.
// Implements flavor.NameSource.
func (c *NameCache) ComponentNames(f flavor.Flavor) map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.namesLocked(f)
}

func (c *NameCache) namesLocked(f flavor.Flavor) map[string]struct{} {
	if set, ok := c.entries[f]; ok {
		return set
	}
	set := make(map[string]struct{})
	if names, ok := c.readDisk(f); ok {
		for _, n := range names {
			set[n] = struct{}{}
		}
		c.entries[f] = set
		return set
	}
	var list []string
	if c.stacks != nil {
		list = c.stacks(f).Names()
	}
	for _, n := range list {
		set[n] = struct{}{}
	}
	c.entries[f] = set
	c.writeDisk(f, list)
	return set
}

// Invalidate drops the cached set for f in memory and on disk. Call after
// registry mutations (save/close of a live-edited component).
func (c *NameCache) Invalidate(f flavor.Flavor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, f)
	if c.dir != "" {
		_ = os.Remove(c.pathFor(f))
	}
}

// Warm scans both flavors concurrently so the first completion request
// does not pay the cold-scan cost. Errors are nil today; the signature
// leaves room for future sources that can fail.
func (c *NameCache) Warm(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for _, f := range flavor.All() {
		f := f
		g.Go(func() error {
			c.ComponentNames(f)
			return nil
		})
	}
	return g.Wait()
}

func (c *NameCache) pathFor(f flavor.Flavor) string {
	return filepath.Join(c.dir, f.String()+".mp")
}

func (c *NameCache) readDisk(f flavor.Flavor) ([]string, bool) {
	if c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.pathFor(f))
	if err != nil {
		return nil, false
	}
	var payload namePayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	if payload.Schema != nameCacheSchemaVersion || payload.Flavor != f.String() {
		return nil, false
	}
	if len(payload.Names) == 0 {
		// An empty scan usually means no installation was found at the
		// time; retry rather than pinning emptiness.
		return nil, false
	}
	return payload.Names, true
}

func (c *NameCache) writeDisk(f flavor.Flavor, names []string) {
	if c.dir == "" || len(names) == 0 {
		return
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return
	}
	payload := namePayload{
		Schema:    nameCacheSchemaVersion,
		Flavor:    f.String(),
		Names:     names,
		ScannedAt: time.Now().Unix(),
	}
	data, err := msgpack.Marshal(&payload)
	if err != nil {
		return
	}
	tmp := c.pathFor(f) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, c.pathFor(f))
}

// DefaultStacks builds the standard per-flavor registry stack from the
// environment configuration, with live layered first.
func DefaultStacks(live *InMemoryRegistry, cfg config.Config) func(flavor.Flavor) Stack {
	return func(f flavor.Flavor) Stack {
		var have Stack
		if live != nil {
			have = append(have, live)
		}
		return EnsureRegistries(f, have, cfg)
	}
}
