package registry

import (
	"os"
	"path/filepath"
	"strconv"

	"mclsp/internal/config"
	"mclsp/internal/document"
	"mclsp/internal/flavor"
)

// SearchDirs derives the ordered lookup directories for one document:
// SEARCH directives first (relative entries resolved against the document's
// directory), then the document directory itself, then the workspace root.
// The list is recomputed on every edit because directives can change; it is
// deduplicated and filtered to directories that exist.
func SearchDirs(def *document.Definition, docPath, workspaceRoot string) []string {
	var dirs []string
	docDir := ""
	if docPath != "" {
		docDir = filepath.Dir(docPath)
	}
	if def != nil {
		for _, d := range def.SearchDirs {
			if !filepath.IsAbs(d) && docDir != "" {
				d = filepath.Join(docDir, d)
			}
			dirs = append(dirs, d)
		}
	}
	if docDir != "" {
		dirs = append(dirs, docDir)
	}
	if workspaceRoot != "" {
		dirs = append(dirs, workspaceRoot)
	}
	return filterExistingDirs(dedup(dirs))
}

// WrapSearchDirs turns search directories into registries layered ahead of
// the normal stack, mirroring how the editor session resolves fragments.
func WrapSearchDirs(dirs []string) Stack {
	out := make(Stack, 0, len(dirs))
	for i, d := range dirs {
		out = append(out, NewLocal(localRegName(i), d))
	}
	return out
}

func localRegName(i int) string {
	return "mclsp_local_" + strconv.Itoa(i)
}

// EnsureRegistries returns have plus the installation registries for f.
// Configured installation roots are used when available; otherwise nothing
// is appended. It never fails: a missing installation just means fewer
// registries.
func EnsureRegistries(f flavor.Flavor, have Stack, cfg config.Config) Stack {
	out := make(Stack, 0, len(have)+2)
	out = append(out, have...)
	for _, root := range cfg.InstallRoots(f) {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			out = append(out, NewLocal(f.String(), root))
		}
	}
	return out
}

func dedup(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		clean := filepath.Clean(p)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func filterExistingDirs(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}
