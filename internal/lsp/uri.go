package lsp

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Generated C translations are addressable under a private scheme so
// clients can show them beside the instrument source without a file on
// disk backing them.
const generatedScheme = "mccode-c"

// uriToPath converts a file URI into an absolute filesystem path. Editors
// percent-escape spaces in workspace paths, so the path is unescaped
// before normalization. Non-file schemes, generatedScheme included,
// resolve to "".
func uriToPath(uri string) string {
	if uri == "" {
		return ""
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	switch parsed.Scheme {
	case "", "file":
	default:
		return ""
	}
	path := parsed.Path
	if parsed.Scheme == "" {
		path = uri
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	path = filepath.FromSlash(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

// pathToURI is the inverse, for locations the server hands back to the
// client (component definitions, hover links).
func pathToURI(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// generatedURI names the virtual C document derived from a source path.
func generatedURI(path string) string {
	return generatedScheme + "://" + filepath.ToSlash(path) + ".c"
}

// generatedSourcePath recovers the source path a virtual C URI was derived
// from. Reports false for any other scheme.
func generatedSourcePath(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, generatedScheme+"://")
	if !ok {
		return "", false
	}
	path, ok := strings.CutSuffix(rest, ".c")
	if !ok {
		return "", false
	}
	return filepath.FromSlash(path), true
}
