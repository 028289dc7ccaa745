package cbridge

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"mclsp/internal/config"
	"mclsp/internal/diag"
)

// checkerCandidates are tried in order when no checker binary is
// configured.
var checkerCandidates = []string{"clang", "clang-18", "clang-17", "clang-16", "clang-15"}

var checkerLineRe = regexp.MustCompile(`^(.+?):(\d+):(\d+): (error|warning|note): (.+)$`)

// Lifecycle persists generated text next to the system temp directory and
// runs the external C checker over it. One file per document URI; the file
// is rewritten in place on every check and removed when the document is
// forgotten.
type Lifecycle struct {
	cfg    config.Config
	logger *log.Logger

	mu      sync.Mutex
	files   map[string]string // uri -> persisted path
	checker string
	probed  bool
}

func NewLifecycle(cfg config.Config, logger *log.Logger) *Lifecycle {
	return &Lifecycle{cfg: cfg, logger: logger, files: make(map[string]string)}
}

// FilePath is the stable on-disk location for a document's generated text.
func FilePath(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return filepath.Join(os.TempDir(), "mclsp_"+hex.EncodeToString(sum[:])[:12]+".c")
}

// Check persists gen and runs the checker over it, returning diagnostics
// relocated into source coordinates. Checker output for scaffolding lines
// and for any other file is dropped. A missing checker binary yields no
// diagnostics rather than an error.
func (l *Lifecycle) Check(ctx context.Context, gen *GeneratedDocument) ([]diag.Diagnostic, error) {
	path := FilePath(gen.SourceURI)
	if err := l.persist(gen.SourceURI, path, gen.Content); err != nil {
		return nil, fmt.Errorf("persist generated text: %w", err)
	}
	bin := l.checkerBinary()
	if bin == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.CheckTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin, "-fsyntax-only", "-ferror-limit=50", "-x", "c", "-fno-color-diagnostics", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("checker timed out after %s", l.cfg.CheckTimeout)
		}
		// Non-zero exit just means diagnostics were produced.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run checker: %w", err)
		}
	}
	return l.relocate(gen, path, stderr.Bytes()), nil
}

// relocate parses checker output and maps generated positions back into
// the source document.
func (l *Lifecycle) relocate(gen *GeneratedDocument, genPath string, out []byte) []diag.Diagnostic {
	var diags []diag.Diagnostic
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := checkerLineRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		if !samePath(m[1], genPath) {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		srcLine, srcCol, ok := gen.GeneratedToSource(line-1, col-1)
		if !ok {
			continue
		}
		diags = append(diags, diag.Diagnostic{
			File:     gen.SourceFile,
			Line:     srcLine,
			Col:      srcCol,
			EndLine:  srcLine,
			EndCol:   srcCol,
			Severity: checkerSeverity(m[4]),
			Source:   "clang",
			Message:  m[5],
		})
	}
	return diags
}

// persist writes the generated text with its line markers commented out,
// so the checker reports positions in the generated file itself and the
// position map stays the single source of relocation.
func (l *Lifecycle) persist(uri, path, content string) error {
	l.mu.Lock()
	l.files[uri] = path
	l.mu.Unlock()
	return os.WriteFile(path, []byte(neutralizeMarkers(content)), 0o644)
}

// Forget removes the persisted file for a closed document. Removal errors
// are ignored; the temp directory is scratch space.
func (l *Lifecycle) Forget(uri string) {
	l.mu.Lock()
	path, ok := l.files[uri]
	delete(l.files, uri)
	l.mu.Unlock()
	if ok {
		_ = os.Remove(path)
	}
}

func (l *Lifecycle) checkerBinary() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.probed {
		return l.checker
	}
	l.probed = true
	candidates := checkerCandidates
	if l.cfg.Clang != "" {
		candidates = []string{l.cfg.Clang}
	}
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			l.checker = p
			return p
		}
	}
	if l.logger != nil {
		l.logger.Printf("no C checker found, tried %s", strings.Join(candidates, ", "))
	}
	return ""
}

func neutralizeMarkers(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lineMarkerRe.MatchString(line) {
			lines[i] = "//" + line
		}
	}
	return strings.Join(lines, "\n")
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return aa == bb
}

func checkerSeverity(kind string) diag.Severity {
	switch kind {
	case "error":
		return diag.SevError
	case "warning":
		return diag.SevWarning
	default:
		return diag.SevHint
	}
}
