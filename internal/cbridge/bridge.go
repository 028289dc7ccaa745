package cbridge

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"mclsp/internal/config"
	"mclsp/internal/document"
	"mclsp/internal/flavor"
	"mclsp/internal/registry"
	"mclsp/internal/translate"
)

// fragmentWrapper is the synthetic instrument a component fragment is
// instantiated inside so the regular translation path applies to it.
const fragmentWrapper = `DEFINE INSTRUMENT _fragment_wrapper()
TRACE
COMPONENT _fragment = %s()
AT (0, 0, 0) ABSOLUTE
END
`

// Bridge turns documents into generated C text. It never fails: documents
// that cannot be parsed or translated get a placeholder comment so the
// rest of the pipeline keeps a consistent (empty-region) view.
type Bridge struct {
	cfg           config.Config
	live          *registry.InMemoryRegistry
	workspaceRoot string
	logger        *log.Logger
}

func NewBridge(cfg config.Config, live *registry.InMemoryRegistry, workspaceRoot string, logger *log.Logger) *Bridge {
	return &Bridge{cfg: cfg, live: live, workspaceRoot: workspaceRoot, logger: logger}
}

// SetWorkspaceRoot rebinds relative SEARCH resolution to a new root.
func (b *Bridge) SetWorkspaceRoot(root string) { b.workspaceRoot = root }

// Build generates C text for the document at path and extracts regions for
// it. Component fragments are wrapped in a synthetic instrument whose
// in-memory registry resolves them back to their real path, so markers and
// regions still reference the fragment file itself.
func (b *Bridge) Build(doc *document.Document, path string, f flavor.Flavor) *GeneratedDocument {
	switch doc.Kind {
	case document.KindComponent:
		return b.buildFragment(doc, path, f)
	default:
		return b.buildInstrument(doc, path, f, nil)
	}
}

func (b *Bridge) buildInstrument(doc *document.Document, path string, f flavor.Flavor, extra registry.Stack) *GeneratedDocument {
	if doc.Def == nil {
		return b.placeholder(doc.URI, path, "parse", firstError(doc))
	}
	regs := extra
	regs = append(regs, registry.WrapSearchDirs(registry.SearchDirs(doc.Def, path, b.workspaceRoot))...)
	if b.live != nil {
		regs = append(regs, b.live)
	}
	regs = registry.EnsureRegistries(f, regs, b.cfg)

	text, err := translate.Instrument(doc, path, f, regs)
	if err != nil {
		if b.logger != nil {
			b.logger.Printf("translate %s: %v", path, err)
		}
		return b.placeholder(doc.URI, path, "translate", err)
	}
	return NewGeneratedDocument(doc.URI, path, text)
}

func (b *Bridge) buildFragment(doc *document.Document, path string, f flavor.Flavor) *GeneratedDocument {
	if doc.Def == nil || doc.Def.Name == "" {
		return b.placeholder(doc.URI, path, "parse", firstError(doc))
	}
	stem := doc.Def.Name

	// The wrapper instrument resolves the fragment from a dedicated
	// registry that carries the fragment's real path, so the translator
	// attributes its blocks to the open file and not to a copy.
	frag := registry.NewInMemory("fragment")
	frag.Inject(stem, doc.Source, path)

	wpath := wrapperPath(path)
	wrapped := document.Parse("file://"+wpath, fmt.Sprintf(fragmentWrapper, stem))
	gen := b.buildInstrument(wrapped, wpath, f, registry.Stack{frag})

	// Regions must reference the fragment file, not the wrapper.
	out := NewGeneratedDocument(doc.URI, path, gen.Content)
	out.Err = gen.Err
	return out
}

// wrapperPath names the synthetic instrument after the fragment so the
// generated header stays recognizable in logs and saved checker input.
func wrapperPath(fragPath string) string {
	stem := strings.TrimSuffix(filepath.Base(fragPath), registry.CompExt)
	return filepath.Join(filepath.Dir(fragPath), "_"+stem+"_wrapper.instr")
}

func (b *Bridge) placeholder(uri, path, stage string, err error) *GeneratedDocument {
	content := fmt.Sprintf("/* mclsp: failed to %s %s:\n   %v\n*/\n", stage, path, err)
	gen := NewGeneratedDocument(uri, path, content)
	gen.Err = err
	return gen
}

func firstError(doc *document.Document) error {
	if len(doc.Errors) > 0 {
		e := doc.Errors[0]
		return fmt.Errorf("%d:%d: %s", e.Line, e.Col, e.Message)
	}
	return fmt.Errorf("no definition found")
}
