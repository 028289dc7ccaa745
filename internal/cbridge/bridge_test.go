package cbridge

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"mclsp/internal/config"
	"mclsp/internal/document"
	"mclsp/internal/flavor"
	"mclsp/internal/registry"
)

const testGuide = `DEFINE COMPONENT Guide
SETTING PARAMETERS (w1 = 0.05)
TRACE
%{
PROP_Z0;
%}
END
`

func testBridge(t *testing.T) (*Bridge, *registry.InMemoryRegistry) {
	t.Helper()
	live := registry.NewInMemory("session")
	live.Inject("Guide", testGuide, "/lib/Guide.comp")
	live.Inject("Arm", "DEFINE COMPONENT Arm\nEND\n", "/lib/Arm.comp")
	return NewBridge(config.Config{}, live, t.TempDir(), nil), live
}

const bridgeInstrument = `DEFINE INSTRUMENT Demo(double L = 1.0)
DECLARE
%{
double my_var = 0.0;
%}
TRACE
COMPONENT g = Guide(w1 = 0.1)
AT (0, 0, L) ABSOLUTE
END
`

func TestBuildInstrument(t *testing.T) {
	b, _ := testBridge(t)
	doc := document.Parse("file:///ws/demo.instr", bridgeInstrument)
	gen := b.Build(doc, "/ws/demo.instr", flavor.McStas)
	if gen.Err != nil {
		t.Fatalf("unexpected error: %v", gen.Err)
	}
	r, ok := gen.RegionAtSource(3) // 0-based: "double my_var = 0.0;" is line 4
	if !ok {
		t.Fatal("declare body not covered by a region")
	}
	if r.SourceStartLine != 4 {
		t.Errorf("region = %+v", r)
	}
	genLine, genCol, ok := gen.SourceToGenerated(3, 7)
	if !ok {
		t.Fatal("declare line not mapped")
	}
	if genCol != 7 {
		t.Errorf("column changed: %d", genCol)
	}
	lines := strings.Split(gen.Content, "\n")
	if lines[genLine] != "double my_var = 0.0;" {
		t.Errorf("generated line %d = %q", genLine, lines[genLine])
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b, _ := testBridge(t)
	doc := document.Parse("file:///ws/demo.instr", bridgeInstrument)
	first := b.Build(doc, "/ws/demo.instr", flavor.McStas)
	second := b.Build(doc, "/ws/demo.instr", flavor.McStas)
	if first.Content != second.Content {
		t.Error("rebuild changed the generated text")
	}
	if !reflect.DeepEqual(first.Regions, second.Regions) {
		t.Errorf("rebuild changed regions: %+v vs %+v", first.Regions, second.Regions)
	}
}

func TestBuildPlaceholderOnParseFailure(t *testing.T) {
	b, _ := testBridge(t)
	doc := document.Parse("file:///ws/bad.instr", "TRACE\n")
	doc.Def = nil // no definition parsed
	gen := b.Build(doc, "/ws/bad.instr", flavor.McStas)
	if gen.Err == nil {
		t.Fatal("no error recorded")
	}
	if !strings.HasPrefix(gen.Content, "/* mclsp: failed to parse /ws/bad.instr:") {
		t.Errorf("content = %q", gen.Content)
	}
	if len(gen.Regions) != 0 {
		t.Errorf("placeholder has regions: %+v", gen.Regions)
	}
}

func TestBuildPlaceholderOnTranslateFailure(t *testing.T) {
	b, _ := testBridge(t)
	source := "DEFINE INSTRUMENT X()\nTRACE\nCOMPONENT a = Nope()\nAT (0,0,0) ABSOLUTE\nEND\n"
	doc := document.Parse("file:///ws/x.instr", source)
	gen := b.Build(doc, "/ws/x.instr", flavor.McStas)
	if gen.Err == nil {
		t.Fatal("no error recorded")
	}
	if !strings.Contains(gen.Content, "failed to translate") {
		t.Errorf("content = %q", gen.Content)
	}
	if !strings.Contains(gen.Err.Error(), `component type "Nope" is not known`) {
		t.Errorf("err = %v", gen.Err)
	}
}

func TestBuildFragmentRegionsReferenceFragmentFile(t *testing.T) {
	b, _ := testBridge(t)
	fragPath := "/ws/MyGuide.comp"
	source := `DEFINE COMPONENT MyGuide
SETTING PARAMETERS (l = 1)
TRACE
%{
PROP_Z0;
SCATTER;
%}
END
`
	doc := document.Parse("file://"+fragPath, source)
	gen := b.Build(doc, fragPath, flavor.McStas)
	if gen.Err != nil {
		t.Fatalf("unexpected error: %v", gen.Err)
	}
	if len(gen.Regions) == 0 {
		t.Fatal("fragment produced no regions")
	}
	// TRACE body starts at source line 5 ("PROP_Z0;").
	r, ok := gen.RegionAtSource(4)
	if !ok || r.SourceStartLine != 5 {
		t.Fatalf("region = %+v ok=%v", r, ok)
	}
	if !strings.Contains(gen.Content, `"`+fragPath+`"`) {
		t.Error("markers do not reference the fragment path")
	}
}

func TestBuildUsesSearchDirectories(t *testing.T) {
	ws := t.TempDir()
	compDir := filepath.Join(ws, "parts")
	if err := os.MkdirAll(compDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(compDir, "Local.comp"), []byte("DEFINE COMPONENT Local\nEND\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewBridge(config.Config{}, registry.NewInMemory("session"), ws, nil)
	source := "DEFINE INSTRUMENT S()\nSEARCH \"parts\"\nTRACE\nCOMPONENT l = Local()\nAT (0,0,0) ABSOLUTE\nEND\n"
	docPath := filepath.Join(ws, "s.instr")
	doc := document.Parse("file://"+docPath, source)
	gen := b.Build(doc, docPath, flavor.McStas)
	if gen.Err != nil {
		t.Fatalf("search directory not honored: %v", gen.Err)
	}
}
