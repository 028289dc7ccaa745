// Package translate renders a parsed instrument definition into a C
// document. Every user-written code block is copied verbatim under a
// #line marker attributing it to its original file and line, so a position
// map can be rebuilt from the output alone. Scaffolding between blocks is
// re-attributed to a pseudo file derived from the display name, which
// terminates each mapped region at the next marker.
package translate

import (
	"fmt"
	"strings"

	"mclsp/internal/document"
	"mclsp/internal/flavor"
	"mclsp/internal/registry"
)

type emitter struct {
	sb   strings.Builder
	line int // 1-based line number of the next line written
}

func newEmitter() *emitter {
	return &emitter{line: 1}
}

func (e *emitter) writeLine(s string) {
	e.sb.WriteString(s)
	e.sb.WriteByte('\n')
	e.line += strings.Count(s, "\n") + 1
}

func (e *emitter) writeBlock(content string) {
	for _, l := range strings.Split(content, "\n") {
		e.writeLine(l)
	}
}

// marker attributes the following lines to file starting at srcLine.
func (e *emitter) marker(srcLine int, file string) {
	e.writeLine(fmt.Sprintf("#line %d %q", srcLine, file))
}

// reset re-attributes the following lines to the generated pseudo file.
func (e *emitter) reset(pseudo string) {
	e.writeLine(fmt.Sprintf("#line %d %q", e.line+1, pseudo))
}

// attributedBlock copies a user block under a marker and resets after it.
// The tag comment before the marker names the section and its owner, which
// the region extractor picks up as best-effort labels.
func (e *emitter) attributedBlock(b *document.Block, file, pseudo, section, label string) {
	if b == nil || strings.TrimSpace(b.Content) == "" {
		return
	}
	e.writeLine(fmt.Sprintf("/* region: %s %s */", section, label))
	e.marker(b.BodyLine, file)
	e.writeBlock(b.Content)
	e.reset(pseudo)
}

var particleFields = map[flavor.Flavor][]string{
	flavor.McStas:   {"x", "y", "z", "vx", "vy", "vz", "t", "sx", "sy", "sz", "p"},
	flavor.McXtrace: {"x", "y", "z", "kx", "ky", "kz", "phi", "t", "Ex", "Ey", "Ez", "p"},
}

// Instrument translates a full-definition document to C. displayName is the
// path line markers attribute instrument-owned blocks to; component blocks
// are attributed to each component's own path. Unknown component types and
// unknown instantiation parameters are reported as errors and produce no
// output.
func Instrument(doc *document.Document, displayName string, f flavor.Flavor, regs registry.Stack) (string, error) {
	if doc == nil || doc.Def == nil {
		return "", fmt.Errorf("document has no definition")
	}
	def := doc.Def

	// Validate instantiations up front so errors carry no partial output.
	comps := make(map[string]*registry.Component)
	for _, inst := range def.Instances {
		comp, ok := comps[inst.Type]
		if !ok {
			comp, ok = regs.Get(inst.Type)
			if !ok {
				return "", fmt.Errorf("component type %q is not known", inst.Type)
			}
			comps[inst.Type] = comp
		}
		for _, arg := range inst.Args {
			if arg.Name == "" {
				continue
			}
			if _, ok := comp.Param(arg.Name); !ok {
				return "", fmt.Errorf("parameter %q is not known for component %q", arg.Name, inst.Type)
			}
		}
	}

	pseudo := displayName + ".c"
	e := newEmitter()
	e.writeLine(fmt.Sprintf("/* generated from %s (%s) */", displayName, f))
	e.writeLine("")
	emitPrelude(e, f)

	// Instrument parameters as globals so every block sees them.
	for _, p := range def.Params {
		e.writeLine(paramDecl(p))
	}
	e.writeLine("")

	// File-scope instrument state: DECLARE and USERVARS.
	e.attributedBlock(def.Block("DECLARE"), displayName, pseudo, "DECLARE", def.Name)
	e.attributedBlock(def.Block("USERVARS"), displayName, pseudo, "USERVARS", def.Name)

	// SHARE blocks once per component type.
	shared := make(map[string]bool)
	for _, inst := range def.Instances {
		comp := comps[inst.Type]
		if shared[inst.Type] {
			continue
		}
		shared[inst.Type] = true
		compDoc := document.Parse(inst.Type+registry.CompExt, comp.Source)
		if compDoc.Def == nil {
			continue
		}
		if share := compDoc.Def.Block("SHARE"); share != nil {
			e.attributedBlock(share, compPath(comp), pseudo, "SHARE", inst.Type)
		}
	}

	e.writeLine("void _instrument_initialize(void) {")
	e.attributedBlock(def.Block("INITIALIZE"), displayName, pseudo, "INITIALIZE", def.Name)
	e.writeLine("}")
	e.writeLine("")

	for _, inst := range def.Instances {
		emitInstance(e, &inst, comps[inst.Type], displayName, pseudo)
	}

	e.writeLine("void _instrument_save(void) {")
	e.attributedBlock(def.Block("SAVE"), displayName, pseudo, "SAVE", def.Name)
	e.writeLine("}")
	e.writeLine("")
	e.writeLine("void _instrument_finally(void) {")
	e.attributedBlock(def.Block("FINALLY"), displayName, pseudo, "FINALLY", def.Name)
	e.writeLine("}")

	return e.sb.String(), nil
}

// emitInstance renders one component instantiation as a self-contained
// function: setting parameters bound to the instantiation arguments, the
// component's DECLARE/INITIALIZE/TRACE bodies attributed to the component
// file, and the EXTEND body attributed to the instrument file.
func emitInstance(e *emitter, inst *document.Instance, comp *registry.Component, displayName, pseudo string) {
	path := compPath(comp)
	args := make(map[string]string, len(inst.Args))
	for _, a := range inst.Args {
		if a.Name != "" {
			args[a.Name] = a.Value
		}
	}

	e.writeLine(fmt.Sprintf("/* component %s = %s */", inst.Name, inst.Type))
	e.writeLine(fmt.Sprintf("void _component_%s(_class_particle *_particle) {", inst.Name))
	for _, p := range append(append([]document.Param{}, comp.Define...), comp.Setting...) {
		value := p.Default
		if v, ok := args[p.Name]; ok {
			value = v
		}
		e.writeLine("  " + paramDeclValue(p, value))
	}

	compDoc := document.Parse(inst.Type+registry.CompExt, comp.Source)
	if compDoc.Def != nil {
		e.attributedBlock(compDoc.Def.Block("DECLARE"), path, pseudo, "DECLARE", inst.Name)
		e.attributedBlock(compDoc.Def.Block("INITIALIZE"), path, pseudo, "INITIALIZE", inst.Name)
		e.attributedBlock(compDoc.Def.Block("TRACE"), path, pseudo, "TRACE", inst.Name)
	}
	if inst.Extend != nil {
		e.attributedBlock(inst.Extend, displayName, pseudo, "EXTEND", inst.Name)
	}
	e.writeLine("}")
	e.writeLine("")
}

// compPath is the file the component's markers reference: the real path
// when the registry knows one, a stem-derived name otherwise.
func compPath(comp *registry.Component) string {
	if comp.Path != "" {
		return comp.Path
	}
	return comp.Name + registry.CompExt
}

// emitPrelude writes the particle model and the runtime macros user code
// relies on, enough for a syntax-only check to pass over idiomatic blocks.
func emitPrelude(e *emitter, f flavor.Flavor) {
	fields := particleFields[f]
	e.writeLine("typedef struct _struct_particle {")
	for _, name := range fields {
		e.writeLine("  double " + name + ";")
	}
	e.writeLine("} _class_particle;")
	e.writeLine("static _class_particle _particle_global;")
	e.writeLine("static _class_particle *_particle = &_particle_global;")
	for _, name := range fields {
		e.writeLine(fmt.Sprintf("#define %s (_particle->%s)", name, name))
	}
	e.writeLine("#define SCATTER do {} while (0)")
	e.writeLine("#define ABSORB return")
	e.writeLine("#define PROP_Z0 do {} while (0)")
	e.writeLine("#define PROP_DT(dt) do { (void)(dt); } while (0)")
	e.writeLine("#define PROP_DL(dl) do { (void)(dl); } while (0)")
	e.writeLine("extern int printf(const char *, ...);")
	e.writeLine("extern double sqrt(double), fabs(double), sin(double), cos(double), exp(double), log(double);")
	e.writeLine("extern double rand01(void), randnorm(void);")
	e.writeLine("")
}

func cType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "int":
		return "int"
	case "string", "char*", "char *":
		return "char *"
	case "vector":
		return "double *"
	default:
		return "double"
	}
}

func paramDecl(p document.Param) string {
	return paramDeclValue(p, p.Default)
}

func paramDeclValue(p document.Param, value string) string {
	t := cType(p.Type)
	if value == "" {
		value = "0"
	}
	if t == "char *" && !strings.HasPrefix(value, "\"") && value != "0" {
		value = fmt.Sprintf("%q", value)
	}
	sep := " "
	if strings.HasSuffix(t, "*") {
		sep = ""
	}
	return fmt.Sprintf("%s%s%s = %s;", t, sep, p.Name, value)
}
