// Package document holds the per-document parse state for the language
// server. Each open document is reparsed wholesale on every change; McCode
// sources are small enough that incremental parsing is not worth the
// bookkeeping.
package document

import (
	"path"
	"strings"
)

// Kind classifies a document by what its source can contain.
type Kind uint8

const (
	// KindUnknown is any extension the server does not handle.
	KindUnknown Kind = iota
	// KindInstrument is a full top-level definition (.instr).
	KindInstrument
	// KindComponent is a reusable single-definition fragment (.comp).
	KindComponent
)

func (k Kind) String() string {
	switch k {
	case KindInstrument:
		return "instrument"
	case KindComponent:
		return "component"
	default:
		return "unknown"
	}
}

// ParseError is a collected syntax error. Line is 1-based and Col 0-based,
// the usual compiler-frontend convention.
type ParseError struct {
	Line    int
	Col     int
	Message string
}

// Param is one entry of a parameter list, e.g. "double L = 1.0".
type Param struct {
	Type    string
	Name    string
	Default string
}

// Block is a %{ ... %} code block belonging to a named section.
// BodyLine is the 1-based source line of the first body line (the line
// after the opening %{ when the brace closes the header line).
type Block struct {
	Section  string
	BodyLine int
	Content  string
}

// MetadataBlock is a METADATA "<mime>" <name> %{ ... %} block.
type MetadataBlock struct {
	MIME     string
	Name     string
	BodyLine int
	Content  string
}

// Arg is one "name = value" pair of an instantiation argument list.
type Arg struct {
	Name  string
	Value string
}

// Instance is a COMPONENT instantiation inside a TRACE section.
type Instance struct {
	Name         string
	Type         string
	Args         []Arg
	Line         int // 1-based line of the COMPONENT keyword
	HasPlacement bool
	Extend       *Block
}

// Definition is the structural parse result: the single top-level
// definition a McCode file contains.
type Definition struct {
	Name       string
	Params     []Param // instrument params or component SETTING params
	DefParams  []Param // component DEFINITION params
	Blocks     []Block
	Metadata   []MetadataBlock
	Instances  []Instance
	SearchDirs []string // raw SEARCH directive arguments, in order
}

// Block returns the first block of the given section, or nil.
func (d *Definition) Block(section string) *Block {
	for i := range d.Blocks {
		if d.Blocks[i].Section == section {
			return &d.Blocks[i]
		}
	}
	return nil
}

// Document is the parse state for one open URI.
type Document struct {
	URI    string
	Source string
	Kind   Kind
	Def    *Definition // nil when Kind is KindUnknown
	Errors []ParseError
}

// KindForURI infers the document kind from the URI extension.
func KindForURI(uri string) Kind {
	switch strings.ToLower(path.Ext(uri)) {
	case ".instr":
		return KindInstrument
	case ".comp":
		return KindComponent
	default:
		return KindUnknown
	}
}

// Parse builds a Document from source. Unknown extensions are stored with a
// nil definition and no errors; everything else is scanned structurally and
// syntax errors are collected, never returned as a failure.
func Parse(uri, source string) *Document {
	doc := &Document{
		URI:    uri,
		Source: source,
		Kind:   KindForURI(uri),
	}
	if doc.Kind == KindUnknown {
		return doc
	}
	def, errs := scan(source, doc.Kind)
	doc.Def = def
	doc.Errors = errs
	return doc
}
