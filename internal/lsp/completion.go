package lsp

import (
	"encoding/json"
	"regexp"
	"strings"

	"mclsp/internal/document"
)

// paramScanWindow is how many lines completion walks backwards looking for
// the instantiation an unclosed argument list belongs to.
const paramScanWindow = 50

var instrumentKeywords = []string{
	"DEFINE INSTRUMENT", "DECLARE", "USERVARS", "INITIALIZE", "TRACE",
	"COMPONENT", "AT", "ROTATED", "RELATIVE", "ABSOLUTE", "PREVIOUS",
	"WHEN", "GROUP", "EXTEND", "JUMP", "SAVE", "FINALLY", "END",
	"METADATA", "SEARCH", "%{", "%}",
}

var componentKeywords = []string{
	"DEFINE COMPONENT", "DEFINITION PARAMETERS", "SETTING PARAMETERS",
	"OUTPUT PARAMETERS", "SHARE", "DECLARE", "INITIALIZE", "TRACE",
	"SAVE", "FINALLY", "MCDISPLAY", "END", "METADATA",
}

var componentTypePosRe = regexp.MustCompile(`(?i)COMPONENT\s+\w+\s*=\s*(\w*)$`)

var instantiationOpenRe = regexp.MustCompile(`(?i)=\s*(\w+)\s*\(`)

func (s *Server) handleCompletion(msg *rpcMessage) error {
	var params completionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, -32602, "invalid params")
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	entry, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok {
		return s.sendResponse(msg.ID, []completionItem{})
	}

	line := lineAt(entry.text, params.Position.Line)
	col := params.Position.Character
	if col > len(line) {
		col = len(line)
	}
	prefix := line[:col]

	if componentTypePosRe.MatchString(prefix) {
		return s.sendResponse(msg.ID, s.componentNameItems(uri, entry))
	}
	if compType, ok := enclosingInstantiation(entry.text, params.Position.Line, prefix); ok {
		return s.sendResponse(msg.ID, s.parameterItems(uri, entry, compType))
	}
	return s.sendResponse(msg.ID, keywordItems(entry.doc))
}

func (s *Server) componentNameItems(uri string, entry *docEntry) []completionItem {
	stack := s.stackFor(uri, entry)
	names := stack.Names()
	items := make([]completionItem, 0, len(names))
	for _, name := range names {
		items = append(items, completionItem{
			Label: name,
			Kind:  completionKindModule,
		})
	}
	return items
}

func (s *Server) parameterItems(uri string, entry *docEntry, compType string) []completionItem {
	stack := s.stackFor(uri, entry)
	comp, ok := stack.Get(compType)
	if !ok {
		return []completionItem{}
	}
	params := append(append([]document.Param{}, comp.Define...), comp.Setting...)
	items := make([]completionItem, 0, len(params))
	for _, p := range params {
		detail := p.Type
		if p.Default != "" {
			detail += " = " + p.Default
		}
		items = append(items, completionItem{
			Label:         p.Name,
			Kind:          completionKindField,
			Detail:        detail,
			Documentation: comp.Doc.Params[p.Name].Text,
			InsertText:    p.Name + "=",
		})
	}
	return items
}

// enclosingInstantiation reports the component type whose argument list is
// still open at the cursor. It scans at most paramScanWindow lines back
// and gives up at an END or section keyword.
func enclosingInstantiation(text string, cursorLine int, prefix string) (string, bool) {
	lines := strings.Split(text, "\n")
	if cursorLine >= len(lines) {
		return "", false
	}
	depth := 0
	// scan walks one line right to left; stop means the unmatched open
	// paren belongs to something other than an instantiation.
	scan := func(l string) (name string, found, stop bool) {
		for i := len(l) - 1; i >= 0; i-- {
			switch l[i] {
			case ')':
				depth++
			case '(':
				if depth == 0 {
					head := l[:i+1]
					if m := instantiationOpenRe.FindStringSubmatch(head); m != nil {
						return m[1], true, true
					}
					return "", false, true
				}
				depth--
			}
		}
		return "", false, false
	}
	name, found, stop := scan(prefix)
	if found || stop {
		return name, found
	}
	low := cursorLine - paramScanWindow
	if low < 0 {
		low = 0
	}
	for i := cursorLine - 1; i >= low; i-- {
		name, found, stop = scan(lines[i])
		if found || stop {
			return name, found
		}
	}
	return "", false
}

func keywordItems(doc *document.Document) []completionItem {
	keywords := instrumentKeywords
	if doc != nil && doc.Kind == document.KindComponent {
		keywords = componentKeywords
	}
	items := make([]completionItem, 0, len(keywords))
	for _, kw := range keywords {
		items = append(items, completionItem{
			Label: kw,
			Kind:  completionKindKeyword,
		})
	}
	return items
}
