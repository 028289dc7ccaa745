package lsp

import (
	"strings"

	"mclsp/internal/registry"
)

// lineAt returns the 0-based line of text, or "" past the end.
func lineAt(text string, line int) string {
	if line < 0 {
		return ""
	}
	lines := strings.Split(text, "\n")
	if line >= len(lines) {
		return ""
	}
	return lines[line]
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// wordAt returns the identifier under pos and its range. Identifiers in
// McCode sources are ASCII, so byte columns equal UTF-16 columns here.
func wordAt(text string, pos position) (string, lspRange) {
	line := lineAt(text, pos.Line)
	col := pos.Character
	if col > len(line) {
		col = len(line)
	}
	start := col
	for start > 0 && isWordByte(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isWordByte(line[end]) {
		end++
	}
	if start == end {
		return "", lspRange{}
	}
	return line[start:end], lspRange{
		Start: position{Line: pos.Line, Character: start},
		End:   position{Line: pos.Line, Character: end},
	}
}

// stackFor assembles the registry stack visible to one document: its
// SEARCH directories, live fragment overlays, then the installed component
// trees of its resolved flavor.
func (s *Server) stackFor(uri string, entry *docEntry) registry.Stack {
	f := s.resolver.Resolve(uri, entry.text)
	var stack registry.Stack
	if entry.doc != nil && entry.doc.Def != nil {
		s.mu.Lock()
		root := s.workspaceRoot
		s.mu.Unlock()
		stack = registry.WrapSearchDirs(registry.SearchDirs(entry.doc.Def, entry.path, root))
	}
	stack = append(stack, s.live)
	return registry.EnsureRegistries(f, stack, s.cfg)
}
