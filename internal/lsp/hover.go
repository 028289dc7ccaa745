package lsp

import (
	"encoding/json"
	"fmt"
	"strings"

	"mclsp/internal/document"
	"mclsp/internal/registry"
)

// descriptionCap bounds the component description shown in hovers so a
// long %D section does not flood the client popup.
const descriptionCap = 800

func (s *Server) handleHover(msg *rpcMessage) error {
	var params hoverParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, -32602, "invalid params")
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	entry, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}

	word, rng := wordAt(entry.text, params.Position)
	if word == "" {
		return s.sendResponse(msg.ID, nil)
	}
	stack := s.stackFor(uri, entry)
	comp, found := stack.Get(word)
	if !found {
		return s.sendResponse(msg.ID, nil)
	}
	return s.sendResponse(msg.ID, hover{
		Contents: markupContent{Kind: "markdown", Value: componentMarkdown(comp)},
		Range:    &rng,
	})
}

// componentMarkdown renders the hover card for a component definition.
func componentMarkdown(comp *registry.Component) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n\n", comp.Name)
	if comp.Doc.Category != "" {
		fmt.Fprintf(&sb, "*%s*\n\n", comp.Doc.Category)
	}
	if comp.Doc.Short != "" {
		sb.WriteString(comp.Doc.Short)
		sb.WriteString("\n\n")
	}
	if desc := strings.TrimSpace(comp.Doc.Description); desc != "" {
		if len(desc) > descriptionCap {
			desc = desc[:descriptionCap] + "…"
		}
		sb.WriteString(desc)
		sb.WriteString("\n\n")
	}
	params := append(append([]document.Param{}, comp.Define...), comp.Setting...)
	if len(params) > 0 {
		sb.WriteString("**Parameters**\n\n")
		for _, p := range params {
			fmt.Fprintf(&sb, "- `%s`", p.Name)
			pd := comp.Doc.Params[p.Name]
			if pd.Unit != "" {
				fmt.Fprintf(&sb, " [%s]", pd.Unit)
			}
			if p.Default != "" {
				fmt.Fprintf(&sb, " = %s", p.Default)
			}
			if pd.Text != "" {
				fmt.Fprintf(&sb, ": %s", pd.Text)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if comp.Path != "" {
		fmt.Fprintf(&sb, "Defined in `%s`\n", comp.Path)
	}
	return strings.TrimRight(sb.String(), "\n")
}
