package lsp

import "encoding/json"

// handleDefinition jumps from a component name to the file defining it.
// Fragments injected from unsaved buffers carry their real path, so the
// jump lands on the open editor for them too.
func (s *Server) handleDefinition(msg *rpcMessage) error {
	var params definitionParams
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
	word, _ := wordAt(entry.text, params.Position)
	if word == "" {
		return s.sendResponse(msg.ID, nil)
	}
	comp, found := s.stackFor(uri, entry).Get(word)
	if !found || comp.Path == "" {
		return s.sendResponse(msg.ID, nil)
	}
	return s.sendResponse(msg.ID, location{
		URI: pathToURI(comp.Path),
		Range: lspRange{
			Start: position{Line: 0, Character: 0},
			End:   position{Line: 0, Character: 0},
		},
	})
}
