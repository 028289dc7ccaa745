package lsp

import (
	"encoding/json"

	"mclsp/internal/cbridge"
)

// handleVirtualCDocument serves the generated C text of an open document,
// with its regions, for clients that want to display the translation side
// by side with the source. The request may name either the source URI or
// the mccode-c URI a previous response handed out.
func (s *Server) handleVirtualCDocument(msg *rpcMessage) error {
	var params virtualCDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, -32602, "invalid params")
	}
	uri := params.TextDocument.URI
	if src, ok := generatedSourcePath(uri); ok {
		uri = pathToURI(src)
	}
	s.mu.Lock()
	entry, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok || entry.gen == nil {
		return s.sendResponse(msg.ID, nil)
	}
	regions := entry.gen.Regions
	if regions == nil {
		regions = []cbridge.Region{}
	}
	return s.sendResponse(msg.ID, virtualCDocumentResult{
		URI:     generatedURI(entry.path),
		Content: entry.gen.Content,
		Regions: regions,
	})
}

// handlePositionInCRegion maps a source position into the generated text.
// Positions outside every region answer inCRegion=false.
func (s *Server) handlePositionInCRegion(msg *rpcMessage) error {
	var params positionInCRegionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, -32602, "invalid params")
	}
	s.mu.Lock()
	entry, ok := s.docs[params.TextDocument.URI]
	s.mu.Unlock()
	if !ok || entry.gen == nil {
		return s.sendResponse(msg.ID, positionInCRegionResult{InCRegion: false})
	}
	genLine, genCol, ok := entry.gen.SourceToGenerated(params.Position.Line, params.Position.Character)
	if !ok {
		return s.sendResponse(msg.ID, positionInCRegionResult{InCRegion: false})
	}
	return s.sendResponse(msg.ID, positionInCRegionResult{
		InCRegion:          true,
		GeneratedLine:      genLine,
		GeneratedCharacter: genCol,
	})
}
