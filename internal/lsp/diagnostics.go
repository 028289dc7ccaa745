package lsp

import (
	"context"
	"time"

	"mclsp/internal/cbridge"
	"mclsp/internal/diag"
	"mclsp/internal/document"
	"mclsp/internal/metadata"
)

// updateDocument replaces a document's text, reruns the fast pass over it
// and publishes immediately. Slow-pass results computed for the previous
// snapshot stop being published until the checker catches up.
func (s *Server) updateDocument(uri, text string, version int) {
	path := uriToPath(uri)
	doc := document.Parse(uri, text)
	f := s.resolver.ReInfer(uri, text)
	gen := s.bridge.Build(doc, path, f)
	fast := s.fastDiagnostics(path, text, doc, gen)

	s.mu.Lock()
	entry, ok := s.docs[uri]
	if !ok {
		entry = &docEntry{path: path}
		s.docs[uri] = entry
	}
	entry.text = text
	entry.version = version
	entry.snapshot++
	entry.doc = doc
	entry.gen = gen
	entry.fast = fast
	s.mu.Unlock()

	s.publishFor(uri)
}

// fastDiagnostics is the synchronous pass: structural parse errors,
// translation errors relocated onto their offending token, and METADATA
// payload validation.
func (s *Server) fastDiagnostics(path, text string, doc *document.Document, gen *cbridge.GeneratedDocument) []diag.Diagnostic {
	bag := diag.NewBag(s.maxDiagnostics)
	for _, e := range doc.Errors {
		bag.Add(diag.Diagnostic{
			File:     path,
			Line:     e.Line - 1,
			Col:      e.Col,
			EndLine:  e.Line - 1,
			EndCol:   e.Col,
			Severity: diag.SevError,
			Source:   "mclsp",
			Message:  e.Message,
		})
	}
	if gen.Err != nil && doc.Def != nil {
		bag.Add(cbridge.SemanticDiagnostic(path, text, gen.Err))
	}
	if doc.Def != nil {
		for _, d := range metadata.Validate(doc) {
			d.File = path
			bag.Add(d)
		}
	}
	bag.Sort()
	bag.Dedup()
	return bag.Items()
}

// scheduleSlow (re)arms the per-document debounce timer for the external
// checker. Rapid successive calls collapse into a single run on the final
// snapshot; an in-flight run for an older snapshot is canceled.
func (s *Server) scheduleSlow(uri string, delay time.Duration) {
	s.mu.Lock()
	entry, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return
	}
	snapshot := entry.snapshot
	if cancel := s.slowCancels[uri]; cancel != nil {
		cancel()
		delete(s.slowCancels, uri)
	}
	if t := s.slowTimers[uri]; t != nil {
		t.Stop()
	}
	s.slowTimers[uri] = time.AfterFunc(delay, func() {
		s.runSlow(uri, snapshot)
	})
	s.mu.Unlock()
}

func (s *Server) runSlow(uri string, snapshot int64) {
	s.mu.Lock()
	entry, ok := s.docs[uri]
	if !ok || entry.snapshot != snapshot {
		s.mu.Unlock()
		return
	}
	gen := entry.gen
	base := s.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	s.slowCancels[uri] = cancel
	s.mu.Unlock()
	defer cancel()

	if gen.Err != nil {
		// Placeholder text has nothing worth checking.
		return
	}
	if err := s.slowSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.slowSem.Release(1)

	diags, err := s.lifecycle.Check(ctx, gen)
	if err != nil {
		if ctx.Err() == nil {
			s.logf("checker: %v", err)
		}
		return
	}

	s.mu.Lock()
	entry, ok = s.docs[uri]
	if !ok || entry.snapshot != snapshot {
		s.mu.Unlock()
		return
	}
	entry.slow = diags
	entry.slowSnapshot = snapshot
	s.mu.Unlock()

	s.publishFor(uri)
}

// publishFor sends the merged fast and slow diagnostics of one document.
// Slow results are included only when they were computed for the current
// snapshot.
func (s *Server) publishFor(uri string) {
	s.mu.Lock()
	entry, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return
	}
	bag := diag.NewBag(s.maxDiagnostics)
	for _, d := range entry.fast {
		bag.Add(d)
	}
	if entry.slowSnapshot == entry.snapshot {
		for _, d := range entry.slow {
			bag.Add(d)
		}
	}
	bag.Sort()
	bag.Dedup()
	list := toLSPDiagnostics(bag.Items())
	s.published[uri] = struct{}{}
	s.mu.Unlock()

	if err := s.sendPublish(uri, list); err != nil {
		s.logf("failed to publish diagnostics: %v", err)
	}
}

func (s *Server) clearPublishedDiagnostics() {
	s.mu.Lock()
	if len(s.published) == 0 {
		s.mu.Unlock()
		return
	}
	prev := s.published
	s.published = make(map[string]struct{})
	s.mu.Unlock()
	for uri := range prev {
		if err := s.sendPublish(uri, nil); err != nil {
			s.logf("failed to clear diagnostics: %v", err)
		}
	}
}

func toLSPDiagnostics(diags []diag.Diagnostic) []lspDiagnostic {
	out := make([]lspDiagnostic, 0, len(diags))
	for _, d := range diags {
		endLine, endCol := d.EndLine, d.EndCol
		if endLine < d.Line || (endLine == d.Line && endCol < d.Col) {
			endLine, endCol = d.Line, d.Col
		}
		out = append(out, lspDiagnostic{
			Range: lspRange{
				Start: position{Line: maxZero(d.Line), Character: maxZero(d.Col)},
				End:   position{Line: maxZero(endLine), Character: maxZero(endCol)},
			},
			Severity: d.Severity.LSP(),
			Code:     d.Code,
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	return out
}

func maxZero(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
