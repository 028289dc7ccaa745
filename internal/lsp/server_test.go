package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mclsp/internal/config"
	"mclsp/internal/diag"
)

const serverGuide = `DEFINE COMPONENT Guide
SETTING PARAMETERS (w1 = 0.05)
TRACE
%{
PROP_Z0;
%}
END
`

const serverInstrument = `DEFINE INSTRUMENT Demo(double L = 1.0)
DECLARE
%{
double my_var = 0.0;
%}
TRACE
COMPONENT g = Guide(w1 = 0.1)
AT (0, 0, L) ABSOLUTE
END
`

// newTestServer builds a server with a debounce long enough that the slow
// pass never fires during a test unless triggered explicitly.
func newTestServer(t *testing.T, out *bytes.Buffer) *Server {
	t.Helper()
	return NewServer(bytes.NewReader(nil), out, ServerOptions{
		Debounce: time.Hour,
		Config:   config.Config{},
	})
}

// openInstrument writes Guide.comp next to the instrument so the document
// resolves its component through the directory registry.
func openInstrument(t *testing.T, s *Server) (uri, path string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Guide.comp"), []byte(serverGuide), 0o644); err != nil {
		t.Fatal(err)
	}
	path = filepath.Join(dir, "demo.instr")
	if err := os.WriteFile(path, []byte(serverInstrument), 0o644); err != nil {
		t.Fatal(err)
	}
	uri = pathToURI(path)
	s.updateDocument(uri, serverInstrument, 1)
	return uri, path
}

func decodeMessages(t *testing.T, raw []byte) []rpcMessage {
	t.Helper()
	reader := bufio.NewReader(bytes.NewReader(raw))
	var msgs []rpcMessage
	for {
		payload, err := readMessage(reader)
		if err != nil {
			return msgs
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode %s: %v", payload, err)
		}
		msgs = append(msgs, msg)
	}
}

func responseByID(t *testing.T, msgs []rpcMessage, id string) *rpcMessage {
	t.Helper()
	for i := range msgs {
		if string(msgs[i].ID) == id && msgs[i].Method == "" {
			return &msgs[i]
		}
	}
	t.Fatalf("no response with id %s in %d messages", id, len(msgs))
	return nil
}

func publishesFor(msgs []rpcMessage, uri string) []publishDiagnosticsParams {
	var out []publishDiagnosticsParams
	for _, msg := range msgs {
		if msg.Method != "textDocument/publishDiagnostics" {
			continue
		}
		var params publishDiagnosticsParams
		if json.Unmarshal(msg.Params, &params) == nil && params.URI == uri {
			out = append(out, params)
		}
	}
	return out
}

func frame(t *testing.T, buf *bytes.Buffer, msg any) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := writeMessage(buf, payload); err != nil {
		t.Fatal(err)
	}
}

func TestServerMessageLoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.instr")
	uri := pathToURI(path)

	var in bytes.Buffer
	frame(t, &in, map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": initializeParams{RootURI: pathToURI(dir)},
	})
	frame(t, &in, map[string]any{"jsonrpc": "2.0", "method": "initialized"})
	frame(t, &in, map[string]any{
		"jsonrpc": "2.0", "method": "textDocument/didOpen",
		"params": didOpenTextDocumentParams{
			TextDocument: textDocumentItem{URI: uri, Version: 1, Text: "NOT AN INSTRUMENT\n"},
		},
	})
	frame(t, &in, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "shutdown"})
	frame(t, &in, map[string]any{"jsonrpc": "2.0", "method": "exit"})

	var out bytes.Buffer
	server := NewServer(&in, &out, ServerOptions{Debounce: time.Hour, Config: config.Config{}})
	if err := server.Run(context.Background()); !errors.Is(err, ErrExit) {
		t.Fatalf("Run = %v, want ErrExit", err)
	}

	msgs := decodeMessages(t, out.Bytes())

	var init initializeResult
	if err := json.Unmarshal(responseByID(t, msgs, "1").Result, &init); err != nil {
		t.Fatalf("decode initialize result: %v", err)
	}
	if init.ServerInfo == nil || init.ServerInfo.Name != "mclsp" {
		t.Errorf("serverInfo = %+v", init.ServerInfo)
	}
	if init.Capabilities.TextDocumentSync.Change != 2 || !init.Capabilities.HoverProvider {
		t.Errorf("capabilities = %+v", init.Capabilities)
	}

	pubs := publishesFor(msgs, uri)
	if len(pubs) < 2 {
		t.Fatalf("got %d publishes, want open + shutdown clear", len(pubs))
	}
	if len(pubs[0].Diagnostics) == 0 {
		t.Error("open of a broken document published no diagnostics")
	}
	if last := pubs[len(pubs)-1]; len(last.Diagnostics) != 0 {
		t.Errorf("shutdown left %d diagnostics published", len(last.Diagnostics))
	}

	responseByID(t, msgs, "2")
}

func TestExitWithoutShutdown(t *testing.T) {
	var in bytes.Buffer
	frame(t, &in, map[string]any{"jsonrpc": "2.0", "method": "exit"})
	var out bytes.Buffer
	server := NewServer(&in, &out, ServerOptions{Config: config.Config{}})
	if err := server.Run(context.Background()); !errors.Is(err, ErrExitWithoutShutdown) {
		t.Fatalf("Run = %v, want ErrExitWithoutShutdown", err)
	}
}

func TestUnknownRequestGetsMethodNotFound(t *testing.T) {
	var in bytes.Buffer
	frame(t, &in, map[string]any{"jsonrpc": "2.0", "id": 9, "method": "textDocument/rename"})
	frame(t, &in, map[string]any{"jsonrpc": "2.0", "id": 10, "method": "shutdown"})
	frame(t, &in, map[string]any{"jsonrpc": "2.0", "method": "exit"})
	var out bytes.Buffer
	server := NewServer(&in, &out, ServerOptions{Config: config.Config{}})
	if err := server.Run(context.Background()); !errors.Is(err, ErrExit) {
		t.Fatalf("Run = %v", err)
	}
	resp := responseByID(t, decodeMessages(t, out.Bytes()), "9")
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestFastDiagnosticsCleanDocument(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, _ := openInstrument(t, server)

	pubs := publishesFor(decodeMessages(t, out.Bytes()), uri)
	if len(pubs) != 1 {
		t.Fatalf("got %d publishes, want 1", len(pubs))
	}
	if len(pubs[0].Diagnostics) != 0 {
		t.Fatalf("clean document published %+v", pubs[0].Diagnostics)
	}
}

func TestFastDiagnosticsUnknownComponent(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.instr")
	uri := pathToURI(path)
	text := "DEFINE INSTRUMENT D()\nTRACE\nCOMPONENT g = Nope()\nAT (0, 0, 1) ABSOLUTE\nEND\n"
	server.updateDocument(uri, text, 1)

	pubs := publishesFor(decodeMessages(t, out.Bytes()), uri)
	if len(pubs) != 1 || len(pubs[0].Diagnostics) != 1 {
		t.Fatalf("publishes = %+v", pubs)
	}
	d := pubs[0].Diagnostics[0]
	if !strings.Contains(d.Message, `"Nope"`) {
		t.Errorf("message = %q", d.Message)
	}
	if d.Range.Start.Line != 2 {
		t.Errorf("line = %d, want 2", d.Range.Start.Line)
	}
}

func TestStaleSlowResultsExcluded(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, path := openInstrument(t, server)

	server.mu.Lock()
	entry := server.docs[uri]
	entry.slow = []diag.Diagnostic{{
		File: path, Line: 3, Severity: diag.SevWarning, Source: "clang", Message: "old result",
	}}
	entry.slowSnapshot = entry.snapshot - 1
	server.mu.Unlock()

	server.publishFor(uri)

	server.mu.Lock()
	entry.slowSnapshot = entry.snapshot
	server.mu.Unlock()

	server.publishFor(uri)

	pubs := publishesFor(decodeMessages(t, out.Bytes()), uri)
	if len(pubs) != 3 {
		t.Fatalf("got %d publishes", len(pubs))
	}
	if len(pubs[1].Diagnostics) != 0 {
		t.Errorf("stale slow results leaked: %+v", pubs[1].Diagnostics)
	}
	if len(pubs[2].Diagnostics) != 1 || pubs[2].Diagnostics[0].Message != "old result" {
		t.Errorf("current slow results missing: %+v", pubs[2].Diagnostics)
	}
}

func TestScheduleSlowCollapsesRapidEdits(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, _ := openInstrument(t, server)

	server.scheduleSlow(uri, time.Hour)
	server.scheduleSlow(uri, time.Hour)

	server.mu.Lock()
	timers := len(server.slowTimers)
	t1 := server.slowTimers[uri]
	server.mu.Unlock()
	if timers != 1 || t1 == nil {
		t.Fatalf("timers = %d, want the rescheduled one only", timers)
	}
	// The first timer must have been stopped; stopping the survivor again
	// reports it was still pending.
	if !t1.Stop() {
		t.Error("surviving timer already fired or was stopped")
	}
}

func TestRunSlowSkipsStaleSnapshot(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, _ := openInstrument(t, server)

	server.mu.Lock()
	stale := server.docs[uri].snapshot + 1
	server.mu.Unlock()
	before := out.Len()
	server.runSlow(uri, stale)
	if out.Len() != before {
		t.Error("stale slow run produced output")
	}
}

func TestDidCloseClearsDiagnostics(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	dir := t.TempDir()
	uri := pathToURI(filepath.Join(dir, "broken.instr"))
	server.updateDocument(uri, "NOT AN INSTRUMENT\n", 1)

	params, _ := json.Marshal(didCloseTextDocumentParams{
		TextDocument: textDocumentIdentifier{URI: uri},
	})
	if err := server.handleDidClose(&rpcMessage{Method: "textDocument/didClose", Params: params}); err != nil {
		t.Fatalf("didClose: %v", err)
	}

	pubs := publishesFor(decodeMessages(t, out.Bytes()), uri)
	if len(pubs) != 2 {
		t.Fatalf("got %d publishes", len(pubs))
	}
	if len(pubs[0].Diagnostics) == 0 {
		t.Error("broken document published no diagnostics")
	}
	if len(pubs[1].Diagnostics) != 0 {
		t.Errorf("close left diagnostics: %+v", pubs[1].Diagnostics)
	}
}

func TestVirtualCDocumentRequest(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, path := openInstrument(t, server)

	params, _ := json.Marshal(virtualCDocumentParams{
		TextDocument: textDocumentIdentifier{URI: uri},
	})
	id := json.RawMessage("7")
	if err := server.handleVirtualCDocument(&rpcMessage{ID: id, Params: params}); err != nil {
		t.Fatalf("virtualCDocument: %v", err)
	}

	var result virtualCDocumentResult
	resp := responseByID(t, decodeMessages(t, out.Bytes()), "7")
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.URI != "mccode-c://"+path+".c" {
		t.Errorf("uri = %q", result.URI)
	}
	if !strings.Contains(result.Content, "double my_var = 0.0;") {
		t.Error("generated text missing the declare body")
	}
	if len(result.Regions) == 0 {
		t.Error("no regions reported")
	}
}

func TestVirtualCDocumentRequestByGeneratedURI(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	_, path := openInstrument(t, server)

	params, _ := json.Marshal(virtualCDocumentParams{
		TextDocument: textDocumentIdentifier{URI: generatedURI(path)},
	})
	id := json.RawMessage("8")
	if err := server.handleVirtualCDocument(&rpcMessage{ID: id, Params: params}); err != nil {
		t.Fatalf("virtualCDocument: %v", err)
	}

	var result virtualCDocumentResult
	resp := responseByID(t, decodeMessages(t, out.Bytes()), "8")
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.URI != generatedURI(path) {
		t.Errorf("uri = %q", result.URI)
	}
	if !strings.Contains(result.Content, "double my_var = 0.0;") {
		t.Error("generated text missing the declare body")
	}
}

func TestPositionInCRegionRequest(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, _ := openInstrument(t, server)

	ask := func(id string, pos position) positionInCRegionResult {
		params, _ := json.Marshal(positionInCRegionParams{
			TextDocument: textDocumentIdentifier{URI: uri},
			Position:     pos,
		})
		if err := server.handlePositionInCRegion(&rpcMessage{ID: json.RawMessage(id), Params: params}); err != nil {
			t.Fatalf("positionInCRegion: %v", err)
		}
		var result positionInCRegionResult
		resp := responseByID(t, decodeMessages(t, out.Bytes()), id)
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		return result
	}

	// The DECLARE body line maps; the header line does not.
	inside := ask("11", position{Line: 3, Character: 7})
	if !inside.InCRegion {
		t.Fatal("declare body not in a region")
	}
	if inside.GeneratedCharacter != 7 {
		t.Errorf("column changed: %d", inside.GeneratedCharacter)
	}
	if outside := ask("12", position{Line: 0, Character: 0}); outside.InCRegion {
		t.Error("header line reported inside a region")
	}
}

func TestHoverOnComponentType(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, path := openInstrument(t, server)

	params, _ := json.Marshal(hoverParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Position:     position{Line: 6, Character: 16}, // over "Guide"
	})
	if err := server.handleHover(&rpcMessage{ID: json.RawMessage("3"), Params: params}); err != nil {
		t.Fatalf("hover: %v", err)
	}

	var result hover
	resp := responseByID(t, decodeMessages(t, out.Bytes()), "3")
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !strings.Contains(result.Contents.Value, "### Guide") {
		t.Errorf("hover = %q", result.Contents.Value)
	}
	if !strings.Contains(result.Contents.Value, "`w1`") {
		t.Errorf("hover missing parameters: %q", result.Contents.Value)
	}
	if !strings.Contains(result.Contents.Value, filepath.Dir(path)) {
		t.Errorf("hover missing definition path: %q", result.Contents.Value)
	}
}

func TestDefinitionOnComponentType(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, path := openInstrument(t, server)

	params, _ := json.Marshal(definitionParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Position:     position{Line: 6, Character: 16},
	})
	if err := server.handleDefinition(&rpcMessage{ID: json.RawMessage("4"), Params: params}); err != nil {
		t.Fatalf("definition: %v", err)
	}

	var result location
	resp := responseByID(t, decodeMessages(t, out.Bytes()), "4")
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	want := pathToURI(filepath.Join(filepath.Dir(path), "Guide.comp"))
	if result.URI != want {
		t.Errorf("uri = %q, want %q", result.URI, want)
	}
}

func TestCompletionParameters(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, _ := openInstrument(t, server)

	params, _ := json.Marshal(completionParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Position:     position{Line: 6, Character: 20}, // right after "Guide("
	})
	if err := server.handleCompletion(&rpcMessage{ID: json.RawMessage("5"), Params: params}); err != nil {
		t.Fatalf("completion: %v", err)
	}

	var items []completionItem
	resp := responseByID(t, decodeMessages(t, out.Bytes()), "5")
	if err := json.Unmarshal(resp.Result, &items); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !hasLabel(items, "w1") {
		t.Fatalf("items = %+v", items)
	}
	for _, item := range items {
		if item.Label == "w1" && item.InsertText != "w1=" {
			t.Errorf("insertText = %q", item.InsertText)
		}
	}
}

func TestCompletionComponentNames(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Guide.comp"), []byte(serverGuide), 0o644); err != nil {
		t.Fatal(err)
	}
	uri := pathToURI(filepath.Join(dir, "demo.instr"))
	text := "DEFINE INSTRUMENT D()\nTRACE\nCOMPONENT g = \nEND\n"
	server.updateDocument(uri, text, 1)

	params, _ := json.Marshal(completionParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Position:     position{Line: 2, Character: 14},
	})
	if err := server.handleCompletion(&rpcMessage{ID: json.RawMessage("6"), Params: params}); err != nil {
		t.Fatalf("completion: %v", err)
	}

	var items []completionItem
	resp := responseByID(t, decodeMessages(t, out.Bytes()), "6")
	if err := json.Unmarshal(resp.Result, &items); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !hasLabel(items, "Guide") {
		t.Fatalf("items = %+v", items)
	}
}

func TestCompletionKeywords(t *testing.T) {
	var out bytes.Buffer
	server := newTestServer(t, &out)
	uri, _ := openInstrument(t, server)

	params, _ := json.Marshal(completionParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Position:     position{Line: 0, Character: 0},
	})
	if err := server.handleCompletion(&rpcMessage{ID: json.RawMessage("8"), Params: params}); err != nil {
		t.Fatalf("completion: %v", err)
	}

	var items []completionItem
	resp := responseByID(t, decodeMessages(t, out.Bytes()), "8")
	if err := json.Unmarshal(resp.Result, &items); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !hasLabel(items, "COMPONENT") || !hasLabel(items, "TRACE") {
		t.Fatalf("items = %+v", items)
	}
}
