// Package lsp implements the language server: Content-Length framed
// JSON-RPC over stdio, document lifecycle, a synchronous fast diagnostic
// pass and a debounced slow pass that runs the external C checker.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mclsp/internal/cbridge"
	"mclsp/internal/config"
	"mclsp/internal/diag"
	"mclsp/internal/document"
	"mclsp/internal/flavor"
	"mclsp/internal/registry"
	"mclsp/internal/version"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// slowWorkers bounds concurrent external checker runs.
const slowWorkers = 2

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	Debounce       time.Duration
	MaxDiagnostics int
	Config         config.Config
	Flavor         string // session-wide flavor forced from the command line
}

// docEntry is the per-document state the server maintains while a file is
// open. snapshot increments on every content mutation and guards stale
// slow-pass results.
type docEntry struct {
	path     string
	text     string
	version  int
	snapshot int64

	doc *document.Document
	gen *cbridge.GeneratedDocument

	fast         []diag.Diagnostic
	slow         []diag.Diagnostic
	slowSnapshot int64
}

// Server handles stdio JSON-RPC for the McCode LSP.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex

	mu                sync.Mutex
	docs              map[string]*docEntry
	published         map[string]struct{}
	slowTimers        map[string]*time.Timer
	slowCancels       map[string]context.CancelFunc
	workspaceRoot     string
	shutdownRequested bool

	debounce       time.Duration
	maxDiagnostics int
	cfg            config.Config

	live      *registry.InMemoryRegistry
	names     *registry.NameCache
	resolver  *flavor.Resolver
	bridge    *cbridge.Bridge
	lifecycle *cbridge.Lifecycle

	slowSem *semaphore.Weighted
	baseCtx context.Context
}

// NewServer constructs a new LSP server over the given streams.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	maxDiagnostics := opts.MaxDiagnostics
	if maxDiagnostics <= 0 {
		maxDiagnostics = 100
	}
	logger := log.New(os.Stderr, "mclsp: ", 0)
	live := registry.NewInMemory("session")
	names := registry.NewNameCache(registry.DefaultStacks(live, opts.Config), "")
	resolver := flavor.NewResolver("", names)
	if opts.Flavor != "" {
		if f, ok := flavor.FromString(opts.Flavor); ok {
			resolver.SetOverride(&f)
		}
	}
	return &Server{
		in:             bufio.NewReader(in),
		out:            bufio.NewWriter(out),
		docs:           make(map[string]*docEntry),
		published:      make(map[string]struct{}),
		slowTimers:     make(map[string]*time.Timer),
		slowCancels:    make(map[string]context.CancelFunc),
		debounce:       debounce,
		maxDiagnostics: maxDiagnostics,
		cfg:            opts.Config,
		live:           live,
		names:          names,
		resolver:       resolver,
		bridge:         cbridge.NewBridge(opts.Config, live, "", logger),
		lifecycle:      cbridge.NewLifecycle(opts.Config, logger),
		slowSem:        semaphore.NewWeighted(slowWorkers),
	}
}

// Run serves LSP requests until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse message: %v", err)
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.dispatch(&msg); err != nil {
			return err
		}
	}
}

// dispatch recovers per-request panics so one broken handler cannot take
// the whole session down.
func (s *Server) dispatch(msg *rpcMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logf("panic in %s: %v", msg.Method, r)
			if len(msg.ID) > 0 {
				err = s.sendError(msg.ID, -32603, "internal error")
			} else {
				err = nil
			}
		}
	}()
	return s.handleMessage(msg)
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		if s.shutdownRequested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/hover":
		return s.handleHover(msg)
	case "textDocument/completion":
		return s.handleCompletion(msg)
	case "textDocument/definition":
		return s.handleDefinition(msg)
	case "$/mclsp/virtualCDocument":
		return s.handleVirtualCDocument(msg)
	case "$/mclsp/positionInCRegion":
		return s.handlePositionInCRegion(msg)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, -32601, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, -32602, "invalid params")
		}
	}
	root := ""
	if params.RootURI != "" {
		root = uriToPath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = uriToPath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	s.mu.Lock()
	s.workspaceRoot = root
	s.mu.Unlock()
	s.resolver.SetWorkspaceRoot(root)
	s.bridge.SetWorkspaceRoot(root)

	if len(params.InitializationOptions) > 0 {
		var opts initializationOptions
		if err := json.Unmarshal(params.InitializationOptions, &opts); err == nil && opts.Flavor != "" {
			if f, ok := flavor.FromString(opts.Flavor); ok {
				s.resolver.SetOverride(&f)
			}
		}
	}

	// Pre-warm the component name cache so flavor inference and
	// completion do not block on the first directory scan.
	go func() {
		if err := s.names.Warm(s.baseCtx); err != nil {
			s.logf("warm component names: %v", err)
		}
	}()

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save:      saveOptions{IncludeText: true},
			},
			HoverProvider:      true,
			DefinitionProvider: true,
			CompletionProvider: &completionOptions{
				TriggerCharacters: []string{"=", "(", ","},
			},
		},
		ServerInfo: &serverInfo{Name: "mclsp", Version: version.Version},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	for uri, t := range s.slowTimers {
		t.Stop()
		delete(s.slowTimers, uri)
	}
	for uri, cancel := range s.slowCancels {
		cancel()
		delete(s.slowCancels, uri)
	}
	s.mu.Unlock()
	s.clearPublishedDiagnostics()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	if uri == "" {
		return nil
	}
	s.updateDocument(uri, params.TextDocument.Text, params.TextDocument.Version)
	s.syncFragment(uri)
	// First open gets checker feedback without the debounce delay.
	s.scheduleSlow(uri, 0)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	entry, ok := s.docs[uri]
	var text string
	if ok {
		text = applyChanges(entry.text, params.ContentChanges)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.updateDocument(uri, text, params.TextDocument.Version)
	s.scheduleSlow(uri, s.debounce)
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	entry, ok := s.docs[uri]
	text := ""
	version := 0
	if ok {
		text = entry.text
		version = entry.version
		if params.Text != nil {
			text = *params.Text
		}
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.updateDocument(uri, text, version)
	s.syncFragment(uri)
	s.scheduleSlow(uri, s.debounce)
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	entry, ok := s.docs[uri]
	delete(s.docs, uri)
	if t := s.slowTimers[uri]; t != nil {
		t.Stop()
		delete(s.slowTimers, uri)
	}
	if cancel := s.slowCancels[uri]; cancel != nil {
		cancel()
		delete(s.slowCancels, uri)
	}
	_, hadDiagnostics := s.published[uri]
	delete(s.published, uri)
	s.mu.Unlock()

	if ok && entry.doc != nil && entry.doc.Kind == document.KindComponent {
		s.evictFragment(entry.path)
	}
	s.resolver.Forget(uri)
	s.lifecycle.Forget(uri)
	if hadDiagnostics {
		if err := s.sendPublish(uri, nil); err != nil {
			s.logf("failed to clear diagnostics: %v", err)
		}
	}
	return nil
}

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	var settings lspSettings
	if len(params.Settings) > 0 {
		if err := json.Unmarshal(params.Settings, &settings); err != nil {
			s.logf("invalid settings payload: %v", err)
			return nil
		}
	}
	if settings.McCode.Flavor == nil {
		return nil
	}
	if *settings.McCode.Flavor == "" {
		s.resolver.SetOverride(nil)
	} else if f, ok := flavor.FromString(*settings.McCode.Flavor); ok {
		s.resolver.SetOverride(&f)
	} else {
		s.logf("unknown flavor %q in settings", *settings.McCode.Flavor)
		return nil
	}

	// Flavor changes shift which registries documents resolve against.
	s.mu.Lock()
	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	s.mu.Unlock()
	for _, uri := range uris {
		s.mu.Lock()
		entry, ok := s.docs[uri]
		var text string
		var ver int
		if ok {
			text, ver = entry.text, entry.version
		}
		s.mu.Unlock()
		if ok {
			s.updateDocument(uri, text, ver)
			s.scheduleSlow(uri, s.debounce)
		}
	}
	return nil
}

// syncFragment mirrors an open component fragment into the in-memory
// registry under its stem name, so instruments (and the wrapper the
// fragment itself is checked through) resolve the edited text.
func (s *Server) syncFragment(uri string) {
	s.mu.Lock()
	entry, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok || entry.doc == nil || entry.doc.Kind != document.KindComponent {
		return
	}
	stem := strings.TrimSuffix(filepath.Base(entry.path), registry.CompExt)
	s.live.Inject(stem, entry.text, entry.path)
	for _, f := range flavor.All() {
		s.names.Invalidate(f)
	}
}

func (s *Server) evictFragment(path string) {
	stem := strings.TrimSuffix(filepath.Base(path), registry.CompExt)
	s.live.Evict(stem)
	for _, f := range flavor.All() {
		s.names.Invalidate(f)
	}
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) sendPublish(uri string, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params": publishDiagnosticsParams{
			URI:         uri,
			Diagnostics: list,
		},
	}
	return s.send(msg)
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "mclsp: "+format+"\n", args...)
}
