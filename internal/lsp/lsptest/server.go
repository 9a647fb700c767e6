// Package lsptest provides a scripted language server for tests.
//
// The server runs inside the test binary itself: a package's TestMain calls
// MaybeServe, and Config returns a server configuration that re-executes the
// test binary with the environment switch set
package lsptest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"testing"

	"lsp-mcp/internal/lsp"
)

const (
	// EnvServe switches the test binary into fake server mode
	EnvServe = "LSPMCP_FAKE_LSP"
	// EnvFailInitialize makes the fake server reject initialize
	EnvFailInitialize = "LSPMCP_FAKE_LSP_FAIL_INIT"
)

// Special positions that change the fake server's answers
const (
	NullLine  = 999 // hover and definition return null
	ErrorLine = 666 // every positional request fails with an LSP error
)

// MaybeServe runs the fake server and exits when the environment switch is
// set. Otherwise it returns immediately
func MaybeServe() {
	if os.Getenv(EnvServe) != "1" {
		return
	}
	if err := Serve(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "lsptest:", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// Config returns a server configuration that starts the fake server. Extra
// environment entries are merged in
func Config(t testing.TB, env map[string]string) *lsp.ServerConfig {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("lsptest: locate test binary: %v", err)
	}
	merged := map[string]string{EnvServe: "1"}
	for k, v := range env {
		merged[k] = v
	}
	return &lsp.ServerConfig{
		Language: "python",
		Name:     "fake-lsp",
		Command:  exe,
		Args:     []string{"-test.run=^$"},
		Env:      merged,
	}
}

type message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  any              `json:"result"`
	Error   *lsp.RPCError    `json:"error,omitempty"`
}

type positionParams struct {
	TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
	Position     lsp.Position               `json:"position"`
}

type server struct {
	w    io.Writer
	docs map[string]string
}

// Serve answers LSP requests on r/w until exit or end of input
func Serve(r io.Reader, w io.Writer) error {
	s := &server{w: w, docs: make(map[string]string)}
	br := bufio.NewReader(r)
	for {
		body, err := lsp.ReadFrame(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if msg.Method == "exit" {
			return nil
		}
		if msg.ID == nil {
			s.notification(&msg)
			continue
		}
		if msg.Method == "" {
			// reply to a request we never send
			continue
		}
		result, rpcErr := s.request(&msg)
		reply := message{JSONRPC: "2.0", ID: msg.ID, Result: result, Error: rpcErr}
		if err := s.write(reply); err != nil {
			return err
		}
	}
}

func (s *server) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return lsp.WriteFrame(s.w, data)
}

func (s *server) notification(msg *message) {
	switch msg.Method {
	case "textDocument/didOpen":
		var p lsp.DidOpenTextDocumentParams
		if json.Unmarshal(msg.Params, &p) == nil {
			s.docs[p.TextDocument.URI] = p.TextDocument.Text
		}
	case "textDocument/didClose":
		var p lsp.DidCloseTextDocumentParams
		if json.Unmarshal(msg.Params, &p) == nil {
			delete(s.docs, p.TextDocument.URI)
		}
	}
}

func (s *server) request(msg *message) (any, *lsp.RPCError) {
	switch msg.Method {
	case "initialize":
		if os.Getenv(EnvFailInitialize) == "1" {
			return nil, &lsp.RPCError{Code: lsp.CodeInternalError, Message: "initialize rejected"}
		}
		// Ask the client something, as real servers do during startup
		_ = s.write(map[string]any{
			"jsonrpc": "2.0",
			"id":      "fake-config-1",
			"method":  "workspace/configuration",
			"params":  map[string]any{"items": []any{map[string]string{"section": "python"}}},
		})
		return map[string]any{
			"capabilities": map[string]any{
				"textDocumentSync":       1,
				"definitionProvider":     true,
				"referencesProvider":     true,
				"hoverProvider":          true,
				"documentSymbolProvider": true,
				"completionProvider":     map[string]any{},
			},
			"serverInfo": map[string]string{"name": "fake-lsp", "version": "0.0.1"},
		}, nil
	case "shutdown":
		return nil, nil
	}

	var p positionParams
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return nil, &lsp.RPCError{Code: -32602, Message: err.Error()}
	}
	uri := p.TextDocument.URI
	if _, ok := s.docs[uri]; !ok {
		return nil, &lsp.RPCError{Code: -32602, Message: "document not open: " + uri}
	}
	if p.Position.Line == ErrorLine {
		return nil, &lsp.RPCError{Code: lsp.CodeInternalError, Message: "fake failure"}
	}

	switch msg.Method {
	case "textDocument/documentSymbol":
		return []map[string]any{
			{
				"name":           "Greeter",
				"kind":           int(lsp.SymbolKindClass),
				"range":          span(0, 0, 4, 0),
				"selectionRange": span(0, 6, 0, 13),
				"children": []map[string]any{
					{
						"name":           "greet",
						"kind":           int(lsp.SymbolKindMethod),
						"range":          span(1, 4, 3, 0),
						"selectionRange": span(1, 8, 1, 13),
					},
				},
			},
		}, nil
	case "textDocument/definition":
		if p.Position.Line == NullLine {
			return nil, nil
		}
		return []map[string]any{
			{
				"targetUri":            uri,
				"targetRange":          span(p.Position.Line, 0, p.Position.Line+1, 0),
				"targetSelectionRange": span(p.Position.Line, p.Position.Character, p.Position.Line, p.Position.Character+5),
			},
		}, nil
	case "textDocument/references":
		return []lsp.Location{
			{URI: uri, Range: rng(p.Position.Line, p.Position.Character)},
			{URI: uri, Range: rng(p.Position.Line+10, 2)},
		}, nil
	case "textDocument/completion":
		return map[string]any{
			"isIncomplete": true,
			"items": []map[string]any{
				{"label": "print", "kind": 3, "detail": "builtin"},
				{"label": "property", "kind": 7},
			},
		}, nil
	case "textDocument/hover":
		if p.Position.Line == NullLine {
			return nil, nil
		}
		return map[string]any{
			"contents": map[string]string{
				"kind":  "markdown",
				"value": fmt.Sprintf("%s:%d:%d", pathOf(uri), p.Position.Line, p.Position.Character),
			},
			"range": span(p.Position.Line, p.Position.Character, p.Position.Line, p.Position.Character+1),
		}, nil
	default:
		return nil, &lsp.RPCError{Code: lsp.CodeMethodNotFound, Message: "method not found: " + msg.Method}
	}
}

// HoverText is the hover value the fake server returns for a position
func HoverText(path string, line, col int) string {
	return fmt.Sprintf("%s:%d:%d", path, line, col)
}

func pathOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return u.Path
}

func rng(line, col int) lsp.Range {
	return lsp.Range{
		Start: lsp.Position{Line: line, Character: col},
		End:   lsp.Position{Line: line, Character: col + 1},
	}
}

func span(sl, sc, el, ec int) map[string]any {
	return map[string]any{
		"start": map[string]int{"line": sl, "character": sc},
		"end":   map[string]int{"line": el, "character": ec},
	}
}
