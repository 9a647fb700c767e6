package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultStartupTimeout = 30 * time.Second
	shutdownTimeout       = 3 * time.Second
	exitGracePeriod       = 3 * time.Second
)

// Options configures Open
type Options struct {
	// Language selects the built-in server configuration
	Language string

	// RootDir is the workspace root. Relative values are resolved against
	// the working directory
	RootDir string

	// Server replaces the built-in configuration when set
	Server *ServerConfig

	StartupTimeout time.Duration
	RequestTimeout time.Duration

	Logger zerolog.Logger
}

// Session owns one language server process for one root and language.
// It is either open or closed; once closed every query fails with
// ErrSessionClosed
type Session struct {
	id             uuid.UUID
	language       string
	root           string
	rootURI        string
	server         ServerConfig
	requestTimeout time.Duration
	logger         zerolog.Logger

	cmd      *exec.Cmd
	conn     *Conn
	waitDone chan struct{}

	// mu is held for reading by in-flight queries so Close waits for them
	mu   sync.RWMutex
	open bool

	closeOnce sync.Once
	closeErr  error

	docMu sync.Mutex
	docs  map[string]int // URI -> open count
}

// Run opens a session, calls fn with it and closes it exactly once however
// fn returns. The error from fn takes precedence over a close error
func Run(ctx context.Context, opts Options, fn func(context.Context, *Session) error) (err error) {
	s, err := Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
	}()
	return fn(ctx, s)
}

// Open starts the language server and completes the initialize handshake.
// All failures are reported as *SessionStartError
func Open(ctx context.Context, opts Options) (*Session, error) {
	s, err := open(ctx, opts)
	recordSessionStart(ctx, opts.Language, err == nil)
	return s, err
}

func open(ctx context.Context, opts Options) (*Session, error) {
	var cfg ServerConfig
	if opts.Server != nil {
		cfg = *opts.Server
		if cfg.Language == "" {
			cfg.Language = opts.Language
		}
	} else {
		var err error
		if cfg, err = LookupServer(opts.Language); err != nil {
			return nil, &SessionStartError{Language: opts.Language, Err: err}
		}
	}

	startErr := func(err error) error {
		return &SessionStartError{Language: opts.Language, Command: cfg.Command, Err: err}
	}

	cmdPath, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, startErr(fmt.Errorf("%w: %q not found. %s", ErrServerNotInstalled, cfg.Command, cfg.InstallHint))
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, startErr(fmt.Errorf("resolve root %s: %w", rootDir, err))
	}

	id := uuid.New()
	logger := opts.Logger.With().
		Str("session", id.String()).
		Str("language", opts.Language).
		Str("server", cfg.Name).
		Logger()

	cmd := exec.Command(cmdPath, cfg.Args...)
	cmd.Dir = root
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for key, value := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, startErr(fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, startErr(fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, startErr(fmt.Errorf("stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return nil, startErr(fmt.Errorf("start process: %w", err))
	}

	s := &Session{
		id:             id,
		language:       opts.Language,
		root:           root,
		rootURI:        fileURI(root),
		server:         cfg,
		requestTimeout: opts.RequestTimeout,
		logger:         logger,
		cmd:            cmd,
		waitDone:       make(chan struct{}),
		docs:           make(map[string]int),
	}
	go s.forwardStderr(stderr)
	s.conn = NewConn(stdout, stdin, logger)
	go func() {
		_ = cmd.Wait()
		close(s.waitDone)
	}()

	timeout := opts.StartupTimeout
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}
	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.initialize(initCtx); err != nil {
		_ = s.terminate()
		return nil, startErr(fmt.Errorf("%w: %v", ErrInitializeFailed, err))
	}

	s.open = true
	logger.Info().Str("root", root).Int("pid", cmd.Process.Pid).Msg("lsp: session started")
	return s, nil
}

func (s *Session) initialize(ctx context.Context) error {
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   s.rootURI,
		RootPath:  s.root,
		WorkspaceFolders: []WorkspaceFolder{
			{URI: s.rootURI, Name: filepath.Base(s.root)},
		},
		Capabilities: ClientCapabilities{
			TextDocument: &TextDocumentClientCapabilities{
				Definition: &LinkSupportCapabilities{LinkSupport: true},
				References: &DynamicRegistrationCapabilities{},
				Hover: &HoverClientCapabilities{
					ContentFormat: []string{"markdown", "plaintext"},
				},
				Completion:     &DynamicRegistrationCapabilities{},
				DocumentSymbol: &DocumentSymbolClientCapabilities{HierarchicalDocumentSymbolSupport: true},
			},
			Workspace: &WorkspaceClientCapabilities{
				Configuration:    true,
				WorkspaceFolders: true,
			},
		},
	}

	var result InitializeResult
	if err := s.conn.Call(ctx, "initialize", params, &result); err != nil {
		return err
	}
	if result.ServerInfo != nil {
		s.logger.Debug().Str("name", result.ServerInfo.Name).Str("version", result.ServerInfo.Version).Msg("lsp: initialized")
	}
	return s.conn.Notify("initialized", struct{}{})
}

// ID identifies the session in logs
func (s *Session) ID() string { return s.id.String() }

// Language returns the configured language identifier
func (s *Session) Language() string { return s.language }

// Root returns the absolute workspace root
func (s *Session) Root() string { return s.root }

// IsOpen reports whether queries may be issued
func (s *Session) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// Close shuts the server down. It waits for in-flight queries, is safe to
// call more than once and only tears the process down the first time
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.open = false
		s.mu.Unlock()

		s.closeErr = s.terminate()
		s.logger.Info().Msg("lsp: session closed")
	})
	return s.closeErr
}

// terminate asks the server to exit and kills it after a grace period
func (s *Session) terminate() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	_ = s.conn.Call(ctx, "shutdown", nil, nil)
	cancel()
	_ = s.conn.Notify("exit", nil)
	_ = s.conn.Close()

	select {
	case <-s.waitDone:
		return nil
	case <-time.After(exitGracePeriod):
	}

	s.logger.Warn().Msg("lsp: server did not exit, killing")
	if err := s.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill %s: %w", s.server.Command, err)
	}
	<-s.waitDone
	return nil
}

func (s *Session) forwardStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug().Str("stream", "stderr").Msg(scanner.Text())
	}
}

// DocumentSymbols returns the symbols declared in a file
func (s *Session) DocumentSymbols(ctx context.Context, path string) ([]DocumentSymbol, error) {
	var raw json.RawMessage
	err := s.request(ctx, "textDocument/documentSymbol", path, func(uri string) any {
		return DocumentSymbolParams{TextDocument: TextDocumentIdentifier{URI: uri}}
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeDocumentSymbols(raw)
}

// Definition returns the definition location(s) of the symbol at pos
func (s *Session) Definition(ctx context.Context, path string, pos Position) ([]Location, error) {
	var raw json.RawMessage
	err := s.request(ctx, "textDocument/definition", path, func(uri string) any {
		return TextDocumentPositionParams{TextDocument: TextDocumentIdentifier{URI: uri}, Position: pos}
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// References returns every reference to the symbol at pos, declaration included
func (s *Session) References(ctx context.Context, path string, pos Position) ([]Location, error) {
	var raw json.RawMessage
	err := s.request(ctx, "textDocument/references", path, func(uri string) any {
		return ReferenceParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     pos,
			Context:      ReferenceContext{IncludeDeclaration: true},
		}
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// Completions returns completion candidates at pos. Incomplete lists are
// returned as they are
func (s *Session) Completions(ctx context.Context, path string, pos Position) (*CompletionResult, error) {
	var raw json.RawMessage
	err := s.request(ctx, "textDocument/completion", path, func(uri string) any {
		return CompletionParams{TextDocument: TextDocumentIdentifier{URI: uri}, Position: pos}
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeCompletions(raw)
}

// Hover returns hover information at pos, or nil when the server has none
func (s *Session) Hover(ctx context.Context, path string, pos Position) (*Hover, error) {
	var raw json.RawMessage
	err := s.request(ctx, "textDocument/hover", path, func(uri string) any {
		return TextDocumentPositionParams{TextDocument: TextDocumentIdentifier{URI: uri}, Position: pos}
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeHover(raw)
}

// request keeps the document open on the server for the duration of one call
func (s *Session) request(ctx context.Context, method, path string, params func(uri string) any, raw *json.RawMessage) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return ErrSessionClosed
	}

	ctx, span := startRequestSpan(ctx, method, s.language, path)
	start := time.Now()
	defer func() {
		recordRequest(ctx, method, s.language, time.Since(start), err == nil)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	uri, err := s.openDocument(path)
	if err != nil {
		return err
	}
	defer s.closeDocument(uri)

	s.logger.Debug().Str("method", method).Str("uri", uri).Msg("lsp: request")
	return s.conn.Call(ctx, method, params(uri), raw)
}

func (s *Session) openDocument(path string) (string, error) {
	uri := fileURI(path)

	s.docMu.Lock()
	defer s.docMu.Unlock()
	if n := s.docs[uri]; n > 0 {
		s.docs[uri] = n + 1
		return uri, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file %s: %w", path, err)
	}
	err = s.conn.Notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        uri,
			LanguageID: languageID(path, s.language),
			Version:    1,
			Text:       string(content),
		},
	})
	if err != nil {
		return "", fmt.Errorf("open document %s: %w", path, err)
	}
	s.docs[uri] = 1
	return uri, nil
}

func (s *Session) closeDocument(uri string) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	n := s.docs[uri]
	if n > 1 {
		s.docs[uri] = n - 1
		return
	}
	delete(s.docs, uri)
	_ = s.conn.Notify("textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// fileURI converts an absolute file path to a file:// URI
func fileURI(path string) string {
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
