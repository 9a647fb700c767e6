package lsp

import (
	"errors"
	"fmt"
)

// Sentinel errors for session and connection failures
var (
	// ErrSessionClosed is returned by every query issued after Close
	ErrSessionClosed = errors.New("lsp session closed")

	// ErrUnsupportedLanguage means no server is configured for the language
	ErrUnsupportedLanguage = errors.New("no language server configured for language")

	// ErrServerNotInstalled means the server binary is not on PATH
	ErrServerNotInstalled = errors.New("language server not installed")

	// ErrInitializeFailed means the initialize handshake did not complete
	ErrInitializeFailed = errors.New("language server initialize failed")

	// ErrConnectionClosed means the server's output stream ended
	ErrConnectionClosed = errors.New("language server connection closed")

	// ErrInvalidResponse means a result could not be decoded
	ErrInvalidResponse = errors.New("invalid language server response")
)

// SessionStartError reports why a session could not be opened
type SessionStartError struct {
	Language string
	Command  string
	Err      error
}

func (e *SessionStartError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("start %s language server (%s): %v", e.Language, e.Command, e.Err)
	}
	return fmt.Sprintf("start %s language server: %v", e.Language, e.Err)
}

func (e *SessionStartError) Unwrap() error {
	return e.Err
}

// RPCError is an error response sent by the language server
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// JSON-RPC and LSP error codes used by this package
const (
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)
