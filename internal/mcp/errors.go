package mcp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyRegistered is returned when RegisterAll is called twice on
	// the same registry
	ErrAlreadyRegistered = errors.New("tools already registered")

	// ErrSessionNotOpen is returned by Transport.Run when the session was
	// closed before serving started
	ErrSessionNotOpen = errors.New("session is not open")

	// ErrTransportStopped is returned by Transport.Run once the loop has
	// already run
	ErrTransportStopped = errors.New("transport already stopped")
)

// DuplicateToolError reports two operations deriving the same tool name
type DuplicateToolError struct {
	Name       string
	Operations []string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("duplicate tool name %q (operations: %s)", e.Name, strings.Join(e.Operations, ", "))
}

// UnknownToolError reports an invocation of a name that is not registered
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// InvalidArgumentsError reports arguments that do not match a tool's schema
type InvalidArgumentsError struct {
	Tool     string
	Argument string
	Reason   string
}

func (e *InvalidArgumentsError) Error() string {
	if e.Argument == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid argument %q for %s: %s", e.Argument, e.Tool, e.Reason)
}
