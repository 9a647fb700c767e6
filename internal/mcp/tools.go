package mcp

import (
	"context"

	"lsp-mcp/internal/lsp"

	"github.com/mark3labs/mcp-go/mcp"
)

// Querier is the part of a language server session the tools call into
type Querier interface {
	DocumentSymbols(ctx context.Context, path string) ([]lsp.DocumentSymbol, error)
	Definition(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error)
	References(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error)
	Completions(ctx context.Context, path string, pos lsp.Position) (*lsp.CompletionResult, error)
	Hover(ctx context.Context, path string, pos lsp.Position) (*lsp.Hover, error)
	IsOpen() bool
}

var _ Querier = (*lsp.Session)(nil)

// Shape is the argument schema of an operation
type Shape int

const (
	// PathOnly operations take a single path argument
	PathOnly Shape = iota
	// PathAndPosition operations take path, line and col
	PathAndPosition
)

func (s Shape) String() string {
	switch s {
	case PathOnly:
		return "path"
	case PathAndPosition:
		return "path+position"
	default:
		return "unknown"
	}
}

// Argument names shared by every tool
const (
	ArgPath = "path"
	ArgLine = "line"
	ArgCol  = "col"
)

// Operation is one language server query exposed as a tool
type Operation struct {
	ID          string
	Description string
	Shape       Shape
	// Call runs the query. pos is the zero value for PathOnly operations
	Call func(ctx context.Context, q Querier, path string, pos lsp.Position) (any, error)
}

// Operations returns the query operations in registration order
func Operations() []Operation {
	return []Operation{
		{
			ID: "request_document_symbols",
			Description: "Get all symbols declared in a file.\n\n" +
				"Asks the language server for the file's symbol tree: classes, functions, " +
				"methods, variables and their nesting.\n\n" +
				"Args:\n  path: file path, absolute or relative to the workspace root.\n\n" +
				"Returns a list of symbols with name, kind, range and children.",
			Shape: PathOnly,
			Call: func(ctx context.Context, q Querier, path string, _ lsp.Position) (any, error) {
				return q.DocumentSymbols(ctx, path)
			},
		},
		{
			ID: "request_definition",
			Description: "Find where the symbol at a position is defined.\n\n" +
				"Args:\n  path: file path, absolute or relative to the workspace root.\n" +
				"  line: zero-based line number.\n  col: zero-based character offset.\n\n" +
				"Returns a list of locations (uri and range). Empty when nothing is found.",
			Shape: PathAndPosition,
			Call: func(ctx context.Context, q Querier, path string, pos lsp.Position) (any, error) {
				return q.Definition(ctx, path, pos)
			},
		},
		{
			ID: "request_references",
			Description: "Find all references to the symbol at a position, declaration included.\n\n" +
				"Args:\n  path: file path, absolute or relative to the workspace root.\n" +
				"  line: zero-based line number.\n  col: zero-based character offset.\n\n" +
				"Returns a list of locations (uri and range).",
			Shape: PathAndPosition,
			Call: func(ctx context.Context, q Querier, path string, pos lsp.Position) (any, error) {
				return q.References(ctx, path, pos)
			},
		},
		{
			ID: "request_completions",
			Description: "Get completion candidates at a position.\n\n" +
				"Args:\n  path: file path, absolute or relative to the workspace root.\n" +
				"  line: zero-based line number.\n  col: zero-based character offset.\n\n" +
				"Returns the completion items and whether the list is incomplete. " +
				"Incomplete lists are not re-requested.",
			Shape: PathAndPosition,
			Call: func(ctx context.Context, q Querier, path string, pos lsp.Position) (any, error) {
				return q.Completions(ctx, path, pos)
			},
		},
		{
			ID: "request_hover",
			Description: "Get hover information (type, signature, documentation) at a position.\n\n" +
				"Args:\n  path: file path, absolute or relative to the workspace root.\n" +
				"  line: zero-based line number.\n  col: zero-based character offset.\n\n" +
				"Returns markup contents and the hovered range, or null when the server has nothing.",
			Shape: PathAndPosition,
			Call: func(ctx context.Context, q Querier, path string, pos lsp.Position) (any, error) {
				return q.Hover(ctx, path, pos)
			},
		},
	}
}

// newTool builds the MCP tool definition for a descriptor
func newTool(desc ToolDescriptor) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(desc.Description),
		mcp.WithString(ArgPath,
			mcp.Required(),
			mcp.Description("File path, absolute or relative to the workspace root"),
		),
	}
	if desc.Operation.Shape == PathAndPosition {
		opts = append(opts,
			mcp.WithNumber(ArgLine,
				mcp.Required(),
				mcp.Description("Zero-based line number"),
				mcp.Min(0),
			),
			mcp.WithNumber(ArgCol,
				mcp.Required(),
				mcp.Description("Zero-based character offset within the line"),
				mcp.Min(0),
			),
		)
	}
	return mcp.NewTool(desc.Name, opts...)
}
