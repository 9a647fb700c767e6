package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"lsp-mcp/internal/lsp"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Call outcomes used in logs and metrics
const (
	outcomeOK          = "ok"
	outcomeUnknownTool = "unknown_tool"
	outcomeInvalidArgs = "invalid_arguments"
	outcomeFailed      = "failed"
	outcomeFatal       = "fatal"
)

// Dispatcher routes tool invocations to the session. Calls are served one
// at a time in arrival order
type Dispatcher struct {
	registry   *Registry
	querier    Querier
	normalizer Normalizer
	logger     zerolog.Logger

	mu sync.Mutex

	activeMu sync.Mutex
	idle     *sync.Cond
	active   int

	fatalMu sync.Mutex
	onFatal func(error)
}

// NewDispatcher creates a dispatcher for the tools in reg
func NewDispatcher(reg *Registry, q Querier, n Normalizer, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		registry:   reg,
		querier:    q,
		normalizer: n,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}
	d.idle = sync.NewCond(&d.activeMu)
	return d
}

// Wait blocks until no invocation is in progress
func (d *Dispatcher) Wait() {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	for d.active > 0 {
		d.idle.Wait()
	}
}

func (d *Dispatcher) begin() {
	d.activeMu.Lock()
	d.active++
	d.activeMu.Unlock()
}

func (d *Dispatcher) end() {
	d.activeMu.Lock()
	d.active--
	if d.active == 0 {
		d.idle.Broadcast()
	}
	d.activeMu.Unlock()
}

// OnFatal sets the function told about errors that must stop serving
func (d *Dispatcher) OnFatal(fn func(error)) {
	d.fatalMu.Lock()
	defer d.fatalMu.Unlock()
	d.onFatal = fn
}

func (d *Dispatcher) fatal(err error) {
	d.fatalMu.Lock()
	fn := d.onFatal
	d.fatalMu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Dispatch invokes the tool registered as name with args
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (result any, err error) {
	d.begin()
	defer d.end()

	start := time.Now()
	outcome := outcomeOK
	ctx, span := startToolSpan(ctx, name)
	defer func() {
		elapsed := time.Since(start)
		recordToolCall(ctx, name, outcome, elapsed)
		if err != nil {
			span.RecordError(err)
		}
		span.End()

		event := d.logger.Info()
		if err != nil {
			event = d.logger.Warn().Err(err)
		}
		event.Str("tool", name).
			Str("outcome", outcome).
			Dur("duration", elapsed).
			Msg("tool call")
	}()

	desc, ok := d.registry.Lookup(name)
	if !ok {
		outcome = outcomeUnknownTool
		return nil, &UnknownToolError{Name: name}
	}

	path, pos, err := parseArguments(desc, args)
	if err != nil {
		outcome = outcomeInvalidArgs
		return nil, err
	}
	path = d.normalizer.Normalize(path)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.querier.IsOpen() {
		outcome = outcomeFatal
		d.fatal(lsp.ErrSessionClosed)
		return nil, lsp.ErrSessionClosed
	}

	result, err = desc.Operation.Call(ctx, d.querier, path, pos)
	if err != nil {
		outcome = outcomeFailed
		if errors.Is(err, lsp.ErrSessionClosed) {
			outcome = outcomeFatal
			d.fatal(err)
		}
		return nil, err
	}
	return result, nil
}

// Handler adapts Dispatch for the MCP server. Failures become tool error
// results so no invocation ends the transport loop. A started call is not
// cancelled with the loop; the session's request timeout bounds it
func (d *Dispatcher) Handler(desc ToolDescriptor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := d.Dispatch(context.WithoutCancel(ctx), desc.Name, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode %s result: %v", desc.Name, err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func parseArguments(desc ToolDescriptor, args map[string]any) (string, lsp.Position, error) {
	invalid := func(arg, reason string) error {
		return &InvalidArgumentsError{Tool: desc.Name, Argument: arg, Reason: reason}
	}

	raw, ok := args[ArgPath]
	if !ok || raw == nil {
		return "", lsp.Position{}, invalid(ArgPath, "required")
	}
	path, ok := raw.(string)
	if !ok {
		return "", lsp.Position{}, invalid(ArgPath, fmt.Sprintf("must be a string, got %T", raw))
	}
	if path == "" {
		return "", lsp.Position{}, invalid(ArgPath, "must not be empty")
	}

	if desc.Operation.Shape == PathOnly {
		return path, lsp.Position{}, nil
	}

	line, err := intArgument(args, ArgLine)
	if err != nil {
		return "", lsp.Position{}, invalid(ArgLine, err.Error())
	}
	col, err := intArgument(args, ArgCol)
	if err != nil {
		return "", lsp.Position{}, invalid(ArgCol, err.Error())
	}
	return path, lsp.Position{Line: line, Character: col}, nil
}

// intArgument reads a non-negative integer. JSON numbers arrive as float64
func intArgument(args map[string]any, name string) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, errors.New("required")
	}

	var n int64
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("must be an integer, got %v", v)
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("out of range: %v", v)
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("must be an integer, got %s", v)
		}
		n = i
	default:
		return 0, fmt.Errorf("must be an integer, got %T", raw)
	}

	if n < 0 {
		return 0, fmt.Errorf("must be non-negative, got %d", n)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %d", n)
	}
	return int(n), nil
}
