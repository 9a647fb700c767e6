package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// NewServer creates the MCP server the tools are registered on. Request
// errors, including calls to unknown tools, are logged through hooks
func NewServer(name, version string, logger zerolog.Logger) *server.MCPServer {
	logger = logger.With().Str("component", "mcp").Logger()

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client", message.Params.ClientInfo.Name).
			Str("client_version", message.Params.ClientInfo.Version).
			Str("protocol", result.ProtocolVersion).
			Msg("client initialized")
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		event := logger.Warn().Err(err).Str("method", string(method)).Interface("id", id)
		if errors.Is(err, server.ErrToolNotFound) {
			if req, ok := message.(*mcp.CallToolRequest); ok {
				event = event.Str("tool", req.Params.Name)
			}
			event.Msg("unknown tool")
			return
		}
		event.Msg("request failed")
	})

	return server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks),
	)
}
