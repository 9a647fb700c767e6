package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"lsp-mcp/internal/config"
	"lsp-mcp/internal/lsp"
	"lsp-mcp/internal/mcp"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Command line flags
var (
	configPath string
	language   string
	logLevel   string
	rootDir    string

	rootCmd = &cobra.Command{
		Use:   "lsp-mcp",
		Short: "Expose language server queries as MCP tools over stdio",
		Long: `lsp-mcp starts a language server for one language and serves its
document symbol, definition, reference, completion and hover queries as
MCP tools on stdin/stdout. Logs go to stderr.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "List the MCP tools the bridge exposes",
		RunE:  runTools,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().StringVar(&language, "language", "", "Language served by the bridge (python, go, typescript, javascript, rust)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Workspace root (defaults to the working directory)")

	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration file, applies flag overrides and
// validates the result
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	if language != "" {
		cfg.Language = language
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if rootDir != "" {
		cfg.RootDir = rootDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("name", cfg.Name).
		Str("version", cfg.Version).
		Str("language", cfg.Language).
		Str("root", cfg.RootDir).
		Msg("starting LSP MCP bridge")

	if err := run(ctx, cfg, os.Stdin, os.Stdout, logger); err != nil {
		stop()
		logger.Fatal().Err(err).Msg("bridge failed")
	}

	logger.Info().Msg("bridge stopped")
	return nil
}

// run opens the language server session and serves MCP on in/out until the
// input ends, ctx is cancelled or a fatal error occurs. Session start and
// registration errors are returned before anything is read from in
func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	opts := lsp.Options{
		Language:       cfg.Language,
		RootDir:        cfg.RootDir,
		Server:         serverConfig(cfg),
		StartupTimeout: cfg.StartupTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}

	return lsp.Run(ctx, opts, func(ctx context.Context, session *lsp.Session) error {
		srv := mcp.NewServer(cfg.Name, cfg.Version, logger)
		registry := mcp.NewRegistry(cfg.Tools.Namespace, mcp.WithDisabledTools(cfg.Tools.Disabled...))
		dispatcher := mcp.NewDispatcher(registry, session, mcp.NewNormalizer(session.Root()), logger)

		descs, err := registry.RegisterAll(srv, dispatcher, mcp.Operations())
		if err != nil {
			return fmt.Errorf("failed to register tools: %w", err)
		}

		transport := mcp.NewTransport(srv, session, logger)
		dispatcher.OnFatal(transport.Fail)
		transport.OnDrain(dispatcher.Wait)

		logger.Info().
			Str("session", session.ID()).
			Str("namespace", registry.Namespace()).
			Int("tools", registry.Count()).
			Strs("names", toolNames(descs)).
			Msg("serving MCP on stdio")
		return transport.Run(ctx, in, out)
	})
}

func toolNames(descs []mcp.ToolDescriptor) []string {
	names := make([]string, len(descs))
	for i, desc := range descs {
		names[i] = desc.Name
	}
	return names
}

// serverConfig converts a configured server override, if any
func serverConfig(cfg *config.Config) *lsp.ServerConfig {
	if cfg.Server == nil {
		return nil
	}
	return &lsp.ServerConfig{
		Language: cfg.Language,
		Name:     filepath.Base(cfg.Server.Command),
		Command:  cfg.Server.Command,
		Args:     cfg.Server.Args,
		Env:      cfg.Server.Env,
	}
}
