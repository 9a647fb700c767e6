package main

import (
	"io"
	"os"
	"strings"
	"time"

	"lsp-mcp/internal/config"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// setupLogging builds the process logger. stdout carries MCP traffic, so
// logs always go to w (stderr)
func setupLogging(cfg *config.Config, w io.Writer) zerolog.Logger {
	level := parseLogLevel(cfg.LogLevel)

	out := w
	if useConsole(cfg.LogFormat, w) {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// parseLogLevel converts a string log level to zerolog.Level
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// useConsole reports whether human-readable output should be used
func useConsole(format string, w io.Writer) bool {
	switch strings.ToLower(format) {
	case "console":
		return true
	case "json":
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
