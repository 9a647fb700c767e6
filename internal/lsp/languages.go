package lsp

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ServerConfig describes how to start the language server for one language
type ServerConfig struct {
	Language    string            // language identifier, e.g. "python"
	Name        string            // e.g. "pyright"
	Command     string            // binary name or path
	Args        []string          // command-line arguments
	Env         map[string]string // extra environment variables
	Extensions  []string          // file extensions handled by the server
	InstallHint string            // shown when the binary is not found
}

// DefaultServers returns the built-in server configurations
func DefaultServers() []ServerConfig {
	return []ServerConfig{
		{
			Language:    "python",
			Name:        "pyright",
			Command:     "pyright-langserver",
			Args:        []string{"--stdio"},
			Extensions:  []string{".py", ".pyi"},
			InstallHint: "Install pyright: npm install -g pyright",
		},
		{
			Language:    "go",
			Name:        "gopls",
			Command:     "gopls",
			Args:        []string{"serve"},
			Extensions:  []string{".go"},
			InstallHint: "Install gopls: go install golang.org/x/tools/gopls@latest",
		},
		{
			Language:    "typescript",
			Name:        "typescript-language-server",
			Command:     "typescript-language-server",
			Args:        []string{"--stdio"},
			Extensions:  []string{".ts", ".tsx", ".js", ".jsx"},
			InstallHint: "Install typescript-language-server: npm install -g typescript-language-server typescript",
		},
		{
			Language:    "javascript",
			Name:        "typescript-language-server",
			Command:     "typescript-language-server",
			Args:        []string{"--stdio"},
			Extensions:  []string{".js", ".jsx", ".ts", ".tsx"},
			InstallHint: "Install typescript-language-server: npm install -g typescript-language-server typescript",
		},
		{
			Language:    "rust",
			Name:        "rust-analyzer",
			Command:     "rust-analyzer",
			Extensions:  []string{".rs"},
			InstallHint: "Install rust-analyzer: rustup component add rust-analyzer",
		},
	}
}

// Languages lists the languages with a built-in server
func Languages() []string {
	servers := DefaultServers()
	langs := make([]string, 0, len(servers))
	for _, s := range servers {
		langs = append(langs, s.Language)
	}
	return langs
}

// LookupServer returns the built-in configuration for a language
func LookupServer(language string) (ServerConfig, error) {
	lang := strings.ToLower(strings.TrimSpace(language))
	for _, s := range DefaultServers() {
		if s.Language == lang {
			return s, nil
		}
	}
	return ServerConfig{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, language, strings.Join(Languages(), ", "))
}

// languageID returns the LSP language identifier for a file path, falling
// back to the session language for unknown extensions
func languageID(path, fallback string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	case ".js":
		return "javascript"
	case ".jsx":
		return "javascriptreact"
	case ".py", ".pyi":
		return "python"
	case ".rs":
		return "rust"
	default:
		if fallback != "" {
			return fallback
		}
		return "plaintext"
	}
}
