package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds the complete bridge configuration
type Config struct {
	// Server identity reported to MCP clients
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`

	// Language selects the language server; one per process
	Language string `yaml:"language" json:"language"`

	// RootDir is the workspace root. Empty means the working directory
	RootDir string `yaml:"root_dir,omitempty" json:"root_dir,omitempty"`

	// Logging configuration
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	StartupTimeout time.Duration `yaml:"startup_timeout" json:"startup_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Server replaces the built-in language server command
	Server *ServerOverride `yaml:"server,omitempty" json:"server,omitempty"`

	Tools ToolsConfig `yaml:"tools" json:"tools"`
}

// ServerOverride describes a custom language server command
type ServerOverride struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// ToolsConfig holds tool naming and filtering
type ToolsConfig struct {
	Namespace string   `yaml:"namespace" json:"namespace"`
	Disabled  []string `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// ConfigError reports an invalid configuration field
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

// configAlias has Config's fields without its JSON methods
type configAlias Config

// jsonDuration reads "30s" style strings or nanosecond numbers and writes strings
type jsonDuration time.Duration

func (d jsonDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	switch v := value.(type) {
	case float64:
		*d = jsonDuration(time.Duration(v))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = jsonDuration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// MarshalJSON writes timeouts as duration strings, matching the YAML form
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		configAlias
		StartupTimeout jsonDuration `json:"startup_timeout"`
		RequestTimeout jsonDuration `json:"request_timeout"`
	}{
		configAlias:    configAlias(c),
		StartupTimeout: jsonDuration(c.StartupTimeout),
		RequestTimeout: jsonDuration(c.RequestTimeout),
	})
}

// UnmarshalJSON accepts timeouts as duration strings or nanoseconds
func (c *Config) UnmarshalJSON(data []byte) error {
	aux := struct {
		*configAlias
		StartupTimeout jsonDuration `json:"startup_timeout"`
		RequestTimeout jsonDuration `json:"request_timeout"`
	}{
		configAlias:    (*configAlias)(c),
		StartupTimeout: jsonDuration(c.StartupTimeout),
		RequestTimeout: jsonDuration(c.RequestTimeout),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.StartupTimeout = time.Duration(aux.StartupTimeout)
	c.RequestTimeout = time.Duration(aux.RequestTimeout)
	return nil
}

var (
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}
	validLogFormats = []string{"auto", "console", "json"}
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Name:           "LSP MCP Server",
		Version:        "1.0.0",
		Language:       "python",
		LogLevel:       "info",
		LogFormat:      "auto",
		StartupTimeout: 30 * time.Second,
		RequestTimeout: 30 * time.Second,
		Tools: ToolsConfig{
			Namespace: "lsp_",
		},
	}
}

// LoadConfig loads configuration from a file over the defaults
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	ext := filepath.Ext(configPath)

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return config, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config *Config, configPath string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	ext := filepath.Ext(configPath)
	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML config: %w", err)
		}
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration and fills RootDir from the working
// directory when it is empty
func (c *Config) Validate() error {
	if c.Name == "" {
		return &ConfigError{Field: "name", Message: "application name is required"}
	}
	if c.Version == "" {
		return &ConfigError{Field: "version", Message: "application version is required"}
	}
	if strings.TrimSpace(c.Language) == "" {
		return &ConfigError{Field: "language", Message: "language is required"}
	}

	if !contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return &ConfigError{Field: "log_level", Message: fmt.Sprintf("unknown level %q (valid: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))}
	}
	if !contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		return &ConfigError{Field: "log_format", Message: fmt.Sprintf("unknown format %q (valid: %s)", c.LogFormat, strings.Join(validLogFormats, ", "))}
	}

	if c.StartupTimeout <= 0 {
		return &ConfigError{Field: "startup_timeout", Message: "must be positive"}
	}
	if c.RequestTimeout <= 0 {
		return &ConfigError{Field: "request_timeout", Message: "must be positive"}
	}

	if c.Server != nil && strings.TrimSpace(c.Server.Command) == "" {
		return &ConfigError{Field: "server.command", Message: "command is required when server is set"}
	}
	if c.Tools.Namespace == "" {
		return &ConfigError{Field: "tools.namespace", Message: "namespace is required"}
	}

	if c.RootDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		c.RootDir = wd
	}

	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
