// Package config provides the configuration schema, loader, file watcher, and
// provider registry for the lead scoring service.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/leadscore/internal/tools"
)

// LogLevel controls log verbosity for the service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to its [slog.Level]. Unknown and empty levels map to
// [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Provider ProviderEntry `yaml:"provider"`
	Agent    AgentConfig   `yaml:"agent"`
	Breaker  BreakerConfig `yaml:"breaker"`
	MCP      MCPConfig     `yaml:"mcp"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server binds to (e.g., ":3000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets the minimum log level. Changes are applied without restart.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProviderEntry is the configuration for the reasoning service backend.
type ProviderEntry struct {
	// Name selects the backend implementation (e.g., "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key, if the backend requires one.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default API endpoint. Useful for self-hosted
	// or compatible gateways.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model.
	Model string `yaml:"model"`

	// Timeout bounds one reasoning call.
	Timeout time.Duration `yaml:"timeout"`

	// Temperature is the sampling temperature. Zero leaves the backend
	// default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps completion tokens per call. Zero means backend default.
	MaxTokens int `yaml:"max_tokens"`

	// Options holds backend-specific settings not covered above.
	Options map[string]any `yaml:"options"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	// MaxIterations is the reasoning-step ceiling of a single run.
	MaxIterations int `yaml:"max_iterations"`

	// ToolTimeout bounds tools that do not declare their own limit.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// ToolErrors is "abort" or "report".
	ToolErrors string `yaml:"tool_errors"`

	// ParallelTools executes the calls of one step concurrently.
	ParallelTools bool `yaml:"parallel_tools"`
}

// BreakerConfig tunes the circuit breaker in front of the reasoning service.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// MCPConfig lists external tool servers.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes one MCP server whose tools are imported into the
// tool registry at startup.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport tools.Transport   `yaml:"transport"`
	Command   string            `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// Defaults returns the configuration used for every field a file leaves out.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":3000",
			LogLevel:        LogInfo,
			ShutdownTimeout: 15 * time.Second,
		},
		Provider: ProviderEntry{
			Name:    "openai",
			Model:   "o4-mini-2025-04-16",
			Timeout: 60 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations: 8,
			ToolTimeout:   10 * time.Second,
			ToolErrors:    "abort",
		},
		Breaker: BreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
	}
}

// ToolServers converts the MCP server list for [tools.Registry.RegisterServer].
func (c *Config) ToolServers() []tools.ServerConfig {
	out := make([]tools.ServerConfig, 0, len(c.MCP.Servers))
	for _, s := range c.MCP.Servers {
		out = append(out, tools.ServerConfig{
			Name:      s.Name,
			Transport: s.Transport,
			Command:   s.Command,
			URL:       s.URL,
			Env:       s.Env,
		})
	}
	return out
}
