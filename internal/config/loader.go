package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/leadscore/internal/agent"
	"github.com/MrWong99/leadscore/internal/tools"
)

// ValidProviderNames lists known reasoning backends.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Environment variables consulted by [ApplyEnv].
const (
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvModel     = "LEADSCORE_MODEL"
	EnvPort      = "PORT"
	EnvLogLevel  = "LEADSCORE_LOG_LEVEL"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Info("config file not found; using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
	}

	cfg, err := parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Defaults] and validates
// the result. Environment overrides are not applied.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, nil)
}

// parse decodes data over the defaults, applies environment overrides when
// lookup is non-nil, and validates.
func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if lookup != nil {
		ApplyEnv(cfg, lookup)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with values from the environment. lookup is usually
// [os.LookupEnv]. Empty variables are ignored.
//
//   - OPENAI_API_KEY fills provider.api_key when the provider is openai and
//     no key is configured.
//   - LEADSCORE_MODEL replaces provider.model.
//   - PORT replaces server.listen_addr with ":<PORT>".
//   - LEADSCORE_LOG_LEVEL replaces server.log_level.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	if v := get(EnvOpenAIKey); v != "" && cfg.Provider.Name == "openai" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := get(EnvModel); v != "" {
		cfg.Provider.Model = v
	}
	if v := get(EnvPort); v != "" {
		cfg.Server.ListenAddr = ":" + v
	}
	if v := get(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Provider
	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else {
		validateProviderName(cfg.Provider.Name)
	}
	if cfg.Provider.Model == "" {
		errs = append(errs, errors.New("provider.model is required"))
	}
	if cfg.Provider.Timeout < 0 {
		errs = append(errs, fmt.Errorf("provider.timeout %s must not be negative", cfg.Provider.Timeout))
	}
	if cfg.Provider.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("provider.max_tokens %d must not be negative", cfg.Provider.MaxTokens))
	}
	if cfg.Provider.Name == "openai" && cfg.Provider.APIKey == "" && cfg.Provider.BaseURL == "" {
		slog.Warn("provider.api_key is empty; requests to OpenAI will be rejected", "env", EnvOpenAIKey)
	}

	// Agent
	if cfg.Agent.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be at least 1, got %d", cfg.Agent.MaxIterations))
	}
	if cfg.Agent.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("agent.tool_timeout %s must not be negative", cfg.Agent.ToolTimeout))
	}
	if _, err := agent.ParseToolErrorPolicy(cfg.Agent.ToolErrors); err != nil {
		errs = append(errs, fmt.Errorf("agent.tool_errors %q is invalid; valid values: abort, report", cfg.Agent.ToolErrors))
	}

	// Breaker
	if cfg.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("breaker.max_failures %d must not be negative", cfg.Breaker.MaxFailures))
	}
	if cfg.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("breaker.reset_timeout %s must not be negative", cfg.Breaker.ResetTimeout))
	}

	// MCP servers
	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == tools.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == tools.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not in [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
