package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// RegisterServer connects to the MCP server described by cfg and registers
// every tool it advertises. Imported tools behave like built-ins: their
// arguments are validated against the advertised input schema and their
// handler forwards to the server's CallTool. A result flagged IsError surfaces
// as a [*ToolExecutionError].
//
// If a server with the same Name is already registered, the old connection is
// closed and its tools are removed before the new catalogue is imported.
func (r *Registry) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("tools: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("tools: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("tools: stdio server %q requires a non-empty command", cfg.Name)
		}
		// The subprocess outlives the registration call, so it must not be
		// bound to ctx.
		cmd := exec.Command(executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("tools: streamable-http server %q requires a non-empty url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	return r.attach(ctx, cfg.Name, transport)
}

// attach connects over transport and imports the server's tool catalogue
// under name.
func (r *Registry) attach(ctx context.Context, name string, transport mcpsdk.Transport) error {
	session, err := r.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: connect to server %q: %w", name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: list tools of server %q: %w", name, err)
		}
		discovered = append(discovered, tool)
	}

	r.mu.Lock()
	if old, ok := r.servers[name]; ok {
		_ = old.Close()
		for toolName, e := range r.tools {
			if e.serverName == name {
				delete(r.tools, toolName)
			}
		}
	}
	r.servers[name] = session
	r.mu.Unlock()

	for _, t := range discovered {
		if err := r.register(remoteTool(session, t), name); err != nil {
			return fmt.Errorf("tools: import from server %q: %w", name, err)
		}
	}
	return nil
}

// remoteTool adapts an MCP tool descriptor into a [Tool] whose handler calls
// the tool on session.
func remoteTool(session *mcpsdk.ClientSession, t *mcpsdk.Tool) Tool {
	name := t.Name
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        name,
			Description: t.Description,
			Parameters:  schemaToMap(t.InputSchema),
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var argsMap map[string]any
			if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
				Name:      name,
				Arguments: argsMap,
			})
			if err != nil {
				return "", fmt.Errorf("call tool: %w", err)
			}
			text := resultText(res)
			if res.IsError {
				return "", errors.New(text)
			}
			return text, nil
		},
	}
}

// resultText concatenates all text content of an MCP tool result.
func resultText(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// Close shuts down all MCP server connections and removes their tools.
// Built-in tools stay registered.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, session := range r.servers {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tools: close server %q: %w", name, err))
		}
		delete(r.servers, name)
	}
	for name, e := range r.tools {
		if e.serverName != "" {
			delete(r.tools, name)
		}
	}
	return errors.Join(errs...)
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
