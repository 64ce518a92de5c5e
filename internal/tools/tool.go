package tools

import (
	"context"
	"time"

	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// Handler executes a tool. args is the JSON object string emitted by the
// model, already validated against the tool's parameter schema. The returned
// string becomes the content of the tool-result message.
type Handler func(ctx context.Context, args string) (string, error)

// Tool is a named capability that can be offered to the reasoning service.
type Tool struct {
	// Definition is the descriptor presented to the model. Definition.Parameters
	// must be a JSON Schema object; nil means "any object".
	Definition llm.ToolDefinition

	// Handler runs the tool. Required.
	Handler Handler

	// Timeout bounds a single execution. Zero falls back to
	// Definition.MaxDurationMs and then to the registry default.
	Timeout time.Duration
}

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP tool server.
type ServerConfig struct {
	// Name identifies the server in logs and errors. Must be unique within a
	// [Registry].
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable and its arguments, split on whitespace, used
	// with [TransportStdio].
	Command string

	// URL is the endpoint used with [TransportStreamableHTTP].
	URL string

	// Env holds additional environment variables for the stdio subprocess.
	Env map[string]string
}
