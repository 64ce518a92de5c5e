// Package tools holds the catalogue of capabilities offered to the reasoning
// service and executes the calls it requests.
//
// A [Registry] is populated once at startup, with in-process tools via
// [Registry.Register] and with the tool catalogues of external MCP servers via
// [Registry.RegisterServer]. After that it is only read: [Registry.Execute] is
// safe for any number of concurrent scoring requests.
//
// Execute never lets a malformed call reach a handler. Every call is checked
// in three steps, each with its own error type:
//
//  1. the tool must exist ([UnknownToolError]);
//  2. the arguments must be a JSON object satisfying the tool's parameter
//     schema ([InvalidArgumentsError]);
//  3. the handler must finish without error inside its timeout
//     ([ToolExecutionError]).
//
// Typical usage:
//
//	reg := tools.New(tools.WithDefaultTimeout(5 * time.Second))
//	if err := reg.Register(leadscoring.Tool()); err != nil {
//	    return err
//	}
//	defer reg.Close()
//
//	msg, err := reg.Execute(ctx, call)
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/MrWong99/leadscore/internal/observe"
	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

const (
	// defaultTimeout bounds a tool execution when neither the tool nor the
	// registry configures one.
	defaultTimeout = 10 * time.Second

	// suggestionThreshold is the minimum Jaro-Winkler similarity for an
	// unknown tool name to be answered with a "did you mean" suggestion.
	suggestionThreshold = 0.8
)

// entry is a registered tool with its compiled schema.
type entry struct {
	tool       Tool
	schema     *gojsonschema.Schema
	serverName string
}

// Registry is the tool catalogue and executor.
//
// The zero value is NOT usable; create instances with [New].
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]entry
	servers map[string]*mcpsdk.ClientSession

	client         *mcpsdk.Client
	defaultTimeout time.Duration
	metrics        *observe.Metrics
}

// Option configures a [Registry].
type Option func(*Registry)

// WithDefaultTimeout sets the timeout applied to tools that do not declare
// their own. Non-positive values are ignored.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithMetrics records tool executions into m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates an empty [Registry].
func New(opts ...Option) *Registry {
	r := &Registry{
		tools:          make(map[string]entry),
		servers:        make(map[string]*mcpsdk.ClientSession),
		defaultTimeout: defaultTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	r.client = mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "leadscore-tools", Version: "1.0.0"},
		nil,
	)
	return r
}

// Register adds t to the catalogue. A tool with the same name is replaced;
// the last registration wins.
//
// Register returns an error when the name is empty, the handler is nil, or
// the parameter schema does not compile.
func (r *Registry) Register(t Tool) error {
	return r.register(t, "")
}

func (r *Registry) register(t Tool, serverName string) error {
	name := t.Definition.Name
	if name == "" {
		return fmt.Errorf("tools: tool must have a non-empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: tool %q must have a non-nil handler", name)
	}

	schema, err := compileSchema(t.Definition.Parameters)
	if err != nil {
		return fmt.Errorf("tools: tool %q: invalid parameter schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.tools[name]; ok {
		slog.Debug("tool registration replaced",
			"tool", name,
			"previous_server", prev.serverName,
			"server", serverName,
		)
	}
	r.tools[name] = entry{tool: t, schema: schema, serverName: serverName}
	return nil
}

// compileSchema compiles a JSON Schema given as a decoded map. A nil schema
// accepts any object. A "$schema" dialect marker is ignored: remote servers
// advertise newer drafts than the validator knows, and the keywords tool
// schemas use are common to all of them.
func compileSchema(params map[string]any) (*gojsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	if _, ok := params["$schema"]; ok {
		stripped := make(map[string]any, len(params))
		for k, v := range params {
			if k != "$schema" {
				stripped[k] = v
			}
		}
		params = stripped
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
}

// Definitions returns the descriptors of all registered tools sorted by name.
// The result is a copy and may be modified by the caller.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, e.tool.Definition)
	}
	r.mu.RUnlock()

	slices.SortFunc(defs, func(a, b llm.ToolDefinition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the tool requested by call and returns the tool-result message
// bound to call.ID. Errors are one of [*UnknownToolError],
// [*InvalidArgumentsError] or [*ToolExecutionError].
//
// Execute is safe for concurrent use.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (llm.Message, error) {
	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		r.metrics.RecordToolCall(ctx, call.Name, "unknown", 0)
		return llm.Message{}, &UnknownToolError{Name: call.Name, Suggestion: r.suggest(call.Name)}
	}

	args, err := validateArguments(e, call.Arguments)
	if err != nil {
		r.metrics.RecordToolCall(ctx, call.Name, "invalid_arguments", 0)
		return llm.Message{}, err
	}

	ctx, span := observe.StartSpan(ctx, "tool.execute")
	defer span.End()

	start := time.Now()
	output, err := r.run(ctx, e, args)
	elapsed := time.Since(start)

	if err != nil {
		err = &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
		observe.EndSpan(span, err)
		r.metrics.RecordToolCall(ctx, call.Name, "error", elapsed.Seconds())
		observe.Logger(ctx).Warn("tool execution failed",
			"tool", call.Name,
			"call_id", call.ID,
			"duration", elapsed,
			"err", err,
		)
		return llm.Message{}, err
	}

	r.metrics.RecordToolCall(ctx, call.Name, "ok", elapsed.Seconds())
	observe.Logger(ctx).Debug("tool executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration", elapsed,
	)
	return llm.Message{
		Role:       llm.RoleTool,
		Name:       call.Name,
		ToolCallID: call.ID,
		Content:    output,
	}, nil
}

// validateArguments checks that raw is a JSON object satisfying the tool's
// schema and returns the arguments to pass to the handler. An empty string
// is treated as "{}".
func validateArguments(e entry, raw string) (string, error) {
	name := e.tool.Definition.Name
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		problem := "arguments must be a JSON object"
		if err != nil {
			problem += ": " + err.Error()
		}
		return "", &InvalidArgumentsError{Tool: name, Problems: []string{problem}}
	}

	result, err := e.schema.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return "", &InvalidArgumentsError{Tool: name, Problems: []string{err.Error()}}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			problems = append(problems, re.String())
		}
		return "", &InvalidArgumentsError{Tool: name, Problems: problems}
	}
	return raw, nil
}

// run executes the handler under the tool's timeout. A handler that ignores
// its context is abandoned once the deadline passes; its result is dropped.
func (r *Registry) run(ctx context.Context, e entry, args string) (string, error) {
	timeout := r.timeoutFor(e.tool)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", p)}
			}
		}()
		out, err := e.tool.Handler(ctx, args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
		}
		return "", ctx.Err()
	}
}

// timeoutFor resolves the execution timeout of t.
func (r *Registry) timeoutFor(t Tool) time.Duration {
	switch {
	case t.Timeout > 0:
		return t.Timeout
	case t.Definition.MaxDurationMs > 0:
		return time.Duration(t.Definition.MaxDurationMs) * time.Millisecond
	default:
		return r.defaultTimeout
	}
}

// suggest returns the registered tool name most similar to name, or "" when
// none reaches [suggestionThreshold].
func (r *Registry) suggest(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best, bestScore := "", 0.0
	for candidate := range r.tools {
		score := matchr.JaroWinkler(strings.ToLower(name), strings.ToLower(candidate), false)
		if score > bestScore || (score == bestScore && candidate < best) {
			best, bestScore = candidate, score
		}
	}
	if bestScore < suggestionThreshold {
		return ""
	}
	return best
}
