package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/leadscore/internal/observe"
	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// echoTool returns a tool that echoes a required "text" argument.
func echoTool(name string) Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        name,
			Description: "echoes text",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required": []any{"text"},
			},
		},
		Handler: func(_ context.Context, args string) (string, error) {
			return "echo:" + args, nil
		},
	}
}

// newTestRegistry returns a registry wired to a ManualReader.
func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	r := New(append([]Option{WithMetrics(m)}, opts...)...)
	t.Cleanup(func() { _ = r.Close() })
	return r, reader
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	tests := []struct {
		name string
		tool Tool
	}{
		{"empty name", Tool{Handler: echoTool("x").Handler}},
		{"nil handler", Tool{Definition: llm.ToolDefinition{Name: "x"}}},
		{"bad schema", Tool{
			Definition: llm.ToolDefinition{Name: "x", Parameters: map[string]any{"type": 42}},
			Handler:    echoTool("x").Handler,
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := r.Register(tc.tool); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after rejected registrations", r.Len())
	}
}

func TestRegister_LastWins(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	first := echoTool("echo")
	second := echoTool("echo")
	second.Handler = func(_ context.Context, _ string) (string, error) { return "second", nil }

	if err := r.Register(first); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(second); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	msg, err := r.Execute(context.Background(), llm.ToolCall{ID: "c1", Name: "echo", Arguments: `{"text":"hi"}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if msg.Content != "second" {
		t.Errorf("Content = %q, want %q", msg.Content, "second")
	}
}

func TestDefinitions_SortedCopy(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	for _, n := range []string{"charlie", "alpha", "bravo"} {
		if err := r.Register(echoTool(n)); err != nil {
			t.Fatal(err)
		}
	}

	defs := r.Definitions()
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	if got := strings.Join(names, ","); got != "alpha,bravo,charlie" {
		t.Errorf("names = %s, want alpha,bravo,charlie", got)
	}

	defs[0].Name = "mutated"
	if r.Definitions()[0].Name != "alpha" {
		t.Error("Definitions must return a copy")
	}
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()
	r, reader := newTestRegistry(t)
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatal(err)
	}

	msg, err := r.Execute(context.Background(), llm.ToolCall{ID: "call_1", Name: "echo", Arguments: `{"text":"hi"}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := llm.Message{Role: llm.RoleTool, Name: "echo", ToolCallID: "call_1", Content: `echo:{"text":"hi"}`}
	if msg.Role != want.Role || msg.Name != want.Name || msg.ToolCallID != want.ToolCallID || msg.Content != want.Content {
		t.Errorf("msg = %+v, want %+v", msg, want)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !hasCounterPoint(rm, "leadscore.tool.calls", "status", "ok") {
		t.Error("missing tool.calls{status=ok} data point")
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	if err := r.Register(echoTool("Lead_Scoring")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name           string
		call           string
		wantSuggestion string
	}{
		{"close typo", "Lead_Scorng", "Lead_Scoring"},
		{"case differs", "lead_scoring", "Lead_Scoring"},
		{"unrelated", "send_email", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Execute(context.Background(), llm.ToolCall{ID: "c", Name: tc.call, Arguments: "{}"})
			var ute *UnknownToolError
			if !errors.As(err, &ute) {
				t.Fatalf("err = %v, want *UnknownToolError", err)
			}
			if ute.Name != tc.call {
				t.Errorf("Name = %q, want %q", ute.Name, tc.call)
			}
			if ute.Suggestion != tc.wantSuggestion {
				t.Errorf("Suggestion = %q, want %q", ute.Suggestion, tc.wantSuggestion)
			}
		})
	}
}

func TestExecute_InvalidArgumentsSkipsHandler(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	var called bool
	tool := echoTool("echo")
	tool.Handler = func(_ context.Context, _ string) (string, error) {
		called = true
		return "", nil
	}
	if err := r.Register(tool); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args string
	}{
		{"malformed json", `{"text":`},
		{"array", `["hi"]`},
		{"null", `null`},
		{"missing required", `{}`},
		{"wrong type", `{"text":5}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Execute(context.Background(), llm.ToolCall{ID: "c", Name: "echo", Arguments: tc.args})
			var iae *InvalidArgumentsError
			if !errors.As(err, &iae) {
				t.Fatalf("err = %v, want *InvalidArgumentsError", err)
			}
			if len(iae.Problems) == 0 {
				t.Error("expected at least one problem")
			}
		})
	}
	if called {
		t.Error("handler must not run for invalid arguments")
	}
}

func TestExecute_EmptyArgumentsAreEmptyObject(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	var got string
	if err := r.Register(Tool{
		Definition: llm.ToolDefinition{Name: "ping"},
		Handler: func(_ context.Context, args string) (string, error) {
			got = args
			return "pong", nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Execute(context.Background(), llm.ToolCall{ID: "c", Name: "ping"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "{}" {
		t.Errorf("handler args = %q, want {}", got)
	}
}

func TestExecute_HandlerError(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	boom := errors.New("boom")
	if err := r.Register(Tool{
		Definition: llm.ToolDefinition{Name: "fail"},
		Handler:    func(_ context.Context, _ string) (string, error) { return "", boom },
	}); err != nil {
		t.Fatal(err)
	}

	_, err := r.Execute(context.Background(), llm.ToolCall{ID: "call_9", Name: "fail", Arguments: "{}"})
	var tee *ToolExecutionError
	if !errors.As(err, &tee) {
		t.Fatalf("err = %v, want *ToolExecutionError", err)
	}
	if tee.Tool != "fail" || tee.CallID != "call_9" {
		t.Errorf("ToolExecutionError = %+v", tee)
	}
	if !errors.Is(err, boom) {
		t.Error("ToolExecutionError must unwrap to the handler error")
	}
}

func TestExecute_HandlerPanic(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	if err := r.Register(Tool{
		Definition: llm.ToolDefinition{Name: "panic"},
		Handler:    func(_ context.Context, _ string) (string, error) { panic("kaboom") },
	}); err != nil {
		t.Fatal(err)
	}

	_, err := r.Execute(context.Background(), llm.ToolCall{ID: "c", Name: "panic", Arguments: "{}"})
	var tee *ToolExecutionError
	if !errors.As(err, &tee) {
		t.Fatalf("err = %v, want *ToolExecutionError", err)
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("error %q should mention the panic value", err)
	}
}

func TestExecute_Timeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
		tool Tool
	}{
		{
			name: "tool timeout",
			tool: Tool{Definition: llm.ToolDefinition{Name: "slow"}, Timeout: 20 * time.Millisecond},
		},
		{
			name: "declared max duration",
			tool: Tool{Definition: llm.ToolDefinition{Name: "slow", MaxDurationMs: 20}},
		},
		{
			name: "registry default",
			opts: []Option{WithDefaultTimeout(20 * time.Millisecond)},
			tool: Tool{Definition: llm.ToolDefinition{Name: "slow"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, _ := newTestRegistry(t, tc.opts...)

			release := make(chan struct{})
			t.Cleanup(func() { close(release) })
			tool := tc.tool
			// Ignores its context on purpose: the registry must still return.
			tool.Handler = func(_ context.Context, _ string) (string, error) {
				<-release
				return "late", nil
			}
			if err := r.Register(tool); err != nil {
				t.Fatal(err)
			}

			start := time.Now()
			_, err := r.Execute(context.Background(), llm.ToolCall{ID: "c", Name: "slow", Arguments: "{}"})
			if time.Since(start) > 2*time.Second {
				t.Fatal("Execute did not honour the timeout")
			}
			var tee *ToolExecutionError
			if !errors.As(err, &tee) {
				t.Fatalf("err = %v, want *ToolExecutionError", err)
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("err = %v, want wrapping context.DeadlineExceeded", err)
			}
		})
	}
}

func TestExecute_Concurrent(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "c" + string(rune('a'+i%26))
			msg, err := r.Execute(context.Background(), llm.ToolCall{ID: id, Name: "echo", Arguments: `{"text":"x"}`})
			if err != nil {
				errs <- err
				return
			}
			if msg.ToolCallID != id {
				errs <- errors.New("result bound to wrong call: " + msg.ToolCallID)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// hasCounterPoint reports whether the named int64 sum has a data point with
// attribute key=value.
func hasCounterPoint(rm metricdata.ResourceMetrics, name, key, value string) bool {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return false
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					return true
				}
			}
		}
	}
	return false
}
