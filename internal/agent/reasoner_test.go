package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/leadscore/pkg/provider/llm"
	"github.com/MrWong99/leadscore/pkg/provider/llm/mock"
)

func TestLLMReasoner_BuildsRequest(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hot"}}
	defs := []llm.ToolDefinition{{Name: "Lead_Scoring"}}
	r := NewLLMReasoner(p, defs,
		WithReasonerMetrics(testMetrics(t)),
		WithTemperature(0.2),
		WithMaxTokens(64),
	)
	// Mutating the caller's slice must not change the bound tools.
	defs[0].Name = "mutated"

	msgs := seedMessages()
	msg, err := r.Infer(context.Background(), msgs)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if msg.Role != llm.RoleAssistant || msg.Content != "Hot" {
		t.Errorf("msg = %+v", msg)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if len(req.Messages) != len(msgs) {
		t.Errorf("request messages = %d, want %d", len(req.Messages), len(msgs))
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "Lead_Scoring" {
		t.Errorf("request tools = %+v", req.Tools)
	}
	if req.Temperature != 0.2 || req.MaxTokens != 64 {
		t.Errorf("temperature/max tokens = %v/%d", req.Temperature, req.MaxTokens)
	}
	if _, ok := calls[0].Ctx.Deadline(); !ok {
		t.Error("inference context must carry a deadline")
	}
}

func TestLLMReasoner_ToolCallIDs(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{ToolCalls: []llm.ToolCall{
		{ID: "call_keep", Name: "A", Arguments: "{}"},
		{Name: "B", Arguments: `{"x":1}`},
		{Name: "B", Arguments: `{"x":2}`},
	}}}
	r := NewLLMReasoner(p, nil, WithReasonerMetrics(testMetrics(t)))

	msg, err := r.Infer(context.Background(), seedMessages())
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(msg.ToolCalls) != 3 {
		t.Fatalf("tool calls = %d, want 3", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].ID != "call_keep" {
		t.Errorf("provider ID replaced: %q", msg.ToolCalls[0].ID)
	}
	for i, tc := range msg.ToolCalls[1:] {
		if !strings.HasPrefix(tc.ID, "call_") || len(tc.ID) <= len("call_") {
			t.Errorf("call %d: synthesised ID = %q", i+1, tc.ID)
		}
	}
	if msg.ToolCalls[1].ID == msg.ToolCalls[2].ID {
		t.Error("synthesised IDs must be unique")
	}
	if msg.ToolCalls[2].Arguments != `{"x":2}` {
		t.Errorf("arguments changed: %q", msg.ToolCalls[2].Arguments)
	}
}

func TestLLMReasoner_Errors(t *testing.T) {
	t.Parallel()
	providerErr := errors.New("connection reset")

	tests := []struct {
		name    string
		p       *mock.Provider
		wantErr error
	}{
		{"provider error", &mock.Provider{CompleteErr: providerErr}, providerErr},
		{"nil response", &mock.Provider{}, errNilResponse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewLLMReasoner(tc.p, nil, WithReasonerMetrics(testMetrics(t)))
			_, err := r.Infer(context.Background(), seedMessages())
			var rse *ReasoningServiceError
			if !errors.As(err, &rse) {
				t.Fatalf("err = %v, want *ReasoningServiceError", err)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want wrapping %v", err, tc.wantErr)
			}
		})
	}
}
