// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the agent sends correct
// CompletionRequests and to feed controlled responses without a live LLM backend.
// All fields are safe to set before calling any method; mutating them during a
// concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Script: []mock.Step{
//	        {Response: &llm.CompletionResponse{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "Lead_Scoring"}}}},
//	        {Response: &llm.CompletionResponse{Content: "Warm"}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete. Messages are copied so
	// later mutation by the caller does not affect the record.
	Req llm.CompletionRequest
}

// Step is one scripted reply of the mock.
type Step struct {
	Response *llm.CompletionResponse
	Err      error
}

// Provider is a mock implementation of llm.Provider.
//
// Complete resolves its reply in this order: CompleteFunc when set, otherwise
// the next entry of Script (the last entry repeats once the script is
// exhausted), otherwise CompleteResponse / CompleteErr.
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, when non-nil, fully controls the reply of Complete.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Script is a sequence of replies consumed one per Complete call.
	Script []Step

	// CompleteResponse is returned by Complete when no script is set. May be nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete when no script is set.
	CompleteErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

// Complete records the call and returns the scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	msgs := make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = m.Clone()
	}
	recorded := req
	recorded.Messages = msgs
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: recorded})

	fn := p.CompleteFunc
	var step Step
	switch {
	case fn != nil:
	case len(p.Script) > 0:
		idx := min(p.next, len(p.Script)-1)
		step = p.Script[idx]
		p.next++
	default:
		step = Step{Response: p.CompleteResponse, Err: p.CompleteErr}
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response == nil {
		return nil, nil
	}
	cp := *step.Response
	return &cp, nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a snapshot of the recorded Complete calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls and rewinds the script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
