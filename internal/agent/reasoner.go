package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/leadscore/internal/observe"
	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// defaultReasoningTimeout bounds a single inference call.
const defaultReasoningTimeout = 60 * time.Second

// errNilResponse is reported when a provider returns neither a response nor
// an error.
var errNilResponse = errors.New("provider returned no response")

// LLMReasoner implements [Reasoner] on top of an [llm.Provider]. The tool set
// is bound at construction and offered on every call.
type LLMReasoner struct {
	provider     llm.Provider
	providerName string
	tools        []llm.ToolDefinition
	timeout      time.Duration
	temperature  float64
	maxTokens    int
	metrics      *observe.Metrics
}

// Compile-time interface assertion.
var _ Reasoner = (*LLMReasoner)(nil)

// ReasonerOption configures an [LLMReasoner].
type ReasonerOption func(*LLMReasoner)

// WithReasoningTimeout bounds each inference call. Non-positive values are
// ignored. Default: 60s.
func WithReasoningTimeout(d time.Duration) ReasonerOption {
	return func(r *LLMReasoner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithTemperature sets the sampling temperature. Zero leaves the provider
// default, which reasoning models require.
func WithTemperature(t float64) ReasonerOption {
	return func(r *LLMReasoner) { r.temperature = t }
}

// WithMaxTokens caps completion tokens per inference. Zero means provider
// default.
func WithMaxTokens(n int) ReasonerOption {
	return func(r *LLMReasoner) { r.maxTokens = n }
}

// WithProviderName sets the provider label used in metrics. Default: "llm".
func WithProviderName(name string) ReasonerOption {
	return func(r *LLMReasoner) { r.providerName = name }
}

// WithReasonerMetrics records inference metrics into m instead of
// [observe.DefaultMetrics].
func WithReasonerMetrics(m *observe.Metrics) ReasonerOption {
	return func(r *LLMReasoner) { r.metrics = m }
}

// NewLLMReasoner binds tools to provider. tools is copied.
func NewLLMReasoner(provider llm.Provider, tools []llm.ToolDefinition, opts ...ReasonerOption) *LLMReasoner {
	r := &LLMReasoner{
		provider:     provider,
		providerName: "llm",
		tools:        append([]llm.ToolDefinition(nil), tools...),
		timeout:      defaultReasoningTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Infer sends msgs with the bound tools and returns the assistant message.
// Every failure is reported as a [*ReasoningServiceError]. Tool calls are
// passed through unvalidated; calls without an ID are assigned one so that
// their results can be bound.
func (r *LLMReasoner) Infer(ctx context.Context, msgs []llm.Message) (llm.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "agent.infer")

	req := llm.CompletionRequest{
		Messages:    make([]llm.Message, len(msgs)),
		Tools:       r.tools,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	}
	for i, m := range msgs {
		req.Messages[i] = m.Clone()
	}

	start := time.Now()
	resp, err := r.provider.Complete(ctx, req)
	r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())

	if err == nil && resp == nil {
		err = errNilResponse
	}
	if err != nil {
		kind := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		r.metrics.RecordProviderRequest(ctx, r.providerName, "error")
		r.metrics.RecordProviderError(ctx, r.providerName, kind)
		err = &ReasoningServiceError{Err: err}
		observe.EndSpan(span, err)
		return llm.Message{}, err
	}
	r.metrics.RecordProviderRequest(ctx, r.providerName, "ok")
	observe.EndSpan(span, nil)

	msg := llm.Message{
		Role:    llm.RoleAssistant,
		Content: resp.Content,
	}
	if len(resp.ToolCalls) > 0 {
		msg.ToolCalls = make([]llm.ToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			if tc.ID == "" {
				tc.ID = "call_" + uuid.NewString()
			}
			msg.ToolCalls[i] = tc
		}
	}

	observe.Logger(ctx).Debug("inference complete",
		"provider", r.providerName,
		"tool_calls", len(msg.ToolCalls),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return msg, nil
}
