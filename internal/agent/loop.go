package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/leadscore/internal/observe"
	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// defaultMaxIterations is the reasoning-step ceiling applied when none is
// configured.
const defaultMaxIterations = 8

// ToolErrorPolicy decides what a failed tool call does to a run. A loop uses
// exactly one policy for all of its runs.
type ToolErrorPolicy int

const (
	// ToolErrorsAbort fails the run on the first tool error.
	ToolErrorsAbort ToolErrorPolicy = iota

	// ToolErrorsReport turns each failed call into a tool-result message
	// "error: <message>" bound to the call ID and lets the reasoning service
	// decide how to proceed. Tool timeouts are reported the same way.
	ToolErrorsReport
)

// String returns the configuration name of the policy.
func (p ToolErrorPolicy) String() string {
	switch p {
	case ToolErrorsAbort:
		return "abort"
	case ToolErrorsReport:
		return "report"
	default:
		return "unknown"
	}
}

// ParseToolErrorPolicy maps a configuration value to a policy. The empty
// string selects [ToolErrorsAbort].
func ParseToolErrorPolicy(s string) (ToolErrorPolicy, error) {
	switch s {
	case "", "abort":
		return ToolErrorsAbort, nil
	case "report":
		return ToolErrorsReport, nil
	default:
		return 0, fmt.Errorf("agent: unknown tool error policy %q", s)
	}
}

// Result is the outcome of a successful run.
type Result struct {
	// Classification is the trimmed content of the final assistant message.
	Classification string

	// Messages is the full conversation, seed included.
	Messages []llm.Message

	// Iterations is the number of reasoning steps taken.
	Iterations int
}

// Loop is the orchestration state machine. It is immutable after
// construction and safe for concurrent use.
type Loop struct {
	reasoner      Reasoner
	executor      Executor
	maxIterations int
	policy        ToolErrorPolicy
	parallel      bool
	metrics       *observe.Metrics
}

// LoopOption configures a [Loop].
type LoopOption func(*Loop)

// WithMaxIterations sets the reasoning-step ceiling. Default: 8.
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) { l.maxIterations = n }
}

// WithToolErrorPolicy selects how tool failures are handled. Default:
// [ToolErrorsAbort].
func WithToolErrorPolicy(p ToolErrorPolicy) LoopOption {
	return func(l *Loop) { l.policy = p }
}

// WithParallelTools runs the tool calls of one assistant message
// concurrently. Results are still appended in request order.
func WithParallelTools(enabled bool) LoopOption {
	return func(l *Loop) { l.parallel = enabled }
}

// WithMetrics records run metrics into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// NewLoop returns a [Loop] using reasoner for inference and executor for
// tool calls. It returns an error when the options are inconsistent.
func NewLoop(reasoner Reasoner, executor Executor, opts ...LoopOption) (*Loop, error) {
	if reasoner == nil {
		return nil, errors.New("agent: reasoner is required")
	}
	if executor == nil {
		return nil, errors.New("agent: executor is required")
	}
	l := &Loop{
		reasoner:      reasoner,
		executor:      executor,
		maxIterations: defaultMaxIterations,
		policy:        ToolErrorsAbort,
	}
	for _, o := range opts {
		o(l)
	}
	if l.maxIterations < 1 {
		return nil, fmt.Errorf("agent: max iterations must be at least 1, got %d", l.maxIterations)
	}
	if l.policy != ToolErrorsAbort && l.policy != ToolErrorsReport {
		return nil, fmt.Errorf("agent: invalid tool error policy %d", l.policy)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l, nil
}

// Run drives one conversation from seed to a final answer.
//
// The machine starts in [StateReasoning]. After every inference [Route]
// decides between [StateDispatching] and [StateDone]; after dispatching the
// machine always returns to [StateReasoning]. Before the (max+1)-th
// inference the run stops with [*LoopLimitExceededError].
//
// On error no partial result is returned.
func (l *Loop) Run(ctx context.Context, seed []llm.Message) (res *Result, err error) {
	ctx, span := observe.StartSpan(ctx, "agent.run")
	l.metrics.ActiveRuns.Add(ctx, 1)

	conv := NewConversation(seed...)
	iterations := 0
	defer func() {
		l.metrics.ActiveRuns.Add(ctx, -1)
		l.metrics.LoopIterations.Record(ctx, int64(iterations))
		span.SetAttributes(attribute.Int("iterations", iterations))
		observe.EndSpan(span, err)
	}()

	log := observe.Logger(ctx)
	state := StateReasoning
	for {
		if cerr := ctx.Err(); cerr != nil {
			return nil, fmt.Errorf("agent: run aborted in %s: %w", state, cerr)
		}

		switch state {
		case StateReasoning:
			if iterations >= l.maxIterations {
				return nil, &LoopLimitExceededError{Limit: l.maxIterations}
			}
			iterations++

			msg, err := l.reasoner.Infer(ctx, conv.Messages())
			if err != nil {
				return nil, err
			}
			if msg.Role == "" {
				msg.Role = llm.RoleAssistant
			}
			conv.Append(msg)

			if Route(conv.msgs) == Continue {
				state = StateDispatching
			} else {
				state = StateDone
			}
			log.Debug("reasoning step complete",
				"iteration", iterations,
				"tool_calls", len(msg.ToolCalls),
				"next", state,
			)

		case StateDispatching:
			last, _ := conv.Last()
			results, err := l.dispatch(ctx, last.ToolCalls)
			if err != nil {
				return nil, err
			}
			conv.Append(results...)
			state = StateReasoning

		case StateDone:
			last, _ := conv.Last()
			classification := strings.TrimSpace(last.Content)
			l.metrics.RecordClassification(ctx, classification)
			log.Info("run complete",
				"iterations", iterations,
				"classification", classification,
			)
			return &Result{
				Classification: classification,
				Messages:       conv.Messages(),
				Iterations:     iterations,
			}, nil
		}
	}
}

// dispatch executes calls and returns their tool-result messages in request
// order.
func (l *Loop) dispatch(ctx context.Context, calls []llm.ToolCall) ([]llm.Message, error) {
	results := make([]llm.Message, len(calls))

	if !l.parallel {
		for i, call := range calls {
			msg, err := l.executeOne(ctx, call)
			if err != nil {
				return nil, err
			}
			results[i] = msg
		}
		return results, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		eg.Go(func() error {
			msg, err := l.executeOne(egCtx, call)
			if err != nil {
				return err
			}
			results[i] = msg
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// executeOne runs call and applies the tool error policy.
func (l *Loop) executeOne(ctx context.Context, call llm.ToolCall) (llm.Message, error) {
	msg, err := l.executor.Execute(ctx, call)
	if err == nil {
		return msg, nil
	}
	if l.policy == ToolErrorsAbort {
		return llm.Message{}, fmt.Errorf("agent: tool call %q (%s): %w", call.Name, call.ID, err)
	}

	observe.Logger(ctx).Warn("tool call failed; reporting to reasoning service",
		"tool", call.Name,
		"call_id", call.ID,
		"err", err,
	)
	return llm.Message{
		Role:       llm.RoleTool,
		Name:       call.Name,
		ToolCallID: call.ID,
		Content:    "error: " + err.Error(),
	}, nil
}
