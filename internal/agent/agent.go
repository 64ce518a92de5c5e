// Package agent drives a single lead-scoring conversation to completion.
//
// The package has three parts:
//
//   - [Reasoner]: one stateless inference step against the reasoning service
//     ([LLMReasoner] adapts an [llm.Provider]).
//   - [Route]: the routing predicate deciding, from the latest message alone,
//     whether tools must run before the next inference.
//   - [Loop]: the orchestration state machine alternating between the two
//     until the reasoning service answers without tool calls.
//
// A [Loop] holds no per-request state and may serve any number of concurrent
// [Loop.Run] calls; each call owns its own [Conversation].
package agent

import (
	"context"

	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// Reasoner performs one inference step: given the conversation so far it
// returns the assistant's next message, which either carries tool calls or a
// final answer. Implementations must not retain msgs.
type Reasoner interface {
	Infer(ctx context.Context, msgs []llm.Message) (llm.Message, error)
}

// Executor runs a single tool call and returns the tool-result message bound
// to call.ID. It is satisfied by *tools.Registry.
type Executor interface {
	Execute(ctx context.Context, call llm.ToolCall) (llm.Message, error)
}

// Decision is the outcome of [Route].
type Decision int

const (
	// Terminate ends the loop; the latest message is the answer.
	Terminate Decision = iota

	// Continue dispatches the tool calls of the latest message.
	Continue
)

// String returns the human-readable name of the decision.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Route inspects only the last message of msgs. An assistant message with at
// least one tool call continues the loop; anything else, including an empty
// assistant reply or an empty conversation, terminates it.
func Route(msgs []llm.Message) Decision {
	if len(msgs) == 0 {
		return Terminate
	}
	if msgs[len(msgs)-1].HasToolCalls() {
		return Continue
	}
	return Terminate
}

// State is a phase of the orchestration state machine.
type State int

const (
	// StateReasoning invokes the reasoner with the full conversation.
	StateReasoning State = iota

	// StateDispatching executes the tool calls of the latest assistant message.
	StateDispatching

	// StateDone is terminal; the run produced a result.
	StateDone
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateReasoning:
		return "reasoning"
	case StateDispatching:
		return "dispatching"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
