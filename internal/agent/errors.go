package agent

import "fmt"

// ReasoningServiceError reports that an inference step failed: the provider
// was unreachable, rejected the request, timed out, or returned a malformed
// response. The loop never retries it.
type ReasoningServiceError struct {
	Err error
}

func (e *ReasoningServiceError) Error() string {
	return "agent: reasoning service: " + e.Err.Error()
}

func (e *ReasoningServiceError) Unwrap() error { return e.Err }

// LoopLimitExceededError is returned when a run would need more reasoning
// steps than the configured ceiling.
type LoopLimitExceededError struct {
	Limit int
}

func (e *LoopLimitExceededError) Error() string {
	return fmt.Sprintf("agent: loop limit exceeded: no final answer after %d reasoning steps", e.Limit)
}
