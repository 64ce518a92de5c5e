package health

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrWong99/leadscore/internal/resilience"
	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// ProviderCheck fails when the configured model cannot call tools. The
// scoring agent gathers lead data exclusively through tool calls, so such a
// model would answer every request without evidence.
func ProviderCheck(name, model string, caps func() llm.ModelCapabilities) Checker {
	return Checker{
		Name: "provider",
		Check: func(_ context.Context) (string, error) {
			detail := name + "/" + model
			if caps == nil {
				return detail, fmt.Errorf("provider %q not configured", name)
			}
			if !caps().SupportsToolCalling {
				return detail, fmt.Errorf("model %q does not support tool calling", model)
			}
			return detail, nil
		},
	}
}

// BreakerCheck reports the state of the breaker guarding the reasoning
// provider and fails while it is open. Half-open counts as ready, since the
// breaker only recovers if trial requests reach it.
func BreakerCheck(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "breaker",
		Check: func(_ context.Context) (string, error) {
			st := cb.State()
			if st == resilience.StateOpen {
				return st.String(), errors.New("circuit open")
			}
			return st.String(), nil
		},
	}
}

// ToolsCheck fails when count reports no registered tools.
func ToolsCheck(count func() int) Checker {
	return Checker{
		Name: "tools",
		Check: func(_ context.Context) (string, error) {
			n := count()
			if n == 0 {
				return "0", errors.New("no tools registered")
			}
			return strconv.Itoa(n), nil
		},
	}
}
