// Package leadscoring provides the Lead_Scoring tool. The tool does not score
// anything itself: it normalises the lead fields the model extracted from the
// request into a fixed "Lead Info" block the model then classifies.
package leadscoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrWong99/leadscore/internal/tools"
	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// Name is the tool name advertised to the reasoning service.
const Name = "Lead_Scoring"

// Lead holds the fields the tool accepts.
type Lead struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Company    string `json:"company"`
	Role       string `json:"role"`
	Budget     string `json:"budget"`
	PainPoints string `json:"painPoints"`
}

// Format renders l as the block returned to the model.
func (l Lead) Format() string {
	return fmt.Sprintf("Lead Info:\n- Name: %s\n- Email: %s\n- Company: %s\n- Role: %s\n- Budget: %s\n- Pain Points: %s",
		l.Name, l.Email, l.Company, l.Role, l.Budget, l.PainPoints)
}

// Definition returns the tool descriptor with its JSON Schema.
func Definition() llm.ToolDefinition {
	field := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return llm.ToolDefinition{
		Name:        Name,
		Description: "Scores lead based on given data",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":       field("name of the lead"),
				"email":      field("email of the lead"),
				"company":    field("company where the lead works"),
				"role":       field("role of the lead in the company"),
				"budget":     field("budget of the company"),
				"painPoints": field("pain points of the company"),
			},
			"required": []any{"name", "email", "company", "role", "budget", "painPoints"},
		},
		MaxDurationMs: 1000,
	}
}

// Tool returns the Lead_Scoring tool ready for [tools.Registry.Register].
func Tool() tools.Tool {
	return tools.Tool{
		Definition: Definition(),
		Handler:    handle,
		Timeout:    time.Second,
	}
}

func handle(_ context.Context, args string) (string, error) {
	var l Lead
	if err := json.Unmarshal([]byte(args), &l); err != nil {
		return "", fmt.Errorf("leadscoring: decode arguments: %w", err)
	}
	return l.Format(), nil
}
