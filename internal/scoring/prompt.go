// Package scoring adapts HTTP scoring requests to agent runs: it renders the
// submitted lead into the seed conversation and maps the run outcome back to
// a JSON response.
package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/leadscore/pkg/provider/llm"
)

// SystemPrompt instructs the reasoning service how to classify a lead.
const SystemPrompt = `You are a B2B marketing analyst. Evaluate the following lead and classify it as 'Hot', 'Warm', or 'Cold'.
Rules:
- "Hot" = Decision-maker + Clear pain + Budget present
- "Warm" = Relevant role but missing info
- "Cold" = Generic role or no urgency
Return only one word: Hot, Warm, or Cold.`

// leadPrefix introduces the rendered lead in the user message.
const leadPrefix = "Score this lead based on the following data: "

// ErrNotObject is returned by [RenderLead] for a body that is valid JSON but
// not an object.
var ErrNotObject = errors.New("scoring: lead must be a JSON object")

// braces strips object delimiters from the rendered lead.
var braces = strings.NewReplacer("{", "", "}", "")

// RenderLead turns a JSON object into the user instruction for the reasoning
// service: the compact JSON with every brace removed, after a fixed prefix.
// Key order and values are kept as submitted.
func RenderLead(raw []byte) (string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return "", ErrNotObject
		}
		return "", fmt.Errorf("scoring: invalid JSON: %w", err)
	}
	if obj == nil {
		return "", ErrNotObject
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("scoring: invalid JSON: %w", err)
	}
	return leadPrefix + braces.Replace(buf.String()), nil
}

// Seed builds the initial conversation for a lead: the system prompt followed
// by the rendered lead.
func Seed(raw []byte) ([]llm.Message, error) {
	content, err := RenderLead(raw)
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: content},
	}, nil
}
