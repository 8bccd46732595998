// Package stub provides a fast, deterministic AI client for dev and tests.
package stub

import (
	"encoding/json"
	"strings"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// Client returns canned responses keyed on prompt content. Deterministic so
// tests can assert on downstream behavior.
type Client struct{}

// New constructs a stub client.
func New() *Client { return &Client{} }

// Call inspects the prompt and returns a schema-conforming canned payload.
func (c *Client) Call(_ domain.Context, req domain.AICallRequest) (domain.AICallResult, error) {
	var payload any
	p := strings.ToLower(req.System + " " + req.Prompt)
	switch {
	case strings.Contains(p, "follow-up detector"):
		payload = map[string]any{
			"need_follow_up": false, "confidence": 0.3,
			"reason": "answer was complete", "summarized_answer": "complete answer",
		}
	case strings.Contains(p, "resume"):
		payload = map[string]any{
			"matchScore": 72, "isFake": false,
			"matchedSkills": []string{"go", "postgresql"},
			"missingSkills": []string{"kubernetes"},
			"summary":       "Relevant backend experience.",
		}
	case strings.Contains(p, "multiple-choice"):
		payload = []any{map[string]any{
			"questionId": "objective_0",
			"text":       "Which data structure offers O(1) average lookup?",
			"options": []any{
				map[string]any{"text": "Hash map", "isCorrect": true},
				map[string]any{"text": "Linked list", "isCorrect": false},
				map[string]any{"text": "Binary tree", "isCorrect": false},
				map[string]any{"text": "Stack", "isCorrect": false},
			},
			"points": 1, "difficulty": "easy",
		}}
	default:
		payload = map[string]any{"ok": true}
	}
	b, _ := json.Marshal(payload)
	return domain.AICallResult{Content: string(b), Model: "stub", Calls: 1}, nil
}
