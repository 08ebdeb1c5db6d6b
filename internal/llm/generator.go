// Package llm wraps the external generation capability behind a narrow
// interface. Validation and retry of its output belong to the caller; this
// package only shapes requests and decodes responses.
package llm

import "context"

// Turn mirrors one conversation exchange handed to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Draft is the structured template candidate a generation call produces.
type Draft struct {
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	Placeholders []string `json:"placeholders"`
}

type Generator interface {
	// Generate reduces a finalized conversation into a template draft.
	Generate(ctx context.Context, systemPrompt string, turns []Turn) (*Draft, error)
	// Chat produces the next assistant reply in the negotiation loop.
	Chat(ctx context.Context, systemPrompt string, turns []Turn) (string, error)
}
