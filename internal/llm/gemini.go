package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
)

const defaultModel = "gemini-2.5-flash"

// GeminiGenerator implements Generator against the Gemini API. All calls
// carry a bounded timeout; a timeout is a generation failure, never a hang.
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model, timeout: timeout}, nil
}

func contents(turns []Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == "assistant" {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(t.Content, role))
	}
	return out
}

func (g *GeminiGenerator) Generate(ctx context.Context, systemPrompt string, turns []Turn) (*Draft, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents(turns), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGenerationUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text())
	// Some models wrap JSON in a fenced block even in JSON mode.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var draft Draft
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &draft); err != nil {
		return nil, fmt.Errorf("%w: undecodable response: %v", apperrors.ErrGenerationInvalid, err)
	}
	return &draft, nil
}

func (g *GeminiGenerator) Chat(ctx context.Context, systemPrompt string, turns []Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents(turns), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrGenerationUnavailable, err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

var _ Generator = (*GeminiGenerator)(nil)
