package llm

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// Gemini is a Provider backed by the Gemini API. The SDK client is created
// lazily on the first call so constructing a Gemini never touches the network.
type Gemini struct {
	apiKey string
	model  string

	once   sync.Once
	client *genai.Client
	err    error
}

// NewGemini returns a Gemini provider. An empty model selects DefaultModel.
func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{apiKey: apiKey, model: model}
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Complete sends prompt as a single user turn and returns the text answer.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", &ProviderError{Op: "gemini", Err: ErrNotConfigured}
	}
	g.once.Do(func() {
		g.client, g.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if g.err != nil {
		return "", &ProviderError{Op: "gemini", Err: fmt.Errorf("creating client: %w", g.err)}
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", &ProviderError{Op: "gemini", Err: err}
	}
	return resp.Text(), nil
}
