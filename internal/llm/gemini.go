package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"ome/internal/logging"
)

// Rough blended price per token for cost estimation. Providers change
// pricing; shells that need exact accounting should wrap the adapter.
const geminiCostPerToken = 0.000_000_3

// GeminiAdapter implements Adapter on the Google GenAI SDK.
type GeminiAdapter struct {
	client *genai.Client
	model  string
}

// NewGeminiAdapter creates a Gemini adapter. The client is created once and
// reused across calls.
func NewGeminiAdapter(apiKey, model string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	logging.LLM("Gemini adapter ready: model=%s", model)
	return &GeminiAdapter{client: client, model: model}, nil
}

// Generate submits one bounded prompt.
func (a *GeminiAdapter) Generate(ctx context.Context, prompt string, params Params) (*Result, error) {
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{}
	if params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxTokens)
	}
	temp := float32(params.Temperature)
	cfg.Temperature = &temp

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &Result{
		Text:       resp.Text(),
		TokensUsed: tokens,
		Cost:       float64(tokens) * geminiCostPerToken,
	}, nil
}

// Name returns the adapter name.
func (a *GeminiAdapter) Name() string {
	return fmt.Sprintf("gemini:%s", a.model)
}

// Close drops the client reference. The SDK client holds no connection
// state that needs explicit shutdown.
func (a *GeminiAdapter) Close() error {
	a.client = nil
	return nil
}
