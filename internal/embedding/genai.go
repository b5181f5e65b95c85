package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"ome/internal/logging"
)

// =============================================================================
// GOOGLE GENAI SIMILARITY BACKEND
// =============================================================================

// GenAIBackend scores similarity with Gemini embeddings. The client is
// created once and reused; no per-call cold start.
type GenAIBackend struct {
	client *genai.Client
	model  string
}

// NewGenAIBackend creates a Gemini-backed similarity backend.
func NewGenAIBackend(apiKey, model string) (*GenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	logging.Embedding("GenAI similarity backend ready: model=%s", model)
	return &GenAIBackend{client: client, model: model}, nil
}

// Similarity embeds both texts in one batch call and returns the cosine
// similarity clamped into [0,1].
func (b *GenAIBackend) Similarity(ctx context.Context, a, c string) (float64, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(a, genai.RoleUser),
		genai.NewContentFromText(c, genai.RoleUser),
	}

	result, err := b.client.Models.EmbedContent(ctx,
		b.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		},
	)
	if err != nil {
		return 0, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) < 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(result.Embeddings))
	}

	sim, err := CosineSimilarity(result.Embeddings[0].Values, result.Embeddings[1].Values)
	if err != nil {
		return 0, err
	}
	return ClampUnit(sim), nil
}

// Name returns the backend name.
func (b *GenAIBackend) Name() string {
	return fmt.Sprintf("genai:%s", b.model)
}

// Close drops the client reference. The SDK client holds no connection
// state that needs explicit shutdown.
func (b *GenAIBackend) Close() error {
	b.client = nil
	return nil
}
