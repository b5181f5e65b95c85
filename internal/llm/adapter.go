// Package llm defines the adapter contract for the optional LLM matching
// layer and ships a Gemini implementation plus a mock for tests. The engine
// never talks to a provider directly; everything goes through Adapter so
// shells can swap providers or leave the layer unconfigured.
package llm

import (
	"context"
	"time"
)

// Params bounds a single generation call.
type Params struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultParams returns the bounds used for match adjudication prompts.
func DefaultParams() Params {
	return Params{
		MaxTokens:   512,
		Temperature: 0,
		Timeout:     30 * time.Second,
	}
}

// Result is one generation outcome.
type Result struct {
	Text       string
	TokensUsed int
	Cost       float64 // estimated, provider currency units
}

// Adapter is the provider contract. Errors are caught by the LLM matcher
// and never propagate past it.
type Adapter interface {
	Generate(ctx context.Context, prompt string, params Params) (*Result, error)
	Name() string
	Close() error
}
