package llm

import "context"

// MockAdapter is a test double with an injectable generate func,
// mirroring the hand-written mock client style used across the codebase.
type MockAdapter struct {
	GenerateFunc func(ctx context.Context, prompt string, params Params) (*Result, error)
	Calls        int
}

// Generate delegates to GenerateFunc, or returns an empty result.
func (m *MockAdapter) Generate(ctx context.Context, prompt string, params Params) (*Result, error) {
	m.Calls++
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, params)
	}
	return &Result{}, nil
}

// Name returns "mock".
func (m *MockAdapter) Name() string { return "mock" }

// Close is a no-op.
func (m *MockAdapter) Close() error { return nil }
