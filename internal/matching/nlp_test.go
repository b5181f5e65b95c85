package matching

import (
	"context"
	"errors"
	"testing"
)

// stubBackend is a hand-rolled similarity backend with injectable behavior.
type stubBackend struct {
	similarityFunc func(ctx context.Context, a, b string) (float64, error)
	closed         bool
}

func (s *stubBackend) Similarity(ctx context.Context, a, b string) (float64, error) {
	if s.similarityFunc != nil {
		return s.similarityFunc(ctx, a, b)
	}
	return 0, nil
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Close() error {
	s.closed = true
	return nil
}

func TestNLPAbbreviationScenario(t *testing.T) {
	// No backend: the token-overlap fallback over context-enhanced text must
	// still push PCB vs its expansion over the PERFECT threshold.
	m := NewNLPMatcher(nil, "manufacturing", 0.7)

	results, _, err := m.Match(context.Background(), []string{"PCB"}, []string{"printed circuit board"}, nil)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	r := results[0]
	if !r.Matched {
		t.Fatal("PCB vs printed circuit board did not match")
	}
	if r.Confidence < 0.9 {
		t.Fatalf("confidence %v, want >= 0.9", r.Confidence)
	}
	if r.Metadata.Quality != QualityPerfect {
		t.Fatalf("quality = %s, want PERFECT", r.Metadata.Quality)
	}
	if r.Metadata.SemanticSimilarity == nil {
		t.Fatal("semantic similarity not recorded")
	}
	if r.Metadata.Method != "nlp_token_fallback" {
		t.Fatalf("method = %s", r.Metadata.Method)
	}
}

func TestNLPBackendUsedWhenPresent(t *testing.T) {
	backend := &stubBackend{
		similarityFunc: func(_ context.Context, a, b string) (float64, error) {
			return 0.82, nil
		},
	}
	m := NewNLPMatcher(backend, "manufacturing", 0.7)

	sim, method := m.Similarity(context.Background(), "laser cutting", "laser engraving")
	if method != "nlp_semantic" {
		t.Fatalf("method = %s", method)
	}
	if sim < 0.82 {
		t.Fatalf("similarity %v below backend score", sim)
	}
}

func TestNLPBackendErrorFallsBack(t *testing.T) {
	backend := &stubBackend{
		similarityFunc: func(_ context.Context, a, b string) (float64, error) {
			return 0, errors.New("backend down")
		},
	}
	m := NewNLPMatcher(backend, "manufacturing", 0.7)

	_, method := m.Similarity(context.Background(), "milling", "milling")
	if method != "nlp_token_fallback" {
		t.Fatalf("method = %s, want fallback after backend error", method)
	}
}

func TestNLPThresholdGate(t *testing.T) {
	backend := &stubBackend{
		similarityFunc: func(_ context.Context, a, b string) (float64, error) {
			return 0.4, nil
		},
	}
	m := NewNLPMatcher(backend, "", 0.7)

	results, _, err := m.Match(context.Background(), []string{"foo"}, []string{"bar"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Matched {
		t.Fatal("matched below similarity threshold")
	}
	if results[0].Metadata.Quality != QualityNoMatch {
		t.Fatalf("quality = %s", results[0].Metadata.Quality)
	}
}

func TestNLPConfidenceClamped(t *testing.T) {
	backend := &stubBackend{
		similarityFunc: func(_ context.Context, a, b string) (float64, error) {
			return 0.95, nil
		},
	}
	m := NewNLPMatcher(backend, "manufacturing", 0.7)

	// Backend score plus domain boost would exceed 1 without clamping.
	sim, _ := m.Similarity(context.Background(), "cnc milling", "milling center")
	if sim > 1 {
		t.Fatalf("similarity %v exceeds 1", sim)
	}
}

func TestNLPClose(t *testing.T) {
	backend := &stubBackend{}
	m := NewNLPMatcher(backend, "manufacturing", 0.7)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !backend.closed {
		t.Fatal("backend not closed")
	}
	// Second close is a no-op.
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// After close the matcher falls back to token overlap.
	_, method := m.Similarity(context.Background(), "milling", "milling")
	if method != "nlp_token_fallback" {
		t.Fatalf("method after close = %s", method)
	}
}

func TestDiceSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"cnc milling", "cnc milling", 1.0},
		{"cnc milling", "cnc turning", 0.5},
		{"", "cnc", 0},
		{"cnc", "", 0},
	}
	for _, c := range cases {
		if got := diceSimilarity(c.a, c.b); got != c.want {
			t.Errorf("diceSimilarity(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
