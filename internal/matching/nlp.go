package matching

import (
	"context"
	"strings"
	"sync"
	"time"

	"ome/internal/embedding"
	"ome/internal/logging"
)

// NLPMatcher is layer 3: context-enhanced semantic similarity. The
// similarity backend is injected and reused across calls; when it is absent
// or failing, a token-overlap (Dice) similarity over the same enhanced
// texts keeps the layer functional.
type NLPMatcher struct {
	mu        sync.Mutex
	backend   embedding.SimilarityBackend
	threshold float64
	dc        *DomainContext
}

// NewNLPMatcher creates the layer. backend may be nil.
func NewNLPMatcher(backend embedding.SimilarityBackend, domain string, similarityThreshold float64) *NLPMatcher {
	return &NLPMatcher{
		backend:   backend,
		threshold: similarityThreshold,
		dc:        ContextFor(domain),
	}
}

// Type returns LayerNLP.
func (m *NLPMatcher) Type() LayerType { return LayerNLP }

// Match scores every pair. When feedback carries near-misses this layer
// still scores all pairs; routing decisions belong to the orchestrator.
func (m *NLPMatcher) Match(ctx context.Context, reqs, caps []string, _ *Feedback) ([]MatchingResult, *LayerMetrics, error) {
	metrics := &LayerMetrics{
		Start:             time.Now(),
		TotalRequirements: len(reqs),
		TotalCapabilities: len(caps),
	}

	results := make([]MatchingResult, 0, len(reqs)*len(caps))
	for _, req := range reqs {
		for _, cap := range caps {
			if err := ctx.Err(); err != nil {
				metrics.End = time.Now()
				metrics.Errors = append(metrics.Errors, "cancelled")
				return results, metrics, err
			}
			r := m.matchPair(ctx, req, cap)
			if r.Matched {
				metrics.MatchesFound++
			}
			results = append(results, r)
		}
	}

	metrics.End = time.Now()
	metrics.Success = true
	logging.NLPDebug("nlp layer: %d pairs, %d matched (threshold=%.2f)", len(results), metrics.MatchesFound, m.threshold)
	return results, metrics, nil
}

func (m *NLPMatcher) matchPair(ctx context.Context, req, cap string) MatchingResult {
	start := time.Now()

	sim, method := m.Similarity(ctx, req, cap)

	result := MatchingResult{
		Requirement: req,
		Capability:  cap,
		Layer:       LayerNLP,
		Confidence:  sim,
		Matched:     sim >= m.threshold,
		Metadata: MatchMetadata{
			Method:             method,
			Quality:            QualityForSimilarity(sim),
			SemanticSimilarity: &sim,
			Timestamp:          start,
		},
	}
	if result.Matched {
		result.Metadata.Reasons = append(result.Metadata.Reasons, "semantic similarity above threshold")
	}
	result.Metadata.Confidence = result.Confidence
	result.Metadata.ProcessingTimeMS = msSince(start)
	return result
}

// Similarity computes the context-enhanced similarity for one pair,
// clamped to [0,1]. Also used directly by tests and the facade.
func (m *NLPMatcher) Similarity(ctx context.Context, req, cap string) (float64, string) {
	enhReq, _ := m.dc.Enhance(req)
	enhCap, _ := m.dc.Enhance(cap)

	method := "nlp_semantic"
	var base float64

	m.mu.Lock()
	backend := m.backend
	m.mu.Unlock()

	if backend != nil {
		s, err := backend.Similarity(ctx, enhReq, enhCap)
		if err != nil {
			logging.NLPWarn("similarity backend failed, falling back to token overlap: %v", err)
			base = diceSimilarity(enhReq, enhCap)
			method = "nlp_token_fallback"
		} else {
			base = s
		}
	} else {
		base = diceSimilarity(enhReq, enhCap)
		method = "nlp_token_fallback"
	}

	sim := clampUnit(base + m.dc.Boost(req, cap))
	return sim, method
}

// Close releases the similarity backend and resets lazy state. Safe to call
// more than once.
func (m *NLPMatcher) Close() error {
	m.mu.Lock()
	backend := m.backend
	m.backend = nil
	m.mu.Unlock()

	if backend != nil {
		return backend.Close()
	}
	return nil
}

// diceSimilarity is the token-overlap fallback: Dice coefficient over the
// distinct tokens of both texts.
func diceSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}
