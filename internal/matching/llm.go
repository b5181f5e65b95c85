package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"ome/internal/llm"
	"ome/internal/logging"
)

// LLMMetrics is the running counters for the LLM layer. Reads return a
// point-in-time copy.
type LLMMetrics struct {
	Requests   int64   `json:"requests"`
	Errors     int64   `json:"errors"`
	TokensUsed int64   `json:"tokens_used"`
	Cost       float64 `json:"cost"`
}

// LLMMatcher is layer 4: optional adjudication of pairs by an LLM adapter.
// Without an adapter every pair comes back unmatched with method
// "llm_unavailable". Adapter failures never propagate; they produce
// unmatched results with an llm_error reason.
type LLMMatcher struct {
	adapter   llm.Adapter
	params    llm.Params
	threshold float64
	limiter   *tokenBucket

	mu      sync.Mutex
	metrics LLMMetrics
}

// NewLLMMatcher creates the layer. adapter may be nil. ratePerSec and burst
// parameterize the token bucket guarding adapter calls.
func NewLLMMatcher(adapter llm.Adapter, matchThreshold, ratePerSec float64, burst int) *LLMMatcher {
	return &LLMMatcher{
		adapter:   adapter,
		params:    llm.DefaultParams(),
		threshold: matchThreshold,
		limiter:   newTokenBucket(ratePerSec, burst),
	}
}

// Type returns LayerLLM.
func (m *LLMMatcher) Type() LayerType { return LayerLLM }

// Available reports whether an adapter is configured.
func (m *LLMMatcher) Available() bool { return m.adapter != nil }

// Metrics returns a snapshot of the layer counters.
func (m *LLMMatcher) Metrics() LLMMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Match adjudicates every pair. Feedback from earlier layers, when present,
// is summarized into the prompt; this layer may read all feedback keys.
func (m *LLMMatcher) Match(ctx context.Context, reqs, caps []string, fb *Feedback) ([]MatchingResult, *LayerMetrics, error) {
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
			r := m.matchPair(ctx, req, cap, fb)
			if r.Matched {
				metrics.MatchesFound++
			}
			results = append(results, r)
		}
	}

	metrics.End = time.Now()
	metrics.Success = true
	logging.LLMDebug("llm layer: %d pairs, %d matched", len(results), metrics.MatchesFound)
	return results, metrics, nil
}

// llmVerdict is the structured response the adapter must produce.
type llmVerdict struct {
	Matched     bool    `json:"matched"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

func (m *LLMMatcher) matchPair(ctx context.Context, req, cap string, fb *Feedback) MatchingResult {
	start := time.Now()

	result := MatchingResult{
		Requirement: req,
		Capability:  cap,
		Layer:       LayerLLM,
		Metadata: MatchMetadata{
			Method:    "llm_adjudication",
			Quality:   QualityNoMatch,
			Timestamp: start,
		},
	}

	if m.adapter == nil {
		result.Metadata.Method = "llm_unavailable"
		result.Metadata.ProcessingTimeMS = msSince(start)
		return result
	}

	if err := m.limiter.Wait(ctx); err != nil {
		m.recordError()
		result.Metadata.Reasons = append(result.Metadata.Reasons, fmt.Sprintf("llm_error: %v", err))
		result.Metadata.ProcessingTimeMS = msSince(start)
		return result
	}

	prompt := m.buildPrompt(req, cap, fb)
	gen, err := m.adapter.Generate(ctx, prompt, m.params)
	if err != nil {
		m.recordError()
		logging.LLMWarn("adapter call failed: %v", err)
		result.Metadata.Reasons = append(result.Metadata.Reasons, fmt.Sprintf("llm_error: %v", err))
		result.Metadata.ProcessingTimeMS = msSince(start)
		return result
	}
	m.recordUsage(gen)

	verdict, err := parseVerdict(gen.Text)
	if err != nil {
		m.recordError()
		logging.LLMWarn("unparseable adapter response: %v", err)
		result.Metadata.Reasons = append(result.Metadata.Reasons, fmt.Sprintf("llm_error: %v", err))
		result.Metadata.ProcessingTimeMS = msSince(start)
		return result
	}

	conf := clampUnit(verdict.Confidence)
	result.Confidence = conf
	result.Matched = verdict.Matched && conf >= m.threshold
	result.Metadata.Quality = QualityForSimilarity(conf)
	result.Metadata.SemanticSimilarity = &conf
	if verdict.Explanation != "" {
		result.Metadata.Reasons = append(result.Metadata.Reasons, verdict.Explanation)
	}
	result.Metadata.Confidence = result.Confidence
	result.Metadata.ProcessingTimeMS = msSince(start)
	return result
}

// buildPrompt produces a bounded prompt; req/cap are truncated so a hostile
// manifest cannot blow up token spend.
func (m *LLMMatcher) buildPrompt(req, cap string, fb *Feedback) string {
	const maxToken = 200
	var sb strings.Builder
	sb.WriteString("You are judging whether a manufacturing capability satisfies a requirement.\n")
	sb.WriteString("Requirement: ")
	sb.WriteString(truncate(req, maxToken))
	sb.WriteString("\nCapability: ")
	sb.WriteString(truncate(cap, maxToken))
	sb.WriteByte('\n')
	if fb != nil {
		if len(fb.NearMisses) > 0 {
			sb.WriteString(fmt.Sprintf("Earlier layers flagged %d near-miss pairs for this request.\n", len(fb.NearMisses)))
		}
		for k, v := range fb.Insights {
			sb.WriteString(fmt.Sprintf("Insight %s: %s\n", k, truncate(v, maxToken)))
		}
	}
	sb.WriteString(`Respond with only JSON: {"matched": bool, "confidence": number in [0,1], "explanation": string}`)
	return sb.String()
}

// parseVerdict extracts the JSON object from the adapter response,
// tolerating markdown code fences around it.
func parseVerdict(text string) (*llmVerdict, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}
	var v llmVerdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid verdict JSON: %w", err)
	}
	return &v, nil
}

func (m *LLMMatcher) recordUsage(r *llm.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.Requests++
	m.metrics.TokensUsed += int64(r.TokensUsed)
	m.metrics.Cost += r.Cost
}

func (m *LLMMatcher) recordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.Requests++
	m.metrics.Errors++
}

// truncate cuts on rune boundaries so multi-byte input is never split
// mid-sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

// =============================================================================
// TOKEN BUCKET
// =============================================================================

// tokenBucket rate-limits adapter calls. Refill is computed from elapsed
// time on each Wait; no background goroutine.
type tokenBucket struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &tokenBucket{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (b *tokenBucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		b.tokens += now.Sub(b.last).Seconds() * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
