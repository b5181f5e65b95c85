package matching

import (
	"context"
	"fmt"
	"time"

	"ome/internal/logging"
	"ome/internal/rules"
)

// HeuristicMatcher is layer 2: rule-based capability→requirement
// satisfaction backed by the domain rule store. Inputs are never mutated;
// the rule store's inverted index also answers the bidirectional query
// "which capabilities satisfy requirement R".
type HeuristicMatcher struct {
	store  *rules.Store
	domain string
}

// NewHeuristicMatcher creates the layer for one domain.
func NewHeuristicMatcher(store *rules.Store, domain string) *HeuristicMatcher {
	return &HeuristicMatcher{store: store, domain: domain}
}

// Type returns LayerHeuristic.
func (m *HeuristicMatcher) Type() LayerType { return LayerHeuristic }

// Match consults the rule store for every pair. A pair matches when at
// least one rule declares the capability satisfies the requirement; the
// winning rule is the highest-confidence one (deterministic store order).
func (m *HeuristicMatcher) Match(ctx context.Context, reqs, caps []string, _ *Feedback) ([]MatchingResult, *LayerMetrics, error) {
	metrics := &LayerMetrics{
		Start:             time.Now(),
		TotalRequirements: len(reqs),
		TotalCapabilities: len(caps),
	}

	if m.store == nil {
		metrics.End = time.Now()
		metrics.Errors = append(metrics.Errors, "no rule store configured")
		return nil, metrics, fmt.Errorf("heuristic layer: no rule store configured")
	}

	results := make([]MatchingResult, 0, len(reqs)*len(caps))
	for _, req := range reqs {
		for _, cap := range caps {
			if err := ctx.Err(); err != nil {
				metrics.End = time.Now()
				metrics.Errors = append(metrics.Errors, "cancelled")
				return results, metrics, err
			}
			r := m.matchPair(req, cap)
			if r.Matched {
				metrics.MatchesFound++
			}
			results = append(results, r)
		}
	}

	metrics.End = time.Now()
	metrics.Success = true
	logging.HeuristicDebug("heuristic layer: domain=%s, %d pairs, %d matched", m.domain, len(results), metrics.MatchesFound)
	return results, metrics, nil
}

func (m *HeuristicMatcher) matchPair(req, cap string) MatchingResult {
	start := time.Now()

	result := MatchingResult{
		Requirement: req,
		Capability:  cap,
		Layer:       LayerHeuristic,
		Metadata: MatchMetadata{
			Method:    "heuristic_rule",
			Quality:   QualityNoMatch,
			Timestamp: start,
		},
	}

	matched := m.store.FindRules(m.domain, cap, req)
	if len(matched) > 0 {
		best := matched[0] // store order: confidence desc, id asc
		result.Matched = true
		result.Confidence = clampUnit(best.Confidence)
		result.Metadata.Quality = QualityRuleMatch
		result.Metadata.RuleUsed = best.ID
		result.Metadata.Reasons = append(result.Metadata.Reasons,
			fmt.Sprintf("rule %s: %s satisfies %s", best.ID, best.Capability, req))
	}

	result.Metadata.Confidence = result.Confidence
	result.Metadata.ProcessingTimeMS = msSince(start)
	return result
}

// CapabilitiesFor exposes the inverted rule query for this layer's domain.
func (m *HeuristicMatcher) CapabilitiesFor(requirement string) []*rules.CapabilityRule {
	if m.store == nil {
		return nil
	}
	return m.store.CapabilitiesFor(m.domain, requirement)
}
