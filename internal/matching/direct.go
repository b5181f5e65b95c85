package matching

import (
	"context"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"ome/internal/logging"
	"ome/internal/taxonomy"
)

// DirectMatcher is layer 1: exact and near-miss string matching with
// quality tiers. A pure function of its inputs and configuration.
type DirectMatcher struct {
	tax               Normalizer
	nearMissThreshold int
}

// NewDirectMatcher creates the layer. nearMissThreshold is the maximum edit
// distance still treated as a near-miss (default 2).
func NewDirectMatcher(tax Normalizer, nearMissThreshold int) *DirectMatcher {
	if nearMissThreshold < 0 {
		nearMissThreshold = 0
	}
	return &DirectMatcher{tax: tax, nearMissThreshold: nearMissThreshold}
}

// Type returns LayerDirect.
func (m *DirectMatcher) Type() LayerType { return LayerDirect }

// Match produces one result per (req, cap) pair.
func (m *DirectMatcher) Match(ctx context.Context, reqs, caps []string, _ *Feedback) ([]MatchingResult, *LayerMetrics, error) {
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
			r := m.matchPair(req, cap)
			if r.Matched {
				metrics.MatchesFound++
			}
			results = append(results, r)
		}
	}

	metrics.End = time.Now()
	metrics.Success = true
	logging.DirectDebug("direct layer: %d pairs, %d matched", len(results), metrics.MatchesFound)
	return results, metrics, nil
}

// matchPair scores a single pair.
func (m *DirectMatcher) matchPair(req, cap string) MatchingResult {
	start := time.Now()

	nreq := NormalizeToken(m.tax, req)
	ncap := NormalizeToken(m.tax, cap)

	result := MatchingResult{
		Requirement: req,
		Capability:  cap,
		Layer:       LayerDirect,
		Metadata: MatchMetadata{
			Method:    "direct_string_match",
			Quality:   QualityNoMatch,
			Timestamp: start,
		},
	}

	if nreq.Normalized != "" && nreq.Normalized == ncap.Normalized {
		// Equal post-normalization; tier depends on what actually differed.
		switch {
		case req == cap:
			result.Confidence = 1.0
			result.Metadata.Quality = QualityPerfect
			result.Metadata.Reasons = append(result.Metadata.Reasons, "exact match")
		case strings.EqualFold(req, cap):
			result.Confidence = 0.95
			result.Metadata.Quality = QualityCaseDiff
			result.Metadata.Reasons = append(result.Metadata.Reasons, "case-insensitive match")
		default:
			result.Confidence = 0.9
			result.Metadata.Quality = QualityWhitespaceDiff
			result.Metadata.Reasons = append(result.Metadata.Reasons, "match after normalization")
		}
		result.Matched = true
	} else {
		// Near-miss detection on folded strings so the distance reflects
		// content, not case or whitespace.
		a, b := taxonomy.Fold(req), taxonomy.Fold(cap)
		dist := levenshtein.ComputeDistance(a, b)
		result.Metadata.CharacterDifference = dist
		if dist > 0 && dist <= m.nearMissThreshold {
			result.Matched = true
			result.Metadata.Quality = QualityNearMiss
			switch dist {
			case 1:
				result.Confidence = 0.8
			default:
				result.Confidence = 0.7
			}
			result.Metadata.Reasons = append(result.Metadata.Reasons, "near miss within edit distance")
		}
	}

	result.Metadata.Confidence = result.Confidence
	result.Metadata.ProcessingTimeMS = msSince(start)
	return result
}
