// Package matching implements the four matcher layers of the pipeline:
// direct string matching, rule-based heuristics, context-enhanced semantic
// similarity, and optional LLM adjudication. Layers share one contract:
// they are pure with respect to their inputs, hold no per-request state,
// and report per-invocation metrics.
package matching

import (
	"context"
	"time"
)

// LayerType identifies a matcher layer.
type LayerType string

const (
	LayerDirect    LayerType = "direct"
	LayerHeuristic LayerType = "heuristic"
	LayerNLP       LayerType = "nlp"
	LayerLLM       LayerType = "llm"
)

// Quality is the tiered match quality classification.
type Quality string

const (
	QualityPerfect        Quality = "PERFECT"
	QualityCaseDiff       Quality = "CASE_DIFF"
	QualityWhitespaceDiff Quality = "WHITESPACE_DIFF"
	QualityNearMiss       Quality = "NEAR_MISS"
	QualityRuleMatch      Quality = "RULE_MATCH"
	QualityHigh           Quality = "HIGH"
	QualityMedium         Quality = "MEDIUM"
	QualityLow            Quality = "LOW"
	QualityNoMatch        Quality = "NO_MATCH"
)

// QualityForSimilarity maps a similarity score to the semantic quality tiers
// shared by the NLP and LLM layers.
func QualityForSimilarity(sim float64) Quality {
	switch {
	case sim >= 0.9:
		return QualityPerfect
	case sim >= 0.8:
		return QualityHigh
	case sim >= 0.7:
		return QualityMedium
	case sim >= 0.5:
		return QualityLow
	default:
		return QualityNoMatch
	}
}

// MatchMetadata carries the how and why of one result. Optional fields are
// populated by the layer that produced the result: RuleUsed by heuristic,
// SemanticSimilarity by nlp/llm, CharacterDifference by direct.
type MatchMetadata struct {
	Method              string    `json:"method"`
	Confidence          float64   `json:"confidence"`
	Reasons             []string  `json:"reasons,omitempty"`
	Quality             Quality   `json:"quality"`
	ProcessingTimeMS    float64   `json:"processing_time_ms"`
	CharacterDifference int       `json:"character_difference,omitempty"`
	RuleUsed            string    `json:"rule_used,omitempty"`
	SemanticSimilarity  *float64  `json:"semantic_similarity,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// MatchingResult is one (requirement, capability) verdict from one layer.
type MatchingResult struct {
	Requirement string        `json:"requirement"`
	Capability  string        `json:"capability"`
	Matched     bool          `json:"matched"`
	Confidence  float64       `json:"confidence"`
	Layer       LayerType     `json:"layer_type"`
	Metadata    MatchMetadata `json:"metadata"`
}

// LayerMetrics records one layer invocation.
type LayerMetrics struct {
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Success           bool      `json:"success"`
	MatchesFound      int       `json:"matches_found"`
	TotalRequirements int       `json:"total_requirements"`
	TotalCapabilities int       `json:"total_capabilities"`
	Errors            []string  `json:"errors,omitempty"`
}

// Feedback flows between layers in sequential and adaptive strategies.
// Each layer consumes only the keys documented for its tier: the NLP layer
// reads NearMisses, the LLM layer may read everything.
type Feedback struct {
	Results    map[LayerType][]MatchingResult `json:"results"`
	NearMisses []MatchingResult               `json:"near_misses,omitempty"`
	Insights   map[string]string              `json:"insights,omitempty"`
	Elapsed    time.Duration                  `json:"elapsed"`
}

// NewFeedback returns an empty feedback object.
func NewFeedback() *Feedback {
	return &Feedback{
		Results:  make(map[LayerType][]MatchingResult),
		Insights: make(map[string]string),
	}
}

// Layer is the per-layer contract: one result per (req, cap) pair, treated
// as a set by callers. Implementations are reusable and safe for concurrent
// use; per-call state lives on the stack.
type Layer interface {
	Type() LayerType
	Match(ctx context.Context, reqs, caps []string, fb *Feedback) ([]MatchingResult, *LayerMetrics, error)
}

// clampUnit clamps confidence into [0,1].
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// msSince returns elapsed milliseconds as a float for metadata records.
func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
