// Package config holds the matching engine configuration. All configuration
// is passed in by the caller; the engine never reads config files itself.
package config

import (
	"fmt"
	"time"
)

// Strategy selects the orchestration policy for a request.
type Strategy string

const (
	StrategyParallel      Strategy = "parallel"
	StrategySequential    Strategy = "sequential"
	StrategyAdaptive      Strategy = "adaptive"
	StrategyCostOptimized Strategy = "cost_optimized"
)

// QualityLevel maps to preset threshold bundles.
type QualityLevel string

const (
	QualityHobby        QualityLevel = "hobby"
	QualityProfessional QualityLevel = "professional"
	QualityMedical      QualityLevel = "medical"
)

// ParseQualityLevel accepts both the primary vocabulary and the legacy
// basic/standard/premium synonyms used by some callers.
func ParseQualityLevel(s string) (QualityLevel, error) {
	switch s {
	case "hobby", "basic":
		return QualityHobby, nil
	case "professional", "standard":
		return QualityProfessional, nil
	case "medical", "premium":
		return QualityMedical, nil
	default:
		return "", fmt.Errorf("unknown quality level: %q", s)
	}
}

// Config holds all recognized engine options.
type Config struct {
	// SimilarityThreshold is the NLP layer cutoff.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// NearMissThreshold is the Direct layer maximum edit distance.
	NearMissThreshold int `json:"near_miss_threshold"`

	// MatchThreshold is the orchestrator "is-match" cutoff.
	MatchThreshold float64 `json:"match_threshold"`

	// NearMissMin is the lower bound for near-miss routing.
	NearMissMin float64 `json:"near_miss_min"`

	// EarlyTerminateConfidence triggers early termination when any match
	// reaches this confidence.
	EarlyTerminateConfidence float64 `json:"early_terminate_confidence"`

	// EarlyTerminateCoverage stops the pipeline once this fraction of
	// requirements has a match at or above MatchThreshold. Zero disables.
	EarlyTerminateCoverage float64 `json:"early_terminate_coverage"`

	// CoverageThreshold is the minimum supply-tree coverage before the
	// review flag is set.
	CoverageThreshold float64 `json:"coverage_threshold"`

	// HighConfidenceThreshold filters capabilities between sequential layers.
	HighConfidenceThreshold float64 `json:"high_confidence_threshold"`

	// Domain selects rule sets and context enhancers (e.g. "manufacturing").
	Domain string `json:"domain"`

	// Strategy is the orchestration policy.
	Strategy Strategy `json:"strategy"`

	// StrictMode forces all configured layers and rejects a missing LLM adapter.
	StrictMode bool `json:"strict_mode"`

	// Adaptive strategy inputs.
	MaxComputeCost float64       `json:"max_compute_cost"`
	MaxLatency     time.Duration `json:"max_latency_ms"`
	MinAccuracy    float64       `json:"min_accuracy"`

	// EarlyTerminateBudgetUsed stops the sequential pipeline once this
	// fraction of MaxLatency has elapsed. Zero disables; requires MaxLatency.
	EarlyTerminateBudgetUsed float64 `json:"early_terminate_budget_used"`

	// LayerTimeout bounds a single layer invocation; RequestTimeout bounds
	// the whole request. Zero means no bound.
	LayerTimeout   time.Duration `json:"layer_timeout_ms"`
	RequestTimeout time.Duration `json:"request_timeout_ms"`

	// MaxInFlightPairs caps concurrent per-pair work in a layer.
	MaxInFlightPairs int `json:"max_in_flight_pairs"`

	// LLM rate limiting (token bucket).
	LLMRateLimit float64 `json:"llm_rate_limit"` // requests per second
	LLMBurst     int     `json:"llm_burst"`

	// Debug enables debug-level logging.
	Debug bool `json:"debug"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:      0.7,
		NearMissThreshold:        2,
		MatchThreshold:           0.7,
		NearMissMin:              0.5,
		EarlyTerminateConfidence: 0.95,
		EarlyTerminateCoverage:   0,
		CoverageThreshold:        0.8,
		HighConfidenceThreshold:  0.9,
		Domain:                   "manufacturing",
		Strategy:                 StrategySequential,
		MaxComputeCost:           1.0,
		MinAccuracy:              0.8,
		MaxInFlightPairs:         64,
		LLMRateLimit:             2,
		LLMBurst:                 4,
	}
}

// ApplyQualityLevel overlays the preset for the given quality level.
func (c *Config) ApplyQualityLevel(q QualityLevel) {
	switch q {
	case QualityHobby:
		c.SimilarityThreshold = 0.6
		c.MatchThreshold = 0.6
		c.CoverageThreshold = 0.6
		c.Strategy = StrategyCostOptimized
	case QualityProfessional:
		c.SimilarityThreshold = 0.7
		c.MatchThreshold = 0.7
		c.CoverageThreshold = 0.8
		c.Strategy = StrategySequential
	case QualityMedical:
		c.SimilarityThreshold = 0.85
		c.MatchThreshold = 0.85
		c.CoverageThreshold = 0.95
		c.Strategy = StrategySequential
		c.StrictMode = true
	}
}

// Validate checks range invariants. Out-of-range thresholds are programmer
// errors and rejected up front.
func (c Config) Validate() error {
	inUnit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
		return nil
	}
	if err := inUnit("similarity_threshold", c.SimilarityThreshold); err != nil {
		return err
	}
	if err := inUnit("match_threshold", c.MatchThreshold); err != nil {
		return err
	}
	if err := inUnit("near_miss_min", c.NearMissMin); err != nil {
		return err
	}
	if err := inUnit("early_terminate_confidence", c.EarlyTerminateConfidence); err != nil {
		return err
	}
	if err := inUnit("coverage_threshold", c.CoverageThreshold); err != nil {
		return err
	}
	if err := inUnit("early_terminate_budget_used", c.EarlyTerminateBudgetUsed); err != nil {
		return err
	}
	if c.NearMissThreshold < 0 {
		return fmt.Errorf("near_miss_threshold must be >= 0, got %d", c.NearMissThreshold)
	}
	if c.NearMissMin > c.MatchThreshold {
		return fmt.Errorf("near_miss_min (%v) must not exceed match_threshold (%v)", c.NearMissMin, c.MatchThreshold)
	}
	if c.MaxInFlightPairs < 1 {
		return fmt.Errorf("max_in_flight_pairs must be >= 1, got %d", c.MaxInFlightPairs)
	}
	switch c.Strategy {
	case StrategyParallel, StrategySequential, StrategyAdaptive, StrategyCostOptimized:
	default:
		return fmt.Errorf("unknown strategy: %q", c.Strategy)
	}
	return nil
}
