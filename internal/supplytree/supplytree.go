// Package supplytree combines per-requirement matches into ranked solutions.
// A supply tree answers, for one manifest against one facility, "which
// capability covers each requirement, how confidently, and is the whole
// plan good enough".
package supplytree

import (
	"hash/fnv"
	"sort"
	"time"

	"ome/internal/inventory"
	"ome/internal/logging"
	"ome/internal/matching"
)

// Candidate is one capability option for a requirement.
type Candidate struct {
	Capability string             `json:"capability"`
	Confidence float64            `json:"confidence"`
	Layer      matching.LayerType `json:"layer"`
	Quality    matching.Quality   `json:"quality"`
	RuleUsed   string             `json:"rule_used,omitempty"`
}

// SupplyTree is the per-manifest, per-facility solution.
type SupplyTree struct {
	ManifestID        string                 `json:"manifest_id,omitempty"`
	FacilityID        string                 `json:"facility_id,omitempty"`
	Candidates        map[string][]Candidate `json:"candidates"`
	Coverage          float64                `json:"coverage"`
	OverallConfidence float64                `json:"overall_confidence"`
	RequiresReview    bool                   `json:"requires_review"`
	ReviewReasons     []string               `json:"review_reasons,omitempty"`
	ProcessingTime    time.Duration          `json:"processing_time"`
	OperationID       string                 `json:"operation_id,omitempty"`
}

// ID is the deterministic solution identifier used for tie-breaking.
func (t *SupplyTree) ID() string {
	return t.ManifestID + "/" + t.FacilityID
}

// Builder turns normalized match sets into supply trees.
type Builder struct {
	// CoverThreshold is τ_cover: a requirement counts as covered when its
	// best candidate reaches this confidence.
	CoverThreshold float64

	// MinCoverage is the validation floor; trees below it are flagged for
	// review, never rejected.
	MinCoverage float64
}

// NewBuilder creates a builder with the given thresholds.
func NewBuilder(coverThreshold, minCoverage float64) *Builder {
	return &Builder{CoverThreshold: coverThreshold, MinCoverage: minCoverage}
}

// Build assembles a supply tree for one manifest/facility pair from the
// orchestrator's normalized results. A manifest with no requirements is
// trivially covered. Validation failures set RequiresReview; they are never
// errors.
func (b *Builder) Build(manifest *inventory.Manifest, facility *inventory.Facility, results []matching.MatchingResult, elapsed time.Duration) *SupplyTree {
	tree := &SupplyTree{
		Candidates:     make(map[string][]Candidate),
		ProcessingTime: elapsed,
	}
	if manifest != nil {
		tree.ManifestID = manifest.ID
	}
	if facility != nil {
		tree.FacilityID = facility.ID
	}

	byReq := make(map[string][]Candidate)
	for _, r := range results {
		if !r.Matched {
			continue
		}
		byReq[r.Requirement] = append(byReq[r.Requirement], Candidate{
			Capability: r.Capability,
			Confidence: r.Confidence,
			Layer:      r.Layer,
			Quality:    r.Metadata.Quality,
			RuleUsed:   r.Metadata.RuleUsed,
		})
	}

	var reqs []inventory.Requirement
	if manifest != nil {
		reqs = manifest.Requirements
	}

	covered := 0
	weightSum, confSum := 0.0, 0.0
	for _, req := range reqs {
		cands := byReq[req.Token]
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].Confidence != cands[j].Confidence {
				return cands[i].Confidence > cands[j].Confidence
			}
			return cands[i].Capability < cands[j].Capability
		})
		tree.Candidates[req.Token] = cands

		best := 0.0
		if len(cands) > 0 {
			best = cands[0].Confidence
		}
		if best >= b.CoverThreshold {
			covered++
		} else if req.Critical {
			tree.RequiresReview = true
			tree.ReviewReasons = append(tree.ReviewReasons, "critical requirement uncovered: "+req.Token)
		}

		w := req.Weight
		if w <= 0 {
			w = 1
		}
		weightSum += w
		confSum += w * best
	}

	if len(reqs) == 0 {
		tree.Coverage = 1.0
	} else {
		tree.Coverage = float64(covered) / float64(len(reqs))
		tree.OverallConfidence = confSum / weightSum
	}

	if tree.Coverage < b.MinCoverage {
		tree.RequiresReview = true
		tree.ReviewReasons = append(tree.ReviewReasons, "coverage below minimum")
	}

	logging.SupplyTreeDebug("built tree %s: coverage=%.2f confidence=%.2f review=%v",
		tree.ID(), tree.Coverage, tree.OverallConfidence, tree.RequiresReview)
	return tree
}

// Rank sorts alternative solutions best-first: coverage desc, overall
// confidence desc, processing time asc, then a hash of the solution id so
// exact ties still order deterministically.
func Rank(trees []*SupplyTree) {
	sort.Slice(trees, func(i, j int) bool {
		a, b := trees[i], trees[j]
		if a.Coverage != b.Coverage {
			return a.Coverage > b.Coverage
		}
		if a.OverallConfidence != b.OverallConfidence {
			return a.OverallConfidence > b.OverallConfidence
		}
		if a.ProcessingTime != b.ProcessingTime {
			return a.ProcessingTime < b.ProcessingTime
		}
		return hashID(a.ID()) < hashID(b.ID())
	})
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}
