package supplytree

import (
	"math"
	"testing"
	"time"

	"ome/internal/inventory"
	"ome/internal/matching"
)

func manifest(reqs ...inventory.Requirement) *inventory.Manifest {
	return &inventory.Manifest{ID: "m1", Name: "test manifest", Requirements: reqs}
}

func result(req, cap string, conf float64, matched bool) matching.MatchingResult {
	return matching.MatchingResult{
		Requirement: req,
		Capability:  cap,
		Matched:     matched,
		Confidence:  conf,
		Layer:       matching.LayerDirect,
	}
}

func TestBuildRanksCandidates(t *testing.T) {
	b := NewBuilder(0.7, 0.8)
	m := manifest(inventory.Requirement{Token: "milling"})

	tree := b.Build(m, &inventory.Facility{ID: "f1"}, []matching.MatchingResult{
		result("milling", "manual mill", 0.8, true),
		result("milling", "cnc machining", 0.95, true),
		result("milling", "drill press", 0.4, false),
	}, time.Millisecond)

	cands := tree.Candidates["milling"]
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2 (unmatched excluded)", len(cands))
	}
	if cands[0].Capability != "cnc machining" || cands[1].Capability != "manual mill" {
		t.Fatalf("candidate order: %s, %s", cands[0].Capability, cands[1].Capability)
	}
	if tree.Coverage != 1.0 {
		t.Fatalf("coverage = %v", tree.Coverage)
	}
	if tree.OverallConfidence != 0.95 {
		t.Fatalf("overall confidence = %v", tree.OverallConfidence)
	}
	if tree.RequiresReview {
		t.Fatal("fully covered tree flagged for review")
	}
}

func TestBuildCandidateTieBreaksByCapability(t *testing.T) {
	b := NewBuilder(0.7, 0.0)
	m := manifest(inventory.Requirement{Token: "milling"})

	tree := b.Build(m, nil, []matching.MatchingResult{
		result("milling", "zeta mill", 0.9, true),
		result("milling", "alpha mill", 0.9, true),
	}, 0)

	cands := tree.Candidates["milling"]
	if cands[0].Capability != "alpha mill" {
		t.Fatalf("tie not broken by capability asc: %s first", cands[0].Capability)
	}
}

func TestEmptyRequirementsFullCoverage(t *testing.T) {
	b := NewBuilder(0.7, 0.8)

	tree := b.Build(manifest(), nil, nil, 0)
	if tree.Coverage != 1.0 {
		t.Fatalf("empty manifest coverage = %v, want 1.0", tree.Coverage)
	}
	if tree.RequiresReview {
		t.Fatal("empty manifest flagged for review")
	}
}

func TestLowCoverageFlagsReview(t *testing.T) {
	b := NewBuilder(0.7, 0.8)
	m := manifest(
		inventory.Requirement{Token: "milling"},
		inventory.Requirement{Token: "welding"},
	)

	tree := b.Build(m, nil, []matching.MatchingResult{
		result("milling", "cnc machining", 0.9, true),
	}, 0)

	if tree.Coverage != 0.5 {
		t.Fatalf("coverage = %v, want 0.5", tree.Coverage)
	}
	if !tree.RequiresReview {
		t.Fatal("low coverage not flagged")
	}
}

func TestUncoveredCriticalRequirementFlagsReview(t *testing.T) {
	b := NewBuilder(0.7, 0.0)
	m := manifest(
		inventory.Requirement{Token: "milling"},
		inventory.Requirement{Token: "sterilization", Critical: true},
	)

	tree := b.Build(m, nil, []matching.MatchingResult{
		result("milling", "cnc machining", 0.9, true),
	}, 0)

	if !tree.RequiresReview {
		t.Fatal("uncovered critical requirement not flagged")
	}
	if len(tree.ReviewReasons) == 0 {
		t.Fatal("review reason missing")
	}
}

func TestWeightedOverallConfidence(t *testing.T) {
	b := NewBuilder(0.7, 0.0)
	m := manifest(
		inventory.Requirement{Token: "milling", Weight: 3},
		inventory.Requirement{Token: "welding", Weight: 1},
	)

	tree := b.Build(m, nil, []matching.MatchingResult{
		result("milling", "cnc machining", 1.0, true),
		result("welding", "tig station", 0.6, true),
	}, 0)

	// (3*1.0 + 1*0.6) / 4 = 0.9
	if math.Abs(tree.OverallConfidence-0.9) > 1e-9 {
		t.Fatalf("weighted confidence = %v, want 0.9", tree.OverallConfidence)
	}
}

func TestRankOrdering(t *testing.T) {
	trees := []*SupplyTree{
		{FacilityID: "low", Coverage: 0.5, OverallConfidence: 0.9},
		{FacilityID: "slow", Coverage: 1.0, OverallConfidence: 0.8, ProcessingTime: 2 * time.Second},
		{FacilityID: "fast", Coverage: 1.0, OverallConfidence: 0.8, ProcessingTime: time.Second},
		{FacilityID: "confident", Coverage: 1.0, OverallConfidence: 0.95},
	}
	Rank(trees)

	want := []string{"confident", "fast", "slow", "low"}
	for i, id := range want {
		if trees[i].FacilityID != id {
			t.Fatalf("rank[%d] = %s, want %s", i, trees[i].FacilityID, id)
		}
	}
}

func TestRankDeterministicOnTies(t *testing.T) {
	mk := func() []*SupplyTree {
		return []*SupplyTree{
			{ManifestID: "m", FacilityID: "a", Coverage: 1, OverallConfidence: 0.8},
			{ManifestID: "m", FacilityID: "b", Coverage: 1, OverallConfidence: 0.8},
		}
	}
	t1, t2 := mk(), mk()
	Rank(t1)
	Rank(t2)
	if t1[0].FacilityID != t2[0].FacilityID {
		t.Fatal("tie-break not deterministic")
	}
}
