package matching

import (
	"context"
	"testing"

	"ome/internal/taxonomy"
)

func directTestTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.NewFromDefinitions([]taxonomy.ProcessDefinition{
		{ID: "cnc_milling", DisplayName: "CNC Milling", Aliases: []string{"milling"}},
		{ID: "additive_manufacturing", DisplayName: "Additive Manufacturing", Aliases: []string{"3d printing"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tax
}

func TestDirectQualityTiers(t *testing.T) {
	m := NewDirectMatcher(directTestTaxonomy(t), 2)

	cases := []struct {
		name       string
		req, cap   string
		matched    bool
		confidence float64
		quality    Quality
	}{
		{"exact", "cnc milling", "cnc milling", true, 1.0, QualityPerfect},
		{"case diff", "CNC milling", "cnc milling", true, 0.95, QualityCaseDiff},
		{"whitespace diff", "CNC  milling", "CNC milling", true, 0.9, QualityWhitespaceDiff},
		{"near miss distance 1", "3D printing", "3D prnting", true, 0.8, QualityNearMiss},
		{"near miss distance 2", "3D printing", "3D prntng", true, 0.7, QualityNearMiss},
		{"beyond threshold", "3D printing", "welding", false, 0, QualityNoMatch},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			results, metrics, err := m.Match(context.Background(), []string{c.req}, []string{c.cap}, nil)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("got %d results", len(results))
			}
			r := results[0]
			if r.Matched != c.matched || r.Confidence != c.confidence || r.Metadata.Quality != c.quality {
				t.Fatalf("got matched=%v conf=%v quality=%s, want matched=%v conf=%v quality=%s",
					r.Matched, r.Confidence, r.Metadata.Quality, c.matched, c.confidence, c.quality)
			}
			if r.Confidence < 0 || r.Confidence > 1 {
				t.Fatalf("confidence %v out of range", r.Confidence)
			}
			if !metrics.Success {
				t.Fatal("metrics not marked successful")
			}
		})
	}
}

func TestDirectAliasEquivalence(t *testing.T) {
	// "milling" and "CNC Milling" resolve to the same canonical id, but the
	// raw strings differ beyond case, so the tier is WHITESPACE_DIFF.
	m := NewDirectMatcher(directTestTaxonomy(t), 2)
	results, _, err := m.Match(context.Background(), []string{"milling"}, []string{"CNC Milling"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := results[0]
	if !r.Matched || r.Metadata.Quality != QualityWhitespaceDiff {
		t.Fatalf("alias pair: matched=%v quality=%s", r.Matched, r.Metadata.Quality)
	}
}

func TestDirectPairCardinality(t *testing.T) {
	m := NewDirectMatcher(nil, 2)
	reqs := []string{"a requirement", "b requirement"}
	caps := []string{"x capability", "y capability", "z capability"}

	results, metrics, err := m.Match(context.Background(), reqs, caps, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(reqs)*len(caps) {
		t.Fatalf("got %d results, want %d", len(results), len(reqs)*len(caps))
	}
	if metrics.TotalRequirements != 2 || metrics.TotalCapabilities != 3 {
		t.Fatalf("metrics totals = %d/%d", metrics.TotalRequirements, metrics.TotalCapabilities)
	}
}

func TestDirectCancellationReturnsPartial(t *testing.T) {
	m := NewDirectMatcher(nil, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, metrics, err := m.Match(ctx, []string{"milling"}, []string{"milling"}, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(results) != 0 {
		t.Fatalf("cancelled before first pair, got %d results", len(results))
	}
	if len(metrics.Errors) == 0 {
		t.Fatal("cancellation not recorded in metrics")
	}
}

func TestDirectZeroThresholdDisablesNearMiss(t *testing.T) {
	m := NewDirectMatcher(nil, 0)
	results, _, err := m.Match(context.Background(), []string{"3D printing"}, []string{"3D prnting"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Matched {
		t.Fatal("near miss matched with threshold 0")
	}
}
