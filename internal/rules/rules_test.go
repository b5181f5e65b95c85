package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ome/internal/taxonomy"
)

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.NewFromDefinitions([]taxonomy.ProcessDefinition{
		{ID: "cnc_machining", DisplayName: "CNC Machining", Aliases: []string{"cnc machining capability"}},
		{ID: "cnc_milling", DisplayName: "CNC Milling", ParentID: "cnc_machining", Aliases: []string{"milling"}},
	})
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	return tax
}

func testSets() []*RuleSet {
	return []*RuleSet{
		{
			Domain:  "manufacturing",
			Version: "1.0",
			Rules: map[string]CapabilityRule{
				"cnc_machining_capability": {
					ID:         "cnc_machining_capability",
					Capability: "cnc machining",
					Satisfies:  []string{"milling", "turning"},
					Confidence: 0.95,
					Domain:     "manufacturing",
				},
				"manual_mill_capability": {
					ID:         "manual_mill_capability",
					Capability: "manual milling",
					Satisfies:  []string{"milling"},
					Confidence: 0.8,
					Domain:     "manufacturing",
				},
			},
		},
	}
}

func TestFindRulesOrdering(t *testing.T) {
	store, err := NewStoreFromSets(testSets(), nil)
	if err != nil {
		t.Fatalf("NewStoreFromSets: %v", err)
	}

	got := store.FindRules("manufacturing", "cnc machining", "milling")
	if len(got) != 1 {
		t.Fatalf("FindRules returned %d rules, want 1", len(got))
	}
	if got[0].ID != "cnc_machining_capability" {
		t.Fatalf("rule id = %s", got[0].ID)
	}

	// Unknown capability or requirement finds nothing.
	if got := store.FindRules("manufacturing", "cnc machining", "welding"); len(got) != 0 {
		t.Fatalf("unexpected rules for welding: %d", len(got))
	}
	if got := store.FindRules("cooking", "cnc machining", "milling"); len(got) != 0 {
		t.Fatalf("unexpected rules in unknown domain: %d", len(got))
	}
}

func TestCapabilitiesForOrdersByConfidence(t *testing.T) {
	store, err := NewStoreFromSets(testSets(), nil)
	if err != nil {
		t.Fatalf("NewStoreFromSets: %v", err)
	}

	got := store.CapabilitiesFor("manufacturing", "milling")
	if len(got) != 2 {
		t.Fatalf("CapabilitiesFor returned %d rules, want 2", len(got))
	}
	if got[0].ID != "cnc_machining_capability" || got[1].ID != "manual_mill_capability" {
		t.Fatalf("order = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestTaxonomyNormalizedKeys(t *testing.T) {
	tax := testTaxonomy(t)
	store, err := NewStoreFromSets([]*RuleSet{{
		Domain: "manufacturing",
		Rules: map[string]CapabilityRule{
			"cnc_machining_capability": {
				ID:         "cnc_machining_capability",
				Capability: "cnc machining capability",
				Satisfies:  []string{"milling"},
				Confidence: 0.95,
			},
		},
	}}, tax)
	if err != nil {
		t.Fatalf("NewStoreFromSets: %v", err)
	}

	// Capability token and rule capability differ textually but share a
	// canonical process id.
	got := store.FindRules("manufacturing", "CNC Machining", "Milling")
	if len(got) != 1 {
		t.Fatalf("taxonomy-normalized lookup found %d rules, want 1", len(got))
	}
}

func TestParseRuleSetDiagnostics(t *testing.T) {
	_, err := ParseRuleSet([]byte(`
domain: manufacturing
rules:
  broken_rule:
    capability: cnc machining
    satisfies_requirements: []
    confidence: 0.9
`))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), `rule "broken_rule"`) || !strings.Contains(err.Error(), "line") {
		t.Fatalf("error lacks rule diagnostics: %v", err)
	}
}

func TestParseRuleSetRejectsBadConfidence(t *testing.T) {
	_, err := ParseRuleSet([]byte(`
domain: manufacturing
rules:
  r1:
    capability: cnc machining
    satisfies_requirements: [milling]
    confidence: 1.5
`))
	if err == nil || !strings.Contains(err.Error(), "confidence") {
		t.Fatalf("expected confidence error, got %v", err)
	}
}

func TestReloadFailureKeepsActiveSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manufacturing.yaml")
	good := `
domain: manufacturing
rules:
  r1:
    capability: cnc machining
    satisfies_requirements: [milling]
    confidence: 0.9
`
	if err := os.WriteFile(path, []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := store.FindRules("manufacturing", "cnc machining", "milling"); len(got) != 1 {
		t.Fatalf("initial load found %d rules", len(got))
	}

	if err := os.WriteFile(path, []byte("domain: manufacturing\nrules: {r1: {confidence: 2}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload failure")
	}

	if got := store.FindRules("manufacturing", "cnc machining", "milling"); len(got) != 1 {
		t.Fatalf("failed reload disturbed active snapshot: %d rules", len(got))
	}
}

func TestDomains(t *testing.T) {
	store, err := NewStoreFromSets(testSets(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := store.Domains()
	if len(got) != 1 || got[0] != "manufacturing" {
		t.Fatalf("Domains = %v", got)
	}
}
