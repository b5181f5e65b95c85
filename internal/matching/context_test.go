package matching

import (
	"math"
	"strings"
	"testing"
)

func TestEnhanceAppendsAbbreviationContext(t *testing.T) {
	dc := ContextFor("manufacturing")

	enhanced, fired := dc.Enhance("PCB")
	if !fired {
		t.Fatal("abbreviation did not fire")
	}
	for _, want := range []string{"pcb", "printed circuit board", "electronics manufacturing", "manufacturing process"} {
		if !strings.Contains(enhanced, want) {
			t.Fatalf("enhanced text missing %q: %s", want, enhanced)
		}
	}
}

func TestEnhanceSymmetric(t *testing.T) {
	dc := ContextFor("manufacturing")

	// The expansion side must converge on the same vocabulary as the short
	// form side.
	fromShort, _ := dc.Enhance("PCB")
	fromExpansion, fired := dc.Enhance("printed circuit board")
	if !fired {
		t.Fatal("expansion did not fire")
	}
	for _, want := range []string{"pcb", "printed circuit board", "electronics manufacturing"} {
		if !strings.Contains(fromExpansion, want) {
			t.Fatalf("expansion enhancement missing %q: %s", want, fromExpansion)
		}
	}
	_ = fromShort
}

func TestEnhanceNoFire(t *testing.T) {
	dc := ContextFor("manufacturing")

	enhanced, fired := dc.Enhance("wood carving")
	if fired {
		t.Fatal("unexpected abbreviation fire")
	}
	if enhanced != "wood carving" {
		t.Fatalf("no-fire enhancement changed text: %s", enhanced)
	}
	if strings.Contains(enhanced, "manufacturing process") {
		t.Fatal("anchors appended without a fire")
	}
}

func TestEnhanceShortFormTokenBoundary(t *testing.T) {
	dc := ContextFor("manufacturing")

	// "cnc" must fire as a whole token only; "concnc-like" words must not.
	if _, fired := dc.Enhance("cnc milling"); !fired {
		t.Fatal("token form did not fire")
	}
	if _, fired := dc.Enhance("encncoded"); fired {
		t.Fatal("substring fired as abbreviation")
	}
}

func TestBoostSharedTerm(t *testing.T) {
	dc := ContextFor("manufacturing")

	if got := dc.Boost("cnc milling", "milling services"); got != 0.2 {
		t.Fatalf("shared term boost = %v, want 0.2", got)
	}
}

func TestBoostSharedCategoryOnly(t *testing.T) {
	dc := ContextFor("manufacturing")

	// Turning and drilling share the machining category without a common
	// term.
	if got := dc.Boost("turning parts", "drilling holes"); got != 0.1 {
		t.Fatalf("shared category boost = %v, want 0.1", got)
	}
}

func TestBoostAbbreviationCrossover(t *testing.T) {
	dc := ContextFor("manufacturing")

	got := dc.Boost("PCB", "printed circuit board")
	// Shared electronics category plus abbreviation crossover.
	if math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("crossover boost = %v, want 0.25", got)
	}
}

func TestBoostCap(t *testing.T) {
	dc := ContextFor("manufacturing")

	if got := dc.Boost("pcb soldering smt", "printed circuit board soldering smt"); got > 0.3 {
		t.Fatalf("boost %v exceeds cap", got)
	}
}

func TestBoostUnrelated(t *testing.T) {
	dc := ContextFor("manufacturing")

	if got := dc.Boost("wood carving", "bread baking"); got != 0 {
		t.Fatalf("unrelated boost = %v, want 0", got)
	}
}

func TestRegisterDomainContext(t *testing.T) {
	RegisterDomainContext(&DomainContext{
		Domain: "textiles",
		Categories: map[string][]string{
			"sewing": {"sewing", "stitching"},
		},
	})
	defer delete(domainContexts, "textiles")

	dc := ContextFor("textiles")
	if dc == nil {
		t.Fatal("registered domain not found")
	}
	if got := dc.Boost("sewing", "machine sewing"); got != 0.2 {
		t.Fatalf("custom domain boost = %v", got)
	}
}

func TestDomainsSorted(t *testing.T) {
	domains := Domains()
	if len(domains) < 2 {
		t.Fatalf("Domains = %v", domains)
	}
	for i := 1; i < len(domains); i++ {
		if domains[i-1] >= domains[i] {
			t.Fatalf("Domains not sorted: %v", domains)
		}
	}
}
