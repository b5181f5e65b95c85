package matching

import (
	"sort"
	"strings"

	"ome/internal/taxonomy"
)

// Abbreviation maps a short form to its canonical expansion plus the domain
// context terms appended during enhancement.
type Abbreviation struct {
	Short     string
	Expansion string
	Context   string
}

// DomainContext drives context enhancement and domain boosting for one
// domain: known abbreviations, category term sets, and the generic anchor
// phrases appended when an expansion fires.
type DomainContext struct {
	Domain        string
	Abbreviations []Abbreviation
	Categories    map[string][]string
	Anchors       []string
}

// domainContexts is the built-in enhancer registry. Shells can register
// additional domains via RegisterDomainContext.
var domainContexts = map[string]*DomainContext{
	"manufacturing": {
		Domain: "manufacturing",
		Abbreviations: []Abbreviation{
			{Short: "pcb", Expansion: "printed circuit board", Context: "electronics manufacturing"},
			{Short: "cnc", Expansion: "computer numerical control", Context: "machining"},
			{Short: "3dp", Expansion: "3d printing", Context: "additive manufacturing"},
			{Short: "smt", Expansion: "surface mount technology", Context: "electronics assembly"},
			{Short: "edm", Expansion: "electrical discharge machining", Context: "precision machining"},
			{Short: "fdm", Expansion: "fused deposition modeling", Context: "additive manufacturing"},
			{Short: "sla", Expansion: "stereolithography", Context: "additive manufacturing"},
		},
		Categories: map[string][]string{
			"machining":   {"cnc", "milling", "turning", "drilling", "lathe", "machining", "mill"},
			"electronics": {"pcb", "printed circuit board", "soldering", "circuit", "smt", "electronics"},
			"additive":    {"3d printing", "3dp", "fdm", "sla", "additive", "printing"},
			"forming":     {"casting", "forging", "stamping", "molding", "extrusion"},
			"finishing":   {"anodizing", "painting", "coating", "polishing", "plating"},
			"joining":     {"welding", "brazing", "riveting", "bonding"},
		},
		Anchors: []string{"manufacturing process", "production capability"},
	},
	"cooking": {
		Domain: "cooking",
		Abbreviations: []Abbreviation{
			{Short: "bbq", Expansion: "barbecue", Context: "grilling"},
			{Short: "sous vide", Expansion: "precision water bath cooking", Context: "temperature controlled"},
		},
		Categories: map[string][]string{
			"baking":   {"oven", "baking", "pastry", "bread", "proofing"},
			"grilling": {"grill", "bbq", "barbecue", "smoker", "charcoal"},
			"prep":     {"chopping", "mixing", "blending", "kneading"},
		},
		Anchors: []string{"cooking technique", "kitchen capability"},
	},
}

// RegisterDomainContext installs or replaces a domain enhancer.
func RegisterDomainContext(dc *DomainContext) {
	domainContexts[dc.Domain] = dc
}

// ContextFor returns the enhancer for a domain, or nil.
func ContextFor(domain string) *DomainContext {
	return domainContexts[domain]
}

// Domains returns the registered domain names in sorted order.
func Domains() []string {
	out := make([]string, 0, len(domainContexts))
	for d := range domainContexts {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ContainsVocabulary reports whether the folded text mentions any term of
// this domain's vocabulary: an abbreviation (short form or expansion) or a
// category term.
func (dc *DomainContext) ContainsVocabulary(folded string) bool {
	if dc == nil || folded == "" {
		return false
	}
	for _, ab := range dc.Abbreviations {
		if containsToken(folded, ab.Short) || strings.Contains(folded, ab.Expansion) {
			return true
		}
	}
	for _, terms := range dc.Categories {
		for _, term := range terms {
			if containsTerm(folded, term) {
				return true
			}
		}
	}
	return false
}

// Enhance builds the context-enhanced form of text: every known
// abbreviation present (by short form or expansion) appends its canonical
// short form, expansion, and context terms; if any fired, the generic
// domain anchors are appended too. Returns the enhanced text and whether
// any expansion fired.
func (dc *DomainContext) Enhance(text string) (string, bool) {
	folded := taxonomy.Fold(text)
	if dc == nil || folded == "" {
		return folded, false
	}

	var sb strings.Builder
	sb.WriteString(folded)
	fired := false
	for _, ab := range dc.Abbreviations {
		if containsToken(folded, ab.Short) || strings.Contains(folded, ab.Expansion) {
			sb.WriteByte(' ')
			sb.WriteString(ab.Short)
			sb.WriteByte(' ')
			sb.WriteString(ab.Expansion)
			sb.WriteByte(' ')
			sb.WriteString(ab.Context)
			fired = true
		}
	}
	if fired {
		for _, anchor := range dc.Anchors {
			sb.WriteByte(' ')
			sb.WriteString(anchor)
		}
	}
	return sb.String(), fired
}

// Boost computes the domain boost in [0, 0.3] from the raw (unenhanced)
// texts: +0.2 when both contain the same category term, +0.1 when they only
// share a category, +0.15 when one contains an abbreviation whose expansion
// appears in the other.
func (dc *DomainContext) Boost(a, b string) float64 {
	if dc == nil {
		return 0
	}
	fa, fb := taxonomy.Fold(a), taxonomy.Fold(b)
	if fa == "" || fb == "" {
		return 0
	}

	boost := 0.0

	sharedTerm := false
	sharedCategory := false
	for _, terms := range dc.Categories {
		aHit, bHit := "", ""
		for _, term := range terms {
			if aHit == "" && containsTerm(fa, term) {
				aHit = term
			}
			if bHit == "" && containsTerm(fb, term) {
				bHit = term
			}
			if aHit != "" && bHit != "" && containsTerm(fa, bHit) {
				// Same term on both sides, possibly found in different order.
				sharedTerm = true
				break
			}
		}
		if aHit != "" && bHit != "" {
			sharedCategory = true
		}
		if sharedTerm {
			break
		}
	}
	if sharedTerm {
		boost += 0.2
	} else if sharedCategory {
		boost += 0.1
	}

	for _, ab := range dc.Abbreviations {
		crossed := (containsToken(fa, ab.Short) && strings.Contains(fb, ab.Expansion)) ||
			(containsToken(fb, ab.Short) && strings.Contains(fa, ab.Expansion))
		if crossed {
			boost += 0.15
			break
		}
	}

	if boost > 0.3 {
		boost = 0.3
	}
	return boost
}

// containsToken reports whether needle occurs as a whole token sequence.
func containsToken(haystack, needle string) bool {
	if haystack == needle {
		return true
	}
	return strings.HasPrefix(haystack, needle+" ") ||
		strings.HasSuffix(haystack, " "+needle) ||
		strings.Contains(haystack, " "+needle+" ")
}

// containsTerm matches multi-word category terms as substrings and single
// words as whole tokens.
func containsTerm(haystack, term string) bool {
	if strings.Contains(term, " ") {
		return strings.Contains(haystack, term)
	}
	return containsToken(haystack, term)
}
