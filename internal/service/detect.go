package service

import (
	"ome/internal/matching"
	"ome/internal/taxonomy"
)

// DetectDomain infers the matching domain from manifest tags by scoring
// them against each registered domain context's vocabulary. Returns the
// winning domain and a confidence in [0,1]; (fallback, 0) when nothing
// scores.
func DetectDomain(tags []string, fallback string) (string, float64) {
	if len(tags) == 0 {
		return fallback, 0
	}

	type score struct {
		domain string
		hits   int
	}
	best := score{domain: fallback}
	for _, domain := range matching.Domains() {
		dc := matching.ContextFor(domain)
		if dc == nil {
			continue
		}
		hits := 0
		for _, tag := range tags {
			folded := taxonomy.Fold(tag)
			if folded == "" {
				continue
			}
			if dc.ContainsVocabulary(folded) {
				hits++
			}
		}
		// Strictly greater keeps ties on the fallback order deterministic.
		if hits > best.hits {
			best = score{domain: domain, hits: hits}
		}
	}

	if best.hits == 0 {
		return fallback, 0
	}
	return best.domain, float64(best.hits) / float64(len(tags))
}
