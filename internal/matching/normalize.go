package matching

import (
	"ome/internal/taxonomy"
)

// Normalizer resolves free-form tokens to canonical taxonomy ids.
// Satisfied by *taxonomy.Taxonomy; nil is allowed and falls back to folding.
type Normalizer interface {
	Normalize(input string) string
}

// Token is a requirement or capability string kept in both raw and
// normalized form. Normalized is the canonical taxonomy id when resolvable,
// else the folded (lowercased, whitespace-collapsed) fallback.
type Token struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	Canonical  bool   `json:"canonical"`
}

// NormalizeToken builds a Token using the taxonomy when available.
func NormalizeToken(tax Normalizer, raw string) Token {
	if tax != nil {
		if id := tax.Normalize(raw); id != "" {
			return Token{Raw: raw, Normalized: id, Canonical: true}
		}
	}
	return Token{Raw: raw, Normalized: taxonomy.Fold(raw)}
}

// NormalizeAll maps a slice of raw strings to tokens.
func NormalizeAll(tax Normalizer, raws []string) []Token {
	out := make([]Token, len(raws))
	for i, r := range raws {
		out[i] = NormalizeToken(tax, r)
	}
	return out
}
