// Package taxonomy manages the canonical process vocabulary: stable
// snake_case ids, display names, aliases (TSDC codes, URIs, plain names),
// and the parent/child hierarchy. The active taxonomy is an immutable
// snapshot behind an atomic pointer; Reload builds and validates a candidate
// snapshot and only swaps it in when validation passes, so readers never
// observe a torn or half-loaded state.
package taxonomy

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"ome/internal/logging"
)

// ProcessDefinition is one canonical process record.
type ProcessDefinition struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	ParentID    string   `yaml:"parent,omitempty"`
	Aliases     []string `yaml:"aliases,omitempty"`
	TSDCCode    string   `yaml:"tsdc_code,omitempty"`
}

// Snapshot is an immutable view of the full taxonomy plus derived lookups.
type Snapshot struct {
	defs     map[string]ProcessDefinition
	aliases  map[string]string   // folded alias -> canonical id
	children map[string][]string // id -> sorted child ids
	ids      []string            // sorted canonical ids
}

// Taxonomy owns the active snapshot. Single-writer reload, many readers.
type Taxonomy struct {
	path     string
	reloadMu sync.Mutex
	snap     atomic.Pointer[Snapshot]
}

var snakeCaseRe = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

// minSubstringLen guards short tokens from accidental substring alias hits.
const minSubstringLen = 3

// New loads the taxonomy from the given YAML file.
func New(path string) (*Taxonomy, error) {
	t := &Taxonomy{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewFromDefinitions builds a taxonomy directly from definitions.
// Used by tests and by shells that load YAML through their own storage.
func NewFromDefinitions(defs []ProcessDefinition) (*Taxonomy, error) {
	snap, err := buildSnapshot(defs)
	if err != nil {
		return nil, err
	}
	t := &Taxonomy{}
	t.snap.Store(snap)
	return t, nil
}

// Reload builds a candidate snapshot from the YAML file, validates it, and
// atomically swaps it in. On any failure the previous snapshot stays active.
func (t *Taxonomy) Reload() error {
	t.reloadMu.Lock()
	defer t.reloadMu.Unlock()

	timer := logging.StartTimer(logging.CategoryTaxonomy, "Reload")
	defer timer.Stop()

	if t.path == "" {
		return fmt.Errorf("taxonomy load failed: no source path configured")
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		logging.TaxonomyWarn("reload failed, keeping active snapshot: %v", err)
		return fmt.Errorf("taxonomy load failed: %w", err)
	}

	snap, err := ParseSnapshot(data)
	if err != nil {
		logging.TaxonomyWarn("reload failed, keeping active snapshot: %v", err)
		return err
	}

	t.snap.Store(snap)
	logging.Taxonomy("taxonomy reloaded: %d processes, %d aliases", len(snap.defs), len(snap.aliases))
	return nil
}

// ParseSnapshot decodes and validates taxonomy YAML into a snapshot.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var defs []ProcessDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("taxonomy load failed: %w", err)
	}
	return buildSnapshot(defs)
}

func buildSnapshot(defs []ProcessDefinition) (*Snapshot, error) {
	snap := &Snapshot{
		defs:     make(map[string]ProcessDefinition, len(defs)),
		aliases:  make(map[string]string),
		children: make(map[string][]string),
	}

	for i, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("taxonomy load failed: definition %d has empty id", i)
		}
		if !snakeCaseRe.MatchString(def.ID) {
			return nil, fmt.Errorf("taxonomy load failed: id %q is not snake_case", def.ID)
		}
		if strings.TrimSpace(def.DisplayName) == "" {
			return nil, fmt.Errorf("taxonomy load failed: id %q has empty display name", def.ID)
		}
		if _, dup := snap.defs[def.ID]; dup {
			return nil, fmt.Errorf("taxonomy load failed: duplicate id %q", def.ID)
		}
		snap.defs[def.ID] = def
		snap.ids = append(snap.ids, def.ID)
	}
	sort.Strings(snap.ids)

	// Parent references and cycle detection.
	for _, def := range snap.defs {
		if def.ParentID == "" {
			continue
		}
		if _, ok := snap.defs[def.ParentID]; !ok {
			return nil, fmt.Errorf("taxonomy load failed: id %q references unknown parent %q", def.ID, def.ParentID)
		}
		snap.children[def.ParentID] = append(snap.children[def.ParentID], def.ID)
	}
	for id := range snap.children {
		sort.Strings(snap.children[id])
	}
	for _, id := range snap.ids {
		seen := map[string]bool{}
		for cur := id; cur != ""; cur = snap.defs[cur].ParentID {
			if seen[cur] {
				return nil, fmt.Errorf("taxonomy load failed: cycle through %q", cur)
			}
			seen[cur] = true
		}
	}

	// Alias index. The id and display name of each definition are implicit
	// aliases; collisions across definitions are load errors.
	addAlias := func(raw, id string) error {
		folded := Fold(raw)
		if folded == "" {
			return nil
		}
		if owner, exists := snap.aliases[folded]; exists && owner != id {
			return fmt.Errorf("taxonomy load failed: alias %q claimed by both %q and %q", raw, owner, id)
		}
		snap.aliases[folded] = id
		return nil
	}
	for _, id := range snap.ids {
		def := snap.defs[id]
		if err := addAlias(def.ID, id); err != nil {
			return nil, err
		}
		if err := addAlias(def.DisplayName, id); err != nil {
			return nil, err
		}
		if def.TSDCCode != "" {
			if err := addAlias(def.TSDCCode, id); err != nil {
				return nil, err
			}
		}
		for _, a := range def.Aliases {
			if err := addAlias(a, id); err != nil {
				return nil, err
			}
		}
	}

	return snap, nil
}

// snapshot returns the active snapshot, never nil for a constructed Taxonomy.
func (t *Taxonomy) snapshot() *Snapshot {
	return t.snap.Load()
}

// Fold applies the canonical string normalization: trailing URL path segment
// extraction, lowercasing, separator and whitespace collapse.
func Fold(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	s = extractURLTail(s)
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// extractURLTail returns the trailing path segment of a URL-like string.
// "https://en.wikipedia.org/wiki/PCB_assembly" -> "PCB_assembly".
func extractURLTail(s string) string {
	if !strings.Contains(s, "/") {
		return s
	}
	looksLikeURL := strings.Contains(s, "://") || strings.HasPrefix(s, "www.") || strings.Count(s, "/") >= 2
	if !looksLikeURL {
		return s
	}
	trimmed := strings.TrimRight(s, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return s
	}
	return trimmed[idx+1:]
}

// Normalize resolves free-form input to a canonical id, or "" when unknown.
// It never returns an error; unknown inputs are surfaced as "", not guessed.
func (t *Taxonomy) Normalize(input string) string {
	snap := t.snapshot()
	if snap == nil {
		return ""
	}
	folded := Fold(input)
	if folded == "" {
		return ""
	}
	if id, ok := snap.aliases[folded]; ok {
		return id
	}
	// Substring fallback for longer inputs only. Deterministic: longest
	// alias wins, ties broken lexicographically.
	if len([]rune(folded)) < minSubstringLen {
		return ""
	}
	bestAlias := ""
	bestID := ""
	for alias, id := range snap.aliases {
		if len([]rune(alias)) < minSubstringLen {
			continue
		}
		if !strings.Contains(folded, alias) && !strings.Contains(alias, folded) {
			continue
		}
		if len(alias) > len(bestAlias) || (len(alias) == len(bestAlias) && alias < bestAlias) {
			bestAlias = alias
			bestID = id
		}
	}
	return bestID
}

// Has reports whether id is a canonical id in the active snapshot.
func (t *Taxonomy) Has(id string) bool {
	snap := t.snapshot()
	if snap == nil {
		return false
	}
	_, ok := snap.defs[id]
	return ok
}

// DisplayName returns the display name for a canonical id, or "".
func (t *Taxonomy) DisplayName(id string) string {
	snap := t.snapshot()
	if snap == nil {
		return ""
	}
	return snap.defs[id].DisplayName
}

// Parent returns the parent id, or "" for roots and unknown ids.
func (t *Taxonomy) Parent(id string) string {
	snap := t.snapshot()
	if snap == nil {
		return ""
	}
	return snap.defs[id].ParentID
}

// Children returns the sorted child ids of id.
func (t *Taxonomy) Children(id string) []string {
	snap := t.snapshot()
	if snap == nil {
		return nil
	}
	kids := snap.children[id]
	out := make([]string, len(kids))
	copy(out, kids)
	return out
}

// Ancestors returns the chain of ancestor ids from parent to root.
func (t *Taxonomy) Ancestors(id string) []string {
	snap := t.snapshot()
	if snap == nil {
		return nil
	}
	var out []string
	for cur := snap.defs[id].ParentID; cur != ""; cur = snap.defs[cur].ParentID {
		out = append(out, cur)
	}
	return out
}

// TSDCCode returns the TSDC code for id; a child inherits its nearest
// ancestor's code when unset.
func (t *Taxonomy) TSDCCode(id string) string {
	snap := t.snapshot()
	if snap == nil {
		return ""
	}
	for cur := id; cur != ""; cur = snap.defs[cur].ParentID {
		if code := snap.defs[cur].TSDCCode; code != "" {
			return code
		}
	}
	return ""
}

// IDs returns all canonical ids, sorted.
func (t *Taxonomy) IDs() []string {
	snap := t.snapshot()
	if snap == nil {
		return nil
	}
	out := make([]string, len(snap.ids))
	copy(out, snap.ids)
	return out
}

// Len returns the number of definitions in the active snapshot.
func (t *Taxonomy) Len() int {
	snap := t.snapshot()
	if snap == nil {
		return 0
	}
	return len(snap.defs)
}
