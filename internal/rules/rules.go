// Package rules loads and serves YAML-backed capability rules: declarations
// of which facility capabilities satisfy which manifest requirements, per
// domain. Rule sets are immutable snapshots behind an atomic pointer with
// the same reload discipline as the taxonomy: a malformed file aborts the
// reload and the previous snapshot stays active.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"ome/internal/logging"
	"ome/internal/taxonomy"
)

// Normalizer resolves free-form tokens to canonical form. Satisfied by
// *taxonomy.Taxonomy; nil falls back to plain folding.
type Normalizer interface {
	Normalize(input string) string
}

// CapabilityRule declares that one capability satisfies a set of requirements.
type CapabilityRule struct {
	ID          string   `yaml:"id"`
	Type        string   `yaml:"type"`
	Capability  string   `yaml:"capability"`
	Satisfies   []string `yaml:"satisfies_requirements"`
	Confidence  float64  `yaml:"confidence"`
	Domain      string   `yaml:"domain"`
	Description string   `yaml:"description"`
	Source      string   `yaml:"source"`
	Tags        []string `yaml:"tags"`
}

// RuleSet groups the rules of one domain.
type RuleSet struct {
	Domain      string                    `yaml:"domain"`
	Version     string                    `yaml:"version"`
	Description string                    `yaml:"description"`
	Rules       map[string]CapabilityRule `yaml:"-"`
}

// ruleFile mirrors the on-disk shape; rule bodies stay as yaml nodes so load
// errors can report the offending rule id and file line.
type ruleFile struct {
	Domain      string               `yaml:"domain"`
	Version     string               `yaml:"version"`
	Description string               `yaml:"description"`
	Rules       map[string]yaml.Node `yaml:"rules"`
}

type snapshot struct {
	sets  map[string]*RuleSet
	byCap map[string]map[string][]*CapabilityRule // domain -> capability key -> rules
	byReq map[string]map[string][]*CapabilityRule // domain -> requirement key -> rules (inverted index)
}

// Store owns the active rule snapshot.
type Store struct {
	rootDir  string
	tax      Normalizer
	reloadMu sync.Mutex
	snap     atomic.Pointer[snapshot]
}

// NewStore loads every `<domain>.yaml` under rootDir.
func NewStore(rootDir string, tax Normalizer) (*Store, error) {
	s := &Store{rootDir: rootDir, tax: tax}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreFromSets builds a store directly from rule sets (tests, shells
// that load YAML through their own storage).
func NewStoreFromSets(sets []*RuleSet, tax Normalizer) (*Store, error) {
	s := &Store{tax: tax}
	snap, err := s.buildSnapshot(sets)
	if err != nil {
		return nil, err
	}
	s.snap.Store(snap)
	return s, nil
}

// Reload re-reads every domain file and swaps the snapshot atomically.
// Any schema error aborts the whole load; the active snapshot is untouched.
func (s *Store) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	timer := logging.StartTimer(logging.CategoryRules, "Reload")
	defer timer.Stop()

	if s.rootDir == "" {
		return fmt.Errorf("rules load failed: no root directory configured")
	}

	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		logging.RulesWarn("reload failed, keeping active snapshot: %v", err)
		return fmt.Errorf("rules load failed: %w", err)
	}

	var sets []*RuleSet
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(s.rootDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logging.RulesWarn("reload failed, keeping active snapshot: %v", err)
			return fmt.Errorf("rules load failed: %w", err)
		}
		set, err := ParseRuleSet(data)
		if err != nil {
			logging.RulesWarn("reload failed, keeping active snapshot: %s: %v", name, err)
			return fmt.Errorf("rules load failed: %s: %w", name, err)
		}
		sets = append(sets, set)
	}

	snap, err := s.buildSnapshot(sets)
	if err != nil {
		logging.RulesWarn("reload failed, keeping active snapshot: %v", err)
		return err
	}
	s.snap.Store(snap)

	total := 0
	for _, set := range snap.sets {
		total += len(set.Rules)
	}
	logging.Rules("rules reloaded: %d domains, %d rules", len(snap.sets), total)
	return nil
}

// ParseRuleSet decodes one domain file and validates every rule.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, err
	}
	if rf.Domain == "" {
		return nil, fmt.Errorf("rule set missing domain")
	}

	set := &RuleSet{
		Domain:      rf.Domain,
		Version:     rf.Version,
		Description: rf.Description,
		Rules:       make(map[string]CapabilityRule, len(rf.Rules)),
	}
	for key, node := range rf.Rules {
		var rule CapabilityRule
		if err := node.Decode(&rule); err != nil {
			return nil, fmt.Errorf("rule %q (line %d): %w", key, node.Line, err)
		}
		if rule.ID == "" {
			rule.ID = key
		}
		if rule.ID != key {
			return nil, fmt.Errorf("rule %q (line %d): id %q does not match key", key, node.Line, rule.ID)
		}
		if rule.Domain == "" {
			rule.Domain = rf.Domain
		}
		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %q (line %d): %w", key, node.Line, err)
		}
		set.Rules[key] = rule
	}
	return set, nil
}

func validateRule(r CapabilityRule) error {
	if strings.TrimSpace(r.Capability) == "" {
		return fmt.Errorf("empty capability")
	}
	if len(r.Satisfies) == 0 {
		return fmt.Errorf("no satisfies_requirements")
	}
	for _, req := range r.Satisfies {
		if strings.TrimSpace(req) == "" {
			return fmt.Errorf("empty requirement entry")
		}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", r.Confidence)
	}
	return nil
}

func (s *Store) buildSnapshot(sets []*RuleSet) (*snapshot, error) {
	snap := &snapshot{
		sets:  make(map[string]*RuleSet, len(sets)),
		byCap: make(map[string]map[string][]*CapabilityRule),
		byReq: make(map[string]map[string][]*CapabilityRule),
	}
	for _, set := range sets {
		if _, dup := snap.sets[set.Domain]; dup {
			return nil, fmt.Errorf("rules load failed: duplicate domain %q", set.Domain)
		}
		snap.sets[set.Domain] = set
		snap.byCap[set.Domain] = make(map[string][]*CapabilityRule)
		snap.byReq[set.Domain] = make(map[string][]*CapabilityRule)

		for id := range set.Rules {
			rule := set.Rules[id]
			capKey := s.normalizeKey(rule.Capability)
			snap.byCap[set.Domain][capKey] = append(snap.byCap[set.Domain][capKey], &rule)
			for _, req := range rule.Satisfies {
				reqKey := s.normalizeKey(req)
				snap.byReq[set.Domain][reqKey] = append(snap.byReq[set.Domain][reqKey], &rule)
			}
		}
	}
	// Deterministic order everywhere: confidence desc, id asc.
	for _, byKey := range snap.byCap {
		for key := range byKey {
			sortRules(byKey[key])
		}
	}
	for _, byKey := range snap.byReq {
		for key := range byKey {
			sortRules(byKey[key])
		}
	}
	return snap, nil
}

func sortRules(rs []*CapabilityRule) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Confidence != rs[j].Confidence {
			return rs[i].Confidence > rs[j].Confidence
		}
		return rs[i].ID < rs[j].ID
	})
}

// normalizeKey resolves a token to its canonical taxonomy id when possible,
// else to its folded form.
func (s *Store) normalizeKey(token string) string {
	if s.tax != nil {
		if id := s.tax.Normalize(token); id != "" {
			return id
		}
	}
	return taxonomy.Fold(token)
}

// FindRules returns the domain's rules whose capability matches the
// normalized capability and whose satisfies list contains the normalized
// requirement, ordered by confidence desc then id.
func (s *Store) FindRules(domain, capability, requirement string) []*CapabilityRule {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	byCap, ok := snap.byCap[domain]
	if !ok {
		return nil
	}
	capKey := s.normalizeKey(capability)
	reqKey := s.normalizeKey(requirement)

	var out []*CapabilityRule
	for _, rule := range byCap[capKey] {
		for _, req := range rule.Satisfies {
			if s.normalizeKey(req) == reqKey {
				out = append(out, rule)
				break
			}
		}
	}
	return out
}

// CapabilitiesFor answers the inverted query: which capabilities satisfy
// requirement in the given domain. Ordered by confidence desc then id.
func (s *Store) CapabilitiesFor(domain, requirement string) []*CapabilityRule {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	byReq, ok := snap.byReq[domain]
	if !ok {
		return nil
	}
	rules := byReq[s.normalizeKey(requirement)]
	out := make([]*CapabilityRule, len(rules))
	copy(out, rules)
	return out
}

// Domains returns the loaded domain names, sorted.
func (s *Store) Domains() []string {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]string, 0, len(snap.sets))
	for d := range snap.sets {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Set returns the rule set for a domain, or nil.
func (s *Store) Set(domain string) *RuleSet {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.sets[domain]
}
