// Package inventory holds the manifest (OKH) and facility (OKW) shapes the
// engine consumes, plus the source interfaces external stores implement.
// The engine never performs CRUD on these; it only reads tokens out of them.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Requirement is one process requirement extracted from a manifest.
// Weight defaults to 1 when zero; Critical requirements must be covered for
// a supply tree to pass validation.
type Requirement struct {
	Token    string  `json:"token" yaml:"token"`
	Critical bool    `json:"critical,omitempty" yaml:"critical,omitempty"`
	Weight   float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Manifest is the engine's view of an OKH document: what needs to be made.
type Manifest struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Requirements []Requirement `json:"requirements" yaml:"requirements"`
	Tags         []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	Domain       string        `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// Tokens returns the requirement tokens in manifest order.
func (m *Manifest) Tokens() []string {
	out := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		out = append(out, r.Token)
	}
	return out
}

// Facility is the engine's view of an OKW document: what a shop can do.
type Facility struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Source is the read-only store adapter the facade resolves manifests and
// facilities through.
type Source interface {
	GetManifest(ctx context.Context, id string) (*Manifest, error)
	GetFacility(ctx context.Context, id string) (*Facility, error)
	ListFacilities(ctx context.Context) ([]*Facility, error)
}

// MemoryStore is an in-memory Source, used by tests and the CLI.
type MemoryStore struct {
	mu         sync.RWMutex
	manifests  map[string]*Manifest
	facilities map[string]*Facility
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		manifests:  make(map[string]*Manifest),
		facilities: make(map[string]*Facility),
	}
}

// PutManifest inserts or replaces a manifest.
func (s *MemoryStore) PutManifest(m *Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.ID] = m
}

// PutFacility inserts or replaces a facility.
func (s *MemoryStore) PutFacility(f *Facility) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facilities[f.ID] = f
}

// GetManifest implements Source.
func (s *MemoryStore) GetManifest(_ context.Context, id string) (*Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[id]
	if !ok {
		return nil, fmt.Errorf("manifest %q not found", id)
	}
	return m, nil
}

// GetFacility implements Source.
func (s *MemoryStore) GetFacility(_ context.Context, id string) (*Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facilities[id]
	if !ok {
		return nil, fmt.Errorf("facility %q not found", id)
	}
	return f, nil
}

// ListFacilities implements Source; order is deterministic by id.
func (s *MemoryStore) ListFacilities(_ context.Context) ([]*Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
