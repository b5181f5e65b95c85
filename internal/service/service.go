// Package service is the facade external callers use: it resolves manifests
// and facilities, selects the domain, assembles the layer pipeline, and
// translates pipeline outcomes into structured reports. Callers always get
// a MatchingReport; errors are reserved for input validation and
// catastrophic failures.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ome/internal/config"
	"ome/internal/embedding"
	"ome/internal/inventory"
	"ome/internal/llm"
	"ome/internal/logging"
	"ome/internal/matching"
	"ome/internal/orchestrator"
	"ome/internal/provenance"
	"ome/internal/rules"
	"ome/internal/storage"
	"ome/internal/supplytree"
	"ome/internal/taxonomy"
)

// Status is the overall outcome of a match request.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Request is one facade invocation. Either inline token lists or
// manifest/facility references may be supplied; references are resolved
// through the configured Source.
type Request struct {
	// Inline tokens. Used directly when non-empty.
	Requirements []string `json:"requirements,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`

	// References resolved through the inventory source.
	ManifestID string `json:"manifest_id,omitempty"`
	FacilityID string `json:"facility_id,omitempty"`

	// Resolved objects; set by the facade or supplied by the caller.
	Manifest *inventory.Manifest `json:"-"`
	Facility *inventory.Facility `json:"-"`

	// Domain overrides detection when set.
	Domain string `json:"domain,omitempty"`

	// QualityLevel overlays a threshold preset ("hobby", "professional",
	// "medical", or a legacy synonym). Empty keeps the configured values.
	QualityLevel string `json:"quality_level,omitempty"`

	// Strict forces all configured layers; a missing LLM adapter becomes a
	// hard failure instead of a skipped layer.
	Strict bool `json:"strict,omitempty"`

	// Strategy overrides the configured orchestration policy when set.
	Strategy config.Strategy `json:"strategy,omitempty"`
}

// MatchingReport is what every facade call returns.
type MatchingReport struct {
	Status           Status                                        `json:"status"`
	Results          []matching.MatchingResult                     `json:"results"`
	Errors           []*Error                                      `json:"errors,omitempty"`
	Provenance       []provenance.Operation                        `json:"provenance,omitempty"`
	LayerMetrics     map[matching.LayerType]*matching.LayerMetrics `json:"layer_metrics,omitempty"`
	SupplyTree       *supplytree.SupplyTree                        `json:"supply_tree,omitempty"`
	Domain           string                                        `json:"domain"`
	DomainConfidence float64                                       `json:"domain_confidence"`
	OperationID      string                                        `json:"operation_id,omitempty"`
	Elapsed          time.Duration                                 `json:"elapsed"`
}

// Options wires the facade's collaborators. Taxonomy and Rules are
// required; everything else degrades gracefully when absent.
type Options struct {
	Config     config.Config
	Taxonomy   *taxonomy.Taxonomy
	Rules      *rules.Store
	Source     inventory.Source
	Store      storage.KV
	LLM        llm.Adapter
	Similarity embedding.SimilarityBackend
	Tracker    *provenance.Tracker
}

// Service is the matching facade.
type Service struct {
	cfg     config.Config
	tax     *taxonomy.Taxonomy
	rules   *rules.Store
	source  inventory.Source
	store   storage.KV
	adapter llm.Adapter
	backend embedding.SimilarityBackend
	tracker *provenance.Tracker
	handler Handler
}

// New creates the facade with the standard interceptor chain
// (recovery, logging, metrics).
func New(opts Options) (*Service, error) {
	if opts.Taxonomy == nil {
		return nil, NewError(ErrTaxonomyLoadFailed, "no taxonomy configured")
	}
	if opts.Rules == nil {
		return nil, NewError(ErrRulesLoadFailed, "no rule store configured")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, NewError(ErrInputInvalid, "invalid config: %v", err)
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = provenance.NewTracker()
	}

	s := &Service{
		cfg:     opts.Config,
		tax:     opts.Taxonomy,
		rules:   opts.Rules,
		source:  opts.Source,
		store:   opts.Store,
		adapter: opts.LLM,
		backend: opts.Similarity,
		tracker: tracker,
	}
	s.handler = Chain(s.match, RecoveryInterceptor, LoggingInterceptor, MetricsInterceptor)
	return s, nil
}

// Tracker exposes the provenance tracker.
func (s *Service) Tracker() *provenance.Tracker { return s.tracker }

// MatchRequirements runs the full pipeline for one request.
func (s *Service) MatchRequirements(ctx context.Context, req *Request) (*MatchingReport, error) {
	return s.handler(ctx, req)
}

// match is the terminal handler behind the interceptor chain.
func (s *Service) match(ctx context.Context, req *Request) (*MatchingReport, error) {
	report := &MatchingReport{Status: StatusFailed}

	if err := s.resolve(ctx, req); err != nil {
		report.Errors = append(report.Errors, err)
		return report, err
	}

	reqs, caps, verr := s.tokens(req)
	if verr != nil {
		report.Errors = append(report.Errors, verr)
		return report, verr
	}

	cfg := s.requestConfig(req, report)
	report.Domain = cfg.Domain

	strict := req.Strict || cfg.StrictMode
	if strict && s.adapter == nil {
		e := NewError(ErrLLMUnavailable, "strict mode requires an LLM adapter; configure one or relax strict")
		report.Errors = append(report.Errors, e)
		return report, e
	}

	orch := s.buildOrchestrator(cfg)
	outcome, err := orch.Match(ctx, reqs, caps)
	s.fill(report, outcome)

	if err != nil {
		report.Errors = append(report.Errors, classify(err))
	}
	report.Errors = append(report.Errors, layerErrors(outcome)...)
	report.Status = deriveStatus(report, err)

	s.persist(ctx, report)
	return report, nil
}

// MatchProcess is the convenience wrapper: layers 1-2 only, early exit on
// the first match at or above the match threshold.
func (s *Service) MatchProcess(ctx context.Context, requirement, capability, domain string) (bool, error) {
	if strings.TrimSpace(requirement) == "" || strings.TrimSpace(capability) == "" {
		return false, NewError(ErrInputInvalid, "requirement and capability must be non-empty")
	}
	if domain == "" {
		domain = s.cfg.Domain
	}

	reqs, caps := []string{requirement}, []string{capability}
	layers := []matching.Layer{
		matching.NewDirectMatcher(s.tax, s.cfg.NearMissThreshold),
		matching.NewHeuristicMatcher(s.rules, domain),
	}
	for _, layer := range layers {
		results, _, err := layer.Match(ctx, reqs, caps, nil)
		if err != nil {
			return false, classify(err)
		}
		for _, r := range results {
			if r.Matched && r.Confidence >= s.cfg.MatchThreshold {
				return true, nil
			}
		}
	}
	return false, nil
}

// GenerateSupplyTree matches one manifest against one facility and builds
// the supply tree. Low coverage flags the tree for review; it never fails
// the call.
func (s *Service) GenerateSupplyTree(ctx context.Context, req *Request) (*supplytree.SupplyTree, *MatchingReport, error) {
	report, err := s.MatchRequirements(ctx, req)
	if err != nil {
		return nil, report, err
	}
	if req.Manifest == nil {
		e := NewError(ErrInputInvalid, "supply tree generation requires a manifest")
		report.Errors = append(report.Errors, e)
		return nil, report, e
	}

	builder := supplytree.NewBuilder(s.cfg.MatchThreshold, s.cfg.CoverageThreshold)
	tree := builder.Build(req.Manifest, req.Facility, report.Results, report.Elapsed)
	tree.OperationID = report.OperationID
	if tree.Coverage < s.cfg.CoverageThreshold {
		report.Errors = append(report.Errors, NewError(ErrCoverageBelowMin,
			"coverage %.2f below minimum %.2f", tree.Coverage, s.cfg.CoverageThreshold))
		if report.Status == StatusOK {
			report.Status = StatusPartial
		}
	}
	report.SupplyTree = tree
	return tree, report, nil
}

// GenerateSupplyTrees matches one manifest against every facility from the
// source and returns the solutions ranked best-first.
func (s *Service) GenerateSupplyTrees(ctx context.Context, manifestID string) ([]*supplytree.SupplyTree, error) {
	if s.source == nil {
		return nil, NewError(ErrInputInvalid, "no inventory source configured")
	}
	manifest, err := s.source.GetManifest(ctx, manifestID)
	if err != nil {
		return nil, NewError(ErrInputInvalid, "resolve manifest: %v", err)
	}
	facilities, err := s.source.ListFacilities(ctx)
	if err != nil {
		return nil, NewError(ErrInputInvalid, "list facilities: %v", err)
	}

	trees := make([]*supplytree.SupplyTree, 0, len(facilities))
	for _, f := range facilities {
		tree, _, err := s.GenerateSupplyTree(ctx, &Request{Manifest: manifest, Facility: f})
		if err != nil {
			logging.ServiceWarn("supply tree for facility %s failed: %v", f.ID, err)
			continue
		}
		trees = append(trees, tree)
	}
	supplytree.Rank(trees)
	return trees, nil
}

// =============================================================================
// REQUEST ASSEMBLY
// =============================================================================

// resolve fills in Manifest/Facility from the source when only ids were
// given.
func (s *Service) resolve(ctx context.Context, req *Request) *Error {
	if req.ManifestID != "" && req.Manifest == nil {
		if s.source == nil {
			return NewError(ErrInputInvalid, "manifest_id given but no inventory source configured")
		}
		m, err := s.source.GetManifest(ctx, req.ManifestID)
		if err != nil {
			return NewError(ErrInputInvalid, "resolve manifest: %v", err)
		}
		req.Manifest = m
	}
	if req.FacilityID != "" && req.Facility == nil {
		if s.source == nil {
			return NewError(ErrInputInvalid, "facility_id given but no inventory source configured")
		}
		f, err := s.source.GetFacility(ctx, req.FacilityID)
		if err != nil {
			return NewError(ErrInputInvalid, "resolve facility: %v", err)
		}
		req.Facility = f
	}
	return nil
}

// tokens derives and validates the requirement and capability token lists.
// Empty lists are a valid boundary: no requirements is trivially covered
// and no capabilities yields all-unmatched results. Only lists whose every
// token is blank are rejected as malformed.
func (s *Service) tokens(req *Request) ([]string, []string, *Error) {
	rawReqs := req.Requirements
	if len(rawReqs) == 0 && req.Manifest != nil {
		rawReqs = req.Manifest.Tokens()
	}
	rawCaps := req.Capabilities
	if len(rawCaps) == 0 && req.Facility != nil {
		rawCaps = req.Facility.Capabilities
	}

	reqs := cleanTokens(rawReqs)
	caps := cleanTokens(rawCaps)
	if len(reqs) == 0 && len(rawReqs) > 0 {
		return nil, nil, NewError(ErrInputInvalid, "requirement tokens are all blank")
	}
	if len(caps) == 0 && len(rawCaps) > 0 {
		return nil, nil, NewError(ErrInputInvalid, "capability tokens are all blank")
	}
	return reqs, caps, nil
}

// requestConfig overlays per-request options onto the base config and picks
// the domain (explicit beats manifest tag detection beats configured
// default).
func (s *Service) requestConfig(req *Request, report *MatchingReport) config.Config {
	cfg := s.cfg

	if req.QualityLevel != "" {
		if q, err := config.ParseQualityLevel(req.QualityLevel); err == nil {
			cfg.ApplyQualityLevel(q)
		} else {
			logging.ServiceWarn("ignoring %v", err)
		}
	}
	if req.Strategy != "" {
		cfg.Strategy = req.Strategy
	}

	switch {
	case req.Domain != "":
		cfg.Domain = req.Domain
		report.DomainConfidence = 1.0
	case req.Manifest != nil && req.Manifest.Domain != "":
		cfg.Domain = req.Manifest.Domain
		report.DomainConfidence = 1.0
	case req.Manifest != nil:
		domain, conf := DetectDomain(req.Manifest.Tags, cfg.Domain)
		cfg.Domain = domain
		report.DomainConfidence = conf
		logging.ServiceDebug("detected domain %s (confidence %.2f) from manifest tags", domain, conf)
	}
	return cfg
}

// buildOrchestrator assembles the per-request pipeline. Layers are cheap to
// construct; the expensive collaborators (taxonomy, rules, backends) are
// shared.
func (s *Service) buildOrchestrator(cfg config.Config) *orchestrator.Orchestrator {
	direct := matching.NewDirectMatcher(s.tax, cfg.NearMissThreshold)
	heuristic := matching.NewHeuristicMatcher(s.rules, cfg.Domain)
	nlp := matching.NewNLPMatcher(s.backend, cfg.Domain, cfg.SimilarityThreshold)
	llmLayer := matching.NewLLMMatcher(s.adapter, cfg.MatchThreshold, cfg.LLMRateLimit, cfg.LLMBurst)
	return orchestrator.New(cfg, s.tax, s.tracker, direct, heuristic, nlp, llmLayer)
}

// =============================================================================
// REPORTING
// =============================================================================

func (s *Service) fill(report *MatchingReport, outcome *orchestrator.Outcome) {
	if outcome == nil {
		return
	}
	report.Results = outcome.Results
	report.LayerMetrics = outcome.LayerMetrics
	report.OperationID = outcome.OperationID
	if op, ok := s.tracker.Get(outcome.OperationID); ok {
		report.Provenance = append([]provenance.Operation{op}, s.tracker.Children(outcome.OperationID)...)
	}
}

// classify maps pipeline errors to facade error kinds.
func classify(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrTimeout, "request deadline exceeded")
	case errors.Is(err, context.Canceled):
		return NewError(ErrCancelled, "request cancelled")
	default:
		return NewError(ErrLayerFailed, "%v", err)
	}
}

// layerErrors lifts per-layer error strings out of the metrics.
func layerErrors(outcome *orchestrator.Outcome) []*Error {
	if outcome == nil {
		return nil
	}
	var out []*Error
	for layer, m := range outcome.LayerMetrics {
		if m == nil || m.Success {
			continue
		}
		for _, msg := range m.Errors {
			out = append(out, LayerError(string(layer), fmt.Errorf("%s", msg)))
		}
	}
	return out
}

// deriveStatus: failed when nothing came back and something went wrong,
// partial when results coexist with errors, ok otherwise.
func deriveStatus(report *MatchingReport, err error) Status {
	switch {
	case err != nil && len(report.Results) == 0:
		return StatusFailed
	case len(report.Errors) > 0:
		return StatusPartial
	default:
		return StatusOK
	}
}

// persist writes the report to the configured store; persistence failures
// are logged, never surfaced.
func (s *Service) persist(ctx context.Context, report *MatchingReport) {
	if s.store == nil || report.OperationID == "" {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		logging.ServiceWarn("marshal report for persistence: %v", err)
		return
	}
	if err := s.store.Put(ctx, "reports/"+report.OperationID, data); err != nil {
		logging.ServiceWarn("persist report: %v", err)
	}
}

func cleanTokens(in []string) []string {
	var out []string
	for _, t := range in {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}
