// Package orchestrator runs the four matcher layers under one of four
// strategies and merges their results into a single deterministic set. It
// owns the per-request lifecycle (queued, running, completed, failed,
// early-terminated) and records it in provenance.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ome/internal/config"
	"ome/internal/logging"
	"ome/internal/matching"
	"ome/internal/provenance"
)

// Outcome is the merged result of one orchestrated request.
type Outcome struct {
	Results         []matching.MatchingResult                     `json:"results"`
	LayerMetrics    map[matching.LayerType]*matching.LayerMetrics `json:"layer_metrics"`
	Strategy        config.Strategy                               `json:"strategy"`
	EarlyTerminated bool                                          `json:"early_terminated"`
	TerminationWhy  string                                        `json:"termination_reason,omitempty"`
	OperationID     string                                        `json:"operation_id"`
	Elapsed         time.Duration                                 `json:"elapsed"`
}

// Orchestrator coordinates the layers. Layers are optional except direct;
// absent layers are skipped (or rejected up front in strict mode, which the
// service facade enforces).
type Orchestrator struct {
	cfg     config.Config
	tax     matching.Normalizer
	tracker *provenance.Tracker
	sem     *semaphore.Weighted

	direct    matching.Layer
	heuristic matching.Layer
	nlp       matching.Layer
	llm       *matching.LLMMatcher
}

// New creates an orchestrator. tracker may be nil, in which case a private
// one is created.
func New(cfg config.Config, tax matching.Normalizer, tracker *provenance.Tracker,
	direct, heuristic, nlp matching.Layer, llm *matching.LLMMatcher) *Orchestrator {

	if tracker == nil {
		tracker = provenance.NewTracker()
	}
	maxPairs := cfg.MaxInFlightPairs
	if maxPairs < 1 {
		maxPairs = 1
	}
	return &Orchestrator{
		cfg:       cfg,
		tax:       tax,
		tracker:   tracker,
		sem:       semaphore.NewWeighted(int64(maxPairs)),
		direct:    direct,
		heuristic: heuristic,
		nlp:       nlp,
		llm:       llm,
	}
}

// Tracker returns the provenance tracker in use.
func (o *Orchestrator) Tracker() *provenance.Tracker { return o.tracker }

// Match runs the configured strategy over the inputs. On cancellation the
// partial results gathered so far are returned alongside the error, and the
// operation is recorded as failed.
func (o *Orchestrator) Match(ctx context.Context, reqs, caps []string) (*Outcome, error) {
	start := time.Now()

	opID := o.tracker.Begin("orchestrate_match", "", map[string]int{
		"requirements": len(reqs),
		"capabilities": len(caps),
	})
	o.tracker.Annotate(opID, "strategy", string(o.cfg.Strategy))
	o.tracker.Start(opID)

	if o.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()
	}

	out := &Outcome{
		Strategy:     o.cfg.Strategy,
		LayerMetrics: make(map[matching.LayerType]*matching.LayerMetrics),
		OperationID:  opID,
	}

	var err error
	switch o.cfg.Strategy {
	case config.StrategyParallel:
		err = o.runParallel(ctx, reqs, caps, opID, out)
	case config.StrategyAdaptive:
		err = o.runAdaptive(ctx, reqs, caps, opID, out)
	case config.StrategyCostOptimized:
		err = o.runSequence(ctx, reqs, caps, opID, out, o.availableLayers())
	default: // sequential
		err = o.runSequence(ctx, reqs, caps, opID, out, o.availableLayers())
	}

	out.Results = NormalizeResults(o.tax, out.Results)
	out.Elapsed = time.Since(start)

	outputs := map[string]int{
		"results": len(out.Results),
		"matches": countMatched(out.Results),
	}
	switch {
	case err != nil:
		o.tracker.Fail(opID, err.Error())
	case out.EarlyTerminated:
		o.tracker.EarlyTerminate(opID, out.TerminationWhy, outputs)
	default:
		o.tracker.Complete(opID, outputs)
	}

	logging.Orchestrator("match done: strategy=%s results=%d matches=%d elapsed=%s err=%v",
		o.cfg.Strategy, len(out.Results), outputs["matches"], out.Elapsed, err)
	return out, err
}

// =============================================================================
// STRATEGIES
// =============================================================================

// runParallel runs every available layer concurrently over the full inputs.
// No feedback flows between layers; merging handles the overlap.
func (o *Orchestrator) runParallel(ctx context.Context, reqs, caps []string, opID string, out *Outcome) error {
	layers := o.availableLayers()

	type layerOut struct {
		layer   matching.LayerType
		results []matching.MatchingResult
		metrics *matching.LayerMetrics
	}
	outs := make([]layerOut, len(layers))

	g, gctx := errgroup.WithContext(ctx)
	for i, layer := range layers {
		g.Go(func() error {
			res, met, err := o.invokeLayer(gctx, layer, reqs, caps, nil, opID)
			outs[i] = layerOut{layer: layer.Type(), results: res, metrics: met}
			return err
		})
	}
	err := g.Wait()

	for _, lo := range outs {
		if lo.metrics != nil {
			out.LayerMetrics[lo.layer] = lo.metrics
		}
		out.Results = append(out.Results, lo.results...)
	}
	return err
}

// runSequence runs the given layers in order with feedback flowing forward.
// Requirements covered at high confidence drop out of later layers, direct
// near-misses are routed to the semantic tiers, and early-termination
// conditions are checked between layers.
func (o *Orchestrator) runSequence(ctx context.Context, reqs, caps []string, opID string, out *Outcome, layers []matching.Layer) error {
	fb := matching.NewFeedback()
	seqStart := time.Now()
	remaining := append([]string(nil), reqs...)

	for i, layer := range layers {
		if len(remaining) == 0 {
			out.EarlyTerminated = true
			out.TerminationWhy = "all requirements covered"
			break
		}

		fb.Elapsed = time.Since(seqStart)
		res, met, err := o.invokeLayer(ctx, layer, remaining, caps, fb, opID)
		if met != nil {
			out.LayerMetrics[layer.Type()] = met
		}
		out.Results = append(out.Results, res...)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("cancelled: %w", err)
			}
			// A failed middle layer degrades the pipeline, it does not
			// abort it. The failure is on record in the layer metrics.
			logging.OrchestratorWarn("layer %s failed, continuing: %v", layer.Type(), err)
			continue
		}

		fb.Results[layer.Type()] = res
		if layer.Type() == matching.LayerDirect {
			fb.NearMisses = nearMisses(res, o.cfg.NearMissMin, o.cfg.MatchThreshold)
			if len(fb.NearMisses) > 0 {
				fb.Insights["near_miss_handler"] = string(o.nearMissHandler())
			}
		}

		remaining = o.uncovered(remaining, out.Results)

		if reason, hit := o.shouldTerminate(reqs, out.Results, i, len(layers), time.Since(seqStart)); hit {
			out.EarlyTerminated = true
			out.TerminationWhy = reason
			break
		}
	}
	return nil
}

// adaptiveCheapBudget is the compute-cost cutoff below which adaptive
// requests degrade to the cost-optimized sequence.
const adaptiveCheapBudget = 0.5

// runAdaptive picks a concrete strategy from the request budget: a tight
// compute budget degrades to the cost-optimized sequence over the string
// tiers, a high accuracy demand gets the full sequential pipeline with
// feedback, and everything else runs parallel for the widest result set.
func (o *Orchestrator) runAdaptive(ctx context.Context, reqs, caps []string, opID string, out *Outcome) error {
	switch {
	case o.cfg.MaxComputeCost < adaptiveCheapBudget:
		o.tracker.Annotate(opID, "adaptive_choice", string(config.StrategyCostOptimized))
		logging.OrchestratorDebug("adaptive: cost-optimized (budget %.2f)", o.cfg.MaxComputeCost)
		layers := []matching.Layer{o.direct}
		if o.heuristic != nil {
			layers = append(layers, o.heuristic)
		}
		return o.runSequence(ctx, reqs, caps, opID, out, layers)
	case o.cfg.MinAccuracy >= 0.95:
		o.tracker.Annotate(opID, "adaptive_choice", string(config.StrategySequential))
		logging.OrchestratorDebug("adaptive: sequential (accuracy %.2f)", o.cfg.MinAccuracy)
		return o.runSequence(ctx, reqs, caps, opID, out, o.availableLayers())
	default:
		o.tracker.Annotate(opID, "adaptive_choice", string(config.StrategyParallel))
		logging.OrchestratorDebug("adaptive: parallel (budget %.2f, accuracy %.2f)",
			o.cfg.MaxComputeCost, o.cfg.MinAccuracy)
		return o.runParallel(ctx, reqs, caps, opID, out)
	}
}

func (o *Orchestrator) availableLayers() []matching.Layer {
	layers := []matching.Layer{o.direct}
	if o.heuristic != nil {
		layers = append(layers, o.heuristic)
	}
	if o.nlp != nil {
		layers = append(layers, o.nlp)
	}
	if o.llm != nil && o.llm.Available() {
		layers = append(layers, o.llm)
	}
	return layers
}

func (o *Orchestrator) nearMissHandler() matching.LayerType {
	if o.nlp != nil {
		return matching.LayerNLP
	}
	return matching.LayerLLM
}

// =============================================================================
// LAYER INVOCATION
// =============================================================================

// invokeLayer runs one layer under the pair semaphore and layer timeout,
// recording the invocation in provenance either way.
func (o *Orchestrator) invokeLayer(ctx context.Context, layer matching.Layer, reqs, caps []string, fb *matching.Feedback, parentID string) ([]matching.MatchingResult, *matching.LayerMetrics, error) {
	weight := int64(len(reqs) * len(caps))
	if max := int64(o.cfg.MaxInFlightPairs); weight > max {
		weight = max
	}
	if weight < 1 {
		weight = 1
	}
	if err := o.sem.Acquire(ctx, weight); err != nil {
		return nil, nil, err
	}
	defer o.sem.Release(weight)

	if o.cfg.LayerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.LayerTimeout)
		defer cancel()
	}

	childID := o.tracker.Begin("layer_"+string(layer.Type()), parentID, map[string]int{
		"requirements": len(reqs),
		"capabilities": len(caps),
	})
	o.tracker.Start(childID)

	var llmBefore matching.LLMMetrics
	if lm, ok := layer.(*matching.LLMMatcher); ok {
		llmBefore = lm.Metrics()
	}

	timer := logging.StartTimer(logging.CategoryOrchestrator, "layer_"+string(layer.Type()))
	res, met, err := layer.Match(ctx, reqs, caps, fb)
	timer.Stop()

	if lm, ok := layer.(*matching.LLMMatcher); ok {
		after := lm.Metrics()
		o.tracker.RecordLLMUsage(after.TokensUsed-llmBefore.TokensUsed, after.Cost-llmBefore.Cost)
	}
	o.tracker.RecordLayer(layer.Type(), met)

	if err != nil {
		o.tracker.Fail(childID, err.Error())
	} else {
		matches := 0
		if met != nil {
			matches = met.MatchesFound
		}
		o.tracker.Complete(childID, map[string]int{"results": len(res), "matches": matches})
	}
	return res, met, err
}

// =============================================================================
// TERMINATION AND FILTERING
// =============================================================================

// shouldTerminate checks the early-termination conditions after a layer:
// a high-confidence match, sufficient coverage, or the latency budget used
// up. Never fires after the final layer; there is nothing left to skip.
func (o *Orchestrator) shouldTerminate(reqs []string, results []matching.MatchingResult, layerIdx, totalLayers int, elapsed time.Duration) (string, bool) {
	if layerIdx >= totalLayers-1 {
		return "", false
	}

	if o.cfg.EarlyTerminateConfidence > 0 {
		for _, r := range results {
			if r.Matched && r.Confidence >= o.cfg.EarlyTerminateConfidence {
				return fmt.Sprintf("confidence %.2f >= %.2f", r.Confidence, o.cfg.EarlyTerminateConfidence), true
			}
		}
	}

	if o.cfg.EarlyTerminateCoverage > 0 && len(reqs) > 0 {
		cov := o.coverage(reqs, results)
		if cov >= o.cfg.EarlyTerminateCoverage {
			return fmt.Sprintf("coverage %.2f >= %.2f", cov, o.cfg.EarlyTerminateCoverage), true
		}
	}

	if o.cfg.EarlyTerminateBudgetUsed > 0 && o.cfg.MaxLatency > 0 {
		used := float64(elapsed) / float64(o.cfg.MaxLatency)
		if used >= o.cfg.EarlyTerminateBudgetUsed {
			return fmt.Sprintf("latency budget %.0f%% used", used*100), true
		}
	}
	return "", false
}

// coverage is the fraction of requirements with a match at or above the
// match threshold.
func (o *Orchestrator) coverage(reqs []string, results []matching.MatchingResult) float64 {
	if len(reqs) == 0 {
		return 1.0
	}
	covered := make(map[string]bool)
	for _, r := range results {
		if r.Matched && r.Confidence >= o.cfg.MatchThreshold {
			covered[o.key(r.Requirement)] = true
		}
	}
	n := 0
	for _, req := range reqs {
		if covered[o.key(req)] {
			n++
		}
	}
	return float64(n) / float64(len(reqs))
}

// uncovered filters out requirements already matched at or above the
// high-confidence threshold so later, costlier layers skip them.
func (o *Orchestrator) uncovered(reqs []string, results []matching.MatchingResult) []string {
	done := make(map[string]bool)
	for _, r := range results {
		if r.Matched && r.Confidence >= o.cfg.HighConfidenceThreshold {
			done[o.key(r.Requirement)] = true
		}
	}
	out := reqs[:0:0]
	for _, req := range reqs {
		if !done[o.key(req)] {
			out = append(out, req)
		}
	}
	return out
}

func (o *Orchestrator) key(s string) string {
	return matching.NormalizeToken(o.tax, s).Normalized
}

// nearMisses picks direct results whose confidence sits in the routing band
// [lo, hi): close enough to hand to the semantic tiers, not close enough to
// accept.
func nearMisses(results []matching.MatchingResult, lo, hi float64) []matching.MatchingResult {
	var out []matching.MatchingResult
	for _, r := range results {
		if r.Metadata.Quality == matching.QualityNearMiss && r.Confidence >= lo && r.Confidence < hi {
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// RESULT NORMALIZATION
// =============================================================================

// NormalizeResults deduplicates by (normalized requirement, normalized
// capability, layer), keeping the highest confidence per key and merging
// reasons, then sorts for deterministic output.
func NormalizeResults(tax matching.Normalizer, results []matching.MatchingResult) []matching.MatchingResult {
	type dedupKey struct {
		req, cap string
		layer    matching.LayerType
	}

	best := make(map[dedupKey]matching.MatchingResult)
	order := make([]dedupKey, 0, len(results))
	for _, r := range results {
		k := dedupKey{
			req:   matching.NormalizeToken(tax, r.Requirement).Normalized,
			cap:   matching.NormalizeToken(tax, r.Capability).Normalized,
			layer: r.Layer,
		}
		prev, seen := best[k]
		if !seen {
			best[k] = r
			order = append(order, k)
			continue
		}
		if r.Confidence > prev.Confidence {
			r.Metadata.Reasons = mergeReasons(prev.Metadata.Reasons, r.Metadata.Reasons)
			best[k] = r
		} else {
			prev.Metadata.Reasons = mergeReasons(prev.Metadata.Reasons, r.Metadata.Reasons)
			best[k] = prev
		}
	}

	out := make([]matching.MatchingResult, 0, len(best))
	for _, k := range order {
		out = append(out, best[k])
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ar := matching.NormalizeToken(tax, a.Requirement).Normalized
		br := matching.NormalizeToken(tax, b.Requirement).Normalized
		if ar != br {
			return ar < br
		}
		ac := matching.NormalizeToken(tax, a.Capability).Normalized
		bc := matching.NormalizeToken(tax, b.Capability).Normalized
		if ac != bc {
			return ac < bc
		}
		return a.Layer < b.Layer
	})
	return out
}

func mergeReasons(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, r := range append(append([]string(nil), a...), b...) {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

func countMatched(results []matching.MatchingResult) int {
	n := 0
	for _, r := range results {
		if r.Matched {
			n++
		}
	}
	return n
}
