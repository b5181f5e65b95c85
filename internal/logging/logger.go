// Package logging provides categorized structured logging for the matching
// engine. Each subsystem logs to its own category; categories can be toggled
// at runtime so a noisy layer can be silenced without losing the rest.
// The sink is a shared zap core, so output format and destination follow
// whatever the application shell configured.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryTaxonomy     Category = "taxonomy"     // Process taxonomy load/reload/normalize
	CategoryRules        Category = "rules"        // Capability rule store
	CategoryDirect       Category = "direct"       // Layer 1 direct matcher
	CategoryHeuristic    Category = "heuristic"    // Layer 2 heuristic matcher
	CategoryNLP          Category = "nlp"          // Layer 3 NLP matcher
	CategoryLLM          Category = "llm"          // Layer 4 LLM matcher
	CategoryOrchestrator Category = "orchestrator" // Pipeline strategy execution
	CategoryProvenance   Category = "provenance"   // Operation spans and metrics
	CategorySupplyTree   Category = "supplytree"   // Supply tree builder
	CategoryService      Category = "service"      // Facade entry points
	CategoryStorage      Category = "storage"      // KV storage provider
	CategoryEmbedding    Category = "embedding"    // Similarity backend
)

var (
	mu        sync.RWMutex
	root      *zap.SugaredLogger
	loggers   map[Category]*zap.SugaredLogger
	disabled  map[Category]bool
	debugMode bool
)

func init() {
	loggers = make(map[Category]*zap.SugaredLogger)
	disabled = make(map[Category]bool)
	root = zap.NewNop().Sugar()
}

// Initialize installs the root logger. Call once at startup; passing nil
// installs a production zap logger. Debug mode enables Debug-level output.
func Initialize(base *zap.Logger, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	if base == nil {
		var err error
		if debug {
			base, err = zap.NewDevelopment()
		} else {
			base, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
	}
	root = base.Sugar()
	debugMode = debug
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// SetCategoryEnabled toggles a single category at runtime.
func SetCategoryEnabled(c Category, enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	disabled[c] = !enabled
}

// IsCategoryEnabled reports whether a category currently emits logs.
func IsCategoryEnabled(c Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return !disabled[c]
}

// IsDebugMode reports whether debug output is enabled.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}

// Get returns the logger for a category, creating it on first use.
// Disabled categories get a no-op logger.
func Get(c Category) *zap.SugaredLogger {
	mu.RLock()
	if disabled[c] {
		mu.RUnlock()
		return zap.NewNop().Sugar()
	}
	if l, ok := loggers[c]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[c]; ok {
		return l
	}
	l := root.Named(string(c))
	loggers[c] = l
	return l
}

// CloseAll flushes every logger. Call at shutdown.
func CloseAll() error {
	mu.RLock()
	defer mu.RUnlock()
	var err error
	err = multierr.Append(err, root.Sync())
	return err
}

// =============================================================================
// CONVENIENCE FUNCTIONS - quick logging without getting a logger first
// =============================================================================

// Taxonomy logs to the taxonomy category.
func Taxonomy(format string, args ...interface{}) { Get(CategoryTaxonomy).Infof(format, args...) }

// TaxonomyDebug logs debug to the taxonomy category.
func TaxonomyDebug(format string, args ...interface{}) {
	Get(CategoryTaxonomy).Debugf(format, args...)
}

// TaxonomyWarn logs warning to the taxonomy category.
func TaxonomyWarn(format string, args ...interface{}) { Get(CategoryTaxonomy).Warnf(format, args...) }

// Rules logs to the rules category.
func Rules(format string, args ...interface{}) { Get(CategoryRules).Infof(format, args...) }

// RulesDebug logs debug to the rules category.
func RulesDebug(format string, args ...interface{}) { Get(CategoryRules).Debugf(format, args...) }

// RulesWarn logs warning to the rules category.
func RulesWarn(format string, args ...interface{}) { Get(CategoryRules).Warnf(format, args...) }

// Direct logs to the direct matcher category.
func Direct(format string, args ...interface{}) { Get(CategoryDirect).Infof(format, args...) }

// DirectDebug logs debug to the direct matcher category.
func DirectDebug(format string, args ...interface{}) { Get(CategoryDirect).Debugf(format, args...) }

// Heuristic logs to the heuristic matcher category.
func Heuristic(format string, args ...interface{}) { Get(CategoryHeuristic).Infof(format, args...) }

// HeuristicDebug logs debug to the heuristic matcher category.
func HeuristicDebug(format string, args ...interface{}) {
	Get(CategoryHeuristic).Debugf(format, args...)
}

// NLP logs to the nlp matcher category.
func NLP(format string, args ...interface{}) { Get(CategoryNLP).Infof(format, args...) }

// NLPDebug logs debug to the nlp matcher category.
func NLPDebug(format string, args ...interface{}) { Get(CategoryNLP).Debugf(format, args...) }

// NLPWarn logs warning to the nlp matcher category.
func NLPWarn(format string, args ...interface{}) { Get(CategoryNLP).Warnf(format, args...) }

// LLM logs to the llm matcher category.
func LLM(format string, args ...interface{}) { Get(CategoryLLM).Infof(format, args...) }

// LLMDebug logs debug to the llm matcher category.
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debugf(format, args...) }

// LLMWarn logs warning to the llm matcher category.
func LLMWarn(format string, args ...interface{}) { Get(CategoryLLM).Warnf(format, args...) }

// Orchestrator logs to the orchestrator category.
func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Infof(format, args...)
}

// OrchestratorDebug logs debug to the orchestrator category.
func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debugf(format, args...)
}

// OrchestratorWarn logs warning to the orchestrator category.
func OrchestratorWarn(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Warnf(format, args...)
}

// Provenance logs to the provenance category.
func Provenance(format string, args ...interface{}) { Get(CategoryProvenance).Infof(format, args...) }

// ProvenanceDebug logs debug to the provenance category.
func ProvenanceDebug(format string, args ...interface{}) {
	Get(CategoryProvenance).Debugf(format, args...)
}

// ProvenanceWarn logs a warning to the provenance category.
func ProvenanceWarn(format string, args ...interface{}) {
	Get(CategoryProvenance).Warnf(format, args...)
}

// SupplyTree logs to the supply tree category.
func SupplyTree(format string, args ...interface{}) { Get(CategorySupplyTree).Infof(format, args...) }

// SupplyTreeDebug logs debug to the supply tree category.
func SupplyTreeDebug(format string, args ...interface{}) {
	Get(CategorySupplyTree).Debugf(format, args...)
}

// Service logs to the service category.
func Service(format string, args ...interface{}) { Get(CategoryService).Infof(format, args...) }

// ServiceDebug logs debug to the service category.
func ServiceDebug(format string, args ...interface{}) { Get(CategoryService).Debugf(format, args...) }

// ServiceWarn logs warning to the service category.
func ServiceWarn(format string, args ...interface{}) { Get(CategoryService).Warnf(format, args...) }

// ServiceError logs error to the service category.
func ServiceError(format string, args ...interface{}) { Get(CategoryService).Errorf(format, args...) }

// Storage logs to the storage category.
func Storage(format string, args ...interface{}) { Get(CategoryStorage).Infof(format, args...) }

// StorageDebug logs debug to the storage category.
func StorageDebug(format string, args ...interface{}) { Get(CategoryStorage).Debugf(format, args...) }

// Embedding logs to the embedding category.
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Infof(format, args...) }

// EmbeddingDebug logs debug to the embedding category.
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debugf(format, args...)
}

// EmbeddingWarn logs warning to the embedding category.
func EmbeddingWarn(format string, args ...interface{}) { Get(CategoryEmbedding).Warnf(format, args...) }

// =============================================================================
// TIMING HELPERS - for performance logging
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

// NewTestCore returns a zap logger backed by an in-memory observer for tests.
func NewTestCore() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}
