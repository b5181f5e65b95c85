// Package provenance records what the engine did and how well each layer is
// performing. Operation records answer "where did this result come from";
// aggregate metrics answer "how are the layers doing". All state is held in
// memory behind one mutex; reads return copies.
package provenance

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ome/internal/logging"
	"ome/internal/matching"
)

// Status is the lifecycle state of a tracked operation.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusEarlyTerminated Status = "early_terminated"
)

// Operation is one tracked unit of work. Input and output summaries hold
// counts, never payloads, so provenance stays cheap to retain.
type Operation struct {
	ID       string            `json:"id"`
	ParentID string            `json:"parent_id,omitempty"`
	Kind     string            `json:"kind"`
	Status   Status            `json:"status"`
	Start    time.Time         `json:"start"`
	End      time.Time         `json:"end,omitempty"`
	Inputs   map[string]int    `json:"inputs,omitempty"`
	Outputs  map[string]int    `json:"outputs,omitempty"`
	Detail   map[string]string `json:"detail,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// LayerStats aggregates layer performance across requests.
type LayerStats struct {
	Requests   int64         `json:"requests"`
	Successes  int64         `json:"successes"`
	Errors     int64         `json:"errors"`
	Matches    int64         `json:"matches"`
	TotalTime  time.Duration `json:"total_time"`
	TokensUsed int64         `json:"tokens_used,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
}

// MeanTime returns the average layer invocation duration.
func (s LayerStats) MeanTime() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Requests)
}

// Tracker is the in-memory provenance store.
type Tracker struct {
	mu     sync.Mutex
	ops    map[string]*Operation
	order  []string
	layers map[matching.LayerType]*LayerStats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ops:    make(map[string]*Operation),
		layers: make(map[matching.LayerType]*LayerStats),
	}
}

// Begin registers a new operation in the queued state and returns its id.
// parentID may be empty for top-level operations.
func (t *Tracker) Begin(kind, parentID string, inputs map[string]int) string {
	op := &Operation{
		ID:       uuid.NewString(),
		ParentID: parentID,
		Kind:     kind,
		Status:   StatusQueued,
		Start:    time.Now(),
		Inputs:   cloneCounts(inputs),
	}

	t.mu.Lock()
	t.ops[op.ID] = op
	t.order = append(t.order, op.ID)
	t.mu.Unlock()

	logging.ProvenanceDebug("begin %s op=%s parent=%s", kind, op.ID, parentID)
	return op.ID
}

// Start moves an operation to running.
func (t *Tracker) Start(id string) {
	t.transition(id, StatusRunning, "", nil)
}

// Complete finishes an operation with output counts.
func (t *Tracker) Complete(id string, outputs map[string]int) {
	t.transition(id, StatusCompleted, "", outputs)
}

// Fail finishes an operation with an error message.
func (t *Tracker) Fail(id string, errMsg string) {
	t.transition(id, StatusFailed, errMsg, nil)
}

// EarlyTerminate finishes an operation that stopped before exhausting its
// layers, recording why in the detail map.
func (t *Tracker) EarlyTerminate(id, reason string, outputs map[string]int) {
	t.mu.Lock()
	if op, ok := t.ops[id]; ok {
		op.Status = StatusEarlyTerminated
		op.End = time.Now()
		op.Outputs = cloneCounts(outputs)
		if op.Detail == nil {
			op.Detail = make(map[string]string)
		}
		op.Detail["early_termination_reason"] = reason
	}
	t.mu.Unlock()
	logging.Provenance("op=%s early terminated: %s", id, reason)
}

// Annotate attaches a detail key to an operation.
func (t *Tracker) Annotate(id, key, value string) {
	t.mu.Lock()
	if op, ok := t.ops[id]; ok {
		if op.Detail == nil {
			op.Detail = make(map[string]string)
		}
		op.Detail[key] = value
	}
	t.mu.Unlock()
}

func (t *Tracker) transition(id string, status Status, errMsg string, outputs map[string]int) {
	t.mu.Lock()
	op, ok := t.ops[id]
	if ok {
		op.Status = status
		if status != StatusRunning {
			op.End = time.Now()
		}
		if errMsg != "" {
			op.Error = errMsg
		}
		if outputs != nil {
			op.Outputs = cloneCounts(outputs)
		}
	}
	t.mu.Unlock()

	if ok && status == StatusFailed {
		logging.ProvenanceWarn("op=%s failed: %s", id, errMsg)
	}
}

// RecordLayer folds one layer invocation into the aggregate stats.
func (t *Tracker) RecordLayer(layer matching.LayerType, m *matching.LayerMetrics) {
	if m == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.layers[layer]
	if s == nil {
		s = &LayerStats{}
		t.layers[layer] = s
	}
	s.Requests++
	if m.Success {
		s.Successes++
	}
	s.Errors += int64(len(m.Errors))
	s.Matches += int64(m.MatchesFound)
	if !m.End.IsZero() {
		s.TotalTime += m.End.Sub(m.Start)
	}
}

// RecordLLMUsage adds token and cost counters to the LLM layer stats.
func (t *Tracker) RecordLLMUsage(tokens int64, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.layers[matching.LayerLLM]
	if s == nil {
		s = &LayerStats{}
		t.layers[matching.LayerLLM] = s
	}
	s.TokensUsed += tokens
	s.Cost += cost
}

// Get returns a copy of one operation record.
func (t *Tracker) Get(id string) (Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok {
		return Operation{}, false
	}
	return cloneOp(op), true
}

// Operations returns copies of all operations in creation order.
func (t *Tracker) Operations() []Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Operation, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, cloneOp(t.ops[id]))
	}
	return out
}

// Children returns copies of the operations parented by id, in creation order.
func (t *Tracker) Children(id string) []Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Operation
	for _, oid := range t.order {
		if op := t.ops[oid]; op.ParentID == id {
			out = append(out, cloneOp(op))
		}
	}
	return out
}

// LayerSnapshot returns a copy of the aggregate stats per layer.
func (t *Tracker) LayerSnapshot() map[matching.LayerType]LayerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[matching.LayerType]LayerStats, len(t.layers))
	for k, v := range t.layers {
		out[k] = *v
	}
	return out
}

func cloneOp(op *Operation) Operation {
	c := *op
	c.Inputs = cloneCounts(op.Inputs)
	c.Outputs = cloneCounts(op.Outputs)
	if op.Detail != nil {
		c.Detail = make(map[string]string, len(op.Detail))
		for k, v := range op.Detail {
			c.Detail[k] = v
		}
	}
	return c
}

func cloneCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
