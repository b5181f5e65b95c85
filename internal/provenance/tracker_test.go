package provenance

import (
	"testing"
	"time"

	"ome/internal/matching"
)

func TestOperationLifecycle(t *testing.T) {
	tr := NewTracker()

	id := tr.Begin("orchestrate_match", "", map[string]int{"requirements": 2})
	op, ok := tr.Get(id)
	if !ok {
		t.Fatal("operation not found")
	}
	if op.Status != StatusQueued {
		t.Fatalf("initial status = %s", op.Status)
	}
	if op.Inputs["requirements"] != 2 {
		t.Fatalf("inputs = %v", op.Inputs)
	}

	tr.Start(id)
	if op, _ := tr.Get(id); op.Status != StatusRunning {
		t.Fatalf("status after Start = %s", op.Status)
	}

	tr.Complete(id, map[string]int{"matches": 1})
	op, _ = tr.Get(id)
	if op.Status != StatusCompleted {
		t.Fatalf("status after Complete = %s", op.Status)
	}
	if op.End.IsZero() {
		t.Fatal("end timestamp not set")
	}
	if op.Outputs["matches"] != 1 {
		t.Fatalf("outputs = %v", op.Outputs)
	}
}

func TestFailAndEarlyTerminate(t *testing.T) {
	tr := NewTracker()

	failed := tr.Begin("layer_direct", "", nil)
	tr.Fail(failed, "cancelled")
	if op, _ := tr.Get(failed); op.Status != StatusFailed || op.Error != "cancelled" {
		t.Fatalf("failed op = %+v", op)
	}

	early := tr.Begin("orchestrate_match", "", nil)
	tr.EarlyTerminate(early, "confidence 0.95 >= 0.95", map[string]int{"results": 3})
	op, _ := tr.Get(early)
	if op.Status != StatusEarlyTerminated {
		t.Fatalf("status = %s", op.Status)
	}
	if op.Detail["early_termination_reason"] == "" {
		t.Fatal("termination reason not recorded")
	}
}

func TestParentChildOperations(t *testing.T) {
	tr := NewTracker()

	parent := tr.Begin("orchestrate_match", "", nil)
	c1 := tr.Begin("layer_direct", parent, nil)
	c2 := tr.Begin("layer_heuristic", parent, nil)
	_ = tr.Begin("orchestrate_match", "", nil) // unrelated

	children := tr.Children(parent)
	if len(children) != 2 {
		t.Fatalf("got %d children, want 2", len(children))
	}
	if children[0].ID != c1 || children[1].ID != c2 {
		t.Fatal("children out of creation order")
	}
}

func TestUniqueOperationIDs(t *testing.T) {
	tr := NewTracker()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := tr.Begin("op", "", nil)
		if seen[id] {
			t.Fatalf("duplicate operation id %s", id)
		}
		seen[id] = true
	}
}

func TestLayerStatsAggregation(t *testing.T) {
	tr := NewTracker()

	start := time.Now()
	tr.RecordLayer(matching.LayerDirect, &matching.LayerMetrics{
		Start: start, End: start.Add(10 * time.Millisecond), Success: true, MatchesFound: 2,
	})
	tr.RecordLayer(matching.LayerDirect, &matching.LayerMetrics{
		Start: start, End: start.Add(30 * time.Millisecond), Success: false, Errors: []string{"cancelled"},
	})
	tr.RecordLLMUsage(120, 0.0004)

	snap := tr.LayerSnapshot()
	direct := snap[matching.LayerDirect]
	if direct.Requests != 2 || direct.Successes != 1 || direct.Errors != 1 || direct.Matches != 2 {
		t.Fatalf("direct stats = %+v", direct)
	}
	if direct.MeanTime() != 20*time.Millisecond {
		t.Fatalf("mean time = %s", direct.MeanTime())
	}

	llm := snap[matching.LayerLLM]
	if llm.TokensUsed != 120 || llm.Cost != 0.0004 {
		t.Fatalf("llm stats = %+v", llm)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	tr := NewTracker()
	id := tr.Begin("op", "", map[string]int{"n": 1})

	op, _ := tr.Get(id)
	op.Inputs["n"] = 99
	op.Status = StatusFailed

	again, _ := tr.Get(id)
	if again.Inputs["n"] != 1 || again.Status != StatusQueued {
		t.Fatal("Get returned shared state")
	}
}
