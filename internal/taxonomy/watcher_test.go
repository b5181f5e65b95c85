package taxonomy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherTriggersReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processes.yaml")
	if err := os.WriteFile(path, []byte(validTaxonomyYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	tax, err := New(path)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(map[string]Reloader{path: tax})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	updated := validTaxonomyYAML + `
- id: welding
  display_name: Welding
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for !tax.Has("welding") {
		select {
		case <-deadline:
			t.Fatal("reload not triggered within deadline")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processes.yaml")
	if err := os.WriteFile(path, []byte(validTaxonomyYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	tax, err := New(path)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(map[string]Reloader{path: tax})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Writing a sibling file must not disturb the active snapshot.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)

	if got := tax.Normalize("PCB"); got != "pcb_assembly" {
		t.Fatalf("snapshot disturbed: %q", got)
	}
}
