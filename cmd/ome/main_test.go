package main

import (
	"strings"
	"testing"
	"time"

	"ome/internal/config"
	"ome/internal/service"
)

func TestBaseConfigFoldsFlags(t *testing.T) {
	defer func() {
		domain, strategy, quality, strict = "", "", "", false
		timeout = 2 * time.Minute
		verbose = false
	}()

	domain = "cooking"
	strategy = "parallel"
	timeout = 30 * time.Second
	verbose = true

	cfg, err := baseConfig()
	if err != nil {
		t.Fatalf("baseConfig: %v", err)
	}
	if cfg.Domain != "cooking" {
		t.Fatalf("domain = %s", cfg.Domain)
	}
	if cfg.Strategy != config.StrategyParallel {
		t.Fatalf("strategy = %s", cfg.Strategy)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.RequestTimeout)
	}
	if !cfg.Debug {
		t.Fatal("verbose did not enable debug")
	}
}

func TestBaseConfigMedicalPreset(t *testing.T) {
	defer func() { quality = "" }()
	quality = "medical"

	cfg, err := baseConfig()
	if err != nil {
		t.Fatalf("baseConfig: %v", err)
	}
	// The medical preset forces strict mode even without --strict.
	if !cfg.StrictMode {
		t.Fatal("medical preset did not enable strict mode")
	}
	if cfg.MatchThreshold != 0.85 {
		t.Fatalf("match threshold = %v", cfg.MatchThreshold)
	}
}

func TestBaseConfigRejectsBadQuality(t *testing.T) {
	defer func() { quality = "" }()
	quality = "imaginary"
	if _, err := baseConfig(); err == nil {
		t.Fatal("unknown quality level accepted")
	}
}

func TestManifestFromTokens(t *testing.T) {
	m := manifestFromTokens([]string{"milling", "  ", "PCB assembly"})
	if len(m.Requirements) != 2 {
		t.Fatalf("got %d requirements", len(m.Requirements))
	}
	if m.Requirements[1].Token != "PCB assembly" {
		t.Fatalf("token = %q", m.Requirements[1].Token)
	}
}

func TestClip(t *testing.T) {
	if got := clip("short", 28); got != "short" {
		t.Fatalf("clip = %q", got)
	}
	got := clip("a very long capability token name", 10)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("clip = %q", got)
	}
}

func TestRenderReportShowsStatus(t *testing.T) {
	out := renderReport(&service.MatchingReport{
		Status: service.StatusOK,
		Domain: "manufacturing",
	})
	if !strings.Contains(out, "OK") {
		t.Fatalf("output missing status: %q", out)
	}
	if !strings.Contains(out, "(none)") {
		t.Fatalf("output missing empty marker: %q", out)
	}
}
