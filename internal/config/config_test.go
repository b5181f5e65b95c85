package config

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Strategy != StrategySequential {
		t.Fatalf("default strategy = %s", cfg.Strategy)
	}
	if cfg.Domain != "manufacturing" {
		t.Fatalf("default domain = %s", cfg.Domain)
	}
}

func TestParseQualityLevel(t *testing.T) {
	cases := []struct {
		in   string
		want QualityLevel
		err  bool
	}{
		{"hobby", QualityHobby, false},
		{"basic", QualityHobby, false},
		{"professional", QualityProfessional, false},
		{"standard", QualityProfessional, false},
		{"medical", QualityMedical, false},
		{"premium", QualityMedical, false},
		{"industrial", "", true},
	}
	for _, c := range cases {
		got, err := ParseQualityLevel(c.in)
		if c.err != (err != nil) {
			t.Errorf("ParseQualityLevel(%q) err = %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseQualityLevel(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestApplyQualityLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyQualityLevel(QualityMedical)
	if cfg.MatchThreshold != 0.85 || !cfg.StrictMode {
		t.Fatalf("medical preset not applied: threshold=%v strict=%v", cfg.MatchThreshold, cfg.StrictMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("medical config invalid: %v", err)
	}

	cfg = DefaultConfig()
	cfg.ApplyQualityLevel(QualityHobby)
	if cfg.Strategy != StrategyCostOptimized {
		t.Fatalf("hobby strategy = %s", cfg.Strategy)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"similarity above 1", func(c *Config) { c.SimilarityThreshold = 1.2 }},
		{"negative match threshold", func(c *Config) { c.MatchThreshold = -0.1 }},
		{"near miss min above match threshold", func(c *Config) { c.NearMissMin = 0.9; c.MatchThreshold = 0.7 }},
		{"negative edit distance", func(c *Config) { c.NearMissThreshold = -1 }},
		{"zero in-flight pairs", func(c *Config) { c.MaxInFlightPairs = 0 }},
		{"unknown strategy", func(c *Config) { c.Strategy = "turbo" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
