package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EventDBPath != "data/events.db" {
		t.Fatalf("unexpected event db path %q", cfg.EventDBPath)
	}
	if cfg.PersonalizationMode != "deterministic" {
		t.Fatalf("unexpected personalization mode %q", cfg.PersonalizationMode)
	}
	if cfg.ShadowConfidenceThreshold != 0.6 {
		t.Fatalf("unexpected confidence threshold %v", cfg.ShadowConfidenceThreshold)
	}
	if cfg.DailySummaryHour != 20 {
		t.Fatalf("unexpected daily summary hour %d", cfg.DailySummaryHour)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ATTENTION_PERSONALIZATION_MODE", "bounded")
	t.Setenv("SHADOW_RANKER_CONFIDENCE_THRESHOLD", "0.45")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PersonalizationMode != "bounded" {
		t.Fatalf("unexpected personalization mode %q", cfg.PersonalizationMode)
	}
	if cfg.ShadowConfidenceThreshold != 0.45 {
		t.Fatalf("unexpected confidence threshold %v", cfg.ShadowConfidenceThreshold)
	}
}
