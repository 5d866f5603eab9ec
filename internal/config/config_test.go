package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Scheduler.FetchIntervalMinutes != 30 {
		t.Errorf("Expected default fetch interval 30, got %d", cfg.Scheduler.FetchIntervalMinutes)
	}
	if cfg.Clustering.MinClusterSize != 5 {
		t.Errorf("Expected default min_cluster_size 5, got %d", cfg.Clustering.MinClusterSize)
	}
	if cfg.LLM.Provider != "claude" {
		t.Errorf("Expected default provider claude, got %s", cfg.LLM.Provider)
	}
	if strings.Contains(cfg.App.DataDir, "~") {
		t.Errorf("Expected expanded data dir, got %s", cfg.App.DataDir)
	}
	if got := cfg.LLMTimeout().Seconds(); got != 120 {
		t.Errorf("Expected 120s LLM timeout, got %vs", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("BRAINSTREAM_HOST", "0.0.0.0")
	t.Setenv("BRAINSTREAM_PORT", "8080")
	t.Setenv("BRAINSTREAM_SCHEDULER", "false")
	t.Setenv("BRAINSTREAM_FETCH_INTERVAL", "5")
	t.Setenv("BRAINSTREAM_DATA_DIR", t.TempDir())
	t.Setenv("BRAINSTREAM_TECH_STACK", "kubernetes, terraform,aws")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host override, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Scheduler.Enabled {
		t.Error("Expected scheduler disabled")
	}
	if got := cfg.FetchInterval().Minutes(); got != 5 {
		t.Errorf("Expected 5 minute interval, got %v", got)
	}

	want := []string{"kubernetes", "terraform", "aws"}
	if len(cfg.Profile.TechStack) != len(want) {
		t.Fatalf("Expected %d stack entries, got %v", len(want), cfg.Profile.TechStack)
	}
	for i, v := range want {
		if cfg.Profile.TechStack[i] != v {
			t.Errorf("Expected stack[%d]=%s, got %s", i, v, cfg.Profile.TechStack[i])
		}
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("BRAINSTREAM_PORT", "99999")

	if _, err := Load(""); err == nil {
		t.Fatal("Expected validation error for out-of-range port")
	}
}
