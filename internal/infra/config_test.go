package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/reelgen_test")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.TaskTTL != 30*time.Minute {
		t.Fatalf("expected default TTL 30m, got %s", cfg.TaskTTL)
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Fatalf("expected default sweep interval 5s, got %s", cfg.SweepInterval)
	}
	if cfg.MaxPollFailures != 10 {
		t.Fatalf("expected default poll failure budget 10, got %d", cfg.MaxPollFailures)
	}
}

func TestLoadConfigRequiredVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/reelgen_test")
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestSplitEnv(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " https://app.example , ,https://admin.example")
	got := splitEnv("CORS_ORIGINS")
	if len(got) != 2 || got[0] != "https://app.example" || got[1] != "https://admin.example" {
		t.Fatalf("unexpected origins %v", got)
	}
}
