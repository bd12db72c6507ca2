package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RITMO_JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.DBPath != "ritmo.db" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SweepHour != 0 || cfg.SweepRedundancy != 6*time.Hour {
		t.Fatalf("unexpected sweep defaults: hour=%d redundancy=%s", cfg.SweepHour, cfg.SweepRedundancy)
	}
	if cfg.EnergyBudget != 12 {
		t.Fatalf("unexpected energy budget: %d", cfg.EnergyBudget)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("RITMO_JWT_SECRET", "")

	if _, err := Load(); !errors.Is(err, ErrMissingJWTSecret) {
		t.Fatalf("expected ErrMissingJWTSecret, got %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RITMO_JWT_SECRET", "test-secret")
	t.Setenv("RITMO_SWEEP_HOUR", "25")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for out-of-range sweep hour")
	}

	t.Setenv("RITMO_SWEEP_HOUR", "3")
	t.Setenv("RITMO_ENERGY_BUDGET", "-1")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for negative energy budget")
	}

	t.Setenv("RITMO_ENERGY_BUDGET", "10")
	t.Setenv("RITMO_SWEEP_REDUNDANCY", "often")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unparseable redundancy interval")
	}
}
