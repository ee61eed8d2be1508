package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DispatchRadiusKm != 5 || cfg.RedispatchRadiusKm != 10 {
		t.Fatalf("radius defaults: %f/%f", cfg.DispatchRadiusKm, cfg.RedispatchRadiusKm)
	}
	if cfg.NotificationTTL != 10*time.Second {
		t.Fatalf("ttl default: %v", cfg.NotificationTTL)
	}
	if cfg.DispatchMaxAttempts != 0 {
		t.Fatalf("max attempts default: %d", cfg.DispatchMaxAttempts)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DISPATCH_RADIUS_KM", "3")
	t.Setenv("REDISPATCH_RADIUS_KM", "15")
	t.Setenv("NOTIFICATION_TTL", "15s")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "4")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DispatchRadiusKm != 3 || cfg.RedispatchRadiusKm != 15 {
		t.Fatalf("radius overrides: %f/%f", cfg.DispatchRadiusKm, cfg.RedispatchRadiusKm)
	}
	if cfg.NotificationTTL != 15*time.Second || cfg.DispatchMaxAttempts != 4 {
		t.Fatalf("ttl=%v attempts=%d", cfg.NotificationTTL, cfg.DispatchMaxAttempts)
	}
}

func TestRadiusValidation(t *testing.T) {
	t.Setenv("DISPATCH_RADIUS_KM", "10")
	t.Setenv("REDISPATCH_RADIUS_KM", "5")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected validation error when re-dispatch radius is narrower")
	}
}

func TestInvalidDuration(t *testing.T) {
	t.Setenv("NOTIFICATION_TTL", "soon")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}
