package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := []byte(`
server:
  port: "9090"
api:
  base_url: http://quiz-api:8000
  timeout: 5s
redis:
  addr: localhost:6379
session:
  idle_ttl: 2m
`)
	if err := os.WriteFile(path, yamlDoc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.API.BaseURL != "http://quiz-api:8000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Redis.Addr != "redis:6380" || cfg.Redis.DB != 3 {
		t.Fatalf("expected env override, got %+v", cfg.Redis)
	}
	if got := TTLDuration(cfg.API.Timeout, time.Second); got != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %v", got)
	}
	if got := TTLDuration(cfg.Session.IdleTTL, time.Hour); got != 2*time.Minute {
		t.Fatalf("expected 2m idle ttl, got %v", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "" {
		t.Fatalf("expected empty port, got %q", cfg.Server.Port)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for garbage, got %v", got)
	}
}
