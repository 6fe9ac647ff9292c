package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rallytiming/internal/classify"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port == "" || !cfg.Cache.Enabled || cfg.Policy != classify.DefaultPolicy() {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: "9000"
cache:
  enabled: true
  ttl: 30s
rate:
  rps: 5
  burst: 10
policy:
  neutralized: exclude
  untimed: EXCLUDE
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9100")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("NEGATIVE_TIME_POLICY", "clamp")
	t.Setenv("IMPORT_SECRET", "timing-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Fatalf("env must override file port, got %s", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 2*time.Minute || cfg.Rate.RPS != 5 || cfg.Rate.Burst != 10 {
		t.Fatalf("unexpected cache/rate %+v %+v", cfg.Cache, cfg.Rate)
	}
	if cfg.Import.Secret != "timing-key" {
		t.Fatalf("import secret not applied: %q", cfg.Import.Secret)
	}
	want := classify.Policy{Neutralized: classify.NeutralizedExclude, NegativeTime: classify.NegativeClamp, Untimed: classify.UntimedExclude}
	if cfg.Policy != want {
		t.Fatalf("want policy %+v, got %+v", want, cfg.Policy)
	}
}

func TestEnvErrors(t *testing.T) {
	env := map[string]string{"CACHE_ENABLED": "maybe", "RATE_RPS": "fast"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	cfg := GetDefaultConfig()
	if err := cfg.applyEnv(lookup); err == nil {
		t.Fatal("want error for malformed values")
	}

	t.Setenv("UNTIMED_POLICY", "first")
	if _, err := Load(""); err == nil {
		t.Fatal("want error for unknown policy")
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}
