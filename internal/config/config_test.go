package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("EVENT_ERROR_POLICY", "")
	t.Setenv("INFERENCE_WAIT_SECONDS", "")

	cfg, err := Load("predictions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.HTTPPort)
	}
	if cfg.StorageBackend != "local" {
		t.Fatalf("expected local storage backend, got %q", cfg.StorageBackend)
	}
	if cfg.InferenceWaitSeconds != 120 {
		t.Fatalf("expected inference wait 120s, got %d", cfg.InferenceWaitSeconds)
	}
	if cfg.EventDedupEnabled {
		t.Fatal("expected dedup disabled by default")
	}
	if cfg.EventErrorPolicy != "continue" {
		t.Fatalf("expected continue policy, got %q", cfg.EventErrorPolicy)
	}
}

func TestLoadServicePortDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HTTP_PORT", "")

	staff, err := Load("staff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if staff.HTTPPort != "8081" {
		t.Fatalf("expected staff port 8081, got %q", staff.HTTPPort)
	}
	patients, err := Load("patients")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patients.HTTPPort != "8082" {
		t.Fatalf("expected patients port 8082, got %q", patients.HTTPPort)
	}
}

func TestLoadRejectsGCSWithoutBucket(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "gcs")
	t.Setenv("GCS_BUCKET", "")

	if _, err := Load("predictions"); err == nil {
		t.Fatal("expected error for gcs backend without bucket")
	}
}

func TestLoadRejectsUnknownErrorPolicy(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("EVENT_ERROR_POLICY", "halt")

	if _, err := Load("predictions"); err == nil {
		t.Fatal("expected error for unknown event error policy")
	}
}

func TestLoadAppliesYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "httpPort: \"9999\"\nstorageBackend: gcs\ngcsBucket: scans\neventDedupEnabled: true\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("GCS_BUCKET", "")

	cfg, err := Load("predictions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPPort != "9999" {
		t.Fatalf("expected overlay port 9999, got %q", cfg.HTTPPort)
	}
	if cfg.StorageBackend != "gcs" || cfg.GCSBucket != "scans" {
		t.Fatalf("expected overlay gcs backend with bucket, got %q/%q", cfg.StorageBackend, cfg.GCSBucket)
	}
	if !cfg.EventDedupEnabled {
		t.Fatal("expected overlay to enable dedup")
	}
}

func TestBreakerRatioFallback(t *testing.T) {
	c := Config{BreakerFailureRatio: "not-a-number"}
	if got := c.BreakerRatio(); got != 0.6 {
		t.Fatalf("expected fallback ratio 0.6, got %v", got)
	}
	c.BreakerFailureRatio = "0.4"
	if got := c.BreakerRatio(); got != 0.4 {
		t.Fatalf("expected ratio 0.4, got %v", got)
	}
}
