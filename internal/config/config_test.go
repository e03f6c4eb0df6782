package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "baqup.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Listen != ":8080" {
		t.Errorf("http.listen = %q, want :8080", cfg.HTTP.Listen)
	}
	if cfg.Reconcile.Interval != 10*time.Second {
		t.Errorf("reconcile.interval = %v, want 10s", cfg.Reconcile.Interval)
	}
	if cfg.Defaults.Target.Schedule != "daily" || !cfg.Defaults.Target.Compress {
		t.Errorf("target defaults = %+v", cfg.Defaults.Target)
	}
	if cfg.Storage.Dest != "local" || cfg.Storage.Local.Path != "/backups" {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
	if cfg.DefaultSchedules() != nil {
		t.Error("expected nil default schedules when none configured")
	}
}

func TestLoadScheduleDefaults(t *testing.T) {
	path := writeConfig(t, `
defaults:
  schedules:
    daily:
      cron: "0 2 * * *"
      retention: 10
    nightly:
      cron: "0 1 * * *"
    broken:
      retention: 5
  target:
    schedule: nightly
    compress: false
storage:
  dest: remote
  s3:
    bucket: backups
    region: eu-central-1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	schedules := cfg.DefaultSchedules()
	if len(schedules) != 2 {
		t.Fatalf("got %d default schedules, want 2 (broken skipped): %+v", len(schedules), schedules)
	}
	if schedules["daily"].Retention != 10 {
		t.Errorf("daily retention = %d, want 10", schedules["daily"].Retention)
	}
	if schedules["nightly"].Retention != 7 {
		t.Errorf("nightly retention = %d, want fallback 7", schedules["nightly"].Retention)
	}
	if _, ok := schedules["broken"]; ok {
		t.Error("schedule without cron should be skipped")
	}

	if cfg.Defaults.Target.Schedule != "nightly" || cfg.Defaults.Target.Compress {
		t.Errorf("target defaults = %+v", cfg.Defaults.Target)
	}
	if cfg.Storage.Dest != "remote" || cfg.Storage.S3.Bucket != "backups" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/baqup.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
