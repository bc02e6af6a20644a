package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("addr=%s want=:8000", cfg.Server.Addr)
	}
	if cfg.Dashboard.PollIntervalMS != 1200 {
		t.Fatalf("poll interval=%d want=1200", cfg.Dashboard.PollIntervalMS)
	}
	if cfg.Dashboard.RefetchDelayMS != 800 {
		t.Fatalf("refetch delay=%d want=800", cfg.Dashboard.RefetchDelayMS)
	}
	if cfg.Dashboard.FollowUpWave != 2 {
		t.Fatalf("follow-up wave=%d want=2", cfg.Dashboard.FollowUpWave)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9000"

[dashboard]
api_url = "http://example.test:9000"
stream_disabled = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr=%s want=:9000", cfg.Server.Addr)
	}
	if cfg.Dashboard.APIURL != "http://example.test:9000" {
		t.Fatalf("api url=%s", cfg.Dashboard.APIURL)
	}
	if !cfg.Dashboard.StreamDisabled {
		t.Fatal("stream_disabled not honored")
	}
	// Untouched sections keep their defaults.
	if cfg.Feed.DelayMS != 3000 {
		t.Fatalf("feed delay=%d want=3000", cfg.Feed.DelayMS)
	}
	if cfg.Path != path {
		t.Fatalf("path=%s want=%s", cfg.Path, path)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CRISIS_ADDR", ":7777")
	t.Setenv("CRISIS_POLL_INTERVAL_MS", "250")
	t.Setenv("CRISIS_STREAM_DISABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Fatalf("addr=%s want=:7777", cfg.Server.Addr)
	}
	if cfg.Dashboard.PollIntervalMS != 250 {
		t.Fatalf("poll interval=%d want=250", cfg.Dashboard.PollIntervalMS)
	}
	if !cfg.Dashboard.StreamDisabled {
		t.Fatal("stream override not applied")
	}
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CRISIS_POLL_INTERVAL_MS", "not-a-number")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dashboard.PollIntervalMS != 1200 {
		t.Fatalf("poll interval=%d want=1200 default", cfg.Dashboard.PollIntervalMS)
	}
}
