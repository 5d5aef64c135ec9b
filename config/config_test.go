package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.SNMP.Community != "public" {
		t.Errorf("community = %q", cfg.SNMP.Community)
	}
	if cfg.Poll.Concurrency != 8 || cfg.Poll.OfflineThreshold != 1 {
		t.Errorf("poll defaults: %+v", cfg.Poll)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[snmp]
community = "internal"
timeout_ms = 5000

[poll]
interval_seconds = 120
offline_threshold = 3

[discovery]
enabled = true

[discovery.sites]
"10.1." = "HQ"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// env beats file
	t.Setenv("SNMP_COMMUNITY", "from-env")
	t.Setenv("OFFLINE_THRESHOLD", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SNMP.Community != "from-env" {
		t.Errorf("community = %q, want env override", cfg.SNMP.Community)
	}
	if cfg.SNMP.TimeoutMs != 5000 {
		t.Errorf("timeout_ms = %d", cfg.SNMP.TimeoutMs)
	}
	if cfg.Poll.IntervalSeconds != 120 {
		t.Errorf("interval_seconds = %d", cfg.Poll.IntervalSeconds)
	}
	if cfg.Poll.OfflineThreshold != 2 {
		t.Errorf("offline_threshold = %d, want env override", cfg.Poll.OfflineThreshold)
	}
	if cfg.Discovery.Sites["10.1."] != "HQ" {
		t.Errorf("sites = %v", cfg.Discovery.Sites)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[snmp\ncommunity"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed TOML should error")
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.SNMP.Community != def.SNMP.Community {
		t.Errorf("community = %q", cfg.SNMP.Community)
	}
	if cfg.Poll.IntervalSeconds != def.Poll.IntervalSeconds {
		t.Errorf("interval = %d", cfg.Poll.IntervalSeconds)
	}
	if cfg.Ninja.BaseURL != def.Ninja.BaseURL {
		t.Errorf("ninja base url = %q", cfg.Ninja.BaseURL)
	}
}
