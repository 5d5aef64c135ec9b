// Package config loads TonerTrack configuration from a TOML file with
// environment variable overrides, and resolves platform-appropriate data and
// log directories.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level TonerTrack configuration.
type Config struct {
	SNMP      SNMPConfig      `toml:"snmp"`
	Poll      PollConfig      `toml:"poll"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Storage   StorageConfig   `toml:"storage"`
	Logging   LoggingConfig   `toml:"logging"`
	Ninja     NinjaConfig     `toml:"ninja"`
}

// SNMPConfig holds SNMP client settings.
type SNMPConfig struct {
	Community string `toml:"community"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// PollConfig controls the polling coordinator.
type PollConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	Concurrency     int `toml:"concurrency"`
	// OfflineThreshold is the number of consecutive failed polls before a
	// device is marked Offline. 1 marks a device Offline on the first
	// failed attempt.
	OfflineThreshold int `toml:"offline_threshold"`
}

// DiscoveryConfig controls mDNS discovery and the periodic sync merge.
type DiscoveryConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds"`
	BrowseSeconds   int  `toml:"browse_seconds"`
	// Sites maps an address prefix to a location tag, e.g.
	// "10.1." = "HQ Floor 1". Longest prefix wins.
	Sites map[string]string `toml:"sites"`
}

// StorageConfig holds durable storage settings.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NinjaConfig holds NinjaRMM ticketing settings. The API token is only read
// from the NINJA_API_TOKEN environment variable, never from the file.
type NinjaConfig struct {
	Enabled      bool   `toml:"enabled"`
	BaseURL      string `toml:"base_url"`
	ClientID     int    `toml:"client_id"`
	TicketFormID int    `toml:"ticket_form_id"`
	LocationID   int    `toml:"location_id"`
	NodeID       int    `toml:"node_id"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		SNMP: SNMPConfig{
			Community: "public",
			TimeoutMs: 2000,
		},
		Poll: PollConfig{
			IntervalSeconds:  300,
			Concurrency:      8,
			OfflineThreshold: 1,
		},
		Discovery: DiscoveryConfig{
			Enabled:         true,
			IntervalSeconds: 1800,
			BrowseSeconds:   6,
			Sites:           map[string]string{},
		},
		Storage: StorageConfig{Dir: ""},
		Logging: LoggingConfig{Level: "info"},
		Ninja: NinjaConfig{
			Enabled: false,
			BaseURL: "https://app.ninjarmm.com/v2",
		},
	}
}

// Load reads the TOML config file at path and applies environment overrides.
// A missing file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Poll.Concurrency <= 0 {
		cfg.Poll.Concurrency = 8
	}
	if cfg.Poll.OfflineThreshold <= 0 {
		cfg.Poll.OfflineThreshold = 1
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("SNMP_COMMUNITY"); val != "" {
		cfg.SNMP.Community = val
	}
	if val := os.Getenv("SNMP_TIMEOUT_MS"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil {
			cfg.SNMP.TimeoutMs = timeout
		}
	}
	if val := os.Getenv("POLL_INTERVAL_SECONDS"); val != "" {
		if interval, err := strconv.Atoi(val); err == nil {
			cfg.Poll.IntervalSeconds = interval
		}
	}
	if val := os.Getenv("POLL_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Poll.Concurrency = n
		}
	}
	if val := os.Getenv("OFFLINE_THRESHOLD"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Poll.OfflineThreshold = n
		}
	}
	if val := os.Getenv("DISCOVERY_ENABLED"); val != "" {
		lower := strings.ToLower(val)
		cfg.Discovery.Enabled = lower == "1" || lower == "true" || lower == "yes"
	}
	if val := os.Getenv("STORAGE_DIR"); val != "" {
		cfg.Storage.Dir = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("NINJA_BASE_URL"); val != "" {
		cfg.Ninja.BaseURL = val
	}
}

// WriteDefault writes a default configuration file at path.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(Default()); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigSearchPaths returns an ordered list of paths to search for the
// config file, most specific first.
func ConfigSearchPaths(filename string) []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(os.Getenv("ProgramData"), "TonerTrack", filename))
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support", "TonerTrack", filename))
	default:
		paths = append(paths, filepath.Join("/etc/tonertrack", filename))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			paths = append(paths, filepath.Join(homeDir, "AppData", "Local", "TonerTrack", filename))
		case "darwin":
			paths = append(paths, filepath.Join(homeDir, "Library", "Application Support", "TonerTrack", filename))
		default:
			paths = append(paths, filepath.Join(homeDir, ".config", "tonertrack", filename))
		}
	}

	if exePath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exePath), filename))
	}
	paths = append(paths, filepath.Join(".", filename))
	return paths
}

// FindConfigFile returns the first existing config file from the search
// paths, or an empty string when none exists yet.
func FindConfigFile(filename string) string {
	for _, path := range ConfigSearchPaths(filename) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// DataDirectory returns the directory for durable state, creating it if
// needed. Service mode uses a system-wide directory.
func DataDirectory(isService bool) (string, error) {
	var dataDir string

	if isService {
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(os.Getenv("ProgramData"), "TonerTrack")
		default:
			dataDir = "/var/lib/tonertrack"
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(homeDir, "AppData", "Local", "TonerTrack")
		case "darwin":
			dataDir = filepath.Join(homeDir, "Library", "Application Support", "TonerTrack")
		default:
			dataDir = filepath.Join(homeDir, ".tonertrack")
		}
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}

// LogDirectory returns the directory for log files, creating it if needed.
func LogDirectory(isService bool) (string, error) {
	var logDir string
	if isService {
		switch runtime.GOOS {
		case "windows":
			logDir = filepath.Join(os.Getenv("ProgramData"), "TonerTrack", "logs")
		default:
			logDir = "/var/log/tonertrack"
		}
	} else {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return logDir, nil
}
