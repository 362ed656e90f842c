// Package config loads the run configuration for the observation engine.
// The core treats these values as immutable inputs for a run; persistence
// of the file itself belongs to the shell.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ScanConfig represents the recognized configuration options. Fields are
// pointers so that keys omitted from the JSON file fall back to their
// defaults through the Get* accessors, making partial configs safe.
type ScanConfig struct {
	// Interface is the wireless adapter the WiFi scanner drives.
	Interface *string `json:"interface,omitempty"`

	// ScanIntervalSeconds is the pause between WiFi scan cycles.
	ScanIntervalSeconds *int `json:"scan_interval,omitempty"`

	// DeviceTimeoutSeconds is how long a BLE device stays in the
	// registry without being re-detected.
	DeviceTimeoutSeconds *int `json:"device_timeout,omitempty"`

	// TxPower is the expected RSSI at one meter, used for distance
	// estimation.
	TxPower *int `json:"tx_power,omitempty"`

	// LogDir is the directory holding observation logs; the default
	// database path is resolved under it when db_path is not set.
	LogDir *string `json:"log_dir,omitempty"`

	// DBPath is the observation log database file.
	DBPath *string `json:"db_path,omitempty"`

	// PingTimeoutSeconds bounds connectivity probes.
	PingTimeoutSeconds *int `json:"ping_timeout,omitempty"`

	// ConnectionTimeoutSeconds bounds connection attempts.
	ConnectionTimeoutSeconds *int `json:"connection_timeout,omitempty"`
}

// DefaultScanConfig returns a ScanConfig with all fields unset, so every
// accessor reports its default.
func DefaultScanConfig() *ScanConfig {
	return &ScanConfig{}
}

// Load reads a ScanConfig from a JSON file. Omitted keys retain their
// defaults.
func Load(path string) (*ScanConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultScanConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *ScanConfig) Validate() error {
	if c.ScanIntervalSeconds != nil && *c.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("scan_interval must be positive, got %d", *c.ScanIntervalSeconds)
	}
	if c.DeviceTimeoutSeconds != nil && *c.DeviceTimeoutSeconds <= 0 {
		return fmt.Errorf("device_timeout must be positive, got %d", *c.DeviceTimeoutSeconds)
	}
	if c.TxPower != nil && *c.TxPower >= 0 {
		return fmt.Errorf("tx_power must be a negative dBm value, got %d", *c.TxPower)
	}
	if c.PingTimeoutSeconds != nil && *c.PingTimeoutSeconds <= 0 {
		return fmt.Errorf("ping_timeout must be positive, got %d", *c.PingTimeoutSeconds)
	}
	if c.ConnectionTimeoutSeconds != nil && *c.ConnectionTimeoutSeconds <= 0 {
		return fmt.Errorf("connection_timeout must be positive, got %d", *c.ConnectionTimeoutSeconds)
	}
	return nil
}

// GetInterface returns the wireless interface name or the default.
func (c *ScanConfig) GetInterface() string {
	if c.Interface == nil || *c.Interface == "" {
		return "wlan0"
	}
	return *c.Interface
}

// GetScanInterval returns the WiFi scan interval or the default.
func (c *ScanConfig) GetScanInterval() time.Duration {
	if c.ScanIntervalSeconds == nil {
		return 10 * time.Second
	}
	return time.Duration(*c.ScanIntervalSeconds) * time.Second
}

// GetDeviceTimeout returns the BLE registry staleness timeout or the default.
func (c *ScanConfig) GetDeviceTimeout() time.Duration {
	if c.DeviceTimeoutSeconds == nil {
		return 60 * time.Second
	}
	return time.Duration(*c.DeviceTimeoutSeconds) * time.Second
}

// GetTxPower returns the distance calibration constant or the default.
func (c *ScanConfig) GetTxPower() int {
	if c.TxPower == nil {
		return -59
	}
	return *c.TxPower
}

// GetLogDir returns the observation log directory or the default.
func (c *ScanConfig) GetLogDir() string {
	if c.LogDir == nil || *c.LogDir == "" {
		return "./scan_logs"
	}
	return *c.LogDir
}

// GetDBPath returns the observation log database path. When db_path is
// not set it resolves to "observations.db" under the log directory.
func (c *ScanConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return filepath.Join(c.GetLogDir(), "observations.db")
	}
	return *c.DBPath
}

// GetPingTimeout returns the ping probe timeout or the default.
func (c *ScanConfig) GetPingTimeout() time.Duration {
	if c.PingTimeoutSeconds == nil {
		return 5 * time.Second
	}
	return time.Duration(*c.PingTimeoutSeconds) * time.Second
}

// GetConnectionTimeout returns the connection attempt timeout or the default.
func (c *ScanConfig) GetConnectionTimeout() time.Duration {
	if c.ConnectionTimeoutSeconds == nil {
		return 15 * time.Second
	}
	return time.Duration(*c.ConnectionTimeoutSeconds) * time.Second
}
