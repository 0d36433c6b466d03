// Package config provides a JSON-file-backed ServerConfig with
// optional-pointer fields for partial overrides, modeled directly on the
// teacher's internal/config/tuning.go (TuningConfig, Load/merge semantics,
// Get* accessor-with-default pattern).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ServerConfig covers the tunables SPEC_FULL.md calls out: listen address,
// cache directory, Position Engine coverage threshold, Frame Builder grid
// step, hysteresis windows, and dispatcher tick rate. Fields omitted from
// the JSON file retain their defaults via the Get* accessors below, so
// partial configs are safe.
type ServerConfig struct {
	ListenAddr *string `json:"listen_addr,omitempty"`
	CacheDir   *string `json:"cache_dir,omitempty"`

	// CoverageThreshold is the Position Engine's step-7 quality fallback
	// threshold (spec.md §4.1, §9 Open Question — default 0.8).
	CoverageThreshold *float64 `json:"coverage_threshold,omitempty"`

	// GridStepSeconds is the Frame Builder's Δ (spec.md §3, nominal 0.04).
	GridStepSeconds *float64 `json:"grid_step_seconds,omitempty"`

	// HysteresisNormalSeconds and HysteresisCautionSeconds are the
	// Position Engine's H under green/yellow and under SC/VSC/red
	// respectively (spec.md §4.2).
	HysteresisNormalSeconds  *float64 `json:"hysteresis_normal_seconds,omitempty"`
	HysteresisCautionSeconds *float64 `json:"hysteresis_caution_seconds,omitempty"`

	// DispatcherTickHz is validated and returned by GetDispatcherTickHz,
	// but the Client Dispatcher does not read it: it ticks at a fixed 60 Hz.
	DispatcherTickHz *int `json:"dispatcher_tick_hz,omitempty"`

	// EnableDebugViz and EnableSQLConsole gate the optional ambient debug
	// surfaces (SPEC_FULL.md §2.1): go-echarts HTML endpoint and the
	// tailsql read-only console over the cache index. Both default off.
	EnableDebugViz   *bool `json:"enable_debug_viz,omitempty"`
	EnableSQLConsole *bool `json:"enable_sql_console,omitempty"`
}

// Empty returns a ServerConfig with all fields nil; use Load to populate
// from a JSON file, or call the Get* accessors directly for defaults.
func Empty() *ServerConfig { return &ServerConfig{} }

// Load reads and parses a JSON config file. Fields absent from the file
// retain nil (and therefore their defaults).
func Load(path string) (*ServerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set fields hold sane values.
func (c *ServerConfig) Validate() error {
	if c.CoverageThreshold != nil {
		if *c.CoverageThreshold < 0 || *c.CoverageThreshold > 1 {
			return fmt.Errorf("coverage_threshold must be between 0 and 1, got %f", *c.CoverageThreshold)
		}
	}
	if c.GridStepSeconds != nil && *c.GridStepSeconds <= 0 {
		return fmt.Errorf("grid_step_seconds must be positive, got %f", *c.GridStepSeconds)
	}
	if c.DispatcherTickHz != nil && *c.DispatcherTickHz <= 0 {
		return fmt.Errorf("dispatcher_tick_hz must be positive, got %d", *c.DispatcherTickHz)
	}
	return nil
}

// GetListenAddr returns ListenAddr or its default.
func (c *ServerConfig) GetListenAddr() string {
	if c.ListenAddr == nil {
		return ":8088"
	}
	return *c.ListenAddr
}

// GetCacheDir returns CacheDir or its default.
func (c *ServerConfig) GetCacheDir() string {
	if c.CacheDir == nil {
		return "cache"
	}
	return *c.CacheDir
}

// GetCoverageThreshold returns CoverageThreshold or its default (0.8 per
// spec.md §9's Open Question resolution).
func (c *ServerConfig) GetCoverageThreshold() float64 {
	if c.CoverageThreshold == nil {
		return 0.8
	}
	return *c.CoverageThreshold
}

// GetGridStepSeconds returns GridStepSeconds or its default (40ms).
func (c *ServerConfig) GetGridStepSeconds() float64 {
	if c.GridStepSeconds == nil {
		return 0.04
	}
	return *c.GridStepSeconds
}

// GetHysteresisNormalSeconds returns the non-caution H or its default (1.0s).
func (c *ServerConfig) GetHysteresisNormalSeconds() float64 {
	if c.HysteresisNormalSeconds == nil {
		return 1.0
	}
	return *c.HysteresisNormalSeconds
}

// GetHysteresisCautionSeconds returns the SC/VSC/red H or its default (0.3s).
func (c *ServerConfig) GetHysteresisCautionSeconds() float64 {
	if c.HysteresisCautionSeconds == nil {
		return 0.3
	}
	return *c.HysteresisCautionSeconds
}

// GetDispatcherTickHz returns DispatcherTickHz or its default (60).
func (c *ServerConfig) GetDispatcherTickHz() int {
	if c.DispatcherTickHz == nil {
		return 60
	}
	return *c.DispatcherTickHz
}

// GetEnableDebugViz returns EnableDebugViz or its default (false).
func (c *ServerConfig) GetEnableDebugViz() bool {
	if c.EnableDebugViz == nil {
		return false
	}
	return *c.EnableDebugViz
}

// GetEnableSQLConsole returns EnableSQLConsole or its default (false).
func (c *ServerConfig) GetEnableSQLConsole() bool {
	if c.EnableSQLConsole == nil {
		return false
	}
	return *c.EnableSQLConsole
}
