package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Empty()
	require.Equal(t, ":8088", c.GetListenAddr())
	require.Equal(t, "cache", c.GetCacheDir())
	require.InDelta(t, 0.8, c.GetCoverageThreshold(), 1e-9)
	require.InDelta(t, 0.04, c.GetGridStepSeconds(), 1e-9)
	require.InDelta(t, 1.0, c.GetHysteresisNormalSeconds(), 1e-9)
	require.InDelta(t, 0.3, c.GetHysteresisCautionSeconds(), 1e-9)
	require.Equal(t, 60, c.GetDispatcherTickHz())
	require.False(t, c.GetEnableDebugViz())
	require.False(t, c.GetEnableSQLConsole())
}

func TestLoadPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"coverage_threshold":0.5,"dispatcher_tick_hz":30}`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.InDelta(t, 0.5, c.GetCoverageThreshold(), 1e-9)
	require.Equal(t, 30, c.GetDispatcherTickHz())
	require.Equal(t, ":8088", c.GetListenAddr(), "unset fields keep defaults")
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeCoverage(t *testing.T) {
	c := Empty()
	bad := 1.5
	c.CoverageThreshold = &bad
	require.Error(t, c.Validate())
}
