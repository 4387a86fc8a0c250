package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfig_Defaults(t *testing.T) {
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.AppConfig.LogLevel)
	assert.True(t, cfg.BrowserConfig.Headless)
	assert.Equal(t, "default", cfg.OracleConfig.Profile)
	assert.Equal(t, 2*time.Second, cfg.TimingConfig.PollInterval)
	assert.Equal(t, 3, cfg.TimingConfig.StableThreshold)
	assert.Equal(t, 30*time.Minute, cfg.TimingConfig.LongRunningFloor)
}

func TestGetConfig_Env(t *testing.T) {
	t.Setenv("ORACLE_TIMEOUT", "45s")
	t.Setenv("ORACLE_STABLE_THRESHOLD", "5")
	t.Setenv("BROWSER_HEADLESS", "false")

	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.OracleConfig.Timeout)
	assert.Equal(t, 5, cfg.TimingConfig.StableThreshold)
	assert.False(t, cfg.BrowserConfig.Headless)
}

func TestOverrides_Apply(t *testing.T) {
	cfg, err := GetConfig()
	require.NoError(t, err)

	profile, model := "work", "thinking"
	visible, verbose := true, true
	timeout, retries := 10*time.Minute, 2

	require.NoError(t, Overrides{
		Profile: &profile,
		Visible: &visible,
		Verbose: &verbose,
		Model:   &model,
		Timeout: &timeout,
		Retries: &retries,
	}.Apply(cfg))

	assert.Equal(t, "work", cfg.OracleConfig.Profile)
	assert.Equal(t, "thinking", cfg.OracleConfig.Model)
	assert.False(t, cfg.BrowserConfig.Headless)
	assert.Equal(t, "debug", cfg.AppConfig.LogLevel)
	assert.Equal(t, 10*time.Minute, cfg.OracleConfig.Timeout)
	assert.Equal(t, 2, cfg.OracleConfig.Retries)
}

func TestOverrides_Invalid(t *testing.T) {
	cfg, err := GetConfig()
	require.NoError(t, err)

	zero := time.Duration(0)
	assert.Error(t, Overrides{Timeout: &zero}.Apply(cfg))

	negative := -1
	assert.Error(t, Overrides{Retries: &negative}.Apply(cfg))
}

func TestProfilesDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{AppConfig: &AppConfig{ConfigDir: dir}, OracleConfig: &OracleConfig{}}

	got, err := cfg.ProfilesDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "profiles"), got)

	assert.Contains(t, cfg.ScreenshotPath(), "chat-oracle-login-failure.png")
}
