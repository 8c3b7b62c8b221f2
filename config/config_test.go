package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

var envKeys = []string{
	"PCC_API_URL", "PCC_API_KEY", "PRIVATE_KEY", "FUNDER_ADDRESS", "RPC_URL",
	"PAPER_TRADING", "MAX_TRADERS", "POLL_INTERVAL", "MAX_POSITION_USD",
	"MAX_CONCURRENT_POSITIONS", "DAILY_LOSS_LIMIT_USD", "MANUAL_TRADERS",
	"LOG_LEVEL", "LOG_FORMAT",
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, domain.ModePaper, cfg.Mode())
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, 0.1, cfg.Sizing.CapitalRatio)
	assert.Equal(t, 1.0, cfg.Sizing.Increment)
	assert.Equal(t, 10, cfg.Traders.MaxTraders)
	assert.Equal(t, "polycopy.db", cfg.Storage.DSN)
	assert.Equal(t, time.UTC, cfg.DayLocation())

	s := cfg.EngineSettings()
	assert.Equal(t, 50.0, s.Limits.MaxPositionUSD)
	assert.Equal(t, 10, s.Limits.MaxConcurrentPositions)
	assert.Equal(t, 100.0, s.Limits.DailyLossLimitUSD)
	assert.Equal(t, 500*time.Millisecond, s.RetryBackoff)
	assert.Equal(t, 10*time.Minute, s.RosterRefresh)
}

func TestLoad_ShippedExample(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Storage.PersistBaselines)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  poll_interval_seconds: 60
risk:
  max_position_usd: 20
traders:
  manual: ["0x0000000000000000000000000000000000000001"]
`)
	t.Setenv("POLL_INTERVAL", "5")
	t.Setenv("MAX_POSITION_USD", "75.5")
	t.Setenv("DAILY_LOSS_LIMIT_USD", "30")
	t.Setenv("MAX_CONCURRENT_POSITIONS", "3")
	t.Setenv("MAX_TRADERS", "4")
	t.Setenv("MANUAL_TRADERS", " 0x00000000000000000000000000000000000000aa , ,0x00000000000000000000000000000000000000bb")
	t.Setenv("PCC_API_KEY", "secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, 75.5, cfg.Risk.MaxPositionUSD)
	assert.Equal(t, 30.0, cfg.Risk.DailyLossLimitUSD)
	assert.Equal(t, 3, cfg.Risk.MaxConcurrentPositions)
	assert.Equal(t, 4, cfg.Traders.MaxTraders)
	assert.Equal(t, []string{
		"0x00000000000000000000000000000000000000aa",
		"0x00000000000000000000000000000000000000bb",
	}, cfg.Traders.Manual)
	assert.Equal(t, "secret", cfg.API.LeaderboardKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_PaperTradingFlag(t *testing.T) {
	path := writeConfig(t, "engine:\n  mode: paper\n")
	t.Setenv("PAPER_TRADING", "false")
	t.Setenv("PRIVATE_KEY", "0xabc")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLive, cfg.Mode())
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	path := writeConfig(t, `
engine:
  mode: yolo
  poll_interval_seconds: -1
sizing:
  capital_ratio: 2
risk:
  max_position_usd: -5
  day_boundary: mars
traders:
  manual: ["not-an-address"]
log:
  format: xml
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	msg := err.Error()
	for _, want := range []string{
		"engine.mode", "poll_interval_seconds", "capital_ratio",
		"max_position_usd", "day_boundary", "traders.manual", "log.format",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_LiveNeedsPrivateKey(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "engine:\n  mode: live\n"))
	require.NoError(t, err)

	err = cfg.Validate()
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "PRIVATE_KEY")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ZeroRetriesIsKept(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "engine:\n  fetch_retries: 0\n  submit_retries: 0\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	s := cfg.EngineSettings()
	assert.Equal(t, 0, s.FetchRetries)
	assert.Equal(t, 0, s.SubmitRetries)

	cfg, err = config.Load(writeConfig(t, "engine:\n  submit_retries: 4\n"))
	require.NoError(t, err)
	s = cfg.EngineSettings()
	assert.Equal(t, 2, s.FetchRetries)
	assert.Equal(t, 4, s.SubmitRetries)
}

func TestEngineSettings_RiskShrinkUsesSizingIncrement(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "sizing:\n  increment: 0.5\n"))
	require.NoError(t, err)
	s := cfg.EngineSettings()
	assert.Equal(t, 0.5, s.Sizing.Increment)
	assert.Equal(t, 0.5, s.Limits.Increment)
}
