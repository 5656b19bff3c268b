package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const minimalConfig = `
market_data:
  base_url: https://api.example.com

segments:
  - name: nifty
    instrument: "NSE:NIFTY 50"
    regime: buy
    interval: 5m
    symbol_prefix: NIFTY
    expiry: 25SEP
    strike_step: 50
    lot_size: 75
    stop_loss_points: 20
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalConfig)

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "default", cfg.Tenant)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9985", cfg.App.HTTPAddr)
	assert.Equal(t, "paper", cfg.Broker.Mode)
	assert.Equal(t, "MIS", cfg.Broker.Product)
	assert.Equal(t, "Asia/Kolkata", cfg.Session.Timezone)
	assert.Equal(t, 9, cfg.Session.OpenHour)
	assert.Equal(t, 15, cfg.Session.OpenMinute)
	assert.Equal(t, 15, cfg.Session.CloseHour)
	assert.Equal(t, 30, cfg.Session.CloseMinute)

	assert.Len(t, cfg.Segments, 1)
	assert.Equal(t, 1, cfg.Segments[0].Lots)
}

func TestLoadRejectsInvalidRegime(t *testing.T) {
	bad := `
market_data:
  base_url: https://api.example.com
segments:
  - name: nifty
    instrument: "NSE:NIFTY 50"
    regime: straddle
    interval: 5m
    symbol_prefix: NIFTY
    expiry: 25SEP
    strike_step: 50
    lot_size: 75
    stop_loss_points: 20
`
	path := writeConfig(t, t.TempDir(), "config.yaml", bad)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingStop(t *testing.T) {
	bad := `
market_data:
  base_url: https://api.example.com
segments:
  - name: nifty
    instrument: "NSE:NIFTY 50"
    regime: buy
    interval: 5m
    symbol_prefix: NIFTY
    expiry: 25SEP
    strike_step: 50
    lot_size: 75
`
	path := writeConfig(t, t.TempDir(), "config.yaml", bad)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsLiveModeWithoutCredentials(t *testing.T) {
	bad := `
market_data:
  base_url: https://api.example.com
broker:
  mode: live
  base_url: https://broker.example.com
segments:
  - name: nifty
    instrument: "NSE:NIFTY 50"
    regime: buy
    interval: 5m
    symbol_prefix: NIFTY
    expiry: 25SEP
    strike_step: 50
    lot_size: 75
    stop_loss_points: 20
`
	path := writeConfig(t, t.TempDir(), "config.yaml", bad)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMergesSegmentsProfile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "segments.yaml", `
segments:
  - name: nifty
    instrument: "NSE:NIFTY 50"
    regime: sell
    interval: 5m
    symbol_prefix: NIFTY
    expiry: 25SEP
    strike_step: 50
    lot_size: 75
    stop_loss_pct: 25
  - name: banknifty
    instrument: "NSE:NIFTY BANK"
    regime: buy
    interval: 3m
    symbol_prefix: BANKNIFTY
    expiry: 25SEP
    strike_step: 100
    lot_size: 35
    stop_loss_points: 30
`)
	main := minimalConfig + `
segments_file: segments.yaml
`
	path := writeConfig(t, dir, "config.yaml", main)

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Len(t, cfg.Segments, 2)
	// Profile entry overrides the inline segment of the same name.
	assert.Equal(t, "sell", cfg.Segments[0].Regime)
	assert.Equal(t, "banknifty", cfg.Segments[1].Name)
}

func TestLoadRejectsDuplicateSegmentNames(t *testing.T) {
	bad := `
market_data:
  base_url: https://api.example.com
segments:
  - name: nifty
    instrument: "NSE:NIFTY 50"
    regime: buy
    interval: 5m
    symbol_prefix: NIFTY
    expiry: 25SEP
    strike_step: 50
    lot_size: 75
    stop_loss_points: 20
  - name: nifty
    instrument: "NSE:NIFTY 50"
    regime: buy
    interval: 5m
    symbol_prefix: NIFTY
    expiry: 25SEP
    strike_step: 50
    lot_size: 75
    stop_loss_points: 20
`
	path := writeConfig(t, t.TempDir(), "config.yaml", bad)
	_, err := Load(path)
	assert.Error(t, err)
}
