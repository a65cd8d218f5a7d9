package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-licensing/internal/config"
)

const sampleConfig = `
server:
  addr: ":9090"
admin: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
contracts:
  perpetual:
    name: "Software License"
    symbol: "SWL"
    address: "0x0101010101010101010101010101010101010101"
    price: 100
  fixed:
    name: "Monthly License"
    symbol: "MLT"
    address: "0x0202020202020202020202020202020202020202"
    price: 50
    period: 720h
subscription:
  address: "0x0505050505050505050505050505050505050505"
  publisher: "0x0404040404040404040404040404040404040404"
  token: "0x0303030303030303030303030303030303030303"
  amount: 100
  period_seconds: 2592000
  relayer_fee: 5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", cfg.Admin)
	assert.Equal(t, uint64(100), cfg.Contracts.Perpetual.Price)
	assert.Equal(t, 720*time.Hour, cfg.Contracts.Fixed.Period)
	assert.Equal(t, uint64(2592000), cfg.Plan.PeriodSeconds)

	// Defaults survive a partial file.
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "licensing.events", cfg.NATS.Subject)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LICENSING_ADDR", ":7070")
	t.Setenv("LICENSING_NATS_URL", "nats://broker:4222")

	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.True(t, cfg.NATS.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
