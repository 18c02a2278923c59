package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.01, cfg.Trading.MinSpread)
	assert.Equal(t, 0.03, cfg.Trading.FeeRate)
	assert.Equal(t, 75, cfg.Matching.MinSimilarity)
	assert.Equal(t, 24*time.Hour, cfg.Matching.TimeWindow.Duration)
	assert.False(t, cfg.Trading.Live())
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Trading.FeeRate = 1.5
	cfg.Matching.MinSimilarity = 140
	cfg.Store.Driver = "sqlite"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "bogus"`)
	assert.Contains(t, msg, "fee_rate")
	assert.Contains(t, msg, "min_similarity")
	assert.Contains(t, msg, "store: driver")
}

func TestValidateLiveRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.Mode = "live"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kalshi: api_key")
	assert.Contains(t, err.Error(), "wallet:")

	cfg.Kalshi.ApiKey = "key"
	cfg.Kalshi.RsaPrivateKeyPath = "/tmp/kalshi.pem"
	cfg.Wallet.PrivateKey = "0xabc"
	assert.NoError(t, cfg.Validate())
}

func TestValidatePartialPolymarketCreds(t *testing.T) {
	cfg := Defaults()
	cfg.Polymarket.ApiKey = "k"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must all be set together")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crossarb.toml")
	body := `
mode = "monitor"

[trading]
min_spread = 0.02
order_timeout = "45s"

[matching]
time_window = "12h"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("CROSSARB_TRADING_FEE_RATE", "0.02")
	t.Setenv("CROSSARB_STORE_DRIVER", "memory")
	t.Setenv("CROSSARB_NOTIFY_EVENTS", "arb_alert, execution ,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 0.02, cfg.Trading.MinSpread)
	assert.Equal(t, 45*time.Second, cfg.Trading.OrderTimeout.Duration)
	assert.Equal(t, 12*time.Hour, cfg.Matching.TimeWindow.Duration)
	assert.Equal(t, 0.02, cfg.Trading.FeeRate)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, []string{"arb_alert", "execution"}, cfg.Notify.Events)
	// Untouched fields keep their defaults.
	assert.Equal(t, 1000.0, cfg.Trading.MaxTradeSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Kalshi.ApiKey = "kalshi-key"
	cfg.Notify.TelegramToken = "tg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Wallet.PrivateKey)
	assert.Equal(t, redacted, out.Kalshi.ApiKey)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	assert.Empty(t, out.Redis.Password)

	out.Notify.Events[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Notify.Events[0])
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
}
