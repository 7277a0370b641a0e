package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "hyperdrive", cfg.Market.PricingModel)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout.Duration)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[server]
addr = ":9090"
read_timeout = "3s"

[journal]
dir = "/tmp/wal"
sync = true

[market]
pricing_model = "yieldspace"
fee_percent = 0.05
target_apr = 0.1

[log]
level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout.Duration, "unset keys keep defaults")
	assert.Equal(t, "/tmp/wal", cfg.Journal.Dir)
	assert.True(t, cfg.Journal.Sync)
	assert.Equal(t, "yieldspace", cfg.Market.PricingModel)
	assert.Equal(t, "0.05", cfg.Market.FeePercent.String())
	assert.Equal(t, "365", cfg.Market.PositionDurationDays.String())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMarketAmountsKeepFullPrecision(t *testing.T) {
	path := writeFile(t, `
[market]
init_share_price = "1.000000000000000007"
share_price = "1.000000000000000009"
target_liquidity = 2500000
`)
	t.Setenv("HYPERDRIVE_VAULT_APR", "0.050000000000000001")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "1.000000000000000007", cfg.Market.InitSharePrice.String())
	assert.Equal(t, "2500000", cfg.Market.TargetLiquidity.String())
	assert.Equal(t, "0.050000000000000001", cfg.Market.VaultAPR.String())

	m, err := cfg.Market.NewMarket()
	require.NoError(t, err)
	assert.Equal(t, "1.000000000000000007", m.State().InitSharePrice.String())
	assert.Equal(t, "1.000000000000000009", m.State().SharePrice.String())
}

func TestValidateRejectsNonFiniteMarket(t *testing.T) {
	mc := DefaultMarket()
	mc.VaultAPR = fixedpoint.NaN()
	err := mc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault_apr must be finite")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "[market]\nfee_percent = 0.2\n")
	t.Setenv("HYPERDRIVE_FEE_PERCENT", "0.3")
	t.Setenv("HYPERDRIVE_ADDR", ":7000")
	t.Setenv("HYPERDRIVE_REDIS_TTL", "1m")
	t.Setenv("HYPERDRIVE_COMPOUND", "true")
	t.Setenv("HYPERDRIVE_JOURNAL_MAX_SEGMENTS", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.3", cfg.Market.FeePercent.String())
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, time.Minute, cfg.Redis.TTL.Duration)
	assert.True(t, cfg.Market.Compound)
	assert.Equal(t, 100, cfg.Journal.MaxSegments, "unparsable values are ignored")
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Market.PricingModel = "lmsr"
	cfg.Market.FeePercent = fixedpoint.New(2)
	cfg.Log.Level = "trace"
	cfg.Journal.Dir = "/tmp/wal"
	cfg.Journal.SegmentThreshold = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	for _, want := range []string{"pricing_model", "fee_percent", "log: unknown level", "segment_threshold"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestNewMarket(t *testing.T) {
	mc := DefaultMarket()
	mc.PricingModel = "YieldSpace"
	m, err := mc.NewMarket()
	require.NoError(t, err)
	assert.Equal(t, "yieldspace", m.PricingModel().Name())
	assert.True(t, m.State().IsEmpty())
	assert.Equal(t, "1", m.State().SharePrice.String())
	assert.InDelta(t, 365, m.PositionDuration().Days.Float64(), 0)
	assert.InDelta(t, 22.186877016851916, m.PositionDuration().TimeStretch.Float64(), 1e-9)

	mc.TargetAPR = fixedpoint.Zero
	_, err = mc.NewMarket()
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNewLogger(t *testing.T) {
	log, err := LogConfig{Level: "debug", Format: "console"}.NewLogger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = LogConfig{Level: "warn", Format: "json"}.NewLogger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	_, err = LogConfig{Level: "loud"}.NewLogger()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
