package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
)

// Load starts from Defaults, decodes path if it is non-empty, then applies
// .env and HYPERDRIVE_* overrides. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, errors.Wrapf(err, "config: decode %s", path)
		}
	}

	// A missing .env is not an error.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Server.Addr, "HYPERDRIVE_ADDR")
	setDuration(&cfg.Server.ReadTimeout, "HYPERDRIVE_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "HYPERDRIVE_WRITE_TIMEOUT")

	setStr(&cfg.Database.URL, "HYPERDRIVE_DATABASE_URL")
	setStr(&cfg.Redis.URL, "HYPERDRIVE_REDIS_URL")
	setDuration(&cfg.Redis.TTL, "HYPERDRIVE_REDIS_TTL")

	setStr(&cfg.Journal.Dir, "HYPERDRIVE_JOURNAL_DIR")
	setInt(&cfg.Journal.SegmentThreshold, "HYPERDRIVE_JOURNAL_SEGMENT_THRESHOLD")
	setInt(&cfg.Journal.MaxSegments, "HYPERDRIVE_JOURNAL_MAX_SEGMENTS")
	setBool(&cfg.Journal.Sync, "HYPERDRIVE_JOURNAL_SYNC")

	setStr(&cfg.Market.PricingModel, "HYPERDRIVE_PRICING_MODEL")
	setFixed(&cfg.Market.FeePercent, "HYPERDRIVE_FEE_PERCENT")
	setFixed(&cfg.Market.PositionDurationDays, "HYPERDRIVE_POSITION_DURATION_DAYS")
	setFixed(&cfg.Market.TargetAPR, "HYPERDRIVE_TARGET_APR")
	setFixed(&cfg.Market.InitSharePrice, "HYPERDRIVE_INIT_SHARE_PRICE")
	setFixed(&cfg.Market.SharePrice, "HYPERDRIVE_SHARE_PRICE")
	setFixed(&cfg.Market.VaultAPR, "HYPERDRIVE_VAULT_APR")
	setFixed(&cfg.Market.TargetLiquidity, "HYPERDRIVE_TARGET_LIQUIDITY")
	setBool(&cfg.Market.Compound, "HYPERDRIVE_COMPOUND")

	setStr(&cfg.Log.Level, "HYPERDRIVE_LOG_LEVEL")
	setStr(&cfg.Log.Format, "HYPERDRIVE_LOG_FORMAT")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFixed(dst *fixedpoint.FixedPoint, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := fixedpoint.Parse(v); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
