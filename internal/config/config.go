// Package config loads engine settings from TOML, .env and HYPERDRIVE_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Journal  JournalConfig  `toml:"journal"`
	Market   MarketConfig   `toml:"market"`
	Log      LogConfig      `toml:"log"`
}

// ── Server ──

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Addr         string   `toml:"addr"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// ── Storage ──

// DatabaseConfig selects Postgres; an empty URL means in-memory storage.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// RedisConfig enables the read-through cache when URL is set.
type RedisConfig struct {
	URL string   `toml:"url"`
	TTL duration `toml:"ttl"`
}

// JournalConfig controls the trade write-ahead log. An empty Dir disables it.
type JournalConfig struct {
	Dir              string `toml:"dir"`
	SegmentThreshold int    `toml:"segment_threshold"`
	MaxSegments      int    `toml:"max_segments"`
	Sync             bool   `toml:"sync"`
}

// ── Market ──

// MarketConfig is the default pool created at startup and the base for
// simulation scenarios. Amounts are fixed point; quote a TOML value to keep
// all 18 decimals.
type MarketConfig struct {
	PricingModel         string                `toml:"pricing_model" yaml:"pricing_model"`
	FeePercent           fixedpoint.FixedPoint `toml:"fee_percent" yaml:"fee_percent"`
	PositionDurationDays fixedpoint.FixedPoint `toml:"position_duration_days" yaml:"position_duration_days"`
	TargetAPR            fixedpoint.FixedPoint `toml:"target_apr" yaml:"target_apr"`
	InitSharePrice       fixedpoint.FixedPoint `toml:"init_share_price" yaml:"init_share_price"`
	SharePrice           fixedpoint.FixedPoint `toml:"share_price" yaml:"share_price"`
	VaultAPR             fixedpoint.FixedPoint `toml:"vault_apr" yaml:"vault_apr"`
	TargetLiquidity      fixedpoint.FixedPoint `toml:"target_liquidity" yaml:"target_liquidity"`
	Compound             bool                  `toml:"compound" yaml:"compound"`
}

// ── Log ──

// LogConfig selects the zap logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// duration decodes TOML strings like "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config that runs an in-memory server with a one-year
// hyperdrive pool.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  duration{10 * time.Second},
			WriteTimeout: duration{10 * time.Second},
		},
		Redis: RedisConfig{TTL: duration{30 * time.Second}},
		Journal: JournalConfig{
			SegmentThreshold: 1000,
			MaxSegments:      100,
		},
		Market: DefaultMarket(),
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// DefaultMarket is the market section of Defaults.
func DefaultMarket() MarketConfig {
	return MarketConfig{
		PricingModel:         "hyperdrive",
		FeePercent:           fixedpoint.MustParse("0.1"),
		PositionDurationDays: fixedpoint.New(365),
		TargetAPR:            fixedpoint.MustParse("0.05"),
		InitSharePrice:       fixedpoint.One,
		SharePrice:           fixedpoint.One,
		VaultAPR:             fixedpoint.MustParse("0.05"),
		TargetLiquidity:      fixedpoint.New(1_000_000),
	}
}

var validModels = map[string]bool{"hyperdrive": true, "yieldspace": true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"json": true, "console": true}

// Validate reports every problem in one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty")
	}
	if c.Server.ReadTimeout.Duration < 0 || c.Server.WriteTimeout.Duration < 0 {
		errs = append(errs, "server: timeouts must not be negative")
	}
	if c.Redis.URL != "" && c.Redis.TTL.Duration <= 0 {
		errs = append(errs, "redis: ttl must be positive when url is set")
	}
	if c.Journal.Dir != "" {
		if c.Journal.SegmentThreshold <= 0 {
			errs = append(errs, "journal: segment_threshold must be positive")
		}
		if c.Journal.MaxSegments <= 0 {
			errs = append(errs, "journal: max_segments must be positive")
		}
	}
	errs = append(errs, c.Market.problems()...)
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: json, console)", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Wrap(ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the market section on its own.
func (m MarketConfig) Validate() error {
	if errs := m.problems(); len(errs) > 0 {
		return errors.Wrap(ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func (m MarketConfig) problems() []string {
	var errs []string
	if !validModels[strings.ToLower(m.PricingModel)] {
		errs = append(errs, fmt.Sprintf("market: unknown pricing_model %q (valid: hyperdrive, yieldspace)", m.PricingModel))
	}
	for _, f := range []struct {
		name string
		v    fixedpoint.FixedPoint
	}{
		{"fee_percent", m.FeePercent},
		{"position_duration_days", m.PositionDurationDays},
		{"target_apr", m.TargetAPR},
		{"init_share_price", m.InitSharePrice},
		{"share_price", m.SharePrice},
		{"vault_apr", m.VaultAPR},
		{"target_liquidity", m.TargetLiquidity},
	} {
		if !f.v.IsFinite() {
			errs = append(errs, fmt.Sprintf("market: %s must be finite", f.name))
		}
	}
	if m.FeePercent.IsNegative() || m.FeePercent.GreaterThan(fixedpoint.One) {
		errs = append(errs, "market: fee_percent must be in [0, 1]")
	}
	if !m.PositionDurationDays.IsPositive() {
		errs = append(errs, "market: position_duration_days must be positive")
	}
	if !m.TargetAPR.IsPositive() {
		errs = append(errs, "market: target_apr must be positive")
	}
	if !m.InitSharePrice.IsPositive() || !m.SharePrice.IsPositive() {
		errs = append(errs, "market: share prices must be positive")
	}
	if m.TargetLiquidity.IsNegative() {
		errs = append(errs, "market: target_liquidity must not be negative")
	}
	return errs
}
