package tuning

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"thecore.gg/internal/sim/game/model"
)

// EnvPrefix prefixes every environment override, e.g. CORE_SAFE_LIMIT_TICKS.
const EnvPrefix = "CORE_"

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int    `yaml:"tick_rate_hz" json:"tick_rate_hz" env:"TICK_RATE_HZ"`
	SnapshotEveryTicks uint64 `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks" env:"SNAPSHOT_EVERY_TICKS"`

	PointsPerInterval    uint64 `yaml:"points_per_interval" json:"points_per_interval" env:"POINTS_PER_INTERVAL"`
	IntervalTicks        uint64 `yaml:"interval_ticks" json:"interval_ticks" env:"INTERVAL_TICKS"`
	SafeLimitTicks       uint64 `yaml:"safe_limit_ticks" json:"safe_limit_ticks" env:"SAFE_LIMIT_TICKS"`
	BurnRateBps          uint64 `yaml:"burn_rate_bps" json:"burn_rate_bps" env:"BURN_RATE_BPS"`
	BurnIntervalTicks    uint64 `yaml:"burn_interval_ticks" json:"burn_interval_ticks" env:"BURN_INTERVAL_TICKS"`
	InactivityLimitTicks uint64 `yaml:"inactivity_limit_ticks" json:"inactivity_limit_ticks" env:"INACTIVITY_LIMIT_TICKS"`
	PhoenixCooldownTicks uint64 `yaml:"phoenix_cooldown_ticks" json:"phoenix_cooldown_ticks" env:"PHOENIX_COOLDOWN_TICKS"`

	RateLimits RateLimits `yaml:"rate_limits" json:"rate_limits" envPrefix:"RATE_"`
}

type RateLimits struct {
	ActPerSecond float64 `yaml:"act_per_second" json:"act_per_second" env:"ACT_PER_SECOND"`
	ActBurst     int     `yaml:"act_burst" json:"act_burst" env:"ACT_BURST"`
}

// Defaults are the values the game launched with: 10 points per 100 ticks, meltdown after
// 900 ticks, 5% burned per 30 ticks of meltdown, admin reset after 86400 idle ticks.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:      "1.0",
		TickRateHz:           4,
		SnapshotEveryTicks:   600,
		PointsPerInterval:    10,
		IntervalTicks:        100,
		SafeLimitTicks:       900,
		BurnRateBps:          500,
		BurnIntervalTicks:    30,
		InactivityLimitTicks: 86400,
		PhoenixCooldownTicks: 300,
		RateLimits: RateLimits{
			ActPerSecond: 5,
			ActBurst:     10,
		},
	}
}

// Load reads path over Defaults, applies CORE_* environment overrides and validates the
// result. An empty path skips the file.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("tuning.yaml: %w", err)
		}
	}
	if err := env.ParseWithOptions(&t, env.Options{Prefix: EnvPrefix}); err != nil {
		return t, fmt.Errorf("parse env: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("tuning: tick_rate_hz must be > 0")
	case t.IntervalTicks == 0:
		return fmt.Errorf("tuning: interval_ticks must be > 0")
	case t.BurnIntervalTicks == 0:
		return fmt.Errorf("tuning: burn_interval_ticks must be > 0")
	case t.BurnRateBps > model.BpsDenominator:
		return fmt.Errorf("tuning: burn_rate_bps must be <= %d", model.BpsDenominator)
	case t.RateLimits.ActPerSecond < 0 || t.RateLimits.ActBurst < 0:
		return fmt.Errorf("tuning: rate_limits must be >= 0")
	}
	return nil
}

// Params returns the game constants for the engine.
func (t Tuning) Params() model.Params {
	return model.Params{
		PointsPerInterval:    t.PointsPerInterval,
		IntervalTicks:        t.IntervalTicks,
		SafeLimitTicks:       t.SafeLimitTicks,
		BurnRateBps:          t.BurnRateBps,
		BurnIntervalTicks:    t.BurnIntervalTicks,
		InactivityLimitTicks: t.InactivityLimitTicks,
		PhoenixCooldownTicks: t.PhoenixCooldownTicks,
	}
}
