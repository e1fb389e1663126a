package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"

	"vwaprelay/internal/market"
	"vwaprelay/internal/strategy"
)

// DeciderConfig configures the reference decision service.
type DeciderConfig struct {
	Addr      string `yaml:"addr" default:":8000" validate:"required"`
	LogLevel  string `yaml:"log_level" default:"info"`
	LogFormat string `yaml:"log_format" default:"json" validate:"oneof=json console"`

	// Timezone applies to restricted windows; the strategy has its own.
	Timezone          string              `yaml:"timezone" default:"America/Chicago" validate:"required"`
	RestrictedWindows []market.TimeWindow `yaml:"restricted_windows"`
	Strategy          strategy.Params     `yaml:"strategy"`
}

func defaultRestrictedWindows() []market.TimeWindow {
	return []market.TimeWindow{
		{Start: "07:25", End: "07:45"},
		{Start: "15:15", End: "17:00"},
	}
}

func LoadDecider(args []string) (DeciderConfig, error) {
	cfg := DeciderConfig{
		RestrictedWindows: defaultRestrictedWindows(),
		Strategy:          strategy.DefaultParams(),
	}
	if err := defaults.Set(&cfg); err != nil {
		return cfg, fmt.Errorf("apply defaults: %w", err)
	}

	configPath := os.Getenv("VWAPRELAY_DECIDER_CONFIG")
	probe := cfg
	if err := newDeciderFlagSet(&probe, &configPath).Parse(args); err != nil {
		return cfg, err
	}
	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return cfg, err
	}
	cfg.Addr = envOr("VWAPRELAY_DECIDER_ADDR", cfg.Addr)
	cfg.LogLevel = envOr("VWAPRELAY_LOG_LEVEL", cfg.LogLevel)
	if err := newDeciderFlagSet(&cfg, &configPath).Parse(args); err != nil {
		return cfg, err
	}

	if err := validateDecider(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newDeciderFlagSet(cfg *DeciderConfig, configPath *string) *flag.FlagSet {
	set := flag.NewFlagSet("decider", flag.ContinueOnError)
	set.StringVar(configPath, "config", *configPath, "path to YAML config file")
	set.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	set.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	set.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or console")
	set.IntVar(&cfg.Strategy.WarmupObservations, "warmup", cfg.Strategy.WarmupObservations, "observations before the first signal")
	set.Float64Var(&cfg.Strategy.TickSize, "tick-size", cfg.Strategy.TickSize, "default tick size when requests omit it")
	set.BoolVar(&cfg.Strategy.Trend.Enabled, "trend-filter", cfg.Strategy.Trend.Enabled, "enable the NY session trend filter")
	return set
}

func validateDecider(cfg DeciderConfig) error {
	if err := structValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid decider config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	for _, w := range cfg.RestrictedWindows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("restricted window %s: %w", w, err)
		}
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	return nil
}
