package strategy

import (
	"fmt"
	"time"

	"vwaprelay/internal/market"
)

// Thresholds are z-score levels for one trading session.
type Thresholds struct {
	Entry       float64 `yaml:"entry"`
	Exit        float64 `yaml:"exit"`
	SecondEntry float64 `yaml:"second_entry"`
}

type TrendParams struct {
	Enabled             bool          `yaml:"enabled"`
	ADXPeriod           int           `yaml:"adx_period"`
	ADXThreshold        float64       `yaml:"adx_threshold"`
	PersistenceZ        float64       `yaml:"persistence_z"`
	PersistenceWindow   time.Duration `yaml:"persistence_window"`
	MomentumThreshold   float64       `yaml:"momentum_threshold_pct"`
	VelocityThreshold   float64       `yaml:"velocity_threshold"`
	DivergenceThreshold float64       `yaml:"divergence_threshold"`
}

type Params struct {
	Alpha              float64           `yaml:"ewma_alpha"`
	InitialVariance    float64           `yaml:"initial_variance"`
	MinVariance        float64           `yaml:"min_variance"`
	BiasCorrectionObs  int               `yaml:"bias_correction_observations"`
	WarmupObservations int               `yaml:"warmup_observations"`
	TickSize           float64           `yaml:"tick_size"`
	MinStdTicks        float64           `yaml:"min_std_ticks"`
	MaxSpreadTicks     float64           `yaml:"max_spread_ticks"`
	DefaultQuantity    int               `yaml:"default_quantity"`
	Timezone           string            `yaml:"timezone"`
	NYSession          market.TimeWindow `yaml:"ny_session"`
	NY                 Thresholds        `yaml:"ny"`
	Overnight          Thresholds        `yaml:"overnight"`
	Trend              TrendParams       `yaml:"trend"`
}

// DefaultParams are tuned for index futures quoted in quarter points.
func DefaultParams() Params {
	return Params{
		Alpha:              0.10,
		InitialVariance:    16,
		MinVariance:        4,
		BiasCorrectionObs:  20,
		WarmupObservations: 300,
		TickSize:           0.25,
		MinStdTicks:        2,
		MaxSpreadTicks:     2,
		DefaultQuantity:    1,
		Timezone:           "America/Chicago",
		NYSession:          market.TimeWindow{Start: "07:30", End: "16:00"},
		NY:                 Thresholds{Entry: 20, Exit: 0.5, SecondEntry: 40},
		Overnight:          Thresholds{Entry: 6, Exit: 0.3, SecondEntry: 10},
		Trend: TrendParams{
			Enabled:             true,
			ADXPeriod:           14,
			ADXThreshold:        25,
			PersistenceZ:        1.5,
			PersistenceWindow:   30 * time.Minute,
			MomentumThreshold:   2,
			VelocityThreshold:   4,
			DivergenceThreshold: 1.5,
		},
	}
}

func (p Params) Validate() error {
	if p.Alpha <= 0 || p.Alpha > 1 {
		return fmt.Errorf("ewma_alpha must be in (0, 1]")
	}
	if p.MinVariance <= 0 {
		return fmt.Errorf("min_variance must be > 0")
	}
	if p.TickSize <= 0 {
		return fmt.Errorf("tick_size must be > 0")
	}
	if p.DefaultQuantity <= 0 {
		return fmt.Errorf("default_quantity must be > 0")
	}
	if p.WarmupObservations < 0 {
		return fmt.Errorf("warmup_observations must be >= 0")
	}
	if err := p.NYSession.Validate(); err != nil {
		return fmt.Errorf("ny_session: %w", err)
	}
	if p.Trend.Enabled && p.Trend.ADXPeriod < 2 {
		return fmt.Errorf("trend.adx_period must be >= 2")
	}
	return nil
}
