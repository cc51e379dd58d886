package tuning

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds every knob of the simulation. All fields are optional in
// the YAML file; absent fields keep the compiled defaults.
type Tuning struct {
	TickIntervalMS int    `yaml:"tick_interval_ms"`
	MaxTicks       uint64 `yaml:"max_ticks"`

	Climate   Climate   `yaml:"climate"`
	Assembly  Assembly  `yaml:"assembly"`
	Governor  Governor  `yaml:"governor"`
	Trade     Trade     `yaml:"trade"`
	Migration Migration `yaml:"migration"`
	Treaty    Treaty    `yaml:"treaty"`
	Feed      Feed      `yaml:"feed"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	// Per-region seed overrides, keyed by state code.
	Regions map[string]RegionOverride `yaml:"regions"`
}

type Climate struct {
	EventProbability float64 `yaml:"event_probability"`
	MinIntervalTicks int     `yaml:"min_interval_ticks"`
}

type Assembly struct {
	IntervalTicks int     `yaml:"interval_ticks"`
	Majority      float64 `yaml:"majority"`
}

type Governor struct {
	PeriodicIntervalTicks int     `yaml:"periodic_interval_ticks"`
	DeficitThreshold      float64 `yaml:"deficit_threshold"`
	SurplusThreshold      float64 `yaml:"surplus_threshold"`
}

type Trade struct {
	MaxQuantity int `yaml:"max_quantity"`
}

type Migration struct {
	WelfareThreshold float64 `yaml:"welfare_threshold"`
	Rate             float64 `yaml:"rate"`
}

type Treaty struct {
	MaxPerState          int     `yaml:"max_per_state"`
	BreachTrustPenalty   float64 `yaml:"breach_trust_penalty"`
	HonorTrustBonus      float64 `yaml:"honor_trust_bonus"`
	DefaultDurationTicks int     `yaml:"default_duration_ticks"`
}

// Feed bounds both the per-frame slices and the rolling logs the world
// keeps between frames.
type Feed struct {
	TradesPerFrame   int `yaml:"trades_per_frame"`
	MessagesPerFrame int `yaml:"messages_per_frame"`
	EventsPerFrame   int `yaml:"events_per_frame"`

	TradeLog   int `yaml:"trade_log"`
	MessageLog int `yaml:"message_log"`
	EventLog   int `yaml:"event_log"`
}

// RegionOverride replaces parts of a region's seed data. Nil fields and
// nil maps leave the seed value alone.
type RegionOverride struct {
	Population *int64   `yaml:"population"`
	GDP        *float64 `yaml:"gdp"`
	Welfare    *float64 `yaml:"welfare"`

	Resources   map[string]int `yaml:"resources"`
	Generation  map[string]int `yaml:"generation"`
	Consumption map[string]int `yaml:"consumption"`
}

func Defaults() Tuning {
	return Tuning{
		TickIntervalMS: 2000,
		MaxTicks:       0,
		Climate: Climate{
			EventProbability: 0.05,
			MinIntervalTicks: 5,
		},
		Assembly: Assembly{
			IntervalTicks: 50,
			Majority:      0.6,
		},
		Governor: Governor{
			PeriodicIntervalTicks: 10,
			DeficitThreshold:      0.15,
			SurplusThreshold:      0.40,
		},
		Trade: Trade{
			MaxQuantity: 2000,
		},
		Migration: Migration{
			WelfareThreshold: 35.0,
			Rate:             0.02,
		},
		Treaty: Treaty{
			MaxPerState:          5,
			BreachTrustPenalty:   15,
			HonorTrustBonus:      2,
			DefaultDurationTicks: 20,
		},
		Feed: Feed{
			TradesPerFrame:   10,
			MessagesPerFrame: 10,
			EventsPerFrame:   15,
			TradeLog:         50,
			MessageLog:       50,
			EventLog:         30,
		},
		SnapshotEveryTicks: 25,
	}
}

// Load reads a tuning file over the defaults. An empty path returns the
// defaults unchanged. Unknown YAML fields are an error.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("tuning: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file keeps defaults.
			return t, nil
		}
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	return t, nil
}
