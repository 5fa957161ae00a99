// Package backtest runs the multi-participant race simulation: it steps a
// price source, maintains one order book per venue, and resolves each
// profile's attempt at every priced opportunity.
package backtest

import (
	"fmt"
	"math"
	"strings"

	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/pricing"
)

// Defaults used when a Config leaves a field at its zero value.
const (
	DefaultMinProfitRate = 0.003
	DefaultEvents        = 15
	DefaultEventsPerDay  = 5
	DefaultDurationDays  = 3
)

// Config describes one simulation run.
type Config struct {
	// Profiles names the participants in configuration order. Empty means
	// domain.DefaultProfiles.
	Profiles         []string
	CapitalOverrides map[string]float64
	ExecutionMode    domain.ExecutionMode
	MinProfitRate    float64
	Seed             int64

	Source       domain.SourceKind
	ReplayRows   []domain.PriceSnapshot
	ReplayOffset float64
	// LagWeight is used as given; zero means venue B does not lag.
	LagWeight    float64

	Events       int
	EventsPerDay int
	DurationDays int

	Risk RiskLimits
}

// DefaultConfig returns a synthetic run over the three built-in profiles.
func DefaultConfig() Config {
	return Config{
		Profiles:      append([]string(nil), domain.DefaultProfiles...),
		ExecutionMode: domain.ExecutionNonAtomic,
		MinProfitRate: DefaultMinProfitRate,
		Seed:          42,
		Source:        domain.SourceSynthetic,
		ReplayOffset:  pricing.DefaultReplayOffset,
		LagWeight:     pricing.DefaultLagWeight,
		Events:        DefaultEvents,
		EventsPerDay:  DefaultEventsPerDay,
		DurationDays:  DefaultDurationDays,
	}
}

// TicksPerEvent is the number of ticks simulated per synthetic event.
func (c Config) TicksPerEvent() int {
	return c.EventsPerDay * c.DurationDays
}

// Validate reports every problem with c in a single error wrapping
// domain.ErrInvalidConfig.
func (c Config) Validate() error {
	var problems []string

	if len(c.profileNames()) == 0 {
		problems = append(problems, "at least one profile is required")
	}
	seen := make(map[string]bool)
	for _, name := range c.profileNames() {
		if seen[name] {
			problems = append(problems, fmt.Sprintf("profile %q listed twice", name))
		}
		seen[name] = true
		if _, err := domain.LookupProfile(name); err != nil {
			problems = append(problems, err.Error())
		}
	}
	for name, capital := range c.CapitalOverrides {
		if capital <= 0 {
			problems = append(problems, fmt.Sprintf("capital override for %q must be > 0", name))
		}
	}

	switch c.ExecutionMode {
	case domain.ExecutionAtomic, domain.ExecutionNonAtomic, "":
	default:
		problems = append(problems, fmt.Sprintf("unknown execution mode %q", c.ExecutionMode))
	}
	if c.MinProfitRate < 0 || math.IsNaN(c.MinProfitRate) {
		problems = append(problems, "min_profit_rate must be >= 0")
	}
	if c.LagWeight < 0 || c.LagWeight > 1 {
		problems = append(problems, "lag_weight must be within [0, 1]")
	}

	switch c.Source {
	case domain.SourceSynthetic, "":
		if c.Events <= 0 {
			problems = append(problems, "events must be > 0")
		}
		if c.EventsPerDay <= 0 {
			problems = append(problems, "events_per_day must be > 0")
		}
		if c.DurationDays <= 0 {
			problems = append(problems, "duration_days must be > 0")
		}
	case domain.SourceReplay:
		if len(c.ReplayRows) == 0 {
			problems = append(problems, "replay source has no rows")
		}
		if math.IsNaN(c.ReplayOffset) || math.IsInf(c.ReplayOffset, 0) {
			problems = append(problems, "replay_offset must be finite")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown source %q", c.Source))
	}

	if err := c.Risk.validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("backtest: config: %w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) profileNames() []string {
	if len(c.Profiles) == 0 {
		return domain.DefaultProfiles
	}
	return c.Profiles
}

// participants resolves the configured profile names, applying capital
// overrides.
func (c Config) participants() ([]domain.ParticipantProfile, error) {
	names := c.profileNames()
	out := make([]domain.ParticipantProfile, 0, len(names))
	for _, name := range names {
		p, err := domain.LookupProfile(name)
		if err != nil {
			return nil, fmt.Errorf("backtest: participants: %w", err)
		}
		if capital, ok := c.CapitalOverrides[name]; ok && capital > 0 {
			p.CapitalUSD = capital
		}
		out = append(out, p)
	}
	return out, nil
}

func (c Config) withDefaults() Config {
	if c.ExecutionMode == "" {
		c.ExecutionMode = domain.ExecutionNonAtomic
	}
	if c.Source == "" {
		c.Source = domain.SourceSynthetic
	}
	c.Profiles = append([]string(nil), c.profileNames()...)
	return c
}
