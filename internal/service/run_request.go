package service

import (
	"fmt"
	"maps"

	"github.com/adjust481/PolySniper/internal/backtest"
	"github.com/adjust481/PolySniper/internal/domain"
)

// RunRequest carries per-run overrides on top of the configured defaults.
// Zero fields keep the default.
type RunRequest struct {
	Profiles         []string           `json:"profiles,omitempty"`
	ExecutionMode    string             `json:"execution_mode,omitempty"`
	MinProfitRate    float64            `json:"min_profit_rate,omitempty"`
	Seed             *int64             `json:"seed,omitempty"`
	Source           string             `json:"source,omitempty"`
	ReplayPath       string             `json:"replay_path,omitempty"`
	ReplayOffset     *float64           `json:"replay_offset,omitempty"`
	Events           int                `json:"events,omitempty"`
	EventsPerDay     int                `json:"events_per_day,omitempty"`
	DurationDays     int                `json:"duration_days,omitempty"`
	CapitalOverrides map[string]float64 `json:"capital_overrides,omitempty"`
	MaxPositionUSD   *float64           `json:"max_position_usd,omitempty"`
	CooldownTicks    *int               `json:"cooldown_ticks,omitempty"`
}

// Apply merges r into base and returns the resulting config together with
// the replay path to load, which falls back to defaultReplay.
func (r RunRequest) Apply(base backtest.Config, defaultReplay string) (backtest.Config, string, error) {
	cfg := base
	cfg.Profiles = append([]string(nil), base.Profiles...)
	cfg.CapitalOverrides = maps.Clone(base.CapitalOverrides)

	if len(r.Profiles) > 0 {
		cfg.Profiles = append([]string(nil), r.Profiles...)
	}
	if r.ExecutionMode != "" {
		mode, err := domain.ParseExecutionMode(r.ExecutionMode)
		if err != nil {
			return cfg, "", fmt.Errorf("service: run request: %w", err)
		}
		cfg.ExecutionMode = mode
	}
	if r.MinProfitRate != 0 {
		cfg.MinProfitRate = r.MinProfitRate
	}
	if r.Seed != nil {
		cfg.Seed = *r.Seed
	}
	if r.Source != "" {
		cfg.Source = domain.SourceKind(r.Source)
	}
	if r.ReplayOffset != nil {
		cfg.ReplayOffset = *r.ReplayOffset
	}
	if r.Events != 0 {
		cfg.Events = r.Events
	}
	if r.EventsPerDay != 0 {
		cfg.EventsPerDay = r.EventsPerDay
	}
	if r.DurationDays != 0 {
		cfg.DurationDays = r.DurationDays
	}
	if len(r.CapitalOverrides) > 0 {
		if cfg.CapitalOverrides == nil {
			cfg.CapitalOverrides = make(map[string]float64, len(r.CapitalOverrides))
		}
		maps.Copy(cfg.CapitalOverrides, r.CapitalOverrides)
	}
	if r.MaxPositionUSD != nil {
		cfg.Risk.MaxPositionUSD = *r.MaxPositionUSD
	}
	if r.CooldownTicks != nil {
		cfg.Risk.CooldownTicks = *r.CooldownTicks
	}

	replay := defaultReplay
	if r.ReplayPath != "" {
		replay = r.ReplayPath
	}
	if cfg.Source != domain.SourceReplay {
		replay = ""
	}
	return cfg, replay, nil
}
