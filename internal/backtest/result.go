package backtest

import (
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/metrics"
)

// Result is the output of one run. A cancelled run still yields a valid
// Result with Completed set to false.
type Result struct {
	RunID         string
	Seed          int64
	Source        domain.SourceKind
	ExecutionMode domain.ExecutionMode
	MinProfitRate float64
	// Profiles preserves configuration order; Outcomes and Metrics are keyed
	// by the same names.
	Profiles     []string
	Outcomes     map[string][]domain.TradeOutcome
	Metrics      map[string]domain.ProfileMetrics
	PriceHistory []domain.PricePoint
	Stats        domain.RunStatistics
	Completed    bool
	StartedAt    time.Time
	FinishedAt   time.Time
}

// OrderedMetrics returns the per-profile metrics in configuration order.
func (r *Result) OrderedMetrics() []domain.ProfileMetrics {
	out := make([]domain.ProfileMetrics, 0, len(r.Profiles))
	for _, name := range r.Profiles {
		out = append(out, r.Metrics[name])
	}
	return out
}

// AllOutcomes flattens the outcome logs in configuration order.
func (r *Result) AllOutcomes() []domain.TradeOutcome {
	var n int
	for _, name := range r.Profiles {
		n += len(r.Outcomes[name])
	}
	out := make([]domain.TradeOutcome, 0, n)
	for _, name := range r.Profiles {
		out = append(out, r.Outcomes[name]...)
	}
	return out
}

// Record converts the result into its persisted header.
func (r *Result) Record() domain.RunRecord {
	return domain.RunRecord{
		ID:            r.RunID,
		Seed:          r.Seed,
		Source:        r.Source,
		ExecutionMode: r.ExecutionMode,
		MinProfitRate: r.MinProfitRate,
		Profiles:      append([]string(nil), r.Profiles...),
		Stats:         r.Stats,
		Metrics:       r.OrderedMetrics(),
		Completed:     r.Completed,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}

func (r *Result) pack() {
	r.Metrics = make(map[string]domain.ProfileMetrics, len(r.Profiles))
	for _, name := range r.Profiles {
		r.Metrics[name] = metrics.Pack(name, r.Outcomes[name])
	}
}
