// Package metrics aggregates per-profile outcome logs.
package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/adjust481/PolySniper/internal/domain"
)

// ProfileMetrics is the per-profile aggregate of a run.
type ProfileMetrics = domain.ProfileMetrics

// centPlaces is the precision money totals are rounded to.
const centPlaces = 2

// Pack aggregates the outcome log of one profile. Money totals are summed
// as decimals and rounded to cents so that long runs do not drift.
func Pack(profile string, outcomes []domain.TradeOutcome) ProfileMetrics {
	m := ProfileMetrics{Profile: profile, Count: len(outcomes)}
	if len(outcomes) == 0 {
		return m
	}

	var net, gas, slip decimal.Decimal
	var fillSum float64
	for _, o := range outcomes {
		if o.Success {
			m.Successes++
		}
		if o.FrontRun {
			m.FrontRunCount++
		}
		if o.LegRisk {
			m.LegRiskCount++
		}
		if o.PrecheckRejected {
			m.PrecheckRejected++
		}
		net = net.Add(decimal.NewFromFloat(o.NetProfit))
		gas = gas.Add(decimal.NewFromFloat(o.GasCost))
		slip = slip.Add(decimal.NewFromFloat(o.SlippageCost))
		fillSum += o.FillRate
	}

	n := float64(len(outcomes))
	m.SuccessRatePct = float64(m.Successes) / n * 100
	m.NetProfit = net.Round(centPlaces).InexactFloat64()
	m.TotalGas = gas.Round(centPlaces).InexactFloat64()
	m.TotalSlippage = slip.Round(centPlaces).InexactFloat64()
	m.MeanFillRatePct = fillSum / n * 100
	return m
}

// SeedSummary aggregates one profile across the runs of a sweep.
type SeedSummary struct {
	Profile       string  `json:"profile"`
	Runs          int     `json:"runs"`
	Outcomes      int     `json:"outcomes"`
	Successes     int     `json:"successes"`
	NetProfit     float64 `json:"net_profit"`
	MeanNetProfit float64 `json:"mean_net_profit"`
	MinRunNet     float64 `json:"min_run_net"`
	MaxRunNet     float64 `json:"max_run_net"`
}

// Combine folds the per-run metrics of several runs into one summary per
// profile, in the order profiles first appear.
func Combine(runs [][]ProfileMetrics) []SeedSummary {
	var order []string
	byName := make(map[string]*SeedSummary)
	totals := make(map[string]decimal.Decimal)

	for _, run := range runs {
		for _, m := range run {
			s, ok := byName[m.Profile]
			if !ok {
				s = &SeedSummary{Profile: m.Profile, MinRunNet: m.NetProfit, MaxRunNet: m.NetProfit}
				byName[m.Profile] = s
				order = append(order, m.Profile)
			}
			s.Runs++
			s.Outcomes += m.Count
			s.Successes += m.Successes
			s.MinRunNet = min(s.MinRunNet, m.NetProfit)
			s.MaxRunNet = max(s.MaxRunNet, m.NetProfit)
			totals[m.Profile] = totals[m.Profile].Add(decimal.NewFromFloat(m.NetProfit))
		}
	}

	out := make([]SeedSummary, 0, len(order))
	for _, name := range order {
		s := byName[name]
		total := totals[name]
		s.NetProfit = total.Round(centPlaces).InexactFloat64()
		if s.Outcomes > 0 {
			s.MeanNetProfit = total.Div(decimal.NewFromInt(int64(s.Outcomes))).Round(4).InexactFloat64()
		}
		out = append(out, *s)
	}
	return out
}
