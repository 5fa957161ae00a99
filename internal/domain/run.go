package domain

import "time"

// SourceKind selects the price source of a run.
type SourceKind string

const (
	SourceSynthetic SourceKind = "synthetic"
	SourceReplay    SourceKind = "replay"
)

// ProfileMetrics aggregates the outcome log of one participant profile.
type ProfileMetrics struct {
	Profile          string  `json:"profile"`
	Count            int     `json:"count"`
	Successes        int     `json:"successes"`
	SuccessRatePct   float64 `json:"success_rate_pct"`
	NetProfit        float64 `json:"net_profit"`
	TotalGas         float64 `json:"total_gas"`
	TotalSlippage    float64 `json:"total_slippage"`
	MeanFillRatePct  float64 `json:"mean_fill_rate_pct"`
	FrontRunCount    int     `json:"frontrun_count"`
	LegRiskCount     int     `json:"leg_risk_count"`
	PrecheckRejected int     `json:"precheck_rejected"`
}

// MeanNetProfit is the average net profit per recorded outcome.
func (m ProfileMetrics) MeanNetProfit() float64 {
	if m.Count == 0 {
		return 0
	}
	return m.NetProfit / float64(m.Count)
}

// RunRecord is the persisted header of one simulation run.
type RunRecord struct {
	ID            string           `json:"id"`
	Seed          int64            `json:"seed"`
	Source        SourceKind       `json:"source"`
	ExecutionMode ExecutionMode    `json:"execution_mode"`
	MinProfitRate float64          `json:"min_profit_rate"`
	Profiles      []string         `json:"profiles"`
	Stats         RunStatistics    `json:"stats"`
	Metrics       []ProfileMetrics `json:"metrics"`
	Completed     bool             `json:"completed"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// RunProgress is a point-in-time view of an active run.
type RunProgress struct {
	RunID    string        `json:"run_id"`
	Done     int           `json:"done"`
	Total    int           `json:"total"`
	Pct      float64       `json:"pct"`
	Stats    RunStatistics `json:"stats"`
	Finished bool          `json:"finished"`
}
