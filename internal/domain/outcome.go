package domain

// OutcomeState is the terminal state a participant reached for one tick.
type OutcomeState string

const (
	OutcomePrecheckRejected OutcomeState = "precheck_rejected"
	OutcomeSizeRejected     OutcomeState = "size_rejected"
	OutcomeRiskRejected     OutcomeState = "risk_rejected"
	OutcomeFrontRun         OutcomeState = "front_run"
	OutcomeLegRisk          OutcomeState = "leg_risk"
	OutcomeSettled          OutcomeState = "settled"
)

// TradeOutcome is the immutable record of one participant's attempt at one
// opportunity.
type TradeOutcome struct {
	EventID          string        `json:"event_id"`
	Tick             int           `json:"tick"`
	Profile          string        `json:"profile"`
	ExecutionMode    ExecutionMode `json:"execution_mode"`
	State            OutcomeState  `json:"state"`
	Success          bool          `json:"success"`
	UnitsFilled      float64       `json:"units_filled"`
	FillRate         float64       `json:"fill_rate"`
	PriceA           float64       `json:"price_a"`
	PriceB           float64       `json:"price_b"`
	GrossSpread      float64       `json:"gross_spread"`
	NetProfit        float64       `json:"net_profit"`
	GasCost          float64       `json:"gas_cost"`
	SlippageCost     float64       `json:"slippage_cost"`
	TotalFees        float64       `json:"total_fees"`
	FrontRun         bool          `json:"was_frontrun"`
	LegRisk          bool          `json:"leg_risk_triggered"`
	PrecheckRejected bool          `json:"precheck_rejected"`
	RiskRejected     bool          `json:"risk_rejected"`
	Reason           string        `json:"reason,omitempty"`
	LatencyMs        float64       `json:"total_latency_ms"`
	Rank             int           `json:"rank_in_race"`
}
