package domain

// RunStatistics holds the run-level counters. Each field only ever grows
// during a run.
type RunStatistics struct {
	BlackSwan        int `json:"black_swan"`
	FrontRun         int `json:"frontrun"`
	LegRisk          int `json:"leg_risk"`
	PrecheckRejected int `json:"precheck_rejected"`
	RiskRejected     int `json:"risk_rejected"`
	NoOpportunity    int `json:"no_opportunity"`
	ProfitableTrades int `json:"profitable_trades"`
	LiquidityCrisis  int `json:"liquidity_crisis"`
	TotalTicks       int `json:"total_ticks"`
}
