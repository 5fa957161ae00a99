package domain

// GasStrategy is the execution-speed tier a participant pays for. The set is
// closed: every value must have an entry in strategyTable.
type GasStrategy string

const (
	GasStandard  GasStrategy = "standard"
	GasPriority  GasStrategy = "priority"
	GasFlashbots GasStrategy = "flashbots"
)

// StrategyParams holds every cost and probability that depends on the gas
// strategy.
type StrategyParams struct {
	GasBaseUSD   float64
	GasMaxUSD    float64
	FrontRunProb float64
	LegRiskProb  float64
}

var strategyTable = map[GasStrategy]StrategyParams{
	GasStandard: {
		GasBaseUSD:   2,
		GasMaxUSD:    5,
		FrontRunProb: 0.25,
		LegRiskProb:  0.15,
	},
	GasPriority: {
		GasBaseUSD:   5,
		GasMaxUSD:    12,
		FrontRunProb: 0.08,
		LegRiskProb:  0.03,
	},
	GasFlashbots: {
		GasBaseUSD:   8,
		GasMaxUSD:    20,
		FrontRunProb: 0,
		LegRiskProb:  0,
	},
}

// Params returns the lookup-table row for s. Unknown strategies yield the
// zero value.
func (s GasStrategy) Params() StrategyParams {
	return strategyTable[s]
}
