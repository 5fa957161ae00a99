// Package fees models per-venue platform fees and gas costs.
package fees

import (
	"math/rand/v2"

	"github.com/adjust481/PolySniper/internal/domain"
)

// venueFeeRate is the proportional platform fee charged on notional.
var venueFeeRate = map[domain.Venue]float64{
	domain.VenueA: 0.00,
	domain.VenueB: 0.01,
}

// Breakdown is the realized cost of one settled trade.
type Breakdown struct {
	FeeA  float64 `json:"fee_a"`
	FeeB  float64 `json:"fee_b"`
	Gas   float64 `json:"gas"`
	Total float64 `json:"total"`
}

// Calculate draws a gas cost uniformly from the strategy's tier and applies
// each venue's fee to its leg. aCost is the notional paid on venue A and
// bRevenue the notional received on venue B.
func Calculate(aCost, bRevenue float64, strategy domain.GasStrategy, rng *rand.Rand) Breakdown {
	p := strategy.Params()
	gas := p.GasBaseUSD + rng.Float64()*(p.GasMaxUSD-p.GasBaseUSD)

	b := Breakdown{
		FeeA: aCost * VenueFeeRate(domain.VenueA),
		FeeB: bRevenue * VenueFeeRate(domain.VenueB),
		Gas:  gas,
	}
	b.Total = b.FeeA + b.FeeB + b.Gas
	return b
}

// EstimatedGas is the midpoint of the strategy's gas tier, used as the fixed
// cost when deciding whether to trade.
func EstimatedGas(strategy domain.GasStrategy) float64 {
	p := strategy.Params()
	return (p.GasBaseUSD + p.GasMaxUSD) / 2
}

// VenueFeeRate returns the proportional fee for v, zero for unknown venues.
func VenueFeeRate(v domain.Venue) float64 {
	return venueFeeRate[v]
}

// TotalFeeRate is the combined proportional fee of a round trip across both
// venues.
func TotalFeeRate() float64 {
	return VenueFeeRate(domain.VenueA) + VenueFeeRate(domain.VenueB)
}
