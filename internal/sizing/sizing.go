// Package sizing decides whether a quoted spread is worth trading and how
// much to trade under a quadratic slippage model.
package sizing

import (
	"fmt"
	"math"
)

const (
	// SlippageCoefficient is k in the cost model k·Q²/(2L).
	SlippageCoefficient = 0.03

	breakevenCapitalShare = 0.2
	breakevenCap          = 1000.0

	capitalShare     = 0.4
	depthShareBase   = 0.3
	depthShareScaled = 0.2
	capitalScale     = 10000.0

	minSizeBase         = 30.0
	minSizeCapitalShare = 0.001
)

// Precheck is the cheap gate applied before sizing. It rejects when the net
// spread is not positive or when the quantity needed to recover the fixed
// cost exceeds min(capital·0.2, 1000).
func Precheck(spread, feeRate, fixedCost, capital float64) (bool, string) {
	net := spread - feeRate
	if net <= 0 {
		return false, fmt.Sprintf("net spread %.4f <= 0", net)
	}
	breakeven := fixedCost / net
	maxBreakeven := math.Min(capital*breakevenCapitalShare, breakevenCap)
	if breakeven > maxBreakeven {
		return false, fmt.Sprintf("breakeven %.1f > max %.1f", breakeven, maxBreakeven)
	}
	return true, ""
}

// OptimalAmount returns the profit-maximizing quantity and its expected
// profit Q·net − k·Q²/(2L) − fixedCost. The unconstrained optimum net·L/k is
// capped by a capital-scaled share of both capital and depth. Non-viable
// inputs return (0, −fixedCost). The trailing mid price is accepted for
// callers that size in notional terms and does not affect the result.
func OptimalAmount(spread, feeRate, depth, capital, fixedCost, _ float64) (float64, float64) {
	net := spread - feeRate
	if net <= 0 || depth <= 0 {
		return 0, -fixedCost
	}

	q := net * depth / SlippageCoefficient
	depthShare := depthShareBase + depthShareScaled*math.Min(capital/capitalScale, 1)
	q = math.Min(q, math.Min(capital*capitalShare, depth*depthShare))

	if q < minSizeBase+capital*minSizeCapitalShare {
		return 0, -fixedCost
	}
	return q, ExpectedProfit(q, net, depth, fixedCost)
}

// ExpectedProfit evaluates the quadratic cost model at quantity q.
func ExpectedProfit(q, netSpread, depth, fixedCost float64) float64 {
	if depth <= 0 {
		return -fixedCost
	}
	return q*netSpread - SlippageCoefficient*q*q/(2*depth) - fixedCost
}
