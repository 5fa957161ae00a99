// Package pricing provides the quote feeds that drive a simulation run: a
// synthetic mean-reverting process and a replay of a recorded quote log.
// Both satisfy Source, so the backtest loop never inspects which one it has.
package pricing

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultLagWeight is the share of the previous venue-A quote blended into
// the venue-B quote.
const DefaultLagWeight = 0.3

// Quote bounds applied to every venue quote.
const (
	quoteMin = 0.01
	quoteMax = 0.99
)

// Source is a stepped price feed for the two venues.
type Source interface {
	// Initialize rewinds the source. Synthetic sources seed their latent
	// value from base; replay sources ignore it.
	Initialize(base float64)
	// Step advances one tick and returns the new reference price.
	Step() (float64, error)
	// QuoteA returns the venue-A buy price for the current tick.
	QuoteA() (float64, error)
	// QuoteB returns the venue-B sell price for the current tick.
	QuoteB(lagWeight float64) (float64, error)
}

// Timestamped is implemented by sources backed by recorded rows.
type Timestamped interface {
	CurrentTimestamp() (time.Time, bool)
}

// Finite is implemented by sources with a bounded number of steps.
type Finite interface {
	HasMoreData() bool
	Progress() (consumed, total int, pct float64)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}
