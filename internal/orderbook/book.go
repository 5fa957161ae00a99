// Package orderbook models a venue's multi-level depth with slippage-aware
// consumption and gradual replenishment toward the depth it was built with.
package orderbook

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
)

const (
	// LevelCount is the number of levels generated per side.
	LevelCount = 5

	levelDecay     = 0.6
	levelPenalty   = 0.001
	dustQty        = 0.01
	crisisFactor   = 0.2
	replenishFloor = 0.2
	jitterLow      = 0.9
	jitterHigh     = 1.1
)

// Book is one venue's depth. Levels are ordered best price first.
type Book struct {
	Venue     domain.Venue
	Timestamp time.Time
	Mid       float64
	Asks      []domain.PriceLevel
	Bids      []domain.PriceLevel
	// Crisis discounts every level to 20% of its size during consumption.
	Crisis bool

	// Construction-time size of every level, keyed by price.
	initialAsks map[float64]float64
	initialBids map[float64]float64
}

// Fill is the result of walking one side of the book.
type Fill struct {
	Filled   float64
	AvgPrice float64
	Notional float64
	Slippage float64
}

// New returns an empty book.
func New(venue domain.Venue, mid float64, ts time.Time) *Book {
	return &Book{Venue: venue, Mid: mid, Timestamp: ts}
}

// BuildAsks creates a book whose ask side prices upward from mid in steps of
// mid·step, with level sizes decaying geometrically from liquidity.
func BuildAsks(venue domain.Venue, mid, liquidity, step float64, ts time.Time) *Book {
	b := New(venue, mid, ts)
	b.SetLevels(domain.SideBuy, ladder(mid, liquidity, step))
	return b
}

// BuildBids creates a book whose bid side prices downward from mid.
func BuildBids(venue domain.Venue, mid, liquidity, step float64, ts time.Time) *Book {
	b := New(venue, mid, ts)
	b.SetLevels(domain.SideSell, ladder(mid, liquidity, -step))
	return b
}

func ladder(mid, liquidity, step float64) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, LevelCount)
	for i := range levels {
		levels[i] = domain.PriceLevel{
			Price: mid * (1 + step*float64(i+1)),
			Size:  liquidity * math.Pow(levelDecay, float64(i)),
		}
	}
	return levels
}

// SetLevels replaces the side a taker of the given direction consumes (asks
// for buys, bids for sells) and records it as the replenishment target.
func (b *Book) SetLevels(side domain.Side, levels []domain.PriceLevel) {
	cur := append([]domain.PriceLevel(nil), levels...)
	init := make(map[float64]float64, len(levels))
	for _, l := range levels {
		init[l.Price] = l.Size
	}
	if side == domain.SideBuy {
		b.Asks, b.initialAsks = cur, init
		return
	}
	b.Bids, b.initialBids = cur, init
}

// BestAsk returns the top ask level.
func (b *Book) BestAsk() (domain.PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return domain.PriceLevel{}, false
	}
	return b.Asks[0], true
}

// BestBid returns the top bid level.
func (b *Book) BestBid() (domain.PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return domain.PriceLevel{}, false
	}
	return b.Bids[0], true
}

// Depth is the total quantity available to a taker on side.
func (b *Book) Depth(side domain.Side) float64 {
	var total float64
	for _, l := range *b.levels(side) {
		total += l.Size
	}
	return total
}

// SetMid refreshes the reference mid price.
func (b *Book) SetMid(mid float64) {
	b.Mid = mid
}

// Consume takes up to qty from the side a taker in direction side hits. Level
// i is executed at its price multiplied (buys) or divided (sells) by
// 1 + 0.001·(i+1). Consumed quantity is removed from the book.
func (b *Book) Consume(side domain.Side, qty float64) Fill {
	levels := b.levels(side)
	if len(*levels) == 0 || qty <= 0 {
		return Fill{}
	}

	initialPrice := (*levels)[0].Price
	remaining := qty
	var notional float64
	taken := make([]float64, 0, len(*levels))

	for i, l := range *levels {
		if remaining <= 0 {
			break
		}
		available := l.Size
		if b.Crisis {
			available *= crisisFactor
		}
		penalty := 1 + levelPenalty*float64(i+1)
		price := l.Price * penalty
		if side == domain.SideSell {
			price = l.Price / penalty
		}
		fill := math.Min(remaining, available)
		notional += fill * price
		remaining -= fill
		taken = append(taken, fill)
	}

	kept := (*levels)[:0]
	for i, l := range *levels {
		if i < len(taken) {
			l.Size -= taken[i]
			if l.Size <= dustQty {
				continue
			}
		}
		kept = append(kept, l)
	}
	*levels = kept

	filled := qty - remaining
	if filled <= 0 {
		return Fill{}
	}
	avg := notional / filled
	return Fill{
		Filled:   filled,
		AvgPrice: avg,
		Notional: notional,
		Slippage: math.Abs(avg-initialPrice) * filled,
	}
}

// Replenish moves each level a rate fraction of the way back toward the size
// it had at construction, with ±10% multiplicative jitter, keeping the
// result within [20%, 100%] of that size. Levels are matched to their
// original size by price, so exhausted levels removed by Consume do not shift
// the targets of the ones behind them. Levels with no recorded size are left
// alone.
func (b *Book) Replenish(rate float64, rng *rand.Rand) {
	replenishSide(b.Asks, b.initialAsks, rate, rng)
	replenishSide(b.Bids, b.initialBids, rate, rng)
}

func replenishSide(levels []domain.PriceLevel, initial map[float64]float64, rate float64, rng *rand.Rand) {
	for i := range levels {
		init, ok := initial[levels[i].Price]
		if !ok {
			continue
		}
		cur := levels[i].Size
		restored := (cur + (init-cur)*rate) * (jitterLow + (jitterHigh-jitterLow)*rng.Float64())
		levels[i].Size = math.Max(init*replenishFloor, math.Min(restored, init))
	}
}

func (b *Book) levels(side domain.Side) *[]domain.PriceLevel {
	if side == domain.SideBuy {
		return &b.Asks
	}
	return &b.Bids
}
