package orderbook

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjust481/PolySniper/internal/domain"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func askBook(levels ...domain.PriceLevel) *Book {
	b := New(domain.VenueA, 0.5, t0)
	b.SetLevels(domain.SideBuy, levels)
	return b
}

func TestBuildAsks_Ladder(t *testing.T) {
	b := BuildAsks(domain.VenueA, 0.5, 1000, 0.002, t0)

	require.Len(t, b.Asks, LevelCount)
	assert.Empty(t, b.Bids)
	assert.InDelta(t, 0.501, b.Asks[0].Price, 1e-12)
	assert.InDelta(t, 0.505, b.Asks[4].Price, 1e-12)
	assert.InDelta(t, 1000, b.Asks[0].Size, 1e-9)
	assert.InDelta(t, 600, b.Asks[1].Size, 1e-9)
	assert.InDelta(t, 1000*0.6*0.6*0.6*0.6, b.Asks[4].Size, 1e-9)
}

func TestBuildBids_Ladder(t *testing.T) {
	b := BuildBids(domain.VenueB, 0.6, 2000, 0.003, t0)

	require.Len(t, b.Bids, LevelCount)
	best, ok := b.BestBid()
	require.True(t, ok)
	assert.InDelta(t, 0.6*0.997, best.Price, 1e-12)
	assert.Greater(t, b.Bids[0].Price, b.Bids[1].Price)

	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestConsume_SingleLevel(t *testing.T) {
	b := askBook(domain.PriceLevel{Price: 0.5, Size: 1000})

	f := b.Consume(domain.SideBuy, 100)

	assert.InDelta(t, 100, f.Filled, 1e-12)
	assert.InDelta(t, 0.5005, f.AvgPrice, 1e-12)
	assert.InDelta(t, 50.05, f.Notional, 1e-9)
	assert.InDelta(t, 0.05, f.Slippage, 1e-9)
	assert.InDelta(t, 900, b.Depth(domain.SideBuy), 1e-9)
}

func TestConsume_WalksLevels(t *testing.T) {
	b := askBook(
		domain.PriceLevel{Price: 0.50, Size: 100},
		domain.PriceLevel{Price: 0.51, Size: 100},
	)

	f := b.Consume(domain.SideBuy, 150)

	wantNotional := 100*0.50*1.001 + 50*0.51*1.002
	assert.InDelta(t, 150, f.Filled, 1e-12)
	assert.InDelta(t, wantNotional, f.Notional, 1e-9)
	assert.InDelta(t, wantNotional/150, f.AvgPrice, 1e-12)
	assert.InDelta(t, (wantNotional/150-0.50)*150, f.Slippage, 1e-9)

	require.Len(t, b.Asks, 1)
	assert.InDelta(t, 0.51, b.Asks[0].Price, 1e-12)
	assert.InDelta(t, 50, b.Asks[0].Size, 1e-9)
}

func TestConsume_SellDividesPenalty(t *testing.T) {
	b := New(domain.VenueB, 0.6, t0)
	b.SetLevels(domain.SideSell, []domain.PriceLevel{{Price: 0.6, Size: 500}})

	f := b.Consume(domain.SideSell, 100)

	assert.InDelta(t, 0.6/1.001, f.AvgPrice, 1e-12)
	assert.InDelta(t, (0.6-0.6/1.001)*100, f.Slippage, 1e-9)
}

func TestConsume_ExhaustsBook(t *testing.T) {
	b := askBook(domain.PriceLevel{Price: 0.5, Size: 40}, domain.PriceLevel{Price: 0.52, Size: 20})

	f := b.Consume(domain.SideBuy, 100)

	assert.InDelta(t, 60, f.Filled, 1e-12)
	assert.Empty(t, b.Asks)
	assert.Zero(t, b.Consume(domain.SideBuy, 10))
}

func TestConsume_RemovesDust(t *testing.T) {
	b := askBook(domain.PriceLevel{Price: 0.5, Size: 100.005}, domain.PriceLevel{Price: 0.51, Size: 10})

	b.Consume(domain.SideBuy, 100)

	require.Len(t, b.Asks, 1)
	assert.InDelta(t, 0.51, b.Asks[0].Price, 1e-12)
}

func TestConsume_GuardsNonPositive(t *testing.T) {
	b := askBook(domain.PriceLevel{Price: 0.5, Size: 100})

	assert.Zero(t, b.Consume(domain.SideBuy, 0))
	assert.Zero(t, b.Consume(domain.SideBuy, -5))
	assert.Zero(t, b.Consume(domain.SideSell, 5))
	assert.InDelta(t, 100, b.Depth(domain.SideBuy), 1e-12)
}

func TestConsume_LiquidityCrisis(t *testing.T) {
	b := askBook(domain.PriceLevel{Price: 0.5, Size: 1000})
	b.Crisis = true

	f := b.Consume(domain.SideBuy, 500)

	assert.InDelta(t, 200, f.Filled, 1e-9)
	assert.InDelta(t, 800, b.Depth(domain.SideBuy), 1e-9)
}

func TestConsume_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))

	for i := 0; i < 500; i++ {
		b := BuildAsks(domain.VenueA, 0.2+0.6*rng.Float64(), 100+rng.Float64()*5000, 0.002, t0)
		depth := b.Depth(domain.SideBuy)
		minPrice := b.Asks[0].Price * (1 + levelPenalty)
		maxPrice := b.Asks[len(b.Asks)-1].Price * (1 + levelPenalty*LevelCount)
		qty := rng.Float64() * depth * 1.5

		f := b.Consume(domain.SideBuy, qty)

		require.LessOrEqual(t, f.Filled, qty+1e-9)
		if depth >= qty {
			require.InDelta(t, qty, f.Filled, 1e-6)
		}
		if f.Filled > 0 {
			require.GreaterOrEqual(t, f.AvgPrice, minPrice-1e-12)
			require.LessOrEqual(t, f.AvgPrice, maxPrice+1e-12)
		}
	}
}

func TestReplenish_StaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))

	for _, rate := range []float64{0.01, 0.25, 0.5, 0.99, 1} {
		for i := 0; i < 100; i++ {
			b := BuildAsks(domain.VenueA, 0.5, 4000+rng.Float64()*6000, 0.002, t0)
			b.Consume(domain.SideBuy, rng.Float64()*b.Depth(domain.SideBuy))

			for round := 0; round < 5; round++ {
				b.Replenish(rate, rng)
				for j, l := range b.Asks {
					init, ok := b.initialAsks[l.Price]
					require.True(t, ok)
					require.LessOrEqual(t, l.Size, init+1e-9, "rate %v level %d", rate, j)
					require.GreaterOrEqual(t, l.Size, init*replenishFloor-1e-9, "rate %v level %d", rate, j)
				}
			}
		}
	}
}

func TestReplenish_RestoresTowardInitial(t *testing.T) {
	b := askBook(domain.PriceLevel{Price: 0.5, Size: 1000})
	b.Consume(domain.SideBuy, 900)
	require.InDelta(t, 100, b.Asks[0].Size, 1e-9)

	b.Replenish(0.5, rand.New(rand.NewPCG(1, 1)))

	// (100 + 900·0.5) · U(0.9, 1.1)
	assert.GreaterOrEqual(t, b.Asks[0].Size, 550*0.9-1e-9)
	assert.LessOrEqual(t, b.Asks[0].Size, 550*1.1+1e-9)
}

func TestReplenish_AfterExhaustedLevelKeepsOwnTarget(t *testing.T) {
	b := BuildBids(domain.VenueB, 0.5, 1000, 0.003, t0)
	original := make(map[float64]float64, len(b.Bids))
	for _, l := range b.Bids {
		original[l.Price] = l.Size
	}

	b.Consume(domain.SideSell, 1000)
	require.Len(t, b.Bids, LevelCount-1)

	rng := rand.New(rand.NewPCG(9, 9))
	for round := 0; round < 10; round++ {
		b.Replenish(1.0, rng)
		for _, l := range b.Bids {
			want, ok := original[l.Price]
			require.True(t, ok)
			require.LessOrEqual(t, l.Size, want+1e-9, "level @%.4f", l.Price)
			require.GreaterOrEqual(t, l.Size, want*replenishFloor-1e-9, "level @%.4f", l.Price)
		}
	}
}

func TestReplenish_NoInitialLevels(t *testing.T) {
	b := New(domain.VenueA, 0.5, t0)
	b.Asks = []domain.PriceLevel{{Price: 0.5, Size: 10}}

	b.Replenish(1, rand.New(rand.NewPCG(1, 1)))

	assert.Equal(t, 10.0, b.Asks[0].Size)
}
