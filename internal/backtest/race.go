package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/fees"
	"github.com/adjust481/PolySniper/internal/orderbook"
	"github.com/adjust481/PolySniper/internal/pricing"
	"github.com/adjust481/PolySniper/internal/sizing"
)

// Market and book-building parameters.
const (
	blackSwanProb       = 0.001
	liquidityCrisisProb = 0.005

	bookALiquidityMin = 4000.0
	bookALiquidityMax = 10000.0
	bookAStep         = 0.002
	bookBLiquidityMin = 2000.0
	bookBLiquidityMax = 5000.0
	bookBStep         = 0.003

	replenishEvery = 3
	replenishRate  = 0.25

	latencyJitterLow  = 0.8
	latencyJitterHigh = 1.2

	minExpectedProfit = 3.0
	minTradeQty       = 50.0
	legRiskLossShare  = 0.2
	opportunityShare  = 0.5
)

// participant is the per-tick state of one profile in the race.
type participant struct {
	profile   domain.ParticipantProfile
	latencyMs float64
	rank      int
}

// tick resolves one time slice. tickInEvent is zero on the first tick of an
// event, which forces the books to be rebuilt.
func (rc *RunContext) tick(ctx context.Context, eventID string, tickInEvent int) error {
	if rc.rngRisk.Float64() < blackSwanProb {
		rc.stats.BlackSwan++
		rc.logger.DebugContext(ctx, "black swan", slog.String("event_id", eventID))
		return nil
	}
	rc.stats.TotalTicks++

	if _, err := rc.source.Step(); err != nil {
		return fmt.Errorf("backtest: tick: %w", err)
	}
	priceA, err := rc.source.QuoteA()
	if err != nil {
		return fmt.Errorf("backtest: tick: %w", err)
	}
	priceB, err := rc.source.QuoteB(rc.cfg.LagWeight)
	if err != nil {
		return fmt.Errorf("backtest: tick: %w", err)
	}

	ts, hasTS := rc.timestamp()
	point := domain.PricePoint{
		Tick:   rc.stats.TotalTicks,
		PriceA: priceA,
		PriceB: priceB,
		Spread: priceB - priceA,
	}
	if hasTS {
		at := ts
		point.Timestamp = &at
	}
	rc.history = append(rc.history, point)

	if rc.bookA == nil || tickInEvent == 0 {
		if !hasTS {
			ts = rc.startedAt
		}
		rc.buildBooks(priceA, priceB, ts)
	} else {
		if tickInEvent%replenishEvery == 0 {
			rc.bookA.Replenish(replenishRate, rc.rngRisk)
			rc.bookB.Replenish(replenishRate, rc.rngRisk)
		}
		rc.bookA.SetMid(priceA)
		rc.bookB.SetMid(priceB)
	}

	ask, okA := rc.bookA.BestAsk()
	bid, okB := rc.bookB.BestBid()
	if !okA || !okB {
		rc.stats.NoOpportunity++
		return nil
	}
	gross := bid.Price - ask.Price
	if gross < rc.cfg.MinProfitRate*opportunityShare {
		rc.stats.NoOpportunity++
		return nil
	}

	for _, p := range rc.rankParticipants() {
		rc.resolve(ctx, p, eventID, tickInEvent, gross, priceA)
	}
	return nil
}

func (rc *RunContext) timestamp() (time.Time, bool) {
	if ts, ok := rc.source.(pricing.Timestamped); ok {
		return ts.CurrentTimestamp()
	}
	return time.Time{}, false
}

func (rc *RunContext) buildBooks(priceA, priceB float64, ts time.Time) {
	rc.bookA = orderbook.BuildAsks(domain.VenueA, priceA,
		rc.uniform(bookALiquidityMin, bookALiquidityMax), bookAStep, ts)
	rc.bookB = orderbook.BuildBids(domain.VenueB, priceB,
		rc.uniform(bookBLiquidityMin, bookBLiquidityMax), bookBStep, ts)

	for _, b := range []*orderbook.Book{rc.bookA, rc.bookB} {
		if rc.rngRisk.Float64() < liquidityCrisisProb {
			b.Crisis = true
			rc.stats.LiquidityCrisis++
		}
	}
}

// rankParticipants jitters each profile's latency and orders the field
// fastest first. Equal latencies keep configuration order.
func (rc *RunContext) rankParticipants() []participant {
	field := make([]participant, len(rc.profiles))
	for i, prof := range rc.profiles {
		field[i] = participant{
			profile:   prof,
			latencyMs: prof.TotalLatencyMs() * rc.uniform(latencyJitterLow, latencyJitterHigh),
		}
	}
	sort.SliceStable(field, func(i, j int) bool {
		return field[i].latencyMs < field[j].latencyMs
	})
	for i := range field {
		field[i].rank = i + 1
	}
	return field
}

// resolve runs one participant through precheck, sizing, risk limits, the
// risk rolls, execution and settlement. Every path appends exactly one
// outcome.
func (rc *RunContext) resolve(ctx context.Context, p participant, eventID string, tickInEvent int, gross, midA float64) {
	prof := p.profile
	params := prof.Strategy.Params()
	estGas := fees.EstimatedGas(prof.Strategy)
	feeRate := fees.TotalFeeRate()

	out := domain.TradeOutcome{
		EventID:       eventID,
		Tick:          rc.stats.TotalTicks,
		Profile:       prof.Name,
		ExecutionMode: rc.cfg.ExecutionMode,
		GrossSpread:   gross,
		LatencyMs:     p.latencyMs,
		Rank:          p.rank,
	}

	if ok, reason := sizing.Precheck(gross, feeRate, estGas, prof.CapitalUSD); !ok {
		out.State = domain.OutcomePrecheckRejected
		out.PrecheckRejected = true
		out.Reason = reason
		rc.stats.PrecheckRejected++
		rc.record(ctx, out)
		return
	}

	depth := math.Min(rc.bookA.Depth(domain.SideBuy), rc.bookB.Depth(domain.SideSell))
	qty, expected := sizing.OptimalAmount(gross, feeRate, depth, prof.CapitalUSD, estGas, midA)
	if expected < minExpectedProfit || qty < minTradeQty {
		out.State = domain.OutcomeSizeRejected
		out.PrecheckRejected = true
		out.Reason = fmt.Sprintf("qty %.1f expected %.2f", qty, expected)
		rc.stats.PrecheckRejected++
		rc.record(ctx, out)
		return
	}

	if rc.cfg.Risk.Enabled() {
		ask, _ := rc.bookA.BestAsk()
		allowed, reason := rc.risk.check(prof.Name, tickInEvent, qty, ask.Price)
		if reason != "" {
			out.State = domain.OutcomeRiskRejected
			out.RiskRejected = true
			out.Reason = reason
			rc.stats.RiskRejected++
			rc.record(ctx, out)
			return
		}
		qty = allowed
	}

	if rc.rngRisk.Float64() < params.FrontRunProb {
		out.State = domain.OutcomeFrontRun
		out.FrontRun = true
		out.NetProfit = -estGas
		out.GasCost = estGas
		rc.stats.FrontRun++
		rc.record(ctx, out)
		return
	}

	fillA := rc.bookA.Consume(domain.SideBuy, qty)
	fillB := rc.bookB.Consume(domain.SideSell, qty)
	rc.risk.record(prof.Name, tickInEvent, fillA.Notional)

	if rc.cfg.ExecutionMode == domain.ExecutionNonAtomic && rc.rngRisk.Float64() < params.LegRiskProb {
		out.State = domain.OutcomeLegRisk
		out.LegRisk = true
		out.UnitsFilled = fillA.Filled
		out.PriceA = fillA.AvgPrice
		out.NetProfit = -(fillA.Notional*legRiskLossShare + estGas)
		out.GasCost = estGas
		rc.stats.LegRisk++
		rc.record(ctx, out)
		return
	}

	cost := fees.Calculate(fillA.Notional, fillB.Notional, prof.Strategy, rc.rngRisk)
	filled := math.Min(fillA.Filled, fillB.Filled)
	slippage := fillA.Slippage + fillB.Slippage

	out.State = domain.OutcomeSettled
	out.UnitsFilled = filled
	if qty > 0 {
		out.FillRate = filled / qty
	}
	out.PriceA = fillA.AvgPrice
	out.PriceB = fillB.AvgPrice
	out.GasCost = cost.Gas
	out.SlippageCost = slippage
	out.TotalFees = cost.Total
	out.NetProfit = (fillB.Notional - fillA.Notional) - cost.Total - slippage
	out.Success = out.NetProfit > 0
	if out.Success {
		rc.stats.ProfitableTrades++
	}
	rc.record(ctx, out)
}

func (rc *RunContext) record(ctx context.Context, out domain.TradeOutcome) {
	rc.outcomes[out.Profile] = append(rc.outcomes[out.Profile], out)
	rc.logger.DebugContext(ctx, "outcome",
		slog.String("event_id", out.EventID),
		slog.String("profile", out.Profile),
		slog.String("state", string(out.State)),
		slog.Int("rank", out.Rank),
		slog.Float64("net_profit", out.NetProfit),
	)
}
