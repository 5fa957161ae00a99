package backtest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/pricing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func syntheticConfig(seed int64) Config {
	cfg := DefaultConfig()
	cfg.Seed = seed
	cfg.MinProfitRate = 0.003
	cfg.Events = 15
	cfg.EventsPerDay = 5
	cfg.DurationDays = 3
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown profile", func(c *Config) { c.Profiles = []string{"retail", "whale"} }, "whale"},
		{"duplicate profile", func(c *Config) { c.Profiles = []string{"pro", "pro"} }, "listed twice"},
		{"no events", func(c *Config) { c.Events = 0 }, "events must be > 0"},
		{"bad execution mode", func(c *Config) { c.ExecutionMode = "maybe" }, "execution mode"},
		{"replay without rows", func(c *Config) { c.Source = domain.SourceReplay }, "no rows"},
		{"negative cooldown", func(c *Config) { c.Risk.CooldownTicks = -1 }, "cooldown"},
		{"non-positive capital override", func(c *Config) { c.CapitalOverrides = map[string]float64{"pro": 0} }, "capital override"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestRun_SyntheticInvariants(t *testing.T) {
	res, err := Run(context.Background(), syntheticConfig(42), discardLogger())
	require.NoError(t, err)
	require.True(t, res.Completed)

	st := res.Stats
	assert.Equal(t, 225, st.TotalTicks+st.BlackSwan)
	assert.Len(t, res.PriceHistory, st.TotalTicks)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"retail", "semi_pro", "pro"}, res.Profiles)

	// Every tick past the opportunity filter records one outcome per profile.
	contested := len(res.Outcomes["retail"])
	assert.Len(t, res.Outcomes["semi_pro"], contested)
	assert.Len(t, res.Outcomes["pro"], contested)
	assert.Equal(t, st.TotalTicks, st.NoOpportunity+contested)

	var frontRun, legRisk, prechecked, profitable int
	for _, o := range res.AllOutcomes() {
		assert.GreaterOrEqual(t, o.Rank, 1)
		assert.LessOrEqual(t, o.Rank, 3)
		switch o.State {
		case domain.OutcomeFrontRun:
			frontRun++
		case domain.OutcomeLegRisk:
			legRisk++
		case domain.OutcomePrecheckRejected, domain.OutcomeSizeRejected:
			prechecked++
			assert.Zero(t, o.NetProfit)
		case domain.OutcomeSettled:
			assert.LessOrEqual(t, o.FillRate, 1.0+1e-9)
			if o.Success {
				profitable++
			}
		}
	}
	assert.Equal(t, st.FrontRun, frontRun)
	assert.Equal(t, st.LegRisk, legRisk)
	assert.Equal(t, st.PrecheckRejected, prechecked)
	assert.Equal(t, st.ProfitableTrades, profitable)
	assert.Zero(t, st.RiskRejected)

	for _, m := range res.OrderedMetrics() {
		assert.Equal(t, contested, m.Count)
	}
}

func TestRun_RanksFollowLatency(t *testing.T) {
	res, err := Run(context.Background(), syntheticConfig(7), discardLogger())
	require.NoError(t, err)

	byTick := make(map[int][]domain.TradeOutcome)
	for _, o := range res.AllOutcomes() {
		byTick[o.Tick] = append(byTick[o.Tick], o)
	}
	for _, field := range byTick {
		require.Len(t, field, 3)
		ranked := make([]domain.TradeOutcome, 4)
		for _, o := range field {
			ranked[o.Rank] = o
		}
		assert.LessOrEqual(t, ranked[1].LatencyMs, ranked[2].LatencyMs)
		assert.LessOrEqual(t, ranked[2].LatencyMs, ranked[3].LatencyMs)
	}
}

func TestRun_Deterministic(t *testing.T) {
	a, err := Run(context.Background(), syntheticConfig(99), discardLogger())
	require.NoError(t, err)
	b, err := Run(context.Background(), syntheticConfig(99), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, a.Stats, b.Stats)
	assert.Equal(t, a.Outcomes, b.Outcomes)
	assert.Equal(t, a.PriceHistory, b.PriceHistory)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRun_AtomicHasNoLegRisk(t *testing.T) {
	cfg := syntheticConfig(3)
	cfg.ExecutionMode = domain.ExecutionAtomic
	cfg.Events = 40

	res, err := Run(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.Zero(t, res.Stats.LegRisk)
	for _, o := range res.AllOutcomes() {
		assert.Equal(t, domain.ExecutionAtomic, o.ExecutionMode)
		assert.NotEqual(t, domain.OutcomeLegRisk, o.State)
	}
}

func TestRun_CancelledReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, syntheticConfig(42), discardLogger())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.False(t, res.Completed)
	assert.Zero(t, res.Stats.TotalTicks)
	assert.Len(t, res.Metrics, 3)
}

func TestRun_ProgressCallback(t *testing.T) {
	var updates []Progress
	e, err := NewEngine(syntheticConfig(5), discardLogger(),
		WithRunID("run-1"),
		WithProgress(func(_ context.Context, p Progress) { updates = append(updates, p) }),
	)
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)

	// One update per event plus the final one.
	require.Len(t, updates, 16)
	assert.Equal(t, 15, updates[14].Done)
	assert.True(t, updates[15].Finished)
	assert.Equal(t, res.Stats, updates[15].Stats)
	for _, u := range updates {
		assert.Equal(t, "run-1", u.RunID)
	}
}

func TestRun_Replay(t *testing.T) {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := make([]domain.PriceSnapshot, 60)
	for i := range rows {
		bid := 0.40 + 0.001*float64(i%7)
		rows[i] = domain.PriceSnapshot{
			Timestamp: start.Add(time.Duration(i) * 3 * time.Second),
			BestBid:   bid,
			BestAsk:   bid + 0.02,
		}
	}

	cfg := syntheticConfig(11)
	cfg.Source = domain.SourceReplay
	cfg.ReplayRows = rows
	cfg.ReplayOffset = 0.05

	res, err := Run(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	require.True(t, res.Completed)

	assert.Equal(t, len(rows), res.Stats.TotalTicks)
	require.Len(t, res.PriceHistory, len(rows))
	for i, p := range res.PriceHistory {
		require.NotNil(t, p.Timestamp)
		assert.Equal(t, rows[i].Timestamp, *p.Timestamp)
		assert.InDelta(t, rows[i].BestAsk, p.PriceA, 1e-12)
		assert.Equal(t, i+1, p.Tick)
	}
	for _, o := range res.AllOutcomes() {
		assert.True(t, strings.HasPrefix(o.EventID, "replay_t"))
	}
}

func TestRun_CooldownLimitsExecutions(t *testing.T) {
	cfg := syntheticConfig(21)
	cfg.Events = 30
	cfg.Risk = RiskLimits{CooldownTicks: 1000}

	res, err := Run(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	executed := make(map[string]int)
	var riskRejected int
	for _, o := range res.AllOutcomes() {
		switch o.State {
		case domain.OutcomeSettled, domain.OutcomeLegRisk:
			event := o.EventID[:strings.LastIndex(o.EventID, "_t")]
			executed[o.Profile+"/"+event]++
		case domain.OutcomeRiskRejected:
			riskRejected++
			assert.True(t, o.RiskRejected)
		}
	}
	for key, n := range executed {
		assert.Equal(t, 1, n, key)
	}
	assert.Equal(t, res.Stats.RiskRejected, riskRejected)
}

func TestRun_ProBeatsRetailAcrossSeeds(t *testing.T) {
	results, err := Sweep(context.Background(), syntheticConfig(0), SeedRange(100, 8), 4, discardLogger())
	require.NoError(t, err)
	require.Len(t, results, 8)

	var proNet, retailNet float64
	var proN, retailN int
	for _, r := range results {
		require.NotNil(t, r)
		proNet += r.Metrics["pro"].NetProfit
		proN += r.Metrics["pro"].Count
		retailNet += r.Metrics["retail"].NetProfit
		retailN += r.Metrics["retail"].Count
	}
	require.Positive(t, proN)
	require.Positive(t, retailN)
	assert.GreaterOrEqual(t, proNet/float64(proN), retailNet/float64(retailN))
}

func TestSweep_PropagatesConfigError(t *testing.T) {
	cfg := syntheticConfig(0)
	cfg.Events = 0
	_, err := Sweep(context.Background(), cfg, []int64{1, 2}, 2, discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestConfig_ZeroLagWeightKept(t *testing.T) {
	cfg := syntheticConfig(1)
	cfg.LagWeight = 0
	require.NoError(t, cfg.Validate())
	assert.Zero(t, cfg.withDefaults().LagWeight)

	assert.Equal(t, pricing.DefaultLagWeight, DefaultConfig().withDefaults().LagWeight)
}

func TestSweep_CancelKeepsFinishedRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	finished := 0
	stopMidRun := WithProgress(func(_ context.Context, p Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Finished {
			finished++
			return
		}
		if finished == 1 && p.Done >= 3 {
			cancel()
		}
	})

	results, err := Sweep(ctx, syntheticConfig(0), SeedRange(1, 3), 1, discardLogger(), stopMidRun)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 3)

	require.NotNil(t, results[0])
	assert.True(t, results[0].Completed)
	assert.Equal(t, int64(1), results[0].Seed)

	require.NotNil(t, results[1])
	assert.False(t, results[1].Completed)
	assert.Positive(t, results[1].Stats.TotalTicks)
	assert.Less(t, results[1].Stats.TotalTicks, results[0].Stats.TotalTicks)

	assert.Nil(t, results[2])
}

func TestRiskBook(t *testing.T) {
	r := newRiskBook(RiskLimits{MaxPositionUSD: 100, CooldownTicks: 2})

	qty, reason := r.check("pro", 0, 500, 0.5)
	assert.Empty(t, reason)
	assert.InDelta(t, 200, qty, 1e-9)

	r.record("pro", 0, 60)
	_, reason = r.check("pro", 2, 500, 0.5)
	assert.Contains(t, reason, "cooldown")

	qty, reason = r.check("pro", 3, 500, 0.5)
	assert.Empty(t, reason)
	assert.InDelta(t, 80, qty, 1e-9)

	r.record("pro", 3, 30)
	_, reason = r.check("pro", 10, 500, 0.5)
	assert.Contains(t, reason, "units")

	r.reset()
	qty, reason = r.check("pro", 0, 500, 0.5)
	assert.Empty(t, reason)
	assert.InDelta(t, 200, qty, 1e-9)
}
