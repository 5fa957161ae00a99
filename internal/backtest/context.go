package backtest

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/orderbook"
	"github.com/adjust481/PolySniper/internal/pricing"
)

// Random streams derived from the run seed. Risk rolls and price noise draw
// from separate streams so that adding a participant does not perturb the
// price path.
const (
	riskStream  = 1
	priceStream = 2
)

// RunContext owns all mutable state of one run. It is not safe for
// concurrent use; Sweep gives every seed its own context.
type RunContext struct {
	cfg      Config
	profiles []domain.ParticipantProfile
	source   pricing.Source
	logger   *slog.Logger

	rngRisk  *rand.Rand
	rngPrice *rand.Rand

	stats    domain.RunStatistics
	bookA    *orderbook.Book
	bookB    *orderbook.Book
	outcomes map[string][]domain.TradeOutcome
	history  []domain.PricePoint
	risk     *riskBook

	startedAt time.Time
}

// NewRunContext builds the per-run state for cfg. The price source is
// selected by cfg.Source.
func NewRunContext(cfg Config, logger *slog.Logger) (*RunContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	profiles, err := cfg.participants()
	if err != nil {
		return nil, err
	}

	seed := uint64(cfg.Seed)
	rc := &RunContext{
		cfg:       cfg,
		profiles:  profiles,
		logger:    logger,
		rngRisk:   rand.New(rand.NewPCG(seed, riskStream)),
		rngPrice:  rand.New(rand.NewPCG(seed, priceStream)),
		outcomes:  make(map[string][]domain.TradeOutcome, len(profiles)),
		risk:      newRiskBook(cfg.Risk),
		startedAt: time.Now().UTC(),
	}
	for _, p := range profiles {
		rc.outcomes[p.Name] = nil
	}

	switch cfg.Source {
	case domain.SourceReplay:
		src, err := pricing.NewReplaySource(cfg.ReplayRows, cfg.ReplayOffset)
		if err != nil {
			return nil, fmt.Errorf("backtest: replay source: %w", err)
		}
		rc.source = src
	default:
		rc.source = pricing.NewLatentProcess(rc.rngPrice)
	}
	return rc, nil
}

// Stats returns a copy of the current counters.
func (rc *RunContext) Stats() domain.RunStatistics {
	return rc.stats
}

// Source returns the price source driving the run.
func (rc *RunContext) Source() pricing.Source {
	return rc.source
}

// resetEvent drops both books and the per-event risk state.
func (rc *RunContext) resetEvent() {
	rc.bookA = nil
	rc.bookB = nil
	rc.risk.reset()
}

func (rc *RunContext) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*rc.rngRisk.Float64()
}

func (rc *RunContext) result(runID string, completed bool) *Result {
	res := &Result{
		RunID:         runID,
		Seed:          rc.cfg.Seed,
		Source:        rc.cfg.Source,
		ExecutionMode: rc.cfg.ExecutionMode,
		MinProfitRate: rc.cfg.MinProfitRate,
		Profiles:      append([]string(nil), rc.cfg.Profiles...),
		Outcomes:      rc.outcomes,
		PriceHistory:  rc.history,
		Stats:         rc.stats,
		Completed:     completed,
		StartedAt:     rc.startedAt,
		FinishedAt:    time.Now().UTC(),
	}
	res.pack()
	return res
}
