package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/google/uuid"

	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/pricing"
)

const (
	eventBaseMin = 0.3
	eventBaseMax = 0.7

	syntheticYieldEvery = 5
	replayYieldEvery    = 100
	replayProgressStep  = 10
)

// Progress is reported while a run advances.
type Progress = domain.RunProgress

// ProgressFunc receives progress updates on the run's goroutine.
type ProgressFunc func(context.Context, Progress)

// Engine drives one run over a RunContext.
type Engine struct {
	runID      string
	rc         *RunContext
	logger     *slog.Logger
	onProgress ProgressFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.onProgress = fn }
}

// NewEngine validates cfg and prepares a run.
func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{runID: uuid.NewString()}
	for _, o := range opts {
		o(e)
	}
	e.logger = logger.With(slog.String("component", "backtest"), slog.String("run_id", e.runID))

	rc, err := NewRunContext(cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.rc = rc
	return e, nil
}

// RunID returns the id the result will carry.
func (e *Engine) RunID() string { return e.runID }

// Run executes the configured run. On cancellation it stops at the next
// tick and returns the partial result together with ctx.Err().
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg := e.rc.cfg
	e.logger.InfoContext(ctx, "backtest started",
		slog.String("source", string(cfg.Source)),
		slog.String("execution_mode", string(cfg.ExecutionMode)),
		slog.Int64("seed", cfg.Seed),
		slog.Any("profiles", cfg.Profiles),
	)

	var err error
	switch cfg.Source {
	case domain.SourceReplay:
		err = e.runReplay(ctx)
	default:
		err = e.runSynthetic(ctx)
	}

	res := e.rc.result(e.runID, err == nil)
	e.emit(ctx, Progress{Done: 1, Total: 1, Pct: 100, Finished: true})

	if err != nil {
		e.logger.WarnContext(ctx, "backtest stopped early",
			slog.String("error", err.Error()),
			slog.Int("total_ticks", res.Stats.TotalTicks),
		)
		return res, err
	}
	e.logger.InfoContext(ctx, "backtest finished",
		slog.Int("total_ticks", res.Stats.TotalTicks),
		slog.Int("profitable_trades", res.Stats.ProfitableTrades),
		slog.Int("black_swan", res.Stats.BlackSwan),
		slog.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (e *Engine) runSynthetic(ctx context.Context) error {
	rc := e.rc
	ticks := rc.cfg.TicksPerEvent()

	for ev := 0; ev < rc.cfg.Events; ev++ {
		rc.source.Initialize(rc.uniform(eventBaseMin, eventBaseMax))
		rc.resetEvent()

		for t := 0; t < ticks; t++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := rc.tick(ctx, fmt.Sprintf("evt_%d_t%d", ev, t), t); err != nil {
				return err
			}
		}

		e.emit(ctx, Progress{
			Done:  ev + 1,
			Total: rc.cfg.Events,
			Pct:   float64(ev+1) / float64(rc.cfg.Events) * 100,
		})
		if ev%syntheticYieldEvery == 0 {
			runtime.Gosched()
		}
	}
	return nil
}

func (e *Engine) runReplay(ctx context.Context) error {
	rc := e.rc
	finite, ok := rc.source.(pricing.Finite)
	if !ok {
		return fmt.Errorf("backtest: replay: source %T is not finite: %w", rc.source, domain.ErrInvalidConfig)
	}

	rc.source.Initialize(0)
	rc.resetEvent()

	lastDecile := 0
	for t := 0; finite.HasMoreData(); t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rc.tick(ctx, fmt.Sprintf("replay_t%d", t), t); err != nil {
			return err
		}

		done, total, pct := finite.Progress()
		if decile := int(pct) / replayProgressStep; decile > lastDecile {
			lastDecile = decile
			e.logger.InfoContext(ctx, "replay progress",
				slog.Int("done", done),
				slog.Int("total", total),
				slog.Float64("pct", pct),
			)
			e.emit(ctx, Progress{Done: done, Total: total, Pct: pct})
		}
		if (t+1)%replayYieldEvery == 0 {
			runtime.Gosched()
		}
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, p Progress) {
	if e.onProgress == nil {
		return
	}
	p.RunID = e.runID
	p.Stats = e.rc.stats
	e.onProgress(ctx, p)
}

// Run is a convenience wrapper that builds an Engine and runs it.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) (*Result, error) {
	e, err := NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}
