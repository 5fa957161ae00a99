package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adjust481/PolySniper/internal/backtest"
	"github.com/adjust481/PolySniper/internal/config"
	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/platform/polygon"
	"github.com/adjust481/PolySniper/internal/reporting"
	"github.com/adjust481/PolySniper/internal/server"
	"github.com/adjust481/PolySniper/internal/server/handler"
	"github.com/adjust481/PolySniper/internal/server/ws"
	"github.com/adjust481/PolySniper/internal/service"
)

const shutdownTimeout = 10 * time.Second

// BacktestConfig converts the configuration section into an engine config.
func BacktestConfig(b config.BacktestConfig) (backtest.Config, error) {
	mode, err := domain.ParseExecutionMode(b.ExecutionMode)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("app: %w", err)
	}
	cfg := backtest.Config{
		Profiles:      append([]string(nil), b.Profiles...),
		ExecutionMode: mode,
		MinProfitRate: b.MinProfitRate,
		Seed:          b.Seed,
		Source:        domain.SourceKind(strings.ToLower(b.Source)),
		ReplayOffset:  b.ReplayOffset,
		LagWeight:     b.LagWeight,
		Events:        b.Events,
		EventsPerDay:  b.EventsPerDay,
		DurationDays:  b.DurationDays,
		Risk: backtest.RiskLimits{
			MaxPositionUSD: b.Risk.MaxPositionUSD,
			CooldownTicks:  b.Risk.CooldownTicks,
		},
	}
	if len(b.CapitalOverrides) > 0 {
		cfg.CapitalOverrides = make(map[string]float64, len(b.CapitalOverrides))
		for name, capital := range b.CapitalOverrides {
			cfg.CapitalOverrides[name] = capital
		}
	}
	return cfg, nil
}

func (a *App) newRunService(deps *Dependencies) *service.RunService {
	return service.NewRunService(deps.RunDeps(), service.Options{
		OutputDir:      a.cfg.Output.Dir,
		Formats:        a.cfg.Output.Formats,
		CapitalProfile: a.cfg.Wallet.CapitalProfile,
		MaxConcurrent:  a.cfg.Server.MaxConcurrentRuns,
	}, a.logger)
}

// BacktestMode runs one simulation with the configured seed and source.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	cfg, err := BacktestConfig(a.cfg.Backtest)
	if err != nil {
		return err
	}
	replay := ""
	if cfg.Source == domain.SourceReplay {
		replay = a.cfg.Backtest.ReplayPath
	}
	return a.runOnce(ctx, deps, cfg, replay)
}

// ReplayMode runs one simulation over the recorded quote log.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	cfg, err := BacktestConfig(a.cfg.Backtest)
	if err != nil {
		return err
	}
	cfg.Source = domain.SourceReplay
	return a.runOnce(ctx, deps, cfg, a.cfg.Backtest.ReplayPath)
}

func (a *App) runOnce(ctx context.Context, deps *Dependencies, cfg backtest.Config, replay string) error {
	svc := a.newRunService(deps)
	report, err := svc.Execute(ctx, cfg, replay)
	if report != nil {
		a.logReport(ctx, report)
	}
	if err != nil {
		return fmt.Errorf("app: run: %w", err)
	}
	return nil
}

func (a *App) logReport(ctx context.Context, report *service.RunReport) {
	res := report.Result
	a.logger.InfoContext(ctx, "run finished",
		slog.String("run_id", res.RunID),
		slog.Int64("seed", res.Seed),
		slog.Bool("completed", res.Completed),
		slog.Int("ticks", res.Stats.TotalTicks),
		slog.Int("profitable", res.Stats.ProfitableTrades),
		slog.Int("black_swan", res.Stats.BlackSwan),
		slog.String("verdict", string(reporting.OrderingVerdict(res.Metrics))),
		slog.Any("files", report.Files),
		slog.Any("archive_keys", report.ArchiveKeys),
	)
	for _, m := range res.OrderedMetrics() {
		a.logger.InfoContext(ctx, "profile result",
			slog.String("profile", m.Profile),
			slog.Int("count", m.Count),
			slog.Int("successes", m.Successes),
			slog.Float64("success_rate_pct", m.SuccessRatePct),
			slog.Float64("net_profit", m.NetProfit),
			slog.Int("frontrun", m.FrontRunCount),
			slog.Int("leg_risk", m.LegRiskCount),
		)
	}
}

// SweepMode runs sweep_seeds consecutive seeds starting at the configured
// seed and writes the combined summary.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	cfg, err := BacktestConfig(a.cfg.Backtest)
	if err != nil {
		return err
	}
	replay := ""
	if cfg.Source == domain.SourceReplay {
		replay = a.cfg.Backtest.ReplayPath
	}

	seeds := backtest.SeedRange(cfg.Seed, a.cfg.Backtest.SweepSeeds)
	svc := a.newRunService(deps)
	report, err := svc.Sweep(ctx, cfg, replay, seeds, a.cfg.Backtest.SweepConcurrency)
	if report == nil {
		return fmt.Errorf("app: sweep: %w", err)
	}

	a.logger.InfoContext(ctx, "sweep finished",
		slog.Int("seeds", len(report.Seeds)),
		slog.Int("requested", len(seeds)),
		slog.Any("files", report.Files),
	)
	for _, row := range report.Summary {
		a.logger.InfoContext(ctx, "profile summary",
			slog.String("profile", row.Profile),
			slog.Int("runs", row.Runs),
			slog.Float64("net_profit", row.NetProfit),
			slog.Float64("mean_net_profit", row.MeanNetProfit),
			slog.Float64("min_run_net", row.MinRunNet),
			slog.Float64("max_run_net", row.MaxRunNet),
		)
	}
	if err != nil {
		return fmt.Errorf("app: sweep: %w", err)
	}
	return nil
}

// ServeMode exposes the run API and the WebSocket feed until ctx is
// cancelled, then cancels in-flight runs and waits for them to persist.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	base, err := BacktestConfig(a.cfg.Backtest)
	if err != nil {
		return err
	}

	startedAt := time.Now().UTC()
	svc := a.newRunService(deps)
	defer func() {
		svc.Shutdown()
		svc.Wait()
	}()

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: startedAt})
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		a.logger.WarnContext(ctx, "redis disabled, websocket feed unavailable")
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RunRateLimit: a.cfg.Server.RunRateLimit,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, startedAt, svc),
		Runs:   handler.NewRunHandler(svc, base, a.cfg.Backtest.ReplayPath, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// WalletMode logs one balance snapshot of the configured wallet.
func (a *App) WalletMode(ctx context.Context, deps *Dependencies) error {
	if deps.Wallet == nil {
		return fmt.Errorf("app: wallet mode: %w", domain.ErrInvalidConfig)
	}
	snap, err := deps.Wallet.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("app: wallet snapshot: %w", err)
	}
	a.logger.InfoContext(ctx, "wallet snapshot",
		slog.String("address", polygon.ShortAddress(snap.Address)),
		slog.Int64("chain_id", snap.ChainID),
		slog.Uint64("block", snap.BlockNumber),
		slog.Float64("native", snap.Native),
		slog.Float64("usdc", snap.USDC),
		slog.Time("fetched_at", snap.FetchedAt),
	)
	return nil
}
