package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adjust481/PolySniper/internal/backtest"
	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/metrics"
	"github.com/adjust481/PolySniper/internal/notify"
	"github.com/adjust481/PolySniper/internal/reporting"
)

const sweepLockTTL = time.Hour

// Sweep runs base once per seed, persists and publishes every run, and
// writes the cross-seed summary. With a lock manager configured, only one
// worker may sweep a given seed range at a time. An interrupted sweep still
// reports the runs it reached, including the partial ones, and returns the
// report along with the context error.
func (s *RunService) Sweep(ctx context.Context, base backtest.Config, replayPath string, seeds []int64, concurrency int) (*SweepReport, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("service: sweep needs at least one seed: %w", domain.ErrInvalidConfig)
	}

	cfg, _, err := s.Prepare(ctx, base, replayPath)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("sweep:%d-%d", seeds[0], seeds[len(seeds)-1])
	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.Acquire(ctx, key, sweepLockTTL)
		if err != nil {
			return nil, fmt.Errorf("service: sweep %s: %w", key, err)
		}
		defer unlock()
	}

	started := time.Now()
	s.logger.InfoContext(ctx, "sweep started",
		slog.Int("seeds", len(seeds)),
		slog.Int("concurrency", concurrency),
	)

	all, runErr := backtest.Sweep(ctx, cfg, seeds, concurrency, s.logger, backtest.WithProgress(s.onProgress))
	stopped := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	if runErr != nil && !stopped {
		s.notifyFailed(ctx, key, runErr)
		return nil, runErr
	}

	// Report on whatever ran, even after an interrupt.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	report := &SweepReport{}
	runs := make([][]domain.ProfileMetrics, 0, len(all))
	var postErr error
	for i, res := range all {
		if res == nil {
			continue
		}
		report.Seeds = append(report.Seeds, seeds[i])
		report.Results = append(report.Results, res)
		runs = append(runs, res.OrderedMetrics())
		if err := s.persist(pctx, res); err != nil {
			postErr = errors.Join(postErr, err)
		}
		s.publishSummary(pctx, res.Record())
	}
	report.Summary = metrics.Combine(runs)
	if stopped {
		s.logger.WarnContext(pctx, "sweep stopped early",
			slog.Int("runs", len(report.Results)),
			slog.Int("seeds", len(seeds)),
			slog.String("error", runErr.Error()),
		)
	}

	artifacts := reporting.RenderSweep(report.Seeds, report.Summary, s.opts.Formats)
	if s.opts.OutputDir != "" && len(artifacts) > 0 {
		files, err := reporting.WriteArtifacts(s.opts.OutputDir, artifacts)
		report.Files = files
		if err != nil {
			postErr = errors.Join(postErr, err)
		}
	}
	if s.deps.Archiver != nil && len(artifacts) > 0 {
		if _, err := s.deps.Archiver.Archive(pctx, key, started, artifacts); err != nil {
			postErr = errors.Join(postErr, fmt.Errorf("service: archive sweep: %w", err))
		}
	}

	title := fmt.Sprintf("Sweep of %d seeds completed", len(report.Results))
	if stopped {
		title = fmt.Sprintf("Sweep stopped after %d of %d seeds", len(report.Results), len(seeds))
	}
	if err := s.deps.Notifier.Notify(pctx, notify.EventSweepDone, title, sweepMessage(report.Summary)); err != nil {
		s.logger.WarnContext(pctx, "sweep notification failed", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(pctx, "sweep finished",
		slog.Int("runs", len(report.Results)),
		slog.Duration("elapsed", time.Since(started)),
	)
	if runErr != nil {
		return report, errors.Join(runErr, postErr)
	}
	return report, postErr
}

func sweepMessage(rows []metrics.SeedSummary) string {
	var msg string
	for _, r := range rows {
		msg += fmt.Sprintf("%s: net $%.2f over %d runs, mean $%.4f per trade\n", r.Profile, r.NetProfit, r.Runs, r.MeanNetProfit)
	}
	return msg
}
