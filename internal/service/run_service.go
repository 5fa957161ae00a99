// Package service orchestrates simulation runs: it prepares their inputs,
// drives the backtest engine and fans the results out to the configured
// stores, bus, archive and notifiers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adjust481/PolySniper/internal/backtest"
	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/metrics"
	"github.com/adjust481/PolySniper/internal/notify"
	"github.com/adjust481/PolySniper/internal/pricing"
	"github.com/adjust481/PolySniper/internal/reporting"
)

const (
	persistTimeout = 30 * time.Second
	maxTracked     = 256
)

// Archiver uploads rendered run reports.
type Archiver interface {
	Archive(ctx context.Context, runID string, startedAt time.Time, artifacts []domain.Artifact) ([]string, error)
}

// ReplayOpener opens remote quote logs named by s3:// URIs.
type ReplayOpener interface {
	OpenURI(ctx context.Context, uri string) (io.ReadCloser, error)
}

// CapitalSource reports the balance used to override a profile's capital.
type CapitalSource interface {
	USDCBalance(ctx context.Context) (float64, error)
}

// Deps are the optional collaborators of a RunService. Nil members are
// skipped.
type Deps struct {
	Runs     domain.RunStore
	Prices   domain.PriceHistoryStore
	Bus      domain.SignalBus
	Progress domain.ProgressCache
	Locks    domain.LockManager
	Archiver Archiver
	Replays  ReplayOpener
	Wallet   CapitalSource
	Notifier *notify.Notifier
}

// Options tune how runs are reported.
type Options struct {
	// OutputDir receives the report files. Empty disables local output.
	OutputDir string
	Formats   []string
	// CapitalProfile takes its capital from Deps.Wallet.
	CapitalProfile string
	// MaxConcurrent bounds the background runs started with Start. Zero
	// means unbounded.
	MaxConcurrent int
}

// RunState is the lifecycle stage of a tracked run.
type RunState string

const (
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateStopped   RunState = "stopped"
	StateFailed    RunState = "failed"
)

// RunStatus describes a run known to this service or its store.
type RunStatus struct {
	RunID     string             `json:"run_id"`
	State     RunState           `json:"state"`
	Progress  domain.RunProgress `json:"progress"`
	Error     string             `json:"error,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	Record    *domain.RunRecord  `json:"record,omitempty"`
}

// RunReport is everything produced by one finished run.
type RunReport struct {
	Result      *backtest.Result
	Replay      *pricing.ReplaySummary
	Files       []string
	ArchiveKeys []string
}

// SweepReport is the outcome of a multi-seed sweep.
type SweepReport struct {
	Seeds   []int64
	Results []*backtest.Result
	Summary []metrics.SeedSummary
	Files   []string
}

type tracked struct {
	status RunStatus
	result *backtest.Result
	cancel context.CancelFunc
}

// RunService runs simulations and publishes their results.
type RunService struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	runs   map[string]*tracked
	order  []string
	active int
	wg     sync.WaitGroup
}

// NewRunService creates a RunService.
func NewRunService(deps Deps, opts Options, logger *slog.Logger) *RunService {
	return &RunService{
		deps:   deps,
		opts:   opts,
		logger: logger.With(slog.String("component", "run_service")),
		runs:   make(map[string]*tracked),
	}
}

// Prepare resolves the inputs of cfg: it loads the replay log from a local
// path or s3:// URI and applies the wallet capital override.
func (s *RunService) Prepare(ctx context.Context, cfg backtest.Config, replayPath string) (backtest.Config, *pricing.ReplaySummary, error) {
	var summary *pricing.ReplaySummary

	if cfg.Source == domain.SourceReplay {
		var (
			src *pricing.ReplaySource
			err error
		)
		switch {
		case len(cfg.ReplayRows) > 0:
			src, err = pricing.NewReplaySource(cfg.ReplayRows, cfg.ReplayOffset)
		case replayPath == "":
			err = fmt.Errorf("service: replay source needs a replay path: %w", domain.ErrInvalidConfig)
		default:
			src, err = s.loadReplay(ctx, replayPath, cfg.ReplayOffset)
		}
		if err != nil {
			return cfg, nil, err
		}
		cfg.ReplayRows = src.Rows()
		sum := src.Summary()
		summary = &sum
	}

	if s.opts.CapitalProfile != "" && s.deps.Wallet != nil {
		balance, err := s.deps.Wallet.USDCBalance(ctx)
		if err != nil {
			return cfg, nil, fmt.Errorf("service: wallet capital: %w", err)
		}
		if balance > 0 {
			cfg.CapitalOverrides = maps.Clone(cfg.CapitalOverrides)
			if cfg.CapitalOverrides == nil {
				cfg.CapitalOverrides = make(map[string]float64, 1)
			}
			cfg.CapitalOverrides[s.opts.CapitalProfile] = balance
			s.logger.InfoContext(ctx, "capital taken from wallet",
				slog.String("profile", s.opts.CapitalProfile),
				slog.Float64("usdc", balance),
			)
		} else {
			s.logger.WarnContext(ctx, "wallet holds no usdc, keeping profile capital",
				slog.String("profile", s.opts.CapitalProfile),
			)
		}
	}

	return cfg, summary, nil
}

func (s *RunService) loadReplay(ctx context.Context, path string, offset float64) (*pricing.ReplaySource, error) {
	if !strings.HasPrefix(path, "s3://") {
		return pricing.LoadReplayFile(path, offset)
	}
	if s.deps.Replays == nil {
		return nil, fmt.Errorf("service: replay %s needs s3 enabled: %w", path, domain.ErrInvalidConfig)
	}
	rc, err := s.deps.Replays.OpenURI(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("service: open replay: %w", err)
	}
	defer rc.Close()
	return pricing.LoadReplay(rc, offset)
}

// Execute runs cfg to completion on the caller's goroutine. Reports go to
// OutputDir itself. A cancelled run still returns its partial report along
// with the context error.
func (s *RunService) Execute(ctx context.Context, cfg backtest.Config, replayPath string) (*RunReport, error) {
	engine, summary, err := s.build(ctx, uuid.NewString(), cfg, replayPath)
	if err != nil {
		return nil, err
	}
	s.track(engine.RunID(), nil)
	return s.runEngine(ctx, engine, summary, s.opts.OutputDir)
}

// Start validates cfg and runs it in the background. Reports go to
// OutputDir/<run id>. The run outlives ctx and stops on Cancel or Shutdown.
func (s *RunService) Start(ctx context.Context, cfg backtest.Config, replayPath string) (string, error) {
	s.mu.Lock()
	if s.opts.MaxConcurrent > 0 && s.active >= s.opts.MaxConcurrent {
		s.mu.Unlock()
		return "", fmt.Errorf("service: start run: %w", domain.ErrRunLimit)
	}
	s.active++
	s.mu.Unlock()

	engine, summary, err := s.build(ctx, uuid.NewString(), cfg, replayPath)
	if err != nil {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.track(engine.RunID(), cancel)

	dir := ""
	if s.opts.OutputDir != "" {
		dir = filepath.Join(s.opts.OutputDir, engine.RunID())
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() {
			s.mu.Lock()
			s.active--
			s.mu.Unlock()
		}()
		if _, err := s.runEngine(runCtx, engine, summary, dir); err != nil {
			s.logger.WarnContext(runCtx, "background run ended with error",
				slog.String("run_id", engine.RunID()),
				slog.String("error", err.Error()),
			)
		}
	}()

	return engine.RunID(), nil
}

func (s *RunService) build(ctx context.Context, runID string, cfg backtest.Config, replayPath string) (*backtest.Engine, *pricing.ReplaySummary, error) {
	cfg, summary, err := s.Prepare(ctx, cfg, replayPath)
	if err != nil {
		s.notifyFailed(ctx, runID, err)
		return nil, nil, err
	}
	engine, err := backtest.NewEngine(cfg, s.logger,
		backtest.WithRunID(runID),
		backtest.WithProgress(s.onProgress),
	)
	if err != nil {
		s.notifyFailed(ctx, runID, err)
		return nil, nil, err
	}
	return engine, summary, nil
}

func (s *RunService) runEngine(ctx context.Context, engine *backtest.Engine, summary *pricing.ReplaySummary, dir string) (*RunReport, error) {
	res, runErr := engine.Run(ctx)
	report := &RunReport{Result: res, Replay: summary}

	// Persist partial results even when ctx is already cancelled.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	rec := res.Record()
	postErr := s.persist(pctx, res)

	artifacts, err := reporting.RenderRun(res, summary, s.opts.Formats)
	if err != nil {
		postErr = errors.Join(postErr, err)
	}
	if dir != "" && len(artifacts) > 0 {
		files, err := reporting.WriteArtifacts(dir, artifacts)
		report.Files = files
		if err != nil {
			postErr = errors.Join(postErr, err)
		}
	}
	if s.deps.Archiver != nil && len(artifacts) > 0 {
		keys, err := s.deps.Archiver.Archive(pctx, res.RunID, res.StartedAt, artifacts)
		report.ArchiveKeys = keys
		if err != nil {
			postErr = errors.Join(postErr, fmt.Errorf("service: archive: %w", err))
		}
	}

	s.publishSummary(pctx, rec)
	s.finish(res, runErr)

	title, msg := notify.RunCompleted(rec)
	if err := s.deps.Notifier.Notify(pctx, notify.EventRunCompleted, title, msg); err != nil {
		s.logger.WarnContext(pctx, "run notification failed", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return report, runErr
	}
	return report, postErr
}

func (s *RunService) persist(ctx context.Context, res *backtest.Result) error {
	var errs []error
	if s.deps.Runs != nil {
		if err := s.deps.Runs.SaveRun(ctx, res.Record()); err != nil {
			errs = append(errs, fmt.Errorf("service: save run: %w", err))
		} else if err := s.deps.Runs.SaveOutcomes(ctx, res.RunID, res.AllOutcomes()); err != nil {
			errs = append(errs, fmt.Errorf("service: save outcomes: %w", err))
		}
	}
	if s.deps.Prices != nil && len(res.PriceHistory) > 0 {
		if err := s.deps.Prices.InsertBatch(ctx, res.RunID, res.PriceHistory); err != nil {
			errs = append(errs, fmt.Errorf("service: save price history: %w", err))
		}
	}
	return errors.Join(errs...)
}

// envelope is the message shape published on the bus and relayed to
// WebSocket clients.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (s *RunService) onProgress(ctx context.Context, p backtest.Progress) {
	s.mu.Lock()
	if t, ok := s.runs[p.RunID]; ok {
		t.status.Progress = p
	}
	s.mu.Unlock()

	if s.deps.Progress != nil {
		if err := s.deps.Progress.SetProgress(ctx, p); err != nil {
			s.logger.WarnContext(ctx, "cache progress failed",
				slog.String("run_id", p.RunID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.deps.Bus != nil {
		data, _ := json.Marshal(envelope{Type: "run_progress", Payload: p})
		if err := s.deps.Bus.Publish(ctx, domain.ChannelRunPrefix+p.RunID, data); err != nil {
			s.logger.WarnContext(ctx, "publish progress failed",
				slog.String("run_id", p.RunID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *RunService) publishSummary(ctx context.Context, rec domain.RunRecord) {
	if s.deps.Bus == nil {
		return
	}
	data, err := json.Marshal(envelope{Type: "run_summary", Payload: rec})
	if err != nil {
		return
	}
	if err := s.deps.Bus.Publish(ctx, domain.ChannelRuns, data); err != nil {
		s.logger.WarnContext(ctx, "publish summary failed", slog.String("error", err.Error()))
	}
	if err := s.deps.Bus.StreamAppend(ctx, domain.StreamRunSummaries, data); err != nil {
		s.logger.WarnContext(ctx, "append summary failed", slog.String("error", err.Error()))
	}
}

func (s *RunService) notifyFailed(ctx context.Context, runID string, cause error) {
	title, msg := notify.RunFailed(runID, cause)
	if err := s.deps.Notifier.Notify(ctx, notify.EventRunFailed, title, msg); err != nil {
		s.logger.WarnContext(ctx, "failure notification failed", slog.String("error", err.Error()))
	}
}

func (s *RunService) track(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[runID] = &tracked{
		status: RunStatus{RunID: runID, State: StateRunning, StartedAt: time.Now().UTC()},
		cancel: cancel,
	}
	s.order = append(s.order, runID)

	for len(s.order) > maxTracked {
		oldest := s.order[0]
		if t := s.runs[oldest]; t != nil && t.status.State == StateRunning {
			break
		}
		delete(s.runs, oldest)
		s.order = s.order[1:]
	}
}

func (s *RunService) finish(res *backtest.Result, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.runs[res.RunID]
	if !ok {
		return
	}
	rec := res.Record()
	t.result = res
	t.cancel = nil
	t.status.Record = &rec
	t.status.StartedAt = res.StartedAt
	switch {
	case runErr == nil:
		t.status.State = StateCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		t.status.State = StateStopped
		t.status.Error = runErr.Error()
	default:
		t.status.State = StateFailed
		t.status.Error = runErr.Error()
	}
}

// Cancel stops a background run. It reports false when the run is unknown
// or already finished.
func (s *RunService) Cancel(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.runs[runID]
	if !ok || t.cancel == nil {
		return false
	}
	t.cancel()
	return true
}

// Shutdown cancels every background run and waits for them to finish
// reporting.
func (s *RunService) Shutdown() {
	s.mu.Lock()
	for _, t := range s.runs {
		if t.cancel != nil {
			t.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait blocks until every background run has finished.
func (s *RunService) Wait() {
	s.wg.Wait()
}

// ActiveRuns returns the number of background runs in flight.
func (s *RunService) ActiveRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Status looks a run up in memory, then in the run store, then in the
// progress cache (runs started by another instance).
func (s *RunService) Status(ctx context.Context, runID string) (RunStatus, error) {
	s.mu.Lock()
	if t, ok := s.runs[runID]; ok {
		st := t.status
		s.mu.Unlock()
		return st, nil
	}
	s.mu.Unlock()

	if s.deps.Runs != nil {
		rec, err := s.deps.Runs.GetRun(ctx, runID)
		switch {
		case err == nil:
			state := StateCompleted
			if !rec.Completed {
				state = StateStopped
			}
			return RunStatus{
				RunID:     rec.ID,
				State:     state,
				Progress:  domain.RunProgress{RunID: rec.ID, Done: 1, Total: 1, Pct: 100, Stats: rec.Stats, Finished: true},
				StartedAt: rec.StartedAt,
				Record:    &rec,
			}, nil
		case !errors.Is(err, domain.ErrNotFound):
			return RunStatus{}, fmt.Errorf("service: run status: %w", err)
		}
	}

	if s.deps.Progress != nil {
		p, err := s.deps.Progress.GetProgress(ctx, runID)
		switch {
		case err == nil:
			state := StateRunning
			if p.Finished {
				state = StateCompleted
			}
			return RunStatus{RunID: runID, State: state, Progress: p}, nil
		case !errors.Is(err, domain.ErrNotFound):
			return RunStatus{}, fmt.Errorf("service: run status: %w", err)
		}
	}

	return RunStatus{}, fmt.Errorf("service: run %s: %w", runID, domain.ErrNotFound)
}

// List returns run headers newest first, from the store when one is
// configured and from memory otherwise.
func (s *RunService) List(ctx context.Context, opts domain.ListOpts) ([]domain.RunRecord, error) {
	if s.deps.Runs != nil {
		recs, err := s.deps.Runs.ListRuns(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("service: list runs: %w", err)
		}
		return recs, nil
	}

	s.mu.Lock()
	var recs []domain.RunRecord
	for _, t := range s.runs {
		if t.status.Record == nil {
			continue
		}
		if opts.Since != nil && t.status.Record.StartedAt.Before(*opts.Since) {
			continue
		}
		recs = append(recs, *t.status.Record)
	}
	s.mu.Unlock()

	slices.SortFunc(recs, func(a, b domain.RunRecord) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if opts.Offset >= len(recs) {
		return []domain.RunRecord{}, nil
	}
	recs = recs[opts.Offset:]
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

// Outcomes returns a run's outcome log, optionally restricted to one
// profile.
func (s *RunService) Outcomes(ctx context.Context, runID, profile string) ([]domain.TradeOutcome, error) {
	if res := s.result(runID); res != nil {
		if profile != "" {
			return slices.Clone(res.Outcomes[profile]), nil
		}
		return res.AllOutcomes(), nil
	}
	if s.deps.Runs == nil {
		return nil, fmt.Errorf("service: outcomes of %s: %w", runID, domain.ErrNotFound)
	}
	out, err := s.deps.Runs.ListOutcomes(ctx, runID, profile)
	if err != nil {
		return nil, fmt.Errorf("service: outcomes of %s: %w", runID, err)
	}
	return out, nil
}

// PriceHistory returns the per-tick price series of a run.
func (s *RunService) PriceHistory(ctx context.Context, runID string) ([]domain.PricePoint, error) {
	if res := s.result(runID); res != nil {
		return res.PriceHistory, nil
	}
	if s.deps.Prices == nil {
		return nil, fmt.Errorf("service: price history of %s: %w", runID, domain.ErrNotFound)
	}
	points, err := s.deps.Prices.GetByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("service: price history of %s: %w", runID, err)
	}
	return points, nil
}

// Feed reads run summaries from the durable stream after lastID.
func (s *RunService) Feed(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if s.deps.Bus == nil {
		return nil, nil
	}
	if lastID == "" {
		lastID = "0"
	}
	msgs, err := s.deps.Bus.StreamRead(ctx, domain.StreamRunSummaries, lastID, count)
	if err != nil {
		return nil, fmt.Errorf("service: run feed: %w", err)
	}
	return msgs, nil
}

func (s *RunService) result(runID string) *backtest.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.runs[runID]; ok {
		return t.result
	}
	return nil
}
