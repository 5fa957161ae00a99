package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adjust481/PolySniper/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runSelectCols = `id, seed, source, execution_mode, min_profit_rate, profiles,
	stats, metrics, completed, started_at, finished_at`

var outcomeCols = []string{
	"run_id", "seq", "profile", "event_id", "tick", "execution_mode", "state",
	"success", "units_filled", "fill_rate", "price_a", "price_b", "gross_spread",
	"net_profit", "gas_cost", "slippage_cost", "total_fees", "was_frontrun",
	"leg_risk", "precheck_rejected", "risk_rejected", "reason", "latency_ms",
	"rank_in_race",
}

// SaveRun inserts the run header, replacing an earlier version with the
// same id.
func (s *RunStore) SaveRun(ctx context.Context, run domain.RunRecord) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("postgres: marshal run stats: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("postgres: marshal run metrics: %w", err)
	}

	const query = `
		INSERT INTO runs (
			id, seed, source, execution_mode, min_profit_rate, profiles,
			stats, metrics, completed, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			stats       = EXCLUDED.stats,
			metrics     = EXCLUDED.metrics,
			completed   = EXCLUDED.completed,
			finished_at = EXCLUDED.finished_at`

	_, err = s.pool.Exec(ctx, query,
		run.ID, run.Seed, string(run.Source), string(run.ExecutionMode), run.MinProfitRate,
		run.Profiles, stats, metrics, run.Completed, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveOutcomes bulk-loads the outcome log of a run with COPY. Existing
// outcomes of the run are replaced.
func (s *RunStore) SaveOutcomes(ctx context.Context, runID string, outcomes []domain.TradeOutcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save outcomes: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM trade_outcomes WHERE run_id = $1", runID); err != nil {
		return fmt.Errorf("postgres: clear outcomes of %s: %w", runID, err)
	}

	rows := make([][]any, len(outcomes))
	for i, o := range outcomes {
		rows[i] = []any{
			runID, i, o.Profile, o.EventID, o.Tick, string(o.ExecutionMode), string(o.State),
			o.Success, o.UnitsFilled, o.FillRate, o.PriceA, o.PriceB, o.GrossSpread,
			o.NetProfit, o.GasCost, o.SlippageCost, o.TotalFees, o.FrontRun,
			o.LegRisk, o.PrecheckRejected, o.RiskRejected, o.Reason, o.LatencyMs,
			o.Rank,
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"trade_outcomes"}, outcomeCols, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("postgres: copy outcomes of %s: %w", runID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit outcomes of %s: %w", runID, err)
	}
	return nil
}

// GetRun returns the run with the given id, or domain.ErrNotFound.
func (s *RunStore) GetRun(ctx context.Context, id string) (domain.RunRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runSelectCols+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunRecord{}, fmt.Errorf("postgres: get run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("postgres: get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(ctx context.Context, opts domain.ListOpts) ([]domain.RunRecord, error) {
	query := `SELECT ` + runSelectCols + ` FROM runs`
	var args []any
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" WHERE started_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListOutcomes returns the outcome log of a run in recorded order. An empty
// profile returns every profile.
func (s *RunStore) ListOutcomes(ctx context.Context, runID, profile string) ([]domain.TradeOutcome, error) {
	query := `SELECT profile, event_id, tick, execution_mode, state, success,
		units_filled, fill_rate, price_a, price_b, gross_spread, net_profit,
		gas_cost, slippage_cost, total_fees, was_frontrun, leg_risk,
		precheck_rejected, risk_rejected, reason, latency_ms, rank_in_race
		FROM trade_outcomes WHERE run_id = $1`
	args := []any{runID}
	if profile != "" {
		query += " AND profile = $2"
		args = append(args, profile)
	}
	query += " ORDER BY seq"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.TradeOutcome
	for rows.Next() {
		var o domain.TradeOutcome
		var mode, state string
		if err := rows.Scan(
			&o.Profile, &o.EventID, &o.Tick, &mode, &state, &o.Success,
			&o.UnitsFilled, &o.FillRate, &o.PriceA, &o.PriceB, &o.GrossSpread, &o.NetProfit,
			&o.GasCost, &o.SlippageCost, &o.TotalFees, &o.FrontRun, &o.LegRisk,
			&o.PrecheckRejected, &o.RiskRejected, &o.Reason, &o.LatencyMs, &o.Rank,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan outcome: %w", err)
		}
		o.ExecutionMode = domain.ExecutionMode(mode)
		o.State = domain.OutcomeState(state)
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (domain.RunRecord, error) {
	var (
		r              domain.RunRecord
		source, mode   string
		stats, metrics []byte
	)
	if err := row.Scan(
		&r.ID, &r.Seed, &source, &mode, &r.MinProfitRate, &r.Profiles,
		&stats, &metrics, &r.Completed, &r.StartedAt, &r.FinishedAt,
	); err != nil {
		return domain.RunRecord{}, err
	}
	r.Source = domain.SourceKind(source)
	r.ExecutionMode = domain.ExecutionMode(mode)
	if err := json.Unmarshal(stats, &r.Stats); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decode stats: %w", err)
	}
	if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decode metrics: %w", err)
	}
	return r, nil
}

var _ domain.RunStore = (*RunStore)(nil)
