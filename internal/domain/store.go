package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// RunStore persists run headers and their outcome logs.
type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord) error
	SaveOutcomes(ctx context.Context, runID string, outcomes []TradeOutcome) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, opts ListOpts) ([]RunRecord, error)
	ListOutcomes(ctx context.Context, runID, profile string) ([]TradeOutcome, error)
}

// PriceHistoryStore persists the per-tick price series of a run.
type PriceHistoryStore interface {
	InsertBatch(ctx context.Context, runID string, points []PricePoint) error
	GetByRun(ctx context.Context, runID string) ([]PricePoint, error)
}
