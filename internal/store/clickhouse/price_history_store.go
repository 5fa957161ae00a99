package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
)

const createPriceHistory = `
CREATE TABLE IF NOT EXISTS price_history (
	run_id       String,
	tick         UInt32,
	timestamp_ms Int64,
	has_ts       UInt8,
	price_a      Float64,
	price_b      Float64,
	spread       Float64
) ENGINE = MergeTree()
ORDER BY (run_id, tick)`

// DefaultBatchSize bounds the rows sent per INSERT batch.
const DefaultBatchSize = 5000

// PriceHistoryStore writes the per-tick price series of a run to ClickHouse.
type PriceHistoryStore struct {
	conn      *Conn
	batchSize int
}

// NewPriceHistoryStore creates a PriceHistoryStore. A non-positive batchSize
// falls back to DefaultBatchSize.
func NewPriceHistoryStore(conn *Conn, batchSize int) *PriceHistoryStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PriceHistoryStore{conn: conn, batchSize: batchSize}
}

var _ domain.PriceHistoryStore = (*PriceHistoryStore)(nil)

// EnsureSchema creates the price_history table when missing.
func (s *PriceHistoryStore) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createPriceHistory); err != nil {
		return fmt.Errorf("clickhouse: ensure price_history: %w", err)
	}
	return nil
}

// InsertBatch appends points for runID in chunks of batchSize.
func (s *PriceHistoryStore) InsertBatch(ctx context.Context, runID string, points []domain.PricePoint) error {
	for _, chunk := range chunks(points, s.batchSize) {
		batch, err := s.conn.PrepareBatch(ctx, `
			INSERT INTO price_history (
				run_id, tick, timestamp_ms, has_ts, price_a, price_b, spread
			)
		`)
		if err != nil {
			return fmt.Errorf("clickhouse: prepare batch: %w", err)
		}

		for _, p := range chunk {
			ms, has := encodeTimestamp(p.Timestamp)
			if err := batch.Append(runID, uint32(p.Tick), ms, has, p.PriceA, p.PriceB, p.Spread); err != nil {
				_ = batch.Abort()
				return fmt.Errorf("clickhouse: append tick %d: %w", p.Tick, err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("clickhouse: send batch: %w", err)
		}
	}
	return nil
}

// GetByRun returns the price series of a run ordered by tick.
func (s *PriceHistoryStore) GetByRun(ctx context.Context, runID string) ([]domain.PricePoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT tick, timestamp_ms, has_ts, price_a, price_b, spread
		FROM price_history
		WHERE run_id = ?
		ORDER BY tick ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: query price_history: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var (
			tick uint32
			ms   int64
			has  uint8
			p    domain.PricePoint
		)
		if err := rows.Scan(&tick, &ms, &has, &p.PriceA, &p.PriceB, &p.Spread); err != nil {
			return nil, fmt.Errorf("clickhouse: scan price_history: %w", err)
		}
		p.Tick = int(tick)
		p.Timestamp = decodeTimestamp(ms, has)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse: iterate price_history: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("clickhouse: price history for run %s: %w", runID, domain.ErrNotFound)
	}
	return points, nil
}

func chunks(points []domain.PricePoint, size int) [][]domain.PricePoint {
	var out [][]domain.PricePoint
	for len(points) > 0 {
		n := min(size, len(points))
		out = append(out, points[:n])
		points = points[n:]
	}
	return out
}

func encodeTimestamp(ts *time.Time) (int64, uint8) {
	if ts == nil {
		return 0, 0
	}
	return ts.UnixMilli(), 1
}

func decodeTimestamp(ms int64, has uint8) *time.Time {
	if has == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
