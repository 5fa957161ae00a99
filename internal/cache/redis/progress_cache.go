package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adjust481/PolySniper/internal/domain"
)

// progressTTL bounds how long a finished run's progress stays readable.
const progressTTL = 24 * time.Hour

// ProgressCache implements domain.ProgressCache with one hash per run at
// "run:progress:{runID}".
type ProgressCache struct {
	rdb *redis.Client
}

// NewProgressCache creates a ProgressCache backed by c.
func NewProgressCache(c *Client) *ProgressCache {
	return &ProgressCache{rdb: c.Underlying()}
}

func progressKey(runID string) string {
	return "run:progress:" + runID
}

// SetProgress overwrites the stored progress of p.RunID and refreshes its TTL.
func (pc *ProgressCache) SetProgress(ctx context.Context, p domain.RunProgress) error {
	fields, err := encodeProgress(p)
	if err != nil {
		return fmt.Errorf("redis: encode progress %s: %w", p.RunID, err)
	}

	key := progressKey(p.RunID)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, progressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set progress %s: %w", p.RunID, err)
	}
	return nil
}

// GetProgress returns domain.ErrNotFound when nothing is stored for runID.
func (pc *ProgressCache) GetProgress(ctx context.Context, runID string) (domain.RunProgress, error) {
	vals, err := pc.rdb.HGetAll(ctx, progressKey(runID)).Result()
	if err != nil {
		return domain.RunProgress{}, fmt.Errorf("redis: get progress %s: %w", runID, err)
	}
	if len(vals) == 0 {
		return domain.RunProgress{}, domain.ErrNotFound
	}
	p, err := decodeProgress(runID, vals)
	if err != nil {
		return domain.RunProgress{}, fmt.Errorf("redis: decode progress %s: %w", runID, err)
	}
	return p, nil
}

func encodeProgress(p domain.RunProgress) (map[string]any, error) {
	stats, err := json.Marshal(p.Stats)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"done":     strconv.Itoa(p.Done),
		"total":    strconv.Itoa(p.Total),
		"pct":      strconv.FormatFloat(p.Pct, 'f', -1, 64),
		"finished": strconv.FormatBool(p.Finished),
		"stats":    string(stats),
	}, nil
}

func decodeProgress(runID string, vals map[string]string) (domain.RunProgress, error) {
	p := domain.RunProgress{RunID: runID}
	var err error
	if p.Done, err = strconv.Atoi(vals["done"]); err != nil {
		return p, fmt.Errorf("done: %w", err)
	}
	if p.Total, err = strconv.Atoi(vals["total"]); err != nil {
		return p, fmt.Errorf("total: %w", err)
	}
	if p.Pct, err = strconv.ParseFloat(vals["pct"], 64); err != nil {
		return p, fmt.Errorf("pct: %w", err)
	}
	if p.Finished, err = strconv.ParseBool(vals["finished"]); err != nil {
		return p, fmt.Errorf("finished: %w", err)
	}
	if s := vals["stats"]; s != "" {
		if err := json.Unmarshal([]byte(s), &p.Stats); err != nil {
			return p, fmt.Errorf("stats: %w", err)
		}
	}
	return p, nil
}

var _ domain.ProgressCache = (*ProgressCache)(nil)
