package domain

import (
	"context"
	"time"
)

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channel names used for run fan-out.
const (
	ChannelRuns        = "ch:run"
	ChannelRunPrefix   = "ch:run:"
	StreamRunSummaries = "stream:run_summaries"
)

// ProgressCache keeps the latest progress of each run for polling clients.
type ProgressCache interface {
	SetProgress(ctx context.Context, p RunProgress) error
	GetProgress(ctx context.Context, runID string) (RunProgress, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
