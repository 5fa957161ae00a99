package pricing

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjust481/PolySniper/internal/domain"
)

const flatLog = `timestamp,best_bid,best_ask
2025-01-01T00:00:00Z,0.40,0.42
2025-01-01T00:00:03Z,0.40,0.42
2025-01-01T00:00:06Z,0.40,0.42
2025-01-01T00:00:09Z,0.40,0.42
2025-01-01T00:00:12Z,0.40,0.42
`

func TestReplaySource_FirstQuotes(t *testing.T) {
	src, err := LoadReplay(strings.NewReader(flatLog), DefaultReplayOffset)
	require.NoError(t, err)

	src.Initialize(0)
	mid, err := src.Step()
	require.NoError(t, err)
	assert.InDelta(t, 0.41, mid, 1e-12)

	a, err := src.QuoteA()
	require.NoError(t, err)
	assert.Equal(t, 0.42, a)

	b, err := src.QuoteB(DefaultLagWeight)
	require.NoError(t, err)
	assert.InDelta(t, 0.41+DefaultReplayOffset, b, 1e-12)

	// Second tick blends in the previous ask.
	_, err = src.Step()
	require.NoError(t, err)
	_, err = src.QuoteA()
	require.NoError(t, err)
	b, err = src.QuoteB(DefaultLagWeight)
	require.NoError(t, err)
	assert.InDelta(t, 0.41*0.7+0.42*0.3+DefaultReplayOffset, b, 1e-12)
}

func TestReplaySource_SynthesizesOptionalColumns(t *testing.T) {
	src, err := LoadReplay(strings.NewReader(flatLog), 0.01)
	require.NoError(t, err)

	row := src.Rows()[0]
	assert.InDelta(t, 0.02, row.Spread, 1e-12)
	assert.InDelta(t, 0.41, row.LastTradePrice, 1e-12)
	assert.Zero(t, row.Volume)
	assert.Zero(t, row.Liquidity)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), row.Timestamp)
}

func TestReplaySource_MissingColumns(t *testing.T) {
	_, err := LoadReplay(strings.NewReader("timestamp,best_bid\n2025-01-01T00:00:00Z,0.4\n"), 0.02)
	require.ErrorIs(t, err, domain.ErrMissingColumns)
	assert.Contains(t, err.Error(), "best_ask")
	assert.NotContains(t, err.Error(), "best_bid,")
}

func TestReplaySource_EmptyLog(t *testing.T) {
	_, err := LoadReplay(strings.NewReader("timestamp,best_bid,best_ask\n"), 0.02)
	require.ErrorIs(t, err, domain.ErrEmptyReplay)

	_, err = LoadReplay(strings.NewReader(""), 0.02)
	require.ErrorIs(t, err, domain.ErrEmptyReplay)
}

func TestReplaySource_MissingFile(t *testing.T) {
	_, err := LoadReplayFile(t.TempDir()+"/nope.csv", 0.02)
	require.Error(t, err)
}

func TestReplaySource_SkipsMalformedRows(t *testing.T) {
	data := `timestamp,best_bid,best_ask,volume
2025-01-01 00:00:00,0.40,0.42,10
not-a-time,0.40,0.42,11
2025-01-01 00:00:06,abc,0.42,12
1735689609,0.41,0.43,13
`
	src, err := LoadReplay(strings.NewReader(data), 0.02)
	require.NoError(t, err)

	sum := src.Summary()
	assert.Equal(t, 2, sum.Rows)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 13.0, sum.TotalVolume)
	assert.Equal(t, int64(1735689609), sum.End.Unix())
}

func TestReplaySource_Exhaustion(t *testing.T) {
	src, err := LoadReplay(strings.NewReader(flatLog), 0.02)
	require.NoError(t, err)

	_, err = src.Step()
	require.ErrorIs(t, err, domain.ErrNotInitialized)

	src.Initialize(0)
	for i := 0; i < 5; i++ {
		require.True(t, src.HasMoreData())
		_, err := src.Step()
		require.NoError(t, err)
	}
	assert.False(t, src.HasMoreData())

	consumed, total, pct := src.Progress()
	assert.Equal(t, 5, consumed)
	assert.Equal(t, 5, total)
	assert.Equal(t, 100.0, pct)

	mid, err := src.Step()
	require.NoError(t, err)
	assert.InDelta(t, 0.41, mid, 1e-12)

	ts, ok := src.CurrentTimestamp()
	require.True(t, ok)
	assert.Equal(t, 12, ts.Second())

	src.Initialize(0)
	consumed, _, _ = src.Progress()
	assert.Zero(t, consumed)
}

func TestWriteReplay_RoundTrip(t *testing.T) {
	rows := []domain.PriceSnapshot{
		{Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC), BestBid: 0.31, BestAsk: 0.33, Spread: 0.02, LastTradePrice: 0.32, Volume: 1200, Liquidity: 5400},
		{Timestamp: time.Date(2025, 3, 1, 12, 0, 3, 0, time.UTC), BestBid: 0.315, BestAsk: 0.335, Spread: 0.02, LastTradePrice: 0.33, Volume: 1250, Liquidity: 5300},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReplay(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), strings.Join(ReplayHeader, ",")))

	src, err := LoadReplay(&buf, 0.02)
	require.NoError(t, err)
	assert.Equal(t, rows, src.Rows())
}
