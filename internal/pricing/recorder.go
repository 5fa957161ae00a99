package pricing

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
)

// ReplayHeader is the column layout written by WriteReplay and accepted by
// LoadReplay.
var ReplayHeader = []string{"timestamp", "best_bid", "best_ask", "spread", "last_trade_price", "volume", "liquidity"}

// Export defaults used when turning a run's price history into a quote log.
const (
	ExportTickInterval = time.Second
	ExportQuoteWidth   = 0.01
)

// SnapshotsFromHistory converts a run's per-tick prices into quote-log rows
// that LoadReplay accepts. Venue A's price becomes the ask and the bid sits
// width below it. Ticks without a recorded timestamp are placed interval
// apart from start.
func SnapshotsFromHistory(points []domain.PricePoint, start time.Time, interval time.Duration, width float64) []domain.PriceSnapshot {
	rows := make([]domain.PriceSnapshot, 0, len(points))
	for _, p := range points {
		ts := start.Add(time.Duration(p.Tick) * interval)
		if p.Timestamp != nil {
			ts = *p.Timestamp
		}
		ask := p.PriceA
		bid := max(ask-width, quoteMin)
		rows = append(rows, domain.PriceSnapshot{
			Timestamp:      ts,
			BestBid:        bid,
			BestAsk:        ask,
			Spread:         ask - bid,
			LastTradePrice: (ask + bid) / 2,
		})
	}
	return rows
}

// WriteReplay writes snapshots in the quote-log format.
func WriteReplay(w io.Writer, rows []domain.PriceSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReplayHeader); err != nil {
		return fmt.Errorf("pricing: write replay header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			formatFloat(r.BestBid),
			formatFloat(r.BestAsk),
			formatFloat(r.Spread),
			formatFloat(r.LastTradePrice),
			formatFloat(r.Volume),
			formatFloat(r.Liquidity),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("pricing: write replay row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("pricing: flush replay: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
