package pricing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
)

// DefaultReplayOffset is the assumed venue-B premium over the recorded
// venue's mid price. Only one venue was recorded, so this is a modelling
// assumption rather than an observed spread.
const DefaultReplayOffset = 0.02

var requiredColumns = []string{"timestamp", "best_bid", "best_ask"}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

// ReplaySource steps through a recorded quote log. Venue A's quote is the
// recorded ask; venue B's quote is synthesized from the mid plus a fixed
// offset.
type ReplaySource struct {
	rows    []domain.PriceSnapshot
	offset  float64
	skipped int

	idx     int
	cur     int
	history []float64
	ready   bool
}

var (
	_ Source      = (*ReplaySource)(nil)
	_ Timestamped = (*ReplaySource)(nil)
	_ Finite      = (*ReplaySource)(nil)
)

// NewReplaySource wraps already-parsed rows.
func NewReplaySource(rows []domain.PriceSnapshot, offset float64) (*ReplaySource, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("pricing: replay: %w", domain.ErrEmptyReplay)
	}
	return &ReplaySource{rows: rows, offset: offset, cur: -1}, nil
}

// LoadReplayFile opens and parses a quote log from disk.
func LoadReplayFile(path string, offset float64) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pricing: open replay %s: %w", path, err)
	}
	defer f.Close()
	return LoadReplay(f, offset)
}

// LoadReplay parses a quote log with a header row. timestamp, best_bid and
// best_ask are required; spread, last_trade_price, volume and liquidity are
// synthesized when the column is absent or the cell is empty. Rows that fail
// to parse are skipped.
func LoadReplay(r io.Reader, offset float64) (*ReplaySource, error) {
	rows, skipped, err := ParseSnapshots(r)
	if err != nil {
		return nil, err
	}
	src, err := NewReplaySource(rows, offset)
	if err != nil {
		return nil, err
	}
	src.skipped = skipped
	return src, nil
}

// ParseSnapshots reads quote-log rows and reports how many malformed rows
// were skipped.
func ParseSnapshots(r io.Reader) ([]domain.PriceSnapshot, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("pricing: replay header: %w", domain.ErrEmptyReplay)
		}
		return nil, 0, fmt.Errorf("pricing: replay header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("pricing: replay columns [%s]: %w", strings.Join(missing, ", "), domain.ErrMissingColumns)
	}

	var (
		rows    []domain.PriceSnapshot
		skipped int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, 0, fmt.Errorf("pricing: read replay: %w", err)
		}
		snap, ok := parseRow(rec, cols)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, snap)
	}
	if len(rows) == 0 {
		return nil, skipped, fmt.Errorf("pricing: replay: %w", domain.ErrEmptyReplay)
	}
	return rows, skipped, nil
}

func parseRow(rec []string, cols map[string]int) (domain.PriceSnapshot, bool) {
	cell := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		v := strings.TrimSpace(rec[i])
		return v, v != ""
	}
	num := func(name string) (float64, bool, bool) {
		v, ok := cell(name)
		if !ok {
			return 0, false, true
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, true, false
		}
		return f, true, true
	}

	tsRaw, ok := cell("timestamp")
	if !ok {
		return domain.PriceSnapshot{}, false
	}
	ts, ok := parseTimestamp(tsRaw)
	if !ok {
		return domain.PriceSnapshot{}, false
	}
	bid, present, valid := num("best_bid")
	if !present || !valid {
		return domain.PriceSnapshot{}, false
	}
	ask, present, valid := num("best_ask")
	if !present || !valid {
		return domain.PriceSnapshot{}, false
	}

	snap := domain.PriceSnapshot{Timestamp: ts, BestBid: bid, BestAsk: ask}

	if v, present, valid := num("spread"); !valid {
		return domain.PriceSnapshot{}, false
	} else if present {
		snap.Spread = v
	} else {
		snap.Spread = ask - bid
	}
	if v, present, valid := num("last_trade_price"); !valid {
		return domain.PriceSnapshot{}, false
	} else if present {
		snap.LastTradePrice = v
	} else {
		snap.LastTradePrice = snap.Mid()
	}
	if v, _, valid := num("volume"); valid {
		snap.Volume = v
	} else {
		return domain.PriceSnapshot{}, false
	}
	if v, _, valid := num("liquidity"); valid {
		snap.Liquidity = v
	} else {
		return domain.PriceSnapshot{}, false
	}
	return snap, true
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
	}
	return time.Time{}, false
}

// Initialize rewinds to the first row and clears the venue-A history. The
// base value is ignored.
func (s *ReplaySource) Initialize(float64) {
	s.idx = 0
	s.cur = 0
	s.history = s.history[:0]
	s.ready = true
}

// Step advances to the next row and returns its mid price. Once the data is
// exhausted the last row's mid is returned again.
func (s *ReplaySource) Step() (float64, error) {
	if !s.ready {
		return 0, fmt.Errorf("pricing: step: %w", domain.ErrNotInitialized)
	}
	if s.idx < len(s.rows) {
		s.cur = s.idx
		s.idx++
	}
	return s.rows[s.cur].Mid(), nil
}

// QuoteA returns the current row's ask.
func (s *ReplaySource) QuoteA() (float64, error) {
	if !s.ready {
		return 0, fmt.Errorf("pricing: quote a: %w", domain.ErrNotInitialized)
	}
	ask := s.rows[s.cur].BestAsk
	s.history = append(s.history, ask)
	return ask, nil
}

// QuoteB returns mid·(1−w) + lagged·w + offset, or mid + offset when fewer
// than two venue-A quotes have been taken.
func (s *ReplaySource) QuoteB(lagWeight float64) (float64, error) {
	if !s.ready {
		return 0, fmt.Errorf("pricing: quote b: %w", domain.ErrNotInitialized)
	}
	mid := s.rows[s.cur].Mid()
	base := mid
	if len(s.history) > 1 {
		lagged := s.history[len(s.history)-2]
		base = mid*(1-lagWeight) + lagged*lagWeight
	}
	return clamp(base+s.offset, quoteMin, quoteMax), nil
}

// HasMoreData reports whether unread rows remain.
func (s *ReplaySource) HasMoreData() bool {
	return s.idx < len(s.rows)
}

// Progress returns rows consumed, total rows and the percentage consumed.
func (s *ReplaySource) Progress() (int, int, float64) {
	total := len(s.rows)
	return s.idx, total, float64(s.idx) / float64(total) * 100
}

// CurrentTimestamp returns the timestamp of the current row.
func (s *ReplaySource) CurrentTimestamp() (time.Time, bool) {
	if !s.ready || s.cur < 0 {
		return time.Time{}, false
	}
	return s.rows[s.cur].Timestamp, true
}

// Offset returns the configured venue-B offset.
func (s *ReplaySource) Offset() float64 {
	return s.offset
}

// Rows returns the parsed rows. The slice must not be modified.
func (s *ReplaySource) Rows() []domain.PriceSnapshot {
	return s.rows
}

// ReplaySummary describes a loaded quote log.
type ReplaySummary struct {
	Rows        int       `json:"rows"`
	Skipped     int       `json:"skipped"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AvgBid      float64   `json:"avg_bid"`
	AvgAsk      float64   `json:"avg_ask"`
	AvgSpread   float64   `json:"avg_spread"`
	MinSpread   float64   `json:"min_spread"`
	MaxSpread   float64   `json:"max_spread"`
	TotalVolume float64   `json:"total_volume"`
}

// Summary computes descriptive statistics over all rows.
func (s *ReplaySource) Summary() ReplaySummary {
	sum := ReplaySummary{
		Rows:      len(s.rows),
		Skipped:   s.skipped,
		Start:     s.rows[0].Timestamp,
		End:       s.rows[len(s.rows)-1].Timestamp,
		MinSpread: math.Inf(1),
		MaxSpread: math.Inf(-1),
		// Recorded volume is cumulative, so the last row carries the total.
		TotalVolume: s.rows[len(s.rows)-1].Volume,
	}
	var bid, ask, spread float64
	for _, r := range s.rows {
		bid += r.BestBid
		ask += r.BestAsk
		spread += r.Spread
		sum.MinSpread = math.Min(sum.MinSpread, r.Spread)
		sum.MaxSpread = math.Max(sum.MaxSpread, r.Spread)
	}
	n := float64(len(s.rows))
	sum.AvgBid = bid / n
	sum.AvgAsk = ask / n
	sum.AvgSpread = spread / n
	return sum
}
