// Package reporting renders run results as CSV, JSONL and Markdown.
package reporting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adjust481/PolySniper/internal/backtest"
	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/metrics"
	"github.com/adjust481/PolySniper/internal/pricing"
)

// RenderMetricsCSV renders one row per profile.
func RenderMetricsCSV(rows []domain.ProfileMetrics) string {
	var sb strings.Builder

	sb.WriteString("profile,count,successes,success_rate_pct,net_profit,mean_net_profit,")
	sb.WriteString("total_gas,total_slippage,mean_fill_rate_pct,frontrun,leg_risk,precheck_rejected\n")

	for _, m := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%.2f,%.2f,%.4f,%.2f,%.2f,%.2f,%d,%d,%d\n",
			m.Profile,
			m.Count,
			m.Successes,
			m.SuccessRatePct,
			m.NetProfit,
			m.MeanNetProfit(),
			m.TotalGas,
			m.TotalSlippage,
			m.MeanFillRatePct,
			m.FrontRunCount,
			m.LegRiskCount,
			m.PrecheckRejected,
		))
	}

	return sb.String()
}

// RenderTradesCSV renders the flat trade history of a run.
func RenderTradesCSV(outcomes []domain.TradeOutcome) string {
	var sb strings.Builder

	sb.WriteString("profile,event_id,tick,state,success,rank,latency_ms,units_filled,fill_rate,")
	sb.WriteString("price_a,price_b,gross_spread,net_profit,gas_cost,slippage_cost,total_fees,reason\n")

	for _, o := range outcomes {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%t,%d,%.3f,%.4f,%.4f,%.6f,%.6f,%.6f,%.4f,%.4f,%.4f,%.4f,%s\n",
			o.Profile,
			o.EventID,
			o.Tick,
			o.State,
			o.Success,
			o.Rank,
			o.LatencyMs,
			o.UnitsFilled,
			o.FillRate,
			o.PriceA,
			o.PriceB,
			o.GrossSpread,
			o.NetProfit,
			o.GasCost,
			o.SlippageCost,
			o.TotalFees,
			csvField(o.Reason),
		))
	}

	return sb.String()
}

// RenderPriceHistoryCSV renders the per-tick venue quotes. The timestamp
// column is empty for synthetic runs.
func RenderPriceHistoryCSV(points []domain.PricePoint) string {
	var sb strings.Builder

	sb.WriteString("tick,timestamp,price_a,price_b,spread\n")
	for _, p := range points {
		ts := ""
		if p.Timestamp != nil {
			ts = p.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s\n",
			p.Tick,
			ts,
			strconv.FormatFloat(p.PriceA, 'f', 6, 64),
			strconv.FormatFloat(p.PriceB, 'f', 6, 64),
			strconv.FormatFloat(p.Spread, 'f', 6, 64),
		))
	}

	return sb.String()
}

// RenderReplayCSV exports the run's price history as a quote log that can
// be fed back in with -replay.
func RenderReplayCSV(res *backtest.Result) ([]byte, error) {
	rows := pricing.SnapshotsFromHistory(res.PriceHistory, res.StartedAt, pricing.ExportTickInterval, pricing.ExportQuoteWidth)
	var buf bytes.Buffer
	if err := pricing.WriteReplay(&buf, rows); err != nil {
		return nil, fmt.Errorf("reporting: replay export: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderSweepCSV renders the per-profile summary of a seed sweep.
func RenderSweepCSV(rows []metrics.SeedSummary) string {
	var sb strings.Builder

	sb.WriteString("profile,runs,outcomes,successes,net_profit,mean_net_profit,min_run_net,max_run_net\n")
	for _, s := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%.2f,%.4f,%.2f,%.2f\n",
			s.Profile, s.Runs, s.Outcomes, s.Successes,
			s.NetProfit, s.MeanNetProfit, s.MinRunNet, s.MaxRunNet))
	}

	return sb.String()
}

// MarshalOutcomesJSONL encodes every outcome of res as one JSON object per
// line, tagged with the run id.
func MarshalOutcomesJSONL(res *backtest.Result) ([]byte, error) {
	type line struct {
		RunID string `json:"run_id"`
		domain.TradeOutcome
	}

	var sb strings.Builder
	for _, o := range res.AllOutcomes() {
		b, err := json.Marshal(line{RunID: res.RunID, TradeOutcome: o})
		if err != nil {
			return nil, fmt.Errorf("reporting: marshal outcome %s: %w", o.EventID, err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
