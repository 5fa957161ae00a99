package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/adjust481/PolySniper/internal/backtest"
	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/metrics"
	"github.com/adjust481/PolySniper/internal/pricing"
)

// RenderMarkdown renders the summary report of one run. replay may be nil
// for synthetic runs.
func RenderMarkdown(res *backtest.Result, replay *pricing.ReplaySummary) string {
	var sb strings.Builder
	st := res.Stats

	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", res.RunID))
	sb.WriteString(fmt.Sprintf("Source: %s | Execution: %s | Seed: %d | Min profit rate: %.4f\n\n",
		res.Source, res.ExecutionMode, res.Seed, res.MinProfitRate))
	sb.WriteString(fmt.Sprintf("Started: %s | Finished: %s | Completed: %t\n\n",
		res.StartedAt.Format(time.RFC3339), res.FinishedAt.Format(time.RFC3339), res.Completed))

	if replay != nil {
		sb.WriteString("## Replay Data\n\n")
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Rows | %d |\n", replay.Rows))
		sb.WriteString(fmt.Sprintf("| Skipped Rows | %d |\n", replay.Skipped))
		sb.WriteString(fmt.Sprintf("| Start | %s |\n", replay.Start.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("| End | %s |\n", replay.End.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("| Avg Bid | %.4f |\n", replay.AvgBid))
		sb.WriteString(fmt.Sprintf("| Avg Ask | %.4f |\n", replay.AvgAsk))
		sb.WriteString(fmt.Sprintf("| Avg Spread | %.4f |\n", replay.AvgSpread))
		sb.WriteString("\n")
	}

	sb.WriteString("## Run Statistics\n\n")
	sb.WriteString("| Counter | Value |\n")
	sb.WriteString("|---------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Ticks | %d |\n", st.TotalTicks))
	sb.WriteString(fmt.Sprintf("| No Opportunity | %d |\n", st.NoOpportunity))
	sb.WriteString(fmt.Sprintf("| Precheck Rejected | %d |\n", st.PrecheckRejected))
	sb.WriteString(fmt.Sprintf("| Risk Rejected | %d |\n", st.RiskRejected))
	sb.WriteString(fmt.Sprintf("| Front-run | %d |\n", st.FrontRun))
	sb.WriteString(fmt.Sprintf("| Leg Risk | %d |\n", st.LegRisk))
	sb.WriteString(fmt.Sprintf("| Profitable Trades | %d |\n", st.ProfitableTrades))
	sb.WriteString(fmt.Sprintf("| Black Swan | %d |\n", st.BlackSwan))
	sb.WriteString(fmt.Sprintf("| Liquidity Crisis | %d |\n", st.LiquidityCrisis))
	sb.WriteString("\n")

	rows := res.OrderedMetrics()
	sb.WriteString("## Profiles\n\n")
	sb.WriteString("| Profile | Outcomes | Success % | Net ($) | Mean Net ($) | Gas ($) | Slippage ($) | Fill % | Front-run | Leg Risk |\n")
	sb.WriteString("|---------|----------|-----------|---------|--------------|---------|--------------|--------|-----------|----------|\n")
	for _, m := range rows {
		if m.Count == 0 {
			sb.WriteString(fmt.Sprintf("| %s | 0 | N/A | N/A | N/A | N/A | N/A | N/A | N/A | N/A |\n", m.Profile))
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %.1f | %.2f | %.4f | %.2f | %.2f | %.1f | %d | %d |\n",
			m.Profile, m.Count, m.SuccessRatePct, m.NetProfit, m.MeanNetProfit(),
			m.TotalGas, m.TotalSlippage, m.MeanFillRatePct, m.FrontRunCount, m.LegRiskCount))
	}
	sb.WriteString(fmt.Sprintf("| **Total** | | | %.2f | | | | | | |\n", TotalNetProfit(rows)))
	sb.WriteString("\n")

	sb.WriteString("## Speed Ordering\n\n")
	pro := res.Metrics[domain.ProfilePro].NetProfit
	semi := res.Metrics[domain.ProfileSemiPro].NetProfit
	retail := res.Metrics[domain.ProfileRetail].NetProfit
	switch OrderingVerdict(res.Metrics) {
	case VerdictStrict:
		sb.WriteString("**strict**: pro > semi_pro > retail\n\n")
	case VerdictWeak:
		sb.WriteString("**weak**: pro >= semi_pro >= retail\n\n")
	default:
		sb.WriteString(fmt.Sprintf("**violated**: pro=%.2f semi_pro=%.2f retail=%.2f\n\n", pro, semi, retail))
	}

	return sb.String()
}

// RenderSweepMarkdown renders the cross-seed summary of a sweep.
func RenderSweepMarkdown(seeds []int64, rows []metrics.SeedSummary) string {
	var sb strings.Builder

	sb.WriteString("# Sweep Report\n\n")
	sb.WriteString(fmt.Sprintf("Seeds: %d", len(seeds)))
	if len(seeds) > 0 {
		sb.WriteString(fmt.Sprintf(" (%d..%d)", seeds[0], seeds[len(seeds)-1]))
	}
	sb.WriteString("\n\n")

	sb.WriteString("| Profile | Runs | Outcomes | Successes | Net ($) | Mean Net ($) | Worst Run ($) | Best Run ($) |\n")
	sb.WriteString("|---------|------|----------|-----------|---------|--------------|---------------|--------------|\n")
	for _, s := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.2f | %.4f | %.2f | %.2f |\n",
			s.Profile, s.Runs, s.Outcomes, s.Successes, s.NetProfit, s.MeanNetProfit, s.MinRunNet, s.MaxRunNet))
	}
	sb.WriteString("\n")

	return sb.String()
}
