package notify

import (
	"fmt"
	"strings"

	"github.com/adjust481/PolySniper/internal/domain"
)

// RunCompleted formats the alert for a finished run.
func RunCompleted(rec domain.RunRecord) (title, message string) {
	title = fmt.Sprintf("Run %s completed", shortID(rec.ID))
	if !rec.Completed {
		title = fmt.Sprintf("Run %s stopped early", shortID(rec.ID))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "seed %d, %s source, %s mode\n", rec.Seed, rec.Source, rec.ExecutionMode)
	fmt.Fprintf(&b, "ticks %d, profitable %d, front-run %d, leg risk %d, black swan %d\n",
		rec.Stats.TotalTicks, rec.Stats.ProfitableTrades, rec.Stats.FrontRun, rec.Stats.LegRisk, rec.Stats.BlackSwan)
	for _, m := range rec.Metrics {
		fmt.Fprintf(&b, "%s: net $%.2f over %d (%.1f%% success)\n", m.Profile, m.NetProfit, m.Count, m.SuccessRatePct)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// RunFailed formats the alert for a run that could not start or finish.
func RunFailed(runID string, err error) (title, message string) {
	return fmt.Sprintf("Run %s failed", shortID(runID)), err.Error()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
