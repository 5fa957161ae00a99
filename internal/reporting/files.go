package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/adjust481/PolySniper/internal/backtest"
	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/metrics"
	"github.com/adjust481/PolySniper/internal/pricing"
)

// Output formats accepted by RenderRun.
const (
	FormatMarkdown = "md"
	FormatCSV      = "csv"
	FormatJSONL    = "jsonl"
)

// Report file names.
const (
	SummaryFile      = "summary.md"
	MetricsFile      = "metrics.csv"
	TradesFile       = "trades.csv"
	PriceHistoryFile = "price_history.csv"
	OutcomesFile     = "outcomes.jsonl"
	ReplayFile       = "replay.csv"
	SweepSummaryFile = "sweep.md"
	SweepCSVFile     = "sweep.csv"
)

// Artifact is one rendered report file.
type Artifact = domain.Artifact

// RenderRun renders every artifact of res for the requested formats. An
// empty format list selects all of them.
func RenderRun(res *backtest.Result, replay *pricing.ReplaySummary, formats []string) ([]Artifact, error) {
	want := func(f string) bool { return len(formats) == 0 || slices.Contains(formats, f) }

	var out []Artifact
	if want(FormatMarkdown) {
		out = append(out, Artifact{Name: SummaryFile, ContentType: "text/markdown", Data: []byte(RenderMarkdown(res, replay))})
	}
	if want(FormatCSV) {
		out = append(out,
			Artifact{Name: MetricsFile, ContentType: "text/csv", Data: []byte(RenderMetricsCSV(res.OrderedMetrics()))},
			Artifact{Name: TradesFile, ContentType: "text/csv", Data: []byte(RenderTradesCSV(res.AllOutcomes()))},
			Artifact{Name: PriceHistoryFile, ContentType: "text/csv", Data: []byte(RenderPriceHistoryCSV(res.PriceHistory))},
		)
		if len(res.PriceHistory) > 0 {
			b, err := RenderReplayCSV(res)
			if err != nil {
				return nil, err
			}
			out = append(out, Artifact{Name: ReplayFile, ContentType: "text/csv", Data: b})
		}
	}
	if want(FormatJSONL) {
		b, err := MarshalOutcomesJSONL(res)
		if err != nil {
			return nil, err
		}
		out = append(out, Artifact{Name: OutcomesFile, ContentType: "application/x-ndjson", Data: b})
	}
	return out, nil
}

// RenderSweep renders the cross-seed summary of a sweep.
func RenderSweep(seeds []int64, rows []metrics.SeedSummary, formats []string) []Artifact {
	want := func(f string) bool { return len(formats) == 0 || slices.Contains(formats, f) }

	var out []Artifact
	if want(FormatMarkdown) {
		out = append(out, Artifact{Name: SweepSummaryFile, ContentType: "text/markdown", Data: []byte(RenderSweepMarkdown(seeds, rows))})
	}
	if want(FormatCSV) {
		out = append(out, Artifact{Name: SweepCSVFile, ContentType: "text/csv", Data: []byte(RenderSweepCSV(rows))})
	}
	return out
}

// WriteArtifacts writes each artifact into dir, creating it if needed.
func WriteArtifacts(dir string, artifacts []Artifact) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("reporting: create %s: %w", dir, err)
	}
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		p := filepath.Join(dir, a.Name)
		if err := os.WriteFile(p, a.Data, 0o644); err != nil {
			return paths, fmt.Errorf("reporting: write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
