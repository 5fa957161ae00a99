package reporting

import "github.com/adjust481/PolySniper/internal/domain"

// Verdict classifies whether faster profiles earned more.
type Verdict string

const (
	// VerdictStrict means pro > semi_pro > retail on total net profit.
	VerdictStrict Verdict = "strict"
	// VerdictWeak means pro >= semi_pro >= retail with at least one tie.
	VerdictWeak Verdict = "weak"
	// VerdictViolated means a slower profile out-earned a faster one.
	VerdictViolated Verdict = "violated"
)

// OrderingVerdict compares total net profit of the three built-in profiles.
// A missing profile counts as zero.
func OrderingVerdict(metrics map[string]domain.ProfileMetrics) Verdict {
	pro := metrics[domain.ProfilePro].NetProfit
	semi := metrics[domain.ProfileSemiPro].NetProfit
	retail := metrics[domain.ProfileRetail].NetProfit

	switch {
	case pro > semi && semi > retail:
		return VerdictStrict
	case pro >= semi && semi >= retail:
		return VerdictWeak
	default:
		return VerdictViolated
	}
}

// TotalNetProfit sums net profit across every profile.
func TotalNetProfit(metrics []domain.ProfileMetrics) float64 {
	var total float64
	for _, m := range metrics {
		total += m.NetProfit
	}
	return total
}
