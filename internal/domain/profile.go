package domain

import "fmt"

// ParticipantProfile is a static description of a competing trader type.
type ParticipantProfile struct {
	Name         string      `json:"name"`
	DiscoveryMs  float64     `json:"discovery_ms"`
	SubmissionMs float64     `json:"submission_ms"`
	FillMs       float64     `json:"fill_ms"`
	Strategy     GasStrategy `json:"gas_strategy"`
	CapitalUSD   float64     `json:"capital_usd"`
	APIRateLimit int         `json:"api_rate_limit"`
}

// TotalLatencyMs is the un-jittered end-to-end latency of the profile.
func (p ParticipantProfile) TotalLatencyMs() float64 {
	return p.DiscoveryMs + p.SubmissionMs + p.FillMs
}

// Profile names.
const (
	ProfileRetail  = "retail"
	ProfileSemiPro = "semi_pro"
	ProfilePro     = "pro"
)

var profileTable = map[string]ParticipantProfile{
	ProfileRetail:  {Name: ProfileRetail, DiscoveryMs: 150, SubmissionMs: 100, FillMs: 80, Strategy: GasStandard, CapitalUSD: 1000, APIRateLimit: 100},
	ProfileSemiPro: {Name: ProfileSemiPro, DiscoveryMs: 50, SubmissionMs: 30, FillMs: 40, Strategy: GasPriority, CapitalUSD: 10000, APIRateLimit: 1000},
	ProfilePro:     {Name: ProfilePro, DiscoveryMs: 15, SubmissionMs: 15, FillMs: 15, Strategy: GasFlashbots, CapitalUSD: 50000, APIRateLimit: 5000},
}

// DefaultProfiles is the slowest-to-fastest ordering used when a run does not
// name its participants.
var DefaultProfiles = []string{ProfileRetail, ProfileSemiPro, ProfilePro}

// LookupProfile returns the built-in profile with the given name.
func LookupProfile(name string) (ParticipantProfile, error) {
	p, ok := profileTable[name]
	if !ok {
		return ParticipantProfile{}, fmt.Errorf("profile %q: %w", name, ErrUnknownProfile)
	}
	return p, nil
}
