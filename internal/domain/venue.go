package domain

import (
	"fmt"
	"strings"
)

// Venue identifies one of the two simulated trading venues.
type Venue string

const (
	// VenueA is the liquid, low-latency venue where the arbitrage buys.
	VenueA Venue = "polymarket"
	// VenueB is the thinner, slower venue where the arbitrage sells.
	VenueB Venue = "opinion"
)

// Side is the taker direction of an execution.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ExecutionMode selects whether the two legs settle atomically.
type ExecutionMode string

const (
	ExecutionAtomic    ExecutionMode = "atomic"
	ExecutionNonAtomic ExecutionMode = "non_atomic"
)

// ParseExecutionMode maps a config string onto an ExecutionMode.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(strings.ToLower(strings.TrimSpace(s))) {
	case ExecutionAtomic:
		return ExecutionAtomic, nil
	case ExecutionNonAtomic, "":
		return ExecutionNonAtomic, nil
	default:
		return "", fmt.Errorf("execution mode %q: %w", s, ErrInvalidConfig)
	}
}
