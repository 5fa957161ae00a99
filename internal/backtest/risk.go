package backtest

import (
	"errors"
	"fmt"
	"math"
)

// minRiskQty is the smallest quantity worth sending after the position cap
// has been applied.
const minRiskQty = 50.0

// RiskLimits are optional per-profile pre-trade controls. The zero value
// disables both.
type RiskLimits struct {
	// MaxPositionUSD caps the cumulative venue-A notional a profile may buy
	// within one event.
	MaxPositionUSD float64
	// CooldownTicks rejects a profile that executed within the last N ticks
	// of the event.
	CooldownTicks int
}

// Enabled reports whether any limit is active.
func (l RiskLimits) Enabled() bool {
	return l.MaxPositionUSD > 0 || l.CooldownTicks > 0
}

func (l RiskLimits) validate() error {
	var errs []error
	if l.MaxPositionUSD < 0 {
		errs = append(errs, errors.New("risk.max_position_usd must be >= 0"))
	}
	if l.CooldownTicks < 0 {
		errs = append(errs, errors.New("risk.cooldown_ticks must be >= 0"))
	}
	return errors.Join(errs...)
}

// riskBook tracks per-event exposure and last execution tick per profile.
type riskBook struct {
	limits    RiskLimits
	exposure  map[string]float64
	lastTrade map[string]int
}

func newRiskBook(limits RiskLimits) *riskBook {
	return &riskBook{
		limits:    limits,
		exposure:  make(map[string]float64),
		lastTrade: make(map[string]int),
	}
}

func (r *riskBook) reset() {
	clear(r.exposure)
	clear(r.lastTrade)
}

// check returns the quantity the profile may send at askPrice, or a reason
// when the attempt must be rejected.
func (r *riskBook) check(profile string, tick int, qty, askPrice float64) (float64, string) {
	if !r.limits.Enabled() {
		return qty, ""
	}

	if r.limits.CooldownTicks > 0 {
		if last, ok := r.lastTrade[profile]; ok && tick-last <= r.limits.CooldownTicks {
			return 0, fmt.Sprintf("cooldown: last execution at tick %d", last)
		}
	}

	if r.limits.MaxPositionUSD > 0 && askPrice > 0 {
		remaining := r.limits.MaxPositionUSD - r.exposure[profile]
		if remaining <= 0 {
			return 0, fmt.Sprintf("position limit %.2f reached", r.limits.MaxPositionUSD)
		}
		qty = math.Min(qty, remaining/askPrice)
		if qty < minRiskQty {
			return 0, fmt.Sprintf("position limit leaves %.1f units", qty)
		}
	}
	return qty, ""
}

func (r *riskBook) record(profile string, tick int, notional float64) {
	r.exposure[profile] += notional
	r.lastTrade[profile] = tick
}
