package pricing

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/adjust481/PolySniper/internal/domain"
)

// Ornstein–Uhlenbeck parameters of the latent probability.
const (
	ouTheta = 0.1
	ouSigma = 0.04
	ouMu    = 0.5
	ouDt    = 1.0

	stateMin = 0.05
	stateMax = 0.95
)

// Venue quote noise and venue-B bias parameters.
const (
	noiseA = 0.003
	noiseB = 0.005

	biasProb = 0.30
	biasMin  = 0.02
	biasMax  = 0.06

	coldBiasMin = 0.01
	coldBiasMax = 0.03
)

// LatentProcess evolves a mean-reverting "true probability" and derives the
// two venue quotes from it. Venue A tracks the latent value closely; venue B
// lags venue A and is occasionally overpriced, which is where the
// arbitrage spread comes from.
type LatentProcess struct {
	rng     *rand.Rand
	state   float64
	history []float64
	ready   bool
}

var _ Source = (*LatentProcess)(nil)

// NewLatentProcess creates a process drawing from rng. The process must be
// initialized before use.
func NewLatentProcess(rng *rand.Rand) *LatentProcess {
	return &LatentProcess{rng: rng}
}

// Initialize seeds the latent value and resets the venue-A history to the
// seed value.
func (p *LatentProcess) Initialize(base float64) {
	p.state = clamp(base, stateMin, stateMax)
	p.history = append(p.history[:0], p.state)
	p.ready = true
}

// State returns the current latent value.
func (p *LatentProcess) State() float64 {
	return p.state
}

// Step applies one discrete OU step and returns the new latent value.
func (p *LatentProcess) Step() (float64, error) {
	if !p.ready {
		return 0, fmt.Errorf("pricing: step: %w", domain.ErrNotInitialized)
	}
	dW := p.rng.NormFloat64() * math.Sqrt(ouDt)
	drift := ouTheta * (ouMu - p.state) * ouDt
	p.state = clamp(p.state+drift+ouSigma*dW, stateMin, stateMax)
	return p.state, nil
}

// QuoteA returns a lightly perturbed copy of the latent value and records it
// for venue B's lag.
func (p *LatentProcess) QuoteA() (float64, error) {
	if !p.ready {
		return 0, fmt.Errorf("pricing: quote a: %w", domain.ErrNotInitialized)
	}
	q := clamp(p.state+p.rng.NormFloat64()*noiseA, quoteMin, quoteMax)
	p.history = append(p.history, q)
	return q, nil
}

// QuoteB blends the second-to-last venue-A quote with the latent value.
func (p *LatentProcess) QuoteB(lagWeight float64) (float64, error) {
	if !p.ready {
		return 0, fmt.Errorf("pricing: quote b: %w", domain.ErrNotInitialized)
	}
	noise := p.rng.NormFloat64() * noiseB

	if len(p.history) < 2 {
		q := p.state + noise + uniform(p.rng, coldBiasMin, coldBiasMax)
		return clamp(q, quoteMin, quoteMax), nil
	}

	lagged := p.history[len(p.history)-2]
	q := lagged*lagWeight + p.state*(1-lagWeight) + noise
	if p.rng.Float64() < biasProb {
		q += uniform(p.rng, biasMin, biasMax)
	}
	return clamp(q, quoteMin, quoteMax), nil
}
