package fees

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adjust481/PolySniper/internal/domain"
)

func TestEstimatedGas(t *testing.T) {
	assert.Equal(t, 3.5, EstimatedGas(domain.GasStandard))
	assert.Equal(t, 8.5, EstimatedGas(domain.GasPriority))
	assert.Equal(t, 14.0, EstimatedGas(domain.GasFlashbots))
}

func TestTotalFeeRate(t *testing.T) {
	assert.InDelta(t, 0.01, TotalFeeRate(), 1e-12)
}

func TestCalculate_GasWithinTier(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 1))
	for _, s := range []domain.GasStrategy{domain.GasStandard, domain.GasPriority, domain.GasFlashbots} {
		p := s.Params()
		for i := 0; i < 1000; i++ {
			b := Calculate(100, 110, s, rng)
			assert.GreaterOrEqual(t, b.Gas, p.GasBaseUSD)
			assert.Less(t, b.Gas, p.GasMaxUSD)
		}
	}
}

func TestCalculate_VenueFees(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	b := Calculate(400, 500, domain.GasPriority, rng)

	assert.Zero(t, b.FeeA)
	assert.InDelta(t, 5.0, b.FeeB, 1e-12)
	assert.InDelta(t, b.FeeA+b.FeeB+b.Gas, b.Total, 1e-12)
}

func TestCalculate_Deterministic(t *testing.T) {
	a := Calculate(100, 100, domain.GasStandard, rand.New(rand.NewPCG(3, 1)))
	b := Calculate(100, 100, domain.GasStandard, rand.New(rand.NewPCG(3, 1)))
	assert.Equal(t, a, b)
}
