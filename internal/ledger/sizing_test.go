package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultLinear() LinearSizer {
	return LinearSizer{SizeMin: 0.05, SizeMax: 0.10, BandMin: 0.88, BandMax: 0.94}
}

func TestLinearSizer_Interpolation(t *testing.T) {
	s := defaultLinear()

	// En el mínimo de la banda: 5% de 100.
	assert.InDelta(t, 5.0, s.Amount(100, 100, 0.88, 0), 1e-9)
	// Punto medio 0.91: 7.5%.
	assert.InDelta(t, 7.5, s.Amount(100, 100, 0.91, 0), 1e-9)
	// En el máximo: 10%.
	assert.InDelta(t, 10.0, s.Amount(100, 100, 0.94, 0), 1e-9)
}

func TestLinearSizer_ClampsOutsideBand(t *testing.T) {
	s := defaultLinear()

	assert.InDelta(t, 5.0, s.Amount(100, 100, 0.50, 0), 1e-9, "bajo la banda usa SizeMin")
	assert.InDelta(t, 10.0, s.Amount(100, 100, 0.99, 0), 1e-9, "sobre la banda usa SizeMax")
}

func TestLinearSizer_CappedByAvailable(t *testing.T) {
	s := defaultLinear()

	// 10% de 100 = 10, pero solo hay 3 disponibles.
	assert.InDelta(t, 3.0, s.Amount(100, 3, 0.94, 0), 1e-9)
}

func TestKellySizer_Formula(t *testing.T) {
	s := KellySizer{Multiplier: 0.25, MaxFraction: 0.20, Fallback: defaultLinear()}

	// no=0.90, p=0.97: b=1/9, q=0.03, f=((1/9)*0.97-0.03)/(1/9)=0.70,
	// quarter-Kelly = 0.175 → 17.5 de 100.
	assert.InDelta(t, 17.5, s.Amount(100, 100, 0.90, 0.97), 0.001)
}

func TestKellySizer_CapAndFloor(t *testing.T) {
	s := KellySizer{Multiplier: 0.25, MaxFraction: 0.20, Fallback: defaultLinear()}

	// p=0.99 da f=0.2275 > cap 0.20.
	assert.InDelta(t, 20.0, s.Amount(100, 100, 0.90, 0.99), 0.001)

	// Edge negativo (p < precio implícito): nunca sizing negativo.
	assert.Zero(t, s.Amount(100, 100, 0.90, 0.85))
}

func TestKellySizer_FallbackWithoutEstimate(t *testing.T) {
	s := KellySizer{Multiplier: 0.25, MaxFraction: 0.20, Fallback: defaultLinear()}

	// Sin trueProb cae al lineal: 0.91 → 7.5%.
	assert.InDelta(t, 7.5, s.Amount(100, 100, 0.91, 0), 1e-9)
	// trueProb fuera de rango también.
	assert.InDelta(t, 7.5, s.Amount(100, 100, 0.91, 1.2), 1e-9)
}

func TestKellySizer_CappedByAvailable(t *testing.T) {
	s := KellySizer{Multiplier: 0.25, MaxFraction: 0.20, Fallback: defaultLinear()}

	assert.InDelta(t, 4.0, s.Amount(100, 4, 0.90, 0.99), 1e-9)
}
