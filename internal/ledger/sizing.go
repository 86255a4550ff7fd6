package ledger

// sizing.go — estrategias de sizing intercambiables.
//
// Ambas devuelven el monto a asignar a una entrada dada; el resultado
// siempre se capea al capital disponible.

// Sizer calcula el monto de una entrada. trueProb es la estimación del
// oráculo de que NO resuelva (0 = sin estimación).
type Sizer interface {
	Amount(capitalTotal, capitalDisponible, noPrice, trueProb float64) float64
}

// LinearSizer escala linealmente entre SizeMin y SizeMax del capital total
// según dónde cae el precio NO dentro de la banda aceptada: mayor
// probabilidad implícita → stake mayor.
type LinearSizer struct {
	SizeMin float64 // fracción del capital total en BandMin
	SizeMax float64 // fracción del capital total en BandMax
	BandMin float64 // precio NO mínimo aceptado
	BandMax float64 // precio NO máximo aceptado
}

// Amount implementa Sizer.
func (s LinearSizer) Amount(capitalTotal, capitalDisponible, noPrice, _ float64) float64 {
	bandWidth := s.BandMax - s.BandMin
	pct := s.SizeMin
	if bandWidth > 0 {
		t := (noPrice - s.BandMin) / bandWidth
		t = clamp01(t)
		pct = s.SizeMin + t*(s.SizeMax-s.SizeMin)
	}
	return min(capitalTotal*pct, capitalDisponible)
}

// KellySizer aplica Kelly fraccional con la probabilidad real estimada por
// el oráculo: f = (b·p − q)/b con b = (1−no)/no, p = prob de que NO
// resuelva, q = 1−p, escalado por Multiplier (quarter-Kelly por defecto) y
// capeado a MaxFraction del capital total. Nunca devuelve sizing negativo.
// Sin estimación del oráculo cae al Fallback lineal.
type KellySizer struct {
	Multiplier  float64 // 0.25 = quarter-Kelly
	MaxFraction float64 // cap duro como fracción del capital total
	Fallback    LinearSizer
}

// Amount implementa Sizer.
func (s KellySizer) Amount(capitalTotal, capitalDisponible, noPrice, trueProb float64) float64 {
	if trueProb <= 0 || trueProb >= 1 || noPrice <= 0 || noPrice >= 1 {
		return s.Fallback.Amount(capitalTotal, capitalDisponible, noPrice, 0)
	}

	b := (1 - noPrice) / noPrice
	q := 1 - trueProb
	f := (b*trueProb - q) / b
	f *= s.Multiplier

	if f <= 0 {
		return 0
	}
	if f > s.MaxFraction {
		f = s.MaxFraction
	}
	return min(capitalTotal*f, capitalDisponible)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
