package domain

import "time"

// Market representa un mercado binario de temperatura en Polymarket.
// Cada evento diario por ciudad contiene varios mercados (uno por umbral).
type Market struct {
	ConditionID string
	Slug        string
	City        string
	Question    string
	YesPrice    float64
	NoPrice     float64
	Volume      float64
	EndDate     time.Time
	YesTokenID  string
	NoTokenID   string
}

// Expired devuelve true si el mercado ya pasó su fecha de resolución.
func (m Market) Expired(now time.Time) bool {
	return !m.EndDate.IsZero() && now.After(m.EndDate)
}

// ProfitCents devuelve el margen teórico en centavos de comprar NO
// y esperar la resolución favorable.
func (m Market) ProfitCents() float64 {
	return (1.0 - m.NoPrice) * 100
}
