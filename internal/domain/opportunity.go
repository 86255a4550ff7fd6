package domain

import "time"

// Opportunity es un candidato de entrada producido por el scanner.
// Es un snapshot inmutable: se consume una vez, descartándolo o
// promoviéndolo a Position en el ledger.
type Opportunity struct {
	ConditionID string    `json:"condition_id"`
	City        string    `json:"city"`
	Question    string    `json:"question"`
	Slug        string    `json:"slug"`
	YesPrice    float64   `json:"yes_price"`
	NoPrice     float64   `json:"no_price"`
	Volume      float64   `json:"volume"`
	EndDate     time.Time `json:"end_date"`
	ProfitCents float64   `json:"profit_cents"`
	YesTokenID  string    `json:"-"`
	NoTokenID   string    `json:"-"`
	ScannedAt   time.Time `json:"scanned_at"`
}
