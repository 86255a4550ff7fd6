package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Gamma API ---

// gammaEvent es un evento diario devuelto por GET /events?slug=.
type gammaEvent struct {
	Slug    string        `json:"slug"`
	Title   string        `json:"title"`
	Markets []gammaMarket `json:"markets"`
}

// gammaMarket es un mercado individual dentro de un evento.
// Gamma devuelve varios campos numéricos como strings JSON.
type gammaMarket struct {
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	Slug        string `json:"slug"`
	EndDate     string `json:"endDate"`
	// OutcomePrices es un array JSON serializado como string:
	// "[\"0.08\", \"0.92\"]" — primero YES, segundo NO.
	OutcomePrices string      `json:"outcomePrices"`
	Volume        json.Number `json:"volume"`
	// ClobTokenIDs es otro array serializado como string, mismo orden.
	ClobTokenIDs string `json:"clobTokenIds"`
	Active       bool   `json:"active"`
	Closed       bool   `json:"closed"`
}

// --- CLOB API ---

// bookResponse es la respuesta de GET /book?token_id=.
type bookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// lastTradeResponse es la respuesta de GET /last-trade-price?token_id=.
type lastTradeResponse struct {
	Price string `json:"price"`
}
