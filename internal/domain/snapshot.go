package domain

import "time"

// Snapshot es la vista de solo lectura del ledger en un instante,
// consumida por el dashboard y el websocket hub.
type Snapshot struct {
	CapitalInicial    float64        `json:"capital_inicial"`
	CapitalTotal      float64        `json:"capital_total"`
	CapitalDisponible float64        `json:"capital_disponible"`
	PnL               float64        `json:"pnl"`
	ROI               float64        `json:"roi"`
	Won               int            `json:"won"`
	Lost              int            `json:"lost"`
	Stopped           int            `json:"stopped"`
	Partials          int            `json:"partials"`
	OpenPositions     []OpenSummary  `json:"open_positions"`
	ClosedPositions   []ClosedRecord `json:"closed_positions"`
	CapitalHistory    []CapitalPoint `json:"capital_history"`
	Insights          *Insights      `json:"insights,omitempty"`
	SessionStart      time.Time      `json:"session_start"`
}

// OpenSummary es el resumen de una posición abierta para el dashboard.
type OpenSummary struct {
	ConditionID string    `json:"condition_id"`
	City        string    `json:"city"`
	Question    string    `json:"question"`
	EntryNo     float64   `json:"entry_no"`
	CurrentNo   float64   `json:"current_no"`
	Allocated   float64   `json:"allocated"`
	PnL         float64   `json:"pnl"`
	PartialDone bool      `json:"partial_done"`
	EntryTime   time.Time `json:"entry_time"`
}

// CapitalPoint es un punto de la serie capital-sobre-tiempo.
type CapitalPoint struct {
	Time    time.Time `json:"time"`
	Capital float64   `json:"capital"`
}

// Insights son estadísticas de win-rate derivadas de los trades resueltos.
// Solo se calculan con 5 o más trades terminales.
type Insights struct {
	ByHour []BucketStat `json:"by_hour"`
	ByCity []BucketStat `json:"by_city"`
}

// BucketStat es el win-rate de un bucket (hora de entrada o ciudad).
// Los buckets con menos de 2 trades no se reportan.
type BucketStat struct {
	Key     string  `json:"key"`
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
	PnL     float64 `json:"pnl"`
}
