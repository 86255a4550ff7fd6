package domain

import "time"

// PositionStatus es el estado de una posición o de un registro cerrado.
type PositionStatus string

const (
	StatusOpen    PositionStatus = "OPEN"
	StatusWon     PositionStatus = "WON"     // NO resolvió favorable
	StatusLost    PositionStatus = "LOST"    // YES resolvió
	StatusStopped PositionStatus = "STOPPED" // stop-loss disparado
	// StatusPartial marca un registro de toma parcial de ganancias.
	// No es terminal: la posición original sigue OPEN con tamaño reducido.
	StatusPartial PositionStatus = "PARTIAL"
)

// Terminal devuelve true si el estado cierra la posición definitivamente.
func (s PositionStatus) Terminal() bool {
	return s == StatusWon || s == StatusLost || s == StatusStopped
}

// Position es una posición NO abierta. Es propiedad exclusiva del ledger:
// solo se muta bajo su lock.
type Position struct {
	ConditionID string
	City        string
	Question    string
	Slug        string
	YesTokenID  string
	NoTokenID   string
	Volume      float64
	EndDate     time.Time

	EntryTime time.Time
	EntryNo   float64
	CurrentNo float64
	Allocated float64
	Tokens    float64 // allocated / entry_no
	MaxGain   float64 // tokens*1 - allocated
	// StopTrigger es el delta de caída que dispara el stop:
	// -(1 - entry_no) * stop_loss_ratio. Escala con el riesgo propio
	// de la posición, no es un monto fijo.
	StopTrigger   float64
	PartialExited bool
}

// UnrealizedPnL devuelve el P&L flotante al precio NO actual.
func (p Position) UnrealizedPnL() float64 {
	return p.Tokens*p.CurrentNo - p.Allocated
}

// ClosedRecord es el registro inmutable de un cierre (terminal o parcial).
type ClosedRecord struct {
	ID          string // uuid del registro
	ConditionID string
	City        string
	Question    string
	Status      PositionStatus
	EntryNo     float64
	ExitNo      float64
	Allocated   float64
	PnL         float64
	Reason      string
	EntryTime   time.Time
	CloseTime   time.Time
}
