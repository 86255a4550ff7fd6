package ledger

// ledger.go — CapitalLedger: dueño exclusivo del capital y de las posiciones.
//
// Invariantes (deben cumplirse después de cada operación):
//   - capital_disponible + Σ(allocated abiertas) == capital_total
//   - capital_total solo cambia por P&L realizado, nunca por refresh de precio
//   - como máximo una posición OPEN por condition_id
//   - len(posiciones abiertas) <= MaxPositions
//   - exposición por región <= capital_total * MaxRegionExposure (gate de
//     entrada; posiciones existentes nunca se recortan a posteriori)
//
// Toda mutación ocurre bajo el mutex. El runner nunca toca el map de
// posiciones directamente; los lectores (dashboard) toman el mismo lock
// via Snapshot.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alf-alejandro/agente-clima/internal/domain"
	"github.com/alf-alejandro/agente-clima/internal/ports"
)

const (
	// minStopLossRatio y maxStopLossRatio acotan el ajuste en runtime.
	minStopLossRatio = 0.1
	maxStopLossRatio = 2.0

	// minOpenCapital es el capital mínimo para considerar nuevas entradas.
	minOpenCapital = 1.0
)

// Config parametriza el ledger. RegionOf mapea ciudad → región.
type Config struct {
	MaxPositions         int
	StopLossRatio        float64
	StopLossEnabled      bool
	PartialExitThreshold float64
	MaxRegionExposure    float64
	RegionOf             func(city string) string
}

// PricePair es un par de precios YES/NO frescos para una posición.
type PricePair struct {
	Yes float64
	No  float64
}

// PositionRef identifica una posición abierta para el fetch de precios,
// sin exponer el struct mutable fuera del lock.
type PositionRef struct {
	ConditionID string
	NoTokenID   string
	Slug        string
}

// Ledger es la máquina de estados de capital y posiciones.
type Ledger struct {
	mu sync.Mutex

	cfg Config

	capitalInicial    float64
	capitalTotal      float64
	capitalDisponible float64

	positions map[string]*domain.Position
	closed    []domain.ClosedRecord
	history   []domain.CapitalPoint

	sessionStart time.Time
	journal      ports.Journal // opcional, append-only
}

// New crea un Ledger con el capital inicial dado.
// journal puede ser nil (sin persistencia de auditoría).
func New(initialCapital float64, cfg Config, journal ports.Journal) *Ledger {
	if cfg.RegionOf == nil {
		cfg.RegionOf = func(city string) string { return city }
	}
	now := time.Now().UTC()
	return &Ledger{
		cfg:               cfg,
		capitalInicial:    initialCapital,
		capitalTotal:      initialCapital,
		capitalDisponible: initialCapital,
		positions:         make(map[string]*domain.Position),
		history:           []domain.CapitalPoint{{Time: now, Capital: initialCapital}},
		sessionStart:      now,
		journal:           journal,
	}
}

// CanOpen devuelve true si hay hueco para una posición más y capital mínimo.
func (l *Ledger) CanOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canOpenLocked()
}

func (l *Ledger) canOpenLocked() bool {
	return len(l.positions) < l.cfg.MaxPositions && l.capitalDisponible >= minOpenCapital
}

// Open reserva amount del capital disponible y crea la posición OPEN.
// Es un no-op silencioso (devuelve false) si el capital es insuficiente,
// el mercado ya tiene posición abierta, o no hay hueco — el caller es
// responsable de los checks de CanOpen y del monto.
func (l *Ledger) Open(opp domain.Opportunity, amount float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount <= 0 || amount > l.capitalDisponible {
		return false
	}
	if !l.canOpenLocked() {
		return false
	}
	if _, exists := l.positions[opp.ConditionID]; exists {
		return false
	}
	if opp.NoPrice <= 0 {
		return false
	}

	tokens := amount / opp.NoPrice
	pos := &domain.Position{
		ConditionID: opp.ConditionID,
		City:        opp.City,
		Question:    opp.Question,
		Slug:        opp.Slug,
		YesTokenID:  opp.YesTokenID,
		NoTokenID:   opp.NoTokenID,
		Volume:      opp.Volume,
		EndDate:     opp.EndDate,
		EntryTime:   time.Now().UTC(),
		EntryNo:     opp.NoPrice,
		CurrentNo:   opp.NoPrice,
		Allocated:   amount,
		Tokens:      tokens,
		MaxGain:     tokens - amount,
		StopTrigger: -(1.0 - opp.NoPrice) * l.cfg.StopLossRatio,
	}

	l.positions[opp.ConditionID] = pos
	l.capitalDisponible -= amount
	return true
}

// ApplyPriceUpdates actualiza el precio NO de cada posición con dato fresco
// y evalúa resolución en orden de prioridad: YES>=0.99 → LOST, NO>=0.99 →
// WON, si no stop-loss. Como máximo una transición terminal por posición
// por llamada.
func (l *Ledger) ApplyPriceUpdates(prices map[string]PricePair) {
	l.mu.Lock()
	defer l.mu.Unlock()

	type closure struct {
		cid    string
		status domain.PositionStatus
		pnl    float64
		reason string
	}
	var toClose []closure

	for cid, pos := range l.positions {
		pp, ok := prices[cid]
		if !ok {
			continue
		}
		pos.CurrentNo = pp.No

		switch {
		case pp.Yes >= 0.99:
			toClose = append(toClose, closure{
				cid: cid, status: domain.StatusLost, pnl: -pos.Allocated,
				reason: fmt.Sprintf("YES resolvió — la temperatura superó el umbral (YES=%.1f¢)", pp.Yes*100),
			})
		case pp.No >= 0.99:
			toClose = append(toClose, closure{
				cid: cid, status: domain.StatusWon, pnl: pos.MaxGain,
				reason: fmt.Sprintf("NO resolvió — la temperatura no superó el umbral (NO=%.1f¢)", pp.No*100),
			})
		case l.cfg.StopLossEnabled && pp.No-pos.EntryNo <= pos.StopTrigger:
			realized := pos.Tokens*pp.No - pos.Allocated
			toClose = append(toClose, closure{
				cid: cid, status: domain.StatusStopped, pnl: realized,
				reason: fmt.Sprintf("Stop loss @ NO=%.1f¢ (entrada %.1f¢, caída %.1f¢)",
					pp.No*100, pos.EntryNo*100, (pp.No-pos.EntryNo)*100),
			})
		}
	}

	for _, c := range toClose {
		l.closeLocked(c.cid, c.status, c.pnl, c.reason)
	}
}

// CheckPartialExits realiza el 50% de cada posición cuyo P&L no realizado
// alcanzó el umbral de captura. Dispara como máximo una vez por posición:
// el flag PartialExited lo hace idempotente.
func (l *Ledger) CheckPartialExits() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, pos := range l.positions {
		if pos.PartialExited || pos.MaxGain <= 0 {
			continue
		}
		captured := pos.UnrealizedPnL() / pos.MaxGain
		if captured < l.cfg.PartialExitThreshold {
			continue
		}

		soldTokens := pos.Tokens / 2
		soldBasis := pos.Allocated / 2
		pnl := soldTokens*pos.CurrentNo - soldBasis

		l.capitalDisponible += soldBasis + pnl
		l.capitalTotal += pnl

		pos.Tokens -= soldTokens
		pos.Allocated -= soldBasis
		pos.MaxGain = pos.Tokens - pos.Allocated
		pos.PartialExited = true

		l.appendRecordLocked(pos, domain.StatusPartial, pnl,
			fmt.Sprintf("Toma parcial 50%% @ NO=%.1f¢ (%.0f%% del max gain capturado)",
				pos.CurrentNo*100, captured*100))

		slog.Info("partial exit",
			"market", pos.Question,
			"pnl", fmt.Sprintf("%.2f", pnl),
			"remaining_allocated", fmt.Sprintf("%.2f", pos.Allocated),
		)
	}
}

// Close cierra una posición con estado terminal y P&L realizado.
// Es el único camino que saca una posición del map de abiertas.
func (l *Ledger) Close(conditionID string, status domain.PositionStatus, pnl float64, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked(conditionID, status, pnl, reason)
}

// CloseAtCurrentPrice cierra una posición realizando P&L al último precio
// NO conocido, bajo el lock para que el precio y el cierre sean atómicos.
// El estado final depende del signo: ganancia = WON, lo demás = LOST.
// Devuelve ok=false si la posición ya no existe.
func (l *Ledger) CloseAtCurrentPrice(conditionID, reason string) (domain.PositionStatus, float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[conditionID]
	if !ok {
		return "", 0, false
	}

	pnl := pos.Tokens*pos.CurrentNo - pos.Allocated
	status := domain.StatusLost
	if pnl > 0 {
		status = domain.StatusWon
	}
	l.closeLocked(conditionID, status, pnl, reason)
	return status, pnl, true
}

// closeLocked recupera allocated+pnl al disponible, suma pnl al total y
// registra el cierre inmutable. Llamar con el lock tomado.
func (l *Ledger) closeLocked(conditionID string, status domain.PositionStatus, pnl float64, reason string) {
	pos, ok := l.positions[conditionID]
	if !ok {
		return
	}

	l.capitalDisponible += pos.Allocated + pnl
	l.capitalTotal += pnl

	l.appendRecordLocked(pos, status, pnl, reason)
	delete(l.positions, conditionID)

	slog.Info("position closed",
		"market", pos.Question,
		"status", string(status),
		"pnl", fmt.Sprintf("%.2f", pnl),
	)
}

// appendRecordLocked crea el ClosedRecord y lo manda al journal si hay.
func (l *Ledger) appendRecordLocked(pos *domain.Position, status domain.PositionStatus, pnl float64, reason string) {
	rec := domain.ClosedRecord{
		ID:          uuid.New().String(),
		ConditionID: pos.ConditionID,
		City:        pos.City,
		Question:    pos.Question,
		Status:      status,
		EntryNo:     pos.EntryNo,
		ExitNo:      pos.CurrentNo,
		Allocated:   pos.Allocated,
		PnL:         pnl,
		Reason:      reason,
		EntryTime:   pos.EntryTime,
		CloseTime:   time.Now().UTC(),
	}
	l.closed = append(l.closed, rec)

	if l.journal != nil {
		if err := l.journal.RecordClose(context.Background(), rec); err != nil {
			slog.Warn("journal write failed", "err", err)
		}
	}
}

// RegionHasCapacity devuelve true si la región de la ciudad todavía tiene
// hueco bajo el cap de exposición. Una región llena bloquea entradas nuevas
// pero nunca recorta posiciones existentes.
func (l *Ledger) RegionHasCapacity(city string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	region := l.cfg.RegionOf(city)
	var allocated float64
	for _, pos := range l.positions {
		if l.cfg.RegionOf(pos.City) == region {
			allocated += pos.Allocated
		}
	}
	return allocated < l.capitalTotal*l.cfg.MaxRegionExposure
}

// RecordCapital añade un punto a la serie capital-sobre-tiempo.
func (l *Ledger) RecordCapital() {
	l.mu.Lock()
	defer l.mu.Unlock()

	point := domain.CapitalPoint{Time: time.Now().UTC(), Capital: l.capitalTotal}
	l.history = append(l.history, point)

	if l.journal != nil {
		if err := l.journal.RecordCapital(context.Background(), point); err != nil {
			slog.Warn("journal write failed", "err", err)
		}
	}
}

// ExcludedIDs devuelve los condition IDs que el scanner debe saltar:
// posiciones abiertas y mercados ya cerrados en esta sesión.
func (l *Ledger) ExcludedIDs() map[string]bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make(map[string]bool, len(l.positions)+len(l.closed))
	for cid := range l.positions {
		ids[cid] = true
	}
	for _, rec := range l.closed {
		ids[rec.ConditionID] = true
	}
	return ids
}

// OpenPositionRefs devuelve los identificadores de las posiciones abiertas
// para hacer fetch de precios fuera del lock.
func (l *Ledger) OpenPositionRefs() []PositionRef {
	l.mu.Lock()
	defer l.mu.Unlock()

	refs := make([]PositionRef, 0, len(l.positions))
	for cid, pos := range l.positions {
		refs = append(refs, PositionRef{
			ConditionID: cid,
			NoTokenID:   pos.NoTokenID,
			Slug:        pos.Slug,
		})
	}
	return refs
}

// OpenPositionCopies devuelve copias de las posiciones abiertas, para
// evaluarlas fuera del lock (p.ej. consultas al oráculo).
func (l *Ledger) OpenPositionCopies() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// UpdateCurrentPrice refresca el precio NO de una posición sin evaluar
// cierres. Lo usa el loop de precios para mantener el P&L flotante vivo.
// Devuelve false si la posición ya no existe.
func (l *Ledger) UpdateCurrentPrice(conditionID string, no float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[conditionID]
	if !ok {
		return false
	}
	pos.CurrentNo = no
	return true
}

// SetStopLossRatio ajusta el ratio de stop-loss en runtime, validado a un
// rango acotado. Afecta solo a posiciones nuevas: los triggers existentes
// se calcularon a la entrada y no se recalculan.
func (l *Ledger) SetStopLossRatio(ratio float64) error {
	if ratio < minStopLossRatio || ratio > maxStopLossRatio {
		return fmt.Errorf("stop loss ratio %.2f out of range [%.1f, %.1f]",
			ratio, minStopLossRatio, maxStopLossRatio)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.StopLossRatio = ratio
	return nil
}

// StopLossRatio devuelve el ratio de stop-loss vigente.
func (l *Ledger) StopLossRatio() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.StopLossRatio
}

// CapitalTotal devuelve el capital total actual.
func (l *Ledger) CapitalTotal() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capitalTotal
}

// CapitalDisponible devuelve el capital no asignado.
func (l *Ledger) CapitalDisponible() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capitalDisponible
}

// OpenCount devuelve el número de posiciones abiertas.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Snapshot devuelve la vista completa de solo lectura del ledger.
func (l *Ledger) Snapshot() domain.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := domain.Snapshot{
		CapitalInicial:    l.capitalInicial,
		CapitalTotal:      l.capitalTotal,
		CapitalDisponible: l.capitalDisponible,
		PnL:               l.capitalTotal - l.capitalInicial,
		SessionStart:      l.sessionStart,
	}
	if l.capitalInicial > 0 {
		snap.ROI = snap.PnL / l.capitalInicial * 100
	}

	for _, rec := range l.closed {
		switch rec.Status {
		case domain.StatusWon:
			snap.Won++
		case domain.StatusLost:
			snap.Lost++
		case domain.StatusStopped:
			snap.Stopped++
		case domain.StatusPartial:
			snap.Partials++
		}
	}

	snap.OpenPositions = make([]domain.OpenSummary, 0, len(l.positions))
	for cid, pos := range l.positions {
		snap.OpenPositions = append(snap.OpenPositions, domain.OpenSummary{
			ConditionID: cid,
			City:        pos.City,
			Question:    pos.Question,
			EntryNo:     pos.EntryNo,
			CurrentNo:   pos.CurrentNo,
			Allocated:   pos.Allocated,
			PnL:         pos.UnrealizedPnL(),
			PartialDone: pos.PartialExited,
			EntryTime:   pos.EntryTime,
		})
	}
	sortOpenSummaries(snap.OpenPositions)

	snap.ClosedPositions = append([]domain.ClosedRecord(nil), l.closed...)
	snap.CapitalHistory = append([]domain.CapitalPoint(nil), l.history...)
	snap.Insights = buildInsights(l.closed)

	return snap
}
