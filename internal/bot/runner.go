package bot

// runner.go — orquestación del agente: tres loops cooperantes.
//
//   - scan/entry: busca candidatos, aplica gates y abre posiciones
//   - precios: mantiene fresco el P&L flotante entre scans
//   - oráculo: evalúa posiciones abiertas y ejecuta salidas recomendadas
//
// Cada loop es un goroutine con ticker, cancelable por el contexto del run.
// Todo el I/O de red ocurre fuera del lock del ledger; solo la mutación de
// estado pasa por sus operaciones. Ninguna iteración puede tumbar a otra:
// cada una se aísla con recover y loguea.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alf-alejandro/agente-clima/internal/domain"
	"github.com/alf-alejandro/agente-clima/internal/ledger"
	"github.com/alf-alejandro/agente-clima/internal/metrics"
	"github.com/alf-alejandro/agente-clima/internal/ports"
	"github.com/alf-alejandro/agente-clima/internal/scanner"
)

const (
	// minEntryAmount: por debajo de esto una entrada no vale el spread.
	minEntryAmount = 1.0
	// maxLastOpportunities acota la lista que consume el dashboard.
	maxLastOpportunities = 20
)

// Config parametriza el runner.
type Config struct {
	ScanInterval  time.Duration
	PriceInterval time.Duration
	AgentInterval time.Duration
	// VerifyTopCandidates: cuántos candidatos top se re-verifican contra
	// el book en vivo antes de entrar.
	VerifyTopCandidates int
	// HighInfoHoursUTC: horas UTC donde el scan corre al doble de frecuencia.
	HighInfoHoursUTC []int
	AgentEnabled     bool
}

// Runner coordina los tres ciclos sobre el ledger compartido.
type Runner struct {
	cfg     Config
	ledger  *ledger.Ledger
	scanner *scanner.Scanner
	fetcher priceFetcher
	sizer   ledger.Sizer
	advisor ports.Advisor
	notify  ports.Notifier

	// publish empuja el snapshot al hub de websockets tras cada ciclo.
	// Opcional.
	publish func(domain.Snapshot)

	mu      sync.Mutex // estado de arranque/parada
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// priceDone se cierra cuando el loop de precios muere; el watchdog del
	// scan lo detecta y lo rearranca.
	priceDone chan struct{}
	runCtx    context.Context

	// aiMu serializa las llamadas al oráculo: una sola en vuelo, siempre.
	aiMu sync.Mutex

	agentEnabled atomic.Bool
	scanCount    atomic.Int64
	aiCalls      atomic.Int64

	oppMu    sync.Mutex
	lastOpps []domain.Opportunity

	lastPriceUpdate atomic.Int64 // unix nanos, 0 = nunca

	// contadores previos para derivar deltas de métricas del snapshot.
	// metricsMu los protege: tanto el ciclo de scan como el pase del
	// oráculo llaman a syncMetrics desde sus propias goroutines.
	metricsMu sync.Mutex

	prevWon, prevLost, prevStopped, prevPartials int
}

// New crea un Runner. advisor y notify pueden ser nil; publish puede ser nil.
func New(cfg Config, lg *ledger.Ledger, sc *scanner.Scanner, books ports.BookProvider, markets ports.MarketProvider, sizer ledger.Sizer, advisor ports.Advisor, notify ports.Notifier, publish func(domain.Snapshot)) *Runner {
	r := &Runner{
		cfg:     cfg,
		ledger:  lg,
		scanner: sc,
		fetcher: priceFetcher{books: books, markets: markets},
		sizer:   sizer,
		advisor: advisor,
		notify:  notify,
		publish: publish,
	}
	r.agentEnabled.Store(cfg.AgentEnabled && advisor != nil)
	return r
}

// Start arranca los tres loops. Es idempotente: un runner ya corriendo
// ignora la llamada.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.runCtx = runCtx
	r.cancel = cancel
	r.running = true
	r.priceDone = r.spawnPriceLoop(runCtx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.scanLoop(runCtx)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.advisoryLoop(runCtx)
	}()

	slog.Info("bot started",
		"scan_interval", r.cfg.ScanInterval,
		"price_interval", r.cfg.PriceInterval,
		"agent_enabled", r.agentEnabled.Load(),
	)
}

// Stop señala la parada cooperativa y espera a que los loops terminen.
// Las llamadas HTTP en vuelo completan o expiran por su propio timeout.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	slog.Info("bot stopped")
}

// IsRunning devuelve true si los loops están activos.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// EnableAgent activa el ciclo del oráculo en runtime.
func (r *Runner) EnableAgent() {
	if r.advisor != nil {
		r.agentEnabled.Store(true)
	}
}

// DisableAgent desactiva el ciclo del oráculo en runtime.
func (r *Runner) DisableAgent() {
	r.agentEnabled.Store(false)
}

// Status es la salud del bot y sus threads para el dashboard.
type Status struct {
	Running         bool                 `json:"running"`
	ScanCount       int64                `json:"scan_count"`
	AgentEnabled    bool                 `json:"agent_enabled"`
	AICallCount     int64                `json:"ai_call_count"`
	PriceLoopAlive  bool                 `json:"price_loop_alive"`
	LastPriceUpdate *time.Time           `json:"last_price_update,omitempty"`
	Opportunities   []domain.Opportunity `json:"last_opportunities"`
}

// Status devuelve el estado actual del runner.
func (r *Runner) Status() Status {
	st := Status{
		Running:      r.IsRunning(),
		ScanCount:    r.scanCount.Load(),
		AgentEnabled: r.agentEnabled.Load(),
		AICallCount:  r.aiCalls.Load(),
	}

	r.mu.Lock()
	if r.running && r.priceDone != nil {
		select {
		case <-r.priceDone:
		default:
			st.PriceLoopAlive = true
		}
	}
	r.mu.Unlock()

	if ns := r.lastPriceUpdate.Load(); ns > 0 {
		t := time.Unix(0, ns).UTC()
		st.LastPriceUpdate = &t
	}

	r.oppMu.Lock()
	st.Opportunities = append([]domain.Opportunity(nil), r.lastOpps...)
	r.oppMu.Unlock()

	return st
}

// --- Scan/entry loop ---

// scanLoop ejecuta el ciclo de entrada en su intervalo, reducido a la mitad
// dentro de las ventanas de alta información.
func (r *Runner) scanLoop(ctx context.Context) {
	slog.Info("scan loop started")
	r.safeCycle(ctx)

	timer := time.NewTimer(r.currentScanInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scan loop stopped")
			return
		case <-timer.C:
			r.safeCycle(ctx)
			timer.Reset(r.currentScanInterval())
		}
	}
}

// currentScanInterval devuelve el intervalo vigente: la mitad del base si
// la hora UTC actual es una ventana de alta información (forecasts nuevos).
func (r *Runner) currentScanInterval() time.Duration {
	if slices.Contains(r.cfg.HighInfoHoursUTC, time.Now().UTC().Hour()) {
		return r.cfg.ScanInterval / 2
	}
	return r.cfg.ScanInterval
}

// safeCycle aísla una iteración: un panic en un ciclo nunca mata el loop.
func (r *Runner) safeCycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in scan cycle", "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	r.cycle(ctx)
}

// cycle es una pasada completa de scan → gates → entrada → updates.
func (r *Runner) cycle(ctx context.Context) {
	r.scanCount.Add(1)
	metrics.Scans.Inc()

	// Watchdog: rearrancar el loop de precios si murió.
	r.mu.Lock()
	if r.running {
		select {
		case <-r.priceDone:
			slog.Warn("price loop died — restarting")
			r.priceDone = r.spawnPriceLoop(r.runCtx)
		default:
		}
	}
	r.mu.Unlock()

	// 1. IDs a excluir (lock corto).
	excluded := r.ledger.ExcludedIDs()

	// 2. Scan (sin lock — HTTP externo).
	opps := r.scanner.Scan(ctx, excluded)
	metrics.OpportunitiesFound.Set(float64(len(opps)))

	// 3. Verificar los mejores candidatos contra el book en vivo.
	opps = r.verifyTopCandidates(ctx, opps)

	r.oppMu.Lock()
	if len(opps) > maxLastOpportunities {
		r.lastOpps = append([]domain.Opportunity(nil), opps[:maxLastOpportunities]...)
	} else {
		r.lastOpps = append([]domain.Opportunity(nil), opps...)
	}
	r.oppMu.Unlock()

	// 4. Precios frescos de las posiciones abiertas (sin lock).
	prices := r.fetcher.fetchAll(ctx, r.ledger.OpenPositionRefs())

	// 5. Entradas con gates de capacidad, región y sizing.
	r.enterPositions(ctx, opps)

	// 6. Resoluciones, stop-loss y tomas parciales (bajo lock, sin HTTP).
	if len(prices) > 0 {
		r.ledger.ApplyPriceUpdates(prices)
	}
	r.ledger.CheckPartialExits()
	r.ledger.RecordCapital()

	snap := r.ledger.Snapshot()
	r.syncMetrics(snap)
	if r.publish != nil {
		r.publish(snap)
	}
	if r.notify != nil {
		if err := r.notify.NotifyScan(ctx, opps); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
}

// verifyTopCandidates re-verifica el precio de entrada de los primeros N
// candidatos contra el book en vivo y descarta los que se movieron fuera
// de la banda. Un book inaccesible deja pasar al candidato con su precio
// snapshot: dato-no-disponible no es descalificante.
func (r *Runner) verifyTopCandidates(ctx context.Context, opps []domain.Opportunity) []domain.Opportunity {
	kept := opps[:0]
	for i, opp := range opps {
		if i >= r.cfg.VerifyTopCandidates || opp.NoTokenID == "" {
			kept = append(kept, opp)
			continue
		}

		book, err := r.fetcher.books.FetchOrderBook(ctx, opp.NoTokenID)
		if err != nil {
			kept = append(kept, opp)
			continue
		}
		live := book.BuyPrice()
		if live == 0 {
			kept = append(kept, opp)
			continue
		}
		if !r.scanner.InBand(live) {
			slog.Info("candidate dropped — live price out of band",
				"market", opp.Question, "scan_no", opp.NoPrice, "live_no", live)
			continue
		}

		opp.NoPrice = live
		opp.ProfitCents = (1 - live) * 100
		kept = append(kept, opp)
	}
	return kept
}

// enterPositions aplica los gates de posición/capital/región y abre las
// entradas que quepan. Las denegaciones de política son no-ops logueados,
// nunca errores.
func (r *Runner) enterPositions(ctx context.Context, opps []domain.Opportunity) {
	for _, opp := range opps {
		if ctx.Err() != nil {
			return
		}
		if !r.ledger.CanOpen() {
			break
		}
		if !r.ledger.RegionHasCapacity(opp.City) {
			slog.Info("region full, skipping", "city", opp.City, "market", opp.Question)
			continue
		}

		trueProb, skip := r.candidateAdvice(ctx, opp)
		if skip {
			continue
		}

		amount := r.sizer.Amount(
			r.ledger.CapitalTotal(),
			r.ledger.CapitalDisponible(),
			opp.NoPrice,
			trueProb,
		)
		if amount < minEntryAmount {
			continue
		}

		if r.ledger.Open(opp, amount) {
			metrics.PositionsOpened.Inc()
			slog.Info("position opened",
				"market", opp.Question,
				"no_price", fmt.Sprintf("%.1f¢", opp.NoPrice*100),
				"amount", fmt.Sprintf("%.2f", amount),
			)
		}
	}
}

// candidateAdvice consulta el oráculo para un candidato si está activo.
// Devuelve la probabilidad estimada de NO (0 = sin estimación) y si la
// recomendación es saltar la entrada. Sin opinión = política por defecto.
func (r *Runner) candidateAdvice(ctx context.Context, opp domain.Opportunity) (trueProb float64, skip bool) {
	if !r.agentEnabled.Load() || r.advisor == nil {
		return 0, false
	}

	r.aiMu.Lock()
	defer r.aiMu.Unlock()

	r.aiCalls.Add(1)
	advice, err := r.advisor.EvaluateCandidate(ctx, opp)
	if err != nil {
		metrics.AdvisorCalls.WithLabelValues("error").Inc()
		slog.Warn("candidate advice failed", "market", opp.Question, "err", err)
		return 0, false
	}
	if advice == nil {
		metrics.AdvisorCalls.WithLabelValues("no_opinion").Inc()
		return 0, false
	}
	metrics.AdvisorCalls.WithLabelValues("ok").Inc()

	if advice.Recommendation == ports.RecommendSkip {
		slog.Info("candidate skipped by advisor",
			"market", opp.Question, "reasoning", advice.Reasoning)
		return advice.TrueProbNo, true
	}
	return advice.TrueProbNo, false
}

// --- Price refresh loop ---

// spawnPriceLoop lanza el loop de precios y devuelve el canal que se
// cierra cuando muere (por cancelación o panic).
func (r *Runner) spawnPriceLoop(ctx context.Context) chan struct{} {
	done := make(chan struct{})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		r.priceLoop(ctx)
	}()
	return done
}

// priceLoop mantiene el precio NO de cada posición abierta fresco entre
// scans, para que el dashboard vea P&L casi en vivo.
func (r *Runner) priceLoop(ctx context.Context) {
	slog.Info("price loop started")
	ticker := time.NewTicker(r.cfg.PriceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("price loop stopped")
			return
		case <-ticker.C:
			r.safeRefreshPrices(ctx)
		}
	}
}

func (r *Runner) safeRefreshPrices(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in price refresh", "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	r.refreshPrices(ctx)
}

// refreshPrices hace una pasada de la fuente de dos niveles sobre las
// posiciones abiertas. Solo actualiza current_no: las resoluciones las
// evalúa el ciclo de scan.
func (r *Runner) refreshPrices(ctx context.Context) {
	refs := r.ledger.OpenPositionRefs()
	br := &clobBreaker{}
	updated := 0

	for _, ref := range refs {
		if ctx.Err() != nil {
			return
		}
		pp, ok := r.fetcher.fetchPair(ctx, ref, br)
		if !ok {
			continue
		}
		if r.ledger.UpdateCurrentPrice(ref.ConditionID, pp.No) {
			updated++
		}
	}

	if updated > 0 || len(refs) == 0 {
		r.lastPriceUpdate.Store(time.Now().UTC().UnixNano())
	}
	if updated > 0 && r.publish != nil {
		r.publish(r.ledger.Snapshot())
	}
}

// syncMetrics deriva los contadores de salida de los totales del snapshot.
func (r *Runner) syncMetrics(snap domain.Snapshot) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()

	metrics.CapitalTotal.Set(snap.CapitalTotal)
	metrics.CapitalAvailable.Set(snap.CapitalDisponible)
	metrics.OpenPositions.Set(float64(len(snap.OpenPositions)))

	if d := snap.Won - r.prevWon; d > 0 {
		metrics.Exits.WithLabelValues("won").Add(float64(d))
	}
	if d := snap.Lost - r.prevLost; d > 0 {
		metrics.Exits.WithLabelValues("lost").Add(float64(d))
	}
	if d := snap.Stopped - r.prevStopped; d > 0 {
		metrics.Exits.WithLabelValues("stopped").Add(float64(d))
	}
	if d := snap.Partials - r.prevPartials; d > 0 {
		metrics.Exits.WithLabelValues("partial").Add(float64(d))
	}
	r.prevWon, r.prevLost, r.prevStopped, r.prevPartials = snap.Won, snap.Lost, snap.Stopped, snap.Partials
}
