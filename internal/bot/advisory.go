package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/alf-alejandro/agente-clima/internal/metrics"
	"github.com/alf-alejandro/agente-clima/internal/ports"
)

// advisoryLoop es el ciclo del oráculo: cada intervalo evalúa las
// posiciones abiertas y ejecuta las salidas recomendadas. El primer pase
// espera un intervalo completo: recién arrancado no hay nada que evaluar.
func (r *Runner) advisoryLoop(ctx context.Context) {
	if r.advisor == nil {
		return
	}
	slog.Info("advisory loop started", "interval", r.cfg.AgentInterval)

	ticker := time.NewTicker(r.cfg.AgentInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("advisory loop stopped")
			return
		case <-ticker.C:
			if !r.agentEnabled.Load() {
				continue
			}
			r.safeAdvisoryPass(ctx)
		}
	}
}

func (r *Runner) safeAdvisoryPass(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in advisory pass", "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	r.advisoryPass(ctx)
}

// advisoryPass evalúa cada posición abierta con el oráculo, serializado:
// una sola llamada en vuelo aunque el ciclo de entrada también consulte.
// Un fallo del oráculo en una posición no corta el pase.
func (r *Runner) advisoryPass(ctx context.Context) {
	positions := r.ledger.OpenPositionCopies()
	if len(positions) == 0 {
		return
	}
	closedAny := false

	for _, pos := range positions {
		if ctx.Err() != nil {
			return
		}

		r.aiMu.Lock()
		r.aiCalls.Add(1)
		advice, err := r.advisor.EvaluatePosition(ctx, pos)
		r.aiMu.Unlock()

		if err != nil {
			metrics.AdvisorCalls.WithLabelValues("error").Inc()
			slog.Warn("position advice failed", "market", pos.Question, "err", err)
			continue
		}
		if advice == nil {
			metrics.AdvisorCalls.WithLabelValues("no_opinion").Inc()
			continue
		}
		metrics.AdvisorCalls.WithLabelValues("ok").Inc()

		if advice.Recommendation != ports.RecommendExit {
			continue
		}

		reason := fmt.Sprintf("Salida por oráculo: %s", advice.Reasoning)
		status, pnl, ok := r.ledger.CloseAtCurrentPrice(pos.ConditionID, reason)
		if !ok {
			continue // ya cerrada entre el snapshot y ahora
		}
		closedAny = true
		slog.Info("position closed by advisor",
			"market", pos.Question,
			"status", string(status),
			"pnl", fmt.Sprintf("%+.2f", pnl),
			"reasoning", advice.Reasoning,
		)
	}

	if closedAny {
		r.ledger.RecordCapital()
		snap := r.ledger.Snapshot()
		r.syncMetrics(snap)
		if r.publish != nil {
			r.publish(snap)
		}
	}
}
