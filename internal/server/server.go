// Package server expone la API del dashboard: estado de la sesión,
// control del bot y del oráculo, métricas Prometheus y el websocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alf-alejandro/agente-clima/internal/bot"
	"github.com/alf-alejandro/agente-clima/internal/ledger"
	"github.com/alf-alejandro/agente-clima/internal/server/middleware"
	"github.com/alf-alejandro/agente-clima/internal/server/ws"
)

// Server es el servidor HTTP del dashboard.
type Server struct {
	ledger *ledger.Ledger
	runner *bot.Runner
	hub    *ws.Hub
	http   *http.Server
	// runCtx es el contexto raíz con el que Start del runner deriva el suyo.
	runCtx context.Context
}

// New construye el servidor y registra las rutas.
func New(addr string, lg *ledger.Ledger, runner *bot.Runner, hub *ws.Hub, runCtx context.Context) *Server {
	s := &Server{ledger: lg, runner: runner, hub: hub, runCtx: runCtx}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/bot/start", s.handleBotStart)
	mux.HandleFunc("POST /api/bot/stop", s.handleBotStop)
	mux.HandleFunc("PUT /api/bot/stoploss", s.handleStopLoss)
	mux.HandleFunc("POST /api/agent/enable", s.handleAgentEnable)
	mux.HandleFunc("POST /api/agent/disable", s.handleAgentDisable)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", hub.HandleWS)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           middleware.Logging(middleware.CORS(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe bloquea sirviendo hasta Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("dashboard server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe: %w", err)
	}
	return nil
}

// Shutdown para el servidor con gracia.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"running":    s.runner.IsRunning(),
		"ws_clients": s.hub.ClientCount(),
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus devuelve el snapshot completo del ledger más el estado de
// los threads del bot. Es la fuente de verdad del dashboard al cargar.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"bot":             s.runner.Status(),
		"session":         s.ledger.Snapshot(),
		"stop_loss_ratio": s.ledger.StopLossRatio(),
	})
}

func (s *Server) handleBotStart(w http.ResponseWriter, _ *http.Request) {
	if s.runner.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]any{"running": true, "message": "ya estaba corriendo"})
		return
	}
	s.runner.Start(s.runCtx)
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (s *Server) handleBotStop(w http.ResponseWriter, _ *http.Request) {
	s.runner.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

// handleStopLoss ajusta el ratio de stop-loss en runtime. Solo afecta a
// posiciones nuevas: los triggers existentes no se recalculan.
func (s *Server) handleStopLoss(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ratio float64 `json:"ratio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "body JSON inválido")
		return
	}

	if err := s.ledger.SetStopLossRatio(body.Ratio); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stop_loss_ratio": body.Ratio})
}

func (s *Server) handleAgentEnable(w http.ResponseWriter, _ *http.Request) {
	s.runner.EnableAgent()
	// Sin advisor configurado el enable es un no-op; reportar la verdad.
	writeJSON(w, http.StatusOK, map[string]any{"agent_enabled": s.runner.Status().AgentEnabled})
}

func (s *Server) handleAgentDisable(w http.ResponseWriter, _ *http.Request) {
	s.runner.DisableAgent()
	writeJSON(w, http.StatusOK, map[string]any{"agent_enabled": false})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
