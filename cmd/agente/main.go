package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alf-alejandro/agente-clima/config"
	"github.com/alf-alejandro/agente-clima/internal/adapters/gemini"
	"github.com/alf-alejandro/agente-clima/internal/adapters/notify"
	"github.com/alf-alejandro/agente-clima/internal/adapters/polymarket"
	"github.com/alf-alejandro/agente-clima/internal/adapters/storage"
	"github.com/alf-alejandro/agente-clima/internal/bot"
	"github.com/alf-alejandro/agente-clima/internal/ledger"
	"github.com/alf-alejandro/agente-clima/internal/ports"
	"github.com/alf-alejandro/agente-clima/internal/scanner"
	"github.com/alf-alejandro/agente-clima/internal/server"
	"github.com/alf-alejandro/agente-clima/internal/server/ws"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	noServer := flag.Bool("no-server", false, "run without the dashboard HTTP server")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("agente-clima starting",
		"config", *configPath,
		"cities", len(cfg.Strategy.Cities),
		"capital", cfg.Strategy.InitialCapital,
		"sizing", cfg.Sizing.Strategy,
		"agent_enabled", cfg.Agent.Enabled,
	)

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)

	journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open journal", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer journal.Close()

	lg := ledger.New(cfg.Strategy.InitialCapital, ledger.Config{
		MaxPositions:         cfg.Strategy.MaxPositions,
		StopLossRatio:        cfg.Strategy.StopLossRatio,
		StopLossEnabled:      cfg.Strategy.StopLossEnabled,
		PartialExitThreshold: cfg.Strategy.PartialExitThreshold,
		MaxRegionExposure:    cfg.Strategy.MaxRegionExposure,
		RegionOf:             cfg.Region,
	}, journal)

	sc := scanner.New(scanner.Config{
		Cities:         cfg.Strategy.Cities,
		DaysAhead:      cfg.Strategy.DaysAhead,
		MinNoPrice:     cfg.Strategy.MinNoPrice,
		MaxNoPrice:     cfg.Strategy.MaxNoPrice,
		MaxYesPrice:    cfg.Strategy.MaxYesPrice,
		MinVolume:      cfg.Strategy.MinVolume,
		MinProfitCents: cfg.Strategy.MinProfitCents,
	}, client)

	var advisor ports.Advisor
	if adv := gemini.New(cfg.Agent.APIKey, cfg.Agent.Model); adv != nil {
		advisor = adv
	} else if cfg.Agent.Enabled {
		slog.Warn("agent enabled but GEMINI_API_KEY missing — oracle disabled")
	}

	hub := ws.NewHub()
	notifier := notify.NewConsole()

	runner := bot.New(bot.Config{
		ScanInterval:        cfg.ScanInterval(),
		PriceInterval:       cfg.PriceInterval(),
		AgentInterval:       cfg.AgentInterval(),
		VerifyTopCandidates: cfg.Bot.VerifyTopCandidates,
		HighInfoHoursUTC:    cfg.Bot.HighInfoHoursUTC,
		AgentEnabled:        cfg.Agent.Enabled,
	}, lg, sc, client, client, buildSizer(cfg), advisor, notifier, hub.Publish)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go hub.Run(ctx)

	if cfg.Bot.AutoStart {
		runner.Start(ctx)
	} else {
		slog.Info("auto_start disabled — waiting for POST /api/bot/start")
	}

	if *noServer {
		<-ctx.Done()
	} else {
		srv := server.New(fmt.Sprintf(":%d", cfg.Server.Port), lg, runner, hub, ctx)
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("server shutdown error", "err", err)
			}
		}()
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("server exited with error", "err", err)
		}
	}

	runner.Stop()

	// Reporte final a consola antes de salir.
	if err := notifier.SessionReport(context.Background(), lg.Snapshot()); err != nil {
		slog.Warn("session report failed", "err", err)
	}
	slog.Info("agente-clima stopped cleanly")
}

// buildSizer construye la estrategia de sizing configurada.
func buildSizer(cfg *config.Config) ledger.Sizer {
	linear := ledger.LinearSizer{
		SizeMin: cfg.Sizing.SizeMin,
		SizeMax: cfg.Sizing.SizeMax,
		BandMin: cfg.Strategy.MinNoPrice,
		BandMax: cfg.Strategy.MaxNoPrice,
	}
	if cfg.Sizing.Strategy == "kelly" {
		return ledger.KellySizer{
			Multiplier:  cfg.Sizing.KellyMultiplier,
			MaxFraction: cfg.Sizing.KellyMaxFrac,
			Fallback:    linear,
		}
	}
	return linear
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
