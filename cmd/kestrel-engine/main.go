package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kestrel-trading/kestrel/internal/audit"
	"github.com/kestrel-trading/kestrel/internal/broker"
	"github.com/kestrel-trading/kestrel/internal/config"
	"github.com/kestrel-trading/kestrel/internal/feed"
	"github.com/kestrel-trading/kestrel/internal/hype"
	"github.com/kestrel-trading/kestrel/internal/journal"
	"github.com/kestrel-trading/kestrel/internal/notify"
	"github.com/kestrel-trading/kestrel/internal/observability"
	"github.com/kestrel-trading/kestrel/internal/pipeline"
	"github.com/kestrel-trading/kestrel/internal/risk"
	"github.com/kestrel-trading/kestrel/internal/sniper"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "", "Path to configuration file (empty = built-in dry-run defaults)")
	dryRun := flag.Bool("dry-run", false, "Force dry-run mode regardless of config")
	logLevel := flag.String("log-level", "", "Override log level (trace|debug|info|warn|error)")
	strategy := flag.String("strategy", "", "Override risk strategy (conservative|balanced|aggressive|adaptive)")
	flag.Parse()

	// 2. Load configuration. .env is loaded first so ${VAR} references in
	// the config file resolve.
	_ = godotenv.Load()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}
	if *dryRun {
		cfg.General.DryRun = true
	}
	if *logLevel != "" {
		cfg.General.LogLevel = *logLevel
	}
	if *strategy != "" {
		cfg.Risk.Strategy = *strategy
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("KESTREL Hype Sniper - Starting")
	log.Info().Msg("LISTEN -> SCORE -> AUDIT -> SNIPE -> EXIT")
	log.Info().Msg("SAFETY > PROFIT > SPEED")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Bool("dry_run", cfg.General.DryRun).
		Str("feed_mode", cfg.Feed.Mode).
		Str("strategy", cfg.Risk.Strategy).
		Float64("wallet_usd", cfg.Trading.WalletBalanceUSD).
		Float64("min_hype_score", cfg.Detector.MinHypeScore).
		Float64("safe_threshold", cfg.Audit.SafeScoreThreshold).
		Float64("profit_target_pct", cfg.Trading.ProfitTargetPct).
		Float64("stop_loss_pct", cfg.Trading.StopLossPct).
		Msg("Configuration loaded")

	// 3b. Validate configuration.
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	// 4. Create the chatter feed.
	var src feed.Source
	switch cfg.Feed.Mode {
	case "ws":
		src = feed.NewWSFeed(feed.WSFeedConfig{
			Endpoint:         cfg.Feed.WSURL,
			ReconnectDelayMs: cfg.Feed.ReconnectDelayMs,
			PingIntervalS:    cfg.Feed.PingIntervalS,
		})
		log.Info().Str("endpoint", cfg.Feed.WSURL).Msg("Feed: WS mode")
	default:
		src = feed.NewSimFeed(feed.SimFeedConfig{IntervalMs: cfg.Feed.SimIntervalMs})
		log.Info().Msg("Feed: SIM mode (synthetic chatter)")
	}

	// 5. Create the hype detector.
	det := hype.NewDetector(hype.DetectorConfig{
		MinHypeScore: cfg.Detector.MinHypeScore,
		Window:       time.Duration(cfg.Detector.WindowHours) * time.Hour,
		MaxWindow:    cfg.Detector.MaxWindow,
	}, nil)
	log.Info().
		Float64("min_hype_score", cfg.Detector.MinHypeScore).
		Int("window_hours", cfg.Detector.WindowHours).
		Msg("Hype Detector initialized")

	// 6. Create the contract auditor. Dry runs get stub providers; live mode
	// talks to the real honeypot and rugcheck APIs.
	var ethProvider audit.TokenDataProvider
	var solProvider audit.RugcheckProvider
	if cfg.General.DryRun {
		ethProvider = audit.NewStubTokenProvider()
		solProvider = audit.NewStubRugcheck()
		log.Info().Msg("Audit providers: STUB mode")
	} else {
		providerTimeout := time.Duration(cfg.Audit.ProviderTimeoutMs) * time.Millisecond
		ethProvider = audit.NewHoneypotClient(cfg.Audit.HoneypotAPIURL, 1, providerTimeout)
		solProvider = audit.NewRugcheckClient(cfg.Audit.RugcheckAPIURL, providerTimeout)
		log.Info().
			Str("honeypot_api", cfg.Audit.HoneypotAPIURL).
			Str("rugcheck_api", cfg.Audit.RugcheckAPIURL).
			Msg("Audit providers: LIVE mode")
	}
	aud := audit.NewAuditor(audit.AuditorConfig{
		CacheTTL:           time.Duration(cfg.Audit.CacheTTLSeconds) * time.Second,
		SafeScoreThreshold: cfg.Audit.SafeScoreThreshold,
		MinLiquidityUSD:    cfg.Audit.MinLiquidityUSD,
		MaxTaxPct:          cfg.Audit.MaxTaxPct,
		MaxHolderPct:       cfg.Audit.MaxHolderPct,
	}, ethProvider, solProvider)
	log.Info().
		Float64("safe_threshold", cfg.Audit.SafeScoreThreshold).
		Float64("min_liquidity", cfg.Audit.MinLiquidityUSD).
		Msg("Contract Auditor initialized")

	// 7. Create the risk sizer. Non-zero config values override the
	// strategy table entry.
	strat := risk.Strategy(cfg.Risk.Strategy)
	params, err := risk.ParamsFor(strat)
	if err != nil {
		log.Fatal().Err(err).Msg("Unknown risk strategy")
	}
	if cfg.Risk.MaxOpenPositions > 0 {
		params.MaxOpenPositions = cfg.Risk.MaxOpenPositions
	}
	if cfg.Risk.MaxTradesPerDay > 0 {
		params.MaxDailyTrades = cfg.Risk.MaxTradesPerDay
	}
	if cfg.Risk.DailyLossLimitPct > 0 {
		params.MaxDailyLossPct = cfg.Risk.DailyLossLimitPct
	}
	if cfg.Risk.MinTradeUSD > 0 {
		params.MinTradeUSD = cfg.Risk.MinTradeUSD
	}
	if cfg.Risk.MaxTradeUSD > 0 {
		params.MaxTradeUSD = cfg.Risk.MaxTradeUSD
	}
	sizer := risk.NewSizerWithParams(strat, params, cfg.Trading.WalletBalanceUSD)
	log.Info().
		Str("strategy", string(strat)).
		Float64("base_pct", params.BasePositionPct).
		Int("max_positions", params.MaxOpenPositions).
		Msg("Risk Sizer initialized")

	// 8. Create the paper broker and sniper engine.
	pb := broker.NewPaperBroker(time.Now().UnixNano())
	eng := sniper.NewEngine(sniper.EngineConfig{
		StartingBalanceUSD: cfg.Trading.WalletBalanceUSD,
		Exits: sniper.ExitConfig{
			ProfitTargetPct: cfg.Trading.ProfitTargetPct,
			StopLossPct:     cfg.Trading.StopLossPct,
			TrailingStopPct: cfg.Trading.TrailingStopPct,
			MaxHold:         time.Duration(cfg.Trading.MaxHoldHours) * time.Hour,
		},
		MonitorInterval: time.Duration(cfg.Trading.MonitorTickMs) * time.Millisecond,
		ErrorBackoff:    time.Duration(cfg.Trading.ErrorBackoffMs) * time.Millisecond,
		SafetyRecheck:   time.Duration(cfg.Trading.SafetyRecheckS) * time.Second,
		HistoryCap:      cfg.Trading.ClosedHistoryMax,
		DryRun:          cfg.General.DryRun,
	}, pb, pb, sizer)

	// Held positions are re-audited while open. Only a honeypot flag or a
	// fresh critical failure forces an emergency exit; a mere score drop
	// does not.
	eng.SetSafetyCheck(func(ctx context.Context, chain, address string) (bool, string) {
		report := aud.Audit(ctx, address, chain)
		if report.Honeypot {
			return false, "honeypot flagged on re-audit"
		}
		if fails := report.CriticalFailures(); len(fails) > 0 {
			return false, fails[0].Name + ": " + fails[0].Detail
		}
		return true, ""
	})
	log.Info().Msg("Sniper Engine initialized")

	// 9. Create the notifier.
	var notifier notify.Notifier
	switch cfg.Notify.Mode {
	case "webhook":
		notifier = notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:       cfg.Notify.WebhookURL,
			TimeoutMs: cfg.Notify.TimeoutMs,
		})
	default:
		notifier = notify.NewLogNotifier()
	}
	log.Info().Str("sink", notifier.Name()).Msg("Notifier initialized")

	// 10. Create the trade journal.
	var jn *journal.Journal
	if cfg.Journal.Enabled {
		jn, err = journal.New(cfg.Journal.Path, cfg.Journal.MaxBuffer)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Journal.Path).Msg("Journal open failed")
		}
		defer jn.Close()
		log.Info().Str("path", cfg.Journal.Path).Msg("Journal initialized")
	}

	// 11. Metrics registry and exporter.
	registry := observability.KestrelMetrics()
	exporter := observability.NewPrometheusExporter(registry)
	postsIngested := registry.GetCounter(observability.MetricPostsIngested)
	signalsDetected := registry.GetCounter(observability.MetricSignalsDetected)
	tradesClosed := registry.GetCounter(observability.MetricTradesClosed)
	hypeScores := registry.GetHistogram(observability.MetricHypeScore)
	dailyPnL := registry.GetGauge(observability.MetricDailyPnLUSD)

	// Wire position callbacks.
	eng.SetOnOpen(func(pos sniper.Position) {
		log.Info().
			Str("pos_id", pos.ID).
			Str("address", pos.Address).
			Str("chain", pos.Chain).
			Str("cost_usd", pos.CostUSD.StringFixed(2)).
			Float64("hype", pos.HypeScore).
			Float64("safety", pos.SafetyScore).
			Msg("[POSITION OPENED]")
	})
	eng.SetOnClose(func(pos sniper.Position) {
		log.Info().
			Str("pos_id", pos.ID).
			Str("address", pos.Address).
			Str("reason", string(pos.CloseReason)).
			Float64("pnl_pct", pos.PnLPct).
			Str("pnl_usd", pos.PnLUSD.StringFixed(2)).
			Msg("[POSITION CLOSED]")

		tradesClosed.Inc()
		dailyPnL.Set(sizer.Stats().DailyPnLUSD)
		if jn != nil {
			jn.RecordTradeClose(pos.ID, pos.Address, string(pos.CloseReason), pos.PnLPct, pos)
		}
		go notifier.Notify(context.Background(), fmt.Sprintf(
			"SELL %s %s | reason %s | pnl %+.1f%% ($%s)",
			pos.Chain, pos.Address, pos.CloseReason, pos.PnLPct, pos.PnLUSD.StringFixed(2)))
	})

	// 12. Create the pipeline orchestrator.
	pl, err := pipeline.New(pipeline.Config{
		SignalInterval: time.Duration(cfg.Pipeline.SignalIntervalMs) * time.Millisecond,
		TopN:           cfg.Pipeline.TopN,
		StatusInterval: time.Duration(cfg.Pipeline.StatusIntervalS) * time.Second,
		ProcessedCap:   cfg.Pipeline.ProcessedCap,
		AuditWorkers:   cfg.Pipeline.AuditWorkers,
		ErrorBackoff:   time.Duration(cfg.Pipeline.ErrorBackoffMs) * time.Millisecond,
	}, det, aud, eng, notifier)
	if err != nil {
		log.Fatal().Err(err).Msg("Pipeline init failed")
	}
	if jn != nil {
		pl.SetJournal(jn)
	}
	pl.SetMetrics(registry)
	log.Info().
		Int("top_n", cfg.Pipeline.TopN).
		Int("audit_workers", cfg.Pipeline.AuditWorkers).
		Msg("Pipeline initialized")

	// 13. Health monitor.
	health := observability.NewHealthMonitor(30 * time.Second)
	health.Register("feed", func(ctx context.Context) observability.ComponentHealth {
		if ws, ok := src.(*feed.WSFeed); ok && !ws.Stats().Connected {
			return observability.ComponentHealth{Status: observability.StatusUnhealthy, Message: "websocket disconnected"}
		}
		return observability.ComponentHealth{Status: observability.StatusHealthy}
	})
	health.Register("pipeline", func(ctx context.Context) observability.ComponentHealth {
		if pl.Paused() {
			return observability.ComponentHealth{Status: observability.StatusDegraded, Message: "intake paused"}
		}
		return observability.ComponentHealth{Status: observability.StatusHealthy}
	})
	health.Register("engine", func(ctx context.Context) observability.ComponentHealth {
		es := eng.Stats()
		if es.BalanceUSD <= 0 && es.OpenPositions == 0 {
			return observability.ComponentHealth{Status: observability.StatusDegraded, Message: "balance exhausted"}
		}
		return observability.ComponentHealth{
			Status:  observability.StatusHealthy,
			Message: fmt.Sprintf("%d open positions", es.OpenPositions),
		}
	})
	if jn != nil {
		health.Register("journal", func(ctx context.Context) observability.ComponentHealth {
			if js := jn.Stats(); js.WriteErrs > 0 {
				return observability.ComponentHealth{
					Status:  observability.StatusDegraded,
					Message: fmt.Sprintf("%d write errors", js.WriteErrs),
				}
			}
			return observability.ComponentHealth{Status: observability.StatusHealthy}
		})
	}

	// 14. Daily risk counter reset at midnight UTC.
	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc("0 0 * * *", func() {
		balance, _ := eng.BalanceUSD().Float64()
		sizer.ResetDaily(balance)
		log.Info().Float64("balance_usd", balance).Msg("Daily risk counters reset")
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule daily reset")
	}
	scheduler.Start()

	// 15. Setup context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 16. Start services.
	var wg sync.WaitGroup

	// Chatter ingest: every post runs through the detector. The channel
	// closes when the feed shuts down, so this loop ends with it.
	posts, err := src.Start(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("feed", src.Name()).Msg("Feed start failed")
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for post := range posts {
			postsIngested.Inc()
			if sig := det.Extract(post.Text, post.Platform, post.Channel, post.MessageID); sig != nil {
				signalsDetected.Inc()
				hypeScores.Observe(sig.HypeScore)
			}
		}
	}()

	// Position monitor loop: exits, trailing stops, safety rechecks.
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	// Orchestrator: drains top signals, audits, buys.
	wg.Add(1)
	go func() {
		defer wg.Done()
		pl.Run(ctx)
	}()

	// Health checks plus alert forwarding.
	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Start(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case alert := <-health.Alerts():
				evt := log.Info()
				switch alert.Level {
				case "critical":
					evt = log.Error()
				case "warn":
					evt = log.Warn()
				}
				evt.Str("component", alert.Component).Str("detail", alert.Message).
					Msg("[HEALTH] Component status changed")
			}
		}
	}()

	// Periodic detector window prune.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(cfg.Detector.PruneIntervalMin) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				det.Prune(now)
			}
		}
	}()

	// HTTP health/stats/metrics/control endpoint.
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()

		// ── Health ──
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			snapshot := health.Check(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if snapshot.Status == observability.StatusUnhealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			json.NewEncoder(w).Encode(snapshot)
		})

		// ── Metrics ──
		mux.Handle("/metrics", exporter)

		// ── Stats ──
		mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			combined := map[string]any{
				"detector": det.Stats(),
				"auditor":  aud.Stats(),
				"engine":   eng.Stats(),
				"pipeline": pl.Stats(),
				"risk":     sizer.Stats(),
				"broker":   pb.Stats(),
				"dry_run":  cfg.General.DryRun,
				"instance": cfg.General.InstanceID,
			}
			switch s := src.(type) {
			case *feed.WSFeed:
				combined["feed"] = s.Stats()
			case *feed.SimFeed:
				combined["feed"] = s.Stats()
			}
			if jn != nil {
				combined["journal"] = jn.Stats()
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(combined)
		})

		// ── Signals ──
		mux.HandleFunc("/signals", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(det.TopSignals(50))
		})

		// ── Positions ──
		mux.HandleFunc("/positions", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"open":   eng.OpenPositions(),
				"closed": eng.History(),
			})
		})
		mux.HandleFunc("/positions/open", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(eng.OpenPositions())
		})

		// ── Control Plane ──
		mux.HandleFunc("/control/pause", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			pl.Pause()
			log.Warn().Msg("[CONTROL] Intake PAUSED - no new entries")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"paused"}`)
		})

		mux.HandleFunc("/control/resume", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			pl.Resume()
			log.Info().Msg("[CONTROL] Intake RESUMED")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"running"}`)
		})

		mux.HandleFunc("/control/kill", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			log.Error().Msg("[CONTROL] KILL SWITCH - closing all positions")

			go func() {
				killCtx, killCancel := context.WithTimeout(context.Background(), 30*time.Second)
				closed := pl.Kill(killCtx)
				killCancel()
				log.Warn().Int("closed", closed).Msg("[CONTROL] Kill switch done")
			}()

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"killed","action":"close_all"}`)
		})

		mux.HandleFunc("/control/close", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			id := r.URL.Query().Get("id")
			if id == "" {
				http.Error(w, "id required", http.StatusBadRequest)
				return
			}
			pos, err := eng.Close(r.Context(), id)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			log.Info().Str("pos_id", pos.ID).Msg("[CONTROL] Manual close")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(pos)
		})

		mux.HandleFunc("/control/status", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"paused":         pl.Paused(),
				"dry_run":        cfg.General.DryRun,
				"open_positions": len(eng.OpenPositions()),
				"instance_id":    cfg.General.InstanceID,
				"strategy":       cfg.Risk.Strategy,
			})
		})

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server started (health + stats + metrics + control)")

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Shutdown(shutdownCtx)
		}()

		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Error().Err(srvErr).Msg("HTTP server error")
		}
	}()

	// Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				es := eng.Stats()
				ds := det.Stats()
				as := aud.Stats()
				ps := pl.Stats()
				log.Info().
					Int64("messages", ds.MessagesProcessed).
					Int64("signals", ds.SignalsEmitted).
					Int("window", ds.WindowSize).
					Int64("audits", as.Audits).
					Int64("unsafe", as.Unsafe).
					Int64("trades", es.TotalTrades).
					Int("open_pos", es.OpenPositions).
					Float64("win_rate", es.WinRate).
					Float64("pnl_usd", es.TotalPnLUSD).
					Float64("balance_usd", es.BalanceUSD).
					Bool("paused", ps.Paused).
					Msg("[STATS]")
			}
		}
	}()

	log.Info().Msg("KESTREL Hype Sniper - Running")
	log.Info().Msg("Pipeline: Feed -> Hype Detector -> Contract Auditor -> Risk Gates -> Sniper -> Exits")
	log.Info().Msg("Watching the firehose for hype signals...")

	// 17. Block until shutdown.
	<-ctx.Done()

	// 18. Graceful shutdown.
	log.Info().Msg("Shutting down Kestrel...")

	scheduler.Stop()

	// Services drain first so no in-flight buy lands after the close sweep.
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	closed := eng.CloseAll(shutdownCtx, sniper.ReasonEmergency)
	shutdownCancel()
	if closed > 0 {
		log.Info().Int("closed", closed).Msg("Flattened open positions")
	}

	finalStats := eng.Stats()
	ds := det.Stats()
	log.Info().
		Int64("messages", ds.MessagesProcessed).
		Int64("signals", ds.SignalsEmitted).
		Int64("total_trades", finalStats.TotalTrades).
		Int64("wins", finalStats.Wins).
		Int64("losses", finalStats.Losses).
		Float64("win_rate", finalStats.WinRate).
		Float64("total_pnl_usd", finalStats.TotalPnLUSD).
		Float64("balance_usd", finalStats.BalanceUSD).
		Msg("KESTREL Hype Sniper - Final Statistics")

	log.Info().Msg("KESTREL Hype Sniper - Shutdown complete")
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var sink io.Writer = os.Stdout
	if general.LogFormat == "text" {
		sink = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	if general.LogFile != "" {
		sink = zerolog.MultiLevelWriter(sink, &lumberjack.Logger{
			Filename:   general.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(sink).
		With().Timestamp().Str("service", "kestrel-engine").
		Str("instance", general.InstanceID).Logger()
}
