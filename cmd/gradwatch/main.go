package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gradwatch-trading/gradwatch/internal/config"
	"github.com/gradwatch-trading/gradwatch/internal/engine"
	"github.com/gradwatch-trading/gradwatch/internal/notify"
	"github.com/gradwatch-trading/gradwatch/internal/scheduler"
	"github.com/gradwatch-trading/gradwatch/internal/state"
	"github.com/gradwatch-trading/gradwatch/internal/upstream"
	"github.com/gradwatch-trading/gradwatch/internal/wallets"
	"github.com/gradwatch-trading/gradwatch/internal/webhook"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	flag.Parse()

	// 2. Load .env (optional) and configuration.
	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("GRADWATCH - Graduated Token Monitor - Starting")
	log.Info().Msg("FETCH -> FILTER -> ENRICH -> NOTIFY -> TRACK")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Int("poll_interval_sec", cfg.Scheduler.PollIntervalSec).
		Float64("min_fdv_usd", cfg.Filters.MinFDVUSD).
		Float64("min_liquidity_usd", cfg.Filters.MinLiquidityUSD).
		Int("min_holders", cfg.Filters.MinHolders).
		Int("min_risk_score", cfg.Filters.MinRiskScore).
		Bool("stream_enabled", cfg.Scheduler.StreamEnabled).
		Msg("Configuration loaded")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	// 4. Load persistent state.
	store := state.New(cfg.State.Dir)
	if err := store.Load(); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.State.Dir).Msg("State load failed")
	}
	counts := store.Counts()
	log.Info().
		Int("seen", counts.Seen).
		Int("tracked", counts.Tracked).
		Int("wallets", counts.Wallets).
		Msg("State loaded")

	// 5. Upstream clients.
	moralis := upstream.NewMoralisClient(upstream.MoralisConfig{
		BaseURL:   cfg.Moralis.BaseURL,
		APIKey:    cfg.Moralis.APIKey,
		PageLimit: cfg.Moralis.PageLimit,
		Timeout:   time.Duration(cfg.Moralis.TimeoutSec) * time.Second,
	})
	clients := engine.Clients{
		Moralis: moralis,
		RugCheck: upstream.NewRugCheckClient(upstream.RugCheckConfig{
			BaseURL: cfg.RugCheck.BaseURL,
			Timeout: time.Duration(cfg.RugCheck.TimeoutSec) * time.Second,
		}),
		Bonding: upstream.NewBondingClient(upstream.BondingConfig{
			BaseURL:     cfg.Bonding.BaseURL,
			BearerToken: cfg.Bonding.BearerToken,
			Timeout:     time.Duration(cfg.Bonding.TimeoutSec) * time.Second,
		}),
		BubbleMaps: upstream.NewBubbleMapsClient(upstream.BubbleMapsConfig{
			BaseURL:    cfg.BubbleMaps.BaseURL,
			TopHolders: cfg.BubbleMaps.TopHolders,
			Timeout:    time.Duration(cfg.BubbleMaps.TimeoutSec) * time.Second,
		}),
		Helius: upstream.NewHeliusClient(upstream.HeliusConfig{
			BaseURL:        cfg.Helius.BaseURL,
			APIKey:         cfg.Helius.APIKey,
			SmartWalletMin: cfg.Helius.SmartWalletMin,
			Timeout:        time.Duration(cfg.Helius.TimeoutSec) * time.Second,
		}),
	}

	// 6. Pipeline components.
	walletTracker := wallets.NewTracker(wallets.Config{
		WinMultiplier: cfg.Tracking.WinMultiplier,
		WinFloorUSD:   cfg.Tracking.WinFloorUSD,
	}, store)

	eng := engine.New(engine.Config{
		Filters: engine.FilterConfig{
			MinFDVUSD:          cfg.Filters.MinFDVUSD,
			MinLiquidityUSD:    cfg.Filters.MinLiquidityUSD,
			MinHolders:         cfg.Filters.MinHolders,
			MinRiskScore:       cfg.Filters.MinRiskScore,
			MaxSingleHolderPct: cfg.Filters.MaxSingleHolderPct,
			RequireLPLocked:    cfg.Filters.RequireLPLocked,
			OverrideHolders:    cfg.Filters.OverrideHolders,
			NearMissMarginPct:  cfg.Filters.NearMissMarginPct,
		},
		MilestonesUSD:  cfg.Tracking.MilestonesUSD,
		SoarWindowMin:  cfg.Tracking.SoarWindowMin,
		SoarWindowMax:  cfg.Tracking.SoarWindowMax,
		SoarMultiplier: cfg.Tracking.SoarMultiplier,
	}, clients, store, walletTracker)

	telegramClient := notify.NewClient(notify.Config{
		BotToken:    cfg.Telegram.BotToken,
		ChatID:      cfg.Telegram.ChatID,
		SendPauseMs: cfg.Telegram.SendPauseMs,
		Timeout:     time.Duration(cfg.Telegram.TimeoutSec) * time.Second,
	})
	notifier := notify.NewNotifier(telegramClient, notify.Formatter{
		ReferralURL: cfg.Telegram.ReferralURL,
	})
	eng.SetOnAlert(notifier.OnAlert)

	// 7. Setup context and signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 8. Optional websocket migration feed.
	var streamCh <-chan upstream.TokenEvent
	var stream *upstream.GradStream
	if cfg.Scheduler.StreamEnabled {
		streamConfig := upstream.DefaultStreamConfig()
		if cfg.Scheduler.StreamWSURL != "" {
			streamConfig.WSEndpoint = cfg.Scheduler.StreamWSURL
		}
		stream = upstream.NewGradStream(streamConfig)
		streamCh = stream.Start(ctx)
		log.Info().Str("endpoint", streamConfig.WSEndpoint).Msg("Migration stream enabled")
	}

	// 9. Scheduler loop.
	sched := scheduler.New(scheduler.Config{
		PollInterval: time.Duration(cfg.Scheduler.PollIntervalSec) * time.Second,
		SummaryTimes: cfg.Scheduler.SummaryTimes,
	}, eng, store, notifier, streamCh)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	// 10. Webhook + operational HTTP server.
	srv := webhook.New(webhook.Config{
		Port:          cfg.Server.Port,
		AdminUsername: cfg.Telegram.AdminUsername,
		AdminChatID:   cfg.Telegram.ChatID,
	}, webhook.Deps{
		Scheduler: sched,
		Engine:    eng,
		Store:     store,
		Notifier:  notifier,
		ExtraStats: map[string]func() any{
			"moralis": func() any { return moralis.Stats() },
			"wallets": func() any { return walletTracker.Stats() },
			"stream": func() any {
				if stream == nil {
					return nil
				}
				return stream.Stats()
			},
		},
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.Run(ctx)
	}()

	// 11. Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engStats := eng.Stats()
				counts := store.Counts()
				log.Info().
					Int64("scanned", engStats.Scanned).
					Int64("accepted", engStats.Accepted).
					Int64("rejected", engStats.Rejected).
					Int("seen", counts.Seen).
					Int("tracked", counts.Tracked).
					Int64("sent", telegramClient.Stats().Sent).
					Msg("[STATS] Periodic report")
			}
		}
	}()

	wg.Wait()

	// Final stats.
	engStats := eng.Stats()
	tgStats := telegramClient.Stats()
	log.Info().
		Int64("scanned", engStats.Scanned).
		Int64("accepted", engStats.Accepted).
		Int64("rejected", engStats.Rejected).
		Int64("alerts_sent", tgStats.Sent).
		Int64("alerts_failed", tgStats.Failed).
		Msg("GRADWATCH - Final Statistics")

	log.Info().Msg("GRADWATCH - Shutdown complete")
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "gradwatch").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "gradwatch").
			Str("instance", general.InstanceID).Logger()
	}
}
