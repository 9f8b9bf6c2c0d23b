package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gradwatch-trading/gradwatch/internal/config"
	"github.com/gradwatch-trading/gradwatch/internal/engine"
	"github.com/gradwatch-trading/gradwatch/internal/notify"
	"github.com/gradwatch-trading/gradwatch/internal/state"
	"github.com/gradwatch-trading/gradwatch/internal/upstream"
	"github.com/gradwatch-trading/gradwatch/internal/wallets"
)

// One-shot scan batch. Same pipeline as the daemon, one pass, then exit.
// Intended for cron fallback and smoke testing a fresh deployment.
func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	dryRun := flag.Bool("dry-run", false, "Skip Telegram delivery, log alerts only")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("service", "gradwatch-scan").Logger()

	if !*dryRun {
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("Configuration validation failed")
		}
	}

	store := state.New(cfg.State.Dir)
	if err := store.Load(); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.State.Dir).Msg("State load failed")
	}

	clients := engine.Clients{
		Moralis: upstream.NewMoralisClient(upstream.MoralisConfig{
			BaseURL:   cfg.Moralis.BaseURL,
			APIKey:    cfg.Moralis.APIKey,
			PageLimit: cfg.Moralis.PageLimit,
			Timeout:   time.Duration(cfg.Moralis.TimeoutSec) * time.Second,
		}),
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

	if *dryRun {
		eng.SetOnAlert(func(alert engine.Alert) {
			log.Info().
				Str("kind", string(alert.Kind)).
				Str("mint", alert.Address).
				Str("symbol", alert.Symbol).
				Msg("[DRY RUN] Alert suppressed")
		})
	} else {
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
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := eng.ScanBatch(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Scan batch failed")
	}

	if err := store.Save(); err != nil {
		log.Fatal().Err(err).Msg("State save failed")
	}

	log.Info().
		Str("batch_id", result.BatchID).
		Int("scanned", result.Scanned).
		Int("accepted", result.Accepted).
		Int("rejected", result.Rejected).
		Int("near_miss", result.NearMiss).
		Int("refreshed", result.Refreshed).
		Msg("Scan complete")
}
