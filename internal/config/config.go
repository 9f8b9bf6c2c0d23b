package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for gradwatch.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Moralis    MoralisConfig    `yaml:"moralis"`
	RugCheck   RugCheckConfig   `yaml:"rugcheck"`
	Bonding    BondingConfig    `yaml:"bonding"`
	BubbleMaps BubbleMapsConfig `yaml:"bubblemaps"`
	Helius     HeliusConfig     `yaml:"helius"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Filters    FiltersConfig    `yaml:"filters"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Server     ServerConfig     `yaml:"server"`
	State      StateConfig      `yaml:"state"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type MoralisConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"`
	PageLimit  int    `yaml:"page_limit"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type RugCheckConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type BondingConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token"`
	TokenFile   string `yaml:"token_file"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

type BubbleMapsConfig struct {
	BaseURL    string `yaml:"base_url"`
	TopHolders int    `yaml:"top_holders"` // 5 or 10 depending on deployment
	TimeoutSec int    `yaml:"timeout_sec"`
}

type HeliusConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	APIKeyFile     string  `yaml:"api_key_file"`
	SmartWalletMin float64 `yaml:"smart_wallet_min"` // token units after decimal adjustment
	TimeoutSec     int     `yaml:"timeout_sec"`
}

type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	BotTokenFile  string `yaml:"bot_token_file"`
	ChatID        string `yaml:"chat_id"`
	ChatIDFile    string `yaml:"chat_id_file"`
	AdminUsername string `yaml:"admin_username"`
	SendPauseMs   int    `yaml:"send_pause_ms"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	ReferralURL   string `yaml:"referral_url"`
}

// FiltersConfig holds the acceptance thresholds. Deployments tune these
// per chat, so every threshold is data here.
type FiltersConfig struct {
	MinFDVUSD          float64 `yaml:"min_fdv_usd"`
	MinLiquidityUSD    float64 `yaml:"min_liquidity_usd"`
	MinHolders         int     `yaml:"min_holders"`
	MinRiskScore       int     `yaml:"min_risk_score"`
	MaxSingleHolderPct float64 `yaml:"max_single_holder_pct"`
	RequireLPLocked    bool    `yaml:"require_lp_locked"`    // hard reject when true, warning when false
	OverrideHolders    int     `yaml:"override_holders"`     // holder count that overrides a low score
	NearMissMarginPct  float64 `yaml:"near_miss_margin_pct"` // within this margin below min_fdv_usd counts as near-miss
}

type TrackingConfig struct {
	MilestonesUSD  []int64 `yaml:"milestones_usd"`
	SoarWindowMin  int     `yaml:"soar_window_min"` // start of the re-check window, minutes after first seen
	SoarWindowMax  int     `yaml:"soar_window_max"` // end of the window
	SoarMultiplier float64 `yaml:"soar_multiplier"`
	WinMultiplier  float64 `yaml:"win_multiplier"` // buy counts as win at this multiple of entry
	WinFloorUSD    float64 `yaml:"win_floor_usd"`  // or at this absolute valuation
}

type SchedulerConfig struct {
	PollIntervalSec int      `yaml:"poll_interval_sec"`
	SummaryTimes    []string `yaml:"summary_times"` // "HH:MM"
	StreamEnabled   bool     `yaml:"stream_enabled"`
	StreamWSURL     string   `yaml:"stream_ws_url"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type StateConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks mandatory settings. A missing Telegram credential is
// fatal: the process cannot deliver a single alert without it.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("config: telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("config: telegram.chat_id is required")
	}
	if c.Scheduler.PollIntervalSec < 10 {
		return fmt.Errorf("config: scheduler.poll_interval_sec must be >= 10, got %d", c.Scheduler.PollIntervalSec)
	}
	for _, ts := range c.Scheduler.SummaryTimes {
		if len(ts) != 5 || ts[2] != ':' {
			return fmt.Errorf("config: scheduler.summary_times entry %q is not HH:MM", ts)
		}
	}
	for i := 1; i < len(c.Tracking.MilestonesUSD); i++ {
		if c.Tracking.MilestonesUSD[i] <= c.Tracking.MilestonesUSD[i-1] {
			return fmt.Errorf("config: tracking.milestones_usd must be strictly ascending")
		}
	}
	if c.BubbleMaps.TopHolders != 5 && c.BubbleMaps.TopHolders != 10 {
		return fmt.Errorf("config: bubblemaps.top_holders must be 5 or 10, got %d", c.BubbleMaps.TopHolders)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "gradwatch-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Moralis.BaseURL == "" {
		cfg.Moralis.BaseURL = "https://solana-gateway.moralis.io"
	}
	if cfg.Moralis.PageLimit == 0 {
		cfg.Moralis.PageLimit = 100
	}
	if cfg.Moralis.TimeoutSec == 0 {
		cfg.Moralis.TimeoutSec = 10
	}
	if cfg.RugCheck.BaseURL == "" {
		cfg.RugCheck.BaseURL = "https://api.rugcheck.xyz/v1"
	}
	if cfg.RugCheck.TimeoutSec == 0 {
		cfg.RugCheck.TimeoutSec = 10
	}
	if cfg.Bonding.TimeoutSec == 0 {
		cfg.Bonding.TimeoutSec = 5
	}
	if cfg.BubbleMaps.BaseURL == "" {
		cfg.BubbleMaps.BaseURL = "https://api-legacy.bubblemaps.io"
	}
	if cfg.BubbleMaps.TopHolders == 0 {
		cfg.BubbleMaps.TopHolders = 10
	}
	if cfg.BubbleMaps.TimeoutSec == 0 {
		cfg.BubbleMaps.TimeoutSec = 10
	}
	if cfg.Helius.BaseURL == "" {
		cfg.Helius.BaseURL = "https://api.helius.xyz"
	}
	if cfg.Helius.SmartWalletMin == 0 {
		cfg.Helius.SmartWalletMin = 5000
	}
	if cfg.Helius.TimeoutSec == 0 {
		cfg.Helius.TimeoutSec = 10
	}
	if cfg.Telegram.SendPauseMs == 0 {
		cfg.Telegram.SendPauseMs = 2000
	}
	if cfg.Telegram.TimeoutSec == 0 {
		cfg.Telegram.TimeoutSec = 10
	}
	if cfg.Filters.MinFDVUSD == 0 {
		cfg.Filters.MinFDVUSD = 20000
	}
	if cfg.Filters.MinLiquidityUSD == 0 {
		cfg.Filters.MinLiquidityUSD = 10000
	}
	if cfg.Filters.MinHolders == 0 {
		cfg.Filters.MinHolders = 80
	}
	if cfg.Filters.MinRiskScore == 0 {
		cfg.Filters.MinRiskScore = 50
	}
	if cfg.Filters.MaxSingleHolderPct == 0 {
		cfg.Filters.MaxSingleHolderPct = 30
	}
	if cfg.Filters.OverrideHolders == 0 {
		cfg.Filters.OverrideHolders = 500
	}
	if cfg.Filters.NearMissMarginPct == 0 {
		cfg.Filters.NearMissMarginPct = 20
	}
	if len(cfg.Tracking.MilestonesUSD) == 0 {
		cfg.Tracking.MilestonesUSD = []int64{50_000, 100_000, 250_000, 500_000, 1_000_000}
	}
	if cfg.Tracking.SoarWindowMin == 0 {
		cfg.Tracking.SoarWindowMin = 60
	}
	if cfg.Tracking.SoarWindowMax == 0 {
		cfg.Tracking.SoarWindowMax = 67
	}
	if cfg.Tracking.SoarMultiplier == 0 {
		cfg.Tracking.SoarMultiplier = 2.0
	}
	if cfg.Tracking.WinMultiplier == 0 {
		cfg.Tracking.WinMultiplier = 2.0
	}
	if cfg.Tracking.WinFloorUSD == 0 {
		cfg.Tracking.WinFloorUSD = 100_000
	}
	if cfg.Scheduler.PollIntervalSec == 0 {
		cfg.Scheduler.PollIntervalSec = 60
	}
	if len(cfg.Scheduler.SummaryTimes) == 0 {
		cfg.Scheduler.SummaryTimes = []string{"09:00", "21:00"}
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.State.Dir == "" {
		cfg.State.Dir = "data"
	}
}

// resolveSecrets fills secret values from their *_file counterparts when
// the inline value is empty. Deployments mount each secret as its own file
// under /etc/secrets.
func resolveSecrets(cfg *Config) error {
	pairs := []struct {
		dst  *string
		file string
		name string
	}{
		{&cfg.Moralis.APIKey, cfg.Moralis.APIKeyFile, "moralis.api_key"},
		{&cfg.Bonding.BearerToken, cfg.Bonding.TokenFile, "bonding.bearer_token"},
		{&cfg.Helius.APIKey, cfg.Helius.APIKeyFile, "helius.api_key"},
		{&cfg.Telegram.BotToken, cfg.Telegram.BotTokenFile, "telegram.bot_token"},
		{&cfg.Telegram.ChatID, cfg.Telegram.ChatIDFile, "telegram.chat_id"},
	}
	for _, p := range pairs {
		if *p.dst != "" || p.file == "" {
			continue
		}
		data, err := os.ReadFile(p.file)
		if err != nil {
			return fmt.Errorf("config: read secret file for %s: %w", p.name, err)
		}
		*p.dst = strings.TrimSpace(string(data))
	}
	return nil
}
