package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the KESTREL engine.
type Config struct {
	General  GeneralConfig  `yaml:"general"`
	Server   ServerConfig   `yaml:"server"`
	Feed     FeedConfig     `yaml:"feed"`
	Detector DetectorConfig `yaml:"detector"`
	Audit    AuditConfig    `yaml:"audit"`
	Trading  TradingConfig  `yaml:"trading"`
	Risk     RiskConfig     `yaml:"risk"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Notify   NotifyConfig   `yaml:"notify"`
	Journal  JournalConfig  `yaml:"journal"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	DryRun      bool   `yaml:"dry_run"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
	LogFile     string `yaml:"log_file"`   // empty = stderr only
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type FeedConfig struct {
	Mode             string `yaml:"mode"` // sim|ws
	WSURL            string `yaml:"ws_url"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
	SimIntervalMs    int    `yaml:"sim_interval_ms"`
}

type DetectorConfig struct {
	MinHypeScore     float64 `yaml:"min_hype_score"`
	WindowHours      int     `yaml:"window_hours"`
	MaxWindow        int     `yaml:"max_window"` // hard cap on buffered signals
	PruneIntervalMin int     `yaml:"prune_interval_min"`
}

type AuditConfig struct {
	CacheTTLSeconds    int     `yaml:"cache_ttl_seconds"`
	SafeScoreThreshold float64 `yaml:"safe_score_threshold"`
	MinLiquidityUSD    float64 `yaml:"min_liquidity_usd"`
	MaxTaxPct          float64 `yaml:"max_tax_pct"`
	MaxHolderPct       float64 `yaml:"max_holder_pct"`
	ProviderTimeoutMs  int     `yaml:"provider_timeout_ms"`
	HoneypotAPIURL     string  `yaml:"honeypot_api_url"`
	RugcheckAPIURL     string  `yaml:"rugcheck_api_url"`
}

type TradingConfig struct {
	WalletBalanceUSD float64 `yaml:"wallet_balance_usd"`
	ProfitTargetPct  float64 `yaml:"profit_target_pct"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	TrailingStopPct  float64 `yaml:"trailing_stop_pct"`
	MaxHoldHours     int     `yaml:"max_hold_hours"`
	MonitorTickMs    int     `yaml:"monitor_tick_ms"`
	ErrorBackoffMs   int     `yaml:"error_backoff_ms"`
	SafetyRecheckS   int     `yaml:"safety_recheck_s"` // 0 disables the recheck loop
	ClosedHistoryMax int     `yaml:"closed_history_max"`
}

// RiskConfig selects a sizing strategy; zero-valued overrides fall back to
// the strategy table.
type RiskConfig struct {
	Strategy          string  `yaml:"strategy"` // conservative|balanced|aggressive|adaptive
	MaxOpenPositions  int     `yaml:"max_open_positions"`
	MaxTradesPerDay   int     `yaml:"max_trades_per_day"`
	DailyLossLimitPct float64 `yaml:"daily_loss_limit_pct"`
	MinTradeUSD       float64 `yaml:"min_trade_usd"`
	MaxTradeUSD       float64 `yaml:"max_trade_usd"`
}

type PipelineConfig struct {
	SignalIntervalMs int `yaml:"signal_interval_ms"`
	TopN             int `yaml:"top_n"`
	StatusIntervalS  int `yaml:"status_interval_s"`
	ProcessedCap     int `yaml:"processed_cap"`
	AuditWorkers     int `yaml:"audit_workers"`
	ErrorBackoffMs   int `yaml:"error_backoff_ms"`
}

type NotifyConfig struct {
	Mode       string `yaml:"mode"` // log|webhook
	WebhookURL string `yaml:"webhook_url"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

type JournalConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	MaxBuffer int    `yaml:"max_buffer"`
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

	// Apply defaults
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// running without a config file (dry-run mode).
func Default() *Config {
	cfg := &Config{}
	cfg.General.DryRun = true
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "kestrel-1"
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
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8085"
	}
	if cfg.Feed.Mode == "" {
		cfg.Feed.Mode = "sim"
	}
	if cfg.Feed.ReconnectDelayMs == 0 {
		cfg.Feed.ReconnectDelayMs = 1000
	}
	if cfg.Feed.PingIntervalS == 0 {
		cfg.Feed.PingIntervalS = 30
	}
	if cfg.Feed.SimIntervalMs == 0 {
		cfg.Feed.SimIntervalMs = 3000
	}
	if cfg.Detector.MinHypeScore == 0 {
		cfg.Detector.MinHypeScore = 70
	}
	if cfg.Detector.WindowHours == 0 {
		cfg.Detector.WindowHours = 24
	}
	if cfg.Detector.MaxWindow == 0 {
		cfg.Detector.MaxWindow = 5000
	}
	if cfg.Detector.PruneIntervalMin == 0 {
		cfg.Detector.PruneIntervalMin = 10
	}
	if cfg.Audit.CacheTTLSeconds == 0 {
		cfg.Audit.CacheTTLSeconds = 300
	}
	if cfg.Audit.SafeScoreThreshold == 0 {
		cfg.Audit.SafeScoreThreshold = 80
	}
	if cfg.Audit.MinLiquidityUSD == 0 {
		cfg.Audit.MinLiquidityUSD = 10000
	}
	if cfg.Audit.MaxTaxPct == 0 {
		cfg.Audit.MaxTaxPct = 10
	}
	if cfg.Audit.MaxHolderPct == 0 {
		cfg.Audit.MaxHolderPct = 50
	}
	if cfg.Audit.ProviderTimeoutMs == 0 {
		cfg.Audit.ProviderTimeoutMs = 10000
	}
	if cfg.Audit.HoneypotAPIURL == "" {
		cfg.Audit.HoneypotAPIURL = "https://api.honeypot.is/v2"
	}
	if cfg.Audit.RugcheckAPIURL == "" {
		cfg.Audit.RugcheckAPIURL = "https://api.rugcheck.xyz/v1"
	}
	if cfg.Trading.WalletBalanceUSD == 0 {
		cfg.Trading.WalletBalanceUSD = 1000
	}
	if cfg.Trading.ProfitTargetPct == 0 {
		cfg.Trading.ProfitTargetPct = 500
	}
	if cfg.Trading.StopLossPct == 0 {
		cfg.Trading.StopLossPct = 50
	}
	if cfg.Trading.TrailingStopPct == 0 {
		cfg.Trading.TrailingStopPct = 20
	}
	if cfg.Trading.MaxHoldHours == 0 {
		cfg.Trading.MaxHoldHours = 24
	}
	if cfg.Trading.MonitorTickMs == 0 {
		cfg.Trading.MonitorTickMs = 5000
	}
	if cfg.Trading.ErrorBackoffMs == 0 {
		cfg.Trading.ErrorBackoffMs = 10000
	}
	if cfg.Trading.SafetyRecheckS == 0 {
		cfg.Trading.SafetyRecheckS = 60
	}
	if cfg.Trading.ClosedHistoryMax == 0 {
		cfg.Trading.ClosedHistoryMax = 500
	}
	if cfg.Risk.Strategy == "" {
		cfg.Risk.Strategy = "adaptive"
	}
	if cfg.Pipeline.SignalIntervalMs == 0 {
		cfg.Pipeline.SignalIntervalMs = 5000
	}
	if cfg.Pipeline.TopN == 0 {
		cfg.Pipeline.TopN = 10
	}
	if cfg.Pipeline.StatusIntervalS == 0 {
		cfg.Pipeline.StatusIntervalS = 300
	}
	if cfg.Pipeline.ProcessedCap == 0 {
		cfg.Pipeline.ProcessedCap = 1000
	}
	if cfg.Pipeline.AuditWorkers == 0 {
		cfg.Pipeline.AuditWorkers = 4
	}
	if cfg.Pipeline.ErrorBackoffMs == 0 {
		cfg.Pipeline.ErrorBackoffMs = 10000
	}
	if cfg.Notify.Mode == "" {
		cfg.Notify.Mode = "log"
	}
	if cfg.Notify.TimeoutMs == 0 {
		cfg.Notify.TimeoutMs = 5000
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "kestrel-journal.jsonl"
	}
	if cfg.Journal.MaxBuffer == 0 {
		cfg.Journal.MaxBuffer = 1000
	}
}

// Validate rejects configurations that cannot be run.
func (c *Config) Validate() error {
	switch c.Feed.Mode {
	case "sim", "ws":
	default:
		return fmt.Errorf("config: unknown feed mode %q", c.Feed.Mode)
	}
	if c.Feed.Mode == "ws" && c.Feed.WSURL == "" {
		return fmt.Errorf("config: feed mode ws requires ws_url")
	}
	switch c.Risk.Strategy {
	case "conservative", "balanced", "aggressive", "adaptive":
	default:
		return fmt.Errorf("config: unknown risk strategy %q", c.Risk.Strategy)
	}
	switch c.Notify.Mode {
	case "log", "webhook":
	default:
		return fmt.Errorf("config: unknown notify mode %q", c.Notify.Mode)
	}
	if c.Notify.Mode == "webhook" && c.Notify.WebhookURL == "" {
		return fmt.Errorf("config: notify mode webhook requires webhook_url")
	}
	if !c.General.DryRun && c.Feed.Mode == "sim" {
		return fmt.Errorf("config: sim feed is only valid in dry-run mode")
	}
	if c.Trading.WalletBalanceUSD < 0 {
		return fmt.Errorf("config: wallet_balance_usd must be >= 0")
	}
	return nil
}
