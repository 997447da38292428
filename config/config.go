package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TargetConfig identifies the account being copied.
type TargetConfig struct {
	Address            string  `yaml:"address"`
	InitialCapitalUSDC float64 `yaml:"initial_capital_usdc"` // net-worth estimate floor
	WinRate            float64 `yaml:"win_rate"`             // observed win rate, feeds the Kelly cap
}

// PollingConfig controls the change-detection loop.
type PollingConfig struct {
	IntervalSec      int  `yaml:"interval_sec"`
	PerTickCap       int  `yaml:"per_tick_cap"`       // max new trades processed per tick
	LookbackMinutes  int  `yaml:"lookback_minutes"`   // cold-start seen-set rebuild window
	PageLimit        int  `yaml:"page_limit"`         // trades per source page
	UseWebsocketHint bool `yaml:"use_websocket_hint"` // WS activity nudges an early poll
}

// BankrollConfig selects the sizing base.
type BankrollConfig struct {
	Mode            string  `yaml:"mode"`              // "fixed" or "dynamic"
	FixedUSDC       float64 `yaml:"fixed_usdc"`
	Fraction        float64 `yaml:"fraction"`          // dynamic: fraction of net worth usable
	KellyCap        float64 `yaml:"kelly_cap"`         // max fraction of bankroll per trade
	UseKellyEdge    bool    `yaml:"use_kelly_edge"`    // modulate dynamic size by edge estimate
	MinOrderUSDC    float64 `yaml:"min_order_usdc"`
	MaxOrderUSDC    float64 `yaml:"max_order_usdc"`
	MaxPortfolioPct float64 `yaml:"max_portfolio_pct"` // per-trade cap as % of net worth
}

// ValidationConfig holds every validator threshold.
type ValidationConfig struct {
	MinPrice             float64 `yaml:"min_price"`
	MaxPrice             float64 `yaml:"max_price"`
	MaxTradeAgeSec       int     `yaml:"max_trade_age_sec"`
	MinHoursUntilClose   float64 `yaml:"min_hours_until_close"`
	MinBookDepthUSDC     float64 `yaml:"min_book_depth_usdc"`
	MaxSpreadPct         float64 `yaml:"max_spread_pct"`
	MinVolume24hUSDC     float64 `yaml:"min_volume_24h_usdc"`
	MaxVolumeRatio       float64 `yaml:"max_volume_ratio"` // trade notional / 24h volume
	MinSecondsBetween    int     `yaml:"min_seconds_between_trades"`
	MinSecondsPerMarket  int     `yaml:"min_seconds_per_market"`
	MaxTradesPerHour     int     `yaml:"max_trades_per_hour"`
	MaxOpenNotionalUSDC  float64 `yaml:"max_open_notional_usdc"` // per-market exposure cap
	MinNotionalUSDC      float64 `yaml:"min_notional_usdc"`      // bounds on the target's trade
	MaxNotionalUSDC      float64 `yaml:"max_notional_usdc"`
}

// RiskConfig holds the circuit-breaker thresholds.
type RiskConfig struct {
	SoftDailyLossPct float64 `yaml:"soft_daily_loss_pct"` // Normal -> Warning
	HardDailyLossPct float64 `yaml:"hard_daily_loss_pct"` // Warning -> Halted
	MaxDrawdownPct   float64 `yaml:"max_drawdown_pct"`    // peak drawdown -> Halted
	// ResumeMode decides how a halt clears: "daily" waits for UTC rollover,
	// "cooldown" also re-arms after CooldownMinutes.
	ResumeMode      string `yaml:"resume_mode"`
	CooldownMinutes int    `yaml:"cooldown_minutes"`
}

// ExecutionConfig controls order submission behavior.
type ExecutionConfig struct {
	DryRun           bool    `yaml:"dry_run"`
	MaxRetries       int     `yaml:"max_retries"`
	RetryDelayMS     int     `yaml:"retry_delay_ms"`
	RequestTimeoutMS int     `yaml:"request_timeout_ms"`
	MaxSlippagePct   float64 `yaml:"max_slippage_pct"` // base tier; widened at low prices
}

// NotifyConfig toggles notification categories.
type NotifyConfig struct {
	Trades          bool `yaml:"trades"`
	Rejections      bool `yaml:"rejections"`
	CircuitBreakers bool `yaml:"circuit_breakers"`
	Errors          bool `yaml:"errors"`
}

// ServerConfig controls the operator HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Config aggregates all knobs for the copy trader.
type Config struct {
	Target     TargetConfig     `yaml:"target"`
	Polling    PollingConfig    `yaml:"polling"`
	Bankroll   BankrollConfig   `yaml:"bankroll"`
	Validation ValidationConfig `yaml:"validation"`
	Risk       RiskConfig       `yaml:"risk"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Notify     NotifyConfig     `yaml:"notify"`
	Server     ServerConfig     `yaml:"server"`
}

// Load reads configuration from disk, falling back to defaults when the file
// is absent. Env overrides for the two operational switches are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	configPath := path
	if configPath == "" {
		configPath = filepath.Join("config", "default.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: unable to read %s: %w", configPath, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unable to parse %s: %w", configPath, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Target: TargetConfig{
			InitialCapitalUSDC: 10000,
			WinRate:            0.55,
		},
		Polling: PollingConfig{
			IntervalSec:      10,
			PerTickCap:       20,
			LookbackMinutes:  60,
			PageLimit:        50,
			UseWebsocketHint: true,
		},
		Bankroll: BankrollConfig{
			Mode:            "fixed",
			FixedUSDC:       1000,
			Fraction:        1.0,
			KellyCap:        0.25,
			MinOrderUSDC:    1,
			MaxOrderUSDC:    1000,
			MaxPortfolioPct: 10,
		},
		Validation: ValidationConfig{
			MinPrice:            0.01,
			MaxPrice:            0.99,
			MaxTradeAgeSec:      300,
			MinHoursUntilClose:  24,
			MinBookDepthUSDC:    1000,
			MaxSpreadPct:        5,
			MinVolume24hUSDC:    5000,
			MaxVolumeRatio:      0.10,
			MinSecondsBetween:   30,
			MinSecondsPerMarket: 60,
			MaxTradesPerHour:    10,
			MaxOpenNotionalUSDC: 2000,
			MinNotionalUSDC:     1,
			MaxNotionalUSDC:     100000,
		},
		Risk: RiskConfig{
			SoftDailyLossPct: 3,
			HardDailyLossPct: 5,
			MaxDrawdownPct:   15,
			ResumeMode:       "daily",
			CooldownMinutes:  120,
		},
		Execution: ExecutionConfig{
			DryRun:           true,
			MaxRetries:       3,
			RetryDelayMS:     500,
			RequestTimeoutMS: 10000,
			MaxSlippagePct:   20,
		},
		Notify: NotifyConfig{
			Trades:          true,
			Rejections:      true,
			CircuitBreakers: true,
			Errors:          true,
		},
		Server: ServerConfig{Port: 8090},
	}
}

func (c *Config) applyDefaults() {
	if c.Polling.IntervalSec <= 0 {
		c.Polling.IntervalSec = 10
	}
	if c.Polling.PerTickCap <= 0 {
		c.Polling.PerTickCap = 20
	}
	if c.Polling.PageLimit <= 0 {
		c.Polling.PageLimit = 50
	}
	if c.Polling.LookbackMinutes <= 0 {
		c.Polling.LookbackMinutes = 60
	}
	if c.Bankroll.Mode == "" {
		c.Bankroll.Mode = "fixed"
	}
	if c.Bankroll.Fraction <= 0 {
		c.Bankroll.Fraction = 1.0
	}
	if c.Execution.MaxRetries <= 0 {
		c.Execution.MaxRetries = 3
	}
	if c.Execution.RetryDelayMS <= 0 {
		c.Execution.RetryDelayMS = 500
	}
	if c.Execution.RequestTimeoutMS <= 0 {
		c.Execution.RequestTimeoutMS = 10000
	}
	if c.Execution.MaxSlippagePct <= 0 {
		c.Execution.MaxSlippagePct = 20
	}
	if c.Risk.ResumeMode == "" {
		c.Risk.ResumeMode = "daily"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = 8090
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TARGET_ACCOUNT"); v != "" {
		c.Target.Address = strings.ToLower(v)
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		c.Execution.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("BANKROLL_MODE"); v != "" {
		c.Bankroll.Mode = strings.ToLower(v)
	}
}

// Validate rejects configurations the trading loop must never start with.
// A non-nil error here is fatal at startup.
func (c *Config) Validate() error {
	if c.Target.Address == "" {
		return fmt.Errorf("config: target.address is required (or set TARGET_ACCOUNT)")
	}
	if !strings.HasPrefix(c.Target.Address, "0x") || len(c.Target.Address) != 42 {
		return fmt.Errorf("config: target.address %q is not an address", c.Target.Address)
	}
	switch c.Bankroll.Mode {
	case "fixed", "dynamic":
	default:
		return fmt.Errorf("config: bankroll.mode %q must be fixed or dynamic", c.Bankroll.Mode)
	}
	if c.Bankroll.Mode == "fixed" && c.Bankroll.FixedUSDC <= 0 {
		return fmt.Errorf("config: bankroll.fixed_usdc must be positive in fixed mode")
	}
	if c.Bankroll.MinOrderUSDC <= 0 || c.Bankroll.MaxOrderUSDC < c.Bankroll.MinOrderUSDC {
		return fmt.Errorf("config: bankroll order bounds invalid: min=%.2f max=%.2f",
			c.Bankroll.MinOrderUSDC, c.Bankroll.MaxOrderUSDC)
	}
	if c.Bankroll.KellyCap <= 0 || c.Bankroll.KellyCap > 1 {
		return fmt.Errorf("config: bankroll.kelly_cap %.2f must be in (0, 1]", c.Bankroll.KellyCap)
	}
	if c.Validation.MinPrice <= 0 || c.Validation.MaxPrice >= 1 || c.Validation.MinPrice >= c.Validation.MaxPrice {
		return fmt.Errorf("config: validation price range [%.2f, %.2f] invalid",
			c.Validation.MinPrice, c.Validation.MaxPrice)
	}
	if c.Risk.SoftDailyLossPct <= 0 || c.Risk.HardDailyLossPct <= 0 {
		return fmt.Errorf("config: risk loss limits must be positive")
	}
	if c.Risk.SoftDailyLossPct >= c.Risk.HardDailyLossPct {
		return fmt.Errorf("config: risk.soft_daily_loss_pct %.1f must be below hard_daily_loss_pct %.1f",
			c.Risk.SoftDailyLossPct, c.Risk.HardDailyLossPct)
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct >= 100 {
		return fmt.Errorf("config: risk.max_drawdown_pct %.1f must be in (0, 100)", c.Risk.MaxDrawdownPct)
	}
	switch c.Risk.ResumeMode {
	case "daily":
	case "cooldown":
		if c.Risk.CooldownMinutes <= 0 {
			return fmt.Errorf("config: risk.cooldown_minutes must be positive in cooldown mode")
		}
	default:
		return fmt.Errorf("config: risk.resume_mode %q must be daily or cooldown", c.Risk.ResumeMode)
	}
	if !c.Execution.DryRun && os.Getenv("POLYMARKET_PRIVATE_KEY") == "" {
		return fmt.Errorf("config: POLYMARKET_PRIVATE_KEY is required for live trading")
	}
	return nil
}
