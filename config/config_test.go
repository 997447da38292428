package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x1234567890abcdef1234567890abcdef12345678"

func validConfig() Config {
	cfg := Default()
	cfg.Target.Address = testAddress
	return cfg
}

func TestDefaultIsValidOnceTargetIsSet(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Execution.DryRun, "default must be dry run")
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing target",
			mutate:  func(c *Config) { c.Target.Address = "" },
			wantErr: "target.address",
		},
		{
			name:    "malformed target",
			mutate:  func(c *Config) { c.Target.Address = "0x123" },
			wantErr: "not an address",
		},
		{
			name:    "unknown bankroll mode",
			mutate:  func(c *Config) { c.Bankroll.Mode = "martingale" },
			wantErr: "bankroll.mode",
		},
		{
			name: "fixed mode without amount",
			mutate: func(c *Config) {
				c.Bankroll.Mode = "fixed"
				c.Bankroll.FixedUSDC = 0
			},
			wantErr: "fixed_usdc",
		},
		{
			name: "order bounds inverted",
			mutate: func(c *Config) {
				c.Bankroll.MinOrderUSDC = 100
				c.Bankroll.MaxOrderUSDC = 10
			},
			wantErr: "order bounds",
		},
		{
			name:    "kelly cap out of range",
			mutate:  func(c *Config) { c.Bankroll.KellyCap = 1.5 },
			wantErr: "kelly_cap",
		},
		{
			name: "price range inverted",
			mutate: func(c *Config) {
				c.Validation.MinPrice = 0.90
				c.Validation.MaxPrice = 0.10
			},
			wantErr: "price range",
		},
		{
			name: "soft limit above hard limit",
			mutate: func(c *Config) {
				c.Risk.SoftDailyLossPct = 6
				c.Risk.HardDailyLossPct = 5
			},
			wantErr: "soft_daily_loss_pct",
		},
		{
			name:    "drawdown out of range",
			mutate:  func(c *Config) { c.Risk.MaxDrawdownPct = 100 },
			wantErr: "max_drawdown_pct",
		},
		{
			name:    "unknown resume mode",
			mutate:  func(c *Config) { c.Risk.ResumeMode = "never" },
			wantErr: "resume_mode",
		},
		{
			name: "cooldown mode without cooldown",
			mutate: func(c *Config) {
				c.Risk.ResumeMode = "cooldown"
				c.Risk.CooldownMinutes = 0
			},
			wantErr: "cooldown_minutes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateLiveTradingNeedsSigningKey(t *testing.T) {
	t.Setenv("POLYMARKET_PRIVATE_KEY", "")
	os.Unsetenv("POLYMARKET_PRIVATE_KEY")

	cfg := validConfig()
	cfg.Execution.DryRun = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLYMARKET_PRIVATE_KEY")

	t.Setenv("POLYMARKET_PRIVATE_KEY", "0af23caa24a3e77a0ead18de1c1ea81953e390e665e877b078ac45ef816f5ba3")
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("TARGET_ACCOUNT", testAddress)

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Polling.IntervalSec)
	assert.Equal(t, "fixed", cfg.Bankroll.Mode)
}

func TestLoadReadsYamlAndFillsGaps(t *testing.T) {
	t.Setenv("TARGET_ACCOUNT", "")
	os.Unsetenv("TARGET_ACCOUNT")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target:
  address: "`+testAddress+`"
polling:
  interval_sec: 5
bankroll:
  mode: dynamic
  fraction: 0.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, testAddress, cfg.Target.Address)
	assert.Equal(t, 5, cfg.Polling.IntervalSec)
	assert.Equal(t, "dynamic", cfg.Bankroll.Mode)
	assert.Equal(t, 0.5, cfg.Bankroll.Fraction)
	// Unspecified sections keep their defaults.
	assert.Equal(t, 3, cfg.Execution.MaxRetries)
	assert.Equal(t, 300, cfg.Validation.MaxTradeAgeSec)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target:
  address: "`+testAddress+`"
execution:
  dry_run: true
`), 0o644))

	other := "0xABCDEF7890abcdef1234567890abcdef12345678"
	t.Setenv("TARGET_ACCOUNT", other)
	t.Setenv("DRY_RUN", "true")
	t.Setenv("BANKROLL_MODE", "DYNAMIC")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef7890abcdef1234567890abcdef12345678", cfg.Target.Address,
		"env address is lowercased")
	assert.True(t, cfg.Execution.DryRun)
	assert.Equal(t, "dynamic", cfg.Bankroll.Mode)
}
