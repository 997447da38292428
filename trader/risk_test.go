package trader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
	"polymarket-copytrader/notify"
	"polymarket-copytrader/storage"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		SoftDailyLossPct: 3,
		HardDailyLossPct: 5,
		MaxDrawdownPct:   15,
		ResumeMode:       "daily",
		CooldownMinutes:  120,
	}
}

func snapshot(netWorth, realizedToday, peak float64) *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		Cash:          netWorth,
		NetWorth:      netWorth,
		Bankroll:      netWorth,
		RealizedToday: realizedToday,
		PeakNetWorth:  peak,
		TakenAt:       time.Now().UTC(),
	}
}

func TestRiskGateAllowsHealthyAccount(t *testing.T) {
	g := NewRiskGate(testRiskConfig(), storage.NewMockStore(), notify.NullSink{})

	allowed, reason := g.Evaluate(context.Background(), snapshot(10000, 50, 10000))
	assert.True(t, allowed)
	assert.Empty(t, reason)

	state, _ := g.State()
	assert.Equal(t, models.BreakerNormal, state)
}

func TestRiskGateSoftLossWarnsButAllows(t *testing.T) {
	store := storage.NewMockStore()
	g := NewRiskGate(testRiskConfig(), store, notify.NullSink{})

	// 4% daily loss: above soft (3%), below hard (5%).
	allowed, _ := g.Evaluate(context.Background(), snapshot(10000, -400, 10000))
	assert.True(t, allowed)

	state, _ := g.State()
	assert.Equal(t, models.BreakerWarning, state)
	require.Len(t, store.RiskEvents, 1)
	assert.Equal(t, "warning", store.RiskEvents[0].State)
}

func TestRiskGateHardLossHalts(t *testing.T) {
	store := storage.NewMockStore()
	g := NewRiskGate(testRiskConfig(), store, notify.NullSink{})

	allowed, reason := g.Evaluate(context.Background(), snapshot(10000, -600, 10000))
	assert.False(t, allowed)
	assert.Contains(t, reason, "hard limit")

	state, _ := g.State()
	assert.Equal(t, models.BreakerHalted, state)
}

func TestRiskGateDrawdownHalts(t *testing.T) {
	g := NewRiskGate(testRiskConfig(), storage.NewMockStore(), notify.NullSink{})

	// 20% off the peak with a flat day.
	allowed, reason := g.Evaluate(context.Background(), snapshot(8000, 0, 10000))
	assert.False(t, allowed)
	assert.Contains(t, reason, "drawdown")
}

func TestRiskGateHaltIsSticky(t *testing.T) {
	g := NewRiskGate(testRiskConfig(), storage.NewMockStore(), notify.NullSink{})

	allowed, _ := g.Evaluate(context.Background(), snapshot(10000, -600, 10000))
	require.False(t, allowed)

	// Numbers recover within the same day; the halt must hold.
	allowed, reason := g.Evaluate(context.Background(), snapshot(10000, 0, 10000))
	assert.False(t, allowed)
	assert.NotEmpty(t, reason)
}

func TestRiskGateHaltClearsOnDayRollover(t *testing.T) {
	g := NewRiskGate(testRiskConfig(), storage.NewMockStore(), notify.NullSink{})

	allowed, _ := g.Evaluate(context.Background(), snapshot(10000, -600, 10000))
	require.False(t, allowed)

	// Pretend the halt happened yesterday.
	g.mu.Lock()
	g.haltedAt = g.haltedAt.Add(-25 * time.Hour)
	g.mu.Unlock()

	allowed, _ = g.Evaluate(context.Background(), snapshot(10000, 0, 10000))
	assert.True(t, allowed)

	state, _ := g.State()
	assert.Equal(t, models.BreakerNormal, state)
}

func TestRiskGateCooldownResume(t *testing.T) {
	cfg := testRiskConfig()
	cfg.ResumeMode = "cooldown"
	cfg.CooldownMinutes = 60
	g := NewRiskGate(cfg, storage.NewMockStore(), notify.NullSink{})

	allowed, _ := g.Evaluate(context.Background(), snapshot(10000, -600, 10000))
	require.False(t, allowed)

	g.mu.Lock()
	g.haltedAt = g.haltedAt.Add(-30 * time.Minute)
	g.mu.Unlock()
	allowed, _ = g.Evaluate(context.Background(), snapshot(10000, 0, 10000))
	assert.False(t, allowed, "cooldown not elapsed yet")

	g.mu.Lock()
	g.haltedAt = g.haltedAt.Add(-31 * time.Minute)
	g.mu.Unlock()
	allowed, _ = g.Evaluate(context.Background(), snapshot(10000, 0, 10000))
	assert.True(t, allowed)
}

func TestRiskGateManualReset(t *testing.T) {
	store := storage.NewMockStore()
	g := NewRiskGate(testRiskConfig(), store, notify.NullSink{})

	allowed, _ := g.Evaluate(context.Background(), snapshot(10000, -600, 10000))
	require.False(t, allowed)

	g.ManualReset(context.Background())
	state, reason := g.State()
	assert.Equal(t, models.BreakerNormal, state)
	assert.Equal(t, "manual reset", reason)

	allowed, _ = g.Evaluate(context.Background(), snapshot(10000, 0, 10000))
	assert.True(t, allowed)
}

func TestRiskGateRehaltsAfterResetWhenLossPersists(t *testing.T) {
	g := NewRiskGate(testRiskConfig(), storage.NewMockStore(), notify.NullSink{})

	allowed, _ := g.Evaluate(context.Background(), snapshot(10000, -600, 10000))
	require.False(t, allowed)

	g.ManualReset(context.Background())

	// Same breached metrics immediately re-trip the breaker.
	allowed, _ = g.Evaluate(context.Background(), snapshot(10000, -600, 10000))
	assert.False(t, allowed)
}
