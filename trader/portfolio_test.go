package trader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymarket-copytrader/config"
	"polymarket-copytrader/storage"
)

func testTracker() *PortfolioTracker {
	cfg := config.BankrollConfig{Mode: "fixed", FixedUSDC: 100}
	balance := &fakeBalance{balances: map[string]float64{"0xme": 1000}}
	valuer := &fakeValuer{values: map[string]float64{"0xme": 500}}
	return NewPortfolioTracker(balance, valuer, storage.NewMockStore(), cfg,
		"0xme", "0xtarget", 10000)
}

func TestApplyBuyLocalReturnsFreshSnapshot(t *testing.T) {
	tr := testTracker()
	snap, err := tr.Snapshot(context.Background())
	require.NoError(t, err)
	before := *snap

	next := tr.ApplyBuyLocal(snap, 50)
	assert.Equal(t, before, *snap, "the source snapshot must not change")
	assert.InDelta(t, before.Cash-50, next.Cash, 0.001)
	assert.InDelta(t, before.PositionValue+50, next.PositionValue, 0.001)
	assert.Equal(t, before.TradesToday+1, next.TradesToday)
	// A buy at cost leaves net worth where it was.
	assert.InDelta(t, before.NetWorth, next.Cash+next.PositionValue, 0.001)
}

func TestApplySellLocalReturnsFreshSnapshot(t *testing.T) {
	tr := testTracker()
	snap, err := tr.Snapshot(context.Background())
	require.NoError(t, err)
	before := *snap

	// $210 back for a $400 cost basis: a $190 realized loss.
	next := tr.ApplySellLocal(snap, 210, 400, -190)
	assert.Equal(t, before, *snap, "the source snapshot must not change")
	assert.InDelta(t, before.Cash+210, next.Cash, 0.001)
	assert.InDelta(t, before.PositionValue-400, next.PositionValue, 0.001)
	assert.InDelta(t, -190, next.RealizedToday, 0.001)
	assert.InDelta(t, next.Cash+next.PositionValue, next.NetWorth, 0.001)
	assert.Equal(t, before.PeakNetWorth, next.PeakNetWorth, "a loss never raises the peak")
}
