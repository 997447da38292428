package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymarket-copytrader/models"
)

func TestMockStoreSeenSet(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()
	now := time.Now().UTC()

	seen, err := m.IsTradeSeen(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, m.MarkTradesSeen(ctx, []string{"t1", "t2"}, now))
	seen, err = m.IsTradeSeen(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, seen)

	ids, err := m.LoadSeenTrades(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)

	pruned, err := m.PruneSeenTrades(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)
}

func TestMockStoreApplyFillAverages(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	require.NoError(t, m.ApplyFill(ctx, models.Position{
		TokenID: "tok-1", Size: 100, AvgPrice: 0.40, CostBasis: 40,
	}))
	require.NoError(t, m.ApplyFill(ctx, models.Position{
		TokenID: "tok-1", Size: 100, AvgPrice: 0.60, CostBasis: 60,
	}))

	pos, err := m.GetPosition(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.InDelta(t, 200, pos.Size, 0.001)
	assert.InDelta(t, 0.50, pos.AvgPrice, 0.001)
	assert.InDelta(t, 100, pos.CostBasis, 0.001)
}

func TestMockStoreReducePosition(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()
	require.NoError(t, m.ApplyFill(ctx, models.Position{
		TokenID: "tok-1", Size: 100, AvgPrice: 0.40, CostBasis: 40,
	}))

	avg, err := m.ReducePosition(ctx, "tok-1", 25)
	require.NoError(t, err)
	assert.InDelta(t, 0.40, avg, 0.001)

	pos, err := m.GetPosition(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.InDelta(t, 75, pos.Size, 0.001)
	assert.InDelta(t, 30, pos.CostBasis, 0.001)

	// Reducing to dust removes the row.
	_, err = m.ReducePosition(ctx, "tok-1", 74.995)
	require.NoError(t, err)
	pos, err = m.GetPosition(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, pos)

	_, err = m.ReducePosition(ctx, "tok-1", 1)
	assert.Error(t, err, "no position left to reduce")
}

func TestMockStoreRealizedPnLAndOrderCounts(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	require.NoError(t, m.SaveCopyTrade(ctx, CopyTradeRecord{
		TradeID: "t1", Status: "filled", RealizedPnL: 10,
	}))
	require.NoError(t, m.SaveCopyTrade(ctx, CopyTradeRecord{
		TradeID: "t2", Status: "skipped_validation",
	}))
	require.NoError(t, m.SaveCopyTrade(ctx, CopyTradeRecord{
		TradeID: "t3", Status: "dry_run", RealizedPnL: -4,
	}))

	pnl, err := m.RealizedPnLSince(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 6, pnl, 0.001)

	count, err := m.CountOrdersSince(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count, "skips are not orders")
}

func TestMockStoreErrorInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()
	m.ErrorOnNext["SaveCopyTrade"] = assert.AnError

	err := m.SaveCopyTrade(ctx, CopyTradeRecord{TradeID: "t1"})
	assert.Error(t, err)

	// One-shot: the next call succeeds.
	assert.NoError(t, m.SaveCopyTrade(ctx, CopyTradeRecord{TradeID: "t1"}))
	assert.Equal(t, 2, m.Calls["SaveCopyTrade"])
}

func TestMockStorePeakNetWorth(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	peak, err := m.GetPeakNetWorth(ctx)
	require.NoError(t, err)
	assert.Zero(t, peak)

	require.NoError(t, m.SetPeakNetWorth(ctx, 12345.67))
	peak, err = m.GetPeakNetWorth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12345.67, peak)
}
