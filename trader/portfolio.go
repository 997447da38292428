package trader

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
)

// BalanceSource reads a wallet's USDC balance.
type BalanceSource interface {
	USDCBalance(ctx context.Context, wallet string) (float64, error)
}

// PositionValuer reads a wallet's open-position mark value.
type PositionValuer interface {
	PositionsValue(ctx context.Context, wallet string) (float64, error)
}

// PortfolioTracker derives point-in-time snapshots of the follower account
// and estimates the target's net worth for dynamic sizing. Snapshots are
// computed fresh; the tracker itself only caches order-cadence state.
type PortfolioTracker struct {
	balance BalanceSource
	valuer  PositionValuer
	store   storage.DataStore
	cfg     config.BankrollConfig

	wallet       string
	targetWallet string
	targetFloor  float64

	mu                sync.Mutex
	lastOrderAt       time.Time
	lastOrderByMarket map[string]time.Time
}

// NewPortfolioTracker creates a tracker for the follower wallet.
func NewPortfolioTracker(balance BalanceSource, valuer PositionValuer, store storage.DataStore,
	cfg config.BankrollConfig, wallet, targetWallet string, targetFloor float64) *PortfolioTracker {
	return &PortfolioTracker{
		balance:           balance,
		valuer:            valuer,
		store:             store,
		cfg:               cfg,
		wallet:            wallet,
		targetWallet:      targetWallet,
		targetFloor:       targetFloor,
		lastOrderByMarket: make(map[string]time.Time),
	}
}

// Snapshot reads balances and PnL and assembles a fresh snapshot. A failed
// balance read fails the snapshot; the caller skips the tick rather than
// trade on stale numbers.
func (t *PortfolioTracker) Snapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	cash, err := t.balance.USDCBalance(ctx, t.wallet)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}

	posValue, err := t.valuer.PositionsValue(ctx, t.wallet)
	if err != nil {
		// Fall back to cost basis from our own ledger.
		log.Printf("[Portfolio] Mark-value read failed, using cost basis: %v", err)
		positions, lerr := t.store.ListPositions(ctx)
		if lerr != nil {
			return nil, fmt.Errorf("read positions: %w", lerr)
		}
		posValue = 0
		for _, pos := range positions {
			posValue += pos.CostBasis
		}
	}

	netWorth := cash + posValue

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	realizedToday, err := t.store.RealizedPnLSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("read realized pnl: %w", err)
	}

	tradesToday, err := t.store.CountOrdersSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("count trades: %w", err)
	}

	positions, err := t.store.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	peak, err := t.store.GetPeakNetWorth(ctx)
	if err != nil {
		return nil, fmt.Errorf("read peak: %w", err)
	}
	if netWorth > peak {
		peak = netWorth
		if err := t.store.SetPeakNetWorth(ctx, peak); err != nil {
			log.Printf("[Portfolio] Persist peak failed: %v", err)
		}
	}

	snap := &models.PortfolioSnapshot{
		Cash:          cash,
		PositionValue: posValue,
		NetWorth:      netWorth,
		RealizedToday: realizedToday,
		PeakNetWorth:  peak,
		OpenPositions: len(positions),
		TradesToday:   tradesToday,
		TakenAt:       time.Now().UTC(),
	}
	snap.Bankroll = t.bankroll(snap)
	return snap, nil
}

func (t *PortfolioTracker) bankroll(snap *models.PortfolioSnapshot) float64 {
	if t.cfg.Mode == "fixed" {
		return t.cfg.FixedUSDC
	}
	return snap.NetWorth * t.cfg.Fraction
}

// TargetNetWorth estimates the copied account's total worth: on-chain USDC
// plus open-position value, floored at the configured initial capital so a
// failed read never produces absurd dynamic sizes.
func (t *PortfolioTracker) TargetNetWorth(ctx context.Context) float64 {
	total := 0.0

	if cash, err := t.balance.USDCBalance(ctx, t.targetWallet); err == nil {
		total += cash
	} else {
		log.Printf("[Portfolio] Target balance read failed: %v", err)
	}
	if value, err := t.valuer.PositionsValue(ctx, t.targetWallet); err == nil {
		total += value
	} else {
		log.Printf("[Portfolio] Target positions read failed: %v", err)
	}

	if total < t.targetFloor {
		return t.targetFloor
	}
	return total
}

// AccountState assembles the cadence and exposure view the validator reads.
func (t *PortfolioTracker) AccountState(ctx context.Context) (*models.AccountState, error) {
	ordersLastHour, err := t.store.CountOrdersSince(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("count recent orders: %w", err)
	}

	positions, err := t.store.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	openByMarket := make(map[string]float64, len(positions))
	for _, pos := range positions {
		openByMarket[pos.ConditionID] += pos.CostBasis
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	byMarket := make(map[string]time.Time, len(t.lastOrderByMarket))
	for market, at := range t.lastOrderByMarket {
		byMarket[market] = at
	}

	return &models.AccountState{
		LastOrderAt:       t.lastOrderAt,
		LastOrderByMarket: byMarket,
		OrdersLastHour:    ordersLastHour,
		OpenByMarket:      openByMarket,
	}, nil
}

// RecordOrder notes a successful submission for cadence checks.
func (t *PortfolioTracker) RecordOrder(conditionID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastOrderAt = at
	t.lastOrderByMarket[conditionID] = at
}

// ApplyBuyLocal returns a copy of the snapshot with a buy fill folded in, so
// the next event in the same tick sees its effect without a refetch. The
// input snapshot is left untouched. Net worth is unchanged: cash converts to
// position value at cost.
func (t *PortfolioTracker) ApplyBuyLocal(snap *models.PortfolioSnapshot, notional float64) *models.PortfolioSnapshot {
	next := *snap
	next.Cash -= notional
	next.PositionValue += notional
	next.TradesToday++
	return &next
}

// ApplySellLocal returns a copy of the snapshot with a sell fill and its
// realized PnL folded in. The input snapshot is left untouched.
func (t *PortfolioTracker) ApplySellLocal(snap *models.PortfolioSnapshot, proceeds, costRemoved, realized float64) *models.PortfolioSnapshot {
	next := *snap
	next.Cash += proceeds
	next.PositionValue -= costRemoved
	next.NetWorth = next.Cash + next.PositionValue
	next.RealizedToday += realized
	next.TradesToday++
	if next.NetWorth > next.PeakNetWorth {
		next.PeakNetWorth = next.NetWorth
	}
	next.Bankroll = t.bankroll(&next)
	return &next
}
