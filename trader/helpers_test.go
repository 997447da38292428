package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polymarket-copytrader/models"
)

// fakeSource replays scripted feed pages and can fail on demand.
type fakeSource struct {
	mu     sync.Mutex
	trades []models.TradeEvent
	err    error
	calls  int
}

func (f *fakeSource) RecentTrades(ctx context.Context, wallet string, limit int) ([]models.TradeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.TradeEvent, len(f.trades))
	copy(out, f.trades)
	return out, nil
}

func (f *fakeSource) set(trades []models.TradeEvent, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = trades
	f.err = err
}

// fakeMarkets serves one canned state per condition ID.
type fakeMarkets struct {
	states map[string]*models.MarketState
	err    error
}

func (f *fakeMarkets) MarketState(ctx context.Context, conditionID, tokenID string) (*models.MarketState, error) {
	if f.err != nil {
		return nil, f.err
	}
	if st, ok := f.states[conditionID]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("unknown market %s", conditionID)
}

// fakeBalance maps wallet to USDC balance.
type fakeBalance struct {
	balances map[string]float64
	err      error
}

func (f *fakeBalance) USDCBalance(ctx context.Context, wallet string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.balances[wallet], nil
}

// fakeValuer maps wallet to open-position mark value.
type fakeValuer struct {
	values map[string]float64
	err    error
}

func (f *fakeValuer) PositionsValue(ctx context.Context, wallet string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.values[wallet], nil
}

// fakePositions serves a wallet's open positions.
type fakePositions struct {
	positions map[string][]models.Position
	err       error
}

func (f *fakePositions) OpenPositions(ctx context.Context, wallet string) ([]models.Position, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.positions[wallet], nil
}

// fakeVenue scripts PlaceOrder/OrderStatus responses per attempt.
type fakeVenue struct {
	mu       sync.Mutex
	acks     []*models.VenueAck
	ackErrs  []error
	statuses []*models.VenueOrderStatus
	statErrs []error
	placed   []models.Order
	looked   int
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, order models.Order) (*models.VenueAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.placed)
	f.placed = append(f.placed, order)
	if i < len(f.ackErrs) && f.ackErrs[i] != nil {
		return nil, f.ackErrs[i]
	}
	if i < len(f.acks) {
		return f.acks[i], nil
	}
	return &models.VenueAck{Accepted: true, OrderID: fmt.Sprintf("ord-%d", i), Status: "matched",
		FilledSize: order.Size, FilledPrice: order.LimitPrice}, nil
}

func (f *fakeVenue) OrderStatus(ctx context.Context, order models.Order) (*models.VenueOrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.looked
	f.looked++
	if i < len(f.statErrs) && f.statErrs[i] != nil {
		return nil, f.statErrs[i]
	}
	if i < len(f.statuses) {
		return f.statuses[i], nil
	}
	return &models.VenueOrderStatus{Found: false}, nil
}

func buyEvent(id string, price, size float64, at time.Time) models.TradeEvent {
	return models.TradeEvent{
		ID:          id,
		Trader:      "0xtarget",
		ConditionID: "cond-1",
		TokenID:     "tok-1",
		Outcome:     "Yes",
		Title:       "Will it happen?",
		Side:        models.SideBuy,
		Price:       price,
		Size:        size,
		UsdcSize:    price * size,
		Timestamp:   at,
	}
}

func openMarket() *models.MarketState {
	return &models.MarketState{
		ConditionID: "cond-1",
		Active:      true,
		Closed:      false,
		EndDate:     time.Now().UTC().Add(30 * 24 * time.Hour),
		Volume24h:   50000,
		BestBid:     0.48,
		BestAsk:     0.50,
		BidDepthUSD: 5000,
		AskDepthUSD: 5000,
		FetchedAt:   time.Now().UTC(),
	}
}
