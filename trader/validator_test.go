package trader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
)

func testValidator() *TradeValidator {
	return NewTradeValidator(config.Default().Validation)
}

func emptyAccount() *models.AccountState {
	return &models.AccountState{
		LastOrderByMarket: map[string]time.Time{},
		OpenByMarket:      map[string]float64{},
	}
}

func TestValidatorAcceptsCleanBuy(t *testing.T) {
	now := time.Now().UTC()
	event := buyEvent("t1", 0.50, 100, now.Add(-10*time.Second))

	verdict := testValidator().Validate(event, openMarket(), emptyAccount(), now)
	assert.True(t, verdict.Passed, "failures: %v", verdict.FailureReasons())
	assert.Nil(t, verdict.FirstFailure())
}

func TestValidatorChecks(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		mutate    func(*models.TradeEvent, *models.MarketState, *models.AccountState)
		failCheck string
	}{
		{
			name: "price too extreme",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				e.Price = 0.995
			},
			failCheck: "price_range",
		},
		{
			name: "trade too old",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				e.Timestamp = now.Add(-time.Hour)
			},
			failCheck: "trade_age",
		},
		{
			name: "market closed",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				m.Closed = true
			},
			failCheck: "market_open",
		},
		{
			name: "closing too soon",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				m.EndDate = now.Add(2 * time.Hour)
			},
			failCheck: "time_until_close",
		},
		{
			name: "thin book",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				m.AskDepthUSD = 50
			},
			failCheck: "book_depth",
		},
		{
			name: "wide spread",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				m.BestBid = 0.40
				m.BestAsk = 0.60
			},
			failCheck: "spread",
		},
		{
			name: "dead market volume",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				m.Volume24h = 100
			},
			failCheck: "volume_24h",
		},
		{
			name: "trade dwarfs volume",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				e.UsdcSize = 10000
				m.Volume24h = 20000
			},
			failCheck: "volume_ratio",
		},
		{
			name: "orders too close together",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				a.LastOrderAt = now.Add(-5 * time.Second)
			},
			failCheck: "trade_cadence",
		},
		{
			name: "same market too soon",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				a.LastOrderByMarket["cond-1"] = now.Add(-10 * time.Second)
			},
			failCheck: "market_cadence",
		},
		{
			name: "hourly rate exhausted",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				a.OrdersLastHour = 10
			},
			failCheck: "hourly_rate",
		},
		{
			name: "market exposure cap",
			mutate: func(e *models.TradeEvent, m *models.MarketState, a *models.AccountState) {
				a.OpenByMarket["cond-1"] = 2500
			},
			failCheck: "market_exposure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := buyEvent("t1", 0.50, 100, now.Add(-10*time.Second))
			market := openMarket()
			account := emptyAccount()
			tt.mutate(&event, market, account)

			verdict := testValidator().Validate(event, market, account, now)
			require.False(t, verdict.Passed)

			found := false
			for _, c := range verdict.Checks {
				if c.Name == tt.failCheck {
					assert.False(t, c.Passed, "expected %s to fail", tt.failCheck)
					found = true
				}
			}
			assert.True(t, found, "check %s missing from verdict", tt.failCheck)
		})
	}
}

func TestValidatorReportsAllFailures(t *testing.T) {
	now := time.Now().UTC()
	event := buyEvent("t1", 0.995, 100, now.Add(-time.Hour))
	market := openMarket()
	market.Volume24h = 100

	verdict := testValidator().Validate(event, market, emptyAccount(), now)
	require.False(t, verdict.Passed)
	// Every check still ran; at least three independent failures reported.
	assert.GreaterOrEqual(t, len(verdict.FailureReasons()), 3)
}

func TestValidatorSellRunsReducedChecks(t *testing.T) {
	now := time.Now().UTC()
	event := buyEvent("t1", 0.995, 100, now.Add(-10*time.Second))
	event.Side = models.SideSell

	// Entry-quality failures (extreme price, thin book) must not block exits.
	market := openMarket()
	market.AskDepthUSD = 0
	market.Volume24h = 0

	verdict := testValidator().Validate(event, market, emptyAccount(), now)
	assert.True(t, verdict.Passed, "failures: %v", verdict.FailureReasons())

	// But a closed market still blocks.
	market.Closed = true
	verdict = testValidator().Validate(event, market, emptyAccount(), now)
	assert.False(t, verdict.Passed)
}
