package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotionalPrefersReportedUsdcSize(t *testing.T) {
	e := TradeEvent{Price: 0.50, Size: 100, UsdcSize: 49.5}
	assert.Equal(t, 49.5, e.Notional())

	e.UsdcSize = 0
	assert.Equal(t, 50.0, e.Notional())
}

func TestSpreadPct(t *testing.T) {
	m := MarketState{BestBid: 0.48, BestAsk: 0.50}
	assert.InDelta(t, 4.08, m.SpreadPct(), 0.01)

	assert.Equal(t, 100.0, MarketState{BestAsk: 0.50}.SpreadPct())
	assert.Equal(t, 100.0, MarketState{BestBid: 0.48}.SpreadPct())
}

func TestDailyLossPct(t *testing.T) {
	s := PortfolioSnapshot{NetWorth: 10000, RealizedToday: -250}
	assert.InDelta(t, 0.025, s.DailyLossPct(), 1e-9)

	s.RealizedToday = 250
	assert.Zero(t, s.DailyLossPct(), "profit is not a loss")
}

func TestDrawdownPct(t *testing.T) {
	s := PortfolioSnapshot{NetWorth: 8500, PeakNetWorth: 10000}
	assert.InDelta(t, 0.15, s.DrawdownPct(), 1e-9)

	s.NetWorth = 11000
	assert.Zero(t, s.DrawdownPct(), "new high is no drawdown")

	assert.Zero(t, PortfolioSnapshot{NetWorth: 100}.DrawdownPct(), "no peak yet")
}

func TestVerdictHelpers(t *testing.T) {
	v := Verdict{Checks: []CheckResult{
		{Name: "a", Passed: true},
		{Name: "b", Passed: false, Detail: "too big"},
		{Name: "c", Passed: false, Detail: "too old"},
	}}

	assert.Equal(t, "b", v.FirstFailure().Name)
	assert.Equal(t, []string{"b: too big", "c: too old"}, v.FailureReasons())

	passed := Verdict{Checks: []CheckResult{{Name: "a", Passed: true}}, Passed: true}
	assert.Nil(t, passed.FirstFailure())
	assert.Empty(t, passed.FailureReasons())
}
