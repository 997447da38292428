// Package models holds the shared domain records passed between the
// detector, validator, risk gate and executor.
package models

import "time"

// Side represents buy or sell.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeEvent is one observed trade from the target account. Immutable once
// built; the ID is the source-assigned identifier used for dedup and for
// deriving the order idempotency key.
type TradeEvent struct {
	ID          string
	Trader      string // proxy wallet of the target account
	ConditionID string // market identifier
	TokenID     string // outcome token reference
	Outcome     string
	Title       string
	Side        Side
	Price       float64
	Size        float64 // outcome tokens
	UsdcSize    float64 // notional in USDC
	Timestamp   time.Time
	TxHash      string
}

// Notional returns the USDC value of the trade, preferring the reported
// usdc_size and falling back to price*size when the feed omits it.
func (e TradeEvent) Notional() float64 {
	if e.UsdcSize > 0 {
		return e.UsdcSize
	}
	return e.Price * e.Size
}

// MarketState is a point-in-time read of the market the event belongs to.
// Fetched fresh each tick, cached per market within the tick.
type MarketState struct {
	ConditionID  string
	Active       bool
	Closed       bool
	NegRisk      bool
	EndDate      time.Time // zero if the market has no scheduled close
	Volume24h    float64   // USDC
	BestBid      float64
	BestAsk      float64
	BidDepthUSD  float64 // book value within the depth window
	AskDepthUSD  float64
	MinOrderSize float64 // exchange minimum, outcome tokens
	FetchedAt    time.Time
}

// SpreadPct returns the bid/ask spread relative to the midpoint, in percent.
// Returns 100 when one side of the book is empty.
func (m MarketState) SpreadPct() float64 {
	if m.BestBid <= 0 || m.BestAsk <= 0 {
		return 100
	}
	mid := (m.BestBid + m.BestAsk) / 2
	if mid <= 0 {
		return 100
	}
	return (m.BestAsk - m.BestBid) / mid * 100
}

// AccountState is the follower-side state the validator reads: recent order
// cadence and open exposure. Assembled by the bot from the portfolio tracker
// before each event.
type AccountState struct {
	LastOrderAt       time.Time
	LastOrderByMarket map[string]time.Time
	OrdersLastHour    int
	OpenByMarket      map[string]float64 // conditionID -> open notional
}

// CheckResult is one validator check outcome.
type CheckResult struct {
	Name   string
	Passed bool
	Detail string
}

// Verdict is the full validation result for one TradeEvent. Produced fresh
// per event; Passed is the AND of every check.
type Verdict struct {
	Checks []CheckResult
	Passed bool
}

// FirstFailure returns the first failed check, or nil when the verdict passed.
func (v Verdict) FirstFailure() *CheckResult {
	for i := range v.Checks {
		if !v.Checks[i].Passed {
			return &v.Checks[i]
		}
	}
	return nil
}

// FailureReasons lists every failed check as "name: detail", for audit
// notifications (report-all policy).
func (v Verdict) FailureReasons() []string {
	var reasons []string
	for _, c := range v.Checks {
		if !c.Passed {
			reasons = append(reasons, c.Name+": "+c.Detail)
		}
	}
	return reasons
}
