package models

import "time"

// Order is a fill-or-kill request for one admitted, sized trade. ClientKey is
// derived deterministically from the source TradeEvent ID, so a resubmission
// after an ambiguous failure maps to the same venue-side order.
type Order struct {
	TradeID     string // source TradeEvent identifier
	ClientKey   string // idempotency key (keccak of TradeID)
	ConditionID string
	TokenID     string
	Outcome     string
	Title       string
	Side        Side
	Notional    float64 // USDC to commit
	LimitPrice  float64 // FOK limit, slippage-capped off the target's price
	Size        float64 // outcome tokens at LimitPrice
	NegRisk     bool
	CreatedAt   time.Time
}

// OrderOutcome classifies the terminal result of one execution attempt chain.
type OrderOutcome int

const (
	// OrderFilled means the venue filled the full requested size.
	OrderFilled OrderOutcome = iota
	// OrderRejected means the venue explicitly declined; never retried.
	OrderRejected
	// OrderFailed means transient errors exhausted the retry budget.
	OrderFailed
)

func (o OrderOutcome) String() string {
	switch o {
	case OrderFilled:
		return "filled"
	case OrderRejected:
		return "rejected"
	case OrderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OrderResult is the terminal outcome of executing one Order.
type OrderResult struct {
	Outcome     OrderOutcome
	OrderID     string
	FilledSize  float64
	FilledPrice float64
	Reason      string // rejection reason or last transient error
	Attempts    int
	DryRun      bool
}

// VenueAck is the venue's synchronous response to an order submission.
// A nil error with Accepted=false is an explicit rejection; a non-nil error
// from the venue call is a transient (possibly ambiguous) failure.
type VenueAck struct {
	Accepted    bool
	OrderID     string
	Status      string // matched, live, delayed, unmatched
	FilledSize  float64
	FilledPrice float64
	Reject      string
}

// VenueOrderStatus is the result of an idempotency-key status lookup.
type VenueOrderStatus struct {
	Found       bool
	OrderID     string
	Filled      bool
	FilledSize  float64
	FilledPrice float64
	Status      string
}
