package models

import "time"

// Position is the follower's holding in one market+outcome. Mutated only by
// the portfolio tracker when the executor confirms a fill.
type Position struct {
	ConditionID string
	TokenID     string
	Outcome     string
	Title       string
	Size        float64 // outcome tokens held
	AvgPrice    float64
	CostBasis   float64 // USDC spent, net of partial closes
	OpenedAt    time.Time
	UpdatedAt   time.Time
}

// MarkValue values the position at the given price, falling back to the
// average entry price when no fresh mark is available.
func (p Position) MarkValue(markPrice float64) float64 {
	if markPrice <= 0 {
		markPrice = p.AvgPrice
	}
	return p.Size * markPrice
}

// PortfolioSnapshot is a derived, point-in-time aggregate of the follower
// account. Recomputed on demand, never mutated in place.
type PortfolioSnapshot struct {
	Cash           float64 // USDC balance
	PositionValue  float64 // sum of open-position mark value
	NetWorth       float64 // Cash + PositionValue
	Bankroll       float64 // sizing base: fixed amount or NetWorth
	RealizedToday  float64 // realized PnL since UTC midnight
	RealizedWindow float64 // realized PnL since the configured window start
	PeakNetWorth   float64
	OpenPositions  int
	TradesToday    int
	TakenAt        time.Time
}

// DailyLossPct returns today's realized loss as a positive fraction of net
// worth; 0 when the day is flat or profitable.
func (s PortfolioSnapshot) DailyLossPct() float64 {
	if s.RealizedToday >= 0 || s.NetWorth <= 0 {
		return 0
	}
	return -s.RealizedToday / s.NetWorth
}

// DrawdownPct returns the drawdown from the observed peak as a fraction.
func (s PortfolioSnapshot) DrawdownPct() float64 {
	if s.PeakNetWorth <= 0 || s.NetWorth >= s.PeakNetWorth {
		return 0
	}
	return (s.PeakNetWorth - s.NetWorth) / s.PeakNetWorth
}

// BreakerState is the risk gate's circuit-breaker state.
type BreakerState int

const (
	BreakerNormal BreakerState = iota
	BreakerWarning
	BreakerHalted
)

func (s BreakerState) String() string {
	switch s {
	case BreakerNormal:
		return "normal"
	case BreakerWarning:
		return "warning"
	case BreakerHalted:
		return "halted"
	default:
		return "unknown"
	}
}
