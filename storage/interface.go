package storage

import (
	"context"
	"time"

	"polymarket-copytrader/models"
)

// CopyTradeRecord is one audit-log row: a target trade and what the engine
// did with it. Every observed trade gets exactly one record, including the
// skipped ones.
type CopyTradeRecord struct {
	ID          int64
	TradeID     string
	ClientKey   string
	Trader      string
	ConditionID string
	TokenID     string
	Outcome     string
	Title       string
	Side        string
	TargetPrice float64
	TargetUSDC  float64
	OurNotional float64
	OurPrice    float64
	OurSize     float64
	Status      string // filled, rejected, failed, skipped_validation, skipped_risk, skipped_sizing, dry_run
	Reason      string
	OrderID     string
	Attempts    int
	RealizedPnL float64 // sells only
	CreatedAt   time.Time
}

// RiskEvent records a circuit-breaker transition.
type RiskEvent struct {
	ID           int64
	State        string
	PrevState    string
	Reason       string
	NetWorth     float64
	DailyLossPct float64
	DrawdownPct  float64
	CreatedAt    time.Time
}

// DataStore defines the interface for storage backends
type DataStore interface {
	Close() error

	// Seen trades (detector dedup)
	IsTradeSeen(ctx context.Context, tradeID string) (bool, error)
	MarkTradesSeen(ctx context.Context, tradeIDs []string, seenAt time.Time) error
	LoadSeenTrades(ctx context.Context, since time.Time) ([]string, error)
	PruneSeenTrades(ctx context.Context, before time.Time) (int64, error)

	// Copy-trade audit log
	SaveCopyTrade(ctx context.Context, rec CopyTradeRecord) error
	ListCopyTrades(ctx context.Context, limit int) ([]CopyTradeRecord, error)
	CountOrdersSince(ctx context.Context, since time.Time) (int, error)
	RealizedPnLSince(ctx context.Context, since time.Time) (float64, error)

	// Follower positions
	ApplyFill(ctx context.Context, pos models.Position) error
	ReducePosition(ctx context.Context, tokenID string, size float64) (float64, error)
	GetPosition(ctx context.Context, tokenID string) (*models.Position, error)
	ListPositions(ctx context.Context) ([]models.Position, error)

	// Risk events and peak tracking
	SaveRiskEvent(ctx context.Context, ev RiskEvent) error
	ListRiskEvents(ctx context.Context, limit int) ([]RiskEvent, error)
	GetPeakNetWorth(ctx context.Context) (float64, error)
	SetPeakNetWorth(ctx context.Context, value float64) error

	// Operator stats
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// Ensure both implementations satisfy the interface
var _ DataStore = (*PostgresStore)(nil)
var _ DataStore = (*MockStore)(nil)
