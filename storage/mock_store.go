package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"polymarket-copytrader/models"
)

// MockStore is an in-memory DataStore for testing.
type MockStore struct {
	mu sync.RWMutex

	Seen       map[string]time.Time
	CopyTrades []CopyTradeRecord
	Positions  map[string]models.Position
	RiskEvents []RiskEvent
	Peak       float64

	// Call tracking for assertions
	Calls map[string]int

	// Error injection for testing error paths
	ErrorOnNext map[string]error
}

// NewMockStore creates a new mock store
func NewMockStore() *MockStore {
	return &MockStore{
		Seen:        make(map[string]time.Time),
		Positions:   make(map[string]models.Position),
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
	}
}

func (m *MockStore) trackCall(name string) error {
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockStore) Close() error {
	return m.trackCall("Close")
}

func (m *MockStore) IsTradeSeen(ctx context.Context, tradeID string) (bool, error) {
	if err := m.trackCall("IsTradeSeen"); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Seen[tradeID]
	return ok, nil
}

func (m *MockStore) MarkTradesSeen(ctx context.Context, tradeIDs []string, seenAt time.Time) error {
	if err := m.trackCall("MarkTradesSeen"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range tradeIDs {
		m.Seen[id] = seenAt
	}
	return nil
}

func (m *MockStore) LoadSeenTrades(ctx context.Context, since time.Time) ([]string, error) {
	if err := m.trackCall("LoadSeenTrades"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, at := range m.Seen {
		if !at.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockStore) PruneSeenTrades(ctx context.Context, before time.Time) (int64, error) {
	if err := m.trackCall("PruneSeenTrades"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for id, at := range m.Seen {
		if at.Before(before) {
			delete(m.Seen, id)
			pruned++
		}
	}
	return pruned, nil
}

func (m *MockStore) SaveCopyTrade(ctx context.Context, rec CopyTradeRecord) error {
	if err := m.trackCall("SaveCopyTrade"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.ID = int64(len(m.CopyTrades) + 1)
	m.CopyTrades = append(m.CopyTrades, rec)
	return nil
}

func (m *MockStore) ListCopyTrades(ctx context.Context, limit int) ([]CopyTradeRecord, error) {
	if err := m.trackCall("ListCopyTrades"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]CopyTradeRecord, 0, len(m.CopyTrades))
	for i := len(m.CopyTrades) - 1; i >= 0; i-- {
		records = append(records, m.CopyTrades[i])
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

func (m *MockStore) CountOrdersSince(ctx context.Context, since time.Time) (int, error) {
	if err := m.trackCall("CountOrdersSince"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range m.CopyTrades {
		if (rec.Status == "filled" || rec.Status == "dry_run") && !rec.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MockStore) RealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	if err := m.trackCall("RealizedPnLSince"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0.0
	for _, rec := range m.CopyTrades {
		if !rec.CreatedAt.Before(since) {
			total += rec.RealizedPnL
		}
	}
	return total, nil
}

func (m *MockStore) ApplyFill(ctx context.Context, pos models.Position) error {
	if err := m.trackCall("ApplyFill"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Positions[pos.TokenID]
	if !ok {
		pos.OpenedAt = time.Now().UTC()
		pos.UpdatedAt = pos.OpenedAt
		m.Positions[pos.TokenID] = pos
		return nil
	}
	existing.CostBasis += pos.CostBasis
	existing.Size += pos.Size
	if existing.Size > 0 {
		existing.AvgPrice = existing.CostBasis / existing.Size
	}
	existing.UpdatedAt = time.Now().UTC()
	m.Positions[pos.TokenID] = existing
	return nil
}

func (m *MockStore) ReducePosition(ctx context.Context, tokenID string, size float64) (float64, error) {
	if err := m.trackCall("ReducePosition"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.Positions[tokenID]
	if !ok {
		return 0, fmt.Errorf("no position for token %s", tokenID)
	}
	remaining := pos.Size - size
	if remaining < 0.01 {
		delete(m.Positions, tokenID)
	} else {
		pos.Size = remaining
		pos.CostBasis = remaining * pos.AvgPrice
		pos.UpdatedAt = time.Now().UTC()
		m.Positions[tokenID] = pos
	}
	return pos.AvgPrice, nil
}

func (m *MockStore) GetPosition(ctx context.Context, tokenID string) (*models.Position, error) {
	if err := m.trackCall("GetPosition"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pos, ok := m.Positions[tokenID]; ok {
		return &pos, nil
	}
	return nil, nil
}

func (m *MockStore) ListPositions(ctx context.Context) ([]models.Position, error) {
	if err := m.trackCall("ListPositions"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	positions := make([]models.Position, 0, len(m.Positions))
	for _, pos := range m.Positions {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].TokenID < positions[j].TokenID
	})
	return positions, nil
}

func (m *MockStore) SaveRiskEvent(ctx context.Context, ev RiskEvent) error {
	if err := m.trackCall("SaveRiskEvent"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ev.ID = int64(len(m.RiskEvents) + 1)
	m.RiskEvents = append(m.RiskEvents, ev)
	return nil
}

func (m *MockStore) ListRiskEvents(ctx context.Context, limit int) ([]RiskEvent, error) {
	if err := m.trackCall("ListRiskEvents"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]RiskEvent, 0, len(m.RiskEvents))
	for i := len(m.RiskEvents) - 1; i >= 0; i-- {
		events = append(events, m.RiskEvents[i])
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}

func (m *MockStore) GetPeakNetWorth(ctx context.Context) (float64, error) {
	if err := m.trackCall("GetPeakNetWorth"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Peak, nil
}

func (m *MockStore) SetPeakNetWorth(ctx context.Context, value float64) error {
	if err := m.trackCall("SetPeakNetWorth"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Peak = value
	return nil
}

func (m *MockStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	if err := m.trackCall("Stats"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	byStatus := make(map[string]int)
	for _, rec := range m.CopyTrades {
		byStatus[rec.Status]++
	}
	return map[string]interface{}{
		"trades_by_status": byStatus,
		"open_positions":   len(m.Positions),
	}, nil
}
