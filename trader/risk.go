package trader

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
	"polymarket-copytrader/notify"
	"polymarket-copytrader/storage"
)

// RiskGate is the account-level circuit breaker. It inspects each portfolio
// snapshot before an event is copied and can veto all trading. A halt is
// sticky: improving numbers alone never resume trading. Trading resumes only
// at UTC day rollover, after the configured cooldown, or by manual reset.
type RiskGate struct {
	cfg   config.RiskConfig
	store storage.DataStore
	sink  notify.Sink

	mu       sync.Mutex
	state    models.BreakerState
	haltedAt time.Time
	reason   string
}

// NewRiskGate creates a gate starting in the Normal state.
func NewRiskGate(cfg config.RiskConfig, store storage.DataStore, sink notify.Sink) *RiskGate {
	return &RiskGate{
		cfg:   cfg,
		store: store,
		sink:  sink,
		state: models.BreakerNormal,
	}
}

// State returns the current breaker state and the reason it was entered.
func (g *RiskGate) State() (models.BreakerState, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.reason
}

// Evaluate applies the breaker rules against a snapshot and returns whether
// trading is allowed right now.
func (g *RiskGate) Evaluate(ctx context.Context, snap *models.PortfolioSnapshot) (allowed bool, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()

	// A standing halt only clears via rollover, cooldown or manual reset.
	if g.state == models.BreakerHalted {
		if g.haltResolved(now) {
			g.transition(ctx, models.BreakerNormal, "halt expired", snap)
		} else {
			return false, g.reason
		}
	}

	dailyLoss := snap.DailyLossPct() * 100
	drawdown := snap.DrawdownPct() * 100

	switch {
	case dailyLoss >= g.cfg.HardDailyLossPct:
		g.haltedAt = now
		g.transition(ctx, models.BreakerHalted,
			fmt.Sprintf("daily loss %.2f%% breached hard limit %.2f%%", dailyLoss, g.cfg.HardDailyLossPct), snap)
		return false, g.reason

	case drawdown >= g.cfg.MaxDrawdownPct:
		g.haltedAt = now
		g.transition(ctx, models.BreakerHalted,
			fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", drawdown, g.cfg.MaxDrawdownPct), snap)
		return false, g.reason

	case dailyLoss >= g.cfg.SoftDailyLossPct:
		if g.state != models.BreakerWarning {
			g.transition(ctx, models.BreakerWarning,
				fmt.Sprintf("daily loss %.2f%% above soft limit %.2f%%", dailyLoss, g.cfg.SoftDailyLossPct), snap)
		}
		return true, ""

	default:
		if g.state != models.BreakerNormal {
			g.transition(ctx, models.BreakerNormal, "metrics back within limits", snap)
		}
		return true, ""
	}
}

// haltResolved reports whether the standing halt has expired. Callers hold
// the mutex.
func (g *RiskGate) haltResolved(now time.Time) bool {
	if now.Truncate(24 * time.Hour).After(g.haltedAt.Truncate(24 * time.Hour)) {
		return true
	}
	if g.cfg.ResumeMode == "cooldown" &&
		now.Sub(g.haltedAt) >= time.Duration(g.cfg.CooldownMinutes)*time.Minute {
		return true
	}
	return false
}

// ManualReset clears a halt on operator request.
func (g *RiskGate) ManualReset(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == models.BreakerNormal {
		return
	}
	g.transition(ctx, models.BreakerNormal, "manual reset", nil)
}

// transition records and announces a state change. Callers hold the mutex.
func (g *RiskGate) transition(ctx context.Context, to models.BreakerState, reason string, snap *models.PortfolioSnapshot) {
	from := g.state
	g.state = to
	g.reason = reason

	log.Printf("[RiskGate] %s -> %s: %s", from, to, reason)

	ev := storage.RiskEvent{
		State:     to.String(),
		PrevState: from.String(),
		Reason:    reason,
	}
	if snap != nil {
		ev.NetWorth = snap.NetWorth
		ev.DailyLossPct = snap.DailyLossPct() * 100
		ev.DrawdownPct = snap.DrawdownPct() * 100
	}
	if err := g.store.SaveRiskEvent(ctx, ev); err != nil {
		log.Printf("[RiskGate] Persist risk event failed: %v", err)
	}

	g.sink.BreakerChanged(from, to, reason)
}
