package trader

import (
	"context"
	"log"
	"strings"
	"time"

	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
	"polymarket-copytrader/notify"
	"polymarket-copytrader/storage"
)

// PositionLister reads a wallet's open positions, used to size sells against
// the target's remaining holding.
type PositionLister interface {
	OpenPositions(ctx context.Context, wallet string) ([]models.Position, error)
}

// Bot is the single-worker copy-trading loop. One goroutine owns the whole
// pipeline, so events are processed strictly in order and each event sees
// the portfolio effects of the previous one.
type Bot struct {
	cfg       *config.Config
	detector  *ChangeDetector
	portfolio *PortfolioTracker
	gate      *RiskGate
	validator *TradeValidator
	sizing    *SizingPolicy
	executor  *OrderExecutor
	markets   MarketData
	targetPos PositionLister
	store     storage.DataStore
	sink      notify.Sink
	nudge     <-chan struct{}

	stopCh chan struct{}
	doneCh chan struct{}

	primed    bool
	lastPrune time.Time
}

// NewBot wires the pipeline. nudge may be nil when the websocket hint is
// disabled.
func NewBot(cfg *config.Config, detector *ChangeDetector, portfolio *PortfolioTracker,
	gate *RiskGate, validator *TradeValidator, sizing *SizingPolicy, executor *OrderExecutor,
	markets MarketData, targetPos PositionLister, store storage.DataStore, sink notify.Sink,
	nudge <-chan struct{}) *Bot {
	return &Bot{
		cfg:       cfg,
		detector:  detector,
		portfolio: portfolio,
		gate:      gate,
		validator: validator,
		sizing:    sizing,
		executor:  executor,
		markets:   markets,
		targetPos: targetPos,
		store:     store,
		sink:      sink,
		nudge:     nudge,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Gate exposes the risk gate for the operator API.
func (b *Bot) Gate() *RiskGate {
	return b.gate
}

// Run primes the detector and drives the poll loop until ctx is cancelled or
// Stop is called. An in-flight event finishes before the loop exits. A
// transient source outage during priming is retried on subsequent ticks
// rather than terminating the loop.
func (b *Bot) Run(ctx context.Context) error {
	defer close(b.doneCh)

	if err := b.detector.Prime(ctx); err != nil {
		log.Printf("[Bot] Prime failed, retrying on the next tick: %v", err)
	} else {
		b.primed = true
	}

	interval := time.Duration(b.cfg.Polling.IntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Bot] Watching %s every %v (dry_run=%v, bankroll=%s)",
		b.cfg.Target.Address, interval, b.cfg.Execution.DryRun, b.cfg.Bankroll.Mode)

	nudge := b.nudge
	if nudge == nil {
		nudge = make(chan struct{})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case <-ticker.C:
			b.tick(ctx)
		case <-nudge:
			log.Printf("[Bot] Activity nudge, polling early")
			b.tick(ctx)
		}
	}
}

// Stop requests shutdown and waits for the loop to finish its current event.
func (b *Bot) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

func (b *Bot) tick(ctx context.Context) {
	if !b.primed {
		if err := b.detector.Prime(ctx); err != nil {
			log.Printf("[Bot] Prime retry failed, skipping tick: %v", err)
			return
		}
		b.primed = true
	}

	// Snapshot before polling: a failed balance read skips the whole tick
	// and nothing gets marked seen.
	snap, err := b.portfolio.Snapshot(ctx)
	if err != nil {
		log.Printf("[Bot] Snapshot failed, skipping tick: %v", err)
		return
	}

	events, err := b.detector.Poll(ctx)
	if err != nil {
		log.Printf("[Bot] Poll failed, skipping tick: %v", err)
		return
	}
	if len(events) == 0 {
		b.maybePrune(ctx)
		return
	}

	log.Printf("[Bot] %d new trade(s) from target", len(events))

	targetNW := 0.0
	if b.cfg.Bankroll.Mode == "dynamic" {
		targetNW = b.portfolio.TargetNetWorth(ctx)
	}

	for _, event := range events {
		select {
		case <-b.stopCh:
			log.Printf("[Bot] Stopping, dropping remaining events this tick")
			return
		default:
		}
		snap = b.handleEvent(ctx, event, snap, targetNW)
	}

	b.maybePrune(ctx)
}

// handleEvent runs one event through the pipeline and returns the snapshot
// the next event should see: the input one, or a fresh copy with the fill
// folded in.
func (b *Bot) handleEvent(ctx context.Context, event models.TradeEvent, snap *models.PortfolioSnapshot, targetNW float64) *models.PortfolioSnapshot {
	log.Printf("[Bot] %s %s %s $%.2f @ %.3f", event.Side, event.Outcome, event.Title,
		event.Notional(), event.Price)

	rec := storage.CopyTradeRecord{
		TradeID:     event.ID,
		ClientKey:   ClientKeyFor(event.ID),
		Trader:      event.Trader,
		ConditionID: event.ConditionID,
		TokenID:     event.TokenID,
		Outcome:     event.Outcome,
		Title:       event.Title,
		Side:        string(event.Side),
		TargetPrice: event.Price,
		TargetUSDC:  event.Notional(),
	}

	if allowed, reason := b.gate.Evaluate(ctx, snap); !allowed {
		rec.Status = "skipped_risk"
		rec.Reason = reason
		b.audit(ctx, rec)
		return snap
	}

	market, err := b.markets.MarketState(ctx, event.ConditionID, event.TokenID)
	if err != nil {
		log.Printf("[Bot] Market fetch failed: %v", err)
		rec.Status = "failed"
		rec.Reason = "market state: " + err.Error()
		b.audit(ctx, rec)
		return snap
	}

	account, err := b.portfolio.AccountState(ctx)
	if err != nil {
		log.Printf("[Bot] Account state failed: %v", err)
		rec.Status = "failed"
		rec.Reason = "account state: " + err.Error()
		b.audit(ctx, rec)
		return snap
	}

	verdict := b.validator.Validate(event, market, account, time.Now().UTC())
	if !verdict.Passed {
		reasons := strings.Join(verdict.FailureReasons(), "; ")
		log.Printf("[Bot] Validation rejected: %s", reasons)
		rec.Status = "skipped_validation"
		rec.Reason = reasons
		b.audit(ctx, rec)
		if b.cfg.Notify.Rejections {
			b.sink.TradeSkipped(event, "validation", reasons)
		}
		return snap
	}

	if event.Side == models.SideBuy {
		return b.copyBuy(ctx, event, snap, market, targetNW, rec)
	}
	return b.copySell(ctx, event, snap, market, rec)
}

func (b *Bot) copyBuy(ctx context.Context, event models.TradeEvent, snap *models.PortfolioSnapshot,
	market *models.MarketState, targetNW float64, rec storage.CopyTradeRecord) *models.PortfolioSnapshot {
	notional, reason := b.sizing.BuyNotional(event, snap, targetNW)
	if notional <= 0 {
		log.Printf("[Bot] Sizing rejected: %s", reason)
		rec.Status = "skipped_sizing"
		rec.Reason = reason
		b.audit(ctx, rec)
		if b.cfg.Notify.Rejections {
			b.sink.TradeSkipped(event, "sizing", reason)
		}
		return snap
	}

	order := b.executor.BuildBuy(event, notional, market)
	execCtx, cancel := b.execContext(ctx)
	result := b.executor.Execute(execCtx, order)
	cancel()
	rec.OurNotional = order.Notional
	rec.OurPrice = order.LimitPrice
	rec.OurSize = order.Size
	rec.OrderID = result.OrderID
	rec.Attempts = result.Attempts
	rec.Reason = result.Reason

	switch result.Outcome {
	case models.OrderFilled:
		rec.Status = "filled"
		if result.DryRun {
			rec.Status = "dry_run"
		}
		rec.OurPrice = result.FilledPrice
		rec.OurSize = result.FilledSize

		fillCtx, fillCancel := b.execContext(ctx)
		if err := b.store.ApplyFill(fillCtx, models.Position{
			ConditionID: event.ConditionID,
			TokenID:     event.TokenID,
			Outcome:     event.Outcome,
			Title:       event.Title,
			Size:        result.FilledSize,
			AvgPrice:    result.FilledPrice,
			CostBasis:   result.FilledSize * result.FilledPrice,
		}); err != nil {
			log.Printf("[Bot] Persist position failed: %v", err)
		}
		fillCancel()
		b.portfolio.RecordOrder(event.ConditionID, time.Now().UTC())
		snap = b.portfolio.ApplyBuyLocal(snap, result.FilledSize*result.FilledPrice)
		if b.cfg.Notify.Trades {
			b.sink.TradeCopied(order, result)
		}

	case models.OrderRejected:
		rec.Status = "rejected"
		if b.cfg.Notify.Rejections {
			b.sink.TradeSkipped(event, "venue", result.Reason)
		}

	case models.OrderFailed:
		rec.Status = "failed"
		if b.cfg.Notify.Errors {
			b.sink.TradeSkipped(event, "execution", result.Reason)
		}
	}

	b.audit(ctx, rec)
	return snap
}

func (b *Bot) copySell(ctx context.Context, event models.TradeEvent, snap *models.PortfolioSnapshot,
	market *models.MarketState, rec storage.CopyTradeRecord) *models.PortfolioSnapshot {
	pos, err := b.store.GetPosition(ctx, event.TokenID)
	if err != nil {
		rec.Status = "failed"
		rec.Reason = "position lookup: " + err.Error()
		b.audit(ctx, rec)
		return snap
	}
	if pos == nil || pos.Size <= 0 {
		log.Printf("[Bot] SELL with no position in %s, skipping", event.TokenID)
		rec.Status = "skipped_sizing"
		rec.Reason = "no position to sell"
		b.audit(ctx, rec)
		return snap
	}

	// Mirror the fraction of their holding the target just exited. When the
	// target's remaining position cannot be read, assume a full exit.
	targetRemaining := 0.0
	if positions, err := b.targetPos.OpenPositions(ctx, b.cfg.Target.Address); err == nil {
		for _, tp := range positions {
			if tp.TokenID == event.TokenID {
				targetRemaining = tp.Size
				break
			}
		}
	} else {
		log.Printf("[Bot] Target positions read failed, assuming full exit: %v", err)
	}

	fraction := b.sizing.SellFraction(event, targetRemaining)
	size := pos.Size * fraction
	if size < 0.01 {
		rec.Status = "skipped_sizing"
		rec.Reason = "sell size rounds to zero"
		b.audit(ctx, rec)
		return snap
	}
	// Below the venue minimum the remainder is unsellable; exit fully.
	if market.MinOrderSize > 0 && pos.Size-size < market.MinOrderSize {
		size = pos.Size
	}

	order := b.executor.BuildSell(event, size, market)
	execCtx, cancel := b.execContext(ctx)
	result := b.executor.Execute(execCtx, order)
	cancel()
	rec.OurNotional = order.Notional
	rec.OurPrice = order.LimitPrice
	rec.OurSize = order.Size
	rec.OrderID = result.OrderID
	rec.Attempts = result.Attempts
	rec.Reason = result.Reason

	switch result.Outcome {
	case models.OrderFilled:
		rec.Status = "filled"
		if result.DryRun {
			rec.Status = "dry_run"
		}
		rec.OurPrice = result.FilledPrice
		rec.OurSize = result.FilledSize

		fillCtx, fillCancel := b.execContext(ctx)
		avgPrice, err := b.store.ReducePosition(fillCtx, event.TokenID, result.FilledSize)
		fillCancel()
		if err != nil {
			log.Printf("[Bot] Reduce position failed: %v", err)
			avgPrice = pos.AvgPrice
		}
		realized := (result.FilledPrice - avgPrice) * result.FilledSize
		rec.RealizedPnL = realized

		b.portfolio.RecordOrder(event.ConditionID, time.Now().UTC())
		snap = b.portfolio.ApplySellLocal(snap,
			result.FilledPrice*result.FilledSize, avgPrice*result.FilledSize, realized)
		if b.cfg.Notify.Trades {
			b.sink.TradeCopied(order, result)
		}

	case models.OrderRejected:
		rec.Status = "rejected"
		if b.cfg.Notify.Rejections {
			b.sink.TradeSkipped(event, "venue", result.Reason)
		}

	case models.OrderFailed:
		rec.Status = "failed"
		if b.cfg.Notify.Errors {
			b.sink.TradeSkipped(event, "execution", result.Reason)
		}
	}

	b.audit(ctx, rec)
	return snap
}

// execContext detaches execution and persistence from loop cancellation so
// an in-flight order settles during shutdown, bounded by the request timeout.
func (b *Bot) execContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(b.cfg.Execution.RequestTimeoutMS) * time.Millisecond
	return context.WithTimeout(context.WithoutCancel(ctx), 3*timeout)
}

func (b *Bot) audit(ctx context.Context, rec storage.CopyTradeRecord) {
	auditCtx, cancel := b.execContext(ctx)
	defer cancel()
	if err := b.store.SaveCopyTrade(auditCtx, rec); err != nil {
		log.Printf("[Bot] Audit record failed: %v", err)
	}
}

func (b *Bot) maybePrune(ctx context.Context) {
	if time.Since(b.lastPrune) < time.Hour {
		return
	}
	b.lastPrune = time.Now()
	b.detector.Prune(ctx)
}
