// Package trader contains the copy-trading engine: change detection over the
// target's trade feed, validation, risk gating, sizing and order execution,
// tied together by the Bot loop.
package trader

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
)

// TradeSource produces the target account's recent trades, newest first.
type TradeSource interface {
	RecentTrades(ctx context.Context, wallet string, limit int) ([]models.TradeEvent, error)
}

// ChangeDetector turns the polled trade feed into a stream of new events.
// Each observed trade is emitted at most once, oldest first, at most
// perTickCap per tick. A failed fetch aborts the tick without touching the
// seen set, so nothing is lost to a transient source error.
type ChangeDetector struct {
	source     TradeSource
	store      storage.DataStore
	target     string
	pageLimit  int
	perTickCap int
	lookback   time.Duration

	seen map[string]struct{}
}

// NewChangeDetector creates a detector for one target wallet.
func NewChangeDetector(source TradeSource, store storage.DataStore, target string, pageLimit, perTickCap int, lookback time.Duration) *ChangeDetector {
	return &ChangeDetector{
		source:     source,
		store:      store,
		target:     target,
		pageLimit:  pageLimit,
		perTickCap: perTickCap,
		lookback:   lookback,
		seen:       make(map[string]struct{}),
	}
}

// Prime warm-starts the seen set: IDs persisted within the lookback window
// plus everything currently visible in the feed. Nothing is emitted, so a
// restart never replays the target's existing history.
func (d *ChangeDetector) Prime(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-d.lookback)

	ids, err := d.store.LoadSeenTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load seen trades: %w", err)
	}
	for _, id := range ids {
		d.seen[id] = struct{}{}
	}

	events, err := d.source.RecentTrades(ctx, d.target, d.pageLimit)
	if err != nil {
		return fmt.Errorf("prime fetch: %w", err)
	}

	var fresh []string
	for _, ev := range events {
		if _, ok := d.seen[ev.ID]; ok {
			continue
		}
		d.seen[ev.ID] = struct{}{}
		fresh = append(fresh, ev.ID)
	}
	if err := d.store.MarkTradesSeen(ctx, fresh, time.Now().UTC()); err != nil {
		log.Printf("[Detector] Persist primed IDs failed: %v", err)
	}

	log.Printf("[Detector] Primed with %d persisted + %d live trade IDs", len(ids), len(fresh))
	return nil
}

// Poll fetches the feed and returns new events, oldest first, capped at
// perTickCap. Trades beyond the cap stay unseen and surface next tick.
func (d *ChangeDetector) Poll(ctx context.Context) ([]models.TradeEvent, error) {
	raw, err := d.source.RecentTrades(ctx, d.target, d.pageLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}

	cutoff := time.Now().UTC().Add(-d.lookback)

	var fresh []models.TradeEvent
	for _, ev := range raw {
		if _, ok := d.seen[ev.ID]; ok {
			continue
		}
		if ev.Timestamp.Before(cutoff) {
			// Too old to copy; swallow it so it never surfaces again.
			d.seen[ev.ID] = struct{}{}
			continue
		}
		fresh = append(fresh, ev)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		if fresh[i].Timestamp.Equal(fresh[j].Timestamp) {
			return fresh[i].ID < fresh[j].ID
		}
		return fresh[i].Timestamp.Before(fresh[j].Timestamp)
	})

	if d.perTickCap > 0 && len(fresh) > d.perTickCap {
		log.Printf("[Detector] %d new trades, capping at %d this tick", len(fresh), d.perTickCap)
		fresh = fresh[:d.perTickCap]
	}

	ids := make([]string, len(fresh))
	for i, ev := range fresh {
		d.seen[ev.ID] = struct{}{}
		ids[i] = ev.ID
	}
	if err := d.store.MarkTradesSeen(ctx, ids, time.Now().UTC()); err != nil {
		// In-memory set still dedups this process; a restart may re-emit.
		log.Printf("[Detector] Persist seen IDs failed: %v", err)
	}

	return fresh, nil
}

// Prune drops seen-set entries older than twice the lookback, bounding
// memory and storage over long runs.
func (d *ChangeDetector) Prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-2 * d.lookback)
	pruned, err := d.store.PruneSeenTrades(ctx, cutoff)
	if err != nil {
		log.Printf("[Detector] Prune failed: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("[Detector] Pruned %d stale seen-trade entries", pruned)
	}
}

// SeenCount reports the in-memory seen-set size.
func (d *ChangeDetector) SeenCount() int {
	return len(d.seen)
}
