package trader

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"polymarket-copytrader/models"
)

// Venue submits signed orders and answers idempotency-key status lookups.
type Venue interface {
	PlaceOrder(ctx context.Context, order models.Order) (*models.VenueAck, error)
	OrderStatus(ctx context.Context, order models.Order) (*models.VenueOrderStatus, error)
}

// OrderExecutor turns sized trades into fill-or-kill orders and drives the
// retry chain. An explicit venue rejection is terminal; a transport error is
// ambiguous and triggers a status lookup before any resubmission, so the
// venue never sees two live copies of one trade.
type OrderExecutor struct {
	venue          Venue
	dryRun         bool
	maxRetries     int
	retryDelay     time.Duration
	maxSlippagePct float64
}

// NewOrderExecutor creates an executor. maxSlippagePct is the base slippage
// allowance, applied as-is at prices of 0.40 and up and widened below.
func NewOrderExecutor(venue Venue, dryRun bool, maxRetries int, retryDelay time.Duration, maxSlippagePct float64) *OrderExecutor {
	return &OrderExecutor{
		venue:          venue,
		dryRun:         dryRun,
		maxRetries:     maxRetries,
		retryDelay:     retryDelay,
		maxSlippagePct: maxSlippagePct,
	}
}

// ClientKeyFor derives the idempotency key for a source trade. The same
// trade always maps to the same key, which fixes the order salt and thus the
// venue-side order hash.
func ClientKeyFor(tradeID string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(tradeID)))
}

// BuildBuy assembles a buy order: limit price is the target's entry plus the
// price-tiered slippage allowance, capped at 0.99.
func (e *OrderExecutor) BuildBuy(event models.TradeEvent, notional float64, market *models.MarketState) models.Order {
	slip := e.slippagePct(event.Price)
	// If the book has moved past this allowance, FOK kills the order rather
	// than chase the new price.
	limit := event.Price * (1 + slip/100)
	if limit > 0.99 {
		limit = 0.99
	}

	return models.Order{
		TradeID:     event.ID,
		ClientKey:   ClientKeyFor(event.ID),
		ConditionID: event.ConditionID,
		TokenID:     event.TokenID,
		Outcome:     event.Outcome,
		Title:       event.Title,
		Side:        models.SideBuy,
		Notional:    notional,
		LimitPrice:  limit,
		Size:        notional / limit,
		NegRisk:     market.NegRisk,
		CreatedAt:   time.Now().UTC(),
	}
}

// BuildSell assembles a sell order for a share count, allowing the same
// tiered slippage below the target's exit price.
func (e *OrderExecutor) BuildSell(event models.TradeEvent, size float64, market *models.MarketState) models.Order {
	slip := e.slippagePct(event.Price)
	limit := event.Price * (1 - slip/100)
	if limit < 0.01 {
		limit = 0.01
	}

	return models.Order{
		TradeID:     event.ID,
		ClientKey:   ClientKeyFor(event.ID),
		ConditionID: event.ConditionID,
		TokenID:     event.TokenID,
		Outcome:     event.Outcome,
		Title:       event.Title,
		Side:        models.SideSell,
		Notional:    size * limit,
		LimitPrice:  limit,
		Size:        size,
		NegRisk:     market.NegRisk,
		CreatedAt:   time.Now().UTC(),
	}
}

// Execute drives one order to a terminal outcome.
func (e *OrderExecutor) Execute(ctx context.Context, order models.Order) models.OrderResult {
	if e.dryRun {
		log.Printf("[Executor] DRY RUN %s %s $%.2f @ %.3f (%.1f shares)",
			order.Side, order.Outcome, order.Notional, order.LimitPrice, order.Size)
		return models.OrderResult{
			Outcome:     models.OrderFilled,
			OrderID:     "dry-" + order.ClientKey[:16],
			FilledSize:  order.Size,
			FilledPrice: order.LimitPrice,
			Attempts:    1,
			DryRun:      true,
		}
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return models.OrderResult{
					Outcome:  models.OrderFailed,
					Reason:   "cancelled: " + ctx.Err().Error(),
					Attempts: attempt - 1,
				}
			case <-time.After(e.retryDelay):
			}
		}

		ack, err := e.venue.PlaceOrder(ctx, order)
		if err == nil {
			if ack.Accepted {
				return models.OrderResult{
					Outcome:     models.OrderFilled,
					OrderID:     ack.OrderID,
					FilledSize:  ack.FilledSize,
					FilledPrice: ack.FilledPrice,
					Attempts:    attempt,
				}
			}
			// Explicit rejection: never retried.
			return models.OrderResult{
				Outcome:  models.OrderRejected,
				OrderID:  ack.OrderID,
				Reason:   ack.Reject,
				Attempts: attempt,
			}
		}

		lastErr = err
		log.Printf("[Executor] Attempt %d/%d failed: %v", attempt, e.maxRetries, err)

		// Ambiguous failure: the order may have landed. Verify by key
		// before resubmitting.
		status, serr := e.venue.OrderStatus(ctx, order)
		if serr != nil {
			log.Printf("[Executor] Status lookup failed: %v", serr)
			continue
		}
		if status.Found {
			if status.Filled {
				log.Printf("[Executor] Order landed despite error: %s", status.OrderID)
				return models.OrderResult{
					Outcome:     models.OrderFilled,
					OrderID:     status.OrderID,
					FilledSize:  status.FilledSize,
					FilledPrice: status.FilledPrice,
					Attempts:    attempt,
				}
			}
			// Known to the venue but unfilled: the FOK was killed.
			return models.OrderResult{
				Outcome:  models.OrderRejected,
				OrderID:  status.OrderID,
				Reason:   fmt.Sprintf("killed (%s)", status.Status),
				Attempts: attempt,
			}
		}
		// Not found: safe to resubmit the identical order.
	}

	return models.OrderResult{
		Outcome:  models.OrderFailed,
		Reason:   fmt.Sprintf("retries exhausted: %v", lastErr),
		Attempts: e.maxRetries,
	}
}

// slippagePct widens the configured base allowance at low prices, where
// small absolute moves are large relative ones. With the default base of 20%
// the tiers come out at 200/80/50/30/20.
func (e *OrderExecutor) slippagePct(price float64) float64 {
	switch {
	case price < 0.10:
		return 10 * e.maxSlippagePct
	case price < 0.20:
		return 4 * e.maxSlippagePct
	case price < 0.30:
		return 2.5 * e.maxSlippagePct
	case price < 0.40:
		return 1.5 * e.maxSlippagePct
	default:
		return e.maxSlippagePct
	}
}
