package trader

import (
	"context"
	"fmt"
	"time"

	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
)

// MarketData provides a fresh view of a market for validation and pricing.
type MarketData interface {
	MarketState(ctx context.Context, conditionID, tokenID string) (*models.MarketState, error)
}

// TradeValidator decides whether an observed trade is worth copying. Every
// check runs regardless of earlier failures, so one verdict lists everything
// wrong with an event. The verdict passes only when all checks pass.
//
// Sells run a reduced set: exiting a position is allowed even when the
// market no longer meets entry quality.
type TradeValidator struct {
	cfg config.ValidationConfig
}

// NewTradeValidator creates a validator from config thresholds.
func NewTradeValidator(cfg config.ValidationConfig) *TradeValidator {
	return &TradeValidator{cfg: cfg}
}

// Validate runs the check pipeline for one event against market and account
// state. Pure: no I/O, no mutation, deterministic for fixed inputs.
func (v *TradeValidator) Validate(event models.TradeEvent, market *models.MarketState, account *models.AccountState, now time.Time) models.Verdict {
	var checks []models.CheckResult

	add := func(name string, passed bool, detail string) {
		checks = append(checks, models.CheckResult{Name: name, Passed: passed, Detail: detail})
	}

	age := now.Sub(event.Timestamp)
	add("trade_age", age <= time.Duration(v.cfg.MaxTradeAgeSec)*time.Second,
		fmt.Sprintf("age %.0fs, max %ds", age.Seconds(), v.cfg.MaxTradeAgeSec))

	add("market_open", market.Active && !market.Closed,
		fmt.Sprintf("active=%v closed=%v", market.Active, market.Closed))

	if event.Side == models.SideSell {
		return verdict(checks)
	}

	add("price_range", event.Price >= v.cfg.MinPrice && event.Price <= v.cfg.MaxPrice,
		fmt.Sprintf("price %.3f, range [%.2f, %.2f]", event.Price, v.cfg.MinPrice, v.cfg.MaxPrice))

	notional := event.Notional()
	add("notional_bounds", notional >= v.cfg.MinNotionalUSDC && notional <= v.cfg.MaxNotionalUSDC,
		fmt.Sprintf("notional $%.2f, bounds [$%.2f, $%.2f]", notional, v.cfg.MinNotionalUSDC, v.cfg.MaxNotionalUSDC))

	if market.EndDate.IsZero() {
		add("time_until_close", true, "no scheduled close")
	} else {
		hoursLeft := market.EndDate.Sub(now).Hours()
		add("time_until_close", hoursLeft >= v.cfg.MinHoursUntilClose,
			fmt.Sprintf("%.1fh until close, min %.1fh", hoursLeft, v.cfg.MinHoursUntilClose))
	}

	// Depth on the side we would take: buys lift asks.
	depth := market.AskDepthUSD
	add("book_depth", depth >= v.cfg.MinBookDepthUSDC,
		fmt.Sprintf("ask depth $%.0f, min $%.0f", depth, v.cfg.MinBookDepthUSDC))

	spread := market.SpreadPct()
	add("spread", spread <= v.cfg.MaxSpreadPct,
		fmt.Sprintf("spread %.2f%%, max %.2f%%", spread, v.cfg.MaxSpreadPct))

	if market.Volume24h > 0 {
		add("volume_24h", market.Volume24h >= v.cfg.MinVolume24hUSDC,
			fmt.Sprintf("24h volume $%.0f, min $%.0f", market.Volume24h, v.cfg.MinVolume24hUSDC))
		ratio := notional / market.Volume24h
		add("volume_ratio", ratio <= v.cfg.MaxVolumeRatio,
			fmt.Sprintf("trade is %.1f%% of 24h volume, max %.1f%%", ratio*100, v.cfg.MaxVolumeRatio*100))
	} else {
		add("volume_24h", false, "24h volume unavailable")
	}

	if account.LastOrderAt.IsZero() {
		add("trade_cadence", true, "no prior order")
	} else {
		since := now.Sub(account.LastOrderAt)
		add("trade_cadence", since >= time.Duration(v.cfg.MinSecondsBetween)*time.Second,
			fmt.Sprintf("%.0fs since last order, min %ds", since.Seconds(), v.cfg.MinSecondsBetween))
	}

	if last, ok := account.LastOrderByMarket[event.ConditionID]; ok {
		since := now.Sub(last)
		add("market_cadence", since >= time.Duration(v.cfg.MinSecondsPerMarket)*time.Second,
			fmt.Sprintf("%.0fs since last order in market, min %ds", since.Seconds(), v.cfg.MinSecondsPerMarket))
	} else {
		add("market_cadence", true, "no prior order in market")
	}

	add("hourly_rate", account.OrdersLastHour < v.cfg.MaxTradesPerHour,
		fmt.Sprintf("%d orders last hour, max %d", account.OrdersLastHour, v.cfg.MaxTradesPerHour))

	open := account.OpenByMarket[event.ConditionID]
	add("market_exposure", open < v.cfg.MaxOpenNotionalUSDC,
		fmt.Sprintf("$%.2f open in market, cap $%.2f", open, v.cfg.MaxOpenNotionalUSDC))

	return verdict(checks)
}

func verdict(checks []models.CheckResult) models.Verdict {
	passed := true
	for _, c := range checks {
		if !c.Passed {
			passed = false
			break
		}
	}
	return models.Verdict{Checks: checks, Passed: passed}
}
