package trader

import (
	"fmt"

	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
)

// SizingPolicy converts an admitted buy into a notional for the follower
// account, and a target sell into a fraction of our position. Pure
// arithmetic; the bot supplies every input.
type SizingPolicy struct {
	cfg     config.BankrollConfig
	winRate float64
}

// NewSizingPolicy creates a policy. winRate feeds the Kelly edge estimate in
// dynamic mode.
func NewSizingPolicy(cfg config.BankrollConfig, winRate float64) *SizingPolicy {
	return &SizingPolicy{cfg: cfg, winRate: winRate}
}

// BuyNotional returns the USDC to commit for one buy. A zero notional with a
// non-empty reason is a sizing rejection: the trade is skipped, not failed.
func (p *SizingPolicy) BuyNotional(event models.TradeEvent, snap *models.PortfolioSnapshot, targetNetWorth float64) (float64, string) {
	theirNotional := event.Notional()

	var base float64
	if p.cfg.Mode == "fixed" {
		// Mirror the target dollar-for-dollar up to the fixed cap,
		// independent of our balance swings.
		base = theirNotional
		if base > p.cfg.FixedUSDC {
			base = p.cfg.FixedUSDC
		}
	} else {
		if targetNetWorth <= 0 {
			return 0, "target net worth unknown"
		}
		// Mirror their conviction: the same fraction of our bankroll as the
		// bet was of their net worth.
		theirPct := theirNotional / targetNetWorth
		base = theirPct * snap.Bankroll

		kellyCap := p.cfg.KellyCap
		if p.cfg.UseKellyEdge {
			if edge := kellyFraction(p.winRate, event.Price); edge < kellyCap {
				kellyCap = edge
			}
		}
		if maxByKelly := kellyCap * snap.Bankroll; base > maxByKelly {
			base = maxByKelly
		}
	}

	if p.cfg.MaxPortfolioPct > 0 {
		if cap := snap.NetWorth * p.cfg.MaxPortfolioPct / 100; base > cap {
			base = cap
		}
	}
	if base > p.cfg.MaxOrderUSDC {
		base = p.cfg.MaxOrderUSDC
	}
	if base > snap.Cash {
		base = snap.Cash
	}

	if base < p.cfg.MinOrderUSDC {
		return 0, fmt.Sprintf("sized $%.2f below minimum $%.2f", base, p.cfg.MinOrderUSDC)
	}
	return base, ""
}

// SellFraction returns what share of our position to exit, mirroring the
// fraction of theirs the target just sold. targetRemaining is the target's
// position size after the sale; zero means a full exit.
func (p *SizingPolicy) SellFraction(event models.TradeEvent, targetRemaining float64) float64 {
	if targetRemaining <= 0 {
		return 1
	}
	fraction := event.Size / (event.Size + targetRemaining)
	if fraction > 1 {
		return 1
	}
	if fraction < 0 {
		return 0
	}
	return fraction
}

// kellyFraction computes the Kelly-optimal bet fraction for a binary payout
// bought at price: a win pays (1-price)/price per dollar staked. Negative
// edge clamps to zero.
func kellyFraction(winRate, price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	b := (1 - price) / price
	f := (winRate*b - (1 - winRate)) / b
	if f < 0 {
		return 0
	}
	return f
}
