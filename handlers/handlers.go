// Package handlers exposes the operator HTTP API: engine status, the
// copy-trade audit log, open positions and a manual breaker reset.
package handlers

import (
	"net/http"
	"strconv"

	"polymarket-copytrader/config"
	"polymarket-copytrader/storage"
	"polymarket-copytrader/trader"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests
type Handler struct {
	cfg   *config.Config
	store storage.DataStore
	bot   *trader.Bot
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, store storage.DataStore, bot *trader.Bot) *Handler {
	return &Handler{cfg: cfg, store: store, bot: bot}
}

// Register mounts the operator routes.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/status", h.GetStatus)
	r.GET("/trades", h.GetTrades)
	r.GET("/positions", h.GetPositions)
	r.GET("/risk/events", h.GetRiskEvents)
	r.POST("/risk/reset", h.ResetBreaker)
}

// Health is a liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus returns engine state and aggregate counters.
func (h *Handler) GetStatus(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}

	state, reason := h.bot.Gate().State()
	c.JSON(http.StatusOK, gin.H{
		"target":         h.cfg.Target.Address,
		"dry_run":        h.cfg.Execution.DryRun,
		"bankroll_mode":  h.cfg.Bankroll.Mode,
		"breaker":        state.String(),
		"breaker_reason": reason,
		"stats":          stats,
	})
}

// GetTrades returns the newest audit-log records.
func (h *Handler) GetTrades(c *gin.Context) {
	limit := 100
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	trades, err := h.store.ListCopyTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"count":  len(trades),
	})
}

// GetPositions returns our open positions.
func (h *Handler) GetPositions(c *gin.Context) {
	positions, err := h.store.ListPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load positions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

// GetRiskEvents returns recent circuit-breaker transitions.
func (h *Handler) GetRiskEvents(c *gin.Context) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	events, err := h.store.ListRiskEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load risk events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// ResetBreaker clears a standing halt on operator request.
func (h *Handler) ResetBreaker(c *gin.Context) {
	h.bot.Gate().ManualReset(c.Request.Context())
	state, _ := h.bot.Gate().State()
	c.JSON(http.StatusOK, gin.H{"breaker": state.String()})
}
