// Package notify delivers trade and risk alerts to the operator. Delivery is
// fire-and-forget: a dead Telegram API never blocks or fails the trade loop.
package notify

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"polymarket-copytrader/models"
)

// Sink receives engine notifications.
type Sink interface {
	TradeCopied(order models.Order, result models.OrderResult)
	TradeSkipped(event models.TradeEvent, stage, reason string)
	BreakerChanged(from, to models.BreakerState, reason string)
	Info(format string, args ...interface{})
}

// TelegramSink sends notifications to a Telegram chat.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	sendCh chan string
}

// NewTelegramSink initializes the Telegram bot from TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID. Returns an error when either is missing; callers fall
// back to the NullSink.
func NewTelegramSink() (*TelegramSink, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil || chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set or invalid")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	log.Printf("[Notify] Telegram authorized as %s", bot.Self.UserName)

	sink := &TelegramSink{
		bot:    bot,
		chatID: chatID,
		sendCh: make(chan string, 64),
	}
	go sink.sender()
	return sink, nil
}

// sender drains the queue sequentially so slow sends never touch the caller.
func (t *TelegramSink) sender() {
	for text := range t.sendCh {
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := t.bot.Send(msg); err != nil {
			log.Printf("[Notify] Telegram send failed: %v", err)
			time.Sleep(time.Second)
		}
	}
}

func (t *TelegramSink) enqueue(text string) {
	select {
	case t.sendCh <- text:
	default:
		log.Printf("[Notify] Queue full, dropping notification")
	}
}

func (t *TelegramSink) TradeCopied(order models.Order, result models.OrderResult) {
	emoji := "✅"
	if result.Outcome != models.OrderFilled {
		emoji = "❌"
	}
	label := result.Outcome.String()
	if result.DryRun {
		label = "dry-run " + label
	}
	t.enqueue(fmt.Sprintf("%s *%s %s* %s\n%s\n$%.2f @ %.3f (%.1f shares)\n%s",
		emoji, order.Side, order.Outcome, label,
		order.Title, order.Notional, order.LimitPrice, order.Size, result.Reason))
}

func (t *TelegramSink) TradeSkipped(event models.TradeEvent, stage, reason string) {
	t.enqueue(fmt.Sprintf("⏭ *Skipped* (%s)\n%s\n%s %s $%.2f @ %.3f\n%s",
		stage, event.Title, event.Side, event.Outcome, event.Notional(), event.Price, reason))
}

func (t *TelegramSink) BreakerChanged(from, to models.BreakerState, reason string) {
	emoji := "🟢"
	switch to {
	case models.BreakerWarning:
		emoji = "🟡"
	case models.BreakerHalted:
		emoji = "🔴"
	}
	t.enqueue(fmt.Sprintf("%s *Circuit breaker: %s → %s*\n%s", emoji, from, to, reason))
}

func (t *TelegramSink) Info(format string, args ...interface{}) {
	t.enqueue(fmt.Sprintf(format, args...))
}

// NullSink drops every notification. Used when Telegram is not configured.
type NullSink struct{}

func (NullSink) TradeCopied(models.Order, models.OrderResult)                {}
func (NullSink) TradeSkipped(models.TradeEvent, string, string)              {}
func (NullSink) BreakerChanged(models.BreakerState, models.BreakerState, string) {}
func (NullSink) Info(string, ...interface{})                                 {}

var (
	_ Sink = (*TelegramSink)(nil)
	_ Sink = NullSink{}
)
