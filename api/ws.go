package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultLiveDataWSURL = "wss://ws-live-data.polymarket.com"

// LiveActivityClient watches the live-data websocket for orders_matched
// events from the target wallet and signals the nudge channel so the poll
// loop can run a tick early. Detection correctness never depends on it; the
// polled feed remains the source of truth.
type LiveActivityClient struct {
	wsURL  string
	target string
	nudge  chan struct{}
}

// NewLiveActivityClient creates a watcher for one wallet. Nudge() never
// blocks: signals coalesce when the consumer is busy.
func NewLiveActivityClient(wsURL, targetWallet string) *LiveActivityClient {
	if wsURL == "" {
		wsURL = DefaultLiveDataWSURL
	}
	return &LiveActivityClient{
		wsURL:  wsURL,
		target: strings.ToLower(targetWallet),
		nudge:  make(chan struct{}, 1),
	}
}

// Nudge returns the channel that fires when the target trades.
func (c *LiveActivityClient) Nudge() <-chan struct{} {
	return c.nudge
}

// Run connects and reads until ctx is cancelled, reconnecting on any error.
func (c *LiveActivityClient) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.runOnce(ctx); err != nil {
			log.Printf("[LiveWS] %v, reconnecting in 5s...", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (c *LiveActivityClient) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, _, err := dialer.Dial(c.wsURL, headers)
	if err != nil {
		return err
	}
	defer conn.Close()

	subMsg := map[string]interface{}{
		"action": "subscribe",
		"subscriptions": []map[string]interface{}{
			{"topic": "activity", "type": "orders_matched"},
		},
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		return err
	}
	log.Printf("[LiveWS] Subscribed to orders_matched for %s", c.target)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline") {
				continue
			}
			return err
		}

		var msg struct {
			Type    string `json:"type"`
			Payload struct {
				ProxyWallet     string `json:"proxyWallet"`
				TransactionHash string `json:"transactionHash"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "orders_matched" {
			continue
		}
		if strings.ToLower(msg.Payload.ProxyWallet) != c.target {
			continue
		}

		select {
		case c.nudge <- struct{}{}:
		default:
		}
	}
}
