package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"polymarket-copytrader/models"
)

const DefaultDataAPIURL = "https://data-api.polymarket.com"

// DataClient reads the public Data API: trade activity, open position value
// and closed PnL for any wallet. No authentication required.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

type activityRecord struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            float64 `json:"size"`
	UsdcSize        float64 `json:"usdcSize"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	Title           string  `json:"title"`
	Outcome         string  `json:"outcome"`
	TransactionHash string  `json:"transactionHash"`
}

type dataPosition struct {
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	CurPrice     float64 `json:"curPrice"`
	CurrentValue float64 `json:"currentValue"`
	Title        string  `json:"title"`
	Outcome      string  `json:"outcome"`
}

// NewDataClient creates a Data API client.
func NewDataClient(baseURL string, timeout time.Duration) *DataClient {
	if baseURL == "" {
		baseURL = DefaultDataAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DataClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RecentTrades fetches the newest trades for a wallet, newest first as the
// feed returns them. The caller is responsible for dedup and reordering.
func (c *DataClient) RecentTrades(ctx context.Context, wallet string, limit int) ([]models.TradeEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	values := url.Values{}
	values.Set("user", wallet)
	values.Set("type", "TRADE")
	values.Set("limit", strconv.Itoa(limit))

	var records []activityRecord
	if err := c.getJSON(ctx, "/activity?"+values.Encode(), &records); err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}

	events := make([]models.TradeEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, models.TradeEvent{
			ID:          tradeEventID(rec),
			Trader:      strings.ToLower(rec.ProxyWallet),
			ConditionID: rec.ConditionID,
			TokenID:     rec.Asset,
			Outcome:     rec.Outcome,
			Title:       rec.Title,
			Side:        models.Side(strings.ToUpper(rec.Side)),
			Price:       rec.Price,
			Size:        rec.Size,
			UsdcSize:    rec.UsdcSize,
			Timestamp:   time.Unix(rec.Timestamp, 0).UTC(),
			TxHash:      strings.ToLower(rec.TransactionHash),
		})
	}
	return events, nil
}

// PositionsValue returns the mark value of a wallet's open positions, summed
// from the feed's currentValue.
func (c *DataClient) PositionsValue(ctx context.Context, wallet string) (float64, error) {
	positions, err := c.openPositions(ctx, wallet)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, pos := range positions {
		total += pos.CurrentValue
	}
	return total, nil
}

// OpenPositions lists a wallet's open positions as domain records.
func (c *DataClient) OpenPositions(ctx context.Context, wallet string) ([]models.Position, error) {
	raw, err := c.openPositions(ctx, wallet)
	if err != nil {
		return nil, err
	}

	positions := make([]models.Position, 0, len(raw))
	for _, pos := range raw {
		positions = append(positions, models.Position{
			ConditionID: pos.ConditionID,
			TokenID:     pos.Asset,
			Outcome:     pos.Outcome,
			Title:       pos.Title,
			Size:        pos.Size,
			AvgPrice:    pos.AvgPrice,
			CostBasis:   pos.Size * pos.AvgPrice,
		})
	}
	return positions, nil
}

func (c *DataClient) openPositions(ctx context.Context, wallet string) ([]dataPosition, error) {
	values := url.Values{}
	values.Set("user", wallet)
	values.Set("sizeThreshold", "0.1")
	values.Set("limit", "500")

	var positions []dataPosition
	if err := c.getJSON(ctx, "/positions?"+values.Encode(), &positions); err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	return positions, nil
}

// ClosedPnL returns a wallet's realized profit since inception, from the
// leaderboard value endpoint. Used to estimate the target's net worth.
func (c *DataClient) ClosedPnL(ctx context.Context, wallet string) (float64, error) {
	values := url.Values{}
	values.Set("user", wallet)

	var entries []struct {
		User   string  `json:"user"`
		Amount float64 `json:"amount"`
	}
	if err := c.getJSON(ctx, "/value?"+values.Encode(), &entries); err != nil {
		return 0, fmt.Errorf("fetch closed pnl: %w", err)
	}

	for _, entry := range entries {
		if strings.EqualFold(entry.User, wallet) {
			return entry.Amount, nil
		}
	}
	return 0, nil
}

func (c *DataClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// tradeEventID builds a stable per-fill identifier. The feed has no explicit
// ID field, so tx hash + token + side identifies one fill; two fills of the
// same token in one tx collapse, which is acceptable for copy sizing.
func tradeEventID(rec activityRecord) string {
	return fmt.Sprintf("%s:%s:%s:%d",
		strings.ToLower(rec.TransactionHash), rec.Asset, strings.ToUpper(rec.Side), rec.Timestamp)
}
