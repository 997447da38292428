package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"polymarket-copytrader/models"
)

const DefaultGammaURL = "https://gamma-api.polymarket.com"

// MarketService assembles a point-in-time MarketState from the CLOB (book,
// metadata) and Gamma (24h volume). States are cached briefly so several
// events in one market within a tick share one fetch.
type MarketService struct {
	clob       *ClobClient
	gammaURL   string
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]cachedState
	ttl   time.Duration
}

type cachedState struct {
	state models.MarketState
	at    time.Time
}

// NewMarketService creates a market-state provider.
func NewMarketService(clob *ClobClient, gammaURL string, timeout time.Duration) *MarketService {
	if gammaURL == "" {
		gammaURL = DefaultGammaURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MarketService{
		clob:       clob,
		gammaURL:   gammaURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      make(map[string]cachedState),
		ttl:        5 * time.Second,
	}
}

// MarketState fetches a fresh view of one market+token.
func (s *MarketService) MarketState(ctx context.Context, conditionID, tokenID string) (*models.MarketState, error) {
	key := conditionID + ":" + tokenID

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok && time.Since(cached.at) < s.ttl {
		state := cached.state
		s.mu.Unlock()
		return &state, nil
	}
	s.mu.Unlock()

	market, err := s.clob.GetMarket(ctx, conditionID)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", conditionID, err)
	}

	book, err := s.clob.GetOrderBook(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("book %s: %w", tokenID, err)
	}

	state := models.MarketState{
		ConditionID: conditionID,
		Active:      market.Active,
		Closed:      market.Closed,
		NegRisk:     market.NegRisk,
		BestBid:     BestPrice(book.Bids),
		BestAsk:     BestPrice(book.Asks),
		BidDepthUSD: DepthUSD(book.Bids, 10),
		AskDepthUSD: DepthUSD(book.Asks, 10),
		FetchedAt:   time.Now().UTC(),
	}
	if market.MinimumOrderSize != "" {
		state.MinOrderSize, _ = strconv.ParseFloat(market.MinimumOrderSize, 64)
	}
	if market.EndDateISO != "" {
		if end, err := time.Parse(time.RFC3339, market.EndDateISO); err == nil {
			state.EndDate = end
		}
	}

	// Volume comes from Gamma; treat a failure there as volume unknown (0)
	// rather than aborting the whole state read.
	if vol, err := s.volume24h(ctx, conditionID); err == nil {
		state.Volume24h = vol
	}

	s.mu.Lock()
	s.cache[key] = cachedState{state: state, at: time.Now()}
	s.mu.Unlock()

	return &state, nil
}

func (s *MarketService) volume24h(ctx context.Context, conditionID string) (float64, error) {
	values := url.Values{}
	values.Set("condition_ids", conditionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.gammaURL+"/markets?"+values.Encode(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("gamma markets: %d", resp.StatusCode)
	}

	// Gamma returns volume fields as strings.
	var markets []struct {
		Volume24hr string `json:"volume24hr"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return 0, err
	}
	if len(markets) == 0 {
		return 0, fmt.Errorf("market not on gamma")
	}

	vol, err := strconv.ParseFloat(markets[0].Volume24hr, 64)
	if err != nil {
		return 0, err
	}
	return vol, nil
}
