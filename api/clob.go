package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"polymarket-copytrader/models"
)

const (
	DefaultClobURL = "https://clob.polymarket.com"

	PolygonChainID = 137

	// Exchange contracts the orders settle against.
	ctfExchange        = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskCTFExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

	// USDC and outcome tokens both use 6 decimals on Polymarket.
	baseUnits = 1e6
)

// ClobClient talks to the Polymarket CLOB: order books, market info and
// signed order submission.
type ClobClient struct {
	baseURL       string
	httpClient    *http.Client
	auth          *Auth
	apiCreds      *APICreds
	funder        string
	signatureType int // 0=EOA, 1=Magic/Email, 2=Browser proxy
}

// APICreds holds L2 API credentials derived from the signing wallet.
type APICreds struct {
	APIKey        string `json:"apiKey"`
	APISecret     string `json:"secret"`
	APIPassphrase string `json:"passphrase"`
}

// OrderBook represents the order book for a token.
type OrderBook struct {
	Market    string           `json:"market"`
	AssetID   string           `json:"asset_id"`
	Timestamp string           `json:"timestamp"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
}

// OrderBookLevel represents a single price level.
type OrderBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// MarketInfo represents market metadata from the CLOB.
type MarketInfo struct {
	ConditionID      string          `json:"condition_id"`
	Question         string          `json:"question"`
	Tokens           []ClobTokenInfo `json:"tokens"`
	MinimumOrderSize string          `json:"minimum_order_size"`
	MinimumTickSize  string          `json:"minimum_tick_size"`
	EndDateISO       string          `json:"end_date_iso"`
	Active           bool            `json:"active"`
	Closed           bool            `json:"closed"`
	NegRisk          bool            `json:"neg_risk"`
}

// ClobTokenInfo is one outcome token within a market.
type ClobTokenInfo struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Price   string `json:"price"`
}

type signedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`

	sideInt   int
	orderHash string
}

type orderRequest struct {
	Order     signedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

type orderResponse struct {
	Success     bool     `json:"success"`
	ErrorMsg    string   `json:"errorMsg"`
	OrderID     string   `json:"orderId"`
	OrderHashes []string `json:"orderHashes"`
	Status      string   `json:"status"`
}

type orderStatusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
}

// NewClobClient creates a CLOB client. auth may be nil for read-only use;
// order books and market info need no credentials.
func NewClobClient(baseURL string, auth *Auth, timeout time.Duration) *ClobClient {
	if baseURL == "" {
		baseURL = DefaultClobURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClobClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		auth:       auth,
	}
}

// SetFunder configures a proxy-wallet funder; the funder becomes the maker of
// every order while the EOA stays the signer.
func (c *ClobClient) SetFunder(funder string) {
	c.funder = funder
	c.signatureType = 1
}

// DeriveAPICreds creates or derives the L2 API credentials for this wallet.
func (c *ClobClient) DeriveAPICreds(ctx context.Context) (*APICreds, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("clob: no signing wallet configured")
	}

	creds, err := c.credsRequest(ctx, http.MethodPost, "/auth/api-key")
	if err == nil {
		c.apiCreds = creds
		return creds, nil
	}

	// Key already exists; derive it instead.
	creds, err = c.credsRequest(ctx, http.MethodGet, "/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive API creds: %w", err)
	}
	c.apiCreds = creds
	return creds, nil
}

func (c *ClobClient) credsRequest(ctx context.Context, method, path string) (*APICreds, error) {
	headers, err := c.auth.SignRequest()
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, string(respBody))
	}

	var creds APICreds
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("decode API creds: %w", err)
	}
	return &creds, nil
}

// GetOrderBook fetches the order book for a token.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	values := url.Values{}
	values.Set("token_id", tokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/book?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get order book: %d %s", resp.StatusCode, string(body))
	}

	var book OrderBook
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("decode order book: %w", err)
	}
	return &book, nil
}

// GetMarket fetches market metadata by condition ID.
func (c *ClobClient) GetMarket(ctx context.Context, conditionID string) (*MarketInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets/"+conditionID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get market: %d %s", resp.StatusCode, string(body))
	}

	var market MarketInfo
	if err := json.NewDecoder(resp.Body).Decode(&market); err != nil {
		return nil, fmt.Errorf("decode market: %w", err)
	}
	return &market, nil
}

// PlaceOrder signs and submits a fill-or-kill order. The order salt is
// derived from the client key, so resubmitting the same models.Order yields a
// byte-identical signed order and the venue dedups it by order hash.
func (c *ClobClient) PlaceOrder(ctx context.Context, order models.Order) (*models.VenueAck, error) {
	if c.apiCreds == nil {
		if _, err := c.DeriveAPICreds(ctx); err != nil {
			return nil, fmt.Errorf("get API creds: %w", err)
		}
	}

	signed, err := c.buildSignedOrder(order)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}

	resp, err := c.postOrder(ctx, signed, "FOK")
	if err != nil {
		return nil, err
	}

	ack := &models.VenueAck{
		Accepted: resp.Success,
		OrderID:  resp.OrderID,
		Status:   resp.Status,
		Reject:   resp.ErrorMsg,
	}
	if resp.Success && resp.Status == "matched" {
		ack.FilledSize = order.Size
		ack.FilledPrice = order.LimitPrice
	}
	// A FOK that did not match immediately is killed venue-side.
	if resp.Success && resp.Status == "unmatched" {
		ack.Accepted = false
		ack.Reject = "unmatched (killed)"
	}
	return ack, nil
}

// OrderStatus looks up a previously submitted order by rebuilding its hash
// from the client key. Used after ambiguous failures to decide whether a
// resubmission is safe.
func (c *ClobClient) OrderStatus(ctx context.Context, order models.Order) (*models.VenueOrderStatus, error) {
	signed, err := c.buildSignedOrder(order)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/order/"+signed.orderHash, nil)
	if err != nil {
		return nil, err
	}
	if err := c.addL2Headers(req, nil); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &models.VenueOrderStatus{Found: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("order status: %d %s", resp.StatusCode, string(body))
	}

	var status orderStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode order status: %w", err)
	}

	matched, _ := strconv.ParseFloat(status.SizeMatched, 64)
	price, _ := strconv.ParseFloat(status.Price, 64)

	return &models.VenueOrderStatus{
		Found:       true,
		OrderID:     status.ID,
		Filled:      matched > 0,
		FilledSize:  matched,
		FilledPrice: price,
		Status:      status.Status,
	}, nil
}

func (c *ClobClient) buildSignedOrder(order models.Order) (*signedOrder, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("clob: no signing wallet configured")
	}

	price := roundToTick(order.LimitPrice, 0.01)
	size := float64(int(order.Size*100+0.5)) / 100
	if size <= 0 {
		return nil, fmt.Errorf("order size rounds to zero")
	}

	sizeInt := toBaseUnits(size)
	usdcInt := toBaseUnits(size * price)

	var makerAmount, takerAmount *big.Int
	sideInt := 0
	if order.Side == models.SideBuy {
		makerAmount, takerAmount = usdcInt, sizeInt
	} else {
		makerAmount, takerAmount = sizeInt, usdcInt
		sideInt = 1
	}

	maker := c.auth.GetAddress().Hex()
	if c.funder != "" {
		maker = c.funder
	}

	signed := &signedOrder{
		Salt:          saltFromClientKey(order.ClientKey),
		Maker:         maker,
		Signer:        c.auth.GetAddress().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       order.TokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          string(order.Side),
		SignatureType: c.signatureType,
		sideInt:       sideInt,
	}

	if err := c.signOrder(signed, order.NegRisk); err != nil {
		return nil, err
	}
	return signed, nil
}

func (c *ClobClient) signOrder(order *signedOrder, negRisk bool) error {
	verifyingContract := ctfExchange
	if negRisk {
		verifyingContract = negRiskCTFExchange
	}

	tokenID, ok := new(big.Int).SetString(order.TokenID, 10)
	if !ok {
		return fmt.Errorf("token ID %q is not numeric", order.TokenID)
	}
	makerAmount, _ := new(big.Int).SetString(order.MakerAmount, 10)
	takerAmount, _ := new(big.Int).SetString(order.TakerAmount, 10)

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": []apitypes.Type{
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Polymarket CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(PolygonChainID),
			VerifyingContract: verifyingContract,
		},
		Message: map[string]interface{}{
			"salt":          big.NewInt(order.Salt),
			"maker":         order.Maker,
			"signer":        order.Signer,
			"taker":         order.Taker,
			"tokenId":       tokenID,
			"makerAmount":   makerAmount,
			"takerAmount":   takerAmount,
			"expiration":    big.NewInt(0),
			"nonce":         big.NewInt(0),
			"feeRateBps":    big.NewInt(0),
			"side":          big.NewInt(int64(order.sideInt)),
			"signatureType": big.NewInt(int64(order.SignatureType)),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return fmt.Errorf("hash typed data: %w", err)
	}

	signature, err := crypto.Sign(hash, c.auth.privateKey)
	if err != nil {
		return fmt.Errorf("sign order: %w", err)
	}
	signature[64] += 27

	order.Signature = "0x" + hex.EncodeToString(signature)
	order.orderHash = "0x" + hex.EncodeToString(hash)
	return nil
}

func (c *ClobClient) postOrder(ctx context.Context, order *signedOrder, orderType string) (*orderResponse, error) {
	payload := orderRequest{
		Order:     *order,
		Owner:     c.apiCreds.APIKey,
		OrderType: orderType,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if err := c.addL2Headers(req, body); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		// A 4xx with a parseable body is an explicit venue rejection, not a
		// transport failure.
		var rejected orderResponse
		if resp.StatusCode < 500 && json.Unmarshal(respBody, &rejected) == nil && rejected.ErrorMsg != "" {
			return &rejected, nil
		}
		return nil, fmt.Errorf("post order: %d %s", resp.StatusCode, string(respBody))
	}

	var orderResp orderResponse
	if err := json.Unmarshal(respBody, &orderResp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	log.Printf("[CLOB] order %s status=%s id=%s", order.Side, orderResp.Status, orderResp.OrderID)
	return &orderResp, nil
}

func (c *ClobClient) addL2Headers(req *http.Request, body []byte) error {
	if c.apiCreds == nil {
		return fmt.Errorf("clob: no API credentials")
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := timestamp + req.Method + req.URL.Path + string(body)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_ADDRESS", c.auth.GetAddress().Hex())
	req.Header.Set("POLY_API_KEY", c.apiCreds.APIKey)
	req.Header.Set("POLY_PASSPHRASE", c.apiCreds.APIPassphrase)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_SIGNATURE", hmacSign(message, c.apiCreds.APISecret))
	return nil
}

func hmacSign(message, secret string) string {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		if key, err = base64.StdEncoding.DecodeString(secret); err != nil {
			key = []byte(secret)
		}
	}

	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// saltFromClientKey folds the idempotency key into the order salt. Keeping
// the salt deterministic per trade is what makes a retried submission hash to
// the same venue-side order.
func saltFromClientKey(clientKey string) int64 {
	sum := crypto.Keccak256([]byte(clientKey))
	salt := int64(binary.BigEndian.Uint64(sum[:8]) &^ (1 << 63))
	if salt == 0 {
		salt = 1
	}
	return salt
}

func roundToTick(price, tick float64) float64 {
	return float64(int(price/tick+0.5)) * tick
}

func toBaseUnits(v float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(v), big.NewFloat(baseUnits))
	i, _ := f.Int(nil)
	return i
}

// DepthUSD sums the book value of one side across the top levels, feeding
// the liquidity check.
func DepthUSD(levels []OrderBookLevel, maxLevels int) float64 {
	total := 0.0
	for i, level := range levels {
		if maxLevels > 0 && i >= maxLevels {
			break
		}
		price, _ := strconv.ParseFloat(level.Price, 64)
		size, _ := strconv.ParseFloat(level.Size, 64)
		total += price * size
	}
	return total
}

// BestPrice returns the top-of-book price for a side, 0 when empty.
func BestPrice(levels []OrderBookLevel) float64 {
	if len(levels) == 0 {
		return 0
	}
	price, _ := strconv.ParseFloat(levels[0].Price, 64)
	return price
}
