package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

const (
	// USDC.e on Polygon, the collateral token for Polymarket.
	USDCContractPolygon = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	DefaultPolygonRPC = "https://polygon-rpc.com"
)

// ChainClient reads on-chain state over Polygon JSON-RPC. Balance reads need
// no key and work for any address, including proxy wallets.
type ChainClient struct {
	rpcURL     string
	httpClient *http.Client
}

// NewChainClient creates a Polygon RPC client.
func NewChainClient(rpcURL string, timeout time.Duration) *ChainClient {
	if rpcURL == "" {
		rpcURL = DefaultPolygonRPC
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChainClient{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// USDCBalance returns the wallet's USDC balance in dollars.
func (c *ChainClient) USDCBalance(ctx context.Context, walletAddress string) (float64, error) {
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if !strings.HasPrefix(walletAddress, "0x") {
		walletAddress = "0x" + walletAddress
	}

	// balanceOf(address) selector 0x70a08231, address left-padded to 32 bytes
	paddedAddr := fmt.Sprintf("%064s", strings.TrimPrefix(walletAddress, "0x"))
	callData := "0x70a08231" + paddedAddr

	reqBody := fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_call","params":[{"to":"%s","data":"%s"},"latest"],"id":1}`,
		USDCContractPolygon, callData)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, strings.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rpc request: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return 0, fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return 0, fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}

	raw, ok := new(big.Int).SetString(strings.TrimPrefix(rpcResp.Result, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("parse balance %q", rpcResp.Result)
	}

	// USDC has 6 decimals
	balance, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(baseUnits)).Float64()
	return balance, nil
}
