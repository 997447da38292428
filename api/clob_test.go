package api

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymarket-copytrader/models"
)

func testAuth(t *testing.T) *Auth {
	t.Helper()
	key, err := crypto.HexToECDSA("0af23caa24a3e77a0ead18de1c1ea81953e390e665e877b078ac45ef816f5ba3")
	require.NoError(t, err)
	return &Auth{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

func TestSaltFromClientKeyDeterministic(t *testing.T) {
	s1 := saltFromClientKey("abc123")
	s2 := saltFromClientKey("abc123")
	assert.Equal(t, s1, s2)
	assert.Positive(t, s1)

	assert.NotEqual(t, s1, saltFromClientKey("abc124"))
}

func TestBuildSignedOrderDeterministic(t *testing.T) {
	client := NewClobClient("", testAuth(t), 5*time.Second)
	order := models.Order{
		TradeID:    "trade-1",
		ClientKey:  "da3a5c8f1b2e4d6a",
		TokenID:    "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		Side:       models.SideBuy,
		Notional:   50,
		LimitPrice: 0.60,
		Size:       83.33,
	}

	first, err := client.buildSignedOrder(order)
	require.NoError(t, err)
	second, err := client.buildSignedOrder(order)
	require.NoError(t, err)

	// Same trade, same salt, same hash: a resubmission dedups venue-side.
	assert.Equal(t, first.Salt, second.Salt)
	assert.Equal(t, first.orderHash, second.orderHash)
	assert.Equal(t, first.Signature, second.Signature)
}

func TestBuildSignedOrderAmounts(t *testing.T) {
	client := NewClobClient("", testAuth(t), 5*time.Second)

	buy := models.Order{
		ClientKey:  "key-1",
		TokenID:    "12345",
		Side:       models.SideBuy,
		LimitPrice: 0.50,
		Size:       100,
	}
	signed, err := client.buildSignedOrder(buy)
	require.NoError(t, err)
	assert.Equal(t, "50000000", signed.MakerAmount, "buy maker pays USDC")
	assert.Equal(t, "100000000", signed.TakerAmount, "buy taker delivers tokens")
	assert.Equal(t, "BUY", signed.Side)

	sell := buy
	sell.Side = models.SideSell
	signed, err = client.buildSignedOrder(sell)
	require.NoError(t, err)
	assert.Equal(t, "100000000", signed.MakerAmount, "sell maker delivers tokens")
	assert.Equal(t, "50000000", signed.TakerAmount, "sell taker pays USDC")
	assert.Equal(t, "SELL", signed.Side)
}

func TestBuildSignedOrderFunderBecomesMaker(t *testing.T) {
	auth := testAuth(t)
	client := NewClobClient("", auth, 5*time.Second)
	client.SetFunder("0x1111111111111111111111111111111111111111")

	signed, err := client.buildSignedOrder(models.Order{
		ClientKey:  "key-1",
		TokenID:    "12345",
		Side:       models.SideBuy,
		LimitPrice: 0.50,
		Size:       100,
	})
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", signed.Maker)
	assert.Equal(t, auth.GetAddress().Hex(), signed.Signer)
	assert.Equal(t, 1, signed.SignatureType)
}

func TestBuildSignedOrderRejectsZeroSize(t *testing.T) {
	client := NewClobClient("", testAuth(t), 5*time.Second)
	_, err := client.buildSignedOrder(models.Order{
		ClientKey:  "key-1",
		TokenID:    "12345",
		Side:       models.SideBuy,
		LimitPrice: 0.50,
		Size:       0.001,
	})
	assert.Error(t, err)
}

func TestRoundToTick(t *testing.T) {
	assert.InDelta(t, 0.60, roundToTick(0.6012, 0.01), 1e-9)
	assert.InDelta(t, 0.61, roundToTick(0.606, 0.01), 1e-9)
	assert.InDelta(t, 0.01, roundToTick(0.014, 0.01), 1e-9)
}

func TestToBaseUnits(t *testing.T) {
	assert.Equal(t, "50000000", toBaseUnits(50).String())
	assert.Equal(t, "250000", toBaseUnits(0.25).String())
}

func TestDepthUSD(t *testing.T) {
	levels := []OrderBookLevel{
		{Price: "0.50", Size: "1000"}, // $500
		{Price: "0.49", Size: "1000"}, // $490
		{Price: "0.48", Size: "1000"}, // $480
	}
	assert.InDelta(t, 1470, DepthUSD(levels, 0), 0.001)
	assert.InDelta(t, 990, DepthUSD(levels, 2), 0.001)
	assert.Zero(t, DepthUSD(nil, 10))
}

func TestBestPrice(t *testing.T) {
	assert.Equal(t, 0.55, BestPrice([]OrderBookLevel{{Price: "0.55", Size: "10"}}))
	assert.Zero(t, BestPrice(nil))
}
