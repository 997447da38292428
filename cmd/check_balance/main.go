// Command check_balance prints the USDC balance and open-position value for
// a wallet, for verifying credentials and funder wiring before going live.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"polymarket-copytrader/api"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	walletAddr := os.Getenv("POLYMARKET_FUNDER_ADDRESS")
	if walletAddr == "" && len(os.Args) > 1 {
		walletAddr = os.Args[1]
	}
	if walletAddr == "" {
		log.Fatal("usage: check_balance <address> (or set POLYMARKET_FUNDER_ADDRESS)")
	}

	fmt.Printf("Checking balances for: %s\n\n", walletAddr)

	chain := api.NewChainClient(os.Getenv("POLYGON_RPC_URL"), 10*time.Second)
	balance, err := chain.USDCBalance(ctx, walletAddr)
	if err != nil {
		log.Printf("On-chain balance error: %v", err)
	} else {
		fmt.Printf("On-Chain USDC Balance: $%.2f\n", balance)
	}

	data := api.NewDataClient("", 10*time.Second)
	value, err := data.PositionsValue(ctx, walletAddr)
	if err != nil {
		log.Printf("Positions value error: %v", err)
	} else {
		fmt.Printf("Open Position Value:   $%.2f\n", value)
		fmt.Printf("Net Worth:             $%.2f\n", balance+value)
	}

	if os.Getenv("POLYMARKET_PRIVATE_KEY") != "" {
		auth, err := api.NewAuth()
		if err != nil {
			log.Fatalf("Failed to load signing wallet: %v", err)
		}
		fmt.Printf("\nSigner address: %s\n", auth.GetAddress().Hex())

		clob := api.NewClobClient("", auth, 10*time.Second)
		if _, err := clob.DeriveAPICreds(ctx); err != nil {
			log.Printf("CLOB credential derivation failed: %v", err)
		} else {
			fmt.Println("CLOB API credentials: OK")
		}
	} else {
		fmt.Println("\nPOLYMARKET_PRIVATE_KEY not set - skipping CLOB credential check")
	}
}
