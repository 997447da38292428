package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/handlers"
	"polymarket-copytrader/middleware"
	"polymarket-copytrader/notify"
	"polymarket-copytrader/storage"
	"polymarket-copytrader/trader"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("copytrader: %v", err)
	}
}

func run() error {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("COPYTRADER_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := storage.NewPostgres()
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	var sink notify.Sink
	if tg, err := notify.NewTelegramSink(); err == nil {
		sink = tg
	} else {
		log.Printf("Telegram disabled: %v", err)
		sink = notify.NullSink{}
	}

	timeout := time.Duration(cfg.Execution.RequestTimeoutMS) * time.Millisecond
	dataClient := api.NewDataClient(os.Getenv("POLYMARKET_DATA_API_URL"), timeout)
	chainClient := api.NewChainClient(os.Getenv("POLYGON_RPC_URL"), timeout)

	var auth *api.Auth
	if os.Getenv("POLYMARKET_PRIVATE_KEY") != "" {
		auth, err = api.NewAuth()
		if err != nil {
			return fmt.Errorf("init signing wallet: %w", err)
		}
	} else if !cfg.Execution.DryRun {
		return fmt.Errorf("POLYMARKET_PRIVATE_KEY required for live trading")
	}

	clobClient := api.NewClobClient(os.Getenv("POLYMARKET_API_URL"), auth, timeout)
	if funder := os.Getenv("POLYMARKET_FUNDER_ADDRESS"); funder != "" {
		clobClient.SetFunder(funder)
	}
	markets := api.NewMarketService(clobClient, os.Getenv("POLYMARKET_GAMMA_URL"), timeout)

	// Our proxy wallet for balance reads. Falls back to the signer address.
	wallet := os.Getenv("POLYMARKET_FUNDER_ADDRESS")
	if wallet == "" && auth != nil {
		wallet = auth.GetAddress().Hex()
	}
	if wallet == "" {
		return fmt.Errorf("POLYMARKET_FUNDER_ADDRESS or POLYMARKET_PRIVATE_KEY required to track balances")
	}
	if !middleware.IsValidEthAddress(wallet) {
		return fmt.Errorf("wallet %q is not a valid address", wallet)
	}

	detector := trader.NewChangeDetector(dataClient, store, cfg.Target.Address,
		cfg.Polling.PageLimit, cfg.Polling.PerTickCap,
		time.Duration(cfg.Polling.LookbackMinutes)*time.Minute)
	portfolio := trader.NewPortfolioTracker(chainClient, dataClient, store,
		cfg.Bankroll, wallet, cfg.Target.Address, cfg.Target.InitialCapitalUSDC)
	gate := trader.NewRiskGate(cfg.Risk, store, sink)
	validator := trader.NewTradeValidator(cfg.Validation)
	sizing := trader.NewSizingPolicy(cfg.Bankroll, cfg.Target.WinRate)
	executor := trader.NewOrderExecutor(clobClient, cfg.Execution.DryRun,
		cfg.Execution.MaxRetries, time.Duration(cfg.Execution.RetryDelayMS)*time.Millisecond,
		cfg.Execution.MaxSlippagePct)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var nudge <-chan struct{}
	if cfg.Polling.UseWebsocketHint {
		liveWS := api.NewLiveActivityClient(os.Getenv("POLYMARKET_WS_URL"), cfg.Target.Address)
		nudge = liveWS.Nudge()
		go liveWS.Run(ctx)
	}

	bot := trader.NewBot(cfg, detector, portfolio, gate, validator, sizing, executor,
		markets, dataClient, store, sink, nudge)

	botErr := make(chan error, 1)
	go func() {
		botErr <- bot.Run(ctx)
	}()

	// Operator API
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(middleware.BasicAuth(), middleware.ValidateQueryParams())
	handlers.NewHandler(cfg, store, bot).Register(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(cfg.Server.Port)
	}
	server := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		log.Printf("Operator API on http://localhost:%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
		cancel()
		bot.Stop()
	case err := <-botErr:
		if err != nil && err != context.Canceled {
			log.Printf("bot stopped: %v", err)
			runErr = fmt.Errorf("bot stopped: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	log.Println("Shutdown complete")
	return runErr
}
