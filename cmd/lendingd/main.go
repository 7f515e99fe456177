// Command lendingd runs the over-collateralised lending core: the HTTP API,
// the WebSocket notification endpoint, the Prometheus metrics endpoint, and
// the four background scheduler loops, all against one SQLite-backed
// ledger.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loanzzz/lending-core/internal/api"
	"github.com/loanzzz/lending-core/internal/config"
	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/escrow"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/lending"
	"github.com/loanzzz/lending-core/internal/logging"
	"github.com/loanzzz/lending-core/internal/money"
	"github.com/loanzzz/lending-core/internal/notify"
	"github.com/loanzzz/lending-core/internal/oracle"
	"github.com/loanzzz/lending-core/internal/risk"
	"github.com/loanzzz/lending-core/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup("lendingd", cfg.LogLevel, cfg.LogFile)

	assetDefaults, err := config.LoadAssetDefaults(cfg.AssetConfigPath)
	if err != nil {
		log.Fatalf("load asset config: %v", err)
	}

	store, err := ledger.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer store.Close()

	priceOracle := oracle.New(store, cfg.CoingeckoAPIURL, cfg.OracleTTL, cfg.OracleTimeout, defaultPrices(assetDefaults))

	bus := notify.NewBus()

	lendingEngine := lending.New(store, priceOracle, bus, lending.Params{
		InitialLTV:         money.FromFloat(cfg.InitialLTV),
		MarginCallLTV:      money.FromFloat(cfg.MarginCallLTV),
		LiquidationLTV:     money.FromFloat(cfg.LiquidationLTV),
		HourlyInterestRate: money.FromFloat(cfg.HourlyInterestRate),
	})
	riskEngine := risk.New(store, priceOracle, bus, risk.Params{
		MarginCallLTV:  money.FromFloat(cfg.MarginCallLTV),
		LiquidationLTV: money.FromFloat(cfg.LiquidationLTV),
		LiquidationFee: money.FromFloat(cfg.LiquidationFee),
	})

	var escrowObserver scheduler.EscrowObserver = escrow.NoopObserver{}
	if strings.TrimSpace(cfg.EscrowIndexerURL) != "" {
		escrowObserver = escrow.NewHTTPObserver(cfg.EscrowIndexerURL, cfg.OracleTimeout)
	}

	sched := scheduler.New(store, priceOracle, lendingEngine, riskEngine, bus, escrowObserver, money.FromFloat(cfg.DailyYieldRate), logger)

	apiParams := api.Params{
		InitialLTV:         cfg.InitialLTV,
		MarginCallLTV:      cfg.MarginCallLTV,
		LiquidationLTV:     cfg.LiquidationLTV,
		HourlyInterestRate: cfg.HourlyInterestRate,
		LiquidationFee:     cfg.LiquidationFee,
	}
	server := api.NewServer(store, priceOracle, lendingEngine, riskEngine, bus, apiParams, logger)

	wsOrigins := []string{"*"}
	if strings.TrimSpace(cfg.Frontend) != "" {
		wsOrigins = []string{cfg.Frontend}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sched.Run(ctx)

	httpSrv := &http.Server{
		Addr:    ":" + strings.TrimPrefix(cfg.Port, ":"),
		Handler: server.Router(cfg.Frontend, wsOrigins),
	}

	go func() {
		logger.Info("lendingd listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("lendingd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
	}
}

// defaultPrices builds the oracle's configured fallback prices from the
// optional asset config override, falling back to the hardcoded defaults
// for anything not overridden.
func defaultPrices(overrides config.AssetDefaults) map[domain.Asset]money.Decimal {
	defaults := map[domain.Asset]money.Decimal{
		domain.AssetXEC:   money.FromFloat(0.00003),
		domain.AssetXECX:  money.FromFloat(0.00003),
		domain.AssetFIRMA: money.FromFloat(1.0),
	}
	for asset, price := range overrides.DefaultPricesUSD {
		if a, ok := domain.ParseAsset(asset); ok {
			defaults[a] = money.FromFloat(price)
		}
	}
	return defaults
}
