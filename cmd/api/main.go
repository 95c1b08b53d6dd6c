package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lv-securities/internal/audit"
	"lv-securities/internal/config"
	"lv-securities/internal/custody"
	"lv-securities/internal/execution"
	"lv-securities/internal/fees"
	"lv-securities/internal/health"
	"lv-securities/internal/holdings"
	"lv-securities/internal/httpserver"
	"lv-securities/internal/ledger"
	"lv-securities/internal/marketdata"
	"lv-securities/internal/matching"
	"lv-securities/internal/orders"
	"lv-securities/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := newLogger(cfg.Mode)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := store.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()
	db := store.NewPostgres(pool)

	bus := audit.NewBus(logger)

	var prices marketdata.PriceSource = marketdata.NewTradeSource(db)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		prices = marketdata.NewRedisSource(rdb, prices, 5*time.Second, logger)
	}

	feeProvider := fees.NewProvider(db, cfg.FeeCacheTTL)
	gateway := ledger.NewGateway()
	projector := holdings.NewProjector(prices, cfg.HoldingsMaxRetries, logger)
	custodian := custody.NewHTTPCustodian(cfg.CustodianURL, cfg.CustodianAPIKey, cfg.CustodianTimeout)
	initiator := custody.NewInitiator(db, custodian, bus, logger)
	poller := custody.NewPoller(db, custodian, bus, cfg.SettlePollInterval, logger)
	matcher := matching.NewMatcher(db, logger)
	coordinator := execution.NewCoordinator(db, feeProvider, gateway, projector, initiator, bus, logger)
	orderSvc := orders.NewService(db, bus, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		OrderHandler:     orders.NewHandler(orderSvc),
		ExecutionHandler: execution.NewHandler(matcher, coordinator, db),
		HoldingsHandler:  holdings.NewHandler(projector, db),
		CustodyHandler:   custody.NewHandler(poller),
		HealthHandler:    health.NewHandler(pool, time.Now()),
		WSHandler:        httpserver.NewWSHandler(bus, cfg.WebSocketOrigin),
		InternalToken:    cfg.InternalToken,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go poller.Run(runCtx)
	go func() {
		ticker := time.NewTicker(cfg.ExpirySweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if n, err := orderSvc.ExpireSweep(runCtx, time.Now().UTC()); err != nil {
					logger.Error("order expiry sweep failed", zap.Error(err))
				} else if n > 0 {
					logger.Info("expired orders", zap.Int("count", n))
				}
			}
		}
	}()

	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
