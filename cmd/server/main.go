package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wagerbook/internal/config"
	"wagerbook/internal/db"
	"wagerbook/internal/handlers"
	"wagerbook/internal/scheduler"
	"wagerbook/internal/secure"
	"wagerbook/internal/services"
	"wagerbook/internal/store"
	"wagerbook/internal/websocket"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.AppEnv == "development" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	box, err := secure.NewBox(cfg.DetailSecret)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize payment detail cipher")
	}

	users := store.NewUserStore(database)
	wallets := store.NewWalletStore(database)
	ledger := store.NewLedgerStore(database)
	markets := store.NewMarketStore(database)
	bets := store.NewBetStore(database)
	cashouts := store.NewCashoutStore(database)
	actions := store.NewActionStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	walletService := services.NewWalletService(txRunner, wallets, ledger, hub, logger)
	betService := services.NewBetService(txRunner, markets, bets, wallets, walletService, hub, logger)
	marketService := services.NewMarketService(txRunner, markets, audit, logger)
	settlementService := services.NewSettlementService(txRunner, markets, bets, wallets, walletService, hub, logger)
	cashoutService := services.NewCashoutService(txRunner, cashouts, wallets, walletService, box, hub, logger, cfg.ReviewThreshold)
	adminService := services.NewAdminService(txRunner, actions, wallets, bets, markets, walletService, audit, hub, logger)
	poolService := services.NewPoolService(wallets, ledger, logger, cfg.PendingEntryAlert)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.SchedulerEnabled {
		sched := scheduler.New(settlementService, poolService, logger, cfg.SettleInterval, cfg.MaxMarketsPerRun, cfg.MaxBetsPerRun)
		go sched.Run(ctx)
	}

	handler := handlers.New(database, txRunner, cfg, users, admin, audit, walletService, betService, marketService, cashoutService, adminService, settlementService, poolService, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("wagerbook API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("shutdown error")
	}
}
