package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/tumapay/sacco-wallet/cmd/routes"
	"github.com/tumapay/sacco-wallet/internal/key"
	"github.com/tumapay/sacco-wallet/internal/mpesa"
	"github.com/tumapay/sacco-wallet/internal/user"
	"github.com/tumapay/sacco-wallet/internal/wallet"
	"github.com/tumapay/sacco-wallet/pkg/config"
	"github.com/tumapay/sacco-wallet/pkg/database"
	"github.com/tumapay/sacco-wallet/pkg/events"
	"github.com/tumapay/sacco-wallet/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	db := database.Connect(cfg.DBUrl)
	database.Migrate(db, &user.User{}, &key.APIKey{}, &wallet.Transaction{}, &mpesa.Transaction{})

	redisClient := events.NewRedisClient(cfg)

	userRepo := user.NewRepository(db)
	keyRepo := key.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	mpesaRepo := mpesa.NewRepository(db, walletRepo)
	gateway := mpesa.NewClient(cfg)

	// start background settlement worker
	worker := mpesa.NewSettlementWorker(cfg, mpesaRepo, redisClient)
	worker.Start()

	r := mux.NewRouter()
	handler := routes.RegisterRoutes(r, cfg, routes.Deps{
		Queue:      redisClient,
		Gateway:    gateway,
		UserRepo:   userRepo,
		KeyRepo:    keyRepo,
		WalletRepo: walletRepo,
		MpesaRepo:  mpesaRepo,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, "env": cfg.Env})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	logger.Info("Server gracefully shut down")
}
