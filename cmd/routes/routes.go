package routes

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/tumapay/sacco-wallet/internal/auth"
	"github.com/tumapay/sacco-wallet/internal/key"
	"github.com/tumapay/sacco-wallet/internal/middleware"
	"github.com/tumapay/sacco-wallet/internal/mpesa"
	"github.com/tumapay/sacco-wallet/internal/user"
	"github.com/tumapay/sacco-wallet/internal/wallet"
	"github.com/tumapay/sacco-wallet/pkg/config"
	"github.com/tumapay/sacco-wallet/pkg/logger"
	"golang.org/x/time/rate"
)

type Deps struct {
	Queue      mpesa.Publisher
	Gateway    mpesa.Gateway
	UserRepo   user.Repository
	KeyRepo    key.Repository
	WalletRepo wallet.Repository
	MpesaRepo  mpesa.Repository
}

func RegisterRoutes(r *mux.Router, cfg config.Config, deps Deps) http.Handler {
	authHandler := auth.NewHandler(cfg, deps.UserRepo)
	keyHandler := key.NewHandler(cfg, deps.KeyRepo)
	walletHandler := wallet.NewHandler(cfg, deps.WalletRepo, deps.UserRepo)
	mpesaHandler := mpesa.NewHandler(cfg, deps.MpesaRepo, deps.Gateway, deps.Queue, deps.UserRepo)

	r.Use(middleware.LoggingMiddleware)

	publicLimiter := middleware.NewRateLimiter(rate.Limit(5), 10)

	authR := r.PathPrefix("/api/auth").Subrouter()
	authR.Use(publicLimiter.Limit)
	authR.HandleFunc("/google", authHandler.GoogleLogin).Methods("GET")
	authR.HandleFunc("/google/callback", authHandler.GoogleCallback).Methods("GET")

	keysR := r.PathPrefix("/api/keys").Subrouter()
	keysR.Use(auth.JWTMiddleware(cfg, deps.UserRepo))
	keysR.HandleFunc("", keyHandler.ListAPIKeys).Methods("GET")
	keysR.HandleFunc("/create", keyHandler.CreateAPIKey).Methods("POST")
	keysR.HandleFunc("/rollover", keyHandler.RolloverAPIKey).Methods("POST")
	keysR.HandleFunc("/revoke", keyHandler.RevokeAPIKey).Methods("POST")

	walletR := r.PathPrefix("/api/wallet").Subrouter()
	walletR.Use(auth.UnifiedAuthMiddleware(cfg, deps.UserRepo, deps.KeyRepo))
	walletR.Handle("/balance", auth.RequirePermission(string(key.PermissionRead))(http.HandlerFunc(walletHandler.GetBalance))).Methods("GET")
	walletR.Handle("/transactions", auth.RequirePermission(string(key.PermissionRead))(http.HandlerFunc(walletHandler.GetTransactions))).Methods("GET")
	walletR.HandleFunc("/pin", walletHandler.SetPin).Methods("POST")
	walletR.HandleFunc("/phone", walletHandler.SetPhone).Methods("POST")

	paymentsR := r.PathPrefix("/api/payments").Subrouter()
	paymentsR.Use(auth.UnifiedAuthMiddleware(cfg, deps.UserRepo, deps.KeyRepo))
	paymentsR.Handle("", auth.RequirePermission(string(key.PermissionPayment))(http.HandlerFunc(walletHandler.MakePayment))).Methods("POST")

	mpesaR := r.PathPrefix("/api/mpesa").Subrouter()

	// gateway webhook: unauthenticated, shape-checked, rate limited
	callbackR := mpesaR.PathPrefix("/callback").Subrouter()
	callbackR.Use(publicLimiter.Limit)
	callbackR.HandleFunc("", mpesaHandler.Callback).Methods("POST")

	reconcileR := mpesaR.PathPrefix("/manual-transaction").Subrouter()
	reconcileR.Use(auth.APIKeyMiddleware(deps.KeyRepo, deps.UserRepo))
	reconcileR.Handle("", auth.RequirePermission(string(key.PermissionReconcile))(http.HandlerFunc(mpesaHandler.ManualTransaction))).Methods("POST")

	topupR := mpesaR.PathPrefix("").Subrouter()
	topupR.Use(auth.UnifiedAuthMiddleware(cfg, deps.UserRepo, deps.KeyRepo))
	topupR.Handle("/stk", auth.RequirePermission(string(key.PermissionTopup))(http.HandlerFunc(mpesaHandler.StkPush))).Methods("POST")
	topupR.Handle("/stk/{checkoutRequestID}/status", auth.RequirePermission(string(key.PermissionRead))(http.HandlerFunc(mpesaHandler.StkStatus))).Methods("GET")
	topupR.Handle("/qr", auth.RequirePermission(string(key.PermissionTopup))(http.HandlerFunc(mpesaHandler.GenerateQR))).Methods("POST")
	topupR.Handle("/qr/{reference}/status", auth.RequirePermission(string(key.PermissionRead))(http.HandlerFunc(mpesaHandler.QRStatus))).Methods("GET")

	if cfg.Env != "production" {

		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.Fields{"error": err.Error()})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			baseURL := "/"
			modifiedContent := strings.Replace(string(content), "{{BASE_URL}}", baseURL, -1)
			modifiedContent = strings.Replace(modifiedContent, "{{MIN_TOPUP_AMOUNT}}", fmt.Sprintf("%d", cfg.MinTopupAmount), -1)

			w.Header().Set("Content-Type", "application/yaml")
			w.Write([]byte(modifiedContent))
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "x-api-key"}),
	)

	return corsObj(r)
}
