package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/consultpoint/backend/internal/config"
	"github.com/consultpoint/backend/internal/database"
	"github.com/consultpoint/backend/internal/handlers"
	"github.com/consultpoint/backend/internal/jobs"
	mW "github.com/consultpoint/backend/internal/middleware"
	"github.com/consultpoint/backend/internal/payment"
	"github.com/consultpoint/backend/internal/services"
)

// @title ConsultPoint Backend API
// @version 1.0
// @description API for the point-based consultation marketplace
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("jwt.secret_key", "change-me")
	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	billingCfg := config.LoadBillingConfig()

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	gateway := payment.NewHTTPGateway(billingCfg.GatewayURL, billingCfg.GatewayTimeout)

	ledgerService := services.NewPointLedgerService(db)
	purchaseService := services.NewPurchaseService(db, redisClient, ledgerService, gateway)
	consultationService := services.NewConsultationService(db, ledgerService, billingCfg)
	reconcileService := services.NewReconcileService(db, billingCfg.DriftTolerance)
	settlementService := services.NewSettlementService(db, billingCfg.UnitSeconds)
	authService := services.NewAuthService(db, redisClient)
	qrService := services.NewQRService(db, redisClient)

	walletHandler := handlers.NewWalletHandler(ledgerService, purchaseService)
	consultationHandler := handlers.NewConsultationHandler(consultationService)
	settlementHandler := handlers.NewSettlementHandler(settlementService, billingCfg)
	reconcileHandler := handlers.NewReconcileHandler(reconcileService)
	qrHandler := handlers.NewQRHandler(qrService, ledgerService)

	// Background jobs: monthly settlement, nightly reconciliation
	scheduler := jobs.NewScheduler(settlementService, reconcileService, billingCfg)
	scheduler.Start()
	defer scheduler.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Static file server for consultant avatars
	r.Handle("/static/avatars/*", http.StripPrefix("/static/avatars/",
		mW.StaticFileServer("./static/avatars")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			// Wallet endpoints
			r.Get("/wallet/balance", walletHandler.GetBalance)
			r.Post("/wallet/purchase", walletHandler.Purchase)
			r.Post("/wallet/purchases/{ref}/cancel", walletHandler.CancelPurchase)
			r.Post("/wallet/transfer", walletHandler.Transfer)
			r.Get("/wallet/entries", walletHandler.ListEntries)

			// Consultation endpoints
			r.Post("/consultations/start", consultationHandler.StartConsultation)
			r.Post("/consultations/{sessionId}/end", consultationHandler.EndConsultation)
			r.Get("/consultations/{sessionId}", consultationHandler.GetConsultation)
			r.Put("/consultants/fee", consultationHandler.UpdateFee)

			// QR endpoints
			r.Post("/qr/generate", qrHandler.GenerateQR)
			r.Post("/qr/process", qrHandler.ProcessQR)

			// Settlement endpoints
			r.Get("/settlements/{month}", settlementHandler.GetSettlement)

			// Admin endpoints
			r.Post("/admin/reconcile/audit", reconcileHandler.AuditBalances)
			r.Post("/admin/reconcile/repair", reconcileHandler.RepairBalances)
			r.Post("/admin/settlements/{month}", settlementHandler.ComputeSettlement)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
