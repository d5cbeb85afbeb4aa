package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"bib-resale/internal/auth"
	"bib-resale/internal/bib"
	bibapi "bib-resale/internal/bib/api"
	bibdb "bib-resale/internal/bib/db"
	"bib-resale/internal/config"
	"bib-resale/internal/database/migrations"
	"bib-resale/internal/expiry"
	"bib-resale/internal/kafka"
	"bib-resale/internal/logger"
	"bib-resale/internal/payments"
	"bib-resale/internal/purchase"
	purchaseapi "bib-resale/internal/purchase/api"
	"bib-resale/internal/sse"
	"bib-resale/internal/transaction/storage"
	"bib-resale/internal/users"
	usersapi "bib-resale/internal/users/api"
	usersdb "bib-resale/internal/users/db"
	"bib-resale/internal/voucher"
	"bib-resale/internal/waitlist"
	waitlistapi "bib-resale/internal/waitlist/api"
	waitlistdb "bib-resale/internal/waitlist/db"
	waitlistredis "bib-resale/internal/waitlist/redis"
)

func main() {
	_ = godotenv.Load() // Loads .env file if present

	ctx := context.Background()
	cfg := config.Load()

	appLogger := logger.NewLogger()
	defer appLogger.Close()

	// --- PostgreSQL Setup ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("❌ Failed to connect to Postgres: %v", err)
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	migrateOpts := migrations.DefaultOptions()
	if migrateOpts.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrateOpts)
		if err := runner.RunMigrations(); err != nil {
			log.Fatalf("❌ Failed to run migrations: %v", err)
		}
	}

	// --- Redis Setup ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	log.Println("🔗 Connecting to Redis...")

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}

	// --- Kafka Setup ---
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.BibListed,
			cfg.Kafka.Topics.BibSold,
			cfg.Kafka.Topics.WaitlistNotified,
			cfg.Kafka.Topics.PaymentAlerts,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Fatalf("❌ Failed to ensure Kafka topics: %v", err)
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
	} else {
		log.Println("⚠️ Kafka disabled, domain events will not be published")
	}

	// --- Transaction Store ---
	txStore, err := storage.NewPostgreSQLStoreWithDB(sqldb, appLogger)
	if err != nil {
		log.Fatalf("❌ Failed to initialize transaction store: %v", err)
	}

	// --- Payment Gateways ---
	registry := payments.NewRegistry()
	if cfg.Payments.StripeSecretKey != "" {
		stripeGW, err := payments.NewStripeGateway(cfg.Payments.StripeSecretKey, appLogger)
		if err != nil {
			log.Fatalf("❌ Failed to initialize Stripe gateway: %v", err)
		}
		registry.Register(payments.ProviderStripe, stripeGW)
	}
	if cfg.Payments.PayPalClientID != "" {
		paypalGW := payments.NewPayPalGateway(
			cfg.Payments.PayPalBaseURL,
			cfg.Payments.PayPalClientID,
			cfg.Payments.PayPalSecret,
			nil,
			appLogger,
		)
		registry.Register(payments.ProviderPayPal, paypalGW)
	}

	// --- Services ---
	log.Println("📦 Initializing Marketplace Services...")

	emitter := sse.NewListingEventEmitter()
	dedupe := waitlistredis.NewDedupe(redisClient)

	var waitlistKafka waitlist.KafkaPublisher
	var bibKafka bib.KafkaPublisher
	var alertKafka purchase.AlertPublisher
	if producer != nil {
		waitlistKafka = producer
		bibKafka = producer
		alertKafka = producer
	}

	waitlistService := waitlist.NewWaitlistService(
		&waitlistdb.DB{Bun: bunDB},
		dedupe,
		waitlistKafka,
		emitter,
		cfg.Kafka.Topics.WaitlistNotified,
		appLogger,
	)

	bibStore := &bibdb.DB{Bun: bunDB}
	bibService := bib.NewBibService(bibStore, waitlistService, bibKafka, cfg.Kafka.Topics, appLogger)

	usersStore := &usersdb.DB{Bun: bunDB}
	userService := users.NewUserService(usersStore, appLogger)

	purchaseService := purchase.NewPurchaseService(
		bibService,
		txStore,
		registry,
		alertKafka,
		cfg.Kafka.Topics.PaymentAlerts,
		cfg.Payments.FeeRate,
		cfg.Payments.Currency,
		appLogger,
	)

	bibHandler := &bibapi.Handler{BibService: bibService, Emitter: emitter}
	purchaseHandler := &purchaseapi.Handler{
		Purchases:     purchaseService,
		Bibs:          bibService,
		Users:         usersStore,
		Vouchers:      voucher.NewGenerator(cfg.Payments.VoucherSecret),
		PDF:           voucher.NewPDFGenerator(),
		WebhookSecret: cfg.Payments.StripeWebhookSecret,
	}
	waitlistHandler := &waitlistapi.Handler{Waitlist: waitlistService}
	userHandler := &usersapi.Handler{Users: userService}

	// --- Expiry Sweeper ---
	sweeper := expiry.NewSweeper(bibStore, bibService, redisClient, cfg.Expiry.SweepInterval, appLogger)
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go sweeper.Run(sweepCtx)

	// --- Setup Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Webhooks authenticate through signatures, not user tokens.
	r.Post("/api/v1/webhooks/stripe", purchaseHandler.StripeWebhook)
	r.Post("/api/v1/webhooks/users", userHandler.Sync)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))

		r.Post("/api/v1/bibs", bibHandler.CreateBib)
		r.Get("/api/v1/bibs/{bibId}", bibHandler.GetBib)
		r.Put("/api/v1/bibs/{bibId}/listing", bibHandler.RequestListing)
		r.Post("/api/v1/bibs/{bibId}/approve", bibHandler.ApproveValidation)
		r.Post("/api/v1/bibs/{bibId}/reject", bibHandler.RejectValidation)
		r.Post("/api/v1/bibs/{bibId}/withdraw", bibHandler.Withdraw)
		r.Get("/api/v1/listings/private/{token}", bibHandler.GetPrivateListing)
		r.Get("/api/v1/events/{eventId}/bibs", bibHandler.ListEventBibs)
		r.Get("/api/v1/events/{eventId}/listings/stream", bibHandler.StreamListings)

		r.Post("/api/v1/purchases", purchaseHandler.Purchase)
		r.Get("/api/v1/transactions", purchaseHandler.ListSellerTransactions)
		r.Get("/api/v1/transactions/{txId}", purchaseHandler.GetTransaction)
		r.Post("/api/v1/transactions/{txId}/refund", purchaseHandler.RefundTransaction)
		r.Get("/api/v1/transactions/{txId}/voucher", purchaseHandler.DownloadVoucher)

		r.Post("/api/v1/waitlist", waitlistHandler.Join)
	})

	// --- Start HTTP Server ---
	// No WriteTimeout: the listing stream endpoint holds its response open.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("🚀 Bib Marketplace running on %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server error: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("📦 Shutdown signal received. Cleaning up...")

	stopSweeper()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server exited gracefully")
}
