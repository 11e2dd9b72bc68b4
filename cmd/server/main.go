package main // Entry point package

import (
	"context"      // deadlines for migrations and shutdown
	"database/sql" // shared connection pool
	"errors"       // detect the normal server-closed error
	"log"          // Logging library
	"net/http"     // http.ErrServerClosed
	"os"           // EVENT_LOG_DIR
	"os/signal"    // graceful shutdown on SIGINT/SIGTERM
	"syscall"      // SIGTERM
	"time"         // timeouts

	"github.com/google/uuid"                        // request ids
	"github.com/joho/godotenv"                      // .env loading for local runs
	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // Echo's built-in middleware

	"github.com/iliyamo/credit-cpr/internal/config"     // Internal config loader
	"github.com/iliyamo/credit-cpr/internal/database"   // connection and migrations
	"github.com/iliyamo/credit-cpr/internal/handler"    // HTTP handlers
	"github.com/iliyamo/credit-cpr/internal/identity"   // Google sign-in
	"github.com/iliyamo/credit-cpr/internal/metrics"    // Prometheus collectors
	"github.com/iliyamo/credit-cpr/internal/middleware" // session, rate limit, cache
	"github.com/iliyamo/credit-cpr/internal/payment"    // Stripe bridge
	"github.com/iliyamo/credit-cpr/internal/queue"      // RabbitMQ events
	"github.com/iliyamo/credit-cpr/internal/repository" // refresh tokens
	"github.com/iliyamo/credit-cpr/internal/router"     // Internal router setup
	"github.com/iliyamo/credit-cpr/internal/service"    // domain services
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load() // Load environment config

	db, dialect, err := openDB(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := database.Migrate(ctx, db, dialect); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	cancel()

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	m := metrics.New()

	brokerURL := queue.BrokerURL()
	events := queue.NewPublisher(brokerURL)
	go queue.NewConsumer(brokerURL, envOr("EVENT_LOG_DIR", "logs")).Run()

	stripe := payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	var webhooks payment.WebhookParser
	if cfg.Stripe.WebhookSecret != "" {
		webhooks = stripe
	} else {
		log.Printf("STRIPE_WEBHOOK_SECRET not set; webhook route disabled")
	}
	google := identity.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	states := identity.NewStateStore(rdb, "cpr:oauth")
	prices := payment.PriceTable{Basic: cfg.Stripe.PriceBasic, Pro: cfg.Stripe.PricePro}

	ledger := service.NewLedger(db, events, m, cfg.AdminEmails)
	creds := service.NewCredentials(ledger.Users, m)
	reset := service.NewReset(db, events, m, cfg.PublicURL)
	discounts := service.NewDiscounts(db, ledger, m)
	billing := service.NewBilling(db, ledger, stripe, prices, cfg.PublicURL, m)
	oauth := service.NewOAuthLogin(google, states, creds, m)

	auth := handler.NewAuthHandler(cfg, creds, ledger, repository.NewTokenRepo(db))
	h := router.Handlers{
		Auth:     auth,
		Password: handler.NewPasswordHandler(reset),
		OAuth:    handler.NewOAuthHandler(oauth, auth),
		Account:  handler.NewAccountHandler(ledger),
		Discount: handler.NewDiscountHandler(discounts),
		Billing:  handler.NewBillingHandler(billing, webhooks),
		Admin:    handler.NewAdminHandler(discounts, creds, ledger),
		Plans:    handler.NewPlansHandler(prices, cfg.Stripe.PublishableKey),
	}
	g := router.Guards{
		Session:   middleware.Auth(cfg.JWTSecret, ledger),
		AuthLimit: middleware.NewTokenBucket(config.LoadAuthRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Printf("%s %s %d %s id=%s", v.Method, v.URI, v.Status, v.Latency, v.RequestID)
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(m.Middleware())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e, db, m.Handler()) // health and metrics
	router.RegisterAPI(e, h, g)               // Register application routes

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) { // Start HTTP server
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

// openDB connects using the configured driver.
func openDB(cfg config.Config) (*sql.DB, database.Dialect, error) {
	if cfg.DBDriver == "sqlite" {
		db, err := database.OpenSQLite(cfg.SQLitePath)
		return db, database.SQLite, err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	return db, database.MySQL, err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
