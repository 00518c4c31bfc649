package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/fxledger/internal/auth"
	"github.com/congo-pay/fxledger/internal/config"
	"github.com/congo-pay/fxledger/internal/identity"
	"github.com/congo-pay/fxledger/internal/jobs"
	"github.com/congo-pay/fxledger/internal/ledger"
	"github.com/congo-pay/fxledger/internal/middleware"
	"github.com/congo-pay/fxledger/internal/notification"
	"github.com/congo-pay/fxledger/internal/payments"
	"github.com/congo-pay/fxledger/internal/rates"
	"github.com/congo-pay/fxledger/internal/reports"
	"github.com/congo-pay/fxledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Background holds the periodic work wired alongside the routes.
type Background struct {
	Jobs    []jobs.Job
	Reports *reports.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (Background, error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return Background{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Background{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Metrics())

	// Storage backends
	var (
		identityRepo identity.Repository
		store        ledger.Store
		txSource     reports.TransactionSource
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		pgStore := ledger.NewPostgresStore(d.DB)
		store, txSource = pgStore, pgStore
	} else {
		identityRepo = identity.NewMemoryRepository()
		memStore := ledger.NewInMemory(identity.Holders(identityRepo))
		store, txSource = memStore, memStore
	}

	var (
		rateCache   rates.Cache
		reportStore reports.Store
	)
	if d.Cache != nil {
		rateCache = rates.NewRedisCache(d.Cache)
		reportStore = reports.NewRedisStore(d.Cache)
	} else {
		rateCache = rates.NewMemoryCache()
		reportStore = reports.NewMemoryStore()
	}

	// Services and handlers
	walletSvc := wallet.NewService(store)
	identitySvc := identity.NewService(identityRepo, walletSvc, d.Logger)
	if err := bootstrapAdmin(identitySvc, d.Cfg, d.Logger); err != nil {
		return Background{}, err
	}

	issuer := auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.RefreshSecret, d.Cfg.AccessTokenTTL, d.Cfg.RefreshTokenTTL)
	authSvc := auth.NewService(issuer, identitySvc)

	updater := rates.NewUpdater(rateProvider(d.Cfg), rateCache, d.Cfg.RatesTTL, d.Logger)
	lookup := rates.NewLookup(rateCache, updater)

	engine := ledger.NewEngine(store, lookup)
	paymentSvc := payments.NewService(engine, d.Notifier, d.Logger)
	reportSvc := reports.NewService(identityRepo, txSource, reportStore, d.Cfg.ReportTTL, d.Logger)

	identityHandler := identity.NewHandler(identitySvc, walletSvc)
	authHandler := auth.NewHandler(authSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	paymentHandler := payments.NewHandler(paymentSvc)
	rateHandler := rates.NewHandler(lookup)
	reportHandler := reports.NewHandler(reportSvc)

	// Health and metrics
	RegisterHealthRoutes(app, d)

	// API routes
	api := app.Group("/api/v1")
	api.Use(middleware.Audit(d.Logger))
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	loginLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginMaxPerMinute, d.Logger)
	RegisterPublicRoutes(api, identityHandler, authHandler, rateHandler, loginLimiter)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authSvc))
	admin := middleware.RequireRole(identity.RoleAdmin)
	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(middleware.IdempotencyConfig{
			Cache:  d.Cache,
			TTL:    d.Cfg.IdempotencyTTL,
			Logger: d.Logger,
		})
	}

	RegisterAccountRoutes(protected, admin, identityHandler, walletHandler)
	RegisterPaymentRoutes(protected, admin, idem, paymentHandler)
	RegisterReportRoutes(protected, admin, reportHandler)

	return Background{
		Jobs: []jobs.Job{
			{Name: "rates.refresh", Interval: d.Cfg.RatesRefreshInterval, RunOnStart: true, Run: updater.Refresh},
			{Name: "reports.weekly", Interval: d.Cfg.ReportInterval, Run: reportSvc.Generate},
		},
		Reports: reportSvc,
	}, nil
}

func rateProvider(cfg config.Config) rates.Provider {
	if cfg.RatesProvider == "coinmarketcap" {
		return rates.NewCoinMarketCapProvider(cfg.RatesAPIURL, cfg.RatesAPIKey, cfg.RatesRequestsPerSecond)
	}
	return rates.NewStaticProvider(nil)
}

func bootstrapAdmin(ids *identity.Service, cfg config.Config, logger *slog.Logger) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	admin, err := ids.EnsureAdmin(ctx, identity.Credentials{Email: cfg.AdminEmail, Password: cfg.AdminPassword})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.Info("admin account ready", slog.Int64("user_id", admin.ID), slog.String("email", admin.Email))
	return nil
}
