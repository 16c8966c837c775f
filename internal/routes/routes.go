package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kivu-pay/kivu_pay/internal/auth"
	"github.com/kivu-pay/kivu_pay/internal/config"
	"github.com/kivu-pay/kivu_pay/internal/engine"
	"github.com/kivu-pay/kivu_pay/internal/fraud"
	"github.com/kivu-pay/kivu_pay/internal/identity"
	"github.com/kivu-pay/kivu_pay/internal/ledger"
	"github.com/kivu-pay/kivu_pay/internal/middleware"
	"github.com/kivu-pay/kivu_pay/internal/notification"
	"github.com/kivu-pay/kivu_pay/internal/store"
	"github.com/kivu-pay/kivu_pay/internal/store/memstore"
	"github.com/kivu-pay/kivu_pay/internal/wallet"
)

// Deps aggregates the shared dependencies routes are wired from. DB and Cache
// may be nil in development, which selects the in-memory store and disables
// idempotency replay and login rate limiting.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Main already validates this; guard again so tests wiring Setup
	// directly fail the same way.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		atomic  store.Atomic
		wallets wallet.Store
		entries ledger.Store
		users   identity.Repository
	)
	if d.DB != nil {
		atomic = store.NewPostgres(d.DB, d.Cfg.LockWait)
		wallets = wallet.NewPostgresStore(d.DB)
		entries = ledger.NewPostgresStore(d.DB)
		users = identity.NewPostgresRepository(d.DB)
	} else {
		mem := memstore.New(d.Cfg.LockWait)
		atomic = mem
		wallets = mem.Wallets()
		entries = mem.Ledger()
		users = mem.Users()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)

	identitySvc := identity.NewService(users, wallets, atomic, identity.Config{
		Currency:             d.Cfg.DefaultCurrency,
		DailyWithdrawalLimit: d.Cfg.DefaultDailyWithdrawalLimit,
	})
	identityHandler := identity.NewHandler(identitySvc)

	authSvc := auth.NewService(d.Cfg, users)
	authHandler := auth.NewHandler(identitySvc, authSvc, wallets)

	detector := fraud.New(fraud.Config{
		MaxTransactionAmount:   d.Cfg.MaxTransactionAmount,
		MaxTransactionsPerHour: d.Cfg.MaxTransactionsPerHour,
	}, entries)

	eng := engine.New(engine.Deps{
		Atomic:   atomic,
		Wallets:  wallets,
		Ledger:   entries,
		KYC:      users,
		Fraud:    detector,
		Notifier: notifier,
		Logger:   d.Logger,
	}, engine.Config{KYCExemptThreshold: d.Cfg.KYCExemptThreshold})
	engineHandler := engine.NewHandler(eng)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes.
	RegisterIdentityRoutes(api, identityHandler)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, 5))

	// Protected routes.
	jwtmw := middleware.JWTAuth(authSvc, users)
	protected := api.Group("", jwtmw)
	protected.Post("/auth/logout", authHandler.Logout)
	RegisterProfileRoutes(protected, identityHandler)

	// Money movement gets idempotency replay on top of auth.
	idem := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	RegisterWalletRoutes(protected, engineHandler, idem)
	RegisterTransferRoutes(protected, engineHandler, idem)

	admin := protected.Group("/admin", middleware.RequireAdmin())
	RegisterAdminRoutes(admin, engineHandler, identitySvc)

	return nil
}
