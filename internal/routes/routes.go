package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tontine/internal/audit"
	"github.com/congo-pay/tontine/internal/auth"
	"github.com/congo-pay/tontine/internal/config"
	"github.com/congo-pay/tontine/internal/group"
	"github.com/congo-pay/tontine/internal/identity"
	"github.com/congo-pay/tontine/internal/logging"
	"github.com/congo-pay/tontine/internal/metrics"
	"github.com/congo-pay/tontine/internal/middleware"
	"github.com/congo-pay/tontine/internal/reliability"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Setup configures middlewares and all application routes. Without a
// database the in-memory repositories are used.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.ClientInfo())
	if d.Cfg.IsDev() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(logging.Component(d.Logger, "http")))
	app.Use(d.Metrics.Middleware())

	// Health
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", d.Metrics.Handler())

	// Repositories
	var (
		userRepo  identity.Repository
		groupRepo group.Repository
		logStore  audit.Store
	)
	if d.DB != nil {
		userRepo = identity.NewPostgresRepository(d.DB)
		groupRepo = group.NewPostgresRepository(d.DB)
		logStore = audit.NewPostgresStore(d.DB)
	} else {
		userRepo = identity.NewMemoryRepository()
		groupRepo = group.NewMemoryRepository()
		logStore = audit.NewMemoryStore()
	}
	recorder := audit.NewPublisher(logStore, d.Metrics, audit.NewLoggerSink(logging.Component(d.Logger, "audit")))

	// Services and handlers
	identitySvc := identity.NewService(userRepo, recorder, logging.Component(d.Logger, "identity"), d.Cfg.IsAdminEmail)
	signer := auth.NewSigner(d.Cfg.JWTSecret, d.Cfg.RefreshSecret, d.Cfg.AccessTokenTTL, d.Cfg.RefreshTokenTTL)
	authSvc := auth.NewService(signer, identitySvc)
	reliabilitySvc := reliability.NewService(userRepo, groupRepo, recorder, logging.Component(d.Logger, "reliability"))
	groupSvc := group.NewService(groupRepo, reliabilitySvc, recorder, logging.Component(d.Logger, "group"), group.Options{
		Grace:   d.Cfg.ContributionGrace,
		Retries: d.Cfg.GroupWriteRetries,
	})

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	identityHandler := identity.NewHandler(identitySvc)
	api.Post("/users/register", identityHandler.Register)
	jwtmw := middleware.JWTAuth(authSvc)
	RegisterAuthRoutes(api, auth.NewHandler(authSvc), middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit), jwtmw)

	// Protected routes
	protected := api.Group("", jwtmw)
	RegisterIdentityRoutes(protected, identityHandler)
	RegisterGroupRoutes(protected, group.NewHandler(groupSvc, logStore), middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, logging.Component(d.Logger, "idempotency")))
	RegisterReliabilityRoutes(protected, reliability.NewHandler(reliabilitySvc))
	RegisterAuditRoutes(protected, logStore)

	return nil
}

// ErrorHandler renders errors as JSON bodies with the mapped status code.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := http.StatusInternalServerError
		message := "internal server error"
		if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
			message = fe.Message
		} else if logger != nil {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}
