package bootstrap

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	httpadapter "mailsync_server/adapter/in/http"
	"mailsync_server/adapter/in/worker"
	"mailsync_server/config"
	"mailsync_server/infra/middleware"
	"mailsync_server/pkg/logger"
)

// NewAPI builds the fiber app with all routes wired, plus the background
// scheduler. The returned cleanup tears everything down in reverse order.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "mailsync-api",
	})

	deps, depsCleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json over encoding/json for serialization throughput
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 10 * 1024 * 1024,
	})

	app.Use(middleware.Recover())
	app.Use(compress.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	// Unauthenticated surface
	healthHandler := httpadapter.NewHealthHandler(deps.DB, deps.Redis, deps.MongoDB)
	healthHandler.Register(app)

	webhookHandler := httpadapter.NewWebhookHandler(deps.SyncService, deps.Redis)
	webhookHandler.Register(app)

	// Authenticated API. Sync triggers talk to the upstream provider, so
	// they get a much tighter per-user budget than plain reads.
	limiter := middleware.NewRateLimiter(600, time.Minute)
	limiter.Override("/api/v1/sync", 10, time.Minute)

	api := app.Group("/api/v1", middleware.JWTAuth(cfg.JWTSecret), limiter.Handler())

	syncHandler := httpadapter.NewSyncHandler(deps.SyncService)
	syncHandler.Register(api)

	readHandler := httpadapter.NewReadHandler(deps.SyncService, deps.BodyStore)
	readHandler.Register(api)

	// Background sweep over all connected accounts
	scheduler := worker.NewScheduler(deps.SyncService, 0)
	scheduler.Start()

	cleanup := func() {
		scheduler.Stop()
		depsCleanup()
	}

	return app, cleanup, nil
}
