package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/config"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	issueHandler *handlers.IssueHandler,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Static("/uploads", cfg.UploadPath)

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	api.Get("/auth/me", middleware.JWTProtected(cfg), authHandler.Me)

	Issues(api, cfg, issueHandler)
}

// Issues registers the issue routes on r. The metrics route is registered
// before /:id so it is not captured as an id.
func Issues(r fiber.Router, cfg *config.Config, h *handlers.IssueHandler) {
	protect := middleware.JWTProtected(cfg)

	issues := r.Group("/issues")
	issues.Get("/", h.List)
	issues.Post("/", protect, h.Create)
	issues.Get("/metrics/all", protect, middleware.RequireRoles(models.RoleNGO, models.RoleAdmin), h.Metrics)
	issues.Get("/:id", h.Get)
	issues.Put("/:id", protect, middleware.RequireRoles(models.RoleCitizen, models.RoleNGO, models.RoleAdmin), h.Update)
	issues.Delete("/:id", protect, middleware.RequireRoles(models.RoleCitizen, models.RoleAdmin), h.Delete)
	issues.Put("/:id/photo", protect, h.UploadPhoto)
	issues.Put("/:id/upvote", protect, h.Upvote)
}
