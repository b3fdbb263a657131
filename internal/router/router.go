// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/campaign-links/internal/config"
	"github.com/iliyamo/campaign-links/internal/handler"
	"github.com/iliyamo/campaign-links/internal/metrics"
	"github.com/iliyamo/campaign-links/internal/middleware"
)

// Deps is everything Register needs.  Redis, DB, Metrics and Log may be
// nil; rate limiting and response caching switch off without Redis.
type Deps struct {
	Config       config.Config
	Redis        *redis.Client
	DB           handler.Pinger
	Metrics      *metrics.Metrics
	Log          *zap.Logger
	Redirect     *handler.RedirectHandler
	Links        *handler.LinkHandler
	Reservations *handler.ReservationHandler
}

// Register mounts the public and admin surfaces.
//
// Public: GET /healthz, GET /metrics, GET /:code, POST /reserve,
// GET /v1/events/:id/slots, GET /v1/slots/:id.
// Admin (JWT + role): link generator, link reports, slot admin and the
// reservation report.
func Register(e *echo.Echo, d Deps) {
	limit := middleware.RateLimit(d.Config.RateLimit, d.Redis, d.Log)
	cached := middleware.ResponseCache(d.Config.Cache, d.Redis, d.Log)

	e.GET("/healthz", handler.Health(d.DB))
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	// Short codes live at the root; static routes above take precedence.
	e.GET("/", d.Redirect.Resolve)
	e.GET("/:code", d.Redirect.Resolve)

	e.POST("/reserve", d.Reservations.Reserve, limit)
	e.GET("/v1/events/:id/slots", d.Reservations.ListSlots)
	e.GET("/v1/slots/:id", d.Reservations.GetSlot)

	admin := e.Group("/v1")
	admin.Use(middleware.RequireJWT(d.Config.Auth.JWTSecret))
	admin.Use(middleware.RequireRole(d.Config.Auth.AllowedRoles...))

	admin.POST("/links", d.Links.Create, limit)
	// Stats are live counters and stay uncached.
	admin.GET("/links/:code", d.Links.Stats)
	admin.GET("/links/:code/scans", d.Links.Scans, cached)
	admin.POST("/events/:id/slots", d.Reservations.CreateSlot)
	admin.GET("/slots/:id/reservations", d.Reservations.ListReservations, cached)
}
