// Package http exposes resources, container records and rendered content over Fiber.
package http

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/melih/lighthouse-classroom/internal/core/services"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/melih/lighthouse-classroom/internal/metrics"
)

// Pinger reports whether the container engine is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Resources   *services.ResourceService
	Coordinator *services.Coordinator
	Registry    *services.Registry
	Engine      Pinger
	ProxyHost   string
	BodyLimit   int
}

// NewApp builds the Fiber application with every route registered.
func NewApp(deps Deps) *fiber.App {
	cfg := fiber.Config{
		DisableStartupMessage: true,
	}
	if deps.BodyLimit > 0 {
		cfg.BodyLimit = deps.BodyLimit
	}
	app := fiber.New(cfg)
	app.Use(requestMetrics)

	resourceHandler := NewResourceHandler(deps.Resources, deps.Coordinator, deps.Registry)
	renderHandler := NewRenderHandler(deps.Coordinator, deps.ProxyHost)

	app.Get("/healthz", healthz(deps.Engine))
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Routes for resources
	resources := v1.Group("/resources")
	resources.Get("/", resourceHandler.ListResources)
	resources.Post("/", resourceHandler.CreateResource)
	resources.Post("/import", resourceHandler.ImportResource)
	resources.Get("/:id", resourceHandler.GetResource)
	resources.Put("/:id/content", resourceHandler.UpdateContent)
	resources.Delete("/:id", resourceHandler.DeleteResource)
	resources.Post("/:id/publish", resourceHandler.Publish)

	// Routes for container records
	records := v1.Group("/records")
	records.Get("/", resourceHandler.ListRecords)
	records.Get("/:id/logs", resourceHandler.RecordLogs)

	app.All("/render/:id/*", renderHandler.Render)

	return app
}

func healthz(engine Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if engine != nil {
			if err := engine.Ping(c.Context()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unavailable",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

func requestMetrics(c *fiber.Ctx) error {
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}
	metrics.APIRequestsTotal.WithLabelValues(c.Method(), strconv.Itoa(status)).Inc()
	log.Logger.Debug().
		Str("component", "http").
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Msg("request")
	return err
}
