package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.App.Group("/api")
	api.Get("/stats", s.statsHandler)

	s.App.Use("/ws", requireUpgrade)
	s.App.Get("/ws", websocket.New(s.websocketHandler, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}))
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"error": "Websocket upgrade required",
	})
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	status := "ok"
	health := fiber.Map{
		"game": s.platform.Health(),
	}
	if s.db != nil {
		db := s.db.Health()
		health["database"] = db
		if db["status"] != "up" {
			status = "degraded"
		}
	}
	if s.cache != nil {
		redis := s.cache.Health()
		health["cache"] = redis
		if redis["status"] != "up" {
			status = "degraded"
		}
	}
	health["status"] = status

	if status != "ok" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}
	return c.JSON(health)
}

// statsHandler dumps the live state of every game.
func (s *FiberServer) statsHandler(c *fiber.Ctx) error {
	return c.JSON(s.platform.Stats())
}
