package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/cache"
	"skinbet/internal/database"
	"skinbet/internal/game"
)

// Options wires the server to the running platform. DB and Cache are optional
// and only reported on /health.
type Options struct {
	Platform *game.Platform
	DB       database.Service
	Cache    cache.Service
	// per-connection outbound queue, defaults to DefaultSendBuffer
	SendBuffer int
}

type FiberServer struct {
	*fiber.App

	platform   *game.Platform
	db         database.Service
	cache      cache.Service
	sendBuffer int
}

func New(opts Options) *FiberServer {
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:          "skinbet",
			AppName:               "skinbet",
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
			IdleTimeout:           120 * time.Second,
			DisableStartupMessage: true,
		}),

		platform:   opts.Platform,
		db:         opts.DB,
		cache:      opts.Cache,
		sendBuffer: sendBuffer,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/metrics"
		},
	}))

	return server
}

// Shutdown stops accepting connections and waits for open ones up to timeout.
func (s *FiberServer) Shutdown(timeout time.Duration) error {
	log.Info("[SERVER] Shutting down...")
	return s.App.ShutdownWithTimeout(timeout)
}

// Close releases the optional backends. Call it once nothing uses them anymore.
func (s *FiberServer) Close() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			log.WithError(err).Warn("[SERVER] Error closing redis")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.WithError(err).Warn("[SERVER] Error closing database")
		}
	}
}
