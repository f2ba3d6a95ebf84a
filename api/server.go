// Package api is the HTTP surface over the Time-Series Coordinator and the
// Derived-Quantity Engine: one *fiber.App, a recover+logging middleware chain, and one
// handler type per resource registering its own routes.
package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// ServerConfig holds the Fiber app's transport settings.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns conservative defaults for transport timeouts.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server wraps a Fiber app exposing the time-series and derivation operations.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	port   int
}

// NewServer builds the app and its middleware chain; call RegisterRoutes per handler
// afterwards.
func NewServer(cfg *ServerConfig, logger zerolog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	app := fiber.New(fiber.Config{
		AppName:               "BaseLib",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(cors.New())
	app.Use(requestLogger(logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return &Server{app: app, logger: logger.With().Str("component", "api-server").Logger(), port: cfg.Port}
}

// App exposes the underlying Fiber app so handler types can register their routes.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving HTTP on the configured port.
func (s *Server) Listen() error {
	s.logger.Info().Int("port", s.port).Msg("starting HTTP server")
	return s.app.Listen(":" + strconv.Itoa(s.port))
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
		}
		logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}

func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
		return err
	}
}
