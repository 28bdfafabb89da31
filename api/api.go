package api

import (
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/sway/api/mcp"
	"github.com/papercomputeco/sway/pkg/personalize"
)

// Server is the API server for the personalization engine.
type Server struct {
	config       Config
	personalizer *personalize.Personalizer
	logger       *slog.Logger
	app          *fiber.App
}

// NewServer creates a new API server.
// The personalizer is injected to allow sharing with other components.
func NewServer(config Config, p *personalize.Personalizer, logger *slog.Logger) (*Server, error) {
	// Params and bodies outlive the handler as store keys and published
	// events, so fiber must not hand out views into its reused buffers.
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})

	s := &Server{
		config:       config,
		personalizer: p,
		logger:       logger,
		app:          app,
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Personalizer: p,
		Noop:         config.DisableMCP,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	app.Use(s.metricsMiddleware)

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/blueprints", s.handleListBlueprints)
	app.Get("/blueprints/:name", s.handleGetBlueprint)
	app.Post("/blueprints/validate", s.handleValidateBlueprint)
	app.Post("/blueprints/step", s.handleStep)

	app.Post("/sessions", s.handleCreateSession)
	app.Get("/sessions/:id", s.handleGetSession)
	app.Post("/sessions/:id/signals", s.handleSignal)
	app.Post("/sessions/:id/batch", s.handleBatch)
	app.Get("/sessions/:id/embeddings", s.handleEmbeddings)

	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
