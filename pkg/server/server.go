// Package server exposes the capture loop over HTTP: start and stop
// controls, status, camera settings, Prometheus metrics and a websocket
// status feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/teslashibe/go-catcam/pkg/camera"
	"github.com/teslashibe/go-catcam/pkg/hub"
	"github.com/teslashibe/go-catcam/pkg/metrics"
	"github.com/teslashibe/go-catcam/pkg/pipeline"
)

// Controller is the part of the capture loop the server drives.
type Controller interface {
	Start() error
	Stop() error
	Reload() error
	Stats() pipeline.Stats
}

// Deps are the collaborators the server exposes.
type Deps struct {
	Loop    Controller
	Cameras *camera.Manager
	Metrics *metrics.Metrics
	Status  *StatusReporter
	Hub     *hub.Hub
}

// Server is the HTTP control surface.
type Server struct {
	app    *fiber.App
	deps   Deps
	logger *slog.Logger
}

// New creates a server and registers its routes.
func New(deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Loop == nil || deps.Status == nil || deps.Hub == nil {
		return nil, errors.New("server: loop, status and hub are required")
	}
	if deps.Cameras == nil {
		deps.Cameras = camera.NewManager(camera.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		logger: logger.With("component", "server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "catcam",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Post("/start", s.handleStart)
	api.Post("/stop", s.handleStop)
	api.Post("/reload", s.handleReload)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handleListPresets)
	api.Get("/camera/backends", s.handleListBackends)

	if deps.Metrics != nil {
		if err := deps.Metrics.TrackBroadcaster(deps.Hub.Name(), deps.Hub); err != nil {
			s.logger.Warn("hub metrics not exported", "error", err)
		}
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s, nil
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown. The hub runs until ctx ends.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.deps.Hub.IsRunning() {
		go s.deps.Hub.Run(ctx)
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleStatusWS(c *websocket.Conn) {
	greeting, err := json.Marshal(Event{Type: "status", Status: s.deps.Status.Current()})
	if err != nil {
		s.logger.Error("encode greeting", "error", err)
		return
	}
	hub.NewClient(s.deps.Hub, c, hub.NewJSONMessage(greeting)).Run()
}
