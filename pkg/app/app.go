package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-catcam/pkg/camera"
	"github.com/teslashibe/go-catcam/pkg/classify"
	"github.com/teslashibe/go-catcam/pkg/hub"
	"github.com/teslashibe/go-catcam/pkg/metrics"
	"github.com/teslashibe/go-catcam/pkg/pipeline"
	"github.com/teslashibe/go-catcam/pkg/server"
)

// shutdownTimeout bounds how long Shutdown waits for HTTP requests.
const shutdownTimeout = 5 * time.Second

// App is the catcam application.
type App struct {
	config Config
	logger *slog.Logger

	metrics  *metrics.Metrics
	engine   classify.Engine
	cameras  *camera.Manager
	hub      *hub.Hub
	status   *server.StatusReporter
	reporter *pipeline.AsyncReporter
	loop     *pipeline.Loop
	server   *server.Server
}

// New creates an application with the given configuration.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{config: cfg, logger: logger}, nil
}

// Init builds the engine, frame source, loop and HTTP server.
// Call this after New() and before Run().
func (a *App) Init() error {
	a.metrics = metrics.New()

	engine, err := classify.NewEngine(a.config.Engine, classify.Config{
		AssetsDir:   a.config.AssetsDir,
		LibraryPath: a.config.ORTLibrary,
		Threads:     a.config.Threads,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	a.engine = engine

	camCfg := a.config.CameraConfig()
	src, err := camera.NewSource(camCfg, a.logger)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	a.cameras = camera.NewManager(camCfg)

	a.hub = hub.New("status", a.logger)
	a.status = server.NewStatusReporter(a.hub, a.logger)
	a.reporter = pipeline.NewAsyncReporter(pipeline.MultiReporter{
		a.status,
		pipeline.LogReporter{Logger: a.logger.With("component", "status")},
	}, pipeline.DefaultQueueSize)
	a.reporter.OnDrop = func(pipeline.Update) { a.metrics.StatusDropped.Add(1) }

	loop, err := pipeline.New(a.config.LoopConfig(), engine, src, a.reporter,
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(a.metrics),
	)
	if err != nil {
		src.Close()
		return fmt.Errorf("pipeline: %w", err)
	}
	a.loop = loop
	a.cameras.OnConfigChange = a.applyCamera

	srv, err := server.New(server.Deps{
		Loop:    loop,
		Cameras: a.cameras,
		Metrics: a.metrics,
		Status:  a.status,
		Hub:     a.hub,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	a.server = srv

	a.logger.Info("initialized",
		"engine", a.config.Engine,
		"model", a.config.Model,
		"camera", camCfg.Backend,
		"mode", a.config.Mode,
	)
	return nil
}

// applyCamera rebuilds the frame source after a camera config change and
// resumes capture if the loop was active.
func (a *App) applyCamera(cfg camera.Config) error {
	src, err := camera.NewSource(cfg, a.logger)
	if err != nil {
		return err
	}

	resume := !a.loop.CanStart()
	if err := a.loop.Stop(); err != nil {
		src.Close()
		return err
	}
	if err := a.loop.SetSource(src); err != nil {
		src.Close()
		return err
	}
	a.logger.Info("camera reconfigured", "backend", cfg.Backend, "width", cfg.Width, "height", cfg.Height, "resume", resume)
	if resume {
		return a.loop.Start()
	}
	return nil
}

// Run serves HTTP and, with AutoStart, starts capturing.
// Blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.loop == nil {
		return errors.New("app: Init has not been called")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Listen(ctx, a.config.Addr)
	}()

	if a.config.AutoStart {
		if err := a.loop.Start(); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// Loop returns the capture loop.
func (a *App) Loop() *pipeline.Loop {
	return a.loop
}

// Status returns the display status reporter.
func (a *App) Status() *server.StatusReporter {
	return a.status
}

// Cameras returns the camera config manager.
func (a *App) Cameras() *camera.Manager {
	return a.cameras
}

// Shutdown stops the server and the loop and releases the model and camera.
func (a *App) Shutdown() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		cancel()
	}
	if a.loop != nil {
		if err := a.loop.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pipeline: %w", err))
		}
	}
	if a.reporter != nil {
		a.reporter.Close()
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
