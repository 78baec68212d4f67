// catcam - live camera classifier
// Captures frames, classifies each with an ONNX model and serves the top
// label over HTTP and websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-catcam/internal/config"
	"github.com/teslashibe/go-catcam/internal/log"
	"github.com/teslashibe/go-catcam/pkg/app"
	"github.com/teslashibe/go-catcam/pkg/camera"
	"github.com/teslashibe/go-catcam/pkg/classify"

	_ "github.com/teslashibe/go-catcam/pkg/camera/opencv"   // Register the webcam backend
	_ "github.com/teslashibe/go-catcam/pkg/classify/onnx"   // Register the onnxruntime engine
	_ "github.com/teslashibe/go-catcam/pkg/classify/opencv" // Register the OpenCV DNN engine
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ .env: %v\n", err)
		os.Exit(1)
	}

	cfg := parseFlags()
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)
	logger := log.L()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(2)
	}
	if err := a.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := a.Run(ctx)
	if err := a.Shutdown(); err != nil {
		logger.Error("shutdown", "error", err)
	}
	if runErr != nil {
		logger.Error("runtime error", "error", runErr)
		os.Exit(1)
	}
}

// parseFlags builds the configuration: defaults, then environment, then
// flags given on the command line.
func parseFlags() app.Config {
	cfg := app.DefaultConfig()
	cfg.LoadEnvConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	addr := flag.String("addr", cfg.Addr, "HTTP listen address (overrides PORT)")
	engine := flag.String("engine", cfg.Engine, fmt.Sprintf("Inference engine %v", classify.Engines()))
	model := flag.String("model", cfg.Model, "Model artifact: path, file:// or asset:/// reference")
	assets := flag.String("assets", cfg.AssetsDir, "Directory asset:/// references resolve against")
	ortLib := flag.String("ort-lib", cfg.ORTLibrary, "onnxruntime shared library path")
	threads := flag.Int("threads", cfg.Threads, "Inference threads (0 = engine default)")
	mode := flag.String("mode", cfg.Mode, "Dispatch mode: serial or latest")
	idleSleep := flag.Duration("idle-sleep", cfg.IdleSleep, "Sleep after an absent frame")
	backoff := flag.Duration("capture-backoff", cfg.CaptureBackoff, "Sleep after a failed capture")
	maxFailures := flag.Int("max-capture-failures", cfg.MaxCaptureFailures, "Consecutive capture errors that stop the loop (negative = no limit)")
	autoStart := flag.Bool("start", cfg.AutoStart, "Start capturing immediately")

	backend := flag.String("camera", cfg.Camera.Backend, fmt.Sprintf("Camera backend %v", camera.Backends()))
	device := flag.String("device", cfg.Camera.Device, "Camera index, device path or stream URL (opencv)")
	dir := flag.String("watch-dir", cfg.Camera.Dir, "Directory to watch for images (dir backend)")
	url := flag.String("snapshot-url", cfg.Camera.URL, "Snapshot URL to poll (snapshot backend)")
	preset := flag.String("preset", "", fmt.Sprintf("Camera preset %v", camera.PresetNames()))
	width := flag.Int("width", cfg.Camera.Width, "Capture width")
	height := flag.Int("height", cfg.Camera.Height, "Capture height")
	fps := flag.Int("fps", cfg.Camera.Framerate, "Capture framerate")

	flag.Parse()

	cfg.Debug = *debug
	cfg.Addr, cfg.Engine, cfg.Model, cfg.AssetsDir = *addr, *engine, *model, *assets
	cfg.ORTLibrary, cfg.Threads, cfg.Mode, cfg.AutoStart = *ortLib, *threads, *mode, *autoStart
	cfg.IdleSleep, cfg.CaptureBackoff, cfg.MaxCaptureFailures = *idleSleep, *backoff, *maxFailures
	cfg.Camera.Backend, cfg.Camera.Device, cfg.Camera.Dir, cfg.Camera.URL = *backend, *device, *dir, *url
	cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Framerate = *width, *height, *fps
	cfg.Preset = *preset

	// A directory or URL on the command line picks its backend unless
	// -camera was given too.
	if !isSet("camera") {
		switch {
		case isSet("watch-dir"):
			cfg.Camera.Backend = camera.BackendDir
		case isSet("snapshot-url"):
			cfg.Camera.Backend = camera.BackendSnapshot
		}
	}
	return cfg
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) { set = set || f.Name == name })
	return set
}
