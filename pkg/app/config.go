// Package app wires the catcam components into a running application.
package app

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-catcam/internal/config"
	"github.com/teslashibe/go-catcam/pkg/camera"
	"github.com/teslashibe/go-catcam/pkg/pipeline"
)

// Engine names understood by Config.Engine. The onnx and opencv engines
// register themselves when their packages are linked in.
const (
	EngineONNX   = "onnx"
	EngineOpenCV = "opencv"
	EngineMock   = "mock"
)

// Config holds all configuration for the application.
// Flag parsing is done in cmd/catcam/main.go; this struct is data only.
type Config struct {
	// Debug enables debug logging regardless of LogLevel.
	Debug    bool
	LogLevel string

	// Addr is the HTTP listen address.
	Addr string

	// Model configuration.
	Engine     string // "onnx", "opencv" or "mock"
	Model      string // artifact reference, e.g. asset:///CatModel.onnx
	AssetsDir  string
	ORTLibrary string // onnxruntime shared library
	Threads    int

	// Loop configuration.
	Mode               string // "serial" or "latest"
	IdleSleep          time.Duration
	CaptureBackoff     time.Duration
	MaxCaptureFailures int  // negative disables the limit
	AutoStart          bool // start capturing without waiting for /api/start

	// Camera configuration. Preset, when set, is applied over Camera.
	Camera camera.Config
	Preset string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	loop := pipeline.DefaultConfig()
	return Config{
		LogLevel:           config.DefaultLogLevel,
		Addr:               ":" + config.DefaultPort,
		Engine:             EngineONNX,
		Model:              config.DefaultModel,
		AssetsDir:          config.DefaultAssetsDir,
		Mode:               loop.Mode.String(),
		IdleSleep:          loop.IdleSleep,
		CaptureBackoff:     loop.CaptureBackoff,
		MaxCaptureFailures: loop.MaxCaptureFailures,
		Camera:             camera.DefaultConfig(),
	}
}

// LoadEnvConfig applies environment variables that are set.
// Call it before applying explicitly set flags.
func (c *Config) LoadEnvConfig() {
	c.Model = config.String(config.EnvModel, c.Model)
	c.AssetsDir = config.String(config.EnvAssetsDir, c.AssetsDir)
	c.Engine = config.String(config.EnvEngine, c.Engine)
	c.ORTLibrary = config.String(config.EnvORTLibrary, c.ORTLibrary)
	c.LogLevel = config.String(config.EnvLogLevel, c.LogLevel)
	if port := config.String(config.EnvPort, ""); port != "" {
		c.Addr = ":" + port
	}

	c.Threads = config.Int(config.EnvThreads, c.Threads)
	c.Mode = config.String(config.EnvMode, c.Mode)
	c.IdleSleep = config.Duration(config.EnvIdleSleep, c.IdleSleep)
	c.CaptureBackoff = config.Duration(config.EnvCaptureBackoff, c.CaptureBackoff)
	c.MaxCaptureFailures = config.Int(config.EnvMaxCaptureFailures, c.MaxCaptureFailures)
	c.AutoStart = config.Bool(config.EnvAutoStart, c.AutoStart)

	c.Camera.Backend = config.String(config.EnvCamera, c.Camera.Backend)
	c.Camera.Device = config.String(config.EnvDevice, c.Camera.Device)
	if dir := config.String(config.EnvWatchDir, ""); dir != "" {
		c.Camera.Dir = dir
		if config.String(config.EnvCamera, "") == "" {
			c.Camera.Backend = camera.BackendDir
		}
	}
	if url := config.String(config.EnvSnapshot, ""); url != "" {
		c.Camera.URL = url
		if config.String(config.EnvCamera, "") == "" {
			c.Camera.Backend = camera.BackendSnapshot
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return &ConfigError{Field: "Addr", Message: "listen address is required"}
	}
	if c.Engine == "" {
		return &ConfigError{Field: "Engine", Message: "engine is required"}
	}
	if c.Model == "" {
		return &ConfigError{Field: "Model", Message: config.EnvModel + " or -model is required"}
	}
	if c.Threads < 0 {
		return &ConfigError{Field: "Threads", Message: "threads must not be negative"}
	}
	if _, err := pipeline.ParseMode(c.Mode); err != nil {
		return &ConfigError{Field: "Mode", Message: err.Error()}
	}
	if err := c.LoopConfig().Validate(); err != nil {
		return &ConfigError{Field: "Loop", Message: err.Error()}
	}
	if c.Preset != "" && camera.GetPreset(c.Preset) == nil {
		return &ConfigError{Field: "Preset", Message: fmt.Sprintf("unknown preset %q (have %v)", c.Preset, camera.PresetNames())}
	}
	cam := c.CameraConfig()
	if errs := cam.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "Camera", Message: fmt.Sprintf("invalid camera config: %v", errs)}
	}
	return nil
}

// CameraConfig returns the camera config with the preset applied.
func (c *Config) CameraConfig() camera.Config {
	cam := c.Camera
	if c.Preset != "" {
		camera.ApplyPreset(&cam, c.Preset)
	}
	return cam
}

// LoopConfig returns the capture loop config.
func (c *Config) LoopConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Artifact = c.Model
	cfg.Mode, _ = pipeline.ParseMode(c.Mode)
	cfg.IdleSleep = c.IdleSleep
	cfg.CaptureBackoff = c.CaptureBackoff
	cfg.MaxCaptureFailures = c.MaxCaptureFailures
	return cfg
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
