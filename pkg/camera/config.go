// Package camera provides the frame source contract, runtime-configurable
// capture settings and the pure-Go capture backends.
package camera

import (
	"fmt"
	"time"
)

// Backend names. Device backends register themselves from sub-packages.
const (
	BackendOpenCV   = "opencv"
	BackendDir      = "dir"
	BackendSnapshot = "snapshot"
	BackendMock     = "mock"
)

// Config holds all capture configuration parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// Backend selects the frame source implementation.
	Backend string `json:"backend"`

	// Device is a camera index ("0"), device path or stream URL (opencv).
	Device string `json:"device"`

	// Dir is the directory watched for new images (dir).
	Dir string `json:"dir"`

	// URL is polled for JPEG/PNG snapshots (snapshot).
	URL string `json:"url"`

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS

	// StartTimeout bounds how long StartPreview waits for the first frame.
	StartTimeout time.Duration `json:"start_timeout"`

	// StallTimeout is how long the device may go without a new frame before
	// CaptureFrame fails. 0 disables stall detection.
	StallTimeout time.Duration `json:"stall_timeout"`
}

// Capture limits.
const (
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the default webcam configuration (640x480 at 30 FPS).
func DefaultConfig() Config {
	return Config{
		Backend:      BackendOpenCV,
		Device:       "0",
		Width:        640,
		Height:       480,
		Framerate:    30,
		StartTimeout: 5 * time.Second,
		StallTimeout: 2 * time.Second,
	}
}

// FrameInterval returns the nominal time between frames.
func (c *Config) FrameInterval() time.Duration {
	if c.Framerate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Framerate)
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Backend {
	case BackendOpenCV:
		if c.Device == "" {
			errors = append(errors, "device is required for the opencv backend")
		}
	case BackendDir:
		if c.Dir == "" {
			errors = append(errors, "dir is required for the dir backend")
		}
	case BackendSnapshot:
		if c.URL == "" {
			errors = append(errors, "url is required for the snapshot backend")
		}
	case BackendMock:
	default:
		errors = append(errors, fmt.Sprintf("backend must be one of %s, %s, %s, %s",
			BackendOpenCV, BackendDir, BackendSnapshot, BackendMock))
	}

	// Resolution
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}

	if c.StartTimeout <= 0 {
		errors = append(errors, "start_timeout must be positive")
	}
	if c.StallTimeout < 0 {
		errors = append(errors, "stall_timeout must not be negative")
	}

	return errors
}

// Capabilities returns the capture limits and known backends.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"backends":      Backends(),
		"presets":       PresetNames(),
	}
}
