// Package config provides configuration helpers for go-catcam commands.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default application configuration.
const (
	DefaultModel     = "asset:///CatModel.onnx"
	DefaultAssetsDir = "assets"
	DefaultPort      = "8080"
	DefaultLogLevel  = "info"
)

// Environment variable names.
const (
	EnvModel      = "CATCAM_MODEL"
	EnvAssetsDir  = "CATCAM_ASSETS"
	EnvEngine     = "CATCAM_ENGINE"
	EnvCamera     = "CATCAM_CAMERA"
	EnvDevice     = "CATCAM_DEVICE"
	EnvWatchDir   = "CATCAM_WATCH_DIR"
	EnvSnapshot   = "CATCAM_SNAPSHOT_URL"
	EnvORTLibrary = "ONNXRUNTIME_LIB"
	EnvPort       = "PORT"
	EnvLogLevel   = "LOG_LEVEL"

	EnvThreads            = "CATCAM_THREADS"
	EnvMode               = "CATCAM_MODE"
	EnvIdleSleep          = "CATCAM_IDLE_SLEEP"
	EnvAutoStart          = "CATCAM_AUTOSTART"
	EnvCaptureBackoff     = "CATCAM_CAPTURE_BACKOFF"
	EnvMaxCaptureFailures = "CATCAM_MAX_CAPTURE_FAILURES"
)

// LoadDotEnv loads variables from the given .env files (".env" if none).
// A missing file is not an error; variables already set are never overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// String returns the env var value or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int, or def when unset or invalid.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the env var parsed as a bool, or def when unset or invalid.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns the env var parsed as a time.Duration, or def.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
