// Package classify provides the image classification contract used by the
// capture loop: engines load model artifacts into models, and models turn a
// single frame into a prediction set.
//
// Engine backends that need cgo live in sub-packages and register
// themselves on import:
//
//	import _ "github.com/teslashibe/go-catcam/pkg/classify/onnx"
//
//	engine, err := classify.NewEngine("onnx", classify.DefaultConfig(), logger)
//	model, err := engine.Load(ctx, "asset:///CatModel.onnx")
//	preds, err := model.Evaluate(ctx, frame)
//	top, _ := preds.Top()
//	fmt.Println(classify.FormatPrediction(top))
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/teslashibe/go-catcam/pkg/camera"
)

// Engine loads model artifacts.
type Engine interface {
	// Name returns the engine name (e.g., "onnx", "opencv", "mock").
	Name() string

	// Load deserializes the artifact (path or URI). Failures are
	// *ModelLoadError. Each call creates a new, independent model.
	Load(ctx context.Context, artifact string) (Model, error)
}

// Model is a loaded, ready-to-evaluate classifier.
type Model interface {
	// Name returns the artifact's display name (e.g., "CatModel.onnx").
	Name() string

	// Labels returns the class labels in output order.
	Labels() []string

	// Evaluate classifies one frame. It never modifies the frame.
	// Failures are *InferenceError.
	Evaluate(ctx context.Context, f *camera.Frame) (Predictions, error)

	// Close releases the model. Evaluate fails with ErrModelClosed afterwards.
	Close() error
}

// Config holds engine settings shared by all backends.
type Config struct {
	// AssetsDir is where asset:/// references resolve.
	AssetsDir string

	// LibraryPath is the onnxruntime shared library (onnx engine only).
	// Empty uses the platform default.
	LibraryPath string

	// Threads limits intra-op threads. 0 lets the engine decide.
	Threads int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		AssetsDir: "assets",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("classify: threads must not be negative")
	}
	return nil
}

// EngineFactory builds an engine.
type EngineFactory func(cfg Config, logger *slog.Logger) (Engine, error)

var (
	enginesMu sync.RWMutex
	engines   = map[string]EngineFactory{}
)

// RegisterEngine makes an engine available to NewEngine.
func RegisterEngine(name string, f EngineFactory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[name] = f
}

// Engines returns the registered engine names, sorted.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewEngine creates a registered engine.
func NewEngine(name string, cfg Config, logger *slog.Logger) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	enginesMu.RLock()
	factory, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (registered: %v)", ErrUnknownEngine, name, Engines())
	}
	return factory(cfg, logger.With("component", "classify", "engine", name))
}
