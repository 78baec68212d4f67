// Package onnx runs classification models with ONNX Runtime.
//
// Importing the package registers the "onnx" engine with classify.NewEngine.
// The onnxruntime shared library must be installed; its path can be set
// through classify.Config.LibraryPath (ONNXRUNTIME_LIB).
package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-catcam/pkg/camera"
	"github.com/teslashibe/go-catcam/pkg/classify"
	ort "github.com/yalue/onnxruntime_go"
)

// EngineName is the registered engine name.
const EngineName = "onnx"

func init() {
	classify.RegisterEngine(EngineName, func(cfg classify.Config, logger *slog.Logger) (classify.Engine, error) {
		return New(cfg, logger), nil
	})
}

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnv initializes the process-wide runtime on first use.
func acquireEnv(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 && !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

// releaseEnv tears the runtime down once the last model is closed.
func releaseEnv() {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs == 0 && ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// Engine loads .onnx artifacts into AdvancedSessions.
type Engine struct {
	cfg    classify.Config
	logger *slog.Logger
}

// New creates an ONNX Runtime engine.
func New(cfg classify.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Name returns "onnx".
func (e *Engine) Name() string {
	return EngineName
}

// Load resolves the artifact, reads its metadata and creates a session with
// preallocated input and output tensors.
func (e *Engine) Load(ctx context.Context, artifact string) (classify.Model, error) {
	path, err := classify.ResolveArtifact(artifact, e.cfg.AssetsDir)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, classify.LoadError(artifact, err)
	}

	meta, err := classify.LoadMetadata(path)
	if err != nil {
		return nil, classify.LoadError(artifact, err)
	}

	if err := acquireEnv(e.cfg.LibraryPath); err != nil {
		return nil, classify.LoadError(artifact, err)
	}

	m, err := e.newModel(path, meta)
	if err != nil {
		releaseEnv()
		return nil, classify.LoadError(artifact, err)
	}
	m.name = classify.DisplayName(artifact)

	e.logger.Info("model loaded",
		"model", m.name,
		"path", path,
		"input", meta.InputShape,
		"output", m.meta.OutputShape,
		"classes", len(meta.Classes),
	)
	return m, nil
}

func (e *Engine) newModel(path string, meta classify.Metadata) (*Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrUnsupportedFormat, err)
	}
	meta, err = resolveIO(meta, inputs, outputs)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	var options *ort.SessionOptions
	if e.cfg.Threads > 0 {
		options, err = ort.NewSessionOptions()
		if err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, fmt.Errorf("failed to create session options: %w", err)
		}
		defer options.Destroy()
		if err := options.SetIntraOpNumThreads(e.cfg.Threads); err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Model{
		session:      session,
		meta:         meta,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Model is a loaded ONNX classifier. Sessions share preallocated tensors,
// so evaluations are serialized.
type Model struct {
	name string
	meta classify.Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	closed       bool
	lastRun      time.Duration
}

// Name returns the artifact name.
func (m *Model) Name() string {
	return m.name
}

// Labels returns the class labels from the metadata.
func (m *Model) Labels() []string {
	return m.meta.Classes
}

// Metadata returns the resolved tensor metadata.
func (m *Model) Metadata() classify.Metadata {
	return m.meta
}

// Evaluate classifies one frame.
func (m *Model) Evaluate(ctx context.Context, f *camera.Frame) (classify.Predictions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, classify.EvalError(m.name, classify.ErrModelClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, classify.EvalError(m.name, err)
	}

	if err := classify.Preprocess(f, m.meta, m.inputTensor.GetData()); err != nil {
		return nil, classify.EvalError(m.name, err)
	}

	start := time.Now()
	if err := m.session.Run(); err != nil {
		return nil, classify.EvalError(m.name, fmt.Errorf("inference failed: %w", err))
	}
	m.lastRun = time.Since(start)

	out := m.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)

	preds, err := classify.FromScores(m.meta.Classes, scores)
	if err != nil {
		return nil, classify.EvalError(m.name, err)
	}
	return preds, nil
}

// Close destroys the session and tensors.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.inputTensor != nil {
		if err := m.inputTensor.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.outputTensor != nil {
		if err := m.outputTensor.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	releaseEnv()

	if len(errs) > 0 {
		return fmt.Errorf("close %s: %v", m.name, errs)
	}
	return nil
}

// resolveIO matches the metadata tensor names against the model's own
// signature. Names the model does not have fall back to its first input and
// output, and a missing output shape is taken from the model.
func resolveIO(meta classify.Metadata, inputs, outputs []ort.InputOutputInfo) (classify.Metadata, error) {
	if len(inputs) == 0 {
		return meta, fmt.Errorf("%w: model has no inputs", classify.ErrUnsupportedFormat)
	}
	if len(outputs) == 0 {
		return meta, fmt.Errorf("%w: model has no outputs", classify.ErrUnsupportedFormat)
	}

	in := inputs[0]
	for _, i := range inputs {
		if i.Name == meta.InputName {
			in = i
		}
	}
	meta.InputName = in.Name

	out := outputs[0]
	for _, o := range outputs {
		if o.Name == meta.OutputName {
			out = o
		}
	}
	meta.OutputName = out.Name

	if len(meta.OutputShape) == 0 {
		for _, d := range out.Dimensions {
			if d < 1 {
				d = 1
			}
			meta.OutputShape = append(meta.OutputShape, d)
		}
	}
	return meta, meta.Validate()
}
