// Package opencv runs classification models with the OpenCV DNN module.
//
// Importing the package registers the "opencv" engine with classify.NewEngine.
// It needs no runtime besides OpenCV itself, which the camera backend
// already links.
package opencv

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-catcam/pkg/camera"
	"github.com/teslashibe/go-catcam/pkg/classify"
	"gocv.io/x/gocv"
)

// EngineName is the registered engine name.
const EngineName = "opencv"

func init() {
	classify.RegisterEngine(EngineName, func(cfg classify.Config, logger *slog.Logger) (classify.Engine, error) {
		return New(cfg, logger), nil
	})
}

// Engine loads ONNX models through gocv.ReadNetFromONNX.
type Engine struct {
	cfg    classify.Config
	logger *slog.Logger
}

// New creates an OpenCV DNN engine.
func New(cfg classify.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Name returns "opencv".
func (e *Engine) Name() string {
	return EngineName
}

// Load resolves and reads the network.
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
	if meta.Layout != classify.LayoutNCHW {
		return nil, classify.LoadError(artifact, fmt.Errorf("%w: opencv engine needs %s input", classify.ErrUnsupportedFormat, classify.LayoutNCHW))
	}

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, classify.LoadError(artifact, fmt.Errorf("%w: failed to read network from %s", classify.ErrUnsupportedFormat, path))
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	m := &Model{
		name: classify.DisplayName(artifact),
		meta: meta,
		net:  net,
	}
	e.logger.Info("model loaded",
		"model", m.name,
		"path", path,
		"image_size", meta.ImageSize,
		"classes", len(meta.Classes),
	)
	return m, nil
}

// Model is a loaded OpenCV network. gocv.Net is not safe for concurrent
// Forward calls, so evaluations are serialized.
type Model struct {
	name string
	meta classify.Metadata

	mu     sync.Mutex
	net    gocv.Net
	closed bool
}

// Name returns the artifact name.
func (m *Model) Name() string {
	return m.name
}

// Labels returns the class labels from the metadata.
func (m *Model) Labels() []string {
	return m.meta.Classes
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

	img, err := frameToMat(f)
	if err != nil {
		return nil, classify.EvalError(m.name, fmt.Errorf("%w: %v", classify.ErrMalformedFrame, err))
	}
	defer img.Close()

	// blob = (pixel - mean/scale) * scale = pixel*scale - mean
	s := float64(m.meta.Scale)
	mean := gocv.NewScalar(
		float64(m.meta.Mean[0])/s,
		float64(m.meta.Mean[1])/s,
		float64(m.meta.Mean[2])/s,
		0,
	)
	size := image.Pt(m.meta.ImageSize, m.meta.ImageSize)
	swapRB := m.meta.ChannelOrder == "rgb"

	blob := gocv.BlobFromImage(img, s, size, mean, swapRB, false)
	defer blob.Close()

	if err := m.applyStd(blob); err != nil {
		return nil, classify.EvalError(m.name, err)
	}

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, classify.EvalError(m.name, fmt.Errorf("read output: %w", err))
	}
	scores := make([]float32, len(data))
	copy(scores, data)

	preds, err := classify.FromScores(m.meta.Classes, scores)
	if err != nil {
		return nil, classify.EvalError(m.name, err)
	}
	return preds, nil
}

// applyStd divides each channel plane of an NCHW blob by its std.
func (m *Model) applyStd(blob gocv.Mat) error {
	std := m.meta.Std
	if std[0] == 1 && std[1] == 1 && std[2] == 1 {
		return nil
	}
	data, err := blob.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}
	plane := m.meta.ImageSize * m.meta.ImageSize
	if len(data) != 3*plane {
		return fmt.Errorf("blob holds %d values, want %d", len(data), 3*plane)
	}
	for c := 0; c < 3; c++ {
		for i := c * plane; i < (c+1)*plane; i++ {
			data[i] /= std[c]
		}
	}
	return nil
}

// frameToMat wraps a frame as a BGR Mat.
func frameToMat(f *camera.Frame) (gocv.Mat, error) {
	if err := f.Validate(); err != nil {
		return gocv.Mat{}, err
	}

	bpp := f.Format.BytesPerPixel()
	pix := f.Pix
	if f.Stride != f.Width*bpp {
		pix = make([]byte, f.Width*bpp*f.Height)
		for y := 0; y < f.Height; y++ {
			copy(pix[y*f.Width*bpp:(y+1)*f.Width*bpp], f.Pix[y*f.Stride:])
		}
	} else {
		pix = pix[:f.Stride*f.Height]
	}

	typ := gocv.MatTypeCV8UC3
	if bpp == 4 {
		typ = gocv.MatTypeCV8UC4
	}
	// src may alias the frame buffer; everything below only reads it.
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, typ, pix)
	if err != nil {
		return gocv.Mat{}, err
	}

	switch f.Format {
	case camera.FormatBGR24:
		return src, nil
	case camera.FormatRGB24:
		dst := gocv.NewMat()
		gocv.CvtColor(src, &dst, gocv.ColorRGBToBGR)
		src.Close()
		return dst, nil
	case camera.FormatRGBA:
		dst := gocv.NewMat()
		gocv.CvtColor(src, &dst, gocv.ColorRGBAToBGR)
		src.Close()
		return dst, nil
	default:
		src.Close()
		return gocv.Mat{}, fmt.Errorf("unsupported pixel format %q", f.Format)
	}
}

// Close releases the network.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}
