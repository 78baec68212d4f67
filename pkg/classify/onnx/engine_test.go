package onnx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-catcam/pkg/camera"
	"github.com/teslashibe/go-catcam/pkg/classify"
	ort "github.com/yalue/onnxruntime_go"
)

func TestRegistered(t *testing.T) {
	e, err := classify.NewEngine(EngineName, classify.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if e.Name() != EngineName {
		t.Errorf("Name: got %q", e.Name())
	}
}

func TestLoad_MissingArtifact(t *testing.T) {
	cfg := classify.DefaultConfig()
	cfg.AssetsDir = t.TempDir()

	_, err := New(cfg, nil).Load(context.Background(), "asset:///CatModel.onnx")
	var le *classify.ModelLoadError
	if !errors.As(err, &le) {
		t.Fatalf("got %v, want *classify.ModelLoadError", err)
	}
	if !errors.Is(err, classify.ErrArtifactNotFound) {
		t.Errorf("got %v, want ErrArtifactNotFound", err)
	}
}

func TestLoad_BadMetadata(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "m.onnx"), []byte("not a model"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "m.json"), []byte(`{"layout":"hwc"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(classify.DefaultConfig(), nil).Load(context.Background(), filepath.Join(dir, "m.onnx"))
	if !errors.Is(err, classify.ErrBadMetadata) {
		t.Errorf("got %v, want ErrBadMetadata", err)
	}
}

func TestResolveIO(t *testing.T) {
	// Custom Vision exports name their tensors "data" and "model_output".
	inputs := []ort.InputOutputInfo{{Name: "data", Dimensions: ort.NewShape(1, 3, 224, 224)}}
	outputs := []ort.InputOutputInfo{
		{Name: "model_output", Dimensions: ort.NewShape(1, 2)},
		{Name: "loss", Dimensions: ort.NewShape(1, 2)},
	}

	tests := []struct {
		name       string
		meta       classify.Metadata
		wantInput  string
		wantOutput string
		wantShape  []int64
	}{
		{
			name:       "defaults resolved from model",
			meta:       classify.Metadata{Classes: []string{"cat", "dog"}},
			wantInput:  "data",
			wantOutput: "model_output",
			wantShape:  []int64{1, 2},
		},
		{
			name:       "sidecar output kept",
			meta:       classify.Metadata{OutputName: "loss", OutputShape: []int64{1, 2}},
			wantInput:  "data",
			wantOutput: "loss",
			wantShape:  []int64{1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := tt.meta
			meta.ApplyDefaults()
			got, err := resolveIO(meta, inputs, outputs)
			if err != nil {
				t.Fatalf("resolveIO: %v", err)
			}
			if got.InputName != tt.wantInput || got.OutputName != tt.wantOutput {
				t.Errorf("names: got %q/%q, want %q/%q", got.InputName, got.OutputName, tt.wantInput, tt.wantOutput)
			}
			if len(got.OutputShape) != len(tt.wantShape) || got.OutputShape[1] != tt.wantShape[1] {
				t.Errorf("OutputShape: got %v, want %v", got.OutputShape, tt.wantShape)
			}
		})
	}

	if _, err := resolveIO(classify.Metadata{}, nil, outputs); !errors.Is(err, classify.ErrUnsupportedFormat) {
		t.Errorf("no inputs: got %v, want ErrUnsupportedFormat", err)
	}
}

// TestLoadAndEvaluate runs a real model when one is available:
//
//	CATCAM_TEST_MODEL=/path/to/CatModel.onnx ONNXRUNTIME_LIB=/usr/lib/libonnxruntime.so go test ./pkg/classify/onnx
func TestLoadAndEvaluate(t *testing.T) {
	model := os.Getenv("CATCAM_TEST_MODEL")
	if model == "" {
		t.Skip("CATCAM_TEST_MODEL not set")
	}

	cfg := classify.DefaultConfig()
	cfg.LibraryPath = os.Getenv("ONNXRUNTIME_LIB")
	m, err := New(cfg, nil).Load(context.Background(), model)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer m.Close()

	frame := camera.SolidFrame(camera.FormatBGR24, 320, 240, 40, 90, 160)
	preds, err := m.Evaluate(context.Background(), frame)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if err := preds.Validate(); err != nil {
		t.Errorf("predictions: %v", err)
	}
	top, _ := preds.Top()
	t.Logf("%s", classify.FormatPrediction(top))
}
