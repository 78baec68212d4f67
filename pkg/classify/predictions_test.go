package classify

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-catcam/pkg/camera"
)

func TestPredictions_Top(t *testing.T) {
	tests := []struct {
		name  string
		preds Predictions
		want  string
	}{
		{"single", Predictions{{"cat", 0.3}}, "cat"},
		{"max last", Predictions{{"cat", 0.1}, {"dog", 0.2}, {"fox", 0.7}}, "fox"},
		{"max first", Predictions{{"cat", 0.92}, {"dog", 0.08}}, "cat"},
		{"tie keeps first", Predictions{{"dog", 0.5}, {"cat", 0.5}}, "dog"},
		{"tie after lower", Predictions{{"a", 0.1}, {"b", 0.6}, {"c", 0.6}, {"d", 0.2}}, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				top, ok := tt.preds.Top()
				if !ok {
					t.Fatal("Top: ok false for non-empty set")
				}
				if top.Label != tt.want {
					t.Errorf("Top: got %q, want %q", top.Label, tt.want)
				}
				for _, p := range tt.preds {
					if p.Score > top.Score {
						t.Errorf("Top %v is not maximal, %v is higher", top, p)
					}
				}
			}
		})
	}

	if _, ok := (Predictions{}).Top(); ok {
		t.Error("Top on empty set: ok true")
	}
}

func TestFormatPrediction(t *testing.T) {
	tests := []struct {
		p    Prediction
		want string
	}{
		{Prediction{"cat", 0.92}, "Predictions: cat - 92.00%"},
		{Prediction{"dog", 0.08}, "Predictions: dog - 8.00%"},
		{Prediction{"tabby cat", 1}, "Predictions: tabby cat - 100.00%"},
		{Prediction{"none", 0}, "Predictions: none - 0.00%"},
		{Prediction{"x", 0.12345}, "Predictions: x - 12.35%"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatPrediction(tt.p); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatDogEndToEndFormat(t *testing.T) {
	preds := Predictions{{"cat", 0.92}, {"dog", 0.08}}
	top, _ := preds.Top()
	if got := FormatPrediction(top); got != "Predictions: cat - 92.00%" {
		t.Errorf("got %q", got)
	}
	m := preds.Map()
	if m["cat"] != 0.92 || m["dog"] != 0.08 || len(m) != 2 {
		t.Errorf("Map: got %v", m)
	}
}

func TestFromScores(t *testing.T) {
	t.Run("probabilities pass through", func(t *testing.T) {
		got, err := FromScores([]string{"cat", "dog"}, []float32{0.92, 0.08})
		if err != nil {
			t.Fatal(err)
		}
		if got[0].Score != 0.92 || got[1].Label != "dog" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("logits are softmaxed", func(t *testing.T) {
		got, err := FromScores([]string{"cat", "dog"}, []float32{3, -1})
		if err != nil {
			t.Fatal(err)
		}
		if err := got.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
		top, _ := got.Top()
		if top.Label != "cat" {
			t.Errorf("top: got %q, want cat", top.Label)
		}
		sum := got[0].Score + got[1].Score
		if math.Abs(float64(sum)-1) > 1e-5 {
			t.Errorf("sum: got %v, want 1", sum)
		}
	})

	t.Run("extra outputs get names", func(t *testing.T) {
		got, _ := FromScores([]string{"cat"}, []float32{0.5, 0.5})
		if got[1].Label != "class_1" {
			t.Errorf("got %q, want class_1", got[1].Label)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := FromScores(nil, nil); !errors.Is(err, ErrEmptyPredictions) {
			t.Errorf("got %v, want ErrEmptyPredictions", err)
		}
	})

	t.Run("nan", func(t *testing.T) {
		if _, err := FromScores(nil, []float32{float32(math.NaN())}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestPredictions_Validate(t *testing.T) {
	if err := (Predictions{}).Validate(); !errors.Is(err, ErrEmptyPredictions) {
		t.Errorf("empty: got %v", err)
	}
	if err := (Predictions{{"a", 1.5}}).Validate(); err == nil {
		t.Error("score above 1: expected error")
	}
	if err := (Predictions{{"a", 0}, {"b", 1}}).Validate(); err != nil {
		t.Errorf("bounds: %v", err)
	}
}

func TestMockEngine_LoadEvaluate(t *testing.T) {
	engine, err := NewEngine(EngineMock, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	model, err := engine.Load(context.Background(), "asset:///CatModel.onnx")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if model.Name() != "CatModel.onnx" {
		t.Errorf("Name: got %q", model.Name())
	}

	frame := camera.SolidFrame(camera.FormatBGR24, 32, 24, 1, 2, 3)
	preds, err := model.Evaluate(context.Background(), frame)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if err := preds.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	_ = model.Close()
	_, err = model.Evaluate(context.Background(), frame)
	var ie *InferenceError
	if !errors.As(err, &ie) || !errors.Is(err, ErrModelClosed) {
		t.Errorf("after Close: got %v, want InferenceError wrapping ErrModelClosed", err)
	}
}

func TestNewEngine_Unknown(t *testing.T) {
	if _, err := NewEngine("tflite", DefaultConfig(), nil); !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("got %v, want ErrUnknownEngine", err)
	}
}

func TestErrorWrapping(t *testing.T) {
	base := errors.New("boom")

	le := LoadError("m.onnx", base)
	if LoadError("m.onnx", le) != le {
		t.Error("LoadError double-wrapped")
	}
	if !errors.Is(le, base) {
		t.Error("LoadError does not unwrap")
	}
	if le.Error() != "load m.onnx: boom" {
		t.Errorf("LoadError text: %q", le.Error())
	}

	ee := EvalError("m", base)
	if EvalError("m", ee) != ee {
		t.Error("EvalError double-wrapped")
	}
	if ee.Error() != "inference [m]: boom" {
		t.Errorf("EvalError text: %q", ee.Error())
	}
	if LoadError("x", nil) != nil || EvalError("x", nil) != nil {
		t.Error("nil errors should stay nil")
	}
}
