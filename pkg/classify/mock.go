package classify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-catcam/pkg/camera"
)

// EngineMock is the name of the built-in mock engine.
const EngineMock = "mock"

func init() {
	RegisterEngine(EngineMock, func(cfg Config, logger *slog.Logger) (Engine, error) {
		return NewMockEngine(nil), nil
	})
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Arg    string
	Time   time.Time
}

// MockEngine implements Engine for testing.
type MockEngine struct {
	// LoadFunc is called when Load is invoked.
	LoadFunc func(ctx context.Context, artifact string) (Model, error)

	mu    sync.Mutex
	calls []MockCall
}

// NewMockEngine returns an engine whose Load hands out model.
// A nil model gets a default cat/dog model.
func NewMockEngine(model *MockModel) *MockEngine {
	return &MockEngine{
		LoadFunc: func(ctx context.Context, artifact string) (Model, error) {
			if model != nil {
				return model, nil
			}
			return NewMockModel(DisplayName(artifact), Predictions{
				{Label: "cat", Score: 0.92},
				{Label: "dog", Score: 0.08},
			}), nil
		},
	}
}

// Name returns "mock".
func (e *MockEngine) Name() string {
	return EngineMock
}

// Load calls LoadFunc and records the call.
func (e *MockEngine) Load(ctx context.Context, artifact string) (Model, error) {
	e.record("Load", artifact)
	if e.LoadFunc == nil {
		return nil, LoadError(artifact, ErrArtifactNotFound)
	}
	m, err := e.LoadFunc(ctx, artifact)
	if err != nil {
		return nil, LoadError(artifact, err)
	}
	return m, nil
}

func (e *MockEngine) record(method, arg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, MockCall{Method: method, Arg: arg, Time: time.Now()})
}

// Calls returns all recorded calls.
func (e *MockEngine) Calls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]MockCall(nil), e.calls...)
}

// CallCount returns the number of calls to a method.
func (e *MockEngine) CallCount(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Evaluation records the span of one Evaluate call.
type Evaluation struct {
	FrameSeq uint64
	Start    time.Time
	End      time.Time
}

// MockModel implements Model for testing. It records the start and end of
// every evaluation so tests can check that calls never overlap.
type MockModel struct {
	// EvaluateFunc is called when Evaluate is invoked.
	EvaluateFunc func(ctx context.Context, f *camera.Frame) (Predictions, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	name   string
	labels []string

	mu          sync.Mutex
	closed      bool
	closeCount  int
	inFlight    int
	maxInFlight int
	evals       []Evaluation
}

// NewMockModel returns a model that always predicts preds.
func NewMockModel(name string, preds Predictions) *MockModel {
	labels := make([]string, len(preds))
	for i, p := range preds {
		labels[i] = p.Label
	}
	return &MockModel{
		name:   name,
		labels: labels,
		EvaluateFunc: func(ctx context.Context, f *camera.Frame) (Predictions, error) {
			return append(Predictions(nil), preds...), nil
		},
	}
}

// Name returns the model name.
func (m *MockModel) Name() string {
	return m.name
}

// Labels returns the model labels.
func (m *MockModel) Labels() []string {
	return m.labels
}

// Evaluate calls EvaluateFunc and records its span.
func (m *MockModel) Evaluate(ctx context.Context, f *camera.Frame) (Predictions, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, EvalError(m.name, ErrModelClosed)
	}
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	ev := Evaluation{Start: time.Now()}
	if f != nil {
		ev.FrameSeq = f.Seq
	}
	fn := m.EvaluateFunc
	m.mu.Unlock()

	var preds Predictions
	var err error
	if fn != nil {
		preds, err = fn(ctx, f)
	} else {
		err = ErrEmptyPredictions
	}

	m.mu.Lock()
	m.inFlight--
	ev.End = time.Now()
	m.evals = append(m.evals, ev)
	m.mu.Unlock()

	if err != nil {
		return nil, EvalError(m.name, err)
	}
	return preds, nil
}

// Close marks the model closed.
func (m *MockModel) Close() error {
	m.mu.Lock()
	m.closed = true
	m.closeCount++
	fn := m.CloseFunc
	m.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

// Evaluations returns the recorded evaluation spans in completion order.
func (m *MockModel) Evaluations() []Evaluation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Evaluation(nil), m.evals...)
}

// EvaluateCount returns how many evaluations completed.
func (m *MockModel) EvaluateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.evals)
}

// MaxInFlight returns the highest number of concurrent Evaluate calls seen.
func (m *MockModel) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Closed reports whether Close was called, and how often.
func (m *MockModel) Closed() (bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, m.closeCount
}
