// Package pipeline runs the capture and classify loop: it lazily loads the
// model, pulls frames from the camera, sends each one to a single in-flight
// evaluation and publishes the top prediction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-catcam/pkg/camera"
	"github.com/teslashibe/go-catcam/pkg/classify"
	"github.com/teslashibe/go-catcam/pkg/metrics"
)

// Mode selects how frames are dispatched to inference.
// Both modes keep at most one evaluation in flight.
type Mode int

const (
	// ModeSerial waits for each evaluation's status to be published before
	// capturing the next frame. Predictions appear in capture order.
	ModeSerial Mode = iota

	// ModeLatest keeps capturing while inference is busy and drops those
	// frames, so each evaluation starts on the freshest frame available.
	ModeLatest
)

// String returns "serial" or "latest".
func (m Mode) String() string {
	if m == ModeLatest {
		return "latest"
	}
	return "serial"
}

// ParseMode parses "serial" or "latest".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "serial":
		return ModeSerial, nil
	case "latest":
		return ModeLatest, nil
	}
	return ModeSerial, fmt.Errorf("pipeline: unknown mode %q", s)
}

// Config holds loop settings.
type Config struct {
	// Artifact is the model reference handed to Engine.Load.
	Artifact string

	// Mode selects the dispatch mode.
	Mode Mode

	// IdleSleep is slept after an absent frame. Keep it well under one
	// frame interval; 0 busy-polls.
	IdleSleep time.Duration

	// CaptureBackoff is slept after a failed capture.
	CaptureBackoff time.Duration

	// MaxCaptureFailures consecutive capture errors stop the loop.
	// Negative disables the limit; 0 is rejected.
	MaxCaptureFailures int
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		Artifact:           "asset:///CatModel.onnx",
		Mode:               ModeSerial,
		IdleSleep:          time.Millisecond,
		CaptureBackoff:     50 * time.Millisecond,
		MaxCaptureFailures: 20,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Artifact == "" {
		return errors.New("pipeline: artifact is required")
	}
	if c.Mode != ModeSerial && c.Mode != ModeLatest {
		return fmt.Errorf("pipeline: unknown mode %d", c.Mode)
	}
	if c.IdleSleep < 0 || c.CaptureBackoff < 0 {
		return errors.New("pipeline: sleeps must not be negative")
	}
	if c.MaxCaptureFailures == 0 {
		return errors.New("pipeline: max capture failures must be positive, or negative for no limit")
	}
	return nil
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) {
		if m != nil {
			l.metrics = m
		}
	}
}

// Loop owns the model handle and the frame source and drives the
// Idle -> Loading -> Running -> Stopped state machine.
type Loop struct {
	cfg      Config
	engine   classify.Engine
	reporter Reporter
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// pubMu orders state changes against status publication, so nothing
	// from a finished run is published after its final state.
	pubMu sync.Mutex

	mu           sync.Mutex
	state        State
	source       camera.Source
	model        classify.Model
	session      string
	cancel       context.CancelFunc
	done         chan struct{}
	runErr       error
	lastStatus   string
	loadDuration time.Duration
	lastLatency  time.Duration
	lastScores   map[string]float32
	closed       bool

	busy     atomic.Bool
	inflight sync.WaitGroup
}

// New creates an idle loop. The model is not loaded until the first Start.
func New(cfg Config, engine classify.Engine, source camera.Source, reporter Reporter, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, errors.New("pipeline: engine is required")
	}
	if source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if reporter == nil {
		reporter = LogReporter{}
	}

	l := &Loop{
		cfg:      cfg,
		engine:   engine,
		source:   source,
		reporter: reporter,
		logger:   slog.Default(),
		state:    Idle,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = metrics.New()
	}
	l.logger = l.logger.With("component", "pipeline")
	return l, nil
}

// Start begins a run in the background. Without a model handle the loop
// enters Loading and loads it first. Start returns ErrNotStartable while
// the loop is already loading or running.
func (l *Loop) Start() error {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if !l.state.CanStart() {
		l.mu.Unlock()
		return ErrNotStartable
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := uuid.NewString()
	done := make(chan struct{})
	l.session = session
	l.cancel = cancel
	l.done = done
	l.runErr = nil
	needLoad := l.model == nil
	next := Running
	if needLoad {
		next = Loading
	}
	l.setStateLocked(next)
	l.mu.Unlock()

	l.logger.Info("run started", "session", session, "load", needLoad, "mode", l.cfg.Mode)
	l.reporter.Controls(next, false)
	if needLoad {
		l.publishLocked(LoadingStatus(classify.DisplayName(l.cfg.Artifact)))
	}

	go l.run(ctx, cancel, session, done, needLoad)
	return nil
}

// Run starts the loop and blocks until the run ends or ctx is cancelled.
// It returns nil when stopped through ctx or Stop, and the load or device
// error that ended the run otherwise.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(); err != nil {
		return err
	}
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		l.Stop()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runErr
}

// Stop ends the current run and waits until the loop goroutine has
// released the source. An evaluation still in flight completes in the
// background; its result is discarded.
func (l *Loop) Stop() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Done returns a channel closed when the current run ends, or nil if the
// loop never started.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Close stops the loop, waits for in-flight inference, and releases the
// model and the source. Start returns ErrClosed as soon as Close begins.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.Stop()
	l.inflight.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	if l.model != nil {
		if err := l.model.Close(); err != nil {
			errs = append(errs, err)
		}
		l.model = nil
	}
	if err := l.source.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Reload drops the model handle so the next Start loads the artifact again.
// It returns ErrBusy while a run or an evaluation is active.
func (l *Loop) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if !l.state.CanStart() || l.busy.Load() {
		return ErrBusy
	}
	if l.model == nil {
		return nil
	}
	err := l.model.Close()
	l.model = nil
	l.logger.Info("model released for reload")
	return err
}

// SetSource replaces the frame source. The old source is closed.
// It returns ErrBusy while a run is active.
func (l *Loop) SetSource(src camera.Source) error {
	if src == nil {
		return errors.New("pipeline: source is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if !l.state.CanStart() {
		return ErrBusy
	}
	old := l.source
	l.source = src
	if old != nil && old != src {
		return old.Close()
	}
	return nil
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// CanStart reports whether Start would be accepted.
func (l *Loop) CanStart() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && l.state.CanStart()
}

// Stats is a snapshot of the loop for status endpoints.
type Stats struct {
	State          State               `json:"state"`
	CanStart       bool                `json:"can_start"`
	Status         string              `json:"status"`
	Session        string              `json:"session,omitempty"`
	Model          string              `json:"model"`
	Loaded         bool                `json:"loaded"`
	Mode           string              `json:"mode"`
	Source         string              `json:"source"`
	LoadDurationMs int64               `json:"load_duration_ms"`
	LastLatencyMs  int64               `json:"last_latency_ms"`
	Predictions    map[string]float32  `json:"predictions,omitempty"`
	Camera         *camera.SourceStats `json:"camera,omitempty"`
	Counters       metrics.Snapshot    `json:"counters"`
}

// Stats returns a snapshot of the loop.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var cam *camera.SourceStats
	if ws, ok := l.source.(camera.SourceWithStats); ok {
		st := ws.Stats()
		cam = &st
	}
	return Stats{
		State:          l.state,
		CanStart:       !l.closed && l.state.CanStart(),
		Status:         l.lastStatus,
		Session:        l.session,
		Model:          classify.DisplayName(l.cfg.Artifact),
		Loaded:         l.model != nil,
		Mode:           l.cfg.Mode.String(),
		Source:         l.source.Name(),
		LoadDurationMs: l.loadDuration.Milliseconds(),
		LastLatencyMs:  l.lastLatency.Milliseconds(),
		Predictions:    l.lastScores,
		Camera:         cam,
		Counters:       l.metrics.Snapshot(),
	}
}

// Metrics returns the loop's metrics.
func (l *Loop) Metrics() *metrics.Metrics {
	return l.metrics
}

func (l *Loop) run(ctx context.Context, cancel context.CancelFunc, session string, done chan struct{}, needLoad bool) {
	defer close(done)
	defer cancel()

	l.mu.Lock()
	src := l.source
	l.mu.Unlock()

	var model classify.Model
	if needLoad {
		m, err := l.load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.finish(session, Stopped, nil)
				return
			}
			l.publish(session, ErrorStatus(err))
			l.finish(session, Idle, err)
			return
		}
		model = m
		if ctx.Err() != nil {
			l.finish(session, Stopped, nil)
			return
		}
		l.transition(session, Running)
	} else {
		l.mu.Lock()
		model = l.model
		l.mu.Unlock()
	}

	if err := l.openSource(ctx, src); err != nil {
		src.Stop()
		if ctx.Err() != nil {
			l.finish(session, Stopped, nil)
			return
		}
		l.publish(session, ErrorStatus(err))
		l.finish(session, Stopped, err)
		return
	}

	err := l.capture(ctx, session, src, model)
	src.Stop()
	if err != nil {
		l.publish(session, ErrorStatus(err))
	}
	l.finish(session, Stopped, err)
}

// load creates the model handle and times it.
func (l *Loop) load(ctx context.Context) (classify.Model, error) {
	name := classify.DisplayName(l.cfg.Artifact)
	start := time.Now()
	model, err := l.engine.Load(ctx, l.cfg.Artifact)
	elapsed := time.Since(start)
	l.metrics.ObserveLoad(elapsed, err)

	if err != nil {
		l.logger.Error("model load failed", "model", name, "error", err)
		return nil, classify.LoadError(l.cfg.Artifact, err)
	}

	l.mu.Lock()
	l.model = model
	l.loadDuration = elapsed
	l.mu.Unlock()

	l.logger.Info("model loaded", "model", name, "elapsed_ms", elapsed.Milliseconds())
	return model, nil
}

func (l *Loop) openSource(ctx context.Context, src camera.Source) error {
	if err := src.Open(ctx); err != nil {
		l.logger.Error("camera open failed", "source", src.Name(), "error", err)
		return err
	}
	if err := src.StartPreview(ctx); err != nil {
		l.logger.Error("camera preview failed", "source", src.Name(), "error", err)
		return err
	}
	l.logger.Info("camera streaming", "source", src.Name())
	return nil
}

// capture runs until ctx is cancelled or the device fails. The returned
// error is the device failure, if any.
func (l *Loop) capture(ctx context.Context, session string, src camera.Source, model classify.Model) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := src.CaptureFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.metrics.CaptureErrors.Add(1)
			if camera.IsDeviceFailure(err) {
				l.logger.Error("camera lost", "error", err)
				return err
			}
			failures++
			if l.cfg.MaxCaptureFailures >= 0 && failures >= l.cfg.MaxCaptureFailures {
				l.logger.Error("camera keeps failing", "failures", failures, "error", err)
				return fmt.Errorf("%d consecutive capture failures: %w", failures, err)
			}
			if failures == 1 {
				l.publish(session, ErrorStatus(err))
			}
			l.logger.Debug("capture failed", "failures", failures, "error", err)
			sleep(ctx, l.cfg.CaptureBackoff)
			continue
		}
		failures = 0

		if frame == nil {
			l.metrics.FramesAbsent.Add(1)
			sleep(ctx, l.cfg.IdleSleep)
			continue
		}
		l.metrics.FramesCaptured.Add(1)

		if !l.busy.CompareAndSwap(false, true) {
			l.metrics.FramesDropped.Add(1)
			if l.cfg.Mode == ModeSerial {
				// A previous run's evaluation is still finishing.
				sleep(ctx, l.cfg.IdleSleep)
			}
			continue
		}

		evaluated := l.dispatch(ctx, session, model, frame)
		if l.cfg.Mode == ModeSerial {
			select {
			case <-evaluated:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// dispatch evaluates frame on a new goroutine. The caller holds the busy
// flag; it is released after the result is published and before the
// returned channel closes.
func (l *Loop) dispatch(ctx context.Context, session string, model classify.Model, frame *camera.Frame) <-chan struct{} {
	done := make(chan struct{})
	l.inflight.Add(1)
	l.metrics.InFlight.Add(1)

	go func() {
		defer l.inflight.Done()

		start := time.Now()
		preds, err := model.Evaluate(ctx, frame)
		elapsed := time.Since(start)
		l.metrics.ObserveInference(elapsed)

		l.mu.Lock()
		l.lastLatency = elapsed
		l.mu.Unlock()

		l.report(session, frame, preds, err)

		l.metrics.InFlight.Add(-1)
		l.busy.Store(false)
		close(done)
	}()
	return done
}

func (l *Loop) report(session string, frame *camera.Frame, preds classify.Predictions, err error) {
	if err == nil {
		err = preds.Validate()
	}
	if err != nil {
		if !l.current(session) {
			return
		}
		l.metrics.InferenceErrors.Add(1)
		l.logger.Warn("inference failed", "frame", frame.Seq, "error", err)
		l.publish(session, ErrorStatus(classify.EvalError(l.modelName(), err)))
		return
	}

	top, _ := preds.Top()
	l.metrics.FramesEvaluated.Add(1)
	l.logger.Debug("frame classified", "frame", frame.Seq, "label", top.Label,
		"score", top.Score, "age_ms", frame.Age().Milliseconds())
	if l.current(session) {
		l.mu.Lock()
		l.lastScores = preds.Map()
		l.mu.Unlock()
	}
	l.publish(session, classify.FormatPrediction(top))
}

func (l *Loop) modelName() string {
	return classify.DisplayName(l.cfg.Artifact)
}

// current reports whether session is the active run.
func (l *Loop) current(session string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session == session && (l.state == Running || l.state == Loading)
}

// publish sends text to the reporter unless session has ended.
func (l *Loop) publish(session, text string) {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	if !l.current(session) {
		l.logger.Debug("discarding stale status", "session", session, "text", text)
		return
	}
	l.publishLocked(text)
}

// publishLocked publishes text. The caller holds pubMu.
func (l *Loop) publishLocked(text string) {
	l.mu.Lock()
	l.lastStatus = text
	l.mu.Unlock()
	l.metrics.StatusPublished.Add(1)
	l.reporter.Status(text)
}

// transition moves an active run to a new state.
func (l *Loop) transition(session string, next State) {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	if l.session != session {
		l.mu.Unlock()
		return
	}
	l.setStateLocked(next)
	l.mu.Unlock()
	l.reporter.Controls(next, next.CanStart())
}

// finish ends a run in a final state and re-enables the start control.
func (l *Loop) finish(session string, final State, err error) {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	if l.session != session {
		l.mu.Unlock()
		return
	}
	l.setStateLocked(final)
	l.runErr = err
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("run ended", "session", session, "state", final, "error", err)
	} else {
		l.logger.Info("run ended", "session", session, "state", final)
	}
	l.reporter.Controls(final, true)
}

// setStateLocked records a new state. The caller holds mu.
func (l *Loop) setStateLocked(s State) {
	if l.state != s {
		l.logger.Debug("state change", "from", l.state, "to", s)
	}
	l.state = s
	l.metrics.State.Store(int64(s))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
