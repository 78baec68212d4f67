package camera

import (
	"context"
	"sync"
	"time"
)

// MockStep is one scripted CaptureFrame result.
// A step with neither Frame nor Err is an absent frame.
type MockStep struct {
	Frame *Frame
	Err   error
}

// Absent is a scripted "no frame ready" result.
var Absent = MockStep{}

// MockSource is a scripted frame source for testing.
//
// CaptureFrame plays the script first; once it is exhausted every call
// returns a synthetic frame (or absent when WithExhaustedAbsent is set).
// The *Func fields, when set, replace the default behavior.
type MockSource struct {
	cfg Config

	OpenFunc         func(ctx context.Context) error
	StartPreviewFunc func(ctx context.Context) error
	CaptureFunc      func(ctx context.Context, call int) (*Frame, error)
	StopFunc         func() error

	mu         sync.Mutex
	script     []MockStep
	absentTail bool
	base       *Frame
	open       bool
	previewing bool
	closed     bool
	seq        uint64
	captures   int
	delivered  int64
	calls      []string
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithScript queues capture results.
func WithScript(steps ...MockStep) MockSourceOption {
	return func(m *MockSource) {
		m.script = append(m.script, steps...)
	}
}

// WithExhaustedAbsent makes the source report absent frames once the
// script is used up instead of synthesizing frames.
func WithExhaustedAbsent() MockSourceOption {
	return func(m *MockSource) {
		m.absentTail = true
	}
}

// WithFrame sets the frame synthesized after the script is exhausted.
func WithFrame(f *Frame) MockSourceOption {
	return func(m *MockSource) {
		m.base = f
	}
}

// NewMockSource creates a mock source. Synthetic frames use the config's
// geometry and a mid-gray fill.
func NewMockSource(cfg Config, opts ...MockSourceOption) *MockSource {
	m := &MockSource{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.base == nil {
		m.base = SolidFrame(FormatBGR24, max(cfg.Width, 1), max(cfg.Height, 1), 0x80, 0x80, 0x80)
	}
	return m
}

// SolidFrame builds a frame filled with one color. Channels are given in
// the format's own order.
func SolidFrame(format PixelFormat, width, height int, c0, c1, c2 byte) *Frame {
	bpp := format.BytesPerPixel()
	pix := make([]byte, width*height*bpp)
	for i := 0; i < len(pix); i += bpp {
		pix[i], pix[i+1], pix[i+2] = c0, c1, c2
		if bpp == 4 {
			pix[i+3] = 0xff
		}
	}
	return &Frame{
		Format: format,
		Width:  width,
		Height: height,
		Stride: width * bpp,
		Pix:    pix,
	}
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return BackendMock
}

// Open marks the device as acquired.
func (m *MockSource) Open(ctx context.Context) error {
	m.record("Open")
	if m.OpenFunc != nil {
		if err := m.OpenFunc(ctx); err != nil {
			return deviceError(BackendMock, "open", err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return deviceError(BackendMock, "open", ErrClosed)
	}
	m.open = true
	return nil
}

// StartPreview marks the device as streaming.
func (m *MockSource) StartPreview(ctx context.Context) error {
	m.record("StartPreview")
	if m.StartPreviewFunc != nil {
		if err := m.StartPreviewFunc(ctx); err != nil {
			return deviceError(BackendMock, "preview", err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return deviceError(BackendMock, "preview", ErrNotOpen)
	}
	m.previewing = true
	return nil
}

// CaptureFrame returns the next scripted result.
func (m *MockSource) CaptureFrame(ctx context.Context) (*Frame, error) {
	m.mu.Lock()
	call := m.captures
	m.captures++
	m.calls = append(m.calls, "CaptureFrame")
	if !m.previewing {
		m.mu.Unlock()
		return nil, captureError(BackendMock, ErrNotOpen)
	}

	var f *Frame
	var err error
	switch {
	case m.CaptureFunc != nil:
		m.mu.Unlock()
		f, err = m.CaptureFunc(ctx, call)
		m.mu.Lock()
	case len(m.script) > 0:
		step := m.script[0]
		m.script = m.script[1:]
		f, err = step.Frame, step.Err
	case m.absentTail:
	default:
		f = m.base
	}
	defer m.mu.Unlock()

	if err != nil {
		return nil, captureError(BackendMock, err)
	}
	if f == nil {
		return nil, nil
	}
	// Each delivery owns its pixels, even when a script repeats a frame.
	f = f.Clone()
	m.seq++
	f.Seq = m.seq
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	m.delivered++
	return f, nil
}

// Stop halts streaming.
func (m *MockSource) Stop() error {
	m.record("Stop")
	m.mu.Lock()
	m.open = false
	m.previewing = false
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

// Close releases the source for good.
func (m *MockSource) Close() error {
	m.record("Close")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.previewing = false
	m.closed = true
	return nil
}

// Stats returns frame counters.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SourceStats{
		FramesDelivered: m.delivered,
		FramesReceived:  m.delivered,
		Running:         m.previewing,
		Backend:         BackendMock,
	}
}

func (m *MockSource) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

// Calls returns the recorded method names in call order.
func (m *MockSource) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times the named method was called.
func (m *MockSource) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

// Previewing reports whether the source is streaming.
func (m *MockSource) Previewing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previewing
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset clears recorded calls.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.captures = 0
}
