package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveLoad(t *testing.T) {
	m := New()
	m.ObserveLoad(1500*time.Millisecond, nil)
	m.ObserveLoad(time.Second, errors.New("missing"))

	s := m.Snapshot()
	if s.Loads != 1 || s.LoadFailures != 1 {
		t.Errorf("loads/failures: got %d/%d, want 1/1", s.Loads, s.LoadFailures)
	}
	if s.LoadLatencyMs != 1500 {
		t.Errorf("LoadLatencyMs: got %d, want 1500", s.LoadLatencyMs)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.FramesCaptured.Add(7)
	m.ObserveInference(40 * time.Millisecond)
	m.State.Store(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"catcam_frames_captured_total 7",
		"catcam_inference_latency_ms 40",
		"catcam_loop_state 2",
		"catcam_inference_duration_seconds_count 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

type fakeBroadcaster struct {
	clients int
	dropped uint64
}

func (f *fakeBroadcaster) ClientCount() int { return f.clients }
func (f *fakeBroadcaster) Dropped() uint64  { return f.dropped }

func TestTrackBroadcaster(t *testing.T) {
	m := New()
	b := &fakeBroadcaster{clients: 2, dropped: 5}
	if err := m.TrackBroadcaster("status", b); err != nil {
		t.Fatalf("TrackBroadcaster: %v", err)
	}
	if err := m.TrackBroadcaster("status", b); err == nil {
		t.Error("second TrackBroadcaster with the same name: expected error")
	}

	b.dropped = 9
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`catcam_ws_clients{hub="status"} 2`,
		`catcam_ws_dropped_total{hub="status"} 9`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
