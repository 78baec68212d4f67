package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestStatusText(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"loading", LoadingStatus("CatModel.onnx"), "Loading CatModel.onnx ... patience"},
		{"error", ErrorStatus(errors.New("camera busy")), "error: camera busy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestStateText(t *testing.T) {
	tests := []struct {
		state    State
		name     string
		canStart bool
	}{
		{Idle, "idle", true},
		{Loading, "loading", false},
		{Running, "running", false},
		{Stopped, "stopped", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.name {
				t.Errorf("String: got %q, want %q", got, tt.name)
			}
			if got := tt.state.CanStart(); got != tt.canStart {
				t.Errorf("CanStart: got %v, want %v", got, tt.canStart)
			}
			var s State
			if err := s.UnmarshalText([]byte(tt.name)); err != nil || s != tt.state {
				t.Errorf("UnmarshalText: got %v (%v), want %v", s, err, tt.state)
			}
		})
	}

	var s State
	if err := s.UnmarshalText([]byte("paused")); err == nil {
		t.Error("UnmarshalText(paused): expected error")
	}
}

func TestMultiReporter(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := MultiReporter{a, b}
	m.Status("hello")
	m.Controls(Running, false)

	for i, r := range []*Recorder{a, b} {
		if r.Last() != "hello" || len(r.ControlUpdates()) != 1 {
			t.Errorf("reporter %d: got %q / %d controls", i, r.Last(), len(r.ControlUpdates()))
		}
	}
}

// gatedReporter blocks on its first status until the gate opens.
type gatedReporter struct {
	*Recorder
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedReporter) Status(text string) {
	g.once.Do(func() {
		close(g.started)
		<-g.gate
	})
	g.Recorder.Status(text)
}

func TestAsyncReporterDropsOldest(t *testing.T) {
	next := &gatedReporter{
		Recorder: NewRecorder(),
		started:  make(chan struct{}),
		gate:     make(chan struct{}),
	}
	r := NewAsyncReporter(next, 2)
	var dropped []string
	r.OnDrop = func(u Update) { dropped = append(dropped, u.Text) }

	r.Status("s0")
	<-next.started
	for i := 1; i <= 5; i++ {
		r.Status(fmt.Sprintf("s%d", i))
	}
	close(next.gate)
	r.Close()

	want := []string{"s0", "s4", "s5"}
	got := next.Statuses()
	if len(got) != len(want) {
		t.Fatalf("delivered: got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivered %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if len(dropped) != 3 {
		t.Errorf("dropped: got %q, want 3 updates", dropped)
	}

	r.Status("late")
	if next.Last() != "s5" {
		t.Errorf("update after Close delivered: %q", next.Last())
	}
}

func TestAsyncReporterKeepsControls(t *testing.T) {
	next := &gatedReporter{
		Recorder: NewRecorder(),
		started:  make(chan struct{}),
		gate:     make(chan struct{}),
	}
	r := NewAsyncReporter(next, 4)
	var dropped []Update
	r.OnDrop = func(u Update) { dropped = append(dropped, u) }

	r.Status("Loading CatModel.onnx ... patience")
	<-next.started
	r.Controls(Running, false)
	for i := 1; i <= 10; i++ {
		r.Status(fmt.Sprintf("Predictions: cat - %d.00%%", 80+i))
	}
	close(next.gate)
	r.Close()

	controls := next.ControlUpdates()
	if len(controls) != 1 || controls[0].State != Running || controls[0].CanStart {
		t.Fatalf("controls: got %+v, want one running update", controls)
	}
	if got := next.Last(); got != "Predictions: cat - 90.00%" {
		t.Errorf("last status: got %q", got)
	}
	if n := len(next.Statuses()); n != 4 {
		t.Errorf("statuses delivered: got %d, want 4", n)
	}
	for _, u := range dropped {
		if u.Controls {
			t.Errorf("dropped a controls update: %+v", u)
		}
	}
	if len(dropped) != 7 {
		t.Errorf("dropped: got %d, want 7", len(dropped))
	}
}

func TestAsyncReporterCoalescesControls(t *testing.T) {
	next := &gatedReporter{
		Recorder: NewRecorder(),
		started:  make(chan struct{}),
		gate:     make(chan struct{}),
	}
	r := NewAsyncReporter(next, 2)

	r.Status("Loading CatModel.onnx ... patience")
	<-next.started
	r.Controls(Loading, false)
	r.Controls(Running, false)
	r.Controls(Stopped, true)
	close(next.gate)
	r.Close()

	controls := next.ControlUpdates()
	if len(controls) != 2 {
		t.Fatalf("controls: got %+v, want 2", controls)
	}
	if last := controls[1]; last.State != Stopped || !last.CanStart {
		t.Errorf("last controls: got %+v, want stopped with start enabled", last)
	}
}

func TestAsyncReporterControls(t *testing.T) {
	rec := NewRecorder()
	r := NewAsyncReporter(rec, 0)
	r.Controls(Loading, false)
	r.Status("Loading m ... patience")
	r.Controls(Idle, true)
	r.Close()

	controls := rec.ControlUpdates()
	if len(controls) != 2 {
		t.Fatalf("controls: got %d, want 2", len(controls))
	}
	if controls[1].State != Idle || !controls[1].CanStart {
		t.Errorf("last controls: got %+v", controls[1])
	}
	if rec.Last() != "Loading m ... patience" {
		t.Errorf("status: got %q", rec.Last())
	}
}
