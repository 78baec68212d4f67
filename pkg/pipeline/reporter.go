package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
)

// Reporter receives status updates for display. Implementations must not
// block; the loop calls them from its own goroutines.
type Reporter interface {
	// Status publishes a status line, such as "Predictions: cat - 92.00%".
	Status(text string)

	// Controls publishes the loop state and whether a start request would
	// be accepted.
	Controls(state State, canStart bool)
}

// LoadingStatus is published when a model load begins.
func LoadingStatus(model string) string {
	return fmt.Sprintf("Loading %s ... patience", model)
}

// ErrorStatus is published for every failure caught by the loop.
func ErrorStatus(err error) string {
	return "error: " + err.Error()
}

// LogReporter writes updates to a logger.
type LogReporter struct {
	Logger *slog.Logger
}

// Status logs the status line.
func (r LogReporter) Status(text string) {
	r.logger().Info("status", "text", text)
}

// Controls logs the state change.
func (r LogReporter) Controls(state State, canStart bool) {
	r.logger().Debug("controls", "state", state, "can_start", canStart)
}

func (r LogReporter) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// MultiReporter fans updates out to several reporters in order.
type MultiReporter []Reporter

// Status forwards to every reporter.
func (m MultiReporter) Status(text string) {
	for _, r := range m {
		r.Status(text)
	}
}

// Controls forwards to every reporter.
func (m MultiReporter) Controls(state State, canStart bool) {
	for _, r := range m {
		r.Controls(state, canStart)
	}
}

// Update is one queued reporter call.
type Update struct {
	Text     string
	Controls bool
	State    State
	CanStart bool
}

// AsyncReporter hands updates to a single presentation goroutine through
// a bounded queue. When the queue is full the oldest status line is
// discarded, so a slow presenter only ever falls behind by the queue length
// and always ends on the newest update. Controls updates are evicted only
// when the queue holds nothing else, and then only by a newer one.
type AsyncReporter struct {
	next Reporter
	size int
	wake chan struct{}
	done chan struct{}

	mu      sync.Mutex
	pending []Update
	closed  bool

	// OnDrop is called for every discarded update. It must be set before
	// the first update.
	OnDrop func(Update)
}

// DefaultQueueSize is the AsyncReporter queue length when 0 is given.
const DefaultQueueSize = 16

// NewAsyncReporter starts the presentation goroutine for next.
func NewAsyncReporter(next Reporter, size int) *AsyncReporter {
	if size <= 0 {
		size = DefaultQueueSize
	}
	r := &AsyncReporter{
		next: next,
		size: size,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go r.present()
	return r
}

func (r *AsyncReporter) present() {
	defer close(r.done)
	for {
		u, ok := r.pop()
		if !ok {
			return
		}
		if u.Controls {
			r.next.Controls(u.State, u.CanStart)
		} else {
			r.next.Status(u.Text)
		}
	}
}

// pop waits for the next update. It returns false once the reporter is
// closed and drained.
func (r *AsyncReporter) pop() (Update, bool) {
	r.mu.Lock()
	for len(r.pending) == 0 {
		if r.closed {
			r.mu.Unlock()
			return Update{}, false
		}
		r.mu.Unlock()
		<-r.wake
		r.mu.Lock()
	}
	u := r.pending[0]
	r.pending = r.pending[1:]
	r.mu.Unlock()
	return u, true
}

// Status queues a status line.
func (r *AsyncReporter) Status(text string) {
	r.push(Update{Text: text})
}

// Controls queues a controls update.
func (r *AsyncReporter) Controls(state State, canStart bool) {
	r.push(Update{Controls: true, State: state, CanStart: canStart})
}

func (r *AsyncReporter) push(u Update) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	var dropped []Update
	for len(r.pending) >= r.size {
		i := r.evictable()
		dropped = append(dropped, r.pending[i])
		r.pending = append(r.pending[:i], r.pending[i+1:]...)
	}
	r.pending = append(r.pending, u)
	r.mu.Unlock()

	r.signal()
	if r.OnDrop != nil {
		for _, d := range dropped {
			r.OnDrop(d)
		}
	}
}

// evictable returns the index of the oldest status line, or of the oldest
// update when only controls are queued. The caller holds mu.
func (r *AsyncReporter) evictable() int {
	for i, u := range r.pending {
		if !u.Controls {
			return i
		}
	}
	return 0
}

func (r *AsyncReporter) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close delivers queued updates and stops the presentation goroutine.
func (r *AsyncReporter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.signal()
	<-r.done
	return nil
}

// Recorder keeps every update in memory. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	statuses []string
	controls []Update
	notify   chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Status records a status line.
func (r *Recorder) Status(text string) {
	r.mu.Lock()
	r.statuses = append(r.statuses, text)
	r.mu.Unlock()
	r.poke()
}

// Controls records a controls update.
func (r *Recorder) Controls(state State, canStart bool) {
	r.mu.Lock()
	r.controls = append(r.controls, Update{Controls: true, State: state, CanStart: canStart})
	r.mu.Unlock()
	r.poke()
}

func (r *Recorder) poke() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Statuses returns the recorded status lines in order.
func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// ControlUpdates returns the recorded controls updates in order.
func (r *Recorder) ControlUpdates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.controls...)
}

// Last returns the newest status line, or "".
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

// Changed is signalled after each recorded update.
func (r *Recorder) Changed() <-chan struct{} {
	return r.notify
}
