package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-catcam/pkg/pipeline"
)

// Status is the latest state of the display, as a client would render it.
type Status struct {
	Text     string         `json:"text"`
	State    pipeline.State `json:"state"`
	CanStart bool           `json:"can_start"`
	Updated  time.Time      `json:"updated"`
}

// Event is one websocket message on /ws/status.
type Event struct {
	Type string `json:"type"` // "status" or "controls"
	Status
}

// Broadcaster sends JSON to every websocket client. *hub.Hub implements it.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

// StatusReporter is the pipeline's display surface: it keeps the latest
// status and pushes every update to websocket clients.
type StatusReporter struct {
	out    Broadcaster
	logger *slog.Logger

	mu     sync.RWMutex
	status Status
}

// NewStatusReporter creates a reporter broadcasting on out.
func NewStatusReporter(out Broadcaster, logger *slog.Logger) *StatusReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{
		out:    out,
		logger: logger.With("component", "status"),
		status: Status{State: pipeline.Idle, CanStart: true, Updated: time.Now()},
	}
}

// Status records and broadcasts a status line.
func (r *StatusReporter) Status(text string) {
	r.mu.Lock()
	r.status.Text = text
	r.status.Updated = time.Now()
	ev := Event{Type: "status", Status: r.status}
	r.mu.Unlock()
	r.broadcast(ev)
}

// Controls records and broadcasts the start control state.
func (r *StatusReporter) Controls(state pipeline.State, canStart bool) {
	r.mu.Lock()
	r.status.State = state
	r.status.CanStart = canStart
	r.status.Updated = time.Now()
	ev := Event{Type: "controls", Status: r.status}
	r.mu.Unlock()
	r.broadcast(ev)
}

func (r *StatusReporter) broadcast(ev Event) {
	if err := r.out.BroadcastJSON(ev); err != nil {
		r.logger.Warn("status broadcast failed", "type", ev.Type, "error", err)
	}
}

// Current returns the latest status.
func (r *StatusReporter) Current() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}
